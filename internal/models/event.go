package models

import "time"

type EventKind string

const (
	EventSessionBooked      EventKind = "session.booked"
	EventSessionConfirmed   EventKind = "session.confirmed"
	EventSessionRescheduled EventKind = "session.rescheduled"
	EventSessionCancelled   EventKind = "session.cancelled"
	EventSessionStarted     EventKind = "session.started"
	EventSessionCompleted   EventKind = "session.completed"
	EventSessionReminder    EventKind = "session.reminder"
)

// Notifiable reports whether the event should reach participants through
// the notification sender and not only the realtime bus.
func (k EventKind) Notifiable() bool {
	switch k {
	case EventSessionBooked, EventSessionConfirmed, EventSessionRescheduled,
		EventSessionCancelled, EventSessionReminder:
		return true
	default:
		return false
	}
}

// SessionEvent is an outbox row written in the same transaction as the
// state change that produced it.
type SessionEvent struct {
	ID           string         `json:"id"`
	SessionID    int64          `json:"session_id"`
	Kind         EventKind      `json:"kind"`
	ActorID      int64          `json:"actor_id"`
	Recipients   []int64        `json:"recipients"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	DispatchedAt *time.Time     `json:"dispatched_at,omitempty"`
}
