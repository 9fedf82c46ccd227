package models

import "time"

type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusConfirmed SessionStatus = "confirmed"
	StatusOngoing   SessionStatus = "ongoing"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusNoShow    SessionStatus = "no-show"
)

// Transitions into scheduled are reschedules, which reopen confirmation.
// no-show is reserved and not reachable through any handler.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusScheduled: {StatusScheduled, StatusConfirmed, StatusOngoing, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusScheduled, StatusOngoing, StatusCancelled, StatusNoShow},
	StatusOngoing:   {StatusCompleted, StatusNoShow},
}

func ParseSessionStatus(value string) (SessionStatus, bool) {
	switch status := SessionStatus(value); status {
	case StatusScheduled, StatusConfirmed, StatusOngoing, StatusCompleted, StatusCancelled, StatusNoShow:
		return status, true
	default:
		return "", false
	}
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SessionStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusOngoing
}

func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// AcceptsMaterials reports whether materials can still be attached.
// Completed sessions accept follow-up material.
func (s SessionStatus) AcceptsMaterials() bool {
	return !s.IsTerminal() || s == StatusCompleted
}

var ActiveStatuses = []SessionStatus{StatusScheduled, StatusConfirmed, StatusOngoing}

type DeliveryType string

const (
	DeliveryOnline  DeliveryType = "online"
	DeliveryOffline DeliveryType = "offline"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Details     *string      `json:"details,omitempty"`
	MeetingLink *string      `json:"meeting_link,omitempty"`
	Address     *string      `json:"address,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Material struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Type       string    `json:"type"`
	UploadedBy int64     `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type SessionNotes struct {
	Student *string `json:"student,omitempty"`
	Tutor   *string `json:"tutor,omitempty"`
	Admin   *string `json:"admin,omitempty"`
}

type Reminder struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

type Recurrence struct {
	IsRecurring     bool       `json:"is_recurring"`
	Frequency       *string    `json:"frequency,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	ParentSessionID *int64     `json:"parent_session_id,omitempty"`
}

type Cancellation struct {
	CancelledBy int64     `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
}

type Session struct {
	ID             int64         `json:"id"`
	StudentID      int64         `json:"student_id"`
	TutorID        int64         `json:"tutor_id"`
	Subject        string        `json:"subject"`
	Description    *string       `json:"description,omitempty"`
	ScheduledStart time.Time     `json:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end"`
	ActualStart    *time.Time    `json:"actual_start,omitempty"`
	ActualEnd      *time.Time    `json:"actual_end,omitempty"`
	Status         SessionStatus `json:"status"`
	DeliveryType   DeliveryType  `json:"delivery_type"`
	Location       Location      `json:"location"`
	Price          *float64      `json:"price,omitempty"`
	Materials      []Material    `json:"materials"`
	Notes          SessionNotes  `json:"notes"`
	Reminder       Reminder      `json:"reminder"`
	Recurrence     Recurrence    `json:"recurrence"`
	Cancellation   *Cancellation `json:"cancellation,omitempty"`
	Version        int           `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (s *Session) IsParticipant(userID int64) bool {
	return s.StudentID == userID || s.TutorID == userID
}

// Counterpart returns the other participant of the session.
func (s *Session) Counterpart(userID int64) int64 {
	if userID == s.StudentID {
		return s.TutorID
	}
	return s.StudentID
}

func (s *Session) Participants() []int64 {
	return []int64{s.StudentID, s.TutorID}
}

// ActualDuration is zero until the session has both started and ended.
func (s *Session) ActualDuration() time.Duration {
	if s.ActualStart == nil || s.ActualEnd == nil {
		return 0
	}
	return s.ActualEnd.Sub(*s.ActualStart)
}

// SessionDetail is the response shape for a single session.
type SessionDetail struct {
	Session
	DurationMinutes int `json:"duration_minutes"`
}

func NewSessionDetail(session Session) SessionDetail {
	detail := SessionDetail{Session: session}
	if d := session.ActualDuration(); d > 0 {
		detail.DurationMinutes = int(d.Round(time.Minute) / time.Minute)
	} else {
		detail.DurationMinutes = int(session.ScheduledEnd.Sub(session.ScheduledStart) / time.Minute)
	}
	return detail
}
