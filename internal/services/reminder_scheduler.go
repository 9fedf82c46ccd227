package services

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

const (
	DefaultReminderInterval = 15 * time.Minute
	DefaultReminderLead     = 24 * time.Hour
)

type reminderStore interface {
	ListReminderDue(ctx context.Context, from, to time.Time) ([]models.Session, error)
	MarkReminderSent(ctx context.Context, sessionID int64, at time.Time) (bool, error)
}

// ReminderScheduler sweeps sessions entering their reminder window. Each
// reminder is claimed in the store before anyone is notified, so
// overlapping sweeps never send one twice.
type ReminderScheduler struct {
	store    reminderStore
	notifier Notifier
	bus      RealtimePublisher
	logger   *log.Logger
	interval time.Duration
	lead     time.Duration

	loop periodicLoop
	now  func() time.Time
}

func NewReminderScheduler(
	store reminderStore,
	notifier Notifier,
	bus RealtimePublisher,
	interval time.Duration,
	lead time.Duration,
	logger *log.Logger,
) *ReminderScheduler {
	if store == nil {
		panic("reminder scheduler: store is required")
	}
	if notifier == nil {
		panic("reminder scheduler: notifier is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return &ReminderScheduler{
		store:    store,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		interval: interval,
		lead:     lead,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *ReminderScheduler) Start(ctx context.Context) error {
	return s.loop.start(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Printf("reminder sweep: %v", err)
		}
	})
}

func (s *ReminderScheduler) Stop() {
	s.loop.stop()
}

// Sweep sends every due reminder once and returns how many were sent by
// this call.
func (s *ReminderScheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ListReminderDue(ctx, now, now.Add(s.lead))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, session := range due {
		claimed, err := s.store.MarkReminderSent(ctx, session.ID, now)
		if err != nil {
			s.logger.Printf("session %d: claim reminder: %v", session.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		sent++

		event := models.SessionEvent{
			SessionID:  session.ID,
			Kind:       models.EventSessionReminder,
			Recipients: session.Participants(),
			Payload:    sessionPayload(&session),
			CreatedAt:  now,
		}
		for _, userID := range event.Recipients {
			if err := s.notifier.Notify(ctx, userID, event.Kind, event.Payload); err != nil {
				s.logger.Printf("session %d: reminder to user %d: %v", session.ID, userID, err)
			}
		}
		if s.bus != nil {
			s.bus.Publish(event.Recipients, event)
		}
	}
	return sent, nil
}
