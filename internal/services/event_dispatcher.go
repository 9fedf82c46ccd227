package services

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

const (
	DefaultDispatchInterval = 5 * time.Second
	dispatchBatchSize       = 100
)

type eventOutbox interface {
	ListPending(ctx context.Context, limit int) ([]models.SessionEvent, error)
	MarkDispatched(ctx context.Context, eventID string, at time.Time) (bool, error)
}

// EventDispatcher drains the session_events outbox. Events are claimed
// before delivery, so each one is delivered at most once and failed
// deliveries are only logged.
type EventDispatcher struct {
	outbox    eventOutbox
	notifier  Notifier
	bus       RealtimePublisher
	publisher jsonPublisher
	logger    *log.Logger
	interval  time.Duration

	loop periodicLoop
	now  func() time.Time
}

// NewEventDispatcher accepts a nil bus or publisher when that channel is
// not configured.
func NewEventDispatcher(
	outbox eventOutbox,
	notifier Notifier,
	bus RealtimePublisher,
	publisher jsonPublisher,
	interval time.Duration,
	logger *log.Logger,
) *EventDispatcher {
	if outbox == nil {
		panic("event dispatcher: outbox is required")
	}
	if notifier == nil {
		panic("event dispatcher: notifier is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	return &EventDispatcher{
		outbox:    outbox,
		notifier:  notifier,
		bus:       bus,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *EventDispatcher) Start(ctx context.Context) error {
	return d.loop.start(ctx, d.interval, func(ctx context.Context) {
		if _, err := d.DispatchPending(ctx); err != nil {
			d.logger.Printf("dispatch events: %v", err)
		}
	})
}

func (d *EventDispatcher) Stop() {
	d.loop.stop()
}

func (d *EventDispatcher) DispatchPending(ctx context.Context) (int, error) {
	events, err := d.outbox.ListPending(ctx, dispatchBatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range events {
		claimed, err := d.outbox.MarkDispatched(ctx, event.ID, d.now())
		if err != nil {
			d.logger.Printf("event %s: claim: %v", event.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		d.deliver(ctx, event)
		delivered++
	}
	return delivered, nil
}

func (d *EventDispatcher) deliver(ctx context.Context, event models.SessionEvent) {
	if event.Kind.Notifiable() {
		for _, userID := range event.Recipients {
			if err := d.notifier.Notify(ctx, userID, event.Kind, event.Payload); err != nil {
				d.logger.Printf("event %s: notify user %d: %v", event.ID, userID, err)
			}
		}
	}
	if d.bus != nil {
		d.bus.Publish(event.Recipients, event)
	}
	if d.publisher != nil {
		if err := d.publisher.PublishJSON(ctx, string(event.Kind), event); err != nil {
			d.logger.Printf("event %s: publish %s: %v", event.ID, event.Kind, err)
		}
	}
}
