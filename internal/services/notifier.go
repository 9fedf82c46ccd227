package services

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

// Notifier delivers a best-effort message to one user. Callers log and
// drop its errors.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind models.EventKind, payload map[string]any) error
}

// RealtimePublisher pushes lifecycle events to connected clients.
type RealtimePublisher interface {
	Publish(userIDs []int64, event models.SessionEvent)
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Notification is the message body QueueNotifier puts on the broker.
type Notification struct {
	UserID  int64            `json:"user_id"`
	Kind    models.EventKind `json:"kind"`
	Payload map[string]any   `json:"payload"`
	SentAt  time.Time        `json:"sent_at"`
}

type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, userID int64, kind models.EventKind, payload map[string]any) error {
	n.logger.Printf("[notify] user=%d kind=%s payload=%v", userID, kind, payload)
	return nil
}

// QueueNotifier hands notifications to the broker under "notify.<kind>".
// cmd/notifier consumes them.
type QueueNotifier struct {
	publisher jsonPublisher
	now       func() time.Time
}

func NewQueueNotifier(publisher jsonPublisher) *QueueNotifier {
	return &QueueNotifier{
		publisher: publisher,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (n *QueueNotifier) Notify(ctx context.Context, userID int64, kind models.EventKind, payload map[string]any) error {
	return n.publisher.PublishJSON(ctx, NotificationRoutingKey(kind), Notification{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
		SentAt:  n.now(),
	})
}

func NotificationRoutingKey(kind models.EventKind) string {
	return "notify." + string(kind)
}
