package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/TutorAppBack/internal/models"
)

type EventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

func insertEvents(ctx context.Context, db DBTX, sessionID int64, events []models.SessionEvent) error {
	query := `
		INSERT INTO session_events (id, session_id, kind, actor_id, recipients, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		payload := event.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		if _, err := db.Exec(ctx, query, event.ID, sessionID, event.Kind, event.ActorID, event.Recipients, payload); err != nil {
			return err
		}
	}
	return nil
}

func (r *EventRepository) ListPending(ctx context.Context, limit int) ([]models.SessionEvent, error) {
	query := `
		SELECT id, session_id, kind, actor_id, recipients, payload, created_at, dispatched_at
		FROM session_events
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.SessionEvent, 0)
	for rows.Next() {
		var event models.SessionEvent
		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Kind,
			&event.ActorID,
			&event.Recipients,
			&event.Payload,
			&event.CreatedAt,
			&event.DispatchedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkDispatched claims an event. It returns false when another dispatcher
// already took it.
func (r *EventRepository) MarkDispatched(ctx context.Context, eventID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_events
		SET dispatched_at = $2
		WHERE id = $1 AND dispatched_at IS NULL
	`, eventID, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
