package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
)

var (
	// ErrStaleSession is returned by Update when another writer changed the
	// session after it was read.
	ErrStaleSession = errors.New("session was modified concurrently")
	// ErrOverlap is returned when the database exclusion constraint rejects
	// an overlapping active session.
	ErrOverlap = errors.New("session overlaps an active session")
)

// SessionStore is the persistence contract of the lifecycle controller.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session, events ...models.SessionEvent) (*models.Session, error)
	GetByID(ctx context.Context, sessionID int64) (*models.Session, error)
	List(ctx context.Context, filter SessionListFilter) ([]models.Session, error)
	FindActiveOverlapping(ctx context.Context, participantIDs []int64, window timewindow.Window, excludeSessionID int64) ([]models.Session, error)
	Update(ctx context.Context, session *models.Session, events ...models.SessionEvent) (*models.Session, error)
	WithParticipantLock(ctx context.Context, participantIDs []int64, fn func(store SessionStore) error) error
	ListReminderDue(ctx context.Context, from, to time.Time) ([]models.Session, error)
	MarkReminderSent(ctx context.Context, sessionID int64, at time.Time) (bool, error)
}

type SessionListFilter struct {
	ActorID         int64
	Side            models.Role
	Status          string
	Timeframe       string
	ParentSessionID int64
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, student_id, tutor_id, subject, description,
	scheduled_start, scheduled_end, actual_start, actual_end, status,
	delivery_type, location_details, meeting_link, address, coordinates,
	price, materials, student_notes, tutor_notes, admin_notes,
	reminder_sent, reminder_sent_at,
	is_recurring, frequency, recurrence_end_date, parent_session_id,
	cancelled_by, cancelled_at, cancellation_reason,
	version, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session            models.Session
		cancelledBy        *int64
		cancelledAt        *time.Time
		cancellationReason *string
	)
	err := row.Scan(
		&session.ID,
		&session.StudentID,
		&session.TutorID,
		&session.Subject,
		&session.Description,
		&session.ScheduledStart,
		&session.ScheduledEnd,
		&session.ActualStart,
		&session.ActualEnd,
		&session.Status,
		&session.DeliveryType,
		&session.Location.Details,
		&session.Location.MeetingLink,
		&session.Location.Address,
		&session.Location.Coordinates,
		&session.Price,
		&session.Materials,
		&session.Notes.Student,
		&session.Notes.Tutor,
		&session.Notes.Admin,
		&session.Reminder.Sent,
		&session.Reminder.SentAt,
		&session.Recurrence.IsRecurring,
		&session.Recurrence.Frequency,
		&session.Recurrence.EndDate,
		&session.Recurrence.ParentSessionID,
		&cancelledBy,
		&cancelledAt,
		&cancellationReason,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledBy != nil && cancelledAt != nil {
		session.Cancellation = &models.Cancellation{
			CancelledBy: *cancelledBy,
			CancelledAt: *cancelledAt,
		}
		if cancellationReason != nil {
			session.Cancellation.Reason = *cancellationReason
		}
	}
	if session.Materials == nil {
		session.Materials = []models.Material{}
	}
	return &session, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) Create(
	ctx context.Context,
	session *models.Session,
	events ...models.SessionEvent,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		INSERT INTO sessions (
			student_id, tutor_id, subject, description,
			scheduled_start, scheduled_end, status,
			delivery_type, location_details, meeting_link, address, coordinates,
			price, materials, student_notes, tutor_notes, admin_notes,
			is_recurring, frequency, recurrence_end_date, parent_session_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING %s
	`, sessionColumns)

	materials := session.Materials
	if materials == nil {
		materials = []models.Material{}
	}

	var created *models.Session
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		created, err = scanSession(tx.QueryRow(
			ctx,
			query,
			session.StudentID,
			session.TutorID,
			session.Subject,
			session.Description,
			session.ScheduledStart.UTC(),
			session.ScheduledEnd.UTC(),
			session.Status,
			session.DeliveryType,
			session.Location.Details,
			session.Location.MeetingLink,
			session.Location.Address,
			session.Location.Coordinates,
			session.Price,
			materials,
			session.Notes.Student,
			session.Notes.Tutor,
			session.Notes.Admin,
			session.Recurrence.IsRecurring,
			session.Recurrence.Frequency,
			session.Recurrence.EndDate,
			session.Recurrence.ParentSessionID,
		))
		if err != nil {
			return translateWriteError(err)
		}
		return insertEvents(ctx, tx, created.ID, events)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	args := []any{filter.ActorID}
	var whereParts []string
	switch filter.Side {
	case models.RoleStudent:
		whereParts = append(whereParts, "student_id = $1")
	case models.RoleTutor:
		whereParts = append(whereParts, "tutor_id = $1")
	default:
		whereParts = append(whereParts, "(student_id = $1 OR tutor_id = $1)")
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.ParentSessionID > 0 {
		args = append(args, filter.ParentSessionID)
		whereParts = append(whereParts, fmt.Sprintf("(id = $%d OR parent_session_id = $%d)", len(args), len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(whereParts, "scheduled_end > NOW()")
	case "past":
		whereParts = append(whereParts, "scheduled_end <= NOW()")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY scheduled_start ASC, id ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) FindActiveOverlapping(
	ctx context.Context,
	participantIDs []int64,
	window timewindow.Window,
	excludeSessionID int64,
) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE (student_id = ANY($1) OR tutor_id = ANY($1))
		  AND status = ANY($2)
		  AND scheduled_start < $4
		  AND scheduled_end > $3
		  AND id <> $5
		ORDER BY scheduled_start ASC, id ASC
	`, sessionColumns)

	window = window.UTC()
	rows, err := r.db.Query(
		ctx,
		query,
		participantIDs,
		activeStatusValues(),
		window.Start,
		window.End,
		excludeSessionID,
	)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) Update(
	ctx context.Context,
	session *models.Session,
	events ...models.SessionEvent,
) (*models.Session, error) {
	query := fmt.Sprintf(`
		UPDATE sessions
		SET scheduled_start = $3,
		    scheduled_end = $4,
		    actual_start = $5,
		    actual_end = $6,
		    status = $7,
		    meeting_link = $8,
		    materials = $9,
		    student_notes = $10,
		    tutor_notes = $11,
		    admin_notes = $12,
		    reminder_sent = $13,
		    reminder_sent_at = $14,
		    cancelled_by = $15,
		    cancelled_at = $16,
		    cancellation_reason = $17,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING %s
	`, sessionColumns)

	var (
		cancelledBy        *int64
		cancelledAt        *time.Time
		cancellationReason *string
	)
	if session.Cancellation != nil {
		cancelledBy = &session.Cancellation.CancelledBy
		cancelledAt = &session.Cancellation.CancelledAt
		cancellationReason = &session.Cancellation.Reason
	}
	materials := session.Materials
	if materials == nil {
		materials = []models.Material{}
	}

	var updated *models.Session
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		updated, err = scanSession(tx.QueryRow(
			ctx,
			query,
			session.ID,
			session.Version,
			session.ScheduledStart.UTC(),
			session.ScheduledEnd.UTC(),
			session.ActualStart,
			session.ActualEnd,
			session.Status,
			session.Location.MeetingLink,
			materials,
			session.Notes.Student,
			session.Notes.Tutor,
			session.Notes.Admin,
			session.Reminder.Sent,
			session.Reminder.SentAt,
			cancelledBy,
			cancelledAt,
			cancellationReason,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStaleSession
			}
			return translateWriteError(err)
		}
		return insertEvents(ctx, tx, updated.ID, events)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// WithParticipantLock serializes every write that touches any of the given
// participants. Locks are taken in ascending id order so two callers
// locking the same pair cannot deadlock.
func (r *SessionRepository) WithParticipantLock(
	ctx context.Context,
	participantIDs []int64,
	fn func(store SessionStore) error,
) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, id := range sortedUniqueIDs(participantIDs) {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", id); err != nil {
				return err
			}
		}
		return fn(NewSessionRepository(tx))
	})
}

func (r *SessionRepository) ListReminderDue(
	ctx context.Context,
	from time.Time,
	to time.Time,
) ([]models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE status IN ('scheduled', 'confirmed')
		  AND reminder_sent = FALSE
		  AND scheduled_start >= $1
		  AND scheduled_start <= $2
		ORDER BY scheduled_start ASC, id ASC
	`, sessionColumns)

	rows, err := r.db.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// MarkReminderSent claims the reminder for a session. Only one caller ever
// gets true for a given scheduled window.
func (r *SessionRepository) MarkReminderSent(
	ctx context.Context,
	sessionID int64,
	at time.Time,
) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET reminder_sent = TRUE,
		    reminder_sent_at = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND reminder_sent = FALSE
		  AND status IN ('scheduled', 'confirmed')
	`, sessionID, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func activeStatusValues() []string {
	values := make([]string, 0, len(models.ActiveStatuses))
	for _, status := range models.ActiveStatuses {
		values = append(values, string(status))
	}
	return values
}

func sortedUniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	return unique
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return ErrOverlap
	}
	return err
}

// inTx runs fn in a transaction on db. When db is already a transaction
// pgx opens a savepoint instead.
func inTx(ctx context.Context, db DBTX, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
