package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saeid-a/TutorAppBack/internal/models"
)

type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository is the read side of the user directory plus the two
// writes the scheduling core needs: availability templates and stats.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, role)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query, user.Email, user.Role).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetRole(ctx context.Context, id int64) (models.Role, error) {
	var role models.Role
	if err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role); err != nil {
		return "", err
	}
	return role, nil
}

// GetTutorAvailability returns an empty UTC template when the tutor never
// declared one.
func (r *UserRepository) GetTutorAvailability(ctx context.Context, tutorID int64) (*models.TutorAvailability, error) {
	query := `
		SELECT tutor_id, timezone, slots, updated_at
		FROM tutor_availability
		WHERE tutor_id = $1
	`
	var availability models.TutorAvailability
	err := r.db.QueryRow(ctx, query, tutorID).Scan(
		&availability.TutorID,
		&availability.Timezone,
		&availability.Slots,
		&availability.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.TutorAvailability{
				TutorID:  tutorID,
				Timezone: "UTC",
				Slots:    []models.AvailabilitySlot{},
			}, nil
		}
		return nil, err
	}
	if availability.Slots == nil {
		availability.Slots = []models.AvailabilitySlot{}
	}
	return &availability, nil
}

func (r *UserRepository) PutTutorAvailability(
	ctx context.Context,
	availability models.TutorAvailability,
) (*models.TutorAvailability, error) {
	query := `
		INSERT INTO tutor_availability (tutor_id, timezone, slots, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tutor_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
		    slots = EXCLUDED.slots,
		    updated_at = NOW()
		RETURNING tutor_id, timezone, slots, updated_at
	`
	slots := availability.Slots
	if slots == nil {
		slots = []models.AvailabilitySlot{}
	}

	var saved models.TutorAvailability
	err := r.db.QueryRow(ctx, query, availability.TutorID, availability.Timezone, slots).Scan(
		&saved.TutorID,
		&saved.Timezone,
		&saved.Slots,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *UserRepository) IncrementStats(ctx context.Context, userID int64, delta models.StatsDelta) error {
	var query string
	switch delta.Role {
	case models.RoleTutor:
		query = `
			INSERT INTO user_stats (user_id, sessions_as_tutor, hours_taught)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET sessions_as_tutor = user_stats.sessions_as_tutor + EXCLUDED.sessions_as_tutor,
			    hours_taught = user_stats.hours_taught + EXCLUDED.hours_taught
		`
	default:
		query = `
			INSERT INTO user_stats (user_id, sessions_as_student, hours_learned)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET sessions_as_student = user_stats.sessions_as_student + EXCLUDED.sessions_as_student,
			    hours_learned = user_stats.hours_learned + EXCLUDED.hours_learned
		`
	}
	_, err := r.db.Exec(ctx, query, userID, delta.Sessions, delta.Hours)
	return err
}

func (r *UserRepository) GetStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	query := `
		SELECT user_id, sessions_as_student, hours_learned, sessions_as_tutor, hours_taught
		FROM user_stats
		WHERE user_id = $1
	`
	stats := models.UserStats{UserID: userID}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.SessionsAsStudent,
		&stats.HoursLearned,
		&stats.SessionsAsTutor,
		&stats.HoursTaught,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return &stats, nil
}
