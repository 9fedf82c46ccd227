package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/TutorAppBack/internal/models"
)

type availabilityStore interface {
	GetRole(ctx context.Context, userID int64) (models.Role, error)
	GetTutorAvailability(ctx context.Context, tutorID int64) (*models.TutorAvailability, error)
	PutTutorAvailability(ctx context.Context, availability models.TutorAvailability) (*models.TutorAvailability, error)
}

type TutorAvailabilityService struct {
	users availabilityStore
}

func NewTutorAvailabilityService(users availabilityStore) *TutorAvailabilityService {
	return &TutorAvailabilityService{users: users}
}

func (s *TutorAvailabilityService) Get(ctx context.Context, tutorID int64) (*models.TutorAvailability, error) {
	role, err := s.users.GetRole(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	if !role.CanTutor() {
		return nil, ErrTutorNotFound
	}
	return s.users.GetTutorAvailability(ctx, tutorID)
}

// Put replaces the caller's weekly template.
func (s *TutorAvailabilityService) Put(
	ctx context.Context,
	actorID int64,
	role models.Role,
	availability models.TutorAvailability,
) (*models.TutorAvailability, error) {
	if !role.CanTutor() {
		return nil, ErrForbidden
	}
	availability.TutorID = actorID
	normalized, err := NormalizeAvailability(availability)
	if err != nil {
		return nil, err
	}
	return s.users.PutTutorAvailability(ctx, normalized)
}
