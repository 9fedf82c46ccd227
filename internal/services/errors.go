package services

import (
	"errors"
	"fmt"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrConflict               = errors.New("scheduling conflict")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionNotFound        = errors.New("session not found")
	ErrTutorNotFound          = errors.New("tutor not found")
	ErrTutorUnavailable       = errors.New("tutor unavailable")
)

// SchedulingConflictError carries the active sessions that overlap the
// requested window. It matches ErrConflict with errors.Is.
type SchedulingConflictError struct {
	Sessions []models.Session
}

func (e *SchedulingConflictError) Error() string {
	return fmt.Sprintf("%s with %d active session(s)", ErrConflict.Error(), len(e.Sessions))
}

func (e *SchedulingConflictError) Unwrap() error {
	return ErrConflict
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidState(from models.SessionStatus, operation string) error {
	return fmt.Errorf("%w: cannot %s a %s session", ErrInvalidStateTransition, operation, from)
}
