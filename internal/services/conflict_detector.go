package services

import (
	"context"

	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/internal/repository"
	"github.com/saeid-a/TutorAppBack/pkg/timewindow"
)

// ConflictDetector finds active sessions of either participant that
// overlap a window. The store narrows the candidates; the final decision is
// always timewindow.Overlaps so booking and rescheduling share one rule.
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

func (d *ConflictDetector) FindConflicts(
	ctx context.Context,
	store repository.SessionStore,
	participantA int64,
	participantB int64,
	window timewindow.Window,
	excludeSessionID int64,
) ([]models.Session, error) {
	candidates, err := store.FindActiveOverlapping(ctx, []int64{participantA, participantB}, window, excludeSessionID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.Session, 0, len(candidates))
	for _, session := range candidates {
		if session.ID == excludeSessionID && excludeSessionID != 0 {
			continue
		}
		if !session.Status.IsActive() {
			continue
		}
		if !session.IsParticipant(participantA) && !session.IsParticipant(participantB) {
			continue
		}
		stored := timewindow.Window{Start: session.ScheduledStart, End: session.ScheduledEnd}
		if timewindow.Overlaps(stored, window) {
			conflicts = append(conflicts, session)
		}
	}
	return conflicts, nil
}

// FindSeriesConflicts runs FindConflicts for every window and returns each
// conflicting session once, in first-seen order.
func (d *ConflictDetector) FindSeriesConflicts(
	ctx context.Context,
	store repository.SessionStore,
	participantA int64,
	participantB int64,
	windows []timewindow.Window,
	excludeSessionID int64,
) ([]models.Session, error) {
	var result []models.Session
	seen := make(map[int64]struct{})
	for _, window := range windows {
		conflicts, err := d.FindConflicts(ctx, store, participantA, participantB, window, excludeSessionID)
		if err != nil {
			return nil, err
		}
		for _, conflict := range conflicts {
			if _, ok := seen[conflict.ID]; ok {
				continue
			}
			seen[conflict.ID] = struct{}{}
			result = append(result, conflict)
		}
	}
	return result, nil
}
