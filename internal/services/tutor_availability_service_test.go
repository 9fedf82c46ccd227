package services

import (
	"context"
	"errors"
	"testing"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

func TestTutorAvailabilityPutNormalizesCallerTemplate(t *testing.T) {
	users := newFakeUsers()
	users.roles[testTutorID] = models.RoleTutor
	service := NewTutorAvailabilityService(users)

	saved, err := service.Put(context.Background(), testTutorID, models.RoleTutor, models.TutorAvailability{
		TutorID: 99,
		Slots:   []models.AvailabilitySlot{{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "17:00"}},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.TutorID != testTutorID {
		t.Fatalf("expected template stored for caller %d, got %d", testTutorID, saved.TutorID)
	}
	if saved.Timezone != "UTC" || saved.Slots[0].DayOfWeek != "monday" {
		t.Fatalf("expected normalized template, got %+v", saved)
	}
}

func TestTutorAvailabilityPutRejectsStudents(t *testing.T) {
	service := NewTutorAvailabilityService(newFakeUsers())

	_, err := service.Put(context.Background(), testStudentID, models.RoleStudent, models.TutorAvailability{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestTutorAvailabilityPutRejectsInvalidSlot(t *testing.T) {
	service := NewTutorAvailabilityService(newFakeUsers())

	_, err := service.Put(context.Background(), testTutorID, models.RoleTutor, models.TutorAvailability{
		Timezone: "UTC",
		Slots:    []models.AvailabilitySlot{{DayOfWeek: "monday", StartTime: "17:00", EndTime: "09:00"}},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTutorAvailabilityGetUnknownTutor(t *testing.T) {
	users := newFakeUsers()
	users.roles[testStudentID] = models.RoleStudent
	service := NewTutorAvailabilityService(users)

	if _, err := service.Get(context.Background(), testStudentID); !errors.Is(err, ErrTutorNotFound) {
		t.Fatalf("expected ErrTutorNotFound for a student, got %v", err)
	}
	if _, err := service.Get(context.Background(), 404); !errors.Is(err, ErrTutorNotFound) {
		t.Fatalf("expected ErrTutorNotFound for an unknown user, got %v", err)
	}
}
