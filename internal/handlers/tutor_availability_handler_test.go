package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/internal/services"
)

type stubAvailabilityService struct {
	result      *models.TutorAvailability
	err         error
	lastTutorID int64
	lastRole    models.Role
	lastPut     models.TutorAvailability
}

func (s *stubAvailabilityService) Get(_ context.Context, tutorID int64) (*models.TutorAvailability, error) {
	s.lastTutorID = tutorID
	return s.result, s.err
}

func (s *stubAvailabilityService) Put(_ context.Context, actorID int64, role models.Role, availability models.TutorAvailability) (*models.TutorAvailability, error) {
	s.lastTutorID = actorID
	s.lastRole = role
	s.lastPut = availability
	return s.result, s.err
}

func newAvailabilityTestApp(service *stubAvailabilityService, role, userID string) *fiber.App {
	handler := NewTutorAvailabilityHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/api/v1/tutors/availability", handler.GetOwnAvailability)
	app.Put("/api/v1/tutors/availability", handler.PutOwnAvailability)
	app.Get("/api/v1/tutors/:id/availability", handler.GetTutorAvailability)
	return app
}

func TestGetTutorAvailabilityByID(t *testing.T) {
	service := &stubAvailabilityService{result: &models.TutorAvailability{TutorID: 7, Timezone: "Europe/Berlin"}}
	app := newAvailabilityTestApp(service, "student", "42")

	resp, payload := doJSON(t, app, http.MethodGet, "/api/v1/tutors/7/availability", "")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastTutorID != 7 {
		t.Fatalf("expected tutor 7, got %d", service.lastTutorID)
	}
	availability := payload["availability"].(map[string]any)
	if availability["timezone"] != "Europe/Berlin" {
		t.Fatalf("unexpected availability: %v", availability)
	}
}

func TestGetTutorAvailabilityNotFound(t *testing.T) {
	service := &stubAvailabilityService{err: services.ErrTutorNotFound}
	app := newAvailabilityTestApp(service, "student", "42")

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/tutors/8/availability", "")

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPutOwnAvailabilityUsesCaller(t *testing.T) {
	service := &stubAvailabilityService{result: &models.TutorAvailability{TutorID: 7, Timezone: "UTC"}}
	app := newAvailabilityTestApp(service, "tutor", "7")

	resp, _ := doJSON(t, app, http.MethodPut, "/api/v1/tutors/availability", `{
		"timezone": "UTC",
		"slots": [{"day_of_week": "monday", "start_time": "09:00", "end_time": "17:00"}]
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastTutorID != 7 || service.lastRole != models.RoleTutor {
		t.Fatalf("unexpected caller: %d %q", service.lastTutorID, service.lastRole)
	}
	if len(service.lastPut.Slots) != 1 || service.lastPut.Slots[0].StartTime != "09:00" {
		t.Fatalf("unexpected slots: %+v", service.lastPut.Slots)
	}
}

func TestPutOwnAvailabilityForbiddenForStudents(t *testing.T) {
	service := &stubAvailabilityService{err: services.ErrForbidden}
	app := newAvailabilityTestApp(service, "student", "42")

	resp, _ := doJSON(t, app, http.MethodPut, "/api/v1/tutors/availability", `{"timezone":"UTC","slots":[]}`)

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
