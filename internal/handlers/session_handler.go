package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/TutorAppBack/internal/models"
	"github.com/saeid-a/TutorAppBack/internal/repository"
	"github.com/saeid-a/TutorAppBack/internal/services"
)

type sessionApplicationService interface {
	Book(ctx context.Context, actorID int64, role models.Role, input services.BookSessionInput) ([]models.SessionDetail, error)
	Confirm(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error)
	Reschedule(ctx context.Context, actorID, sessionID int64, input services.RescheduleSessionInput) (*models.SessionDetail, error)
	Cancel(ctx context.Context, actorID, sessionID int64, reason string) (*models.SessionDetail, error)
	Start(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error)
	End(ctx context.Context, actorID, sessionID int64, notes *string) (*models.SessionDetail, error)
	AddMaterial(ctx context.Context, actorID, sessionID int64, input services.AddMaterialInput) (*models.SessionDetail, error)
	Get(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error)
	List(ctx context.Context, actorID int64, filter services.ListSessionsFilter) ([]models.SessionDetail, error)
	CheckAvailability(ctx context.Context, actorID, tutorID int64, start, end time.Time) (*services.AvailabilityReport, error)
}

type SessionHandler struct {
	service sessionApplicationService
}

func NewSessionHandler(service sessionApplicationService) *SessionHandler {
	return &SessionHandler{service: service}
}

type recurrenceRequest struct {
	Frequency string `json:"frequency"`
	EndDate   string `json:"end_date"`
}

type bookSessionRequest struct {
	TutorID        int64              `json:"tutor_id"`
	Subject        string             `json:"subject"`
	Description    *string            `json:"description"`
	ScheduledStart string             `json:"scheduled_start"`
	ScheduledEnd   string             `json:"scheduled_end"`
	DeliveryType   string             `json:"delivery_type"`
	Location       models.Location    `json:"location"`
	Price          *float64           `json:"price"`
	Notes          *string            `json:"notes"`
	Recurrence     *recurrenceRequest `json:"recurrence"`
}

type rescheduleSessionRequest struct {
	ScheduledStart string  `json:"scheduled_start"`
	ScheduledEnd   string  `json:"scheduled_end"`
	Reason         *string `json:"reason"`
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

type endSessionRequest struct {
	Notes *string `json:"notes"`
}

type addMaterialRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type conflictSummary struct {
	ID             int64                `json:"id"`
	ScheduledStart time.Time            `json:"scheduled_start"`
	ScheduledEnd   time.Time            `json:"scheduled_end"`
	Status         models.SessionStatus `json:"status"`
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	userID, role, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	start, err := parseTimestamp(req.ScheduledStart)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_start must be a valid RFC3339 timestamp"})
	}
	end, err := parseTimestamp(req.ScheduledEnd)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_end must be a valid RFC3339 timestamp"})
	}

	input := services.BookSessionInput{
		TutorID:        req.TutorID,
		Subject:        req.Subject,
		Description:    req.Description,
		ScheduledStart: start,
		ScheduledEnd:   end,
		DeliveryType:   models.DeliveryType(strings.ToLower(strings.TrimSpace(req.DeliveryType))),
		Location:       req.Location,
		Price:          req.Price,
		Notes:          req.Notes,
	}
	if req.Recurrence != nil {
		endDate, err := parseTimestamp(req.Recurrence.EndDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "recurrence.end_date must be a valid RFC3339 timestamp"})
		}
		input.Recurrence = &services.RecurrenceInput{
			Frequency: req.Recurrence.Frequency,
			EndDate:   endDate,
		}
	}

	sessions, err := h.service.Book(c.Context(), userID, role, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	userID, _, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var seriesID int64
	if raw := strings.TrimSpace(c.Query("series")); raw != "" {
		seriesID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || seriesID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "series must be a positive id"})
		}
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	sessions, err := h.service.List(c.Context(), userID, services.ListSessionsFilter{
		Status:    c.Query("status"),
		Timeframe: c.Query("timeframe"),
		As:        c.Query("as"),
		SeriesID:  seriesID,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   paginate(sessions, page, limit),
		"pagination": buildPaginationMeta(page, limit, len(sessions)),
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	userID, _, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.Get(c.Context(), userID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ConfirmSession(c *fiber.Ctx) error {
	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.Confirm(ctx, actorID, sessionID)
	})
}

func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.Start(ctx, actorID, sessionID)
	})
}

func (h *SessionHandler) RescheduleSession(c *fiber.Ctx) error {
	var req rescheduleSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	start, err := parseTimestamp(req.ScheduledStart)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_start must be a valid RFC3339 timestamp"})
	}
	end, err := parseTimestamp(req.ScheduledEnd)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_end must be a valid RFC3339 timestamp"})
	}

	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.Reschedule(ctx, actorID, sessionID, services.RescheduleSessionInput{
			ScheduledStart: start,
			ScheduledEnd:   end,
			Reason:         req.Reason,
		})
	})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	var req cancelSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Reason) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}

	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.Cancel(ctx, actorID, sessionID, req.Reason)
	})
}

func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	var req endSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.End(ctx, actorID, sessionID, req.Notes)
	})
}

func (h *SessionHandler) AddMaterial(c *fiber.Ctx) error {
	var req addMaterialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	return h.sessionAction(c, func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error) {
		return h.service.AddMaterial(ctx, actorID, sessionID, services.AddMaterialInput{
			Name: req.Name,
			URL:  req.URL,
			Type: req.Type,
		})
	})
}

// CheckAvailability checks a tutor's template and both calendars for
// ?tutor_id=&start=&end=.
func (h *SessionHandler) CheckAvailability(c *fiber.Ctx) error {
	userID, _, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	tutorID, err := strconv.ParseInt(strings.TrimSpace(c.Query("tutor_id")), 10, 64)
	if err != nil || tutorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tutor_id must be a positive id"})
	}
	start, err := parseTimestamp(c.Query("start"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start must be a valid RFC3339 timestamp"})
	}
	end, err := parseTimestamp(c.Query("end"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end must be a valid RFC3339 timestamp"})
	}

	report, err := h.service.CheckAvailability(c.Context(), userID, tutorID, start, end)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(report)
}

func (h *SessionHandler) sessionAction(
	c *fiber.Ctx,
	action func(ctx context.Context, actorID, sessionID int64) (*models.SessionDetail, error),
) error {
	userID, _, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := action(c.Context(), userID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func parseActor(c *fiber.Ctx) (int64, models.Role, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, "", strconv.ErrSyntax
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", strconv.ErrSyntax
	}
	role, _ := c.Locals("role").(string)
	return userID, models.Role(strings.ToLower(strings.TrimSpace(role))), nil
}

func parseSessionID(c *fiber.Ctx) (int64, error) {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return 0, strconv.ErrSyntax
	}
	return sessionID, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

func mapSessionError(c *fiber.Ctx, err error) error {
	var conflict *services.SchedulingConflictError
	switch {
	case errors.As(err, &conflict):
		summaries := make([]conflictSummary, 0, len(conflict.Sessions))
		for _, session := range conflict.Sessions {
			summaries = append(summaries, conflictSummary{
				ID:             session.ID,
				ScheduledStart: session.ScheduledStart,
				ScheduledEnd:   session.ScheduledEnd,
				Status:         session.Status,
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    "Requested time conflicts with another session",
			"sessions": summaries,
		})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrTutorNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor not found"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrTutorUnavailable):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Tutor is not available at the requested time"})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Requested time conflicts with another session"})
	case errors.Is(err, repository.ErrStaleSession):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session was modified concurrently, retry"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
