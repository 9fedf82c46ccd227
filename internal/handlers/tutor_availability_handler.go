package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/TutorAppBack/internal/models"
)

type tutorAvailabilityService interface {
	Get(ctx context.Context, tutorID int64) (*models.TutorAvailability, error)
	Put(ctx context.Context, actorID int64, role models.Role, availability models.TutorAvailability) (*models.TutorAvailability, error)
}

type TutorAvailabilityHandler struct {
	service tutorAvailabilityService
}

func NewTutorAvailabilityHandler(service tutorAvailabilityService) *TutorAvailabilityHandler {
	return &TutorAvailabilityHandler{service: service}
}

type putAvailabilityRequest struct {
	Timezone string                    `json:"timezone"`
	Slots    []models.AvailabilitySlot `json:"slots"`
}

func (h *TutorAvailabilityHandler) GetTutorAvailability(c *fiber.Ctx) error {
	tutorID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || tutorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tutor id"})
	}

	availability, err := h.service.Get(c.Context(), tutorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"availability": availability})
}

func (h *TutorAvailabilityHandler) GetOwnAvailability(c *fiber.Ctx) error {
	userID, _, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	availability, err := h.service.Get(c.Context(), userID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"availability": availability})
}

func (h *TutorAvailabilityHandler) PutOwnAvailability(c *fiber.Ctx) error {
	userID, role, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req putAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	availability, err := h.service.Put(c.Context(), userID, role, models.TutorAvailability{
		Timezone: req.Timezone,
		Slots:    req.Slots,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"availability": availability})
}
