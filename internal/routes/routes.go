package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/TutorAppBack/internal/handlers"
	"github.com/saeid-a/TutorAppBack/internal/middleware"
)

type Handlers struct {
	Sessions     *handlers.SessionHandler
	Availability *handlers.TutorAvailabilityHandler
	Realtime     *handlers.RealtimeHandler
}

func RegisterRoutes(app *fiber.App, h Handlers, jwtSecret string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	api := app.Group("/api")

	// The websocket endpoint authenticates from the query string, so it is
	// registered ahead of the bearer-token group.
	api.Use("/v1/ws", h.Realtime.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(h.Realtime.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(jwtSecret))

	sessions := authProtected.Group("/sessions")
	sessions.Post("", h.Sessions.BookSession)
	sessions.Get("", h.Sessions.ListSessions)
	sessions.Get("/availability", h.Sessions.CheckAvailability)
	sessions.Get("/:id", h.Sessions.GetSession)
	sessions.Post("/:id/confirm", h.Sessions.ConfirmSession)
	sessions.Post("/:id/reschedule", h.Sessions.RescheduleSession)
	sessions.Post("/:id/cancel", h.Sessions.CancelSession)
	sessions.Post("/:id/start", h.Sessions.StartSession)
	sessions.Post("/:id/end", h.Sessions.EndSession)
	sessions.Post("/:id/materials", h.Sessions.AddMaterial)

	tutors := authProtected.Group("/tutors")
	tutors.Get("/availability", h.Availability.GetOwnAvailability)
	tutors.Put("/availability", h.Availability.PutOwnAvailability)
	tutors.Get("/:id/availability", h.Availability.GetTutorAvailability)
}
