package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saeid-a/TutorAppBack/internal/config"
	"github.com/saeid-a/TutorAppBack/internal/database"
	"github.com/saeid-a/TutorAppBack/internal/handlers"
	"github.com/saeid-a/TutorAppBack/internal/repository"
	"github.com/saeid-a/TutorAppBack/internal/routes"
	"github.com/saeid-a/TutorAppBack/internal/services"
	sessionws "github.com/saeid-a/TutorAppBack/internal/websocket"
	"github.com/saeid-a/TutorAppBack/pkg/mq"
	"github.com/saeid-a/TutorAppBack/pkg/obs"
)

type jsonPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	if cfg.TracingEnabled() {
		shutdownTracer, err := obs.InitTracer(ctx, "tutorapp-sessions", cfg.OTLPEndpoint, cfg.AppEnv)
		if err != nil {
			log.Fatalf("Failed to init tracer: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				log.Printf("Tracer shutdown: %v", err)
			}
		}()
	}

	// 3. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	workerLog := log.New(os.Stderr, "[workers] ", log.LstdFlags)

	// 4. Notification and event channels
	var notifier services.Notifier = services.NewLogNotifier(log.New(os.Stdout, "[notify] ", log.LstdFlags))
	var eventPublisher jsonPublisher
	if cfg.BrokerEnabled() {
		notifyPublisher, err := mq.NewPublisher(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			log.Fatalf("Failed to connect notification publisher: %v", err)
		}
		defer notifyPublisher.Close()
		notifier = services.NewQueueNotifier(notifyPublisher)

		eventsPublisher, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventExchange)
		if err != nil {
			log.Fatalf("Failed to connect event publisher: %v", err)
		}
		defer eventsPublisher.Close()
		eventPublisher = eventsPublisher
	}

	hub := sessionws.NewHub()
	go hub.Run(ctx)

	// 5. Services and workers
	sessionRepo := repository.NewSessionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	eventRepo := repository.NewEventRepository(pool)

	sessionService := services.NewSessionService(sessionRepo, userRepo, cfg.MeetingBaseURL, workerLog)
	availabilityService := services.NewTutorAvailabilityService(userRepo)

	reminders := services.NewReminderScheduler(sessionRepo, notifier, hub, cfg.ReminderInterval, cfg.ReminderLead, workerLog)
	if err := reminders.Start(ctx); err != nil {
		log.Fatalf("Failed to start reminder scheduler: %v", err)
	}
	defer reminders.Stop()

	dispatcher := services.NewEventDispatcher(eventRepo, notifier, hub, eventPublisher, cfg.EventDispatchInterval, workerLog)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatalf("Failed to start event dispatcher: %v", err)
	}
	defer dispatcher.Stop()

	// 6. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	routes.RegisterRoutes(app, routes.Handlers{
		Sessions:     handlers.NewSessionHandler(sessionService),
		Availability: handlers.NewTutorAvailabilityHandler(availabilityService),
		Realtime:     handlers.NewRealtimeHandler(hub, cfg.JWTSecret),
	}, cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	// 7. Start Server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
