package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	DBUrl          string `envconfig:"DB_URL"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	AppEnv         string `envconfig:"APP_ENV" default:"production"`
	MeetingBaseURL string `envconfig:"MEETING_BASE_URL" default:"https://meet.tutorapp.local"`

	ReminderInterval      time.Duration `envconfig:"REMINDER_INTERVAL" default:"15m"`
	ReminderLead          time.Duration `envconfig:"REMINDER_LEAD" default:"24h"`
	EventDispatchInterval time.Duration `envconfig:"EVENT_DISPATCH_INTERVAL" default:"5s"`

	// RabbitMQ is optional. Without RABBIT_URL notifications are logged
	// and lifecycle events stay in-process.
	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventExchange  string `envconfig:"EVENT_EXCHANGE" default:"session.events"`
	NotifyExchange string `envconfig:"NOTIFY_EXCHANGE" default:"notifications"`
	NotifyQueue    string `envconfig:"NOTIFY_QUEUE" default:"notifications.q"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.AppEnv = normalizeEnv(cfg.AppEnv)
	if cfg.ReminderInterval <= 0 || cfg.ReminderLead <= 0 || cfg.EventDispatchInterval <= 0 {
		return nil, fmt.Errorf("worker intervals must be positive")
	}
	return &cfg, nil
}

func (c *Config) BrokerEnabled() bool {
	return c != nil && strings.TrimSpace(c.RabbitURL) != ""
}

func (c *Config) TracingEnabled() bool {
	return c != nil && strings.TrimSpace(c.OTLPEndpoint) != ""
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
