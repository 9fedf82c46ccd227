package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/saeid-a/TutorAppBack/internal/services"
	"github.com/saeid-a/TutorAppBack/pkg/mq"
)

type notifierConfig struct {
	RabbitURL      string `envconfig:"RABBIT_URL" required:"true"`
	NotifyExchange string `envconfig:"NOTIFY_EXCHANGE" default:"notifications"`
	NotifyQueue    string `envconfig:"NOTIFY_QUEUE" default:"notifications.q"`
	Prefetch       int    `envconfig:"NOTIFY_PREFETCH" default:"16"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var cfg notifierConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var consumer *mq.Consumer
	for {
		var err error
		consumer, err = mq.NewConsumer(cfg.RabbitURL, cfg.NotifyExchange, cfg.NotifyQueue, []string{"notify.#"}, cfg.Prefetch)
		if err == nil {
			break
		}
		log.Printf("[notifier] connect failed: %v; retry in 2s", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
	defer consumer.Close()

	deliveries, err := consumer.Deliveries(ctx, "tutorapp-notifier")
	if err != nil {
		log.Fatalf("Failed to consume %s: %v", cfg.NotifyQueue, err)
	}

	sender := services.NewLogNotifier(log.New(os.Stdout, "", log.LstdFlags))
	log.Printf("[notifier] started. queue=%s exchange=%s", cfg.NotifyQueue, cfg.NotifyExchange)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			requeue, err := handleDelivery(ctx, sender, d.RoutingKey, d.Body)
			if err != nil {
				log.Printf("[notifier] handle key=%s: %v", d.RoutingKey, err)
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
