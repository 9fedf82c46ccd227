package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saeid-a/TutorAppBack/internal/services"
)

// handleDelivery decodes one queued notification and hands it to sender.
// Undecodable bodies are reported as not worth requeueing.
func handleDelivery(ctx context.Context, sender services.Notifier, routingKey string, body []byte) (requeue bool, err error) {
	var notification services.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return false, fmt.Errorf("decode notification: %w", err)
	}
	if notification.UserID <= 0 || notification.Kind == "" {
		return false, fmt.Errorf("incomplete notification on %s", routingKey)
	}
	if want := services.NotificationRoutingKey(notification.Kind); want != routingKey {
		return false, fmt.Errorf("routing key %s does not match kind %s", routingKey, notification.Kind)
	}
	if err := sender.Notify(ctx, notification.UserID, notification.Kind, notification.Payload); err != nil {
		return true, err
	}
	return false, nil
}
