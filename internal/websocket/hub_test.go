package sessionws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/saeid-a/TutorAppBack/internal/models"
)

func receive(t *testing.T, client *Client) Message {
	t.Helper()

	select {
	case payload := <-client.send:
		var message Message
		if err := json.Unmarshal(payload, &message); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return message
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return Message{}
}

func TestPublishReachesOnlyRecipients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	student := NewClient(hub, nil, 1)
	tutor := NewClient(hub, nil, 2)
	outsider := NewClient(hub, nil, 3)
	hub.Register(student)
	hub.Register(tutor)
	hub.Register(outsider)

	hub.Publish([]int64{1, 2, 2}, models.SessionEvent{
		SessionID: 44,
		Kind:      models.EventSessionConfirmed,
		Payload:   map[string]any{"subject": "Physics"},
	})

	for _, client := range []*Client{student, tutor} {
		message := receive(t, client)
		if message.Type != "session_event" || message.SessionID != 44 || message.Kind != models.EventSessionConfirmed {
			t.Fatalf("unexpected frame: %+v", message)
		}
	}

	select {
	case payload := <-outsider.send:
		t.Fatalf("outsider received %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case payload := <-tutor.send:
		t.Fatalf("duplicate recipient received a second frame: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := NewClient(hub, nil, 5)
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for close")
	}
}

func drainUntilClosed(t *testing.T, client *Client) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-client.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for eviction")
		}
	}
}

func TestReplyAfterEvictionDoesNotPanic(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := NewClient(hub, nil, 9)
	hub.Register(slow)
	for i := 0; i < 40; i++ {
		hub.Publish([]int64{9}, models.SessionEvent{SessionID: int64(i), Kind: models.EventSessionReminder})
	}
	drainUntilClosed(t, slow)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("pong after eviction panicked: %v", r)
		}
	}()
	writeFrame(slow, "pong", "")
	writeFrame(slow, "pong", "")
	if slow.enqueue([]byte("{}")) {
		t.Fatalf("evicted client accepted a frame")
	}
}

func TestUnregisterReturnsAfterHubStops(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := NewClient(hub, nil, 6)
	hub.Register(client)
	cancel()
	<-stopped

	returned := make(chan struct{})
	go func() {
		hub.Unregister(client)
		writeFrame(client, "pong", "")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("Unregister blocked after the hub stopped")
	}
}
