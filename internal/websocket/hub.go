package sessionws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/TutorAppBack/internal/models"
)

type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *delivery
	done       chan struct{}
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte

	// mu guards send against a write racing its close. The hub goroutine
	// and the client's read loop both enqueue frames.
	mu     sync.Mutex
	closed bool
}

// Message is the frame pushed to clients for every session event.
type Message struct {
	Type      string           `json:"type"`
	SessionID int64            `json:"session_id,omitempty"`
	Kind      models.EventKind `json:"kind,omitempty"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Content   string           `json:"content,omitempty"`
	Timestamp string           `json:"timestamp"`
}

type delivery struct {
	userIDs []int64
	message *Message
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *delivery, 64),
		done:       make(chan struct{}),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.close()
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

// Register and Unregister return immediately once Run has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Publish queues a session event for every connected client of the given
// users. It never blocks; events are dropped when the hub is saturated.
func (h *Hub) Publish(userIDs []int64, event models.SessionEvent) {
	timestamp := event.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	d := &delivery{
		userIDs: append([]int64(nil), userIDs...),
		message: &Message{
			Type:      "session_event",
			SessionID: event.SessionID,
			Kind:      event.Kind,
			Payload:   event.Payload,
			Timestamp: formatTimestamp(timestamp),
		},
	}
	select {
	case h.broadcast <- d:
	default:
		log.Printf("session hub: dropping %s for session %d", event.Kind, event.SessionID)
	}
}

func (h *Hub) deliver(d *delivery) {
	encoded, err := json.Marshal(d.message)
	if err != nil {
		log.Printf("session hub encode message: %v", err)
		return
	}

	seen := make(map[int64]struct{}, len(d.userIDs))
	for _, userID := range d.userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, encoded)
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(payload) {
			delete(set, client)
			client.close()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump keeps the connection open and answers pings. Clients never push
// state changes over the socket.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeFrame(c, "error", "invalid message payload")
			continue
		}
		switch incoming.Type {
		case "ping":
			writeFrame(c, "pong", "")
		default:
			writeFrame(c, "error", "unsupported message type")
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeFrame(client *Client, frameType, content string) {
	payload, err := json.Marshal(Message{
		Type:      frameType,
		Content:   content,
		Timestamp: formatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	if !client.enqueue(payload) {
		client.hub.Unregister(client)
	}
}

// enqueue reports false when the client is closed or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
