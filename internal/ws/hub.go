package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"gowa-hub/internal/event"

	"github.com/gorilla/websocket"
)

// RealtimePublisher is what the dispatcher holds so it does not depend on
// the Hub directly.
type RealtimePublisher interface {
	Publish(evt event.Event)
}

// Client is one dashboard WebSocket connection. A client may pin itself to
// a single session id; an empty id receives everything.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// The write goroutine drains this channel into the connection.
	send chan event.Event

	sessionID string
}

// Hub keeps every live client and fans events out to them. Delivery is
// at-most-once: a client with a full buffer gets dropped, the dashboard
// re-polls on reconnect.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan event.Event

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan event.Event, 256),
	}
}

// Run must be started in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != evt.SessionID {
					continue
				}
				select {
				case client.send <- evt:
				default:
					// buffer full, assume the client is stuck and cut it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish implements RealtimePublisher. Fire-and-forget by design; the hub
// buffer protects the caller, never the client.
func (h *Hub) Publish(evt event.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- evt:
	default:
		log.Printf("ws: broadcast buffer full, dropping %s for %s", evt.Kind, evt.SessionID)
	}
}

// NewClient wraps a Gorilla connection. sessionID == "" subscribes to all
// sessions. Read/write pumps are the handler's job to start.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan event.Event, 256),
		sessionID: sessionID,
	}
}

// WritePump drains the send channel into the connection.
func (c *Client) WritePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for evt := range c.send {
		payload, err := json.Marshal(evt)
		if err != nil {
			log.Printf("ws: failed to marshal event: %v", err)
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("ws: failed to write message: %v", err)
			return
		}
	}
}

// ReadPump consumes (and discards) client frames so pings keep the
// connection alive and closes get noticed.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)

	_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
