package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/event"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub pushes session events to websocket clients subscribed by session id.
// A client that cannot keep up misses events and must reload the snapshot.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register subscribes the hub to every session event on the bus.
func (h *Hub) Register(bus *event.Bus) {
	bus.SubscribeAll(domain.EventNames, func(ctx context.Context, e event.Event) error {
		if se, ok := sessionEvent(e); ok {
			h.Broadcast(ctx, se)
		}
		return nil
	})
}

// Broadcast queues e to the clients of its session without blocking.
func (h *Hub) Broadcast(ctx context.Context, e domain.SessionEvent) {
	msg := NewMessage(e)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[e.SessionID] {
		select {
		case c.send <- msg:
		default:
			slog.WarnContext(ctx, "hub: client is slow, event dropped",
				"session_id", e.SessionID,
				"event", e.Type,
				"seq", e.Seq,
			)
		}
	}
}

// Clients returns the number of clients subscribed to the session.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[sessionID])
}

// ServeWS upgrades the request and streams the session events until the client disconnects.
// Inbound messages are ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "hub: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	h.add(sessionID, c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				slog.WarnContext(r.Context(), "hub: write failed", "session_id", sessionID, "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(sessionID, c)
	<-writerDone
}

func (h *Hub) add(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
}

// remove unsubscribes c and closes its send channel. Broadcasts hold the read lock, so none is in flight.
func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients[sessionID], c)
	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
	}
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cs := range h.clients {
		for c := range cs {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	}
}
