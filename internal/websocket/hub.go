package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Role tags a live connection after its auth message has been accepted.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// sendBufferSize bounds each client's outbound queue. A client that cannot
// drain it has its messages dropped, never the other clients'.
const sendBufferSize = 64

// Client is one live connection registered with the Hub.
type Client struct {
	UserID int
	Role   Role
	Send   chan []byte

	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewClient wraps a connection for hub registration. conn may be nil in
// tests; WritePump is then never started.
func NewClient(conn *websocket.Conn, userID int, role Role) *Client {
	return &Client{
		UserID: userID,
		Role:   role,
		Send:   make(chan []byte, sendBufferSize),
		conn:   conn,
	}
}

// close shuts the send channel exactly once.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// WritePump drains the Send channel to the connection. Run in its own
// goroutine; returns when the channel closes or a write fails.
func (c *Client) WritePump() {
	for msg := range c.Send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub maintains the set of live connections and fans events out to admins.
// There is no replay buffer: a client only receives what is broadcast while
// it is registered.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     zerolog.Logger

	dropped uint64 // messages discarded due to full client buffers
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a client to the live set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().
		Int("user_id", c.UserID).
		Str("role", string(c.Role)).
		Msg("Client registered")
}

// Unregister removes a client and closes its send channel. The close
// happens under the write lock so it cannot race an in-progress broadcast
// enqueue. In-flight deliveries are neither awaited nor rolled back.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// AdminCount returns the number of connected admin observers.
func (h *Hub) AdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// BroadcastToAdmins marshals v once and queues it to every connected admin.
// Enqueues are non-blocking: a full client buffer drops the message for
// that client only and never delays delivery to others. Actual socket
// writes happen in each client's WritePump, outside any hub lock.
func (h *Hub) BroadcastToAdmins(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Broadcast marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.Role != RoleAdmin {
			continue
		}
		select {
		case c.Send <- payload:
		default:
			atomic.AddUint64(&h.dropped, 1)
			h.log.Warn().
				Int("user_id", c.UserID).
				Msg("Admin send buffer full, dropping message")
		}
	}
}
