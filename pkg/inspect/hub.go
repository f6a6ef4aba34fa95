package inspect

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType represents the type of a feed message.
type MessageType string

const (
	// MessageHello is the first message on a connection. It carries the
	// client ID.
	MessageHello MessageType = "hello"
	// MessageSnapshot carries the current value of a watched source, sent
	// once per source on connect.
	MessageSnapshot MessageType = "snapshot"
	// MessageChange carries a value delivered by a tick.
	MessageChange MessageType = "change"
	// MessageError reports that a watched source failed to evaluate.
	MessageError MessageType = "error"
)

// Message is sent to feed clients via WebSocket.
type Message struct {
	Type   MessageType `json:"type"`
	Client string      `json:"client,omitempty"`
	Name   string      `json:"name,omitempty"`
	Seq    uint64      `json:"seq,omitempty"`
	Value  any         `json:"value,omitempty"`
	Error  string      `json:"error,omitempty"`
}

const writeTimeout = time.Second

type feedClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *feedClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(data)
}

func (c *feedClient) writeLocked(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages the WebSocket connections of the live feed.
type Hub struct {
	clients  map[uuid.UUID]*feedClient
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// onConnect returns the messages a new client starts with.
	onConnect func() []Message
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[uuid.UUID]*feedClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the feed is read-only
			},
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection and keeps it registered until the
// client disconnects. Messages from the client are ignored.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{id: uuid.New(), conn: conn}

	// Registration and the initial messages happen under the client lock so
	// broadcasts racing with the connect are written after them.
	c.mu.Lock()
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	initial := []Message{{Type: MessageHello, Client: c.id.String()}}
	if h.onConnect != nil {
		initial = append(initial, h.onConnect()...)
	}
	ok := true
	for _, msg := range initial {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := c.writeLocked(data); err != nil {
			ok = false
			break
		}
	}
	c.mu.Unlock()
	h.logger.Debug("feed client connected", "client", c.id)

	for ok {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	conn.Close()
	h.logger.Debug("feed client disconnected", "client", c.id)
}

// Broadcast sends a message to all connected clients. Clients that cannot
// be written to are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("feed message not encodable", "name", msg.Name, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*feedClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.mu.Lock()
			delete(h.clients, c.id)
			h.mu.Unlock()
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}
