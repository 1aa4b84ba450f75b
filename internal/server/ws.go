package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/app"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	clientBuffer = 16
	writeTimeout = 2 * time.Second
)

// EventSource publishes pipeline events.
type EventSource interface {
	Subscribe(fn func(app.Event)) (unsubscribe func())
	LastEvent() app.Event
}

// eventMessage is the JSON pushed to websocket clients.
type eventMessage struct {
	Type      string    `json:"type"`
	Event     app.Event `json:"event"`
	Timestamp int64     `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// EventsHandler pushes every counter event to connected websocket clients.
// Slow clients miss messages rather than stalling the pipeline.
type EventsHandler struct {
	source      EventSource
	logger      *zap.Logger
	unsubscribe func()
	clients     map[string]*client
	mu          sync.RWMutex
	closed      bool
}

// NewEventsHandler creates an EventsHandler subscribed to source.
func NewEventsHandler(source EventSource, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventsHandler{
		source:  source,
		logger:  logger,
		clients: make(map[string]*client),
	}
	h.unsubscribe = source.Subscribe(h.broadcast)
	return h
}

// ServeHTTP upgrades the connection and sends the latest event followed by
// every new one.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	if msg, err := encodeEvent("snapshot", h.source.LastEvent()); err == nil {
		c.send <- msg
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("client connected", zap.String("client", c.id))

	go h.writeLoop(c)

	// Reads only detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c.id)
	h.logger.Debug("client disconnected", zap.String("client", c.id))
}

func (h *EventsHandler) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c.id)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// remove unregisters a client and ends its write loop. Safe to call twice.
func (h *EventsHandler) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

// broadcast runs on the pipeline's consumer goroutine and never blocks.
func (h *EventsHandler) broadcast(ev app.Event) {
	msg, err := encodeEvent("update", ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("dropping event for slow client", zap.String("client", c.id))
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the source and disconnects every client.
func (h *EventsHandler) Close() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func encodeEvent(kind string, ev app.Event) ([]byte, error) {
	return json.Marshal(eventMessage{
		Type:      kind,
		Event:     ev,
		Timestamp: time.Now().UnixMilli(),
	})
}
