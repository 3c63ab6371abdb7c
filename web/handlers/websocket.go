package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
)

// Event types pushed to websocket clients.
const (
	EventEmbeddingIndexed        = "embedding.indexed"
	EventStructuredDataExtracted = "structured_data.extracted"
)

// Event is a server push. Audience lists the user IDs allowed to receive it;
// an event with no audience is delivered to nobody.
type Event struct {
	Type     string   `json:"type"`
	Data     any      `json:"data"`
	Audience []string `json:"-"`
}

// WebSocketHub manages WebSocket connections and delivers events to the
// clients of their audience.
type WebSocketHub struct {
	clients        map[clientInterface]bool
	broadcast      chan Event
	register       chan clientInterface
	unregister     chan clientInterface
	allowedOrigins []string
	logger         *slog.Logger
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	userID() string
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	user string
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) userID() string {
	return c.user
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewWebSocketHub creates a new WebSocket hub. allowedOrigins are host
// patterns (e.g. "localhost:6464"); requests without an Origin header are
// always accepted.
func NewWebSocketHub(allowedOrigins []string, logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:        make(map[clientInterface]bool),
		broadcast:      make(chan Event, 256),
		register:       make(chan clientInterface),
		unregister:     make(chan clientInterface),
		allowedOrigins: allowedOrigins,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run starts the hub's message processing loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket: client connected", "user_id", client.userID(), "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket: client disconnected", "total", count)

		case event := <-h.broadcast:
			h.deliver(event)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *WebSocketHub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("websocket: failed to marshal event", "type", event.Type, "error", err)
		return
	}
	audience := make(map[string]struct{}, len(event.Audience))
	for _, u := range event.Audience {
		audience[u] = struct{}{}
	}

	// Full lock because slow clients are removed.
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if _, ok := audience[client.userID()]; !ok {
			continue
		}
		sendChan := client.getSendChannel()
		select {
		case sendChan <- data:
		default:
			h.logger.Warn("websocket: client too slow, disconnecting", "user_id", client.userID())
			close(sendChan)
			delete(h.clients, client)
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast queues an event for delivery without blocking.
func (h *WebSocketHub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("websocket: broadcast channel full, dropping event", "type", event.Type)
	}
}

// Register adds a client to the hub.
func (h *WebSocketHub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests. The caller must be
// authenticated; events are only delivered for their conversations.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.Require(r.Context(), "websocket.Connect")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" && !h.originAllowed(origin) {
		respondError(w, r, apperr.Denied("websocket.Connect", "invalid origin"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket: upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		user: userID,
		send: make(chan []byte, 256),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		if u.Host == allowed {
			return true
		}
	}
	return false
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()

		if err != nil {
			c.hub.logger.Debug("websocket: write failed", "user_id", c.user, "error", err)
			return
		}
	}
}

// readPump drains client messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil {
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	User     string
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) userID() string {
	return m.User
}

func (m *MockClient) close() {}
