package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tabi-core/internal/dispatch"
	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
	"github.com/nerrad567/tabi-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe = "subscribe"
	WSTypePing      = "ping"
	WSTypePong      = "pong"
	WSTypeEvent     = "event"
	WSTypeResponse  = "response"
	WSTypeError     = "error"
)

const (
	// wsSendBufferSize is the per-client outbound queue length. Events for
	// a client whose queue is full are dropped.
	wsSendBufferSize = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// wsChannels lists the event channels a client may subscribe to.
var wsChannels = map[string]struct{}{
	dispatch.EventCommand: {},
	EventConfigChanged:    {},
}

// WSMessage is the envelope for every frame exchanged with a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of a subscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame with its payload left undecoded until the
// type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans blind events out to connected WebSocket clients. It satisfies
// dispatch.EventHub.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	closed        bool
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware decides which origins reach the handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Zero configuration values fall back to an 8 KiB
// message limit, 30 s pings and a 10 s pong timeout.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its queue. Calling it twice is safe.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeWS(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(channel, data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", sent)
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
//
// Query parameters:
//   - channels: comma-separated channels to subscribe to on connect;
//     unknown names are ignored
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		ch = strings.TrimSpace(ch)
		if _, ok := wsChannels[ch]; ok {
			c.subscriptions[ch] = struct{}{}
		}
	}

	s.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

// readDeadline is how long the connection may stay silent before the
// client is dropped.
func (h *Hub) readDeadline() time.Duration {
	return time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.readDeadline()))
	}
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(time.Duration(c.hub.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		deadline := time.Now().Add(time.Duration(c.hub.cfg.PongTimeout) * time.Second)
		c.conn.SetWriteDeadline(deadline) //nolint:errcheck // write error is checked below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle answers one inbound frame.
func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(req.ID, WSTypeError, errorPayload("invalid subscribe payload"))
			return
		}
		for _, ch := range sub.Channels {
			if _, ok := wsChannels[ch]; !ok {
				c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+ch))
				return
			}
		}
		c.mu.Lock()
		for _, ch := range sub.Channels {
			c.subscriptions[ch] = struct{}{}
		}
		c.mu.Unlock()
		c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels)
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

// enqueue queues data when the client is subscribed to channel and still
// open. It reports whether the data was queued.
func (c *WSClient) enqueue(channel string, data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	if channel != "" {
		if _, ok := c.subscriptions[channel]; !ok {
			return false
		}
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue once.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeWS(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue("", data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

// encodeWS stamps msg with the current time and marshals it.
func encodeWS(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
