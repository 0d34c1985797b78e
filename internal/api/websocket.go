package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/infrastructure/logging"
	"github.com/nerrad567/acs-auto/internal/macro"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// RunsChannel carries RunEvent messages for every macro run.
const RunsChannel = "runs"

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsDropLogEvery throttles the slow-client warning.
	wsDropLogEvery = 100
)

// WSMessage is a message sent to a websocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client. The payload is decoded
// by the handler of its type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// RunEvent is the payload of RunsChannel events.
type RunEvent struct {
	Event string    `json:"event"`
	Run   macro.Run `json:"run"`
}

// Hub fans events out to websocket clients by channel.
//
// Channels are declared up front. A channel may carry a snapshot source
// whose value is sent to each new subscriber, so a panel that connects
// mid-run starts from the current state instead of waiting for the next
// change. Hub implements macro.RunListener and publishes on RunsChannel.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	channels map[string]func() any
	lastRun  *RunEvent
}

// NewHub creates a hub with RunsChannel declared.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
		channels: make(map[string]func() any),
	}
	h.channels[RunsChannel] = h.lastRunSnapshot
	return h
}

// SetSnapshot declares channel with fn as its current-state source. fn may
// be nil for a channel without one.
func (h *Hub) SetSnapshot(channel string, fn func() any) {
	h.mu.Lock()
	h.channels[channel] = fn
	h.mu.Unlock()
}

// Channels lists the declared channels in sorted order.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		out = append(out, ch)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast sends payload to the clients subscribed to channel. It never
// blocks: a client whose buffer is full misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := eventMessage(channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.subscribed(channel) && c.enqueue(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// RunStarted implements macro.RunListener.
func (h *Hub) RunStarted(run *macro.Run) {
	h.publishRun("started", run)
}

// RunFinished implements macro.RunListener.
func (h *Hub) RunFinished(run *macro.Run) {
	h.publishRun("finished", run)
}

func (h *Hub) publishRun(event string, run *macro.Run) {
	ev := RunEvent{Event: event, Run: *run.Clone()}
	h.mu.Lock()
	h.lastRun = &ev
	h.mu.Unlock()
	h.Broadcast(RunsChannel, ev)
}

func (h *Hub) lastRunSnapshot() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastRun == nil {
		return nil
	}
	return *h.lastRun
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", c.subject)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n, "subject", c.subject)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// unknown returns the channels that were never declared.
func (h *Hub) unknown(channels []string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for _, ch := range channels {
		if _, ok := h.channels[ch]; !ok {
			out = append(out, ch)
		}
	}
	return out
}

// current returns the snapshot of channel, if it has one with a value.
func (h *Hub) current(channel string) (any, bool) {
	h.mu.RLock()
	fn := h.channels[channel]
	h.mu.RUnlock()
	if fn == nil {
		return nil, false
	}
	v := fn()
	return v, v != nil
}

func eventMessage(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// wsClient is one connected panel or tool.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // token subject, empty when auth is disabled

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	channels map[string]struct{}
	dropped  int
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		subject:  subject,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleWebSocket upgrades the connection. Authentication happens in
// authMiddleware via the token query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	var subject string
	if claims := claimsFrom(r); claims != nil {
		subject = claims.Subject
	}
	client := newWSClient(s.hub, conn, subject)
	s.hub.register(client)

	go client.writeLoop(s.wsCfg)
	go client.readLoop(s.wsCfg)
}

// readLoop dispatches client requests until the connection fails.
func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	}

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	if err := extend(); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "subject", c.subject)
			}
			return
		}
		// Browsers do not always answer protocol pings; any message counts.
		if err := extend(); err != nil {
			return
		}
		c.dispatch(data)
	}
}

// writeLoop drains the send buffer and pings on the configured interval.
func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, nil)
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

func (c *wsClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(req, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(req, false)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// updateSubscriptions adds or removes the listed channels. A subscribe
// naming an undeclared channel changes nothing. Each newly subscribed
// channel with a snapshot gets one event after the response.
func (c *wsClient) updateSubscriptions(req wsRequest, subscribe bool) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(req.ID, "payload must list channels")
		return
	}
	if subscribe {
		if unknown := c.hub.unknown(sub.Channels); len(unknown) > 0 {
			c.sendError(req.ID, "unknown channels: "+strings.Join(unknown, ", "))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	if !subscribe {
		c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
		return
	}

	c.hub.logger.Info("websocket client subscribed", "channels", sub.Channels, "subject", c.subject)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
	for _, ch := range sub.Channels {
		v, ok := c.hub.current(ch)
		if !ok {
			continue
		}
		if data, err := eventMessage(ch, v); err == nil {
			c.enqueue(data)
		}
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// enqueue hands data to the write loop without blocking. It reports false
// when the client is gone or its buffer is full.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.dropped++
		if c.dropped%wsDropLogEvery == 1 {
			c.hub.logger.Warn("websocket client too slow, events dropped", "dropped", c.dropped, "subject", c.subject)
		}
		return false
	}
}

// close ends the write loop. Safe to call more than once.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *wsClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
