package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/simulation"
	"driftpursuit/rewind/internal/timeline"
)

const (
	// clientSendBuffer bounds queued frames per client before it is dropped as slow.
	clientSendBuffer = 256
	writeWait        = 5 * time.Second
)

var errHubFull = errors.New("client limit reached")

// Commander accepts control commands for the tick goroutine.
type Commander interface {
	Enqueue(cmd input.Command) error
}

// serverFrame is every message the hub writes to clients.
type serverFrame struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"`
	Markers   []timeline.Marker  `json:"markers,omitempty"`
	Status    *simulation.Status `json:"status,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Sequence  uint64             `json:"seq,omitempty"`
	Error     string             `json:"error,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

// Client is one connected viewer.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	id      string
	subject string
}

// HubOption customises hub construction.
type HubOption func(*Hub)

// WithHubLogger attaches a structured logger.
func WithHubLogger(logger *logging.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithAllowedOrigins restricts upgrades to the listed origins; empty allows all.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) { h.origins = append([]string(nil), origins...) }
}

// WithMaxClients caps concurrent connections; zero disables the cap.
func WithMaxClients(limit int) HubOption {
	return func(h *Hub) { h.maxClients = limit }
}

// WithPayloadLimit caps inbound frame size.
func WithPayloadLimit(limit int64) HubOption {
	return func(h *Hub) { h.maxPayload = limit }
}

// WithPingInterval sets the keepalive cadence.
func WithPingInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.pingInterval = interval
		}
	}
}

// WithWebsocketAuthenticator wires a custom authenticator into the hub.
func WithWebsocketAuthenticator(authenticator websocketAuthenticator) HubOption {
	return func(h *Hub) {
		if authenticator != nil {
			h.auth = authenticator
		}
	}
}

// WithGate filters control frames before they reach the session.
func WithGate(gate *input.Gate) HubOption {
	return func(h *Hub) { h.gate = gate }
}

// Hub fans status and timeline frames out to viewers and forwards their control frames.
type Hub struct {
	log          *logging.Logger
	commands     Commander
	gate         *input.Gate
	auth         websocketAuthenticator
	upgrader     websocket.Upgrader
	origins      []string
	maxClients   int
	maxPayload   int64
	pingInterval time.Duration
	started      time.Time

	lock       sync.Mutex
	clients    map[*Client]bool
	pending    atomic.Int32
	startupErr atomic.Pointer[error]
	broadcasts atomic.Uint64
}

// NewHub constructs a hub that forwards accepted commands to commands.
func NewHub(commands Commander, opts ...HubOption) *Hub {
	hub := &Hub{
		log:          logging.L(),
		commands:     commands,
		auth:         allowAllAuthenticator{},
		pingInterval: 30 * time.Second,
		started:      time.Now(),
		clients:      make(map[*Client]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	hub.log = hub.log.Named("hub")
	hub.upgrader = websocket.Upgrader{CheckOrigin: hub.checkOrigin}
	return hub
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	return slices.Contains(h.origins, origin)
}

// SnapshotClientCounts reports connected and upgrading clients.
func (h *Hub) SnapshotClientCounts() (clients, pending int) {
	h.lock.Lock()
	clients = len(h.clients)
	h.lock.Unlock()
	return clients, int(h.pending.Load())
}

// StartupError returns the first fatal listener error, if any.
func (h *Hub) StartupError() error {
	if err := h.startupErr.Load(); err != nil {
		return *err
	}
	return nil
}

// SetStartupError records a listener failure for readiness checks.
func (h *Hub) SetStartupError(err error) {
	if err != nil {
		h.startupErr.CompareAndSwap(nil, &err)
	}
}

// Uptime reports how long the hub has been running.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }

// Show implements timeline.Sink by broadcasting one entity's markers.
func (h *Hub) Show(id string, markers []timeline.Marker) {
	h.broadcastFrame(serverFrame{Type: "timeline", ID: id, Markers: markers})
}

// Clear implements timeline.Sink.
func (h *Hub) Clear(id string) {
	h.broadcastFrame(serverFrame{Type: "timeline_clear", ID: id})
}

// PublishStatus broadcasts the latest session status.
func (h *Hub) PublishStatus(status simulation.Status) {
	h.broadcastFrame(serverFrame{Type: "status", Status: &status})
}

func (h *Hub) broadcastFrame(frame serverFrame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("encode frame failed", logging.String("type", frame.Type), logging.Error(err))
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			//1.- Slow readers are dropped so the tick goroutine never blocks on a socket.
			close(c.send)
			delete(h.clients, c)
			h.log.Warn("dropping slow client", logging.String("client_id", c.id))
		}
	}
	h.broadcasts.Add(1)
}

func (h *Hub) register(c *Client) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		return errHubFull
	}
	h.clients[c] = true
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.lock.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.lock.Unlock()
	h.gate.Forget(c.id)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	h.pending.Add(1)
	defer h.pending.Add(-1)

	subject, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Warn("websocket auth rejected", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, clientSendBuffer), id: uuid.NewString(), subject: subject}
	if err := h.register(client); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.log.Info("client connected", logging.String("client_id", client.id), logging.String("subject", subject))

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.log.Info("client disconnected", logging.String("client_id", c.id))
	}()
	if h.maxPayload > 0 {
		c.conn.SetReadLimit(h.maxPayload)
	}
	pongWait := h.pingInterval * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read error", logging.String("client_id", c.id), logging.Error(err))
			}
			return
		}
		if reply, ok := h.handleControl(c.id, msg); ok {
			h.reply(c, reply)
		}
	}
}

// handleControl runs one inbound frame through the gate and the session queue.
func (h *Hub) handleControl(clientID string, msg []byte) (serverFrame, bool) {
	envelope, err := input.DecodeEnvelope(msg)
	if err != nil {
		h.gate.Reject(clientID)
		return serverFrame{Type: "error", Error: err.Error()}, true
	}
	frame := input.Frame{ClientID: clientID, Sequence: envelope.Sequence}
	if envelope.SentAtMs > 0 {
		frame.SentAt = time.UnixMilli(envelope.SentAtMs)
	}
	if h.gate != nil {
		if decision := h.gate.Evaluate(frame); !decision.Accepted {
			return serverFrame{Type: "dropped", RequestID: envelope.RequestID, Sequence: envelope.Sequence, Reason: decision.Reason.String()}, true
		}
	}
	if err := h.commands.Enqueue(envelope.Command); err != nil {
		if errors.Is(err, input.ErrUnknownAction) || errors.Is(err, input.ErrInvalidArgument) {
			h.gate.Reject(clientID)
		}
		return serverFrame{Type: "error", RequestID: envelope.RequestID, Sequence: envelope.Sequence, Error: err.Error()}, true
	}
	if envelope.RequestID == "" {
		return serverFrame{}, false
	}
	return serverFrame{Type: "ack", RequestID: envelope.RequestID, Sequence: envelope.Sequence}, true
}

func (h *Hub) reply(c *Client, frame serverFrame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
