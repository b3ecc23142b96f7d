// Package ws pushes odds, detections and executions to browser clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbbot/internal/bus"
	"github.com/alanyoungcy/arbbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message types carried in the envelope.
const (
	TypeOddsUpdate   = "odds_update"
	TypeArbDetection = "arb_detection"
	TypeArbExecution = "arb_execution"
)

var allTypes = []string{TypeOddsUpdate, TypeArbDetection, TypeArbExecution}

// Envelope is the frame sent to clients.
type Envelope struct {
	MessageType string          `json:"message_type"`
	Contents    json.RawMessage `json:"contents"`
}

// Encode validates payload against the schema of messageType and wraps it in
// an Envelope.
func Encode(messageType string, payload []byte) ([]byte, error) {
	if err := validate(messageType, payload); err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{MessageType: messageType, Contents: payload})
}

func validate(messageType string, payload []byte) error {
	switch messageType {
	case TypeOddsUpdate:
		_, err := domain.DecodeOddsUpdate(payload)
		return err
	case TypeArbDetection:
		rec, err := domain.DecodeArbRecord(payload)
		if err != nil {
			return err
		}
		if rec.Status != domain.ArbStatusDetected {
			return fmt.Errorf("%w: detection with status %q", domain.ErrInvalidEvent, rec.Status)
		}
		return nil
	case TypeArbExecution:
		rec, err := domain.DecodeArbRecord(payload)
		if err != nil {
			return err
		}
		if !rec.Status.Terminal() {
			return fmt.Errorf("%w: execution with status %q", domain.ErrInvalidEvent, rec.Status)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidEvent, messageType)
	}
}

// originChecker accepts requests without an Origin header and those whose
// origin is listed. An empty list or "*" accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return o == "*" || strings.EqualFold(o, origin)
		})
	}
}

// Config wires a Hub to the bus channels it relays.
type Config struct {
	Bus              domain.SignalBus
	OddsChannel      string
	DetectionChannel string
	ExecutionChannel string
	AllowedOrigins   []string
	RetryBackoff     time.Duration
	Logger           *slog.Logger
}

type broadcastMsg struct {
	messageType string
	data        []byte
}

// Hub fans bus messages out to connected clients.
type Hub struct {
	cfg        Config
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when the loop exits
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		logger: logger.With(slog.String("component", "ws_hub")),
	}
}

// Run relays the three channels to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	routes := map[string]string{
		h.cfg.OddsChannel:      TypeOddsUpdate,
		h.cfg.DetectionChannel: TypeArbDetection,
		h.cfg.ExecutionChannel: TypeArbExecution,
	}
	for channel, messageType := range routes {
		listener := bus.NewListener(h.cfg.Bus, channel, h.cfg.RetryBackoff, h.logger)
		g.Go(func() error {
			return listener.Run(gctx, h.relay(messageType))
		})
	}
	g.Go(func() error { return h.loop(gctx) })
	return g.Wait()
}

// relay validates and wraps a payload, then queues it for broadcast.
func (h *Hub) relay(messageType string) bus.Handler {
	return func(ctx context.Context, payload []byte) error {
		data, err := Encode(messageType, payload)
		if err != nil {
			return fmt.Errorf("ws: %s: %w", messageType, err)
		}
		select {
		case h.broadcast <- broadcastMsg{messageType: messageType, data: data}:
		case <-ctx.Done():
		}
		return nil
	}
}

func (h *Hub) loop(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.messageType) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws dropping message for slow client",
						slog.String("message_type", msg.messageType),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client for every message
// type.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(allTypes)),
	}
	for _, t := range allTypes {
		c.subs[t] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// subscribeMsg lets a client narrow or widen the message types it receives.
type subscribeMsg struct {
	Action string   `json:"action"` // subscribe | unsubscribe
	Types  []string `json:"types"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range msg.Types {
		switch msg.Action {
		case "subscribe":
			c.subs[t] = true
		case "unsubscribe":
			delete(c.subs, t)
		}
	}
}

func (c *client) isSubscribed(messageType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[messageType]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
