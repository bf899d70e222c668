// Package ws bridges the Redis signal bus to WebSocket clients so the front
// end sees fresh snapshots without polling.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predictswipe/predictd/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxFrameSize   = 1024
	sessionBacklog = 64
)

// snapshotChannel is the bus channel the watcher publishes on.
const snapshotChannel = "snapshots"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS middleware.
		return true
	},
}

// session is one connected WebSocket client.
type session struct {
	conn    *websocket.Conn
	outbox  chan []byte
	hub     *Hub
	dropped bool
}

// Hub fans snapshot-change messages from the signal bus out to every
// connected WebSocket client. Clients only listen; inbound frames are read
// solely to service pings and close handshakes.
type Hub struct {
	mu       sync.Mutex
	sessions map[*session]struct{}

	attach   chan *session
	detach   chan *session
	messages chan []byte

	bus    domain.SignalBus
	logger *slog.Logger
}

// NewHub creates a Hub bridging the given SignalBus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*session]struct{}),
		attach:   make(chan *session),
		detach:   make(chan *session),
		messages: make(chan []byte, 256),
		bus:      bus,
		logger:   logger.With(slog.String("component", "ws_hub")),
	}
}

// Run drives the hub until the context is cancelled. Call it in its own
// goroutine.
func (h *Hub) Run(ctx context.Context) error {
	go h.pumpBus(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				close(s.outbox)
				delete(h.sessions, s)
			}
			h.mu.Unlock()
			return ctx.Err()

		case s := <-h.attach:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case s := <-h.detach:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.outbox)
			}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.messages:
			h.mu.Lock()
			for s := range h.sessions {
				select {
				case s.outbox <- msg:
				default:
					// Backlog full; this client is too slow to keep up.
					if !s.dropped {
						s.dropped = true
						h.logger.Warn("ws: dropping messages for slow client")
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// pumpBus forwards everything published on the snapshot channel into the
// hub's broadcast queue.
func (h *Hub) pumpBus(ctx context.Context) {
	feed, err := h.bus.Subscribe(ctx, snapshotChannel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", snapshotChannel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed", slog.String("channel", snapshotChannel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-feed:
			if !ok {
				h.logger.Warn("ws: bus subscription closed",
					slog.String("channel", snapshotChannel),
				)
				return
			}
			h.messages <- data
		}
	}
}

// HandleWS upgrades the request and attaches the new client to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		conn:   conn,
		outbox: make(chan []byte, sessionBacklog),
		hub:    h,
	}
	h.attach <- s

	go s.writeLoop()
	go s.readLoop()
}

// readLoop drains the connection so pong and close frames are processed.
func (s *session) readLoop() {
	defer func() {
		s.hub.detach <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writeLoop sends broadcast messages and keepalive pings.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.outbox:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
