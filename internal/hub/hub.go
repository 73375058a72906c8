// Package hub maintains the set of connected client sessions and fans out
// store mutations to them. New sessions receive one full snapshot; every
// accepted mutation afterwards arrives as a single-chat update.
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wachat/internal/bus"
	"wachat/internal/status"
	"wachat/internal/store"
)

// Frame types pushed to clients.
const (
	FrameChats       = "chats"
	FrameChatUpdated = "chat-updated"
	FrameChatCreated = "chat-created"
	FrameStatus      = "status"
	FrameQR          = "qr"
	FrameAuthFailure = "auth-failure"
)

// Frame is a single server-to-client push.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// StatusPayload mirrors the provider connection state for clients.
type StatusPayload struct {
	Ready         bool   `json:"ready"`
	Authenticated bool   `json:"authenticated"`
	QRCode        string `json:"qrCode,omitempty"`
}

// Conn is a session's outbound transport. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one connected client. Its outbound queue is bounded: when it
// overflows, pending updates are dropped and the next broadcast replaces
// them with a fresh full snapshot.
type Session struct {
	ID    string
	conn  Conn
	out   chan Frame
	stale bool
	done  chan struct{}
}

// Hub coordinates sessions. Register and the broadcast loop share one lock,
// so a connecting session's snapshot always reflects every mutation whose
// push it might miss, and never lags a push it will receive.
type Hub struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	store     *store.Store
	bus       *bus.Bus
	logger    *zap.Logger
	queueSize int
	cancel    context.CancelFunc

	lastState status.State
	lastQR    string
}

// New creates a hub. queueSize bounds each session's outbound queue.
func New(s *store.Store, b *bus.Bus, queueSize int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 8 {
		queueSize = 64
	}
	return &Hub{
		sessions:  make(map[string]*Session),
		store:     s,
		bus:       b,
		logger:    logger,
		queueSize: queueSize,
		lastState: status.Booting,
	}
}

// Run starts the broadcast loop consuming domain events from the bus.
func (h *Hub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("", 1024)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the broadcast loop and closes every session.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.out)
		delete(h.sessions, id)
	}
}

// Register adds a connected client. The full chat snapshot and the current
// provider status are queued before the session can observe any update push.
func (h *Hub) Register(conn Conn) *Session {
	s := &Session{
		ID:   uuid.New().String(),
		conn: conn,
		out:  make(chan Frame, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	s.out <- Frame{Type: FrameChats, Payload: h.store.List()}
	s.out <- Frame{Type: FrameStatus, Payload: h.statusLocked()}
	h.sessions[s.ID] = s
	h.mu.Unlock()

	go h.writePump(s)
	h.logger.Info("client session connected", zap.String("session", s.ID))
	return s
}

// Unregister removes a session. Sessions hold no store state, so nothing
// else needs cleaning up. Safe to call twice.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		close(s.out)
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if ok {
		h.logger.Info("client session disconnected", zap.String("session", id))
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Status returns the current provider status payload.
func (h *Hub) Status() StatusPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

// QRCode returns the most recent pairing code, or empty.
func (h *Hub) QRCode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastQR
}

func (h *Hub) statusLocked() StatusPayload {
	return StatusPayload{
		Ready:         h.lastState == status.Ready,
		Authenticated: h.lastState == status.Ready || h.lastState == status.Reconnecting,
		QRCode:        h.lastQR,
	}
}

func (h *Hub) handleEvent(evt bus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch evt.Kind {
	case bus.KindChatUpdated:
		h.broadcastLocked(Frame{Type: FrameChatUpdated, Payload: evt.Payload})
	case bus.KindChatCreated:
		h.broadcastLocked(Frame{Type: FrameChatCreated, Payload: evt.Payload})
	case bus.KindProviderQR:
		if code, ok := evt.Payload.(string); ok {
			h.lastQR = code
		}
		h.broadcastLocked(Frame{Type: FrameQR, Payload: h.lastQR})
	case bus.KindProviderState:
		if change, ok := evt.Payload.(status.Change); ok {
			h.lastState = change.To
			if change.To == status.Ready {
				h.lastQR = ""
			}
		}
		h.broadcastLocked(Frame{Type: FrameStatus, Payload: h.statusLocked()})
	case bus.KindProviderAuthFailed:
		h.broadcastLocked(Frame{Type: FrameAuthFailure, Payload: evt.Payload})
	}
}

// broadcastLocked fans a frame out to every session. A full queue marks the
// session stale; once room frees up it gets a fresh snapshot instead of the
// updates it missed.
func (h *Hub) broadcastLocked(f Frame) {
	for _, s := range h.sessions {
		if s.stale {
			select {
			case s.out <- Frame{Type: FrameChats, Payload: h.store.List()}:
				s.stale = false
			default:
				continue
			}
			if f.Type == FrameChatUpdated || f.Type == FrameChatCreated {
				// The snapshot already includes this mutation.
				continue
			}
		}
		select {
		case s.out <- f:
		default:
			s.stale = true
		}
	}
}

func (h *Hub) writePump(s *Session) {
	defer func() {
		_ = s.conn.Close()
		close(s.done)
	}()
	for f := range s.out {
		if err := s.conn.WriteJSON(f); err != nil {
			h.logger.Warn("session write failed", zap.String("session", s.ID), zap.Error(err))
			h.Unregister(s.ID)
			return
		}
	}
}
