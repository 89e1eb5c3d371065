// Package ws serves the student live feed: a websocket endpoint that runs
// the polling loop server-side, draining the message bus and reporting
// block-state changes on a fixed tick. It is glue over the bus and the
// registry; neither component's contract changes.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfinfoproyectos/seiac-live/internal/block"
	"github.com/jfinfoproyectos/seiac-live/internal/bus"
	"github.com/jfinfoproyectos/seiac-live/internal/database"
	"github.com/jfinfoproyectos/seiac-live/internal/session"
	"github.com/jfinfoproyectos/seiac-live/pkg/types"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// origin policy belongs to the deployment's reverse proxy
		return true
	},
}

// Frame types pushed to the client.
const (
	FrameMessages = "messages"
	FrameBlock    = "block"
)

// Frame is one JSON push to the client.
type Frame struct {
	Type        string        `json:"type"`
	Messages    []bus.Message `json:"messages,omitempty"`
	Blocked     bool          `json:"blocked"`
	RemainingMs int64         `json:"remaining_ms"`
}

// Handler upgrades student connections and runs their feed loops.
type Handler struct {
	sessions     *session.Manager
	bus          *bus.Bus
	blocks       *block.Registry
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewHandler creates a feed handler.
func NewHandler(sessions *session.Manager, b *bus.Bus, blocks *block.Registry, pollInterval time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		sessions:     sessions,
		bus:          b,
		blocks:       blocks,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "ws").Logger(),
	}
}

// HandleFeed is the GET /ws?code=&email= endpoint.
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	email := r.URL.Query().Get("email")

	if !types.IsValidUniqueCode(code) {
		http.Error(w, "invalid access code", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(email) {
		http.Error(w, "invalid participant email", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.GetByCode(r.Context(), code)
	if errors.Is(err, database.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}
	if !sess.Active() {
		http.Error(w, "session already ended", http.StatusConflict)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	conn := NewConnection(raw)
	key := types.ParticipantKey(code, email)
	h.log.Info().Str("key", key).Msg("feed connected")

	go h.readLoop(conn)
	h.feedLoop(r.Context(), conn, key)

	h.log.Info().Str("key", key).Msg("feed disconnected")
}

// readLoop discards client frames; its job is noticing the peer going away.
func (h *Handler) readLoop(conn *Connection) {
	defer func() { _ = conn.Close() }()
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// feedLoop ticks at the poll interval: drain the bucket, push messages,
// push block transitions. The initial block state is sent immediately so a
// reconnecting client sees its countdown without waiting a tick.
func (h *Handler) feedLoop(ctx context.Context, conn *Connection, key string) {
	defer func() { _ = conn.Close() }()

	lastBlocked := h.pushBlockState(conn, key)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if msgs := h.bus.Consume(key); len(msgs) > 0 {
				frame := Frame{Type: FrameMessages, Messages: msgs}
				if st := h.blocks.Status(key); st.Blocked {
					frame.Blocked = true
					frame.RemainingMs = st.Remaining.Milliseconds()
				}
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}

			st := h.blocks.Status(key)
			if st.Blocked != lastBlocked {
				lastBlocked = st.Blocked
				if err := conn.WriteJSON(Frame{
					Type:        FrameBlock,
					Blocked:     st.Blocked,
					RemainingMs: st.Remaining.Milliseconds(),
				}); err != nil {
					return
				}
			}

		case <-conn.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// pushBlockState sends the current block frame and returns the state.
func (h *Handler) pushBlockState(conn *Connection, key string) bool {
	st := h.blocks.Status(key)
	_ = conn.WriteJSON(Frame{
		Type:        FrameBlock,
		Blocked:     st.Blocked,
		RemainingMs: st.Remaining.Milliseconds(),
	})
	return st.Blocked
}
