// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ws is the websocket transport: it owns the socket lifecycle and
// feeds decoded client frames and hub notifications to one session per
// connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/pushd/internal/hub"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/ManuGH/pushd/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	defaultReadLimit    = 64 << 10
	defaultWriteTimeout = 10 * time.Second
	stashTimeout        = 5 * time.Second
)

// Config wires the transport.
type Config struct {
	Decider   session.Decider
	Endpoints session.Endpoints
	Hub       *hub.Hub

	// ClientRate and ClientBurst bound client messages per connection.
	// A zero rate disables the limit.
	ClientRate  rate.Limit
	ClientBurst int

	ReadLimit      int64
	WriteTimeout   time.Duration
	OriginPatterns []string
}

// Handler upgrades requests to websocket push sessions.
type Handler struct {
	cfg    Config
	logger zerolog.Logger

	limitMu     sync.RWMutex
	clientRate  rate.Limit
	clientBurst int
}

// NewHandler returns a websocket handler for cfg.
func NewHandler(cfg Config) *Handler {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Handler{
		cfg:         cfg,
		logger:      xglog.WithComponent("transport"),
		clientRate:  cfg.ClientRate,
		clientBurst: cfg.ClientBurst,
	}
}

// SetClientRate changes the client message limit for new connections.
func (h *Handler) SetClientRate(r rate.Limit, burst int) {
	h.limitMu.Lock()
	h.clientRate, h.clientBurst = r, burst
	h.limitMu.Unlock()
}

func (h *Handler) newLimiter() *rate.Limiter {
	h.limitMu.RLock()
	defer h.limitMu.RUnlock()
	if h.clientRate <= 0 {
		return nil
	}
	return rate.NewLimiter(h.clientRate, h.clientBurst)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limiter := h.newLimiter()
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str(xglog.FieldRemote, r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	c.SetReadLimit(h.cfg.ReadLimit)

	id := uuid.NewString()
	ctx := xglog.ContextWithSessionID(r.Context(), id)
	logger := h.logger.With().Str(xglog.FieldSessionID, id).Str(xglog.FieldRemote, r.RemoteAddr).Logger()

	conn := &connection{
		cfg:     h.cfg,
		ws:      c,
		limiter: limiter,
		logger:  logger,
	}
	conn.session = session.New(session.Config{
		ID:        id,
		Decider:   h.cfg.Decider,
		Emitter:   session.EmitterFunc(conn.emit),
		Endpoints: h.cfg.Endpoints,
	})

	// Reads outlive run: cancelling an in-flight read tears the socket down,
	// so the reader stops only after the close handshake.
	readCtx, stopReading := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReading()

	logger.Debug().Msg("connection opened")
	status, reason := conn.run(ctx, readCtx)
	_ = c.Close(status, reason)
	logger.Debug().Int("close_status", int(status)).Str("reason", reason).Msg("connection closed")
}

type connection struct {
	cfg     Config
	ws      *websocket.Conn
	session *session.Session
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type frame struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// run drives the session until the connection must close and returns the
// close status to send.
func (c *connection) run(ctx, readCtx context.Context) (websocket.StatusCode, string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan frame)
	go c.readLoop(readCtx, frames)

	var (
		sub      *hub.Subscription
		notes    <-chan protocol.Notification
		takeover <-chan struct{}
	)
	defer func() { c.finish(ctx, sub) }()

	for {
		select {
		case <-ctx.Done():
			return websocket.StatusGoingAway, "server shutting down"

		case <-takeover:
			return websocket.StatusNormalClosure, "superseded by a newer connection"

		case n := <-notes:
			if err := c.session.Notify(ctx, n); err != nil {
				c.logger.Warn().Err(err).Msg("notification not delivered")
				return websocket.StatusInternalError, "write failed"
			}

		case f := <-frames:
			if f.err != nil {
				return c.readFailed(f.err)
			}
			if f.typ != websocket.MessageText {
				c.logger.Warn().Int("frame_type", int(f.typ)).Msg("non-text client frame")
				return websocket.StatusUnsupportedData, "expected text frames"
			}
			if c.limiter != nil && !c.limiter.Allow() {
				metrics.IncRateLimitExceeded("client")
				c.logger.Warn().Msg("client message rate exceeded")
				return websocket.StatusPolicyViolation, "rate limit exceeded"
			}
			msg, err := protocol.DecodeClientMessage(f.data)
			if err != nil {
				c.logger.Warn().Err(err).Msg("invalid client message")
				return websocket.StatusPolicyViolation, "invalid message"
			}
			if err := c.session.Handle(ctx, msg); err != nil {
				return c.handleFailed(err)
			}
			if sub == nil && c.cfg.Hub != nil {
				if uaid, ok := c.session.UAID(); ok {
					sub = c.cfg.Hub.Subscribe(uaid)
					notes, takeover = sub.C(), sub.Done()
				}
			}
		}
	}
}

// finish ends the hub subscription and stores what the client never
// acknowledged, including notifications still buffered for this connection.
func (c *connection) finish(ctx context.Context, sub *hub.Subscription) {
	defer c.session.Close()

	var buffered []protocol.Notification
	if sub != nil {
		buffered = sub.Close()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stashTimeout)
	defer cancel()
	if err := c.session.Stash(ctx, buffered); err != nil {
		c.logger.Warn().Err(err).Int("buffered", len(buffered)).Msg("undelivered notifications dropped")
	}
}

func (c *connection) readLoop(ctx context.Context, frames chan<- frame) {
	for {
		typ, data, err := c.ws.Read(ctx)
		select {
		case frames <- frame{typ: typ, data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *connection) readFailed(err error) (websocket.StatusCode, string) {
	if status := websocket.CloseStatus(err); status != -1 {
		c.logger.Debug().Int("client_status", int(status)).Msg("client closed connection")
		return websocket.StatusNormalClosure, ""
	}
	c.logger.Debug().Err(err).Msg("read failed")
	return websocket.StatusNormalClosure, ""
}

func (c *connection) handleFailed(err error) (websocket.StatusCode, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return websocket.StatusGoingAway, "server shutting down"
	case errors.Is(err, session.ErrIllegalTransition):
		c.logger.Warn().Err(err).Msg("protocol violation")
		return websocket.StatusPolicyViolation, "protocol violation"
	case errors.Is(err, session.ErrTerminate):
		c.logger.Info().Err(err).Msg("session terminated")
		return websocket.StatusPolicyViolation, "session rejected"
	default:
		c.logger.Warn().Err(err).Msg("session failed")
		return websocket.StatusInternalError, "internal error"
	}
}

func (c *connection) emit(ctx context.Context, msg protocol.ServerMessage) error {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, json.RawMessage(data))
}
