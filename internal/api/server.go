// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the HTTP surface: push endpoints, the websocket
// upgrade, probes and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/pushd/internal/api/middleware"
	"github.com/ManuGH/pushd/internal/health"
	"github.com/ManuGH/pushd/internal/hub"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultMaxPayloadBytes = 4096

// Config tunes the HTTP surface.
type Config struct {
	// PushRequests per PushWindow per client IP on push endpoints.
	PushRequests int
	PushWindow   time.Duration
	// MaxPayloadBytes caps push bodies.
	MaxPayloadBytes int64
	// TracingService names HTTP spans; empty disables HTTP tracing.
	TracingService string
}

// Deps are the collaborators the router serves.
type Deps struct {
	Store     store.Store
	Hub       *hub.Hub
	Health    *health.Manager
	WebSocket http.Handler
	Clock     func() time.Time
}

// Server owns the HTTP handlers.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New builds a server. Deps.Store and Deps.Hub are required.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	return &Server{cfg: cfg, deps: deps, logger: xglog.WithComponent("api")}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// The upgrade hijacks the connection; keep it outside response wrappers.
	if s.deps.WebSocket != nil {
		r.Handle("/", s.deps.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics())
		r.Use(middleware.AccessLog)
		if s.cfg.TracingService != "" {
			r.Use(middleware.OTelHTTP(s.cfg.TracingService))
		}

		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
		r.Handle("/metrics", promhttp.Handler())

		r.With(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: s.cfg.PushRequests,
			WindowSize:   s.cfg.PushWindow,
			LimitType:    "push",
		})).Post(pushRoute, s.handlePush)
	})
	return r
}
