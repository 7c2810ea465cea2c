// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ManuGH/pushd/internal/api"
	"github.com/ManuGH/pushd/internal/bridge"
	"github.com/ManuGH/pushd/internal/config"
	"github.com/ManuGH/pushd/internal/daemon"
	"github.com/ManuGH/pushd/internal/decision"
	"github.com/ManuGH/pushd/internal/endpoint"
	"github.com/ManuGH/pushd/internal/health"
	"github.com/ManuGH/pushd/internal/hub"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/ManuGH/pushd/internal/telemetry"
	"github.com/ManuGH/pushd/internal/transport/ws"
	"github.com/ManuGH/pushd/internal/version"
	"golang.org/x/time/rate"
)

const (
	serviceName      = "pushd"
	storePingTimeout = 2 * time.Second
)

// buildApp wires every component described by cfg. ln overrides the listen
// address when non-nil.
func buildApp(ctx context.Context, cfg config.Config, holder *config.Holder, ln net.Listener) (*daemon.App, error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, err := store.Open(store.Config{
		Backend:       cfg.Store.Backend,
		Path:          cfg.Store.Path,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	codec, err := endpoint.NewCodec(cfg.EndpointURL)
	if err != nil {
		_ = st.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	link := bridge.NewLink()
	svc := decision.New(st, decision.Config{
		Workers:      cfg.Decision.Workers,
		MessageLimit: cfg.Decision.MessageLimit,
	})
	hb := hub.New()

	wsHandler := ws.NewHandler(ws.Config{
		Decider:        bridge.New(link),
		Endpoints:      codec,
		Hub:            hb,
		ClientRate:     rate.Limit(cfg.RateLimit.ClientRPS),
		ClientBurst:    cfg.RateLimit.ClientBurst,
		OriginPatterns: cfg.OriginPatterns,
	})

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewPingChecker("store", storePingTimeout, st.Ping))
	healthMgr.RegisterChecker(health.NewChannelChecker("decision", link.Gone()))

	apiCfg := api.Config{
		PushRequests: cfg.RateLimit.PushRequests,
		PushWindow:   cfg.RateLimit.PushWindow,
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = serviceName
	}
	srv := api.New(apiCfg, api.Deps{
		Store:     st,
		Hub:       hb,
		Health:    healthMgr,
		WebSocket: wsHandler,
	})

	mgr, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:      cfg.ListenAddr,
		MaxConnections:  cfg.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, daemon.Deps{Handler: srv.Handler(), Listener: ln})
	if err != nil {
		_ = st.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	// Hooks run in reverse: the link closes first so pending calls resolve,
	// then spans are flushed and the store is closed last.
	mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("link", func(context.Context) error {
		link.Close()
		return nil
	})

	logger := xglog.WithComponent("daemon")
	app := daemon.NewApp(mgr, holder, func(next config.Config) {
		if err := xglog.SetLevel(next.Log.Level); err != nil {
			logger.Warn().Err(err).Str("level", next.Log.Level).Msg("ignoring invalid log level")
		}
		wsHandler.SetClientRate(rate.Limit(next.RateLimit.ClientRPS), next.RateLimit.ClientBurst)
	})
	app.Go("decision", func(ctx context.Context) error { return svc.Run(ctx, link) })

	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("endpoint_url", cfg.EndpointURL).
		Int("workers", cfg.Decision.Workers).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("components wired")
	return app, nil
}
