// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"strings"

	"github.com/ManuGH/pushd/internal/validate"
)

var (
	storeBackends = []string{"memory", "redis", "sqlite", "badger"}
	exporters     = []string{"grpc", "http"}
)

// Validate checks cfg and reports every problem at once.
func Validate(cfg Config) error {
	v := validate.New()

	v.ListenAddr("listen_addr", cfg.ListenAddr)
	v.URL("endpoint_url", cfg.EndpointURL, []string{"http", "https"})
	v.NonNegative("max_connections", cfg.MaxConnections)
	v.PositiveDuration("shutdown_timeout", cfg.ShutdownTimeout)

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		v.AddError("log.level", "must be one of trace, debug, info, warn, error", cfg.Log.Level)
	}

	v.OneOf("store.backend", cfg.Store.Backend, storeBackends)
	switch cfg.Store.Backend {
	case "redis":
		v.NotEmpty("store.redis_addr", cfg.Store.RedisAddr)
		v.Range("store.redis_db", cfg.Store.RedisDB, 0, 15)
	case "sqlite":
		v.NotEmpty("store.path", cfg.Store.Path)
	}

	v.Range("decision.workers", cfg.Decision.Workers, 1, 256)
	v.Range("decision.message_limit", cfg.Decision.MessageLimit, 1, 10000)

	if cfg.RateLimit.ClientRPS < 0 {
		v.AddError("ratelimit.client_rps", "cannot be negative", cfg.RateLimit.ClientRPS)
	}
	if cfg.RateLimit.ClientRPS > 0 {
		v.Positive("ratelimit.client_burst", cfg.RateLimit.ClientBurst)
	}
	v.NonNegative("ratelimit.push_requests", cfg.RateLimit.PushRequests)
	if cfg.RateLimit.PushRequests > 0 {
		v.PositiveDuration("ratelimit.push_window", cfg.RateLimit.PushWindow)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
