// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/pushd/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment key.
const EnvPrefix = "PUSHD_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	lowerKey := strings.ToLower(key)
	if strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password") {
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Bool("sensitive", true).
			Msg("using environment variable")
	} else {
		logger.Debug().
			Str("key", key).
			Str("value", value).
			Str("source", "environment").
			Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

// ParseFloat reads a float from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Float64("default", defaultValue).
			Msg("invalid number in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Float64("value", f).Str("source", "environment").Msg("using environment variable")
	return f
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		logger.Debug().Str("key", key).Bool("value", true).Str("source", "environment").Msg("using environment variable")
		return true
	case "false", "0", "no":
		logger.Debug().Str("key", key).Bool("value", false).Str("source", "environment").Msg("using environment variable")
		return false
	default:
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}

// ParseList reads a comma-separated list, dropping empty items.
func ParseList(key string, defaultValue []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyEnv overlays PUSHD_* variables on cfg.
func applyEnv(cfg *Config) {
	cfg.ListenAddr = ParseString(EnvPrefix+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.EndpointURL = ParseString(EnvPrefix+"ENDPOINT_URL", cfg.EndpointURL)
	cfg.MaxConnections = ParseInt(EnvPrefix+"MAX_CONNECTIONS", cfg.MaxConnections)
	cfg.ShutdownTimeout = ParseDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.OriginPatterns = ParseList(EnvPrefix+"ORIGIN_PATTERNS", cfg.OriginPatterns)

	cfg.Log.Level = ParseString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)

	cfg.Store.Backend = ParseString(EnvPrefix+"STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = ParseString(EnvPrefix+"STORE_PATH", cfg.Store.Path)
	cfg.Store.RedisAddr = ParseString(EnvPrefix+"STORE_REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = ParseString(EnvPrefix+"STORE_REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisDB = ParseInt(EnvPrefix+"STORE_REDIS_DB", cfg.Store.RedisDB)

	cfg.Decision.Workers = ParseInt(EnvPrefix+"DECISION_WORKERS", cfg.Decision.Workers)
	cfg.Decision.MessageLimit = ParseInt(EnvPrefix+"DECISION_MESSAGE_LIMIT", cfg.Decision.MessageLimit)

	cfg.RateLimit.ClientRPS = ParseFloat(EnvPrefix+"RATELIMIT_CLIENT_RPS", cfg.RateLimit.ClientRPS)
	cfg.RateLimit.ClientBurst = ParseInt(EnvPrefix+"RATELIMIT_CLIENT_BURST", cfg.RateLimit.ClientBurst)
	cfg.RateLimit.PushRequests = ParseInt(EnvPrefix+"RATELIMIT_PUSH_REQUESTS", cfg.RateLimit.PushRequests)
	cfg.RateLimit.PushWindow = ParseDuration(EnvPrefix+"RATELIMIT_PUSH_WINDOW", cfg.RateLimit.PushWindow)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
