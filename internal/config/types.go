// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration.
//
// Precedence is ENV > file > defaults. Every key has a PUSHD_ environment
// counterpart, for example store.redis_addr is PUSHD_STORE_REDIS_ADDR.
package config

import "time"

// Config is the complete daemon configuration.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	EndpointURL     string        `yaml:"endpoint_url"`
	MaxConnections  int           `yaml:"max_connections"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	OriginPatterns  []string      `yaml:"origin_patterns,omitempty"`

	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Decision  DecisionConfig  `yaml:"decision"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the decision-service storage backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db"`
}

// DecisionConfig tunes the decision service.
type DecisionConfig struct {
	Workers      int `yaml:"workers"`
	MessageLimit int `yaml:"message_limit"`
}

// RateLimitConfig bounds client and push traffic.
type RateLimitConfig struct {
	// ClientRPS is the sustained client message rate per connection; 0 disables.
	ClientRPS   float64 `yaml:"client_rps"`
	ClientBurst int     `yaml:"client_burst"`
	// PushRequests per PushWindow per client IP; 0 disables.
	PushRequests int           `yaml:"push_requests"`
	PushWindow   time.Duration `yaml:"push_window"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:      ":8080",
		EndpointURL:     "http://localhost:8080",
		MaxConnections:  10000,
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info"},
		Store:           StoreConfig{Backend: "memory"},
		Decision:        DecisionConfig{Workers: 4, MessageLimit: 100},
		RateLimit: RateLimitConfig{
			ClientRPS:    10,
			ClientBurst:  20,
			PushRequests: 600,
			PushWindow:   time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			SamplingRate: 1.0,
		},
	}
}
