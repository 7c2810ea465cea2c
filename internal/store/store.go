// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists users, channel registrations and stored messages
// for the decision service.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a user or channel does not exist.
var ErrNotFound = errors.New("store: not found")

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// User is the stored record of one user agent.
type User struct {
	UAID         uuid.UUID `json:"uaid"`
	ConnectedAt  int64     `json:"connected_at"`
	CurrentMonth string    `json:"current_month"`
}

// Store is the persistence contract of the decision service.
type Store interface {
	GetUser(ctx context.Context, uaid uuid.UUID) (User, error)
	PutUser(ctx context.Context, u User) error
	// DropUser removes the user with all channels and stored messages.
	DropUser(ctx context.Context, uaid uuid.UUID) error

	AddChannel(ctx context.Context, uaid, channelID uuid.UUID, key string) error
	// RemoveChannel reports whether the channel existed.
	RemoveChannel(ctx context.Context, uaid, channelID uuid.UUID) (bool, error)
	ChannelKey(ctx context.Context, uaid, channelID uuid.UUID) (string, error)
	Channels(ctx context.Context, uaid uuid.UUID) ([]uuid.UUID, error)

	// SaveMessage stores n under month. A message with the same channel and
	// version replaces the previous one.
	SaveMessage(ctx context.Context, uaid uuid.UUID, month string, n protocol.Notification) error
	// DeleteMessage removes one stored message. Deleting a missing message
	// is not an error.
	DeleteMessage(ctx context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error
	// FetchMessages returns up to limit messages of month stamped at or after
	// since, oldest first. Messages with a topic are skipped unless
	// includeTopic. The bound is inclusive so messages sharing a timestamp
	// with the end of a full page are not skipped; callers delete what they
	// consumed before fetching again.
	FetchMessages(ctx context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the configured backend and wraps it with metrics and logging.
func Open(cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	var (
		s   Store
		err error
	)
	switch backend {
	case "", BackendMemory:
		backend = BackendMemory
		s = NewMemory()
	case BackendRedis:
		s, err = OpenRedis(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	case BackendSQLite:
		s, err = OpenSQLite(cfg.Path)
	case BackendBadger:
		s, err = OpenBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", backend, err)
	}
	return Instrument(backend, s), nil
}

// selectMessages applies the fetch filter shared by all backends to msgs.
func selectMessages(msgs []protocol.Notification, includeTopic bool, since *int64, limit int) []protocol.Notification {
	sortMessages(msgs)
	out := make([]protocol.Notification, 0, len(msgs))
	for _, m := range msgs {
		if since != nil && int64(m.Timestamp) < *since {
			continue
		}
		if m.Topic != nil && !includeTopic {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func sortMessages(msgs []protocol.Notification) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		if c := strings.Compare(msgs[i].ChannelID.String(), msgs[j].ChannelID.String()); c != 0 {
			return c < 0
		}
		return msgs[i].Version < msgs[j].Version
	})
}

func messageID(n protocol.Notification) string {
	return messageKey(n.ChannelID, n.Version)
}

func messageKey(channelID uuid.UUID, version string) string {
	return channelID.String() + ":" + version
}
