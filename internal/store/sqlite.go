// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go driver
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		uaid          TEXT PRIMARY KEY,
		connected_at  INTEGER NOT NULL,
		current_month TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		uaid         TEXT NOT NULL,
		channel_id   TEXT NOT NULL,
		endpoint_key TEXT NOT NULL,
		PRIMARY KEY (uaid, channel_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		uaid       TEXT NOT NULL,
		month      TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		version    TEXT NOT NULL,
		ts         INTEGER NOT NULL,
		body       TEXT NOT NULL,
		PRIMARY KEY (uaid, month, channel_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_by_ts ON messages (uaid, month, ts)`,
}

// SQLiteConfig defines SQLite operational parameters.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig returns the pool settings used by OpenSQLite.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// SQLite is a Store backed by a local SQLite database in WAL mode.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	db, err := openSQLiteDB(path, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// openSQLiteDB applies the mandatory PRAGMAs through the DSN so that every
// pooled connection carries them.
func openSQLiteDB(path string, cfg SQLiteConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}

func (s *SQLite) GetUser(ctx context.Context, uaid uuid.UUID) (User, error) {
	u := User{UAID: uaid}
	err := s.db.QueryRowContext(ctx,
		`SELECT connected_at, current_month FROM users WHERE uaid = ?`, uaid.String(),
	).Scan(&u.ConnectedAt, &u.CurrentMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLite) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uaid, connected_at, current_month) VALUES (?, ?, ?)
		ON CONFLICT(uaid) DO UPDATE SET connected_at = excluded.connected_at, current_month = excluded.current_month`,
		u.UAID.String(), u.ConnectedAt, u.CurrentMonth)
	return err
}

func (s *SQLite) DropUser(ctx context.Context, uaid uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := uaid.String()
	for _, q := range []string{
		`DELETE FROM users WHERE uaid = ?`,
		`DELETE FROM channels WHERE uaid = ?`,
		`DELETE FROM messages WHERE uaid = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) AddChannel(ctx context.Context, uaid, channelID uuid.UUID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (uaid, channel_id, endpoint_key) VALUES (?, ?, ?)
		ON CONFLICT(uaid, channel_id) DO UPDATE SET endpoint_key = excluded.endpoint_key`,
		uaid.String(), channelID.String(), key)
	return err
}

func (s *SQLite) RemoveChannel(ctx context.Context, uaid, channelID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channels WHERE uaid = ? AND channel_id = ?`, uaid.String(), channelID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) ChannelKey(ctx context.Context, uaid, channelID uuid.UUID) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT endpoint_key FROM channels WHERE uaid = ? AND channel_id = ?`, uaid.String(), channelID.String(),
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return key, err
}

func (s *SQLite) Channels(ctx context.Context, uaid uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM channels WHERE uaid = ?`, uaid.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("channel id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveMessage(ctx context.Context, uaid uuid.UUID, month string, n protocol.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (uaid, month, channel_id, version, ts, body) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uaid, month, channel_id, version) DO UPDATE SET ts = excluded.ts, body = excluded.body`,
		uaid.String(), month, n.ChannelID.String(), n.Version, int64(n.Timestamp), string(body))
	return err
}

func (s *SQLite) DeleteMessage(ctx context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE uaid = ? AND month = ? AND channel_id = ? AND version = ?`,
		uaid.String(), month, channelID.String(), version)
	return err
}

func (s *SQLite) FetchMessages(ctx context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error) {
	q := `SELECT body FROM messages WHERE uaid = ? AND month = ?`
	args := []any{uaid.String(), month}
	if since != nil {
		q += ` AND ts >= ?`
		args = append(args, *since)
	}
	q += ` ORDER BY ts`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []protocol.Notification
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var n protocol.Notification
		if err := json.Unmarshal([]byte(body), &n); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return selectMessages(msgs, includeTopic, since, limit), nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
