// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type instrumented struct {
	backend string
	next    Store
	logger  zerolog.Logger
}

// Instrument wraps s so every operation is counted and failures are logged.
// ErrNotFound is an answer, not a failure.
func Instrument(backend string, s Store) Store {
	return &instrumented{
		backend: backend,
		next:    s,
		logger:  xglog.WithComponent("store").With().Str(xglog.FieldBackend, backend).Logger(),
	}
}

func (i *instrumented) observe(op string, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOp(i.backend, op, err)
	if err != nil {
		i.logger.Warn().Err(err).Str(xglog.FieldOp, op).Msg("store operation failed")
	}
}

func (i *instrumented) GetUser(ctx context.Context, uaid uuid.UUID) (User, error) {
	u, err := i.next.GetUser(ctx, uaid)
	i.observe("get_user", err)
	return u, err
}

func (i *instrumented) PutUser(ctx context.Context, u User) error {
	err := i.next.PutUser(ctx, u)
	i.observe("put_user", err)
	return err
}

func (i *instrumented) DropUser(ctx context.Context, uaid uuid.UUID) error {
	err := i.next.DropUser(ctx, uaid)
	i.observe("drop_user", err)
	return err
}

func (i *instrumented) AddChannel(ctx context.Context, uaid, channelID uuid.UUID, key string) error {
	err := i.next.AddChannel(ctx, uaid, channelID, key)
	i.observe("add_channel", err)
	return err
}

func (i *instrumented) RemoveChannel(ctx context.Context, uaid, channelID uuid.UUID) (bool, error) {
	ok, err := i.next.RemoveChannel(ctx, uaid, channelID)
	i.observe("remove_channel", err)
	return ok, err
}

func (i *instrumented) ChannelKey(ctx context.Context, uaid, channelID uuid.UUID) (string, error) {
	key, err := i.next.ChannelKey(ctx, uaid, channelID)
	i.observe("channel_key", err)
	return key, err
}

func (i *instrumented) Channels(ctx context.Context, uaid uuid.UUID) ([]uuid.UUID, error) {
	ids, err := i.next.Channels(ctx, uaid)
	i.observe("channels", err)
	return ids, err
}

func (i *instrumented) SaveMessage(ctx context.Context, uaid uuid.UUID, month string, n protocol.Notification) error {
	err := i.next.SaveMessage(ctx, uaid, month, n)
	i.observe("save_message", err)
	return err
}

func (i *instrumented) DeleteMessage(ctx context.Context, uaid uuid.UUID, month string, channelID uuid.UUID, version string) error {
	err := i.next.DeleteMessage(ctx, uaid, month, channelID, version)
	i.observe("delete_message", err)
	return err
}

func (i *instrumented) FetchMessages(ctx context.Context, uaid uuid.UUID, month string, includeTopic bool, since *int64, limit int) ([]protocol.Notification, error) {
	msgs, err := i.next.FetchMessages(ctx, uaid, month, includeTopic, since, limit)
	i.observe("fetch_messages", err)
	return msgs, err
}

func (i *instrumented) Ping(ctx context.Context) error {
	err := i.next.Ping(ctx)
	i.observe("ping", err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
