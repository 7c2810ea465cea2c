// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/ManuGH/pushd/internal/telemetry"
	"github.com/ManuGH/pushd/internal/wire"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownUser rejects channel operations for a UAID that never said hello.
var ErrUnknownUser = errors.New("unknown uaid")

// CurrentMonth returns the message month for the service clock.
func (s *Service) CurrentMonth() string {
	return s.clock().UTC().Format(MonthLayout)
}

// hello admits a user agent. An unknown UAID is replaced by a fresh one with
// reset_uaid set. A known UAID whose messages live in an older month is
// rotated: its unexpired messages move to the current month.
func (s *Service) hello(ctx context.Context, r wire.HelloRequest) (wire.HelloResponse, error) {
	month := s.CurrentMonth()
	span := trace.SpanFromContext(ctx)

	if r.UAID == nil {
		uaid := uuid.New()
		if err := s.store.PutUser(ctx, store.User{UAID: uaid, ConnectedAt: r.ConnectedAt, CurrentMonth: month}); err != nil {
			return wire.HelloResponse{}, err
		}
		span.SetAttributes(attribute.String(telemetry.UAIDKey, uaid.String()))
		return wire.HelloResponse{UAID: &uaid, MessageMonth: month}, nil
	}

	uaid := *r.UAID
	span.SetAttributes(attribute.String(telemetry.UAIDKey, uaid.String()))
	user, err := s.store.GetUser(ctx, uaid)
	if errors.Is(err, store.ErrNotFound) {
		fresh := uuid.New()
		if err := s.store.PutUser(ctx, store.User{UAID: fresh, ConnectedAt: r.ConnectedAt, CurrentMonth: month}); err != nil {
			return wire.HelloResponse{}, err
		}
		s.logger.Info().
			Str(xglog.FieldUAID, uaid.String()).
			Str("new_uaid", fresh.String()).
			Msg("unknown uaid reset")
		return wire.HelloResponse{UAID: &fresh, MessageMonth: month, ResetUAID: true}, nil
	}
	if err != nil {
		return wire.HelloResponse{}, err
	}

	rotate := user.CurrentMonth != month
	if rotate {
		if err := s.rotate(ctx, uaid, user.CurrentMonth, month); err != nil {
			return wire.HelloResponse{}, err
		}
	}
	user.ConnectedAt = r.ConnectedAt
	user.CurrentMonth = month
	if err := s.store.PutUser(ctx, user); err != nil {
		return wire.HelloResponse{}, err
	}
	return wire.HelloResponse{UAID: &uaid, MessageMonth: month, RotateMessageTable: rotate}, nil
}

// rotate moves the messages still within their TTL from one month to the
// next and deletes everything left in the old month.
func (s *Service) rotate(ctx context.Context, uaid uuid.UUID, from, to string) error {
	if from == "" {
		return nil
	}
	msgs, err := s.store.FetchMessages(ctx, uaid, from, true, nil, 0)
	if err != nil {
		return fmt.Errorf("rotate %s: %w", from, err)
	}
	live, stale := splitExpired(msgs, s.nowMillis())
	for _, n := range live {
		if err := s.store.SaveMessage(ctx, uaid, to, n); err != nil {
			return fmt.Errorf("rotate %s: %w", from, err)
		}
	}
	if err := s.deleteMessages(ctx, uaid, from, msgs); err != nil {
		return fmt.Errorf("rotate %s: %w", from, err)
	}
	s.logger.Info().
		Str(xglog.FieldUAID, uaid.String()).
		Str("from", from).
		Str(xglog.FieldMessageMonth, to).
		Int("messages", len(live)).
		Int("expired", len(stale)).
		Msg("message month rotated")
	return nil
}

// checkStorage returns the next batch of stored messages, deleting expired
// ones on the way. When the store returned a full page the timestamp of its
// last message is handed back as the cursor for the next call; the cursor is
// inclusive, so the caller deletes what it consumed first.
func (s *Service) checkStorage(ctx context.Context, r wire.CheckStorageRequest) (wire.CheckStorageResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.CommandAttributes(wire.CommandCheckStorage, r.UAID.String(), r.MessageMonth)...)

	since := r.Timestamp
	for {
		if err := ctx.Err(); err != nil {
			return wire.CheckStorageResponse{}, err
		}
		page, err := s.store.FetchMessages(ctx, r.UAID, r.MessageMonth, r.IncludeTopic, since, s.messageLimit)
		if err != nil {
			return wire.CheckStorageResponse{}, err
		}
		live, stale := splitExpired(page, s.nowMillis())
		if err := s.deleteMessages(ctx, r.UAID, r.MessageMonth, stale); err != nil {
			return wire.CheckStorageResponse{}, err
		}

		var cursor *int64
		if n := len(page); n == s.messageLimit {
			ts := int64(page[n-1].Timestamp)
			cursor = &ts
		}
		// A full page that expired entirely is gone now; read on from the
		// same place rather than hand back an empty batch with a cursor.
		if len(live) == 0 && cursor != nil {
			since = cursor
			continue
		}

		if live == nil {
			live = []protocol.Notification{}
		}
		span.SetAttributes(attribute.Int(telemetry.MessagesKey, len(live)))
		if len(stale) > 0 {
			s.logger.Debug().
				Str(xglog.FieldUAID, r.UAID.String()).
				Int("expired", len(stale)).
				Msg("expired messages removed")
		}
		return wire.CheckStorageResponse{IncludeTopic: r.IncludeTopic, Messages: live, Timestamp: cursor}, nil
	}
}

// deleteMessage forgets a stored message the client acknowledged.
func (s *Service) deleteMessage(ctx context.Context, r wire.DeleteRequest) (wire.SuccessResponse, error) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(telemetry.ChannelIDKey, r.ChannelID.String()),
		attribute.String(telemetry.UAIDKey, r.UAID.String()),
	)
	if err := s.store.DeleteMessage(ctx, r.UAID, r.MessageMonth, r.ChannelID, r.Version); err != nil {
		return wire.SuccessResponse{}, err
	}
	return wire.SuccessResponse{Success: true}, nil
}

// storeMessages saves notifications a connection could not get acknowledged.
// They go to the user's current month, which may have rotated since the
// connection said hello. Zero-TTL and expired messages are dropped.
func (s *Service) storeMessages(ctx context.Context, r wire.StoreMessagesRequest) (wire.SuccessResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.CommandAttributes(wire.CommandStoreMessages, r.UAID.String(), r.MessageMonth)...)

	user, err := s.store.GetUser(ctx, r.UAID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wire.SuccessResponse{}, fmt.Errorf("%w: %s", ErrUnknownUser, r.UAID)
		}
		return wire.SuccessResponse{}, err
	}
	live, _ := splitExpired(r.Messages, s.nowMillis())
	for _, n := range live {
		if err := s.store.SaveMessage(ctx, r.UAID, user.CurrentMonth, n); err != nil {
			return wire.SuccessResponse{}, err
		}
	}
	span.SetAttributes(attribute.Int(telemetry.MessagesKey, len(live)))
	s.logger.Debug().
		Str(xglog.FieldUAID, r.UAID.String()).
		Int("stored", len(live)).
		Int("dropped", len(r.Messages)-len(live)).
		Msg("undelivered messages stored")
	return wire.SuccessResponse{Success: true}, nil
}

func (s *Service) deleteMessages(ctx context.Context, uaid uuid.UUID, month string, msgs []protocol.Notification) error {
	for _, n := range msgs {
		if err := s.store.DeleteMessage(ctx, uaid, month, n.ChannelID, n.Version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) nowMillis() int64 {
	return wire.ConnectedAtMillis(s.clock())
}

// splitExpired separates messages still within their TTL from those past it.
// A message expires TTL seconds after its timestamp; a zero TTL never
// outlives the moment it was stamped.
func splitExpired(msgs []protocol.Notification, nowMillis int64) (live, expired []protocol.Notification) {
	for _, n := range msgs {
		if int64(n.Timestamp)+int64(n.TTL)*1000 <= nowMillis {
			expired = append(expired, n)
			continue
		}
		live = append(live, n)
	}
	return live, expired
}

func (s *Service) register(ctx context.Context, r wire.RegisterRequest) (wire.RegisterResponse, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(telemetry.ChannelIDKey, r.ChannelID.String()))
	if _, err := s.store.GetUser(ctx, r.UAID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wire.RegisterResponse{}, fmt.Errorf("%w: %s", ErrUnknownUser, r.UAID)
		}
		return wire.RegisterResponse{}, err
	}
	key := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.store.AddChannel(ctx, r.UAID, r.ChannelID, key); err != nil {
		return wire.RegisterResponse{}, err
	}
	return wire.RegisterResponse{EndpointKey: key}, nil
}

func (s *Service) unregister(ctx context.Context, r wire.UnregisterRequest) (wire.SuccessResponse, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(telemetry.ChannelIDKey, r.ChannelID.String()))
	existed, err := s.store.RemoveChannel(ctx, r.UAID, r.ChannelID)
	if err != nil {
		return wire.SuccessResponse{}, err
	}
	return wire.SuccessResponse{Success: existed}, nil
}

func (s *Service) dropUser(ctx context.Context, r wire.DropUserRequest) (wire.SuccessResponse, error) {
	if err := s.store.DropUser(ctx, r.UAID); err != nil {
		return wire.SuccessResponse{}, err
	}
	s.logger.Info().Str(xglog.FieldUAID, r.UAID.String()).Msg("user dropped")
	return wire.SuccessResponse{Success: true}, nil
}
