// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bridge correlates calls dispatched to the decision service with
// their eventual completions.
//
// Initiate encodes a request, pairs it with a one-shot result and sends the
// Handle over a Link without blocking. The decision service later completes
// the Handle from its own goroutine, in any order relative to other calls.
// There is no table of in-flight calls: each Handle carries its own
// completion sink and can be consumed once.
package bridge

import (
	"sync"
	"time"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/ManuGH/pushd/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bridge issues calls to the decision service over one Link.
type Bridge struct {
	link     *Link
	logger   zerolog.Logger
	goneOnce sync.Once
}

// New returns a bridge dispatching over link.
func New(link *Link) *Bridge {
	return &Bridge{
		link:   link,
		logger: xglog.WithComponent("bridge"),
	}
}

// Link returns the outbound link.
func (b *Bridge) Link() *Link { return b.link }

// Initiate dispatches req and returns its pending result immediately.
func Initiate[T any](b *Bridge, req wire.Request) *Pending[T] {
	command := req.Command()
	metrics.IncBridgeCall(command)

	shot := newOneshot[T]()
	p := &Pending[T]{shot: shot, command: command}

	input, err := wire.Encode(req)
	if err != nil {
		shot.fail(err)
		metrics.RecordBridgeOutcome(command, OutcomeError)
		b.logger.Error().Err(err).Str(xglog.FieldCommand, command).Msg("request encoding failed")
		return p
	}

	h := newHandle(&call{
		command: command,
		input:   input,
		sink:    typedSink[T]{shot: shot, command: command},
	})
	if err := b.link.Send(h); err != nil {
		shot.fail(err)
		metrics.RecordBridgeOutcome(command, OutcomeLinkGone)
		b.goneOnce.Do(func() {
			metrics.IncLinkGone()
			b.logger.Error().
				Err(err).
				Str(xglog.FieldCommand, command).
				Str(xglog.FieldEvent, "bridge.link_gone").
				Msg("decision service went away; all further calls will fail")
		})
		return p
	}

	b.logger.Debug().
		Str(xglog.FieldCommand, command).
		Int("queued", b.link.Len()).
		Msg("call dispatched")
	return p
}

// Hello asks whether a session may be established.
func (b *Bridge) Hello(connectedAt time.Time, uaid *uuid.UUID) *Pending[wire.HelloResponse] {
	return Initiate[wire.HelloResponse](b, wire.HelloRequest{
		ConnectedAt: wire.ConnectedAtMillis(connectedAt),
		UAID:        uaid,
	})
}

// CheckStorage asks for stored messages newer than timestamp.
func (b *Bridge) CheckStorage(uaid uuid.UUID, messageMonth string, includeTopic bool, timestamp *int64) *Pending[wire.CheckStorageResponse] {
	return Initiate[wire.CheckStorageResponse](b, wire.CheckStorageRequest{
		UAID:         uaid,
		MessageMonth: messageMonth,
		IncludeTopic: includeTopic,
		Timestamp:    timestamp,
	})
}

// Register records a channel subscription.
func (b *Bridge) Register(uaid, channelID uuid.UUID, messageMonth string) *Pending[wire.RegisterResponse] {
	return Initiate[wire.RegisterResponse](b, wire.RegisterRequest{
		UAID:         uaid,
		ChannelID:    channelID,
		MessageMonth: messageMonth,
	})
}

// Unregister removes a channel subscription.
func (b *Bridge) Unregister(uaid, channelID uuid.UUID, messageMonth string) *Pending[wire.SuccessResponse] {
	return Initiate[wire.SuccessResponse](b, wire.UnregisterRequest{
		UAID:         uaid,
		ChannelID:    channelID,
		MessageMonth: messageMonth,
	})
}

// DropUser forgets a UAID.
func (b *Bridge) DropUser(uaid uuid.UUID) *Pending[wire.SuccessResponse] {
	return Initiate[wire.SuccessResponse](b, wire.DropUserRequest{UAID: uaid})
}

// Delete removes a stored message the client acknowledged.
func (b *Bridge) Delete(uaid uuid.UUID, messageMonth string, channelID uuid.UUID, version string) *Pending[wire.SuccessResponse] {
	return Initiate[wire.SuccessResponse](b, wire.DeleteRequest{
		UAID:         uaid,
		MessageMonth: messageMonth,
		ChannelID:    channelID,
		Version:      version,
	})
}

// StoreMessages hands undelivered notifications back to storage.
func (b *Bridge) StoreMessages(uaid uuid.UUID, messageMonth string, msgs []protocol.Notification) *Pending[wire.SuccessResponse] {
	return Initiate[wire.SuccessResponse](b, wire.StoreMessagesRequest{
		UAID:         uaid,
		MessageMonth: messageMonth,
		Messages:     msgs,
	})
}
