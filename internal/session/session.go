// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session drives one client connection through the push protocol.
//
// A Session is not safe for concurrent use: exactly one goroutine feeds it
// client messages and notifications. Calls to the decision service never
// block that goroutine until their result is awaited.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/pushd/internal/bridge"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/ManuGH/pushd/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status codes carried in server messages.
const (
	StatusOK          uint32 = 200
	StatusServerError uint32 = 500
	StatusUnavailable uint32 = 503
)

// Decider is the decision service as seen through the bridge.
type Decider interface {
	Hello(connectedAt time.Time, uaid *uuid.UUID) *bridge.Pending[wire.HelloResponse]
	CheckStorage(uaid uuid.UUID, messageMonth string, includeTopic bool, timestamp *int64) *bridge.Pending[wire.CheckStorageResponse]
	Register(uaid, channelID uuid.UUID, messageMonth string) *bridge.Pending[wire.RegisterResponse]
	Unregister(uaid, channelID uuid.UUID, messageMonth string) *bridge.Pending[wire.SuccessResponse]
	DropUser(uaid uuid.UUID) *bridge.Pending[wire.SuccessResponse]
	Delete(uaid uuid.UUID, messageMonth string, channelID uuid.UUID, version string) *bridge.Pending[wire.SuccessResponse]
	StoreMessages(uaid uuid.UUID, messageMonth string, msgs []protocol.Notification) *bridge.Pending[wire.SuccessResponse]
}

// Emitter delivers server messages to the client.
type Emitter interface {
	Emit(ctx context.Context, msg protocol.ServerMessage) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, msg protocol.ServerMessage) error

func (f EmitterFunc) Emit(ctx context.Context, msg protocol.ServerMessage) error { return f(ctx, msg) }

// Endpoints builds the push endpoint URL handed out on register.
type Endpoints interface {
	Endpoint(uaid, channelID uuid.UUID, key string) (string, error)
}

// Config wires a Session to its collaborators.
type Config struct {
	ID        string
	Decider   Decider
	Emitter   Emitter
	Endpoints Endpoints
	Clock     func() time.Time
}

type ackKey struct {
	channelID uuid.UUID
	version   string
}

// delivery is a notification emitted to the client and not yet acked.
// Stored deliveries came from checkstorage and are deleted on ack; direct
// ones came from the hub and are stashed if the connection ends first.
type delivery struct {
	stored bool
	n      protocol.Notification
}

// Session is the protocol state machine of one connection.
type Session struct {
	id        string
	decider   Decider
	emitter   Emitter
	endpoints Endpoints
	clock     func() time.Time
	logger    zerolog.Logger

	state        State
	uaid         uuid.UUID
	messageMonth string
	useWebPush   bool
	channels     map[uuid.UUID]struct{}

	unacked    map[ackKey]delivery
	storedNext *int64
}

// New returns a session in the Unauthenticated state.
func New(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:        id,
		decider:   cfg.Decider,
		emitter:   cfg.Emitter,
		endpoints: cfg.Endpoints,
		clock:     clock,
		logger:    xglog.WithComponent("session").With().Str(xglog.FieldSessionID, id).Logger(),
		state:     StateUnauthenticated,
		channels:  make(map[uuid.UUID]struct{}),
		unacked:   make(map[ackKey]delivery),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// UAID returns the authenticated user agent id once Active.
func (s *Session) UAID() (uuid.UUID, bool) {
	return s.uaid, s.state == StateActive
}

// Channels returns the number of channels registered in this session.
func (s *Session) Channels() int { return len(s.channels) }

// Unacked returns the number of delivered notifications awaiting ack.
func (s *Session) Unacked() int { return len(s.unacked) }

// Handle consumes one client message. A returned error matching
// ErrTerminate means the transport should close the connection.
func (s *Session) Handle(ctx context.Context, msg protocol.ClientMessage) error {
	metrics.IncClientMessage(msg.MessageType())
	switch m := msg.(type) {
	case protocol.ClientHello:
		return s.handleHello(ctx, m)
	case protocol.ClientRegister:
		return s.handleRegister(ctx, m)
	case protocol.ClientUnregister:
		return s.handleUnregister(ctx, m)
	case protocol.ClientAck:
		return s.handleAck(ctx, m)
	default:
		return fmt.Errorf("%w: %w: %T", ErrTerminate, protocol.ErrUnknownMessageType, msg)
	}
}

// Notify emits an unsolicited notification. It is only legal while Active.
func (s *Session) Notify(ctx context.Context, n protocol.Notification) error {
	if _, ok := TransitionFor(s.state, EvNotify); !ok {
		return fmt.Errorf("notify in state %s: %w", s.state, ErrNotActive)
	}
	s.unacked[ackKey{channelID: n.ChannelID, version: n.Version}] = delivery{n: n}
	return s.emit(ctx, n)
}

// Stash hands notifications the client never acknowledged back to storage:
// direct deliveries still awaiting ack plus pending ones the transport never
// emitted. Stored deliveries are still in storage and are left alone.
// Zero-TTL notifications are not kept.
func (s *Session) Stash(ctx context.Context, pending []protocol.Notification) error {
	if s.state != StateActive {
		return nil
	}
	msgs := make([]protocol.Notification, 0, len(s.unacked)+len(pending))
	for _, d := range s.unacked {
		if !d.stored && d.n.TTL > 0 {
			msgs = append(msgs, d.n)
		}
	}
	for _, n := range pending {
		if n.TTL > 0 {
			msgs = append(msgs, n)
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	if _, err := s.decider.StoreMessages(s.uaid, s.messageMonth, msgs).Await(ctx); err != nil {
		return fmt.Errorf("stash %d notifications: %w", len(msgs), err)
	}
	for key, d := range s.unacked {
		if !d.stored {
			delete(s.unacked, key)
		}
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "session.stash").
		Int("messages", len(msgs)).
		Msg("unacknowledged notifications stored")
	return nil
}

// Close releases gauges held by an Active session.
func (s *Session) Close() {
	if s.state == StateActive {
		metrics.SessionDeactivated()
	}
}

func (s *Session) apply(ev EventKind) error {
	tr, ok := TransitionFor(s.state, ev)
	if !ok {
		err := &transitionError{from: s.state, event: ev}
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.illegal_transition").Msg("protocol violation")
		return fmt.Errorf("%w: %w", ErrTerminate, err)
	}
	if tr.From != tr.To {
		metrics.RecordSessionTransition(string(tr.From), string(tr.To))
		s.logger.Debug().
			Str(xglog.FieldOldState, string(tr.From)).
			Str(xglog.FieldNewState, string(tr.To)).
			Msg("session transition")
		if tr.To == StateActive {
			metrics.SessionActivated()
		}
	}
	s.state = tr.To
	return nil
}

func (s *Session) handleHello(ctx context.Context, m protocol.ClientHello) error {
	if err := s.apply(EvClientHello); err != nil {
		return err
	}

	res, err := s.decider.Hello(s.clock(), m.UAID).Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return s.rejectHello(ctx, m, err)
	}

	uaid, reset := resolveUAID(m.UAID, res)
	if reset {
		s.dropUser(ctx, *m.UAID)
	}

	s.uaid = uaid
	s.messageMonth = res.MessageMonth
	s.useWebPush = m.UseWebPush != nil && *m.UseWebPush
	s.logger = s.logger.With().Str(xglog.FieldUAID, uaid.String()).Logger()
	if err := s.apply(EvHelloAccepted); err != nil {
		return err
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "session.hello").
		Str(xglog.FieldMessageMonth, res.MessageMonth).
		Bool("reset_uaid", reset).
		Bool("rotate_message_table", res.RotateMessageTable).
		Msg("session established")

	if err := s.emit(ctx, protocol.ServerHello{
		UAID:       uaid,
		Status:     StatusOK,
		UseWebPush: m.UseWebPush,
	}); err != nil {
		return err
	}
	if s.useWebPush {
		return s.checkStorage(ctx)
	}
	return nil
}

func (s *Session) rejectHello(ctx context.Context, m protocol.ClientHello, cause error) error {
	outcome := bridge.Classify(cause)
	status := StatusServerError
	if outcome == bridge.OutcomeCancelled || outcome == bridge.OutcomeLinkGone {
		status = StatusUnavailable
	}
	s.logger.Warn().
		Err(cause).
		Str(xglog.FieldOutcome, outcome).
		Uint32(xglog.FieldStatus, status).
		Msg("hello rejected")

	if err := s.apply(EvHelloRejected); err != nil {
		return err
	}
	uaid := uuid.Nil
	if m.UAID != nil {
		uaid = *m.UAID
	}
	emitErr := s.emit(ctx, protocol.ServerHello{UAID: uaid, Status: status, UseWebPush: m.UseWebPush})
	return errors.Join(fmt.Errorf("%w: hello: %w", ErrTerminate, cause), emitErr)
}

// resolveUAID picks the session's UAID. The decision service's answer wins;
// otherwise the client's is kept unless a reset was requested. The second
// result reports whether the client's UAID was replaced on reset.
func resolveUAID(requested *uuid.UUID, res wire.HelloResponse) (uuid.UUID, bool) {
	var uaid uuid.UUID
	switch {
	case res.UAID != nil:
		uaid = *res.UAID
	case requested != nil && !res.ResetUAID:
		uaid = *requested
	default:
		uaid = uuid.New()
	}
	return uaid, res.ResetUAID && requested != nil && *requested != uaid
}

// dropUser forgets the replaced UAID. The result is only logged, so it is
// awaited off the session goroutine.
func (s *Session) dropUser(ctx context.Context, old uuid.UUID) {
	pending := s.decider.DropUser(old)
	logger := s.logger
	go func() {
		if _, err := pending.Await(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str("old_uaid", old.String()).Msg("drop of reset uaid failed")
		}
	}()
}

func (s *Session) checkStorage(ctx context.Context) error {
	res, err := s.decider.CheckStorage(s.uaid, s.messageMonth, true, s.storedNext).Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldOutcome, bridge.Classify(err)).Msg("check storage failed")
		s.storedNext = nil
		return nil
	}

	s.storedNext = nil
	if res.Timestamp != nil && len(res.Messages) > 0 {
		ts := *res.Timestamp
		s.storedNext = &ts
	}
	for _, n := range res.Messages {
		s.unacked[ackKey{channelID: n.ChannelID, version: n.Version}] = delivery{stored: true, n: n}
		if err := s.emit(ctx, n); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("messages", len(res.Messages)).Msg("stored messages delivered")
	return nil
}

func (s *Session) handleRegister(ctx context.Context, m protocol.ClientRegister) error {
	if err := s.apply(EvRegister); err != nil {
		return err
	}
	logger := s.logger.With().Str(xglog.FieldChannelID, m.ChannelID.String()).Logger()

	res, err := s.decider.Register(s.uaid, m.ChannelID, s.messageMonth).Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	reply := protocol.ServerRegister{ChannelID: m.ChannelID, Status: StatusOK}
	if err == nil {
		reply.PushEndpoint, err = s.endpoints.Endpoint(s.uaid, m.ChannelID, res.EndpointKey)
	}
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldOutcome, bridge.Classify(err)).Msg("register failed")
		reply.Status = StatusServerError
		reply.PushEndpoint = ""
	} else {
		s.channels[m.ChannelID] = struct{}{}
		logger.Info().Str(xglog.FieldEvent, "session.register").Msg("channel registered")
	}
	return s.emit(ctx, reply)
}

func (s *Session) handleUnregister(ctx context.Context, m protocol.ClientUnregister) error {
	if err := s.apply(EvUnregister); err != nil {
		return err
	}
	logger := s.logger.With().Str(xglog.FieldChannelID, m.ChannelID.String()).Logger()

	_, err := s.decider.Unregister(s.uaid, m.ChannelID, s.messageMonth).Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	reply := protocol.ServerUnregister{ChannelID: m.ChannelID, Status: StatusOK}
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldOutcome, bridge.Classify(err)).Msg("unregister failed")
		reply.Status = StatusServerError
	} else {
		delete(s.channels, m.ChannelID)
		for key := range s.unacked {
			if key.channelID == m.ChannelID {
				delete(s.unacked, key)
			}
		}
		logger.Info().Str(xglog.FieldEvent, "session.unregister").Msg("channel unregistered")
	}
	return s.emit(ctx, reply)
}

func (s *Session) handleAck(ctx context.Context, m protocol.ClientAck) error {
	if err := s.apply(EvAck); err != nil {
		return err
	}
	var deletes []*bridge.Pending[wire.SuccessResponse]
	for _, u := range m.Updates {
		key := ackKey{channelID: u.ChannelID, version: u.Version}
		d, ok := s.unacked[key]
		if !ok {
			s.logger.Debug().
				Str(xglog.FieldChannelID, u.ChannelID.String()).
				Str(xglog.FieldVersion, u.Version).
				Msg("ack for unknown notification ignored")
			continue
		}
		delete(s.unacked, key)
		if d.stored {
			deletes = append(deletes, s.decider.Delete(s.uaid, s.messageMonth, u.ChannelID, u.Version))
		}
	}
	if len(deletes) == 0 {
		return nil
	}

	// Deletes land before the next checkstorage: its cursor is inclusive.
	for _, p := range deletes {
		_, err := p.Await(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldOutcome, bridge.Classify(err)).Msg("delete of acked message failed")
		}
	}
	if s.storedNext != nil && !s.hasStoredUnacked() {
		return s.checkStorage(ctx)
	}
	return nil
}

func (s *Session) hasStoredUnacked() bool {
	for _, d := range s.unacked {
		if d.stored {
			return true
		}
	}
	return false
}

func (s *Session) emit(ctx context.Context, msg protocol.ServerMessage) error {
	if err := s.emitter.Emit(ctx, msg); err != nil {
		return fmt.Errorf("emit %s: %w", msg.MessageType(), err)
	}
	metrics.IncServerMessage(msg.MessageType())
	return nil
}
