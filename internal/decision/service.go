// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package decision is the in-process decision service: it answers the calls
// sessions dispatch over a bridge.Link using a store.Store.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/pushd/internal/bridge"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/ManuGH/pushd/internal/telemetry"
	"github.com/ManuGH/pushd/internal/wire"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MonthLayout formats message months.
const MonthLayout = "2006-01"

// Config tunes the service.
type Config struct {
	Workers      int
	MessageLimit int
	Clock        func() time.Time
}

// Service answers decision calls.
type Service struct {
	store        store.Store
	workers      int
	messageLimit int
	clock        func() time.Time
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// New returns a service backed by st.
func New(st store.Store, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:        st,
		workers:      cfg.Workers,
		messageLimit: cfg.MessageLimit,
		clock:        cfg.Clock,
		logger:       xglog.WithComponent("decision"),
		tracer:       telemetry.Tracer("pushd/decision"),
	}
}

// Run serves handles from link until ctx ends. On return the link is closed:
// queued calls resolve ErrCancelled and later calls fail with ErrLinkGone.
func (s *Service) Run(ctx context.Context, link *bridge.Link) error {
	defer link.Close()

	s.logger.Info().Int("workers", s.workers).Msg("decision service started")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error { return s.work(gctx, link) })
	}
	err := g.Wait()
	s.logger.Info().Msg("decision service stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, bridge.ErrLinkGone) {
		return nil
	}
	return err
}

func (s *Service) work(ctx context.Context, link *bridge.Link) error {
	for {
		h, err := link.Recv(ctx)
		if err != nil {
			return err
		}
		s.Serve(ctx, h)
	}
}

// Serve answers one handle and always frees it.
func (s *Service) Serve(ctx context.Context, h *bridge.Handle) {
	var fault bridge.Fault
	defer func() {
		var f bridge.Fault
		if !h.Free(&f) {
			s.logger.Warn().Err(&f).Str(xglog.FieldCommand, h.Command()).Msg("free failed")
		}
	}()

	input, ok := h.Input(&fault)
	if !ok {
		s.logger.Warn().Err(&fault).Str(xglog.FieldCommand, h.Command()).Msg("handle input unavailable")
		return
	}
	output := s.Answer(ctx, input)
	fault.Reset()
	if !h.Complete(output, &fault) {
		s.logger.Warn().Err(&fault).Str(xglog.FieldCommand, h.Command()).Msg("completion rejected")
	}
}

// Answer turns one encoded request into its encoded response or error
// envelope. It never panics.
func (s *Service) Answer(ctx context.Context, input string) (output string) {
	start := s.clock()
	req, err := wire.DecodeRequest(input)
	if err != nil {
		metrics.RecordDecisionCommand("unknown", false, s.clock().Sub(start))
		return wire.EncodeError(fmt.Sprintf("invalid request: %v", err))
	}
	command := req.Command()

	ctx, span := s.tracer.Start(ctx, "decision."+command, trace.WithAttributes(telemetry.CommandAttributes(command, "", "")...))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error().Err(err).Str(xglog.FieldCommand, command).Msg("command handler panicked")
			telemetry.RecordError(span, err, "panic")
			metrics.RecordDecisionCommand(command, false, s.clock().Sub(start))
			output = wire.EncodeError("internal error")
		}
	}()

	resp, err := s.dispatch(ctx, req)
	if err == nil {
		output, err = wire.EncodeResponse(resp)
	}
	metrics.RecordDecisionCommand(command, err == nil, s.clock().Sub(start))
	if err != nil {
		telemetry.RecordError(span, err, "command")
		s.logger.Warn().Err(err).Str(xglog.FieldCommand, command).Msg("command failed")
		return wire.EncodeError(err.Error())
	}
	return output
}

func (s *Service) dispatch(ctx context.Context, req wire.Request) (any, error) {
	switch r := req.(type) {
	case wire.HelloRequest:
		return s.hello(ctx, r)
	case wire.CheckStorageRequest:
		return s.checkStorage(ctx, r)
	case wire.RegisterRequest:
		return s.register(ctx, r)
	case wire.UnregisterRequest:
		return s.unregister(ctx, r)
	case wire.DropUserRequest:
		return s.dropUser(ctx, r)
	case wire.DeleteRequest:
		return s.deleteMessage(ctx, r)
	case wire.StoreMessagesRequest:
		return s.storeMessages(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %s", wire.ErrUnknownCommand, req.Command())
	}
}
