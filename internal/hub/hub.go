// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hub routes push notifications to the connection currently holding
// a UAID.
package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
)

const subscriptionBuffer = 64

// Hub holds at most one subscription per UAID. A newer connection for the
// same UAID takes over and the older subscription ends.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*Subscription)}
}

// Subscription is one connection's notification feed.
type Subscription struct {
	hub  *Hub
	uaid uuid.UUID
	ch   chan protocol.Notification
	done chan struct{}
	once sync.Once

	// Deliver holds mu shared while it may send on ch; Close takes it
	// exclusively to drain ch, so nothing is buffered after the drain.
	mu      sync.RWMutex
	drained bool
}

// C yields notifications. It is never closed; watch Done.
func (s *Subscription) C() <-chan protocol.Notification { return s.ch }

// Done is closed when the subscription ends, either through Close or
// because another connection took over the UAID.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close ends the subscription and returns the notifications still buffered,
// which the caller now owns. Later calls return nil.
func (s *Subscription) Close() []protocol.Notification {
	s.hub.mu.Lock()
	if s.hub.subs[s.uaid] == s {
		delete(s.hub.subs, s.uaid)
	}
	s.hub.mu.Unlock()
	s.end()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return nil
	}
	s.drained = true
	var left []protocol.Notification
	for {
		select {
		case n := <-s.ch:
			left = append(left, n)
		default:
			return left
		}
	}
}

func (s *Subscription) end() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers the caller as the live connection for uaid.
func (h *Hub) Subscribe(uaid uuid.UUID) *Subscription {
	sub := &Subscription{
		hub:  h,
		uaid: uaid,
		ch:   make(chan protocol.Notification, subscriptionBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.subs[uaid]
	h.subs[uaid] = sub
	h.mu.Unlock()

	if prev != nil {
		prev.end()
		logger := log.WithComponent("hub")
		logger.Info().Str(log.FieldUAID, uaid.String()).Msg("connection taken over")
	}
	return sub
}

// Deliver buffers n for the connection holding uaid. It reports false when
// no connection holds the UAID or the connection ends first, and an error
// when ctx ends while the connection's buffer is full. A buffered
// notification the connection never emits is handed back by Close.
func (h *Hub) Deliver(ctx context.Context, uaid uuid.UUID, n protocol.Notification) (bool, error) {
	h.mu.Lock()
	sub, ok := h.subs[uaid]
	h.mu.Unlock()
	if !ok {
		return false, nil
	}

	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.drained {
		return false, nil
	}
	select {
	case <-sub.done:
		return false, nil
	default:
	}
	select {
	case sub.ch <- n:
		return true, nil
	case <-sub.done:
		return false, nil
	case <-ctx.Done():
		return false, fmt.Errorf("deliver to %s: %w", uaid, ctx.Err())
	}
}

// Connected reports how many UAIDs currently hold a connection.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
