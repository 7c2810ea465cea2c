// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"sync/atomic"
)

// oneshot delivers exactly one result from a producer to any number of
// readers. The first send wins; later sends report false and change nothing.
// The value is written before done is closed, so readers that observed done
// see it without further synchronization.
type oneshot[T any] struct {
	fired atomic.Bool
	done  chan struct{}
	val   T
	err   error
}

func newOneshot[T any]() *oneshot[T] {
	return &oneshot[T]{done: make(chan struct{})}
}

func (o *oneshot[T]) send(v T, err error) bool {
	if !o.fired.CompareAndSwap(false, true) {
		return false
	}
	o.val, o.err = v, err
	close(o.done)
	return true
}

func (o *oneshot[T]) fail(err error) bool {
	var zero T
	return o.send(zero, err)
}

// Pending is the initiator's view of a call result.
type Pending[T any] struct {
	shot    *oneshot[T]
	command string
}

// Resolved returns a Pending that has already settled.
func Resolved[T any](v T, err error) *Pending[T] {
	p := &Pending[T]{shot: newOneshot[T]()}
	p.shot.send(v, err)
	return p
}

// Command names the call this result belongs to.
func (p *Pending[T]) Command() string { return p.command }

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} { return p.shot.done }

// Await suspends until the call resolves or ctx ends. A ctx error leaves the
// call in flight; a later Await still observes the real result.
func (p *Pending[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.shot.done:
		return p.shot.val, p.shot.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
