// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
)

// Guard wraps an object whose operations are invoked by code outside this
// process's control. A panic inside an operation never escapes: it is
// recorded in the caller's Fault slot and poisons the guard, after which
// every operation fails with the same fault without running.
type Guard[T any] struct {
	inner    *T
	poison   atomic.Pointer[Fault]
	onPoison func(*T, *Fault)
}

// NewGuard wraps v. onPoison, if set, runs once with the first caught fault.
func NewGuard[T any](v *T, onPoison func(*T, *Fault)) *Guard[T] {
	return &Guard[T]{inner: v, onPoison: onPoison}
}

// Poisoned returns the first caught fault, or nil.
func (g *Guard[T]) Poisoned() *Fault {
	return g.poison.Load()
}

// Catch runs fn against the wrapped object. It reports false and fills slot
// when fn panics, when fn rejects the operation, or when the guard is poisoned.
// A rejection does not poison the guard.
func (g *Guard[T]) Catch(slot *Fault, op string, fn func(*T) *Fault) (ok bool) {
	if p := g.poison.Load(); p != nil {
		fill(slot, &Fault{Code: p.Code, Op: op, Message: "poisoned: " + p.Message})
		metrics.IncBoundaryFault(op, "poisoned")
		return false
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f := &Fault{Code: FaultPanic, Op: op, Message: fmt.Sprint(r)}
		if g.poison.CompareAndSwap(nil, f) {
			logger := xglog.WithComponent("bridge")
			logger.Error().
				Str(xglog.FieldOp, op).
				Str("panic", f.Message).
				Bytes("stack", debug.Stack()).
				Msg("fault contained at call boundary")
			if g.onPoison != nil {
				g.runOnPoison(f)
			}
		}
		metrics.IncBoundaryFault(op, FaultPanic.String())
		fill(slot, f)
		ok = false
	}()

	if f := fn(g.inner); f != nil {
		if f.Op == "" {
			f.Op = op
		}
		metrics.IncBoundaryFault(op, f.Code.String())
		fill(slot, f)
		return false
	}
	return true
}

func (g *Guard[T]) runOnPoison(f *Fault) {
	defer func() { _ = recover() }()
	g.onPoison(g.inner, f)
}

func fill(slot *Fault, f *Fault) {
	if slot != nil {
		*slot = *f
	}
}
