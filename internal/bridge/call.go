// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"sync/atomic"

	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/wire"
)

// Guarded operation names, used in Fault.Op and metrics labels.
const (
	OpInput    = "input"
	OpComplete = "complete"
	OpFree     = "free"
)

// sink resolves the initiator's Pending from the response text.
type sink interface {
	complete(output string)
	fail(err error)
}

type typedSink[T any] struct {
	shot    *oneshot[T]
	command string
}

func (s typedSink[T]) complete(output string) {
	v, err := wire.Decode[T](output)
	s.shot.send(v, err)
	metrics.RecordBridgeOutcome(s.command, Classify(err))
}

func (s typedSink[T]) fail(err error) {
	if s.shot.fail(err) {
		metrics.RecordBridgeOutcome(s.command, Classify(err))
	}
}

// call owns the encoded request and the single-use completion sink.
type call struct {
	command string
	input   string
	taken   atomic.Bool
	sink    sink
}

// take consumes the sink. Only the first caller gets it.
func (c *call) take() (sink, bool) {
	if !c.taken.CompareAndSwap(false, true) {
		return nil, false
	}
	return c.sink, true
}

// Handle is the decision service's view of one dispatched call. Exactly one
// Complete is honored; Free retires the handle and cancels the call if it was
// never completed. Every operation runs behind a Guard.
type Handle struct {
	command string
	guard   *Guard[call]
}

func newHandle(c *call) *Handle {
	return &Handle{
		command: c.command,
		// The sink may already be taken when the fault hit mid-completion;
		// the oneshot ignores the failure if a result was already sent.
		guard: NewGuard(c, func(c *call, f *Fault) {
			c.taken.Store(true)
			c.sink.fail(f)
		}),
	}
}

// Command returns the request's command name without crossing the guard.
func (h *Handle) Command() string { return h.command }

// Input returns the encoded request text.
func (h *Handle) Input(fault *Fault) (string, bool) {
	var out string
	ok := h.guard.Catch(fault, OpInput, func(c *call) *Fault {
		if c.taken.Load() {
			return &Fault{Code: FaultRetired, Message: "input read after retirement"}
		}
		out = c.input
		return nil
	})
	return out, ok
}

// Complete resolves the call with the decision service's response text.
func (h *Handle) Complete(output string, fault *Fault) bool {
	return h.guard.Catch(fault, OpComplete, func(c *call) *Fault {
		s, ok := c.take()
		if !ok {
			return &Fault{Code: FaultRetired, Message: "call already completed or freed"}
		}
		s.complete(output)
		return nil
	})
}

// Free releases the handle. A call that was never completed resolves with
// ErrCancelled. Freeing a completed handle is a no-op.
func (h *Handle) Free(fault *Fault) bool {
	return h.guard.Catch(fault, OpFree, func(c *call) *Fault {
		if s, ok := c.take(); ok {
			s.fail(ErrCancelled)
		}
		return nil
	})
}
