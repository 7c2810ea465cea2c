// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/pushd/internal/wire"
)

var (
	// ErrLinkGone means the decision service side of the link has exited.
	// It is fatal for the bridge: every later call fails the same way.
	ErrLinkGone = errors.New("decision service link gone")
	// ErrCancelled means the call was released without ever being completed.
	ErrCancelled = errors.New("call cancelled by decision service")
	// ErrBoundaryFault classifies a fault contained by a Guard.
	ErrBoundaryFault = errors.New("boundary fault")
	// ErrRetired classifies operations on an already completed or freed handle.
	ErrRetired = errors.New("handle already retired")
)

// FaultCode is the out-of-band error code written into a Fault slot.
type FaultCode int

const (
	FaultNone FaultCode = iota
	// FaultPanic is an unexpected fault inside a guarded operation. A guard
	// that caught one reports FaultPanic for every later operation.
	FaultPanic
	// FaultRetired is a use of a handle after its completion or release.
	FaultRetired
)

func (c FaultCode) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultPanic:
		return "panic"
	case FaultRetired:
		return "retired"
	default:
		return fmt.Sprintf("fault(%d)", int(c))
	}
}

// Fault is the error slot filled by guarded operations.
type Fault struct {
	Code    FaultCode
	Op      string
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Code, f.Message)
}

func (f *Fault) Is(target error) bool {
	switch f.Code {
	case FaultPanic:
		return target == ErrBoundaryFault
	case FaultRetired:
		return target == ErrRetired
	}
	return false
}

// Failed reports whether the slot holds a fault.
func (f *Fault) Failed() bool {
	return f != nil && f.Code != FaultNone
}

// Reset clears the slot for reuse.
func (f *Fault) Reset() {
	*f = Fault{}
}

// Outcome labels used for metrics and logs.
const (
	OutcomeOK            = "ok"
	OutcomeApplication   = "application_error"
	OutcomeDeserialize   = "deserialization_error"
	OutcomeCancelled     = "cancelled"
	OutcomeLinkGone      = "link_gone"
	OutcomeBoundaryFault = "boundary_fault"
	OutcomeContext       = "context"
	OutcomeError         = "error"
)

// Classify maps a call result error to its outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrLinkGone):
		return OutcomeLinkGone
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrBoundaryFault):
		return OutcomeBoundaryFault
	case errors.Is(err, wire.ErrApplication):
		return OutcomeApplication
	case errors.Is(err, wire.ErrDeserialization):
		return OutcomeDeserialize
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeContext
	default:
		return OutcomeError
	}
}
