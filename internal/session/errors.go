// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminate tells the transport to close the connection. It wraps the
	// cause, so callers can still match bridge errors such as ErrCancelled.
	ErrTerminate = errors.New("session must be terminated")
	// ErrIllegalTransition is a client message not allowed in the current state.
	ErrIllegalTransition = errors.New("illegal session transition")
	// ErrNotActive rejects server-initiated traffic before the handshake.
	ErrNotActive = errors.New("session not active")
)

type transitionError struct {
	from  State
	event EventKind
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("event %s not allowed in state %s", e.event, e.from)
}

func (e *transitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
