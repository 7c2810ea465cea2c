// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

// State is the protocol state of one client connection. Closed is owned by
// the transport and therefore not modelled here.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateHelloPending    State = "hello_pending"
	StateActive          State = "active"
)

// EventKind is an input to the state machine.
type EventKind string

const (
	EvClientHello   EventKind = "client_hello"
	EvHelloAccepted EventKind = "hello_accepted"
	EvHelloRejected EventKind = "hello_rejected"
	EvRegister      EventKind = "register"
	EvUnregister    EventKind = "unregister"
	EvAck           EventKind = "ack"
	EvNotify        EventKind = "notify"
)

// Transition is a single allowed edge in the session state machine.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

var transitionsTable = []Transition{
	// Handshake
	{From: StateUnauthenticated, To: StateHelloPending, Event: EvClientHello},
	{From: StateHelloPending, To: StateActive, Event: EvHelloAccepted},
	{From: StateHelloPending, To: StateUnauthenticated, Event: EvHelloRejected},

	// Active session traffic
	{From: StateActive, To: StateActive, Event: EvRegister},
	{From: StateActive, To: StateActive, Event: EvUnregister},
	{From: StateActive, To: StateActive, Event: EvAck},
	{From: StateActive, To: StateActive, Event: EvNotify},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
