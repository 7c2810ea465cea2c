// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldUAID      = "uaid"
	FieldChannelID = "channel_id"
	FieldRemote    = "remote_addr"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCommand   = "command"
	FieldOp        = "op"
	FieldOutcome   = "outcome"

	// Protocol fields
	FieldMessageType = "message_type"
	FieldStatus      = "status"
	FieldVersion     = "version"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Storage fields
	FieldBackend      = "backend"
	FieldMessageMonth = "message_month"
)
