// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
)

// HelloResponse answers a hello command.
type HelloResponse struct {
	UAID               *uuid.UUID `json:"uaid"`
	MessageMonth       string     `json:"message_month"`
	ResetUAID          bool       `json:"reset_uaid"`
	RotateMessageTable bool       `json:"rotate_message_table"`
}

// CheckStorageResponse answers a checkstorage command. Timestamp is set when
// the batch filled a page, so more messages may follow at or after it.
type CheckStorageResponse struct {
	IncludeTopic bool                    `json:"include_topic"`
	Messages     []protocol.Notification `json:"messages"`
	Timestamp    *int64                  `json:"timestamp"`
}

// RegisterResponse answers a register command.
type RegisterResponse struct {
	EndpointKey string `json:"endpoint_key"`
}

// SuccessResponse answers unregister, dropuser, delete and storemessages.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorEnvelope is the shape the decision service uses to report a failure.
type ErrorEnvelope struct {
	Error    bool   `json:"error"`
	ErrorMsg string `json:"error_msg"`
}
