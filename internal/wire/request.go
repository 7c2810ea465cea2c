// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"time"

	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/uuid"
)

// Command names are the lowercase variant names carried in the "command" field.
const (
	CommandHello         = "hello"
	CommandCheckStorage  = "checkstorage"
	CommandRegister      = "register"
	CommandUnregister    = "unregister"
	CommandDropUser      = "dropuser"
	CommandDelete        = "delete"
	CommandStoreMessages = "storemessages"
)

// Request is one outbound call variant.
type Request interface {
	Command() string
}

// HelloRequest asks the decision service to establish a session.
type HelloRequest struct {
	ConnectedAt int64      `json:"connected_at"`
	UAID        *uuid.UUID `json:"uaid"`
}

func (HelloRequest) Command() string { return CommandHello }

// CheckStorageRequest asks for pending messages stored for a UAID.
type CheckStorageRequest struct {
	UAID         uuid.UUID `json:"uaid"`
	MessageMonth string    `json:"message_month"`
	IncludeTopic bool      `json:"include_topic"`
	Timestamp    *int64    `json:"timestamp"`
}

func (CheckStorageRequest) Command() string { return CommandCheckStorage }

// RegisterRequest records a channel subscription for a UAID.
type RegisterRequest struct {
	UAID         uuid.UUID `json:"uaid"`
	ChannelID    uuid.UUID `json:"channel_id"`
	MessageMonth string    `json:"message_month"`
}

func (RegisterRequest) Command() string { return CommandRegister }

// UnregisterRequest removes a channel subscription.
type UnregisterRequest struct {
	UAID         uuid.UUID `json:"uaid"`
	ChannelID    uuid.UUID `json:"channel_id"`
	MessageMonth string    `json:"message_month"`
}

func (UnregisterRequest) Command() string { return CommandUnregister }

// DropUserRequest forgets a UAID and everything stored for it.
type DropUserRequest struct {
	UAID uuid.UUID `json:"uaid"`
}

func (DropUserRequest) Command() string { return CommandDropUser }

// DeleteRequest removes one stored message after the client acked it.
type DeleteRequest struct {
	UAID         uuid.UUID `json:"uaid"`
	MessageMonth string    `json:"message_month"`
	ChannelID    uuid.UUID `json:"channel_id"`
	Version      string    `json:"version"`
}

func (DeleteRequest) Command() string { return CommandDelete }

// StoreMessagesRequest hands back notifications a closing connection could
// not get acknowledged.
type StoreMessagesRequest struct {
	UAID         uuid.UUID               `json:"uaid"`
	MessageMonth string                  `json:"message_month"`
	Messages     []protocol.Notification `json:"messages"`
}

func (StoreMessagesRequest) Command() string { return CommandStoreMessages }

// ConnectedAtMillis converts a connection time to milliseconds since epoch.
// Sub-millisecond precision is truncated.
func ConnectedAtMillis(t time.Time) int64 {
	return t.Unix()*1000 + int64(t.Nanosecond())/int64(time.Millisecond)
}
