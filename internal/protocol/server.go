// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

import (
	"fmt"

	"github.com/ManuGH/pushd/internal/platform/jsonx"
	"github.com/google/uuid"
)

// ServerMessage is one server-to-client message.
type ServerMessage interface {
	MessageType() string
}

// ServerHello answers a client hello.
type ServerHello struct {
	UAID       uuid.UUID `json:"uaid"`
	Status     uint32    `json:"status"`
	UseWebPush *bool     `json:"use_webpush,omitempty"`
}

func (ServerHello) MessageType() string { return TypeHello }

// ServerRegister answers a register.
type ServerRegister struct {
	ChannelID    uuid.UUID `json:"channelID"`
	Status       uint32    `json:"status"`
	PushEndpoint string    `json:"pushEndpoint"`
}

func (ServerRegister) MessageType() string { return TypeRegister }

// ServerUnregister answers an unregister.
type ServerUnregister struct {
	ChannelID uuid.UUID `json:"channelID"`
	Status    uint32    `json:"status"`
}

func (ServerUnregister) MessageType() string { return TypeUnregister }

// Notification is an unsolicited push delivered to an active session. It is
// also the stored-message shape returned by checkstorage.
type Notification struct {
	ChannelID uuid.UUID         `json:"channelID"`
	Version   string            `json:"version"`
	TTL       uint32            `json:"ttl"`
	Topic     *string           `json:"topic,omitempty"`
	Timestamp uint64            `json:"timestamp"`
	Data      *string           `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (Notification) MessageType() string { return TypeNotification }

// EncodeServerMessage renders m with its messageType discriminant.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode server message: nil")
	}
	b, err := jsonx.Tagged("messageType", m.MessageType(), m)
	if err != nil {
		return nil, fmt.Errorf("encode server message %q: %w", m.MessageType(), err)
	}
	return b, nil
}

// DecodeServerMessage parses a server frame; used by test clients.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	tag, err := jsonx.Tag(data, "messageType")
	if err != nil {
		return nil, fmt.Errorf("decode server message: %w", err)
	}
	switch tag {
	case TypeHello:
		return decodeServer[ServerHello](data, tag)
	case TypeRegister:
		return decodeServer[ServerRegister](data, tag)
	case TypeUnregister:
		return decodeServer[ServerUnregister](data, tag)
	case TypeNotification:
		return decodeServer[Notification](data, tag)
	default:
		return nil, fmt.Errorf("decode server message %q: %w", tag, ErrUnknownMessageType)
	}
}

func decodeServer[T ServerMessage](data []byte, tag string) (ServerMessage, error) {
	var msg T
	if err := jsonx.Strict(data, &msg); err != nil {
		return nil, fmt.Errorf("decode server message %q: %w", tag, err)
	}
	return msg, nil
}
