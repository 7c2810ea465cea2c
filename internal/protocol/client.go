// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package protocol defines the websocket messages exchanged with push clients.
//
// Both directions are JSON objects tagged by a lowercase "messageType".
// Unknown or differently-cased discriminants are rejected, never defaulted.
package protocol

import (
	"errors"
	"fmt"

	"github.com/ManuGH/pushd/internal/platform/jsonx"
	"github.com/google/uuid"
)

// Message types shared by client and server messages.
const (
	TypeHello        = "hello"
	TypeRegister     = "register"
	TypeUnregister   = "unregister"
	TypeAck          = "ack"
	TypeNotification = "notification"
)

// ErrUnknownMessageType is returned for a discriminant outside the schema.
var ErrUnknownMessageType = errors.New("unknown messageType")

// ClientMessage is one decoded client-to-server message.
type ClientMessage interface {
	MessageType() string
}

// ClientHello opens a session.
type ClientHello struct {
	UAID       *uuid.UUID  `json:"uaid,omitempty"`
	ChannelIDs []uuid.UUID `json:"channelIDs,omitempty"`
	UseWebPush *bool       `json:"use_webpush,omitempty"`
}

func (ClientHello) MessageType() string { return TypeHello }

// ClientRegister subscribes a channel.
type ClientRegister struct {
	ChannelID uuid.UUID `json:"channelID"`
}

func (ClientRegister) MessageType() string { return TypeRegister }

// ClientUnregister drops a channel subscription.
type ClientUnregister struct {
	ChannelID uuid.UUID `json:"channelID"`
}

func (ClientUnregister) MessageType() string { return TypeUnregister }

// ClientAck acknowledges delivered notifications.
type ClientAck struct {
	Updates []AckUpdate `json:"updates"`
}

func (ClientAck) MessageType() string { return TypeAck }

// AckUpdate names one acknowledged notification.
type AckUpdate struct {
	ChannelID uuid.UUID `json:"channelID"`
	Version   string    `json:"version"`
}

// DecodeClientMessage parses one client frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	tag, err := jsonx.Tag(data, "messageType")
	if err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	switch tag {
	case TypeHello:
		return decodeAs[ClientHello](data, tag)
	case TypeRegister:
		return decodeAs[ClientRegister](data, tag)
	case TypeUnregister:
		return decodeAs[ClientUnregister](data, tag)
	case TypeAck:
		return decodeAs[ClientAck](data, tag)
	default:
		return nil, fmt.Errorf("decode client message %q: %w", tag, ErrUnknownMessageType)
	}
}

// EncodeClientMessage renders a client message; used by test clients.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	return jsonx.Tagged("messageType", m.MessageType(), m)
}

func decodeAs[T ClientMessage](data []byte, tag string) (ClientMessage, error) {
	var msg T
	if err := jsonx.Strict(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message %q: %w", tag, err)
	}
	return msg, nil
}
