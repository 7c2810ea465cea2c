// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package wire is the text codec for calls crossing to the decision service.
//
// Requests are flat JSON objects tagged by a lowercase "command" field.
// Responses are either the command's domain object or an error envelope
// {"error":true,"error_msg":"..."}; the envelope is probed first and wins
// regardless of the type the caller expected.
package wire

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ManuGH/pushd/internal/platform/jsonx"
)

// Encode renders req as a tagged object.
func Encode(req Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("encode: nil request")
	}
	b, err := jsonx.Tagged("command", req.Command(), req)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", req.Command(), err)
	}
	return string(b), nil
}

// Decode parses a response body into T. An error envelope yields
// *ApplicationError; any structural mismatch yields *DeserializationError and
// the zero value of T.
func Decode[T any](text string) (T, error) {
	var zero T
	if msg, ok := ProbeError(text); ok {
		return zero, &ApplicationError{Message: msg}
	}
	var out T
	if err := jsonx.Strict([]byte(text), &out); err != nil {
		return zero, &DeserializationError{Target: typeName[T](), Err: err}
	}
	return out, nil
}

// ProbeError reports whether text is an error envelope: error == true with a
// string error_msg. Anything else is left to the structural decode.
func ProbeError(text string) (string, bool) {
	var envelope struct {
		Error    *bool   `json:"error"`
		ErrorMsg *string `json:"error_msg"`
	}
	if err := jsonx.Strict([]byte(text), &envelope); err != nil {
		return "", false
	}
	if envelope.Error == nil || !*envelope.Error || envelope.ErrorMsg == nil {
		return "", false
	}
	return *envelope.ErrorMsg, true
}

// EncodeError renders the error envelope for msg.
func EncodeError(msg string) string {
	b, err := json.Marshal(ErrorEnvelope{Error: true, ErrorMsg: msg})
	if err != nil {
		return `{"error":true,"error_msg":"unencodable error"}`
	}
	return string(b)
}

// EncodeResponse renders a domain response object.
func EncodeResponse(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return t.String()
}

// DecodeRequest parses a tagged request; the decision service side of Encode.
func DecodeRequest(text string) (Request, error) {
	data := []byte(text)
	command, err := jsonx.Tag(data, "command")
	if err != nil {
		return nil, &DeserializationError{Target: "Request", Err: err}
	}
	switch command {
	case CommandHello:
		return decodeRequest[HelloRequest](data)
	case CommandCheckStorage:
		return decodeRequest[CheckStorageRequest](data)
	case CommandRegister:
		return decodeRequest[RegisterRequest](data)
	case CommandUnregister:
		return decodeRequest[UnregisterRequest](data)
	case CommandDropUser:
		return decodeRequest[DropUserRequest](data)
	case CommandDelete:
		return decodeRequest[DeleteRequest](data)
	case CommandStoreMessages:
		return decodeRequest[StoreMessagesRequest](data)
	default:
		return nil, &DeserializationError{Target: "Request", Err: fmt.Errorf("%w: %q", ErrUnknownCommand, command)}
	}
}

func decodeRequest[T Request](data []byte) (Request, error) {
	var req T
	if err := jsonx.Strict(data, &req); err != nil {
		return nil, &DeserializationError{Target: typeName[T](), Err: err}
	}
	return req, nil
}
