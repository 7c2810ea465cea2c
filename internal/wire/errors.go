// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrApplication classifies errors the decision service reported explicitly.
	ErrApplication = errors.New("decision service error")
	// ErrDeserialization classifies responses that did not match the expected shape.
	ErrDeserialization = errors.New("response deserialization failed")
	// ErrUnknownCommand is a request whose command tag is outside the schema.
	ErrUnknownCommand = errors.New("unknown command")
)

// ApplicationError carries the error_msg of an {"error":true} envelope.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("decision service exception: %s", e.Message)
}

func (e *ApplicationError) Is(target error) bool {
	return target == ErrApplication
}

// DeserializationError wraps the decode failure for a response body.
type DeserializationError struct {
	Target string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
