// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by pushd spans.
const (
	CommandKey      = "push.command"
	UAIDKey         = "push.uaid"
	ChannelIDKey    = "push.channel_id"
	MessageMonthKey = "push.message_month"
	MessagesKey     = "push.messages"
	OutcomeKey      = "push.outcome"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CommandAttributes describes one decision-service command. Empty values are
// left out.
func CommandAttributes(command, uaid, messageMonth string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(CommandKey, command)}
	if uaid != "" {
		attrs = append(attrs, attribute.String(UAIDKey, uaid))
	}
	if messageMonth != "" {
		attrs = append(attrs, attribute.String(MessageMonthKey, messageMonth))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span failed with err classified as errorType.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(ErrorAttributes(errorType)...)
}
