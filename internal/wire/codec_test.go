// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/pushd/internal/platform/jsonx"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHello(t *testing.T) {
	out, err := Encode(HelloRequest{ConnectedAt: 10500})
	require.NoError(t, err)
	assert.Equal(t, `{"command":"hello","connected_at":10500,"uaid":null}`, out)

	uaid := uuid.MustParse("deadbeef-0000-0000-0000-0000000000aa")
	out, err = Encode(HelloRequest{ConnectedAt: 1, UAID: &uaid})
	require.NoError(t, err)
	assert.Equal(t, `{"command":"hello","connected_at":1,"uaid":"deadbeef-0000-0000-0000-0000000000aa"}`, out)
}

func TestEncodeCheckStorage(t *testing.T) {
	uaid := uuid.MustParse("deadbeef-0000-0000-0000-0000000000aa")
	ts := int64(77)
	out, err := Encode(CheckStorageRequest{UAID: uaid, MessageMonth: "2025-01", IncludeTopic: true, Timestamp: &ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"checkstorage","uaid":"deadbeef-0000-0000-0000-0000000000aa","message_month":"2025-01","include_topic":true,"timestamp":77}`, out)
}

func TestEncodeCommandsAreLowercase(t *testing.T) {
	id := uuid.New()
	for _, req := range []Request{
		HelloRequest{},
		CheckStorageRequest{},
		RegisterRequest{UAID: id, ChannelID: id},
		UnregisterRequest{UAID: id, ChannelID: id},
		DropUserRequest{UAID: id},
		DeleteRequest{UAID: id, ChannelID: id, Version: "v"},
		StoreMessagesRequest{UAID: id},
	} {
		out, err := Encode(req)
		require.NoError(t, err)
		tag, err := jsonx.Tag([]byte(out), "command")
		require.NoError(t, err)
		assert.Equal(t, req.Command(), tag)
	}
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestHelloRoundTrip(t *testing.T) {
	uaid := uuid.New()
	in := HelloResponse{UAID: &uaid, MessageMonth: "2025-02", RotateMessageTable: true}
	text, err := EncodeResponse(in)
	require.NoError(t, err)

	got, err := Decode[HelloResponse](text)
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckStorageRoundTrip(t *testing.T) {
	topic := "weather"
	in := CheckStorageResponse{
		IncludeTopic: true,
		Messages: []protocol.Notification{
			{ChannelID: uuid.New(), Version: "v1", TTL: 60, Topic: &topic, Timestamp: 9},
		},
	}
	text, err := EncodeResponse(in)
	require.NoError(t, err)

	got, err := Decode[CheckStorageResponse](text)
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorEnvelopeForAnyTarget(t *testing.T) {
	text := `{"error":true,"error_msg":"boom"}`

	_, err := Decode[HelloResponse](text)
	assertApplication(t, err, "boom")
	_, err = Decode[CheckStorageResponse](text)
	assertApplication(t, err, "boom")
	_, err = Decode[RegisterResponse](text)
	assertApplication(t, err, "boom")
	_, err = Decode[SuccessResponse](EncodeError("boom"))
	assertApplication(t, err, "boom")
}

func assertApplication(t *testing.T, err error, msg string) {
	t.Helper()
	var app *ApplicationError
	require.True(t, errors.As(err, &app), "got %v", err)
	assert.Equal(t, msg, app.Message)
	assert.ErrorIs(t, err, ErrApplication)
	assert.NotErrorIs(t, err, ErrDeserialization)
}

func TestErrorFalseIsNotAnEnvelope(t *testing.T) {
	_, ok := ProbeError(`{"error":false,"error_msg":"x"}`)
	assert.False(t, ok)
	_, ok = ProbeError(`not json`)
	assert.False(t, ok)

	got, err := Decode[SuccessResponse](`{"error":false,"success":true}`)
	require.NoError(t, err)
	assert.True(t, got.Success)
}

func TestEnvelopeWithoutMessageIsNotAnApplicationError(t *testing.T) {
	for _, text := range []string{
		`{"error":true}`,
		`{"error":true,"error_msg":null}`,
		`{"error":true,"error_msg":7}`,
	} {
		_, ok := ProbeError(text)
		assert.False(t, ok, text)

		got, err := Decode[HelloResponse](text)
		assert.ErrorIs(t, err, ErrDeserialization, text)
		assert.NotErrorIs(t, err, ErrApplication, text)
		assert.Equal(t, HelloResponse{}, got, text)
	}

	msg, ok := ProbeError(`{"error":true,"error_msg":""}`)
	assert.True(t, ok, "an empty message is still a message")
	assert.Empty(t, msg)
}

func TestCaseVariantKeysAreDeserializationErrors(t *testing.T) {
	_, err := Decode[HelloResponse](`{"UAID":null,"message_month":"m","reset_uaid":false,"rotate_message_table":false}`)
	assert.ErrorIs(t, err, ErrDeserialization)

	var ce *jsonx.CaseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "uaid", ce.Path)
}

func TestMissingFieldYieldsZeroValue(t *testing.T) {
	got, err := Decode[HelloResponse](`{"uaid":null,"reset_uaid":false,"rotate_message_table":false}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeserialization)
	assert.Equal(t, HelloResponse{}, got)

	var fe *jsonx.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "message_month", fe.Path)
}

func TestWrongTypesAreDeserializationErrors(t *testing.T) {
	cases := []string{
		`{"uaid":"not-a-uuid","message_month":"m","reset_uaid":false,"rotate_message_table":false}`,
		`{"uaid":null,"message_month":3,"reset_uaid":false,"rotate_message_table":false}`,
		`{"uaid":null,"message_month":"m","reset_uaid":"yes","rotate_message_table":false}`,
		`[]`,
		`null`,
		``,
	}
	for _, text := range cases {
		got, err := Decode[HelloResponse](text)
		assert.ErrorIs(t, err, ErrDeserialization, text)
		assert.Equal(t, HelloResponse{}, got, text)
	}
}

func TestNestedNotificationRequiresFields(t *testing.T) {
	_, err := Decode[CheckStorageResponse](`{"include_topic":false,"messages":[{"version":"v"}],"timestamp":null}`)
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestUnknownFieldsTolerated(t *testing.T) {
	got, err := Decode[RegisterResponse](`{"endpoint_key":"k","future":1}`)
	require.NoError(t, err)
	assert.Equal(t, "k", got.EndpointKey)
}

func TestConnectedAtMillis(t *testing.T) {
	assert.Equal(t, int64(10500), ConnectedAtMillis(time.Unix(10, 500_000_000)))
	assert.Equal(t, int64(10999), ConnectedAtMillis(time.Unix(10, 999_999_999)))
	assert.Equal(t, int64(0), ConnectedAtMillis(time.Unix(0, 999_999)))
}

func TestDecodeRequest(t *testing.T) {
	uaid := uuid.New()
	ts := int64(3)
	for _, req := range []Request{
		HelloRequest{ConnectedAt: 10500, UAID: &uaid},
		HelloRequest{ConnectedAt: 1},
		CheckStorageRequest{UAID: uaid, MessageMonth: "2025-01", IncludeTopic: true, Timestamp: &ts},
		RegisterRequest{UAID: uaid, ChannelID: uuid.New(), MessageMonth: "2025-01"},
		UnregisterRequest{UAID: uaid, ChannelID: uuid.New(), MessageMonth: "2025-01"},
		DropUserRequest{UAID: uaid},
		DeleteRequest{UAID: uaid, MessageMonth: "2025-01", ChannelID: uuid.New(), Version: "v1"},
		StoreMessagesRequest{UAID: uaid, MessageMonth: "2025-01", Messages: []protocol.Notification{
			{ChannelID: uuid.New(), Version: "v2", TTL: 60, Timestamp: 8},
		}},
	} {
		text, err := Encode(req)
		require.NoError(t, err)
		got, err := DecodeRequest(text)
		require.NoError(t, err)
		if diff := cmp.Diff(req, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", req.Command(), diff)
		}
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	_, err := DecodeRequest(`{"command":"reboot"}`)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = DecodeRequest(`{"command":"dropuser"}`)
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = DecodeRequest(`{"uaid":null}`)
	assert.ErrorIs(t, err, jsonx.ErrMissingTag)
}
