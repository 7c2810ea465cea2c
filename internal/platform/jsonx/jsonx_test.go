// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jsonx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Name string `json:"name"`
}

type outer struct {
	ID     int               `json:"id"`
	Label  *string           `json:"label"`
	Extra  string            `json:"extra,omitempty"`
	Meta   map[string]string `json:"meta"`
	Items  []inner           `json:"items"`
	Nested *inner            `json:"nested"`
}

func TestTagged(t *testing.T) {
	b, err := Tagged("command", "hello", struct {
		A int `json:"a"`
	}{A: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"command":"hello","a":1}`, string(b))

	b, err = Tagged("messageType", "ack", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, `{"messageType":"ack"}`, string(b))

	_, err = Tagged("command", "x", []int{1})
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestTag(t *testing.T) {
	tag, err := Tag([]byte(`{"messageType":"hello","uaid":null}`), "messageType")
	require.NoError(t, err)
	assert.Equal(t, "hello", tag)

	_, err = Tag([]byte(`{"uaid":null}`), "messageType")
	assert.ErrorIs(t, err, ErrMissingTag)

	_, err = Tag([]byte(`{"messageType":null}`), "messageType")
	assert.ErrorIs(t, err, ErrMissingTag)

	_, err = Tag([]byte(`null`), "messageType")
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = Tag([]byte(`{"messageType":7}`), "messageType")
	assert.Error(t, err)

	_, err = Tag([]byte(`[`), "messageType")
	assert.Error(t, err)
}

func TestStrictAcceptsOptionalOmissions(t *testing.T) {
	var v outer
	require.NoError(t, Strict([]byte(`{"id":3,"items":[],"unknown":true}`), &v))
	assert.Equal(t, 3, v.ID)
	assert.Nil(t, v.Label)
	assert.Nil(t, v.Nested)
	assert.Empty(t, v.Items)
}

func TestStrictMissingRequired(t *testing.T) {
	cases := map[string]struct {
		input string
		path  string
	}{
		"absent":        {`{"items":[]}`, "id"},
		"null":          {`{"id":null,"items":[]}`, "id"},
		"slice absent":  {`{"id":1}`, "items"},
		"nested item":   {`{"id":1,"items":[{"name":"a"},{}]}`, "items[1].name"},
		"nested struct": {`{"id":1,"items":[],"nested":{}}`, "nested.name"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := outer{ID: 42}
			err := Strict([]byte(tc.input), &v)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tc.path, fe.Path)
			assert.Equal(t, 42, v.ID, "target must stay untouched")
		})
	}
}

func TestStrictTypeMismatch(t *testing.T) {
	v := outer{ID: 42}
	err := Strict([]byte(`{"id":"three","items":[]}`), &v)
	require.Error(t, err)
	assert.Equal(t, 42, v.ID)
}

func TestStrictTopLevelNull(t *testing.T) {
	var v outer
	assert.ErrorIs(t, Strict([]byte(`null`), &v), ErrNotObject)
}

func TestStrictNeedsPointer(t *testing.T) {
	assert.Error(t, Strict([]byte(`{}`), outer{}))
	var nilPtr *outer
	assert.Error(t, Strict([]byte(`{}`), nilPtr))
}

func TestStrictRejectsKeysDifferingOnlyInCase(t *testing.T) {
	cases := map[string]struct {
		input string
		path  string
		key   string
	}{
		"top level":    {`{"ID":3,"items":[]}`, "id", "ID"},
		"optional":     {`{"id":3,"items":[],"Label":"x"}`, "label", "Label"},
		"beside exact": {`{"id":3,"Id":4,"items":[]}`, "id", "Id"},
		"nested item":  {`{"id":1,"items":[{"NAME":"a"}]}`, "items[0].name", "NAME"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := outer{ID: 42}
			err := Strict([]byte(tc.input), &v)
			var ce *CaseError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.path, ce.Path)
			assert.Equal(t, tc.key, ce.Key)
			assert.Equal(t, 42, v.ID, "target must stay untouched")
		})
	}
}
