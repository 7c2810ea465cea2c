// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package jsonx holds the tagged-object and strict-decode helpers shared by
// the wire codec and the client protocol.
package jsonx

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrMissingTag is returned when a tagged object carries no discriminant.
	ErrMissingTag = errors.New("missing discriminant")
	// ErrNotObject is returned when the payload is not a JSON object.
	ErrNotObject = errors.New("payload is not a JSON object")
)

// Tagged marshals v and prepends tagField=tag to the resulting object, so the
// variant's fields sit flat beside the discriminant.
func Tagged(tagField, tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("tag %q: %w", tag, ErrNotObject)
	}
	head, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(tagField) + len(head) + len(body) + 4)
	buf.WriteByte('{')
	buf.WriteString(`"` + tagField + `":`)
	buf.Write(head)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Tag extracts the discriminant string stored under tagField.
func Tag(data []byte, tagField string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}
	if fields == nil {
		return "", ErrNotObject
	}
	raw, ok := fields[tagField]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%s: %w", tagField, ErrMissingTag)
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", fmt.Errorf("%s: %w", tagField, err)
	}
	return tag, nil
}

// FieldError reports a required field that was absent or null.
type FieldError struct {
	Path string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Path)
}

// CaseError reports an object key that names a field only when case is
// ignored. encoding/json would fill the field from it, so Strict refuses it.
type CaseError struct {
	Path string
	Key  string
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("key %q does not match field %q exactly", e.Key, e.Path)
}

// Strict decodes data into v. Every struct field that is not optional must be
// present and non-null; optional fields are pointers, maps, slices tagged
// omitempty, or anything tagged omitempty. Keys must spell field names
// exactly; other unknown keys are ignored. On error v is left untouched.
func Strict(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("jsonx: Strict needs a non-nil pointer, got %T", v)
	}
	if isNull(data) && rv.Type().Elem().Kind() == reflect.Struct {
		return ErrNotObject
	}
	if err := checkRequired(json.RawMessage(data), rv.Type().Elem(), ""); err != nil {
		return err
	}
	tmp := reflect.New(rv.Type().Elem())
	if err := json.Unmarshal(data, tmp.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}

type fieldSpec struct {
	name     string
	required bool
	typ      reflect.Type
}

var (
	specCache sync.Map // reflect.Type -> []fieldSpec

	unmarshalerType     = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

func fieldsOf(t reflect.Type) []fieldSpec {
	if cached, ok := specCache.Load(t); ok {
		return cached.([]fieldSpec)
	}
	var out []fieldSpec
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			out = append(out, fieldsOf(f.Type)...)
			continue
		}
		if name == "" {
			name = f.Name
		}
		optional := strings.Contains(opts, "omitempty")
		switch f.Type.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Interface:
			optional = true
		}
		out = append(out, fieldSpec{name: name, required: !optional, typ: f.Type})
	}
	specCache.Store(t, out)
	return out
}

func checkRequired(raw json.RawMessage, t reflect.Type, path string) error {
	if isNull(raw) {
		return nil
	}
	switch t.Kind() {
	case reflect.Pointer:
		return checkRequired(raw, t.Elem(), path)
	case reflect.Slice, reflect.Array:
		if !needsCheck(t.Elem()) {
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			// the type mismatch is reported by the real decode
			return nil
		}
		for i, item := range items {
			if err := checkRequired(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		if t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType) ||
			t.Implements(textUnmarshalerType) || reflect.PointerTo(t).Implements(textUnmarshalerType) {
			return nil
		}
	default:
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	specs := fieldsOf(t)
	if err := checkKeyCase(fields, specs, path); err != nil {
		return err
	}
	for _, spec := range specs {
		sub := joinPath(path, spec.name)
		val, ok := fields[spec.name]
		if spec.required && (!ok || isNull(val)) {
			return &FieldError{Path: sub}
		}
		if ok && needsCheck(spec.typ) {
			if err := checkRequired(val, spec.typ, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkKeyCase(fields map[string]json.RawMessage, specs []fieldSpec, path string) error {
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		for _, spec := range specs {
			if key != spec.name && strings.EqualFold(key, spec.name) {
				return &CaseError{Path: joinPath(path, spec.name), Key: key}
			}
		}
	}
	return nil
}

func needsCheck(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
