// Package llmjson locates, repairs and decodes JSON embedded in free-form
// model completions. Decoded data is exposed only as an untrusted Value that
// validators read through typed accessors.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// Kind classifies a decoded JSON value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON value produced by a completion service. Nothing about its
// shape is guaranteed; callers must go through the accessors.
type Value struct {
	raw any
}

// Parse decodes exactly one JSON value from s. Trailing non-whitespace is an error.
func Parse(s string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset())
	}
	return Value{raw: raw}, nil
}

// Kind reports the JSON kind of v.
func (v Value) Kind() Kind {
	switch v.raw.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number, float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.raw == nil }

// Text returns v as a string.
func (v Value) Text() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// Float returns v as a float64.
func (v Value) Float() (float64, bool) {
	switch n := v.raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

// Int returns v as an int. Numbers with a zero fractional part ("24.0") are
// accepted. Numbers outside the int range are rejected.
func (v Value) Int() (int, bool) {
	if n, ok := v.raw.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			if i < math.MinInt || i > math.MaxInt {
				return 0, false
			}
			return int(i), true
		}
	}
	f, ok := v.Float()
	if !ok || f != math.Trunc(f) || f < math.MinInt || f >= -math.MinInt {
		return 0, false
	}
	return int(f), true
}

// Array returns the elements of v when it is a JSON array.
func (v Value) Array() ([]Value, bool) {
	items, ok := v.raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Value{raw: item}
	}
	return out, true
}

// Field returns the member key of an object value.
func (v Value) Field(key string) (Value, bool) {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return Value{}, false
	}
	member, ok := obj[key]
	return Value{raw: member}, ok
}

// Has reports whether v is an object containing key.
func (v Value) Has(key string) bool {
	_, ok := v.Field(key)
	return ok
}

// Keys returns the sorted member names of an object value.
func (v Value) Keys() []string {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of elements or members, or 0 for scalars.
func (v Value) Len() int {
	switch t := v.raw.(type) {
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}
	return 0
}

// Untyped exposes the decoded tree for schema engines that walk generic Go
// values. Validators must not convert it into domain types directly.
func (v Value) Untyped() any { return v.raw }
