package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the closed set of tree node types.
// Only Null, Str, Num, Bool, Array, Object, and OrderedObject implement it.
type Value interface {
	value() // Sealed - only types in this package implement it
}

// Null represents a JSON null, including the "no value" result of
// accessing a field that is absent on a record.
type Null struct{}

func (Null) value() {}

// Str represents a string value.
type Str string

func (Str) value() {}

// Num represents a numeric value. Record scores and attendance are
// numbers in the 0-100 range; fractional marks are allowed, so this is
// a float64 rather than an integer type.
type Num float64

func (Num) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values. Batch order is
// significant: projections preserve it and filters keep relative order.
type Array []Value

func (Array) value() {}

// Object represents a string-keyed map of values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Field is one key/value entry of an OrderedObject.
type Field struct {
	Key string
	Val Value
}

// OrderedObject is an object whose keys serialize in declaration order
// instead of sorted order. Multi-key projections produce these so the
// output shape follows the query definition.
type OrderedObject []Field

func (OrderedObject) value() {}

// Get returns the value for key, or (nil, false) when absent.
func (o OrderedObject) Get(key string) (Value, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Val, true
		}
	}
	return nil, false
}

// SortedKeys returns keys ordered by UTF-16 code units (RFC 8785).
// Go's sort.Strings compares UTF-8 bytes, which orders differently
// outside the ASCII range.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required
// by RFC 8785 canonical JSON. utf16.Encode handles surrogate pairs.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := len(a16)
	if len(b16) < minLen {
		minLen = len(b16)
	}

	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// Decode parses JSON bytes into a Value tree.
// Numbers decode through json.Number so integer-valued marks survive
// the round trip without picking up a fractional representation.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	// Reject trailing content after the first JSON value.
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}

	return FromAny(raw)
}

// FromAny converts a decoded Go value (as produced by encoding/json
// with UseNumber) into a Value tree.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Num(f), nil
	case float64:
		return Num(val), nil
	case int:
		return Num(val), nil
	case int64:
		return Num(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Marshal serializes a Value to JSON. Object keys are emitted in
// RFC 8785 order and OrderedObject keys in declaration order, so the
// output is deterministic for a given tree. Strings are not NFC
// normalized here; use MarshalCanonical when byte identity matters.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("cannot marshal nil Value")
	case Null:
		return []byte("null"), nil
	case Str:
		return marshalString(string(val))
	case Num:
		return formatNum(float64(val))
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Array:
		return marshalArray(val)
	case Object:
		return marshalObject(val)
	case OrderedObject:
		return marshalOrderedObject(val)
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// formatNum renders a number the way JavaScript's JSON.stringify does:
// whole values print without a decimal point, others in shortest
// round-trip form.
func formatNum(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number cannot be serialized: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalString encodes a JSON string without HTML escaping.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it.
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

func marshalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := obj.SortedKeys()
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := Marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalOrderedObject(obj OrderedObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, f := range obj {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(f.Key)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Key, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := Marshal(f.Val)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", f.Key, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
