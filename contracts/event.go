package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the runtime type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindLong
	KindDouble
	KindString
	KindRecord
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindRecord:
		return "record"
	case KindList:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a tagged variant holding one event field value. Events are
// validated structurally against a schema, so the runtime type must be
// explicit rather than discovered through reflection.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	record map[string]Value
	list   []Value
}

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Long returns a 64-bit integer value.
func Long(i int64) Value {
	return Value{kind: KindLong, i: i}
}

// Double returns a floating point value.
func Double(f float64) Value {
	return Value{kind: KindDouble, f: f}
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// Record returns a nested record value.
func Record(fields map[string]Value) Value {
	return Value{kind: KindRecord, record: fields}
}

// List returns an array value.
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// BoolVal returns the boolean payload.
func (v Value) BoolVal() bool {
	return v.b
}

// LongVal returns the integer payload.
func (v Value) LongVal() int64 {
	return v.i
}

// DoubleVal returns the floating point payload. Long values widen.
func (v Value) DoubleVal() float64 {
	if v.kind == KindLong {
		return float64(v.i)
	}
	return v.f
}

// StringVal returns the string payload.
func (v Value) StringVal() string {
	return v.s
}

// RecordVal returns the nested record fields.
func (v Value) RecordVal() map[string]Value {
	return v.record
}

// ListVal returns the array items.
func (v Value) ListVal() []Value {
	return v.list
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindLong:
		return json.Marshal(v.i)
	case KindDouble:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindRecord:
		return json.Marshal(v.record)
	case KindList:
		// Marshal empty lists as [], not null
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fraction or
// exponent decode as long, everything else numeric as double.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	value, err := valueFromDecoded(raw)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

func valueFromDecoded(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Long(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Double(f), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for name, rawField := range t {
			fv, err := valueFromDecoded(rawField)
			if err != nil {
				return Value{}, err
			}
			fields[name] = fv
		}
		return Record(fields), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, rawItem := range t {
			iv, err := valueFromDecoded(rawItem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return Value{kind: KindList, list: items}, nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of type %T", raw)
	}
}

// CandidateEvent is an in-memory structured event produced by a caller before
// publication. It is transient and exists only for the duration of one
// publish attempt chain.
type CandidateEvent map[string]Value

// ParseCandidateEvent decodes a JSON payload into a CandidateEvent. Used by
// reprocessing, where only the preserved raw payload is available.
func ParseCandidateEvent(payload []byte) (CandidateEvent, error) {
	var root Value
	if err := root.UnmarshalJSON(payload); err != nil {
		return nil, fmt.Errorf("failed to parse candidate event: %w", err)
	}
	if root.Kind() != KindRecord {
		return nil, fmt.Errorf("candidate event must be a record, got %s", root.Kind())
	}
	return CandidateEvent(root.RecordVal()), nil
}

// Encode serializes the event to its wire form.
func (e CandidateEvent) Encode() ([]byte, error) {
	return json.Marshal(map[string]Value(e))
}
