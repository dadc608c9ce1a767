package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
)

// Value is a tagged variant for a single needle field. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	List  []string
}

// Null returns the null Value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float returns a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List returns a string-list Value.
func List(items []string) Value { return Value{Kind: KindList, List: items} }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Display renders the value for human-facing output (CSV cells, log lines).
// Null renders as the empty string.
func (v Value) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, "; ")
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its native JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return nil, eris.Errorf("model: unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes any JSON scalar or string array into the matching
// variant. Integral numbers without a fraction become KindInt.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return eris.Wrap(err, "model: decode value")
	}
	parsed, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromAny converts a decoded JSON value (as produced by encoding/json)
// into a tagged Value. Lists must contain only strings or scalars, which are
// stringified.
func ValueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, eris.Wrapf(err, "model: parse number %q", x.String())
		}
		return Float(f), nil
	case float64:
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, el := range x {
			switch s := el.(type) {
			case string:
				items = append(items, s)
			case json.Number:
				items = append(items, s.String())
			case float64, int, int64, bool:
				items = append(items, fmt.Sprintf("%v", s))
			default:
				return Value{}, eris.Errorf("model: unsupported list element %T", el)
			}
		}
		return List(items), nil
	case []string:
		return List(x), nil
	default:
		return Value{}, eris.Errorf("model: unsupported value type %T", raw)
	}
}

// Needle is one extracted record: field name to tagged value. encoding/json
// marshals map keys in sorted order, so serialized needles are deterministic.
type Needle map[string]Value

// PopulatedCount returns the number of non-null fields.
func (n Needle) PopulatedCount() int {
	count := 0
	for _, v := range n {
		if !v.IsNull() {
			count++
		}
	}
	return count
}

// FieldNames returns the needle's field names in unspecified order.
func (n Needle) FieldNames() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}
	return names
}
