// Package fact defines the typed, namespaced observation that flows from
// probes to rules.
package fact

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
)

// Kind tags the concrete type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	BigInt
	String
)

// Value is a tagged union over the allowed fact value types:
// null | boolean | integer | floating | big-integer | string.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	big  *big.Int
	s    string
}

func NullValue() Value           { return Value{kind: Null} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }
func IntValue(i int64) Value     { return Value{kind: Int, i: i} }
func FloatValue(f float64) Value { return Value{kind: Float, f: f} }
func StringValue(s string) Value { return Value{kind: String, s: s} }
func BigIntValue(v *big.Int) Value {
	if v == nil {
		return NullValue()
	}
	return Value{kind: BigInt, big: v}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

// String renders the value for templates and logs.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.b)
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case BigInt:
		if v.big == nil {
			return "null"
		}
		return v.big.String()
	case String:
		return v.s
	default:
		return ""
	}
}

// CoerceNumeric converts a fact value to float64 for rule comparison.
// Rules consult this and treat a failed coercion as "no alert", never as
// an error.
func CoerceNumeric(v Value) (float64, bool) {
	switch v.kind {
	case Int:
		return float64(v.i), true
	case Float:
		return v.f, true
	case BigInt:
		if v.big == nil {
			return 0, false
		}
		f := new(big.Float).SetInt(v.big)
		out, _ := f.Float64()
		return out, true
	case Bool:
		if v.b {
			return 1, true
		}
		return 0, true
	case String:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Bag is the mapping from dotted, namespaced fact key to Value that a
// probe's Collect call produces.
type Bag map[string]Value

// Set stores a plain Go value as a Value, inferring the kind.
func (b Bag) Set(key string, v any) {
	b[key] = From(v)
}

// From infers a Value from a plain Go value. Unsupported types become
// their string representation rather than failing collection.
func From(v any) Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case *big.Int:
		return BigIntValue(t)
	case string:
		return StringValue(t)
	default:
		return StringValue(fmt.Sprint(t))
	}
}

var keyShape = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*\.[a-zA-Z0-9_.]+$`)

// ValidateKey reports whether key conforms to the "<namespace>.<rest>"
// shape. It is advisory only: callers log a warning on false, they never
// fail collection over it.
func ValidateKey(key string) bool {
	return keyShape.MatchString(key)
}
