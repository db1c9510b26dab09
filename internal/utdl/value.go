package utdl

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags the concrete type a Value holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// Value is a tagged union over the JSON value types that appear in
// Config.Variables, Step.Params, and Assertion.Value. It avoids scattering
// `interface{}` type-switches across the cache fingerprinting and plan
// diffing call sites.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Array  []Value
	Object map[string]Value
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Null() Value            { return Value{Kind: KindNull} }

// FromAny converts a decoded interface{} (as produced by encoding/json) into
// a Value tree.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case bool:
		return Bool(t)
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for _, item := range t {
			arr = append(arr, FromAny(item))
		}
		return Value{Kind: KindArray, Array: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			obj[k] = FromAny(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Value{Kind: KindString, Str: fmt.Sprintf("%v", t)}
	}
}

// Any converts a Value back to a plain interface{} for JSON marshaling or
// for passing to gjson (orchestrator report parsing) or jsonpath (validator
// path syntax checks).
func (v Value) Any() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindArray:
		out := make([]interface{}, 0, len(v.Array))
		for _, item := range v.Array {
			out = append(out, item.Any())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Equal performs a deep structural comparison, used by the version store's
// diff computation.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindString:
		return a.Str == b.Str
	case KindNumber:
		return a.Num == b.Num
	case KindBool:
		return a.Bool == b.Bool
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.Object) != len(b.Object) {
			return false
		}
		for k, av := range a.Object {
			bv, ok := b.Object[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ValueMap is a mapping string->Value with JSON marshaling that round-trips
// through the tagged union above.
type ValueMap map[string]Value

// MapFromAny builds a ValueMap from a decoded map[string]interface{}.
func MapFromAny(m map[string]interface{}) ValueMap {
	out := make(ValueMap, len(m))
	for k, v := range m {
		out[k] = FromAny(v)
	}
	return out
}
