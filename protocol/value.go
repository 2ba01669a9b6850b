package protocol

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the active payload of a Value.
type ValueKind string

const (
	KindAbsent ValueKind = "absent"
	KindFloat  ValueKind = "float"
	KindInt    ValueKind = "int"
	KindString ValueKind = "string"
	KindBool   ValueKind = "bool"
)

// Value is a tagged scalar container used for both static device attributes
// and dynamic statistics. At most one payload is populated, and Kind names it.
// Float and Int values may additionally carry a denominator of the same
// numeric type, turning them into a ratio (e.g. used/total). The ratio is
// deliberately kept as a pair: consumers that aggregate across devices need
// to sum numerators and denominators, not average pre-divided percentages.
type Value struct {
	Kind ValueKind `json:"kind"`

	FloatVal  *float64 `json:"float,omitempty"`
	IntVal    *int64   `json:"int,omitempty"`
	StringVal *string  `json:"string,omitempty"`
	BoolVal   *bool    `json:"bool,omitempty"`

	// Denominators are only valid alongside the matching numerator kind.
	FloatDenominator *float64 `json:"float_denominator,omitempty"`
	IntDenominator   *int64   `json:"int_denominator,omitempty"`

	Unit string `json:"unit,omitempty"`
	Desc string `json:"desc,omitempty"`
}

// AbsentValue returns a Value carrying no data.
func AbsentValue() Value {
	return Value{Kind: KindAbsent}
}

// FloatValue returns a float-kinded Value.
func FloatValue(v float64, unit string) Value {
	return Value{Kind: KindFloat, FloatVal: &v, Unit: unit}
}

// IntValue returns an int-kinded Value.
func IntValue(v int64, unit string) Value {
	return Value{Kind: KindInt, IntVal: &v, Unit: unit}
}

// StringValue returns a string-kinded Value.
func StringValue(v string) Value {
	return Value{Kind: KindString, StringVal: &v}
}

// BoolValue returns a bool-kinded Value.
func BoolValue(v bool) Value {
	return Value{Kind: KindBool, BoolVal: &v}
}

// FloatRatio returns a float-kinded Value with a denominator.
// Division by zero is the consumer's concern; a zero denominator is legal here.
func FloatRatio(num, den float64, unit string) Value {
	return Value{Kind: KindFloat, FloatVal: &num, FloatDenominator: &den, Unit: unit}
}

// IntRatio returns an int-kinded Value with a denominator.
func IntRatio(num, den int64, unit string) Value {
	return Value{Kind: KindInt, IntVal: &num, IntDenominator: &den, Unit: unit}
}

// WithDesc returns a copy of the Value with the description set.
func (v Value) WithDesc(desc string) Value {
	v.Desc = desc
	return v
}

// IsAbsent reports whether the Value carries no data.
func (v Value) IsAbsent() bool {
	return v.Kind == KindAbsent || v.Kind == ""
}

// IsRatio reports whether the Value carries a denominator.
func (v Value) IsRatio() bool {
	return v.FloatDenominator != nil || v.IntDenominator != nil
}

// Validate enforces the exclusivity invariant: the payload population must
// match Kind exactly, and a denominator must match the numerator's type.
// A Value that sets multiple payloads, or whose Kind names an unset payload,
// is rejected; no normalization is attempted.
func (v Value) Validate() error {
	populated := 0
	if v.FloatVal != nil {
		populated++
	}
	if v.IntVal != nil {
		populated++
	}
	if v.StringVal != nil {
		populated++
	}
	if v.BoolVal != nil {
		populated++
	}
	if populated > 1 {
		return fmt.Errorf("value: %d payloads populated, want at most one", populated)
	}

	switch v.Kind {
	case KindAbsent, "":
		if populated != 0 {
			return fmt.Errorf("value: absent kind with a populated payload")
		}
	case KindFloat:
		if v.FloatVal == nil {
			return fmt.Errorf("value: kind %q with no float payload", v.Kind)
		}
	case KindInt:
		if v.IntVal == nil {
			return fmt.Errorf("value: kind %q with no int payload", v.Kind)
		}
	case KindString:
		if v.StringVal == nil {
			return fmt.Errorf("value: kind %q with no string payload", v.Kind)
		}
	case KindBool:
		if v.BoolVal == nil {
			return fmt.Errorf("value: kind %q with no bool payload", v.Kind)
		}
	default:
		return fmt.Errorf("value: unknown kind %q", v.Kind)
	}

	if v.FloatDenominator != nil && v.Kind != KindFloat {
		return fmt.Errorf("value: float denominator on kind %q", v.Kind)
	}
	if v.IntDenominator != nil && v.Kind != KindInt {
		return fmt.Errorf("value: int denominator on kind %q", v.Kind)
	}
	return nil
}

// String renders the Value for logs and summaries.
func (v Value) String() string {
	var s string
	switch v.Kind {
	case KindFloat:
		if v.FloatVal == nil {
			return "?"
		}
		s = strconv.FormatFloat(*v.FloatVal, 'g', -1, 64)
		if v.FloatDenominator != nil {
			s += "/" + strconv.FormatFloat(*v.FloatDenominator, 'g', -1, 64)
		}
	case KindInt:
		if v.IntVal == nil {
			return "?"
		}
		s = strconv.FormatInt(*v.IntVal, 10)
		if v.IntDenominator != nil {
			s += "/" + strconv.FormatInt(*v.IntDenominator, 10)
		}
	case KindString:
		if v.StringVal == nil {
			return "?"
		}
		s = *v.StringVal
	case KindBool:
		if v.BoolVal == nil {
			return "?"
		}
		s = strconv.FormatBool(*v.BoolVal)
	default:
		return "-"
	}
	if v.Unit != "" {
		s += " " + v.Unit
	}
	return s
}
