// Package value defines the closed set of variable values that flow from the
// build configuration into template rendering: strings, numbers, booleans,
// ordered lists and key-ordered maps.
package value

import (
	"math"
	"strconv"
)

// Value is one of String, Number, Bool, List or *Map.
// The set is closed; code that inspects a Value switches over exactly these.
type Value interface {
	isValue()
}

// String is a text value.
type String string

// Number is a numeric value. Text preserves the literal spelling from the
// configuration ("3.10" stays "3.10" when rendered) and is empty for
// computed numbers.
type Number struct {
	Float float64
	Text  string
}

// Bool is a boolean value.
type Bool bool

// List is an ordered sequence of values.
type List []Value

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (*Map) isValue()   {}

// Int returns a Number holding n.
func Int(n int) Number {
	return Number{Float: float64(n)}
}

// Float returns a Number holding f.
func Float(f float64) Number {
	return Number{Float: f}
}

// IsInt reports whether the number has no fractional part.
func (n Number) IsInt() bool {
	return n.Float == math.Trunc(n.Float) && !math.IsInf(n.Float, 0)
}

func (n Number) String() string {
	if n.Text != "" {
		return n.Text
	}
	if n.IsInt() && math.Abs(n.Float) < 1e15 {
		return strconv.FormatInt(int64(n.Float), 10)
	}
	return strconv.FormatFloat(n.Float, 'f', -1, 64)
}

// Strings converts a slice of Go strings into a List of String values.
func Strings(items []string) List {
	out := make(List, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return out
}

// Equal reports deep equality. Numbers compare by value, not spelling.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && x.Float == y.Float
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, found := y.Get(k)
			if !found || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
