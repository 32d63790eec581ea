package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is any value the host runtime can hold in a register or on an
// operand stack.
//
// Immediates use plain Go types so that identity and equality coincide:
//   - nil            -> nil
//   - true/false     -> bool
//   - Integer        -> int64
//   - Float          -> float64
//   - Symbol         -> Symbol
//
// Heap values are pointers: *String, *Array, *Hash, *Range, *Regexp,
// *Proc, *Object, *Class and *Context. Every dynamic type listed here is
// comparable, so == on two Values never panics.
type Value = any

// Symbol is an interned method or constant name.
type Symbol string

// String is a mutable string with a frozen bit.
type String struct {
	S      string
	Frozen bool
}

// NewString allocates an unfrozen string.
func NewString(s string) *String {
	return &String{S: s}
}

// NewFrozenString allocates a frozen string, as produced by a literal
// compiled under frozen string semantics.
func NewFrozenString(s string) *String {
	return &String{S: s, Frozen: true}
}

// Array is an ordered, growable collection.
type Array struct {
	Elems []Value
}

// NewArray wraps the given elements.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Object is a plain instance of a user-defined class.
type Object struct {
	class *Class
	Ivars map[string]Value
}

// NewObject allocates an instance of class.
func NewObject(class *Class) *Object {
	return &Object{class: class, Ivars: make(map[string]Value)}
}

// Class returns the object's class.
func (o *Object) Class() *Class {
	return o.class
}

// Truthy reports whether v counts as true in a conditional.
// Only nil and false are falsy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

// Identical reports whether a and b are the same object.
func Identical(a, b Value) bool {
	return a == b
}

// ValuesEqual implements the == semantics of the builtin classes. Numbers
// compare across Integer and Float, strings by content, arrays
// element-wise; everything else falls back to identity.
func ValuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case *String:
		if y, ok := b.(*String); ok {
			return x.S == y.S
		}
		return false
	case *Array:
		y, ok := b.(*Array)
		if !ok {
			return false
		}
		if x == y {
			return true
		}
		if len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !ValuesEqual(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Inspect returns a debugging representation of v.
func Inspect(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case Symbol:
		return ":" + string(x)
	case *String:
		return strconv.Quote(x.S)
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = Inspect(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Hash:
		parts := make([]string, 0, x.Len())
		x.Each(func(k, v Value) {
			parts = append(parts, Inspect(k)+" => "+Inspect(v))
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case *Range:
		return x.String()
	case *Regexp:
		return "/" + x.Source + "/"
	case *Class:
		return x.Name
	case *Object:
		return fmt.Sprintf("#<%s>", x.class.Name)
	case *Proc:
		return "#<Proc>"
	case *Context:
		return "#<Context>"
	}
	return fmt.Sprintf("#<%T>", v)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnNI") {
		s += ".0"
	}
	return s
}
