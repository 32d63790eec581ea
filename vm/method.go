package vm

import "fmt"

// Method is a resolved method handle. Handles are owned by the method
// table of the class they are defined on; inline caches only keep
// non-owning references plus the generation stamp that validates them.
type Method interface {
	Name() string
	Arity() Arity
	AcceptsBlock() bool
	Owner() *Class
	Visibility() Visibility
}

// Arity describes the positional arguments a method accepts.
type Arity struct {
	Required int
	Optional int
	Rest     bool
}

// Accepts reports whether n positional arguments satisfy the arity.
func (a Arity) Accepts(n int) bool {
	if n < a.Required {
		return false
	}
	return a.Rest || n <= a.Required+a.Optional
}

func (a Arity) String() string {
	switch {
	case a.Rest:
		return fmt.Sprintf("%d+", a.Required)
	case a.Optional > 0:
		return fmt.Sprintf("%d..%d", a.Required, a.Required+a.Optional)
	}
	return fmt.Sprintf("%d", a.Required)
}

// Visibility controls which call shapes may reach a method.
type Visibility uint8

const (
	Public Visibility = iota
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Protected:
		return "protected"
	case Private:
		return "private"
	}
	return "public"
}

// Intrinsic tags a builtin method whose behaviour emitted code may
// perform inline once a guard has proven the builtin is the resolved
// target.
type Intrinsic uint8

const (
	IntrinsicNone Intrinsic = iota
	IntrinsicAdd
	IntrinsicSub
	IntrinsicMul
	IntrinsicDiv
	IntrinsicMod
	IntrinsicLT
	IntrinsicGT
	IntrinsicLE
	IntrinsicGE
	IntrinsicEQ
	IntrinsicEqqIdentity // Object#===: identity or ==
	IntrinsicEqqKindOf   // Module#===: is_a?
	IntrinsicEqqRange    // Range#===: cover?
	IntrinsicEqqRegexp   // Regexp#===: match
	IntrinsicHashAref    // Hash#[]
	IntrinsicToS         // String#to_s
)

// IntrinsicFor maps an operator name to the arithmetic intrinsic that
// implements it for numbers.
func IntrinsicFor(name string) Intrinsic {
	switch name {
	case "+":
		return IntrinsicAdd
	case "-":
		return IntrinsicSub
	case "*":
		return IntrinsicMul
	case "/":
		return IntrinsicDiv
	case "%":
		return IntrinsicMod
	case "<":
		return IntrinsicLT
	case ">":
		return IntrinsicGT
	case "<=":
		return IntrinsicLE
	case ">=":
		return IntrinsicGE
	case "==":
		return IntrinsicEQ
	}
	return IntrinsicNone
}

// ---------------------------------------------------------------------------
// Native methods
// ---------------------------------------------------------------------------

// NativeFunc implements a builtin method in Go.
type NativeFunc func(in *Interpreter, self Value, args []Value, blk *Proc) Value

// Method0Func is a native taking no arguments.
type Method0Func func(in *Interpreter, self Value) Value

// Method1Func is a native taking one argument.
type Method1Func func(in *Interpreter, self Value, arg Value) Value

// NativeMethod wraps a Go function as a Method.
type NativeMethod struct {
	name       string
	arity      Arity
	block      bool
	owner      *Class
	visibility Visibility
	intrinsic  Intrinsic
	fn         NativeFunc
}

func (m *NativeMethod) Name() string           { return m.name }
func (m *NativeMethod) Arity() Arity           { return m.arity }
func (m *NativeMethod) AcceptsBlock() bool     { return m.block }
func (m *NativeMethod) Owner() *Class          { return m.owner }
func (m *NativeMethod) Visibility() Visibility { return m.visibility }

// Intrinsic returns the inline operation this builtin stands for.
func (m *NativeMethod) Intrinsic() Intrinsic { return m.intrinsic }

// WithIntrinsic tags the method and returns it.
func (m *NativeMethod) WithIntrinsic(op Intrinsic) *NativeMethod {
	m.intrinsic = op
	return m
}

// WithVisibility sets the visibility and returns the method.
func (m *NativeMethod) WithVisibility(v Visibility) *NativeMethod {
	m.visibility = v
	return m
}

// WithBlock marks the method as consuming a block.
func (m *NativeMethod) WithBlock() *NativeMethod {
	m.block = true
	return m
}

// NewNativeMethod creates a native method with an explicit arity.
func NewNativeMethod(name string, arity Arity, fn NativeFunc) *NativeMethod {
	return &NativeMethod{name: name, arity: arity, fn: fn}
}

// NewMethod0 creates a zero-argument native method.
func NewMethod0(name string, fn Method0Func) *NativeMethod {
	return NewNativeMethod(name, Arity{}, func(in *Interpreter, self Value, _ []Value, _ *Proc) Value {
		return fn(in, self)
	})
}

// NewMethod1 creates a one-argument native method.
func NewMethod1(name string, fn Method1Func) *NativeMethod {
	return NewNativeMethod(name, Arity{Required: 1}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		return fn(in, self, args[0])
	})
}

// IntrinsicOf returns the intrinsic of a builtin method, or IntrinsicNone
// for anything user-defined.
func IntrinsicOf(m Method) Intrinsic {
	if nm, ok := m.(*NativeMethod); ok {
		return nm.intrinsic
	}
	return IntrinsicNone
}

func bindOwner(m Method, c *Class) {
	switch mm := m.(type) {
	case *NativeMethod:
		mm.owner = c
	case *CompiledMethod:
		mm.owner = c
	}
}
