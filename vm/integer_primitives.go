package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Integer arithmetic
// ---------------------------------------------------------------------------

// IntegerOp performs a builtin Integer operation on two machine integers.
// It reports false when the result does not fit (overflow) or the
// operation is undefined (division by zero), in which case the generic
// method must run instead. Division and modulo round toward negative
// infinity.
func IntegerOp(op Intrinsic, a, b int64) (Value, bool) {
	switch op {
	case IntrinsicAdd:
		r := a + b
		if (r > a) != (b > 0) {
			return nil, false
		}
		return r, true
	case IntrinsicSub:
		r := a - b
		if (r < a) != (b > 0) {
			return nil, false
		}
		return r, true
	case IntrinsicMul:
		if a == 0 || b == 0 {
			return int64(0), true
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, false
		}
		return r, true
	case IntrinsicDiv:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return nil, false
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, true
	case IntrinsicMod:
		if b == 0 {
			return nil, false
		}
		if b == -1 {
			return int64(0), true
		}
		m := a % b
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return m, true
	case IntrinsicLT:
		return a < b, true
	case IntrinsicGT:
		return a > b, true
	case IntrinsicLE:
		return a <= b, true
	case IntrinsicGE:
		return a >= b, true
	case IntrinsicEQ:
		return a == b, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Integer Primitives
// ---------------------------------------------------------------------------

var arithmeticOperators = []string{"+", "-", "*", "/", "%", "<", ">", "<=", ">="}

func (v *VM) registerIntegerPrimitives() {
	c := v.IntegerClass

	for _, name := range arithmeticOperators {
		op := IntrinsicFor(name)
		c.DefineMethod(NewMethod1(name, func(in *Interpreter, self, arg Value) Value {
			return in.integerArith(op, name, self.(int64), arg)
		}).WithIntrinsic(op))
	}

	eq := func(_ *Interpreter, self, arg Value) Value {
		return ValuesEqual(self, arg)
	}
	c.DefineMethod(NewMethod1("==", eq).WithIntrinsic(IntrinsicEQ))
	c.DefineMethod(NewMethod1("===", eq))

	c.DefineMethod(NewMethod1("<=>", func(_ *Interpreter, self, arg Value) Value {
		return spaceship(self, arg)
	}))
	c.DefineMethod(NewMethod0("-@", func(in *Interpreter, self Value) Value {
		n := self.(int64)
		if n == math.MinInt64 {
			in.Raise(in.vm.RangeErrorClass, "integer overflow")
		}
		return -n
	}))
	c.DefineMethod(NewMethod0("abs", func(in *Interpreter, self Value) Value {
		n := self.(int64)
		if n >= 0 {
			return n
		}
		if n == math.MinInt64 {
			in.Raise(in.vm.RangeErrorClass, "integer overflow")
		}
		return -n
	}))
	c.DefineMethod(NewMethod0("succ", func(in *Interpreter, self Value) Value {
		return in.integerArith(IntrinsicAdd, "+", self.(int64), int64(1))
	}))
	c.DefineMethod(NewMethod0("to_i", func(_ *Interpreter, self Value) Value {
		return self
	}))
	c.DefineMethod(NewMethod0("to_f", func(_ *Interpreter, self Value) Value {
		return float64(self.(int64))
	}))
	toS := func(_ *Interpreter, self Value) Value {
		return NewString(strconv.FormatInt(self.(int64), 10))
	}
	c.DefineMethod(NewMethod0("to_s", toS))
	c.DefineMethod(NewMethod0("inspect", toS))
	c.DefineMethod(NewMethod0("integer?", func(_ *Interpreter, _ Value) Value {
		return true
	}))
	c.DefineMethod(NewMethod0("zero?", func(_ *Interpreter, self Value) Value {
		return self.(int64) == 0
	}))
	c.DefineMethod(NewMethod0("even?", func(_ *Interpreter, self Value) Value {
		return self.(int64)%2 == 0
	}))
	c.DefineMethod(NewMethod0("odd?", func(_ *Interpreter, self Value) Value {
		return self.(int64)%2 != 0
	}))

	c.DefineMethod(NewNativeMethod("times", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		n := self.(int64)
		for k := int64(0); k < n; k++ {
			in.CallBlock(blk, k)
		}
		return self
	}).WithBlock())
}

// integerArith is the generic body of the Integer operators, reached when
// the inline fast path does not apply.
func (i *Interpreter) integerArith(op Intrinsic, name string, a int64, arg Value) Value {
	switch b := arg.(type) {
	case int64:
		r, ok := IntegerOp(op, a, b)
		if ok {
			return r
		}
		if b == 0 && (op == IntrinsicDiv || op == IntrinsicMod) {
			i.Raise(i.vm.ZeroDivisionErrorClass, "divided by 0")
		}
		i.Raise(i.vm.RangeErrorClass, "integer overflow in %s", name)
	case float64:
		r, _ := FloatOp(op, float64(a), b)
		return r
	}
	if isComparison(op) {
		i.Raise(i.vm.ArgumentErrorClass, "comparison of Integer with %s failed", i.inspect(arg))
	}
	i.Raise(i.vm.TypeErrorClass, "%s can't be coerced into Integer", i.vm.RealClassOf(arg).Name)
	return nil
}

func isComparison(op Intrinsic) bool {
	switch op {
	case IntrinsicLT, IntrinsicGT, IntrinsicLE, IntrinsicGE:
		return true
	}
	return false
}

// spaceship compares two numbers or two strings, answering -1, 0, 1, or
// nil when they are not comparable.
func spaceship(a, b Value) Value {
	c, ok := compareValues(a, b)
	if !ok {
		return nil
	}
	return int64(c)
}

func compareValues(a, b Value) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp3(x < y, x > y), true
		case float64:
			return compareFloats(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return compareFloats(x, float64(y))
		case float64:
			return compareFloats(x, y)
		}
	case *String:
		if y, ok := b.(*String); ok {
			return cmp3(x.S < y.S, x.S > y.S), true
		}
	}
	return 0, false
}

func compareFloats(x, y float64) (int, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	return cmp3(x < y, x > y), true
}

func cmp3(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	}
	return 0
}
