package vm

import "math"

// FloatOp performs a builtin Float operation. Float arithmetic never
// fails: division by zero yields an infinity or NaN. Modulo takes the
// sign of the divisor.
func FloatOp(op Intrinsic, a, b float64) (Value, bool) {
	switch op {
	case IntrinsicAdd:
		return a + b, true
	case IntrinsicSub:
		return a - b, true
	case IntrinsicMul:
		return a * b, true
	case IntrinsicDiv:
		return a / b, true
	case IntrinsicMod:
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
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
// Float Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerFloatPrimitives() {
	c := v.FloatClass

	for _, name := range arithmeticOperators {
		op := IntrinsicFor(name)
		c.DefineMethod(NewMethod1(name, func(in *Interpreter, self, arg Value) Value {
			return in.floatArith(op, self.(float64), arg)
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
	c.DefineMethod(NewMethod0("-@", func(_ *Interpreter, self Value) Value {
		return -self.(float64)
	}))
	c.DefineMethod(NewMethod0("abs", func(_ *Interpreter, self Value) Value {
		return math.Abs(self.(float64))
	}))
	c.DefineMethod(NewMethod0("to_f", func(_ *Interpreter, self Value) Value {
		return self
	}))
	c.DefineMethod(NewMethod0("to_i", func(in *Interpreter, self Value) Value {
		return in.floatToInt(math.Trunc(self.(float64)))
	}))
	c.DefineMethod(NewMethod0("floor", func(in *Interpreter, self Value) Value {
		return in.floatToInt(math.Floor(self.(float64)))
	}))
	c.DefineMethod(NewMethod0("ceil", func(in *Interpreter, self Value) Value {
		return in.floatToInt(math.Ceil(self.(float64)))
	}))
	toS := func(_ *Interpreter, self Value) Value {
		return NewString(formatFloat(self.(float64)))
	}
	c.DefineMethod(NewMethod0("to_s", toS))
	c.DefineMethod(NewMethod0("inspect", toS))
	c.DefineMethod(NewMethod0("nan?", func(_ *Interpreter, self Value) Value {
		return math.IsNaN(self.(float64))
	}))
	c.DefineMethod(NewMethod0("zero?", func(_ *Interpreter, self Value) Value {
		return self.(float64) == 0
	}))

	n := v.NumericClass
	n.DefineMethod(NewMethod0("integer?", func(_ *Interpreter, _ Value) Value {
		return false
	}))
	n.DefineMethod(NewMethod0("positive?", func(in *Interpreter, self Value) Value {
		return Truthy(in.Send(self, ">", []Value{int64(0)}, nil))
	}))
	n.DefineMethod(NewMethod0("negative?", func(in *Interpreter, self Value) Value {
		return Truthy(in.Send(self, "<", []Value{int64(0)}, nil))
	}))
}

func (i *Interpreter) floatArith(op Intrinsic, a float64, arg Value) Value {
	var b float64
	switch x := arg.(type) {
	case float64:
		b = x
	case int64:
		b = float64(x)
	default:
		if isComparison(op) {
			i.Raise(i.vm.ArgumentErrorClass, "comparison of Float with %s failed", i.inspect(arg))
		}
		i.Raise(i.vm.TypeErrorClass, "%s can't be coerced into Float", i.vm.RealClassOf(arg).Name)
	}
	r, _ := FloatOp(op, a, b)
	return r
}

func (i *Interpreter) floatToInt(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		i.Raise(i.vm.RangeErrorClass, "%s out of range of integer", formatFloat(f))
	}
	return int64(f)
}
