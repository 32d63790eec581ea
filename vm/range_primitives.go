package vm

// Range is an interval between two comparable values. A nil endpoint
// leaves that side open.
type Range struct {
	First     Value
	Last      Value
	Exclusive bool
}

// NewRange creates a range.
func NewRange(first, last Value, exclusive bool) *Range {
	return &Range{First: first, Last: last, Exclusive: exclusive}
}

// Cover reports whether v lies between the endpoints. Values that cannot
// be compared with an endpoint are not covered.
func (r *Range) Cover(v Value) bool {
	if r.First != nil {
		c, ok := compareValues(r.First, v)
		if !ok || c > 0 {
			return false
		}
	}
	if r.Last != nil {
		c, ok := compareValues(v, r.Last)
		if !ok || c > 0 || (c == 0 && r.Exclusive) {
			return false
		}
	}
	return true
}

func (r *Range) String() string {
	sep := ".."
	if r.Exclusive {
		sep = "..."
	}
	first, last := "", ""
	if r.First != nil {
		first = Inspect(r.First)
	}
	if r.Last != nil {
		last = Inspect(r.Last)
	}
	return first + sep + last
}

// ---------------------------------------------------------------------------
// Range Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerRangePrimitives() {
	c := v.RangeClass

	c.Singleton().DefineMethod(NewNativeMethod("new", Arity{Required: 2, Optional: 1}, func(in *Interpreter, _ Value, args []Value, _ *Proc) Value {
		if args[0] != nil && args[1] != nil {
			if _, ok := compareValues(args[0], args[1]); !ok {
				in.Raise(in.vm.ArgumentErrorClass, "bad value for range")
			}
		}
		return NewRange(args[0], args[1], len(args) == 3 && Truthy(args[2]))
	}))

	cover := func(_ *Interpreter, self, arg Value) Value {
		return self.(*Range).Cover(arg)
	}
	c.DefineMethod(NewMethod1("===", cover).WithIntrinsic(IntrinsicEqqRange))
	c.DefineMethod(NewMethod1("cover?", cover))
	c.DefineMethod(NewMethod1("include?", cover))

	first := func(_ *Interpreter, self Value) Value {
		return self.(*Range).First
	}
	last := func(_ *Interpreter, self Value) Value {
		return self.(*Range).Last
	}
	c.DefineMethod(NewMethod0("first", first))
	c.DefineMethod(NewMethod0("begin", first))
	c.DefineMethod(NewMethod0("last", last))
	c.DefineMethod(NewMethod0("end", last))
	c.DefineMethod(NewMethod0("exclude_end?", func(_ *Interpreter, self Value) Value {
		return self.(*Range).Exclusive
	}))

	c.DefineMethod(NewMethod1("==", func(_ *Interpreter, self, arg Value) Value {
		r := self.(*Range)
		o, ok := arg.(*Range)
		return ok && r.Exclusive == o.Exclusive && ValuesEqual(r.First, o.First) && ValuesEqual(r.Last, o.Last)
	}))

	c.DefineMethod(NewNativeMethod("each", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		lo, hi := in.intBounds(self.(*Range))
		for k := lo; k <= hi; k++ {
			in.CallBlock(blk, k)
		}
		return self
	}).WithBlock())
	c.DefineMethod(NewMethod0("to_a", func(in *Interpreter, self Value) Value {
		lo, hi := in.intBounds(self.(*Range))
		var out []Value
		for k := lo; k <= hi; k++ {
			out = append(out, k)
		}
		return NewArray(out...)
	}))
	c.DefineMethod(NewMethod0("size", func(in *Interpreter, self Value) Value {
		lo, hi := in.intBounds(self.(*Range))
		if hi < lo {
			return int64(0)
		}
		return hi - lo + 1
	}))

	toS := func(_ *Interpreter, self Value) Value {
		return NewString(self.(*Range).String())
	}
	c.DefineMethod(NewMethod0("to_s", toS))
	c.DefineMethod(NewMethod0("inspect", toS))
}

// intBounds returns the inclusive integer bounds of a finite Integer
// range.
func (i *Interpreter) intBounds(r *Range) (int64, int64) {
	lo, ok1 := r.First.(int64)
	hi, ok2 := r.Last.(int64)
	if !ok1 || !ok2 {
		i.Raise(i.vm.TypeErrorClass, "can't iterate from %s", i.vm.RealClassOf(r.First).Name)
	}
	if r.Exclusive {
		hi--
	}
	return lo, hi
}
