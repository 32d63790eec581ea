package vm

import "strings"

// ---------------------------------------------------------------------------
// Array Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerArrayPrimitives() {
	c := v.ArrayClass

	c.DefineMethod(NewNativeMethod("[]", Arity{Required: 1, Optional: 1}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		start := in.intArg(args[0])
		if start < 0 {
			start += int64(len(a.Elems))
		}
		if len(args) == 1 {
			if start < 0 || start >= int64(len(a.Elems)) {
				return nil
			}
			return a.Elems[start]
		}
		n := in.intArg(args[1])
		if start < 0 || start > int64(len(a.Elems)) || n < 0 {
			return nil
		}
		end := min(start+n, int64(len(a.Elems)))
		return NewArray(append([]Value(nil), a.Elems[start:end]...)...)
	}))
	c.DefineMethod(NewNativeMethod("[]=", Arity{Required: 2}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		a := self.(*Array)
		idx := in.intArg(args[0])
		if idx < 0 {
			idx += int64(len(a.Elems))
			if idx < 0 {
				in.Raise(in.vm.IndexErrorClass, "index %d too small for array", idx-int64(len(a.Elems)))
			}
		}
		for int64(len(a.Elems)) <= idx {
			a.Elems = append(a.Elems, nil)
		}
		a.Elems[idx] = args[1]
		return args[1]
	}))

	size := func(_ *Interpreter, self Value) Value {
		return int64(len(self.(*Array).Elems))
	}
	c.DefineMethod(NewMethod0("size", size))
	c.DefineMethod(NewMethod0("length", size))
	c.DefineMethod(NewMethod0("empty?", func(_ *Interpreter, self Value) Value {
		return len(self.(*Array).Elems) == 0
	}))
	c.DefineMethod(NewMethod0("first", func(_ *Interpreter, self Value) Value {
		a := self.(*Array)
		if len(a.Elems) == 0 {
			return nil
		}
		return a.Elems[0]
	}))
	c.DefineMethod(NewMethod0("last", func(_ *Interpreter, self Value) Value {
		a := self.(*Array)
		if len(a.Elems) == 0 {
			return nil
		}
		return a.Elems[len(a.Elems)-1]
	}))
	c.DefineMethod(NewMethod0("to_a", func(_ *Interpreter, self Value) Value {
		return self
	}))

	push := func(_ *Interpreter, self, arg Value) Value {
		a := self.(*Array)
		a.Elems = append(a.Elems, arg)
		return a
	}
	c.DefineMethod(NewMethod1("<<", push))
	c.DefineMethod(NewMethod1("push", push))

	eq := func(in *Interpreter, self, arg Value) Value {
		return in.arraysEqual(self.(*Array), arg)
	}
	c.DefineMethod(NewMethod1("==", eq))
	c.DefineMethod(NewMethod1("===", eq))
	c.DefineMethod(NewMethod1("include?", func(in *Interpreter, self, arg Value) Value {
		for _, e := range self.(*Array).Elems {
			if Truthy(in.Send(e, "==", []Value{arg}, nil)) {
				return true
			}
		}
		return false
	}))

	c.DefineMethod(NewNativeMethod("each", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		a := self.(*Array)
		for k := 0; k < len(a.Elems); k++ {
			in.CallBlock(blk, a.Elems[k])
		}
		return a
	}).WithBlock())
	c.DefineMethod(NewNativeMethod("map", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		a := self.(*Array)
		out := make([]Value, 0, len(a.Elems))
		for k := 0; k < len(a.Elems); k++ {
			out = append(out, in.CallBlock(blk, a.Elems[k]))
		}
		return NewArray(out...)
	}).WithBlock())

	c.DefineMethod(NewNativeMethod("join", Arity{Optional: 1}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		sep := ""
		if len(args) == 1 && args[0] != nil {
			sep = in.stringArg(args[0])
		}
		a := self.(*Array)
		parts := make([]string, len(a.Elems))
		for k, e := range a.Elems {
			parts[k] = in.toS(e)
		}
		return NewString(strings.Join(parts, sep))
	}))

	inspect := func(in *Interpreter, self Value) Value {
		a := self.(*Array)
		parts := make([]string, len(a.Elems))
		for k, e := range a.Elems {
			parts[k] = in.inspect(e)
		}
		return NewString("[" + strings.Join(parts, ", ") + "]")
	}
	c.DefineMethod(NewMethod0("to_s", inspect))
	c.DefineMethod(NewMethod0("inspect", inspect))
}

func (i *Interpreter) arraysEqual(a *Array, arg Value) bool {
	b, ok := arg.(*Array)
	if !ok {
		return false
	}
	if a == b {
		return true
	}
	if len(a.Elems) != len(b.Elems) {
		return false
	}
	for k := range a.Elems {
		if !Truthy(i.Send(a.Elems[k], "==", []Value{b.Elems[k]}, nil)) {
			return false
		}
	}
	return true
}

func (i *Interpreter) intArg(v Value) int64 {
	n, ok := v.(int64)
	if !ok {
		i.Raise(i.vm.TypeErrorClass, "no implicit conversion of %s into Integer", i.vm.RealClassOf(v).Name)
	}
	return n
}

// toS converts v with to_s, as string interpolation and join do.
func (i *Interpreter) toS(v Value) string {
	if s, ok := v.(*String); ok {
		return s.S
	}
	if s, ok := i.Send(v, "to_s", nil, nil).(*String); ok {
		return s.S
	}
	return i.defaultToS(v)
}
