package vm

// Proc is a block closed over the frame that created it.
type Proc struct {
	Code  *Code
	Self  Value
	Outer *Frame // frame whose registers the block reads and writes
	Home  *Frame // method frame the block was created in
}

// Arity follows the block convention: the number of parameters, or
// -(required+1) when the block takes a rest parameter.
func (p *Proc) Arity() int64 {
	if p.Code.Rest {
		return -int64(p.Code.Params) - 1
	}
	return int64(p.Code.Params)
}

// ---------------------------------------------------------------------------
// Block Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerBlockPrimitives() {
	c := v.ProcClass

	call := func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		return in.CallBlock(self.(*Proc), args...)
	}
	c.DefineMethod(NewNativeMethod("call", Arity{Rest: true}, call))
	c.DefineMethod(NewNativeMethod("()", Arity{Rest: true}, call))
	c.DefineMethod(NewNativeMethod("yield", Arity{Rest: true}, call))
	c.DefineMethod(NewNativeMethod("[]", Arity{Rest: true}, call))

	c.DefineMethod(NewMethod0("arity", func(_ *Interpreter, self Value) Value {
		return self.(*Proc).Arity()
	}))
	c.DefineMethod(NewMethod0("to_proc", func(_ *Interpreter, self Value) Value {
		return self
	}))
	c.DefineMethod(NewMethod0("lambda?", func(_ *Interpreter, _ Value) Value {
		return false
	}))
}
