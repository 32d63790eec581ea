package vm

// ---------------------------------------------------------------------------
// nil, true and false
// ---------------------------------------------------------------------------

func (v *VM) registerSpecialPrimitives() {
	n := v.NilClass

	n.DefineMethod(NewMethod0("to_s", func(_ *Interpreter, _ Value) Value {
		return NewFrozenString("")
	}))
	n.DefineMethod(NewMethod0("to_a", func(_ *Interpreter, _ Value) Value {
		return NewArray()
	}))
	n.DefineMethod(NewMethod0("inspect", func(_ *Interpreter, _ Value) Value {
		return NewString("nil")
	}))
	n.DefineMethod(NewMethod1("&", func(_ *Interpreter, _, _ Value) Value {
		return false
	}))
	n.DefineMethod(NewMethod1("|", func(_ *Interpreter, _, arg Value) Value {
		return Truthy(arg)
	}))

	for _, c := range []*Class{v.TrueClass, v.FalseClass} {
		c.DefineMethod(NewMethod0("to_s", func(_ *Interpreter, self Value) Value {
			return NewFrozenString(Inspect(self))
		}))
		c.DefineMethod(NewMethod0("inspect", func(_ *Interpreter, self Value) Value {
			return NewString(Inspect(self))
		}))
		c.DefineMethod(NewMethod1("&", func(_ *Interpreter, self, arg Value) Value {
			return self.(bool) && Truthy(arg)
		}))
		c.DefineMethod(NewMethod1("|", func(_ *Interpreter, self, arg Value) Value {
			return self.(bool) || Truthy(arg)
		}))
		c.DefineMethod(NewMethod1("^", func(_ *Interpreter, self, arg Value) Value {
			return self.(bool) != Truthy(arg)
		}))
	}
}
