package vm

// ---------------------------------------------------------------------------
// BasicObject, Kernel and Module primitives
// ---------------------------------------------------------------------------

func (v *VM) registerObjectPrimitives() {
	b := v.BasicObjectClass

	// The default method_missing explains the failed dispatch recorded by
	// the call site that routed here.
	b.DefineMethod(NewNativeMethod("method_missing", Arity{Required: 1, Rest: true},
		func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
			reason := in.missing
			in.missing = missingUndefined
			name, _ := args[0].(Symbol)
			in.raiseNoMethod(self, string(name), reason)
			return nil
		}).WithVisibility(Private))

	b.DefineMethod(NewMethod0("initialize", func(_ *Interpreter, _ Value) Value {
		return nil
	}).WithVisibility(Private))

	b.DefineMethod(NewMethod1("==", func(_ *Interpreter, self, arg Value) Value {
		return Identical(self, arg)
	}))
	b.DefineMethod(NewMethod1("equal?", func(_ *Interpreter, self, arg Value) Value {
		return Identical(self, arg)
	}))
	b.DefineMethod(NewMethod0("!", func(_ *Interpreter, self Value) Value {
		return !Truthy(self)
	}))
	b.DefineMethod(NewMethod1("!=", func(in *Interpreter, self, arg Value) Value {
		return !Truthy(in.Send(self, "==", []Value{arg}, nil))
	}))
	b.DefineMethod(NewNativeMethod("__send__", Arity{Required: 1, Rest: true}, sendPrimitive).WithBlock())

	k := v.KernelModule

	k.DefineMethod(NewMethod1("===", func(in *Interpreter, self, arg Value) Value {
		if Identical(self, arg) {
			return true
		}
		return Truthy(in.Send(self, "==", []Value{arg}, nil))
	}).WithIntrinsic(IntrinsicEqqIdentity))

	k.DefineMethod(NewMethod0("class", func(in *Interpreter, self Value) Value {
		return in.vm.RealClassOf(self)
	}))
	k.DefineMethod(NewMethod0("singleton_class", func(in *Interpreter, self Value) Value {
		return in.vm.ClassOf(self)
	}))

	isA := func(in *Interpreter, self, arg Value) Value {
		c, ok := arg.(*Class)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "class or module required")
		}
		return in.vm.IsKindOf(self, c)
	}
	k.DefineMethod(NewMethod1("is_a?", isA))
	k.DefineMethod(NewMethod1("kind_of?", isA))
	k.DefineMethod(NewMethod1("instance_of?", func(in *Interpreter, self, arg Value) Value {
		c, ok := arg.(*Class)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "class or module required")
		}
		return in.vm.RealClassOf(self) == c
	}))

	k.DefineMethod(NewNativeMethod("respond_to?", Arity{Required: 1, Optional: 1},
		func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
			name := in.nameArg(args[0])
			m := in.vm.FindMethod(in.vm.ClassOf(self), name)
			if m == nil {
				return false
			}
			return m.Visibility() == Public || (len(args) > 1 && Truthy(args[1]))
		}))

	k.DefineMethod(NewMethod0("nil?", func(_ *Interpreter, self Value) Value {
		return self == nil
	}))
	k.DefineMethod(NewMethod0("to_s", func(in *Interpreter, self Value) Value {
		return NewString(in.defaultToS(self))
	}))
	k.DefineMethod(NewMethod0("inspect", func(in *Interpreter, self Value) Value {
		return NewString(in.inspect(self))
	}))
	k.DefineMethod(NewMethod0("hash", func(_ *Interpreter, self Value) Value {
		return int64(hashOf(self))
	}))

	k.DefineMethod(NewNativeMethod("send", Arity{Required: 1, Rest: true}, sendPrimitive).WithBlock())
	k.DefineMethod(NewNativeMethod("public_send", Arity{Required: 1, Rest: true},
		func(in *Interpreter, self Value, args []Value, blk *Proc) Value {
			name := in.nameArg(args[0])
			m := in.vm.FindMethod(in.vm.ClassOf(self), name)
			if m != nil && m.Visibility() != Public {
				in.raiseNoMethod(self, name, missingPrivate)
			}
			return in.Send(self, name, args[1:], blk)
		}).WithBlock())

	k.DefineMethod(NewMethod0("freeze", func(_ *Interpreter, self Value) Value {
		if s, ok := self.(*String); ok {
			s.Frozen = true
		}
		return self
	}))
	k.DefineMethod(NewMethod0("frozen?", func(_ *Interpreter, self Value) Value {
		switch x := self.(type) {
		case *String:
			return x.Frozen
		case *Object, *Array, *Hash:
			return false
		}
		return true
	}))

	k.DefineMethod(NewMethod1("instance_variable_get", func(in *Interpreter, self, arg Value) Value {
		if o, ok := self.(*Object); ok {
			return o.Ivars[in.nameArg(arg)]
		}
		return nil
	}))
	k.DefineMethod(NewNativeMethod("instance_variable_set", Arity{Required: 2},
		func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
			o, ok := self.(*Object)
			if !ok {
				in.Raise(in.vm.FrozenErrorClass, "can't modify frozen %s", in.vm.RealClassOf(self).Name)
			}
			o.Ivars[in.nameArg(args[0])] = args[1]
			return args[1]
		}))

	k.DefineMethod(NewNativeMethod("tap", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		in.CallBlock(blk, self)
		return self
	}).WithBlock())

	k.DefineMethod(NewNativeMethod("block_given?", Arity{}, func(in *Interpreter, _ Value, _ []Value, _ *Proc) Value {
		if len(in.frames) == 0 {
			return false
		}
		return in.frames[len(in.frames)-1].Block != nil
	}).WithVisibility(Private))

	k.DefineMethod(NewNativeMethod("raise", Arity{Optional: 2}, raisePrimitive).WithVisibility(Private))
}

func sendPrimitive(in *Interpreter, self Value, args []Value, blk *Proc) Value {
	return in.Send(self, in.nameArg(args[0]), args[1:], blk)
}

// raisePrimitive implements Kernel#raise for the three forms
// raise, raise "message" and raise ErrorClass[, "message"].
func raisePrimitive(in *Interpreter, _ Value, args []Value, _ *Proc) Value {
	class := in.vm.RuntimeErrorClass
	msg := "unhandled exception"
	switch len(args) {
	case 1:
		switch x := args[0].(type) {
		case *String:
			msg = x.S
		case *Class:
			class, msg = x, x.Name
		default:
			in.Raise(in.vm.TypeErrorClass, "exception class/object expected")
		}
	case 2:
		c, ok := args[0].(*Class)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "exception class/object expected")
		}
		class, msg = c, in.stringArg(args[1])
	}
	if !class.IsSubclassOf(in.vm.ExceptionClass) {
		in.Raise(in.vm.TypeErrorClass, "exception class/object expected")
	}
	in.Raise(class, "%s", msg)
	return nil
}

func (v *VM) registerModulePrimitives() {
	m := v.ModuleClass

	m.DefineMethod(NewMethod1("===", func(in *Interpreter, self, arg Value) Value {
		return in.vm.IsKindOf(arg, self.(*Class))
	}).WithIntrinsic(IntrinsicEqqKindOf))

	name := func(_ *Interpreter, self Value) Value {
		return NewString(self.(*Class).Name)
	}
	m.DefineMethod(NewMethod0("name", name))
	m.DefineMethod(NewMethod0("to_s", name))
	m.DefineMethod(NewMethod0("inspect", name))

	m.DefineMethod(NewMethod0("ancestors", func(_ *Interpreter, self Value) Value {
		var out []Value
		for _, a := range self.(*Class).Ancestors() {
			out = append(out, a)
		}
		return NewArray(out...)
	}))
	m.DefineMethod(NewMethod1("include?", func(in *Interpreter, self, arg Value) Value {
		mod, ok := arg.(*Class)
		if !ok || !mod.IsModule {
			in.Raise(in.vm.TypeErrorClass, "wrong argument type %s (expected Module)", in.vm.RealClassOf(arg).Name)
		}
		c := self.(*Class)
		return c != mod && c.IsSubclassOf(mod)
	}))
	m.DefineMethod(NewMethod1("<", func(in *Interpreter, self, arg Value) Value {
		other, ok := arg.(*Class)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "compared with non class/module")
		}
		c := self.(*Class)
		if c == other {
			return false
		}
		if c.IsSubclassOf(other) {
			return true
		}
		return nil
	}))
	m.DefineMethod(NewMethod1("method_defined?", func(in *Interpreter, self, arg Value) Value {
		return in.vm.FindMethod(self.(*Class), in.nameArg(arg)) != nil
	}))

	c := v.ClassClass

	c.DefineMethod(NewMethod0("superclass", func(_ *Interpreter, self Value) Value {
		s := self.(*Class).Superclass
		if s == nil {
			return nil
		}
		return s
	}))
	c.DefineMethod(NewMethod0("allocate", func(in *Interpreter, self Value) Value {
		return in.allocate(self.(*Class))
	}))
	c.DefineMethod(NewNativeMethod("new", Arity{Rest: true}, func(in *Interpreter, self Value, args []Value, blk *Proc) Value {
		obj := in.allocate(self.(*Class))
		in.Send(obj, "initialize", args, blk)
		return obj
	}).WithBlock())
}

// allocate creates a plain instance of class. Builtin value classes have
// their own constructors.
func (i *Interpreter) allocate(class *Class) *Object {
	v := i.vm
	for _, builtin := range []*Class{v.IntegerClass, v.FloatClass, v.StringClass, v.SymbolClass,
		v.ArrayClass, v.HashClass, v.RangeClass, v.RegexpClass, v.ProcClass, v.NilClass,
		v.TrueClass, v.FalseClass, v.ContextClass} {
		if class.IsSubclassOf(builtin) {
			i.Raise(v.TypeErrorClass, "allocator undefined for %s", class.Name)
		}
	}
	if class.IsModule || class.IsSingleton() {
		i.Raise(v.TypeErrorClass, "can't create instance of %s", class.Name)
	}
	return NewObject(class)
}

// nameArg accepts a Symbol or String naming a method.
func (i *Interpreter) nameArg(v Value) string {
	switch x := v.(type) {
	case Symbol:
		return string(x)
	case *String:
		return x.S
	}
	i.Raise(i.vm.TypeErrorClass, "%s is not a symbol nor a string", i.inspect(v))
	return ""
}

func (i *Interpreter) stringArg(v Value) string {
	if s, ok := v.(*String); ok {
		return s.S
	}
	i.Raise(i.vm.TypeErrorClass, "no implicit conversion of %s into String", i.vm.RealClassOf(v).Name)
	return ""
}

// inspect renders v, using the default description for plain objects.
func (i *Interpreter) inspect(v Value) string {
	if _, ok := v.(*Object); ok {
		return i.defaultToS(v)
	}
	return Inspect(v)
}
