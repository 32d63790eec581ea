package vm

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// String Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerStringPrimitives() {
	c := v.StringClass

	c.DefineMethod(NewMethod0("to_s", func(_ *Interpreter, self Value) Value {
		return self
	}).WithIntrinsic(IntrinsicToS))
	c.DefineMethod(NewMethod0("to_str", func(_ *Interpreter, self Value) Value {
		return self
	}))
	c.DefineMethod(NewMethod0("inspect", func(_ *Interpreter, self Value) Value {
		return NewString(strconv.Quote(self.(*String).S))
	}))
	c.DefineMethod(NewMethod0("to_sym", func(_ *Interpreter, self Value) Value {
		return Symbol(self.(*String).S)
	}))

	eq := func(_ *Interpreter, self, arg Value) Value {
		return ValuesEqual(self, arg)
	}
	c.DefineMethod(NewMethod1("==", eq))
	c.DefineMethod(NewMethod1("===", eq))
	c.DefineMethod(NewMethod1("eql?", eq))
	c.DefineMethod(NewMethod1("<=>", func(_ *Interpreter, self, arg Value) Value {
		return spaceship(self, arg)
	}))

	c.DefineMethod(NewMethod1("+", func(in *Interpreter, self, arg Value) Value {
		return NewString(self.(*String).S + in.stringArg(arg))
	}))
	c.DefineMethod(NewMethod1("*", func(in *Interpreter, self, arg Value) Value {
		n, ok := arg.(int64)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "no implicit conversion of %s into Integer", in.vm.RealClassOf(arg).Name)
		}
		if n < 0 {
			in.Raise(in.vm.ArgumentErrorClass, "negative argument")
		}
		return NewString(strings.Repeat(self.(*String).S, int(n)))
	}))
	c.DefineMethod(NewMethod1("<<", func(in *Interpreter, self, arg Value) Value {
		s := self.(*String)
		if s.Frozen {
			in.Raise(in.vm.FrozenErrorClass, "can't modify frozen String: %s", strconv.Quote(s.S))
		}
		s.S += in.stringArg(arg)
		return s
	}))

	length := func(_ *Interpreter, self Value) Value {
		return int64(utf8.RuneCountInString(self.(*String).S))
	}
	c.DefineMethod(NewMethod0("length", length))
	c.DefineMethod(NewMethod0("size", length))
	c.DefineMethod(NewMethod0("empty?", func(_ *Interpreter, self Value) Value {
		return self.(*String).S == ""
	}))
	c.DefineMethod(NewMethod0("upcase", func(_ *Interpreter, self Value) Value {
		return NewString(strings.ToUpper(self.(*String).S))
	}))
	c.DefineMethod(NewMethod0("downcase", func(_ *Interpreter, self Value) Value {
		return NewString(strings.ToLower(self.(*String).S))
	}))
	c.DefineMethod(NewMethod0("dup", func(_ *Interpreter, self Value) Value {
		return NewString(self.(*String).S)
	}))
	c.DefineMethod(NewMethod0("hash", func(_ *Interpreter, self Value) Value {
		return int64(hashOf(self))
	}))

	c.DefineMethod(NewMethod1("=~", func(in *Interpreter, self, arg Value) Value {
		re, ok := arg.(*Regexp)
		if !ok {
			in.Raise(in.vm.TypeErrorClass, "wrong argument type %s (expected Regexp)", in.vm.RealClassOf(arg).Name)
		}
		return in.regexpIndex(re, self.(*String).S)
	}))

	s := v.SymbolClass

	s.DefineMethod(NewMethod0("to_s", func(_ *Interpreter, self Value) Value {
		return NewString(string(self.(Symbol)))
	}))
	s.DefineMethod(NewMethod0("to_sym", func(_ *Interpreter, self Value) Value {
		return self
	}))
	s.DefineMethod(NewMethod0("inspect", func(_ *Interpreter, self Value) Value {
		return NewString(Inspect(self))
	}))
	s.DefineMethod(NewMethod0("length", func(_ *Interpreter, self Value) Value {
		return int64(utf8.RuneCountInString(string(self.(Symbol))))
	}))

	cmp := v.ComparableModule

	compare := func(in *Interpreter, self, arg Value) int {
		r, ok := in.Send(self, "<=>", []Value{arg}, nil).(int64)
		if !ok {
			in.Raise(in.vm.ArgumentErrorClass, "comparison of %s with %s failed",
				in.vm.RealClassOf(self).Name, in.inspect(arg))
		}
		return int(r)
	}
	cmp.DefineMethod(NewMethod1("<", func(in *Interpreter, self, arg Value) Value {
		return compare(in, self, arg) < 0
	}))
	cmp.DefineMethod(NewMethod1(">", func(in *Interpreter, self, arg Value) Value {
		return compare(in, self, arg) > 0
	}))
	cmp.DefineMethod(NewMethod1("<=", func(in *Interpreter, self, arg Value) Value {
		return compare(in, self, arg) <= 0
	}))
	cmp.DefineMethod(NewMethod1(">=", func(in *Interpreter, self, arg Value) Value {
		return compare(in, self, arg) >= 0
	}))
	cmp.DefineMethod(NewNativeMethod("between?", Arity{Required: 2}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		return compare(in, self, args[0]) >= 0 && compare(in, self, args[1]) <= 0
	}))
}
