package vm

import (
	"time"

	"github.com/dlclark/regexp2"
)

// RegexpMatchTimeout bounds a single match so that a pathological pattern
// cannot stall a case dispatch.
var RegexpMatchTimeout = 2 * time.Second

// Regexp is a compiled regular expression value.
type Regexp struct {
	Source string
	re     *regexp2.Regexp
}

// NewRegexp compiles source.
func NewRegexp(source string) (*Regexp, error) {
	re, err := regexp2.Compile(source, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = RegexpMatchTimeout
	return &Regexp{Source: source, re: re}, nil
}

// MustRegexp is NewRegexp for patterns known to be valid.
func MustRegexp(source string) *Regexp {
	r, err := NewRegexp(source)
	if err != nil {
		panic(err)
	}
	return r
}

// matchTarget extracts the text a regexp can match against.
func matchTarget(v Value) (string, bool) {
	switch x := v.(type) {
	case *String:
		return x.S, true
	case Symbol:
		return string(x), true
	}
	return "", false
}

// regexpMatch implements Regexp#===: true when v is a string or symbol
// the pattern matches.
func (i *Interpreter) regexpMatch(re *Regexp, v Value) Value {
	s, ok := matchTarget(v)
	if !ok {
		return false
	}
	m, err := re.re.MatchString(s)
	if err != nil {
		i.Raise(i.vm.RegexpErrorClass, "%v", err)
	}
	return m
}

// regexpIndex implements =~: the character index of the first match, or
// nil.
func (i *Interpreter) regexpIndex(re *Regexp, s string) Value {
	m, err := re.re.FindStringMatch(s)
	if err != nil {
		i.Raise(i.vm.RegexpErrorClass, "%v", err)
	}
	if m == nil {
		return nil
	}
	return int64(m.Index)
}

// ---------------------------------------------------------------------------
// Regexp Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerRegexpPrimitives() {
	c := v.RegexpClass

	c.Singleton().DefineMethod(NewMethod1("new", func(in *Interpreter, _ Value, arg Value) Value {
		re, err := NewRegexp(in.stringArg(arg))
		if err != nil {
			in.Raise(in.vm.RegexpErrorClass, "%v", err)
		}
		return re
	}))

	c.DefineMethod(NewMethod1("===", func(in *Interpreter, self, arg Value) Value {
		return in.regexpMatch(self.(*Regexp), arg)
	}).WithIntrinsic(IntrinsicEqqRegexp))
	c.DefineMethod(NewMethod1("match?", func(in *Interpreter, self, arg Value) Value {
		if arg == nil {
			return false
		}
		return in.regexpMatch(self.(*Regexp), arg)
	}))
	c.DefineMethod(NewMethod1("=~", func(in *Interpreter, self, arg Value) Value {
		s, ok := matchTarget(arg)
		if !ok {
			if arg == nil {
				return nil
			}
			in.Raise(in.vm.TypeErrorClass, "no implicit conversion of %s into String", in.vm.RealClassOf(arg).Name)
		}
		return in.regexpIndex(self.(*Regexp), s)
	}))
	c.DefineMethod(NewMethod0("source", func(_ *Interpreter, self Value) Value {
		return NewString(self.(*Regexp).Source)
	}))
	c.DefineMethod(NewMethod1("==", func(_ *Interpreter, self, arg Value) Value {
		o, ok := arg.(*Regexp)
		return ok && o.Source == self.(*Regexp).Source
	}))
	c.DefineMethod(NewMethod0("inspect", func(_ *Interpreter, self Value) Value {
		return NewString(Inspect(self))
	}))
	c.DefineMethod(NewMethod0("to_s", func(_ *Interpreter, self Value) Value {
		return NewString("(?-mix:" + self.(*Regexp).Source + ")")
	}))
}
