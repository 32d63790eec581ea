package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Language-level exceptions
// ---------------------------------------------------------------------------

// SourcePos is one backtrace line.
type SourcePos struct {
	File   string
	Line   int
	Method string
}

func (p SourcePos) String() string {
	if p.Method == "" {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:in '%s'", p.File, p.Line, p.Method)
}

// RaisedError is an exception raised by executing code, surfaced as a Go
// error at the interpreter boundary.
type RaisedError struct {
	Class     *Class
	Message   string
	Backtrace []SourcePos
}

func (e *RaisedError) Error() string {
	if len(e.Backtrace) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Backtrace[0], e.Message, e.Class.Name)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Class.Name)
}

// Is matches another RaisedError of the same class, so errors.Is can be
// used with a template error.
func (e *RaisedError) Is(target error) bool {
	t, ok := target.(*RaisedError)
	return ok && t.Class == e.Class
}

// FormatBacktrace renders the backtrace one frame per line.
func (e *RaisedError) FormatBacktrace() string {
	lines := make([]string, len(e.Backtrace))
	for i, p := range e.Backtrace {
		lines[i] = "\tfrom " + p.String()
	}
	return strings.Join(lines, "\n")
}

// SignaledException is panicked when an exception is signaled and
// recovered at the interpreter boundary.
type SignaledException struct {
	Err *RaisedError
}

// Raise signals an exception of class with a formatted message.
func (i *Interpreter) Raise(class *Class, format string, args ...any) {
	panic(SignaledException{Err: &RaisedError{
		Class:     class,
		Message:   fmt.Sprintf(format, args...),
		Backtrace: i.backtrace(),
	}})
}

func (i *Interpreter) backtrace() []SourcePos {
	out := make([]SourcePos, 0, len(i.frames))
	for k := len(i.frames) - 1; k >= 0; k-- {
		f := i.frames[k]
		name := f.Code.Name
		if f.Method != nil {
			name = f.Method.Name()
		}
		out = append(out, SourcePos{File: f.Code.File, Line: f.Line, Method: name})
	}
	return out
}

// missingReason records why a dispatch fell through to method_missing so
// that the default method_missing can explain it.
type missingReason uint8

const (
	missingUndefined missingReason = iota
	missingPrivate
	missingProtected
	missingSuper
)

func (i *Interpreter) describeReceiver(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return fmt.Sprintf("%t", x)
	case *Class:
		if x.IsModule {
			return "module " + x.Name
		}
		return "class " + x.Name
	}
	return "an instance of " + i.vm.RealClassOf(v).Name
}

func (i *Interpreter) raiseNoMethod(recv Value, name string, reason missingReason) {
	who := i.describeReceiver(recv)
	switch reason {
	case missingPrivate:
		i.Raise(i.vm.NoMethodErrorClass, "private method '%s' called for %s", name, who)
	case missingProtected:
		i.Raise(i.vm.NoMethodErrorClass, "protected method '%s' called for %s", name, who)
	case missingSuper:
		i.Raise(i.vm.NoMethodErrorClass, "super: no superclass method '%s' for %s", name, who)
	default:
		i.Raise(i.vm.NoMethodErrorClass, "undefined method '%s' for %s", name, who)
	}
}
