package vm

// Context is the thread context value every invoke instruction receives
// as its first operand. It ties emitted code to the Interpreter running
// it.
type Context struct {
	interp *Interpreter
}

// Interpreter returns the thread the context belongs to.
func (c *Context) Interpreter() *Interpreter {
	return c.interp
}

// Frame is the activation record of a method, block or top-level body.
type Frame struct {
	Code   *Code
	Method Method // home method, nil at top level
	Owner  *Class // class defining the home method
	Self   Value
	Regs   []Value
	Block  *Proc // block passed to the home method

	Outer *Frame // lexically enclosing frame (blocks only)
	Home  *Frame // method frame; a method frame is its own home

	IP   int
	Line int // line of the call site executing, for backtraces

	stack []Value
}

// frameRegs is the register count of a frame running code.
func frameRegs(code *Code) int {
	n := code.NumRegs
	if n < code.Params {
		n = code.Params
	}
	if code.Rest && n <= code.Params {
		n = code.Params + 1
	}
	return n
}

func newFrame(code *Code, self Value) *Frame {
	n := frameRegs(code)
	f := &Frame{
		Code:  code,
		Self:  self,
		Regs:  make([]Value, n),
		stack: make([]Value, 0, 8),
	}
	f.Home = f
	return f
}

// IsBlock returns true if this is a block frame (not a method frame).
func (f *Frame) IsBlock() bool {
	return f.Code.IsBlock
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.stack) - 1
	if n < 0 {
		panic("operand stack underflow in " + f.Code.Name)
	}
	v := f.stack[n]
	f.stack[n] = nil
	f.stack = f.stack[:n]
	return v
}

func (f *Frame) top() Value {
	return f.stack[len(f.stack)-1]
}

func (f *Frame) popN(n int) []Value {
	if n == 0 {
		return nil
	}
	start := len(f.stack) - n
	if start < 0 {
		panic("operand stack underflow in " + f.Code.Name)
	}
	out := make([]Value, n)
	copy(out, f.stack[start:])
	for i := start; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:start]
	return out
}

// bindArgs copies positional arguments into the parameter registers.
// Methods have been arity-checked already; blocks are lenient, padding
// with nil and auto-splatting a lone Array argument.
func (f *Frame) bindArgs(args []Value) {
	c := f.Code
	if c.IsBlock && len(args) == 1 && (c.Params > 1 || (c.Params == 1 && c.Rest)) {
		if arr, ok := args[0].(*Array); ok {
			args = arr.Elems
		}
	}
	for i := 0; i < c.Params && i < len(args); i++ {
		f.Regs[i] = args[i]
	}
	if c.Rest {
		var rest []Value
		if len(args) > c.Params {
			rest = append(rest, args[c.Params:]...)
		}
		f.Regs[c.Params] = NewArray(rest...)
	}
}
