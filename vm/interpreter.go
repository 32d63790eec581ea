package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultMaxDepth bounds nested activations before a stack overflow is
// raised as a language exception.
const DefaultMaxDepth = 10000

// ---------------------------------------------------------------------------
// Interpreter: Bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes emitted bytecode. An Interpreter is one thread of
// execution and must not be shared between goroutines; any number of
// them may run code of the same VM concurrently.
type Interpreter struct {
	vm      *VM
	Context *Context

	frames   []*Frame
	MaxDepth int

	missing missingReason
}

func newInterpreter(v *VM) *Interpreter {
	i := &Interpreter{vm: v, MaxDepth: DefaultMaxDepth}
	i.Context = &Context{interp: i}
	return i
}

// VM returns the runtime the interpreter executes against.
func (i *Interpreter) VM() *VM {
	return i.vm
}

// Execute runs a top-level body with the given self. Language exceptions
// are returned as *RaisedError.
func (i *Interpreter) Execute(code *Code, self Value) (result Value, err error) {
	if code.Caches() == nil {
		i.vm.Load(code)
	}
	depth := len(i.frames)
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(SignaledException)
			if !ok {
				panic(r)
			}
			i.frames = i.frames[:depth]
			result, err = nil, sig.Err
		}
	}()
	f := newFrame(code, self)
	return i.runFrame(f), nil
}

// Call invokes a method on recv by name outside of any call site, the
// way builtins and embedders send messages. Exceptions are returned as
// *RaisedError.
func (i *Interpreter) Call(recv Value, name string, args ...Value) (result Value, err error) {
	depth := len(i.frames)
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(SignaledException)
			if !ok {
				panic(r)
			}
			i.frames = i.frames[:depth]
			result, err = nil, sig.Err
		}
	}()
	return i.Send(recv, name, args, nil), nil
}

// Send dispatches without an inline cache. Used by builtins.
func (i *Interpreter) Send(recv Value, name string, args []Value, blk *Proc) Value {
	cls := i.vm.ClassOf(recv)
	if m := i.vm.FindMethod(cls, name); m != nil {
		return i.invoke(m, recv, args, blk)
	}
	mm := i.vm.FindMethod(cls, "method_missing")
	i.missing = missingUndefined
	return i.invoke(mm, recv, append([]Value{Symbol(name)}, args...), blk)
}

func (i *Interpreter) pushFrame(f *Frame) {
	if len(i.frames) >= i.MaxDepth {
		i.Raise(i.vm.SystemStackErrorClass, "stack level too deep")
	}
	i.frames = append(i.frames, f)
}

func (i *Interpreter) popFrame() {
	n := len(i.frames) - 1
	i.frames[n] = nil
	i.frames = i.frames[:n]
}

// invoke runs a resolved method. The argument count is checked here, by
// the target's entry protocol, so every dispatch path raises the same
// ArgumentError.
func (i *Interpreter) invoke(m Method, self Value, args []Value, blk *Proc) Value {
	if a := m.Arity(); !a.Accepts(len(args)) {
		i.Raise(i.vm.ArgumentErrorClass, "wrong number of arguments (given %d, expected %s)", len(args), a)
	}
	switch mm := m.(type) {
	case *NativeMethod:
		return mm.fn(i, self, args, blk)
	case *CompiledMethod:
		f := newFrame(mm.Code, self)
		f.Method = mm
		f.Owner = mm.owner
		f.Block = blk
		f.bindArgs(args)
		return i.runFrame(f)
	}
	panic(fmt.Sprintf("unsupported method handle %T", m))
}

// CallBlock invokes a block with the given arguments.
func (i *Interpreter) CallBlock(p *Proc, args ...Value) Value {
	f := newFrame(p.Code, p.Self)
	f.Outer = p.Outer
	f.Home = p.Home
	if p.Home != nil {
		f.Method = p.Home.Method
		f.Owner = p.Home.Owner
		f.Block = p.Home.Block
	}
	f.bindArgs(args)
	return i.runFrame(f)
}

func (i *Interpreter) runFrame(f *Frame) Value {
	if f.Code.Caches() == nil {
		i.vm.Load(f.Code)
	}
	i.pushFrame(f)
	defer i.popFrame()
	return i.run(f)
}

func (i *Interpreter) run(f *Frame) Value {
	code := f.Code
	bc := code.Bytecode
	literals := code.Literals

	for f.IP < len(bc) {
		op := Opcode(bc[f.IP])
		f.IP++

		switch op {
		case OpNOP:

		case OpPOP:
			f.pop()

		case OpDUP:
			f.push(f.top())

		// --- Push constants ---
		case OpPushNil:
			f.push(nil)
		case OpPushTrue:
			f.push(true)
		case OpPushFalse:
			f.push(false)
		case OpPushSelf:
			f.push(f.Self)
		case OpPushContext:
			f.push(i.Context)

		case OpPushLiteral:
			idx := binary.LittleEndian.Uint16(bc[f.IP:])
			f.IP += 2
			f.push(literals[idx])

		case OpPushConst:
			idx := binary.LittleEndian.Uint16(bc[f.IP:])
			f.IP += 2
			name, _ := literals[idx].(Symbol)
			c := i.vm.Classes.Lookup(string(name))
			if c == nil {
				i.Raise(i.vm.NameErrorClass, "uninitialized constant %s", name)
			}
			f.push(c)

		// --- Frame access ---
		case OpPushReg:
			f.push(f.Regs[bc[f.IP]])
			f.IP++

		case OpStoreReg:
			f.Regs[bc[f.IP]] = f.top()
			f.IP++

		case OpPushOuter:
			fr := outerFrame(f, int(bc[f.IP]))
			f.push(fr.Regs[bc[f.IP+1]])
			f.IP += 2

		case OpStoreOuter:
			fr := outerFrame(f, int(bc[f.IP]))
			fr.Regs[bc[f.IP+1]] = f.top()
			f.IP += 2

		case OpPushBlock:
			if f.Block != nil {
				f.push(f.Block)
			} else {
				f.push(nil)
			}

		case OpPushFrameOwner:
			if f.Owner == nil {
				f.push(nil)
			} else {
				f.push(f.Owner)
			}

		case OpPushHomeArgs:
			n := int(bc[f.IP])
			f.IP++
			home := f.Home
			for k := 0; k < n; k++ {
				f.push(home.Regs[k])
			}

		// --- Invocations ---
		case OpInvokeOther:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			blk := i.popBlock(f, s)
			args := ApplySplatMap(f.popN(s.Argc), s.SplatMap)
			recv := f.pop()
			caller := f.pop()
			i.checkContext(f.pop(), s)
			f.push(i.dispatch(code, s, caller, recv, args, blk, true))

		case OpInvokeSelf:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			blk := i.popBlock(f, s)
			args := ApplySplatMap(f.popN(s.Argc), s.SplatMap)
			self := f.pop()
			caller := f.pop()
			i.checkContext(f.pop(), s)
			f.push(i.dispatch(code, s, caller, self, args, blk, false))

		case OpInvokeArrayDeref:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			index := f.pop()
			target := f.pop()
			caller := f.pop()
			i.checkContext(f.pop(), s)
			f.push(i.arrayDeref(code, s, caller, target, index))

		case OpInvokeAsString:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			target := f.pop()
			caller := f.pop()
			i.checkContext(f.pop(), s)
			f.push(i.asString(code, s, caller, target))

		case OpInvokeSuper:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			var blk *Proc
			if s.HasBlock {
				blk = i.toProc(f.pop())
			} else {
				blk = f.Home.Block
			}
			args := ApplySplatMap(f.popN(s.Argc), s.SplatMap)
			start := f.pop()
			self := f.pop()
			f.pop() // caller
			i.checkContext(f.pop(), s)
			f.push(i.invokeSuper(f, code, s, self, start, args, blk))

		case OpInvokeEQQ:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			f.IP += 2
			f.Line = s.Line
			when := f.pop()
			caseValue := f.pop()
			i.checkContext(f.pop(), s)
			f.push(i.caseEqual(code, s, caseValue, when))

		case OpYield:
			argc := int(bc[f.IP])
			f.IP++
			args := f.popN(argc)
			if f.Block == nil {
				i.Raise(i.vm.LocalJumpErrorClass, "no block given (yield)")
			}
			f.push(i.CallBlock(f.Block, args...))

		// --- Fast paths ---
		case OpGuardFixnum, OpGuardFloat:
			s := code.CallSites[binary.LittleEndian.Uint16(bc[f.IP:])]
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP+2:])))
			f.IP += 4
			if !i.guard(code, s, f.top(), op == OpGuardFixnum) {
				f.IP += offset
			}

		case OpFixnumOp:
			iop := Intrinsic(bc[f.IP])
			lit := int64(binary.LittleEndian.Uint64(bc[f.IP+1:]))
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP+9:])))
			f.IP += 11
			r, ok := IntegerOp(iop, f.top().(int64), lit)
			if !ok {
				f.IP += offset
				break
			}
			f.popN(3) // context, self, receiver
			f.push(r)

		case OpFloatOp:
			iop := Intrinsic(bc[f.IP])
			lit := math.Float64frombits(binary.LittleEndian.Uint64(bc[f.IP+1:]))
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP+9:])))
			f.IP += 11
			r, ok := FloatOp(iop, f.top().(float64), lit)
			if !ok {
				f.IP += offset
				break
			}
			f.popN(3)
			f.push(r)

		// --- Control flow ---
		case OpJump:
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP:])))
			f.IP += 2 + offset

		case OpJumpTrue:
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP:])))
			f.IP += 2
			if Truthy(f.pop()) {
				f.IP += offset
			}

		case OpJumpFalse:
			offset := int(int16(binary.LittleEndian.Uint16(bc[f.IP:])))
			f.IP += 2
			if !Truthy(f.pop()) {
				f.IP += offset
			}

		// --- Returns ---
		case OpReturnTop:
			return f.pop()

		case OpReturnNil:
			return nil

		// --- Object creation ---
		case OpMakeBlock:
			idx := binary.LittleEndian.Uint16(bc[f.IP:])
			f.IP += 2
			f.push(&Proc{Code: code.Blocks[idx], Self: f.Self, Outer: f, Home: f.Home})

		case OpMakeArray:
			n := int(bc[f.IP])
			f.IP++
			f.push(NewArray(f.popN(n)...))

		default:
			panic(fmt.Sprintf("unknown opcode: %02X (%s)", byte(op), op))
		}
	}
	if len(f.stack) > 0 {
		return f.pop()
	}
	return nil
}

func outerFrame(f *Frame, depth int) *Frame {
	for ; depth > 0; depth-- {
		f = f.Outer
	}
	return f
}

func (i *Interpreter) checkContext(v Value, s *CallSite) {
	if ctx, ok := v.(*Context); !ok || ctx != i.Context {
		panic(fmt.Sprintf("operand stack out of order at %s: expected thread context, got %s", s.Location(), Inspect(v)))
	}
}

func (i *Interpreter) popBlock(f *Frame, s *CallSite) *Proc {
	if !s.HasBlock {
		return nil
	}
	return i.toProc(f.pop())
}

func (i *Interpreter) toProc(v Value) *Proc {
	switch p := v.(type) {
	case nil:
		return nil
	case *Proc:
		return p
	}
	i.Raise(i.vm.TypeErrorClass, "wrong argument type %s (expected Proc)", i.vm.RealClassOf(v).Name)
	return nil
}

// ApplySplatMap rebuilds a forwarded argument list: every position
// flagged in splatMap holds a list whose elements are spliced in place.
// A flagged nil contributes nothing and a flagged non-Array contributes
// itself.
func ApplySplatMap(args []Value, splatMap []bool) []Value {
	splat := false
	for _, s := range splatMap {
		splat = splat || s
	}
	if !splat {
		return args
	}
	out := make([]Value, 0, len(args)+4)
	for k, a := range args {
		if k >= len(splatMap) || !splatMap[k] {
			out = append(out, a)
			continue
		}
		switch x := a.(type) {
		case nil:
		case *Array:
			out = append(out, x.Elems...)
		default:
			out = append(out, a)
		}
	}
	return out
}
