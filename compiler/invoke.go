package compiler

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/callsite/vm"
)

// ---------------------------------------------------------------------------
// Invocation emitter
// ---------------------------------------------------------------------------

// InvocationCompiler lowers call descriptors into dispatch code. Every
// entry point leaves exactly one value on the stack in place of the
// operands it consumes. A returned error means nothing was emitted for
// the call.
type InvocationCompiler interface {
	InvokeOther(loc Location, scope *Scope, call *CallDescriptor, arity int, ops OtherOperands) error
	InvokeArrayDeref(loc Location, scope *Scope, call *CallDescriptor, ops DerefOperands) error
	InvokeAsString(loc Location, scope *Scope, call *CallDescriptor, ops AsStringOperands) error
	InvokeOtherOneFixnum(loc Location, scope *Scope, call *CallDescriptor, ops FixnumOperands) error
	InvokeOtherOneFloat(loc Location, scope *Scope, call *CallDescriptor, ops FloatOperands) error
	InvokeSelf(loc Location, scope *Scope, call *CallDescriptor, arity int, ops SelfOperands) error
	InvokeInstanceSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error
	InvokeClassSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error
	InvokeUnresolvedSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error
	InvokeZSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error
	InvokeEQQ(loc Location, scope *Scope, call *CallDescriptor, ops EQQOperands) error
}

// Options selects the optional fast paths.
type Options struct {
	FixnumFastPath bool
	FloatFastPath  bool
	HashFastPath   bool
}

// DefaultOptions enables every fast path.
func DefaultOptions() Options {
	return Options{FixnumFastPath: true, FloatFastPath: true, HashFastPath: true}
}

// Emitter implements InvocationCompiler on top of a Function.
type Emitter struct {
	fn   *Function
	opts Options
}

var _ InvocationCompiler = (*Emitter)(nil)

// NewEmitter creates an emitter appending to fn.
func NewEmitter(fn *Function, opts Options) *Emitter {
	return &Emitter{fn: fn, opts: opts}
}

// Function returns the body being emitted into.
func (e *Emitter) Function() *Function {
	return e.fn
}

func (e *Emitter) newSite(loc Location, kind vm.CallKind, call *CallDescriptor) *vm.CallSite {
	s := &vm.CallSite{
		Kind:     kind,
		Name:     call.Name,
		Argc:     call.Arity.Fixed,
		HasBlock: call.HasBlock,
		File:     loc.File,
		Line:     loc.Line,
	}
	if call.Splatted() {
		s.SplatMap = append([]bool(nil), call.SplatMap...)
	}
	return s
}

func (e *Emitter) emitInvoke(op vm.Opcode, s *vm.CallSite) error {
	idx, err := e.fn.addSite(s)
	if err != nil {
		return err
	}
	e.fn.builder.EmitInvoke(op, idx)
	log.Debugf("%s: emitted %s %q site %d (argc %d)", s.Location(), s.Kind, s.Name, idx, s.Argc)
	return nil
}

// emitting runs emit and, when it fails, discards whatever it appended
// so the body is left as it was. The error is reported as a
// CompileError at loc.
func (e *Emitter) emitting(loc Location, emit func() error) error {
	cp := e.fn.checkpoint()
	err := emit()
	if err == nil {
		return nil
	}
	e.fn.rollback(cp)
	var ce *CompileError
	if errors.As(err, &ce) {
		return fail(ce)
	}
	return fail(errorAt(loc, err, ""))
}

// fail logs and returns a compile error.
func fail(err *CompileError) error {
	log.Errorf("%v", err)
	return err
}

// ---------------------------------------------------------------------------
// Operand checks, run before anything is emitted
// ---------------------------------------------------------------------------

func checkOperand(loc Location, what string, op Operand) *CompileError {
	switch op.Kind {
	case OperandNone:
		return errorAt(loc, ErrOperandMismatch, "missing %s operand", what)
	case OperandReg:
		if op.Index < 0 || op.Index > math.MaxUint8 {
			return errorAt(loc, ErrTooManyOperands, "%s register %d", what, op.Index)
		}
	case OperandOuter:
		if op.Depth < 1 || op.Depth > math.MaxUint8 || op.Index < 0 || op.Index > math.MaxUint8 {
			return errorAt(loc, ErrTooManyOperands, "%s outer register %d at depth %d", what, op.Index, op.Depth)
		}
	case OperandConst:
		if op.Name == "" {
			return errorAt(loc, ErrOperandMismatch, "%s constant has no name", what)
		}
	case OperandSelf, OperandContext, OperandLiteral, OperandNil, OperandBlock:
	default:
		return errorAt(loc, ErrOperandMismatch, "unknown %s operand kind %d", what, op.Kind)
	}
	return nil
}

func checkOperands(loc Location, named ...any) *CompileError {
	for k := 0; k+1 < len(named); k += 2 {
		if err := checkOperand(loc, named[k].(string), named[k+1].(Operand)); err != nil {
			return err
		}
	}
	return nil
}

// checkCall validates the descriptor against the entry point and the
// argument operands the bundle supplies.
func checkCall(loc Location, call *CallDescriptor, want CallType, args []Operand, block Operand) *CompileError {
	if err := checkShape(loc, call, want, len(args), block); err != nil {
		return err
	}
	for k, a := range args {
		if err := checkOperand(loc, fmt.Sprintf("argument %d", k), a); err != nil {
			return err
		}
	}
	return nil
}

// checkShape validates the descriptor against the entry point, the
// number of argument operands and the block operand.
func checkShape(loc Location, call *CallDescriptor, want CallType, argc int, block Operand) *CompileError {
	if call == nil {
		return errorAt(loc, ErrOperandMismatch, "nil call descriptor")
	}
	if err := call.Validate(); err != nil {
		return err.(*CompileError)
	}
	if call.CallType != want {
		return errorAt(loc, ErrOperandMismatch, "%s descriptor used for %s call", call.CallType, want)
	}
	if argc != call.Arity.Fixed {
		return errorAt(loc, ErrOperandMismatch, "%d argument operands for arity %s", argc, call.Arity)
	}
	if call.HasBlock != block.Present() {
		return errorAt(loc, ErrOperandMismatch, "block operand does not match descriptor")
	}
	if block.Present() {
		return checkOperand(loc, "block", block)
	}
	return nil
}

func checkArity(loc Location, call *CallDescriptor, arity int) *CompileError {
	if arity != call.Arity.Int() {
		return errorAt(loc, ErrOperandMismatch, "arity %d for descriptor of arity %s", arity, call.Arity)
	}
	return nil
}

func (e *Emitter) loadArgs(args []Operand, block Operand) error {
	if err := e.fn.loadAll(args...); err != nil {
		return err
	}
	if block.Present() {
		return e.fn.load(block)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Plain sends
// ---------------------------------------------------------------------------

// InvokeOther emits a call with an explicit receiver. The site is keyed
// on the receiver's class and subject to visibility checks.
func (e *Emitter) InvokeOther(loc Location, _ *Scope, call *CallDescriptor, arity int, ops OtherOperands) error {
	if err := checkCall(loc, call, CallOther, ops.Args, ops.Block); err != nil {
		return fail(err)
	}
	if err := checkArity(loc, call, arity); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "self", ops.Self, "receiver", ops.Receiver); err != nil {
		return fail(err)
	}
	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Self, ops.Receiver); err != nil {
			return err
		}
		if err := e.loadArgs(ops.Args, ops.Block); err != nil {
			return err
		}
		return e.emitInvoke(vm.OpInvokeOther, e.newSite(loc, vm.CallOther, call))
	})
}

// InvokeSelf emits a call on the current self. Visibility is not
// checked.
func (e *Emitter) InvokeSelf(loc Location, _ *Scope, call *CallDescriptor, arity int, ops SelfOperands) error {
	if err := checkCall(loc, call, CallSelf, ops.Args, ops.Block); err != nil {
		return fail(err)
	}
	if err := checkArity(loc, call, arity); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "caller", ops.Caller, "self", ops.Self); err != nil {
		return fail(err)
	}
	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Caller, ops.Self); err != nil {
			return err
		}
		if err := e.loadArgs(ops.Args, ops.Block); err != nil {
			return err
		}
		return e.emitInvoke(vm.OpInvokeSelf, e.newSite(loc, vm.CallSelf, call))
	})
}

// InvokeArrayDeref emits target[index]. A frozen string literal index
// enables the direct Hash lookup.
func (e *Emitter) InvokeArrayDeref(loc Location, _ *Scope, call *CallDescriptor, ops DerefOperands) error {
	if err := checkCall(loc, call, CallArrayDeref, []Operand{ops.Index}, None); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "self", ops.Self, "target", ops.Target); err != nil {
		return fail(err)
	}
	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Self, ops.Target, ops.Index); err != nil {
			return err
		}
		s := e.newSite(loc, vm.CallArrayDeref, call)
		if key, ok := ops.Index.Value.(*vm.String); ok && ops.Index.Kind == OperandLiteral && key.Frozen {
			s.HashFast = e.opts.HashFastPath
		}
		return e.emitInvoke(vm.OpInvokeArrayDeref, s)
	})
}

// InvokeAsString emits string conversion of target.
func (e *Emitter) InvokeAsString(loc Location, _ *Scope, call *CallDescriptor, ops AsStringOperands) error {
	if err := checkCall(loc, call, CallAsString, nil, None); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "self", ops.Self, "target", ops.Target); err != nil {
		return fail(err)
	}
	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Self, ops.Target); err != nil {
			return err
		}
		return e.emitInvoke(vm.OpInvokeAsString, e.newSite(loc, vm.CallAsString, call))
	})
}

// InvokeEQQ emits when === case. A splatted when value is tested element
// by element.
func (e *Emitter) InvokeEQQ(loc Location, _ *Scope, call *CallDescriptor, ops EQQOperands) error {
	if err := checkCall(loc, call, CallCaseEq, []Operand{ops.When}, None); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "case value", ops.Case); err != nil {
		return fail(err)
	}
	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Case, ops.When); err != nil {
			return err
		}
		s := e.newSite(loc, vm.CallEQQ, call)
		s.Argc = 1
		s.SplatMap = nil
		s.SplatWhen = call.Splatted()
		return e.emitInvoke(vm.OpInvokeEQQ, s)
	})
}
