package compiler

import "github.com/chazu/callsite/vm"

// ---------------------------------------------------------------------------
// Fast-path specializer
// ---------------------------------------------------------------------------

// Emitted shape, with ctx, self and the receiver already pushed:
//
//	GUARD_FIXNUM site, fallback     ; receiver is an Integer, operator is the builtin
//	FIXNUM_OP    op, literal, fallback
//	JUMP         done
//	fallback:
//	PUSH_LITERAL literal
//	INVOKE_OTHER site
//	done:
//
// Guard and fallback share one call site, so the guard's resolution warms
// the cell the generic send uses.

func checkFastCall(loc Location, call *CallDescriptor) *CompileError {
	if call == nil {
		return errorAt(loc, ErrOperandMismatch, "nil call descriptor")
	}
	if err := call.Validate(); err != nil {
		return err.(*CompileError)
	}
	if call.CallType != CallOther || call.Arity.Fixed != 1 || call.Arity.Variadic || call.HasBlock {
		return errorAt(loc, ErrBadFastPath, "%s", call)
	}
	return nil
}

// InvokeOtherOneFixnum emits recv <op> literal for an Integer literal.
func (e *Emitter) InvokeOtherOneFixnum(loc Location, _ *Scope, call *CallDescriptor, ops FixnumOperands) error {
	if err := checkFastCall(loc, call); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "self", ops.Self, "receiver", ops.Receiver); err != nil {
		return fail(err)
	}
	op := vm.IntrinsicFor(call.Name)
	inline := e.opts.FixnumFastPath && op != vm.IntrinsicNone
	if (op == vm.IntrinsicDiv || op == vm.IntrinsicMod) && ops.Literal == 0 {
		inline = false // always raises; let the method do it
	}
	return e.emitFast(loc, call, ops.Context, ops.Self, ops.Receiver, ops.Literal, vm.CallFixnum, inline, func(fallback *vm.Label) {
		b := e.fn.builder
		idx := uint16(e.fn.NumSites() - 1)
		b.EmitGuard(vm.OpGuardFixnum, idx, fallback)
		b.EmitFixnumOp(op, ops.Literal, fallback)
	})
}

// InvokeOtherOneFloat emits recv <op> literal for a Float literal.
func (e *Emitter) InvokeOtherOneFloat(loc Location, _ *Scope, call *CallDescriptor, ops FloatOperands) error {
	if err := checkFastCall(loc, call); err != nil {
		return fail(err)
	}
	if err := checkOperands(loc, "context", ops.Context, "self", ops.Self, "receiver", ops.Receiver); err != nil {
		return fail(err)
	}
	op := vm.IntrinsicFor(call.Name)
	inline := e.opts.FloatFastPath && op != vm.IntrinsicNone
	return e.emitFast(loc, call, ops.Context, ops.Self, ops.Receiver, ops.Literal, vm.CallFloat, inline, func(fallback *vm.Label) {
		b := e.fn.builder
		idx := uint16(e.fn.NumSites() - 1)
		b.EmitGuard(vm.OpGuardFloat, idx, fallback)
		b.EmitFloatOp(op, ops.Literal, fallback)
	})
}

// emitFast lays out the guarded inline operation and the generic
// fallback. fast emits the guard and operation once the site exists.
func (e *Emitter) emitFast(loc Location, call *CallDescriptor, ctx, self, recv Operand, lit vm.Value,
	kind vm.CallKind, inline bool, fast func(fallback *vm.Label)) error {
	return e.emitting(loc, func() error {
		return e.layoutFast(loc, call, ctx, self, recv, lit, kind, inline, fast)
	})
}

func (e *Emitter) layoutFast(loc Location, call *CallDescriptor, ctx, self, recv Operand, lit vm.Value,
	kind vm.CallKind, inline bool, fast func(fallback *vm.Label)) error {
	f := e.fn
	if err := f.loadAll(ctx, self, recv); err != nil {
		return err
	}
	s := e.newSite(loc, kind, call)
	idx, err := f.addSite(s)
	if err != nil {
		return err
	}

	var done *vm.Label
	if inline {
		fallback := f.NewLabel()
		done = f.NewLabel()
		fast(fallback)
		f.Jump(done)
		f.Mark(fallback)
	}
	if err := f.PushValue(lit); err != nil {
		return err
	}
	f.builder.EmitInvoke(vm.OpInvokeOther, idx)
	if inline {
		f.Mark(done)
	}
	log.Debugf("%s: emitted %s %q %v site %d (inline %t)", s.Location(), kind, s.Name, lit, idx, inline)
	return nil
}
