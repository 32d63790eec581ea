package compiler

import "github.com/chazu/callsite/vm"

// ---------------------------------------------------------------------------
// Super resolver
// ---------------------------------------------------------------------------

// superStrategy says where a super site finds the class its lookup
// starts above, and where its arguments come from.
type superStrategy struct {
	want        CallType
	start       vm.SuperStart
	staticStart bool // the bundle carries the starting class
	forwardHome bool // arguments are the home method's parameters
}

var (
	staticInstance   = superStrategy{want: CallSuperInstance, start: vm.StartStaticInstance, staticStart: true}
	staticClass      = superStrategy{want: CallSuperClass, start: vm.StartStaticClass, staticStart: true}
	dynamicLookup    = superStrategy{want: CallSuperUnresolved, start: vm.StartDynamic}
	enclosingForward = superStrategy{want: CallSuperZSuper, start: vm.StartEnclosing, forwardHome: true}
)

// InvokeInstanceSuper emits super from an instance method whose defining
// class is known statically.
func (e *Emitter) InvokeInstanceSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error {
	return e.invokeSuper(loc, scope, call, ops, staticInstance)
}

// InvokeClassSuper emits super from a class method. Start names the
// class; lookup runs through its singleton ancestry.
func (e *Emitter) InvokeClassSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error {
	return e.invokeSuper(loc, scope, call, ops, staticClass)
}

// InvokeUnresolvedSuper emits super whose starting class is read from
// the executing frame.
func (e *Emitter) InvokeUnresolvedSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error {
	return e.invokeSuper(loc, scope, call, ops, dynamicLookup)
}

// InvokeZSuper emits a bare super, forwarding the home method's current
// parameter values.
func (e *Emitter) InvokeZSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands) error {
	return e.invokeSuper(loc, scope, call, ops, enclosingForward)
}

func (e *Emitter) invokeSuper(loc Location, scope *Scope, call *CallDescriptor, ops SuperOperands, st superStrategy) error {
	var home *Scope
	if scope != nil {
		home = scope.HomeMethod()
	}
	if home == nil {
		return fail(errorAt(loc, ErrSuperOutsideMethod, ""))
	}

	// A zsuper descriptor describes the forwarded home parameters; derive
	// it when the caller left the shape out.
	if st.forwardHome {
		if len(ops.Args) != 0 {
			return fail(errorAt(loc, ErrOperandMismatch, "zsuper takes its arguments from the home method"))
		}
		call = forwardedShape(call, home)
		if err := checkShape(loc, call, st.want, home.homeArgc(), ops.Block); err != nil {
			return fail(err)
		}
	} else if err := checkCall(loc, call, st.want, ops.Args, ops.Block); err != nil {
		return fail(err)
	}

	if err := checkOperands(loc, "context", ops.Context, "caller", ops.Caller, "self", ops.Self); err != nil {
		return fail(err)
	}
	if st.staticStart {
		if err := checkOperand(loc, "starting class", ops.Start); err != nil {
			return fail(err)
		}
	} else if ops.Start.Present() {
		return fail(errorAt(loc, ErrOperandMismatch, "%s super reads its starting class at run time", st.start))
	}

	name := call.Name
	if name == "" {
		name = home.Name
	}

	return e.emitting(loc, func() error {
		if err := e.fn.loadAll(ops.Context, ops.Caller, ops.Self); err != nil {
			return err
		}
		if st.staticStart {
			if err := e.fn.load(ops.Start); err != nil {
				return err
			}
		} else {
			e.fn.builder.Emit(vm.OpPushFrameOwner)
		}
		if st.forwardHome {
			e.fn.builder.EmitByte(vm.OpPushHomeArgs, byte(call.Arity.Fixed))
		} else if err := e.fn.loadAll(ops.Args...); err != nil {
			return err
		}
		if ops.Block.Present() {
			if err := e.fn.load(ops.Block); err != nil {
				return err
			}
		}

		s := e.newSite(loc, vm.CallSuper, call)
		s.Name = name
		s.Super = st.start
		return e.emitInvoke(vm.OpInvokeSuper, s)
	})
}

// forwardedShape completes a zsuper descriptor from the home method: one
// operand per parameter, with the rest array splatted.
func forwardedShape(call *CallDescriptor, home *Scope) *CallDescriptor {
	if call == nil || call.Arity.Fixed != 0 || call.SplatMap != nil {
		return call
	}
	d := *call
	n := home.homeArgc()
	d.Arity = Arity{Fixed: n, Variadic: home.Rest}
	if home.Rest {
		d.SplatMap = make([]bool, n)
		d.SplatMap[n-1] = true
	}
	return &d
}
