package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/callsite/ir"
	"github.com/chazu/callsite/vm"
)

// ---------------------------------------------------------------------------
// Lowering: IR program -> Unit
// ---------------------------------------------------------------------------

// CompileProgram lowers every class and the top-level body of p.
func CompileProgram(p *ir.Program, opts Options) (*Unit, error) {
	u := &Unit{ID: uuid.New(), File: p.File}
	for _, cd := range p.Classes {
		cu := ClassUnit{Name: cd.Name, Superclass: cd.Superclass, Module: cd.Module, Include: cd.Include}
		for _, md := range cd.Methods {
			code, err := compileMethod(p.File, cd.Name, md, opts)
			if err != nil {
				return nil, err
			}
			vis, err := parseVisibility(md.Visibility)
			if err != nil {
				return nil, errorAt(Location{File: p.File, Line: md.Line}, ErrBadInstruction, "%s#%s: %v", cd.Name, md.Name, err)
			}
			cu.Methods = append(cu.Methods, MethodUnit{Name: md.Name, ClassMethod: md.ClassMethod, Visibility: vis, Code: code})
		}
		u.Classes = append(u.Classes, cu)
	}

	top := &lowering{
		fn:    NewFunction("<main>", p.File, 0, false),
		scope: &Scope{Name: "<main>", Kind: ScopeTop},
		vars:  make(map[string]int),
		opts:  opts,
	}
	main, err := top.body(p.Main)
	if err != nil {
		return nil, err
	}
	u.Main = main
	log.Infof("compiled %s: %d classes, unit %s", p.File, len(u.Classes), u.ID)
	return u, nil
}

func compileMethod(file, owner string, md ir.MethodDef, opts Options) (*vm.Code, error) {
	rest := md.Rest != ""
	l := &lowering{
		fn:    NewFunction(md.Name, file, len(md.Params), rest),
		scope: NewMethodScope(owner, md.Name, len(md.Params), rest, md.ClassMethod),
		vars:  make(map[string]int),
		opts:  opts,
	}
	if err := l.bindParams(md.Params, md.Rest); err != nil {
		return nil, errorAt(Location{File: file, Line: md.Line}, err, "")
	}
	return l.body(md.Body)
}

func parseVisibility(s string) (vm.Visibility, error) {
	switch s {
	case "", "public":
		return vm.Public, nil
	case "protected":
		return vm.Protected, nil
	case "private":
		return vm.Private, nil
	}
	return vm.Public, fmt.Errorf("unknown visibility %q", s)
}

// lowering is the state of one body being lowered. Blocks get their own
// lowering chained to the enclosing one.
type lowering struct {
	fn     *Function
	scope  *Scope
	vars   map[string]int
	next   int
	opts   Options
	parent *lowering
}

func (l *lowering) bindParams(params []string, rest string) error {
	for _, p := range params {
		if _, dup := l.vars[p]; dup {
			return fmt.Errorf("duplicate parameter %s", p)
		}
		l.vars[p] = l.next
		l.next++
	}
	if rest != "" {
		if _, dup := l.vars[rest]; dup {
			return fmt.Errorf("duplicate parameter %s", rest)
		}
		l.vars[rest] = l.next
		l.next++
	}
	return nil
}

func (l *lowering) body(instrs []ir.Instr) (*vm.Code, error) {
	if err := l.block(instrs); err != nil {
		return nil, err
	}
	l.fn.ReturnNil()
	return l.fn.Finish()
}

func (l *lowering) block(instrs []ir.Instr) error {
	for k := range instrs {
		if err := l.instr(&instrs[k]); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowering) loc(in *ir.Instr) Location {
	return Location{File: l.fn.file, Line: in.Line}
}

// temp allocates a scratch register.
func (l *lowering) temp() int {
	r := l.next
	l.next++
	l.fn.UseRegs(l.next)
	return r
}

// resolve finds a variable in this body or an enclosing one.
func (l *lowering) resolve(name string) (Operand, bool) {
	depth := 0
	for s := l; s != nil; s = s.parent {
		if r, ok := s.vars[name]; ok {
			if depth == 0 {
				return Reg(r), true
			}
			return Outer(depth, r), true
		}
		depth++
	}
	return None, false
}

// assign stores the top of the stack into name, creating a local when
// no enclosing body defines it, and pops it.
func (l *lowering) assign(name string) error {
	op, ok := l.resolve(name)
	if !ok {
		op = Reg(l.next)
		l.vars[name] = l.next
		l.next++
	}
	var err error
	if op.Kind == OperandOuter {
		err = l.fn.StoreOuter(op.Depth, op.Index)
	} else {
		err = l.fn.Store(op.Index)
	}
	if err != nil {
		return err
	}
	l.fn.Pop()
	return nil
}

// result stores or discards the value an instruction left on the stack.
func (l *lowering) result(in *ir.Instr) error {
	if in.Dst == "" {
		l.fn.Pop()
		return nil
	}
	return l.assign(in.Dst)
}

func (l *lowering) instr(in *ir.Instr) error {
	loc := l.loc(in)
	switch in.Op {
	case ir.OpCall:
		if err := l.call(in); err != nil {
			return err
		}
		return l.result(in)

	case ir.OpSet:
		if in.Dst == "" || in.Value == nil {
			return errorAt(loc, ErrBadInstruction, "set needs dst and value")
		}
		if err := l.push(loc, *in.Value); err != nil {
			return err
		}
		return l.assign(in.Dst)

	case ir.OpArray:
		for _, e := range in.Elems {
			if err := l.push(loc, e); err != nil {
				return err
			}
		}
		if err := l.fn.MakeArray(len(in.Elems)); err != nil {
			return errorAt(loc, err, "")
		}
		return l.result(in)

	case ir.OpReturn, ir.OpNext:
		if in.Value == nil {
			l.fn.ReturnNil()
			return nil
		}
		if err := l.push(loc, *in.Value); err != nil {
			return err
		}
		l.fn.Return()
		return nil

	case ir.OpYield:
		for _, a := range in.Args {
			if err := l.push(loc, a); err != nil {
				return err
			}
		}
		if err := l.fn.Yield(len(in.Args)); err != nil {
			return errorAt(loc, err, "")
		}
		return l.result(in)

	case ir.OpIf:
		if in.Cond == nil {
			return errorAt(loc, ErrBadInstruction, "if needs a condition")
		}
		if err := l.push(loc, *in.Cond); err != nil {
			return err
		}
		elseL, end := l.fn.NewLabel(), l.fn.NewLabel()
		l.fn.JumpIfFalse(elseL)
		if err := l.block(in.Then); err != nil {
			return err
		}
		l.fn.Jump(end)
		l.fn.Mark(elseL)
		if err := l.block(in.Else); err != nil {
			return err
		}
		l.fn.Mark(end)
		return nil
	}
	return errorAt(loc, ErrBadInstruction, "unknown op %q", in.Op)
}

func (l *lowering) push(loc Location, v ir.Value) error {
	op, err := l.operand(loc, v)
	if err != nil {
		return err
	}
	if err := l.fn.Load(op); err != nil {
		return errorAt(loc, err, "")
	}
	return nil
}

// operand maps an IR value to an emitter operand.
func (l *lowering) operand(loc Location, v ir.Value) (Operand, error) {
	switch {
	case v.Var != "":
		op, ok := l.resolve(v.Var)
		if !ok {
			return None, errorAt(loc, ErrUndefinedVariable, "%s", v.Var)
		}
		return op, nil
	case v.Self:
		return Self(), nil
	case v.Const != "":
		return Const(v.Const), nil
	case v.Block:
		return BlockArg(), nil
	case v.Nil:
		return Nil(), nil
	}
	lit, err := literalValue(v)
	if err != nil {
		return None, errorAt(loc, ErrBadInstruction, "%v", err)
	}
	if lit == nil {
		return Nil(), nil
	}
	return Literal(lit), nil
}

// literalValue returns the constant an IR value denotes. String literals
// are frozen because the literal frame shares them between executions.
func literalValue(v ir.Value) (vm.Value, error) {
	switch {
	case v.Int != nil:
		return *v.Int, nil
	case v.Float != nil:
		return *v.Float, nil
	case v.Str != nil:
		return vm.NewFrozenString(*v.Str), nil
	case v.Sym != "":
		return vm.Symbol(v.Sym), nil
	case v.Bool != nil:
		return *v.Bool, nil
	case v.Nil:
		return nil, nil
	case v.Regexp != nil:
		return vm.NewRegexp(*v.Regexp)
	case v.Range != nil:
		var from, to vm.Value
		var err error
		if v.Range.From != nil {
			if from, err = literalValue(*v.Range.From); err != nil {
				return nil, err
			}
		}
		if v.Range.To != nil {
			if to, err = literalValue(*v.Range.To); err != nil {
				return nil, err
			}
		}
		return vm.NewRange(from, to, v.Range.Exclusive), nil
	case v.Var != "", v.Self, v.Const != "", v.Block:
		return nil, fmt.Errorf("%s is not a constant", v)
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (l *lowering) callType(in *ir.Instr) (CallType, error) {
	switch in.Call {
	case "":
		if in.Recv != nil {
			return CallOther, nil
		}
		return CallSelf, nil
	case "super":
		home := l.scope.HomeMethod()
		switch {
		case home == nil:
			return CallSuperUnresolved, nil
		case l.scope != home:
			// Blocks can be rebound to another self, so their super
			// reads the starting class from the frame.
			return CallSuperUnresolved, nil
		case home.ClassMethod:
			return CallSuperClass, nil
		}
		return CallSuperInstance, nil
	}
	t, ok := ParseCallType(in.Call)
	if !ok {
		return 0, errorAt(l.loc(in), ErrBadInstruction, "unknown call type %q", in.Call)
	}
	return t, nil
}

// blockOperand materialises the block of a call into a scratch register.
func (l *lowering) blockOperand(in *ir.Instr) (Operand, error) {
	loc := l.loc(in)
	switch {
	case in.Block != nil && in.BlockArg != nil:
		return None, errorAt(loc, ErrBadInstruction, "call has both a literal block and a block argument")
	case in.BlockArg != nil:
		return l.operand(loc, *in.BlockArg)
	case in.Block == nil:
		return None, nil
	}

	b := in.Block
	rest := b.Rest != ""
	child := &lowering{
		fn:     NewBlockFunction(l.fn.file, len(b.Params), rest),
		scope:  NewBlockScope(l.scope, len(b.Params), rest),
		vars:   make(map[string]int),
		opts:   l.opts,
		parent: l,
	}
	if err := child.bindParams(b.Params, b.Rest); err != nil {
		return None, errorAt(loc, ErrBadInstruction, "%v", err)
	}
	if err := child.block(b.Body); err != nil {
		return None, err
	}
	child.fn.ReturnNil()
	idx, err := l.fn.AddBlock(child.fn)
	if err != nil {
		return None, errorAt(loc, err, "")
	}
	l.fn.MakeBlock(idx)
	r := l.temp()
	if err := l.fn.Store(r); err != nil {
		return None, errorAt(loc, err, "")
	}
	l.fn.Pop()
	return Reg(r), nil
}

func (l *lowering) call(in *ir.Instr) error {
	loc := l.loc(in)
	t, err := l.callType(in)
	if err != nil {
		return err
	}

	args := make([]Operand, len(in.Args))
	for k, a := range in.Args {
		if args[k], err = l.operand(loc, a); err != nil {
			return err
		}
	}
	var recv Operand
	if in.Recv != nil {
		if recv, err = l.operand(loc, *in.Recv); err != nil {
			return err
		}
	}
	block, err := l.blockOperand(in)
	if err != nil {
		return err
	}

	d := &CallDescriptor{
		Name:     in.Name,
		Arity:    Arity{Fixed: len(in.Args)},
		HasBlock: block.Present(),
		CallType: t,
		Location: loc,
	}
	if len(in.Splat) > 0 {
		d.SplatMap = append([]bool(nil), in.Splat...)
		d.Arity.Variadic = d.Splatted()
	}

	e := NewEmitter(l.fn, l.opts)
	switch t {
	case CallOther:
		if in.Recv == nil {
			return errorAt(loc, ErrBadInstruction, "call to %s has no receiver", in.Name)
		}
		if lit, ok := fastLiteral(d, args); ok {
			switch x := lit.(type) {
			case int64:
				return e.InvokeOtherOneFixnum(loc, l.scope, d, FixnumOperands{Context(), Self(), recv, x})
			case float64:
				return e.InvokeOtherOneFloat(loc, l.scope, d, FloatOperands{Context(), Self(), recv, x})
			}
		}
		return e.InvokeOther(loc, l.scope, d, d.Arity.Int(), OtherOperands{Context(), Self(), recv, args, block})

	case CallSelf:
		return e.InvokeSelf(loc, l.scope, d, d.Arity.Int(), SelfOperands{Context(), Self(), Self(), args, block})

	case CallArrayDeref:
		if d.Name == "" {
			d.Name = "[]"
		}
		if len(args) != 1 {
			return errorAt(loc, ErrOperandMismatch, "array dereference takes one index")
		}
		return e.InvokeArrayDeref(loc, l.scope, d, DerefOperands{Context(), Self(), recv, args[0]})

	case CallAsString:
		if d.Name == "" {
			d.Name = "to_s"
		}
		return e.InvokeAsString(loc, l.scope, d, AsStringOperands{Context(), Self(), recv})

	case CallCaseEq:
		if in.When == nil || in.Value == nil {
			return errorAt(loc, ErrBadInstruction, "case_eq needs when and value")
		}
		caseOp, err := l.operand(loc, *in.Value)
		if err != nil {
			return err
		}
		when, err := l.operand(loc, *in.When)
		if err != nil {
			return err
		}
		eq := &CallDescriptor{Name: "===", Arity: Arity{Fixed: 1}, CallType: CallCaseEq, Location: loc}
		if in.SplatWhen {
			eq.Arity.Variadic = true
			eq.SplatMap = []bool{true}
		}
		return e.InvokeEQQ(loc, l.scope, eq, EQQOperands{Context(), caseOp, when})

	case CallSuperInstance, CallSuperClass:
		start := None
		if home := l.scope.HomeMethod(); home != nil {
			start = Const(home.Owner)
		}
		ops := SuperOperands{Context(), Self(), Self(), start, args, block}
		if t == CallSuperClass {
			return e.InvokeClassSuper(loc, l.scope, d, ops)
		}
		return e.InvokeInstanceSuper(loc, l.scope, d, ops)

	case CallSuperUnresolved:
		return e.InvokeUnresolvedSuper(loc, l.scope, d, SuperOperands{Context(), Self(), Self(), None, args, block})

	case CallSuperZSuper:
		if len(args) != 0 {
			return errorAt(loc, ErrOperandMismatch, "zsuper takes no explicit arguments")
		}
		return e.InvokeZSuper(loc, l.scope, d, SuperOperands{Context(), Self(), Self(), None, nil, block})
	}
	return errorAt(loc, ErrBadInstruction, "unhandled call type %s", t)
}

// fastLiteral returns the numeric literal argument of a call eligible
// for the inline arithmetic paths.
func fastLiteral(d *CallDescriptor, args []Operand) (vm.Value, bool) {
	if len(args) != 1 || d.HasBlock || d.Splatted() || args[0].Kind != OperandLiteral {
		return nil, false
	}
	if vm.IntrinsicFor(d.Name) == vm.IntrinsicNone {
		return nil, false
	}
	switch args[0].Value.(type) {
	case int64, float64:
		return args[0].Value, true
	}
	return nil, false
}
