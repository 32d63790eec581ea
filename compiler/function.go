package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/callsite/vm"
)

// ---------------------------------------------------------------------------
// Function: one body under construction
// ---------------------------------------------------------------------------

// Function accumulates the bytecode, literal frame, call-site table and
// nested blocks of one compiled body. Emission is append-only apart
// from rollback to a checkpoint.
type Function struct {
	name    string
	file    string
	params  int
	rest    bool
	isBlock bool
	numRegs int

	builder    *vm.BytecodeBuilder
	literals   []vm.Value
	literalMap map[any]int
	keys       []any // literalMap keys in insertion order
	sites      []*vm.CallSite
	blocks     []*vm.Code
	labels     []*vm.Label
}

// NewFunction starts a method or top-level body taking params positional
// arguments, plus a rest array when rest is set.
func NewFunction(name, file string, params int, rest bool) *Function {
	f := &Function{
		name:       name,
		file:       file,
		params:     params,
		rest:       rest,
		builder:    vm.NewBytecodeBuilder(),
		literalMap: make(map[any]int),
	}
	f.UseRegs(params)
	if rest {
		f.UseRegs(params + 1)
	}
	return f
}

// NewBlockFunction starts a block body.
func NewBlockFunction(file string, params int, rest bool) *Function {
	f := NewFunction("<block>", file, params, rest)
	f.isBlock = true
	return f
}

// Name returns the body name.
func (f *Function) Name() string { return f.name }

// Len returns the number of bytes emitted so far.
func (f *Function) Len() int { return f.builder.Len() }

// NumSites returns the number of call sites emitted so far.
func (f *Function) NumSites() int { return len(f.sites) }

// UseRegs makes sure the frame has at least n registers.
func (f *Function) UseRegs(n int) {
	if n > f.numRegs {
		f.numRegs = n
	}
}

type floatKey uint64
type frozenKey string

// literal adds v to the literal frame, reusing an existing slot for
// equal immutable values.
func (f *Function) literal(v vm.Value) (uint16, error) {
	var key any
	switch x := v.(type) {
	case int64, vm.Symbol:
		key = x
	case float64:
		key = floatKey(math.Float64bits(x))
	case *vm.String:
		if x.Frozen {
			key = frozenKey(x.S)
		}
	}
	if key != nil {
		if idx, ok := f.literalMap[key]; ok {
			return uint16(idx), nil
		}
	}
	if len(f.literals) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: literal frame of %s is full", ErrTooManyOperands, f.name)
	}
	idx := len(f.literals)
	f.literals = append(f.literals, v)
	if key != nil {
		f.literalMap[key] = idx
		f.keys = append(f.keys, key)
	}
	return uint16(idx), nil
}

// checkpoint marks the state of the body so a failed emission can be
// undone.
type checkpoint struct {
	bytes, literals, keys, sites, blocks, labels int
	err                                          error
}

func (f *Function) checkpoint() checkpoint {
	return checkpoint{
		bytes:    f.builder.Len(),
		literals: len(f.literals),
		keys:     len(f.keys),
		sites:    len(f.sites),
		blocks:   len(f.blocks),
		labels:   len(f.labels),
		err:      f.builder.Err(),
	}
}

// rollback discards everything emitted since cp. Registers reserved in
// between stay reserved.
func (f *Function) rollback(cp checkpoint) {
	f.builder.Truncate(cp.bytes)
	f.builder.SetErr(cp.err)
	clear(f.literals[cp.literals:])
	f.literals = f.literals[:cp.literals]
	for _, k := range f.keys[cp.keys:] {
		delete(f.literalMap, k)
	}
	f.keys = f.keys[:cp.keys]
	f.sites = f.sites[:cp.sites]
	f.blocks = f.blocks[:cp.blocks]
	f.labels = f.labels[:cp.labels]
}

// addSite registers a call site and assigns its two cache slots.
func (f *Function) addSite(s *vm.CallSite) (uint16, error) {
	idx := len(f.sites)
	if idx > math.MaxUint16 {
		return 0, fmt.Errorf("%w: too many call sites in %s", ErrTooManyOperands, f.name)
	}
	s.CacheSlot = 2 * idx
	s.MissingSlot = 2*idx + 1
	f.sites = append(f.sites, s)
	return uint16(idx), nil
}

// load pushes an operand.
func (f *Function) load(op Operand) error {
	b := f.builder
	switch op.Kind {
	case OperandReg:
		if op.Index < 0 || op.Index > math.MaxUint8 {
			return fmt.Errorf("%w: register %d", ErrTooManyOperands, op.Index)
		}
		f.UseRegs(op.Index + 1)
		b.EmitByte(vm.OpPushReg, byte(op.Index))
	case OperandOuter:
		if op.Depth < 1 || op.Depth > math.MaxUint8 || op.Index < 0 || op.Index > math.MaxUint8 {
			return fmt.Errorf("%w: outer register %d at depth %d", ErrTooManyOperands, op.Index, op.Depth)
		}
		b.EmitBytes(vm.OpPushOuter, byte(op.Depth), byte(op.Index))
	case OperandSelf:
		b.Emit(vm.OpPushSelf)
	case OperandContext:
		b.Emit(vm.OpPushContext)
	case OperandNil:
		b.Emit(vm.OpPushNil)
	case OperandBlock:
		b.Emit(vm.OpPushBlock)
	case OperandLiteral:
		return f.PushValue(op.Value)
	case OperandConst:
		idx, err := f.literal(vm.Symbol(op.Name))
		if err != nil {
			return err
		}
		b.EmitUint16(vm.OpPushConst, idx)
	default:
		return fmt.Errorf("%w: cannot load %s operand", ErrOperandMismatch, op.Kind)
	}
	return nil
}

func (f *Function) loadAll(ops ...Operand) error {
	for _, op := range ops {
		if err := f.load(op); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Non-call instructions
// ---------------------------------------------------------------------------

// PushValue pushes a constant.
func (f *Function) PushValue(v vm.Value) error {
	switch x := v.(type) {
	case nil:
		f.builder.Emit(vm.OpPushNil)
	case bool:
		if x {
			f.builder.Emit(vm.OpPushTrue)
		} else {
			f.builder.Emit(vm.OpPushFalse)
		}
	default:
		idx, err := f.literal(v)
		if err != nil {
			return err
		}
		f.builder.EmitUint16(vm.OpPushLiteral, idx)
	}
	return nil
}

// Load pushes an operand.
func (f *Function) Load(op Operand) error {
	return f.load(op)
}

// Store copies the top of the stack into register i, leaving it there.
func (f *Function) Store(i int) error {
	if i < 0 || i > math.MaxUint8 {
		return fmt.Errorf("%w: register %d", ErrTooManyOperands, i)
	}
	f.UseRegs(i + 1)
	f.builder.EmitByte(vm.OpStoreReg, byte(i))
	return nil
}

// StoreOuter copies the top of the stack into register i of the frame
// depth levels out.
func (f *Function) StoreOuter(depth, i int) error {
	if depth < 1 || depth > math.MaxUint8 || i < 0 || i > math.MaxUint8 {
		return fmt.Errorf("%w: outer register %d at depth %d", ErrTooManyOperands, i, depth)
	}
	f.builder.EmitBytes(vm.OpStoreOuter, byte(depth), byte(i))
	return nil
}

// Pop discards the top of the stack.
func (f *Function) Pop() { f.builder.Emit(vm.OpPOP) }

// Dup duplicates the top of the stack.
func (f *Function) Dup() { f.builder.Emit(vm.OpDUP) }

// Return returns the top of the stack.
func (f *Function) Return() { f.builder.Emit(vm.OpReturnTop) }

// ReturnNil returns nil.
func (f *Function) ReturnNil() { f.builder.Emit(vm.OpReturnNil) }

// MakeArray collects the top n values into an Array.
func (f *Function) MakeArray(n int) error {
	if n < 0 || n > math.MaxUint8 {
		return fmt.Errorf("%w: array of %d elements", ErrTooManyOperands, n)
	}
	f.builder.EmitByte(vm.OpMakeArray, byte(n))
	return nil
}

// Yield calls the home method's block with the top argc values.
func (f *Function) Yield(argc int) error {
	if argc < 0 || argc > math.MaxUint8 {
		return fmt.Errorf("%w: yield of %d arguments", ErrTooManyOperands, argc)
	}
	f.builder.EmitByte(vm.OpYield, byte(argc))
	return nil
}

// AddBlock finishes a nested block body and returns its index for
// MakeBlock.
func (f *Function) AddBlock(blk *Function) (int, error) {
	code, err := blk.Finish()
	if err != nil {
		return 0, err
	}
	if len(f.blocks) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: too many blocks in %s", ErrTooManyOperands, f.name)
	}
	f.blocks = append(f.blocks, code)
	return len(f.blocks) - 1, nil
}

// MakeBlock pushes a closure for nested block idx.
func (f *Function) MakeBlock(idx int) {
	f.builder.EmitUint16(vm.OpMakeBlock, uint16(idx))
}

// NewLabel creates a jump target.
func (f *Function) NewLabel() *vm.Label {
	l := f.builder.NewLabel()
	f.labels = append(f.labels, l)
	return l
}

// Mark binds l to the current position.
func (f *Function) Mark(l *vm.Label) { f.builder.Mark(l) }

// Jump jumps to l.
func (f *Function) Jump(l *vm.Label) { f.builder.EmitJump(vm.OpJump, l) }

// JumpIfTrue pops and jumps to l when the value is truthy.
func (f *Function) JumpIfTrue(l *vm.Label) { f.builder.EmitJump(vm.OpJumpTrue, l) }

// JumpIfFalse pops and jumps to l when the value is falsy.
func (f *Function) JumpIfFalse(l *vm.Label) { f.builder.EmitJump(vm.OpJumpFalse, l) }

// Finish seals the body.
func (f *Function) Finish() (*vm.Code, error) {
	for _, l := range f.labels {
		if l.Unresolved() {
			return nil, fmt.Errorf("%s: jump to unbound label", f.name)
		}
	}
	if err := f.builder.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTooManyOperands, f.name, err)
	}
	return &vm.Code{
		Name:      f.name,
		File:      f.file,
		Params:    f.params,
		Rest:      f.rest,
		NumRegs:   f.numRegs,
		IsBlock:   f.isBlock,
		Bytecode:  f.builder.Bytes(),
		Literals:  f.literals,
		CallSites: f.sites,
		Blocks:    f.blocks,
	}, nil
}
