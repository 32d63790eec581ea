package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
	OpDUP Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushSelf    Opcode = 0x13 // push self
	OpPushLiteral Opcode = 0x16 // push literal from literal frame (16-bit index)
	OpPushContext Opcode = 0x18 // push the executing thread context
	OpPushConst   Opcode = 0x19 // push the class named by a symbol literal (16-bit index)
)

// Frame Operations
const (
	OpPushReg        Opcode = 0x20 // push register (8-bit index)
	OpStoreReg       Opcode = 0x21 // store top into register (8-bit index), value stays
	OpPushOuter      Opcode = 0x22 // push register of an enclosing frame (8-bit depth, 8-bit index)
	OpStoreOuter     Opcode = 0x23 // store into register of an enclosing frame
	OpPushBlock      Opcode = 0x24 // push the block passed to the home method, or nil
	OpPushFrameOwner Opcode = 0x25 // push the class that defines the home method
	OpPushHomeArgs   Opcode = 0x26 // push the first N argument registers of the home frame (8-bit N)
)

// Invocations (16-bit call site index)
const (
	OpInvokeOther      Opcode = 0x30 // context, self, receiver, args[, block]
	OpInvokeSelf       Opcode = 0x31 // context, caller, self, args[, block]
	OpInvokeArrayDeref Opcode = 0x32 // context, self, target, index
	OpInvokeAsString   Opcode = 0x33 // context, self, target
	OpInvokeSuper      Opcode = 0x34 // context, caller, self, start, args[, block]
	OpInvokeEQQ        Opcode = 0x35 // context, case value, when value
	OpYield            Opcode = 0x36 // args -> result (8-bit argc)
)

// Fast paths
const (
	OpGuardFixnum Opcode = 0x40 // receiver on top is Integer with builtin op (16-bit site, 16-bit fail offset)
	OpGuardFloat  Opcode = 0x41 // receiver on top is Float with builtin op (16-bit site, 16-bit fail offset)
	OpFixnumOp    Opcode = 0x42 // context, self, receiver -> result (8-bit op, 64-bit int, 16-bit fail offset)
	OpFloatOp     Opcode = 0x43 // context, self, receiver -> result (8-bit op, 64-bit float, 16-bit fail offset)
)

// Control Flow
const (
	OpJump      Opcode = 0x60 // unconditional jump (16-bit offset)
	OpJumpTrue  Opcode = 0x61 // pop, jump if truthy (16-bit offset)
	OpJumpFalse Opcode = 0x62 // pop, jump if falsy (16-bit offset)
)

// Returns
const (
	OpReturnTop Opcode = 0x70 // return top of stack
	OpReturnNil Opcode = 0x72 // return nil
)

// Object Creation
const (
	OpMakeBlock Opcode = 0x80 // create a block closing over this frame (16-bit block index)
	OpMakeArray Opcode = 0x90 // create array from stack (8-bit size)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0, 0},
	OpPOP: {"POP", 0, -1},
	OpDUP: {"DUP", 0, 1},

	OpPushNil:     {"PUSH_NIL", 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 1},
	OpPushSelf:    {"PUSH_SELF", 0, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 1},
	OpPushContext: {"PUSH_CONTEXT", 0, 1},
	OpPushConst:   {"PUSH_CONST", 2, 1},

	OpPushReg:        {"PUSH_REG", 1, 1},
	OpStoreReg:       {"STORE_REG", 1, 0},
	OpPushOuter:      {"PUSH_OUTER", 2, 1},
	OpStoreOuter:     {"STORE_OUTER", 2, 0},
	OpPushBlock:      {"PUSH_BLOCK", 0, 1},
	OpPushFrameOwner: {"PUSH_FRAME_OWNER", 0, 1},
	OpPushHomeArgs:   {"PUSH_HOME_ARGS", 1, -1},

	OpInvokeOther:      {"INVOKE_OTHER", 2, -1},
	OpInvokeSelf:       {"INVOKE_SELF", 2, -1},
	OpInvokeArrayDeref: {"INVOKE_AREF", 2, -3},
	OpInvokeAsString:   {"INVOKE_AS_STRING", 2, -2},
	OpInvokeSuper:      {"INVOKE_SUPER", 2, -1},
	OpInvokeEQQ:        {"INVOKE_EQQ", 2, -2},
	OpYield:            {"YIELD", 1, -1},

	OpGuardFixnum: {"GUARD_FIXNUM", 4, 0},
	OpGuardFloat:  {"GUARD_FLOAT", 4, 0},
	OpFixnumOp:    {"FIXNUM_OP", 11, -2},
	OpFloatOp:     {"FLOAT_OP", 11, -2},

	OpJump:      {"JUMP", 2, 0},
	OpJumpTrue:  {"JUMP_TRUE", 2, -1},
	OpJumpFalse: {"JUMP_FALSE", 2, -1},

	OpReturnTop: {"RETURN_TOP", 0, -1},
	OpReturnNil: {"RETURN_NIL", 0, 0},

	OpMakeBlock: {"MAKE_BLOCK", 2, 1},
	OpMakeArray: {"MAKE_ARRAY", 1, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
	err   error // first jump offset that did not fit
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Err returns the first encoding error, such as a jump offset outside
// the int16 range.
func (b *BytecodeBuilder) Err() error {
	return b.err
}

// Truncate discards everything emitted after the first n bytes.
func (b *BytecodeBuilder) Truncate(n int) {
	if n < len(b.bytes) {
		b.bytes = b.bytes[:n]
	}
}

// SetErr restores the recorded encoding error, for callers that roll
// back with Truncate.
func (b *BytecodeBuilder) SetErr(err error) {
	b.err = err
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitBytes appends an opcode with two byte operands.
func (b *BytecodeBuilder) EmitBytes(op Opcode, a, c byte) {
	b.bytes = append(b.bytes, byte(op), a, c)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitInvoke appends an invoke instruction referring to a call site.
func (b *BytecodeBuilder) EmitInvoke(op Opcode, site uint16) {
	b.EmitUint16(op, site)
}

// EmitGuard appends a fast-path guard that jumps to fail when the
// receiver does not qualify.
func (b *BytecodeBuilder) EmitGuard(op Opcode, site uint16, fail *Label) {
	b.bytes = append(b.bytes, byte(op), byte(site), byte(site>>8))
	b.labelRef(fail)
}

// EmitFixnumOp appends an inline integer operation with a folded literal.
func (b *BytecodeBuilder) EmitFixnumOp(op Intrinsic, operand int64, fail *Label) {
	b.bytes = append(b.bytes, byte(OpFixnumOp), byte(op))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(operand))
	b.bytes = append(b.bytes, buf[:]...)
	b.labelRef(fail)
}

// EmitFloatOp appends an inline float operation with a folded literal.
func (b *BytecodeBuilder) EmitFloatOp(op Intrinsic, operand float64, fail *Label) {
	b.bytes = append(b.bytes, byte(OpFloatOp), byte(op))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(operand))
	b.bytes = append(b.bytes, buf[:]...)
	b.labelRef(fail)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode. Offsets are relative
// to the end of the instruction that carries them; the offset is always
// the last operand.
type Label struct {
	resolved bool
	position int   // position to patch (if unresolved) or target (if resolved)
	refs     []int // positions that reference this label
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		if ref+2 > len(b.bytes) {
			continue // truncated away
		}
		offset := b.checkOffset(label.position - (ref + 2)) // offset from after the operand
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	b.labelRef(label)
}

func (b *BytecodeBuilder) labelRef(label *Label) {
	if label.resolved {
		// Backward jump: calculate offset
		offset := b.checkOffset(label.position - (len(b.bytes) + 2))
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
		return
	}
	// Forward jump: record position for later patching
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0) // placeholder
}

func (b *BytecodeBuilder) checkOffset(offset int) int {
	if (offset < math.MinInt16 || offset > math.MaxInt16) && b.err == nil {
		b.err = fmt.Errorf("jump offset %d out of int16 range", offset)
	}
	return offset
}

// Unresolved reports whether any label reference is still waiting to be
// patched.
func (l *Label) Unresolved() bool {
	return !l.resolved && len(l.refs) > 0
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadUint64 reads a 64-bit operand.
func (r *BytecodeReader) ReadUint64() uint64 {
	if r.pos+8 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return v
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

var intrinsicNames = map[Intrinsic]string{
	IntrinsicAdd: "+", IntrinsicSub: "-", IntrinsicMul: "*", IntrinsicDiv: "/",
	IntrinsicMod: "%", IntrinsicLT: "<", IntrinsicGT: ">", IntrinsicLE: "<=",
	IntrinsicGE: ">=", IntrinsicEQ: "==",
}

// DisassembleInstruction disassembles a single instruction at the
// reader's position. sites may be nil.
func DisassembleInstruction(r *BytecodeReader, sites []*CallSite) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	case OpPushReg, OpStoreReg, OpPushHomeArgs, OpMakeArray, OpYield:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadByte())

	case OpPushOuter, OpStoreOuter:
		depth := r.ReadByte()
		idx := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d^%d", pos, info.Name, idx, depth)

	case OpPushLiteral, OpPushConst, OpMakeBlock:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint16())

	case OpJump, OpJumpTrue, OpJumpFalse:
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case OpInvokeOther, OpInvokeSelf, OpInvokeArrayDeref, OpInvokeAsString, OpInvokeSuper, OpInvokeEQQ:
		idx := int(r.ReadUint16())
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, describeSite(sites, idx))

	case OpGuardFixnum, OpGuardFloat:
		idx := int(r.ReadUint16())
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %s (else -> %04d)", pos, info.Name, describeSite(sites, idx), target)

	case OpFixnumOp, OpFloatOp:
		iop := Intrinsic(r.ReadByte())
		bits := r.ReadUint64()
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		var lit string
		if op == OpFixnumOp {
			lit = fmt.Sprintf("%d", int64(bits))
		} else {
			lit = formatFloat(math.Float64frombits(bits))
		}
		return fmt.Sprintf("%04d  %s %s %s (else -> %04d)", pos, info.Name, intrinsicNames[iop], lit, target)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

func describeSite(sites []*CallSite, idx int) string {
	if idx < 0 || idx >= len(sites) {
		return fmt.Sprintf("site=%d", idx)
	}
	s := sites[idx]
	var sb strings.Builder
	fmt.Fprintf(&sb, "site=%d %s %q argc=%d", idx, s.Kind, s.Name, s.Argc)
	if s.HasBlock {
		sb.WriteString(" &blk")
	}
	for i, splat := range s.SplatMap {
		if splat {
			fmt.Fprintf(&sb, " *%d", i)
		}
	}
	if s.Kind == CallSuper {
		fmt.Fprintf(&sb, " start=%s", s.Super)
	}
	if s.SplatWhen {
		sb.WriteString(" *when")
	}
	if s.File != "" {
		fmt.Fprintf(&sb, " @%s", s.Location())
	}
	return sb.String()
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte) string {
	return disassemble(bc, nil)
}

// DisassembleCode disassembles a body and its nested blocks.
func DisassembleCode(c *Code) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s (%s) params=%d regs=%d\n", c.Name, c.File, c.Params, c.NumRegs)
	sb.WriteString(disassemble(c.Bytecode, c.CallSites))
	for i, blk := range c.Blocks {
		fmt.Fprintf(&sb, "\n-- block %d of %s\n", i, c.Name)
		sb.WriteString(DisassembleCode(blk))
	}
	return sb.String()
}

func disassemble(bc []byte, sites []*CallSite) string {
	r := NewBytecodeReader(bc)
	lines := make([]string, 0, len(bc)/2)
	for r.HasMore() {
		lines = append(lines, DisassembleInstruction(r, sites))
	}
	return strings.Join(lines, "\n")
}
