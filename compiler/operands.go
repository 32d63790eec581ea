package compiler

import (
	"fmt"

	"github.com/chazu/callsite/vm"
)

// ---------------------------------------------------------------------------
// Operands: values the caller has already materialised
// ---------------------------------------------------------------------------

// OperandKind says where an operand lives.
type OperandKind uint8

const (
	OperandNone    OperandKind = iota // absent (no block, no start class)
	OperandReg                        // register of the current frame
	OperandOuter                      // register of an enclosing frame
	OperandSelf                       // the frame's self
	OperandContext                    // the executing thread context
	OperandLiteral                    // constant from the literal frame
	OperandNil                        // nil
	OperandBlock                      // block passed to the home method
	OperandConst                      // class or module looked up by name
)

var operandKindNames = [...]string{"none", "reg", "outer", "self", "context", "literal", "nil", "block", "const"}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// Operand names one value an invocation consumes. Loading an operand has
// no side effects, so emission order is the only order of evaluation.
type Operand struct {
	Kind  OperandKind
	Index int      // register index for Reg and Outer
	Depth int      // lexical distance for Outer
	Value vm.Value // Literal only
	Name  string   // Const only
}

// None is the absent operand.
var None = Operand{}

// Reg names register i of the current frame.
func Reg(i int) Operand { return Operand{Kind: OperandReg, Index: i} }

// Outer names register i of the frame depth levels out.
func Outer(depth, i int) Operand { return Operand{Kind: OperandOuter, Depth: depth, Index: i} }

// Self names the frame's self.
func Self() Operand { return Operand{Kind: OperandSelf} }

// Context names the thread context.
func Context() Operand { return Operand{Kind: OperandContext} }

// Literal names a constant.
func Literal(v vm.Value) Operand { return Operand{Kind: OperandLiteral, Value: v} }

// Nil names nil.
func Nil() Operand { return Operand{Kind: OperandNil} }

// BlockArg names the block the home method received.
func BlockArg() Operand { return Operand{Kind: OperandBlock} }

// Const names a class or module by name.
func Const(name string) Operand { return Operand{Kind: OperandConst, Name: name} }

// Present reports whether the operand is given.
func (o Operand) Present() bool { return o.Kind != OperandNone }

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return fmt.Sprintf("r%d", o.Index)
	case OperandOuter:
		return fmt.Sprintf("r%d^%d", o.Index, o.Depth)
	case OperandLiteral:
		return vm.Inspect(o.Value)
	case OperandConst:
		return o.Name
	}
	return o.Kind.String()
}

// ---------------------------------------------------------------------------
// Operand bundles, one per protocol
// ---------------------------------------------------------------------------

// OtherOperands: context, self, receiver, args, optional block.
type OtherOperands struct {
	Context  Operand
	Self     Operand
	Receiver Operand
	Args     []Operand
	Block    Operand
}

// SelfOperands: context, caller, self, args, optional block.
type SelfOperands struct {
	Context Operand
	Caller  Operand
	Self    Operand
	Args    []Operand
	Block   Operand
}

// DerefOperands: context, self, target, index.
type DerefOperands struct {
	Context Operand
	Self    Operand
	Target  Operand
	Index   Operand
}

// AsStringOperands: context, self, target.
type AsStringOperands struct {
	Context Operand
	Self    Operand
	Target  Operand
}

// FixnumOperands: context, self, receiver and the folded Integer
// argument.
type FixnumOperands struct {
	Context  Operand
	Self     Operand
	Receiver Operand
	Literal  int64
}

// FloatOperands: context, self, receiver and the folded Float argument.
type FloatOperands struct {
	Context  Operand
	Self     Operand
	Receiver Operand
	Literal  float64
}

// SuperOperands: context, caller, self, starting class, args, optional
// block. Start is absent for unresolved super and zsuper; Args is empty
// for zsuper, whose arguments come from the home frame.
type SuperOperands struct {
	Context Operand
	Caller  Operand
	Self    Operand
	Start   Operand
	Args    []Operand
	Block   Operand
}

// EQQOperands: context, case value, when value.
type EQQOperands struct {
	Context Operand
	Case    Operand
	When    Operand
}
