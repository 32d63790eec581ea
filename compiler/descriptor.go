package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Call descriptors
// ---------------------------------------------------------------------------

// CallType is the closed set of call shapes the emitter understands.
type CallType uint8

const (
	CallOther CallType = iota
	CallSelf
	CallSuperInstance
	CallSuperClass
	CallSuperUnresolved
	CallSuperZSuper
	CallArrayDeref
	CallAsString
	CallCaseEq
)

var callTypeNames = [...]string{
	CallOther:           "other",
	CallSelf:            "self",
	CallSuperInstance:   "super_instance",
	CallSuperClass:      "super_class",
	CallSuperUnresolved: "super_unresolved",
	CallSuperZSuper:     "zsuper",
	CallArrayDeref:      "aref",
	CallAsString:        "as_string",
	CallCaseEq:          "case_eq",
}

func (t CallType) String() string {
	if int(t) < len(callTypeNames) {
		return callTypeNames[t]
	}
	return fmt.Sprintf("CallType(%d)", t)
}

// ParseCallType maps the textual name of a call type back to its value.
func ParseCallType(s string) (CallType, bool) {
	for i, name := range callTypeNames {
		if name == s {
			return CallType(i), true
		}
	}
	return 0, false
}

// IsSuper reports whether t is one of the four super shapes.
func (t CallType) IsSuper() bool {
	switch t {
	case CallSuperInstance, CallSuperClass, CallSuperUnresolved, CallSuperZSuper:
		return true
	}
	return false
}

// Arity is the statically known argument shape of a call. Fixed counts
// the positional operands; Variadic is set when some of them are
// splatted, so the count reaching the callee is only known at run time.
type Arity struct {
	Fixed    int
	Variadic bool
}

// Int returns the arity in the single-integer form, -1 for variadic.
func (a Arity) Int() int {
	if a.Variadic {
		return -1
	}
	return a.Fixed
}

func (a Arity) String() string {
	if a.Variadic {
		return fmt.Sprintf("%d*", a.Fixed)
	}
	return fmt.Sprintf("%d", a.Fixed)
}

// Location is a source position.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CallDescriptor is the immutable compile-time record of one call site.
type CallDescriptor struct {
	Name     string
	Arity    Arity
	HasBlock bool
	SplatMap []bool // one flag per positional operand, nil when nothing is splatted
	CallType CallType
	Location Location
}

// NewCall builds a descriptor for a plain call with argc positional
// operands.
func NewCall(t CallType, name string, argc int, loc Location) *CallDescriptor {
	return &CallDescriptor{Name: name, Arity: Arity{Fixed: argc}, CallType: t, Location: loc}
}

// NewSuperCall builds a super descriptor from the loose fields a super
// site is described by. An arity of -1 marks splatted arguments and
// requires a splat map.
func NewSuperCall(t CallType, file string, line int, name string, arity int, hasClosure bool, splatMap []bool) (*CallDescriptor, error) {
	loc := Location{File: file, Line: line}
	if !t.IsSuper() {
		return nil, errorAt(loc, ErrOperandMismatch, "%s is not a super call type", t)
	}
	d := &CallDescriptor{
		Name:     name,
		HasBlock: hasClosure,
		SplatMap: splatMap,
		CallType: t,
		Location: loc,
	}
	switch {
	case arity >= 0:
		d.Arity = Arity{Fixed: arity}
	case splatMap != nil:
		d.Arity = Arity{Fixed: len(splatMap), Variadic: true}
	default:
		return nil, errorAt(loc, ErrSplatMapMismatch, "variadic super needs a splat map")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Splatted reports whether any positional operand is flattened.
func (d *CallDescriptor) Splatted() bool {
	for _, s := range d.SplatMap {
		if s {
			return true
		}
	}
	return false
}

// Validate reports a malformed descriptor.
func (d *CallDescriptor) Validate() error {
	if d.Arity.Fixed < 0 {
		return errorAt(d.Location, ErrOperandMismatch, "negative argument count %d", d.Arity.Fixed)
	}
	if d.SplatMap != nil && len(d.SplatMap) != d.Arity.Fixed {
		return errorAt(d.Location, ErrSplatMapMismatch, "%d flags for %d arguments", len(d.SplatMap), d.Arity.Fixed)
	}
	if d.Arity.Variadic != d.Splatted() {
		return errorAt(d.Location, ErrSplatMapMismatch, "variadic flag disagrees with splat map")
	}
	if d.Name == "" && !d.CallType.IsSuper() {
		return errorAt(d.Location, ErrMissingName, "%s call", d.CallType)
	}
	switch d.CallType {
	case CallArrayDeref:
		if d.Arity.Fixed != 1 || d.Arity.Variadic || d.HasBlock {
			return errorAt(d.Location, ErrOperandMismatch, "array dereference takes one index and no block")
		}
	case CallAsString:
		if d.Arity.Fixed != 0 || d.HasBlock {
			return errorAt(d.Location, ErrOperandMismatch, "string conversion takes no arguments")
		}
	case CallCaseEq:
		if d.Arity.Fixed != 1 || d.HasBlock {
			return errorAt(d.Location, ErrOperandMismatch, "case equality takes one value and no block")
		}
	}
	return nil
}

func (d *CallDescriptor) String() string {
	s := fmt.Sprintf("%s %q/%s", d.CallType, d.Name, d.Arity)
	if d.HasBlock {
		s += " &blk"
	}
	return s
}
