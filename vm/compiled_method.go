package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Code: a compiled body (method, block or top level)
// ---------------------------------------------------------------------------

// Code holds the bytecode and metadata for one compiled body.
type Code struct {
	Name string // method name, "<block>" or "<main>"
	File string

	// Frame layout: the first Params registers receive positional
	// arguments; when Rest is set register Params receives an Array of
	// the remaining ones.
	Params  int
	Rest    bool
	NumRegs int
	IsBlock bool

	Bytecode  []byte
	Literals  []Value
	CallSites []*CallSite
	Blocks    []*Code

	// caches holds the inline cache cells of this body's call sites,
	// indexed by CallSite.CacheSlot. It is published once by VM.Load and
	// shared by every interpreter running the body.
	caches atomic.Pointer[CacheArena]
}

// Caches returns the body's cache arena, or nil before it is loaded.
func (c *Code) Caches() *CacheArena {
	return c.caches.Load()
}

// Disassemble renders the body's bytecode, resolving call-site operands.
func (c *Code) Disassemble() string {
	return DisassembleCode(c)
}

// ---------------------------------------------------------------------------
// CallSite: runtime view of one emitted call
// ---------------------------------------------------------------------------

// CallKind selects the runtime protocol an invoke instruction follows.
type CallKind uint8

const (
	CallOther CallKind = iota
	CallSelf
	CallArrayDeref
	CallAsString
	CallFixnum
	CallFloat
	CallSuper
	CallEQQ
)

var callKindNames = [...]string{"other", "self", "aref", "as_string", "fixnum", "float", "super", "eqq"}

func (k CallKind) String() string {
	if int(k) < len(callKindNames) {
		return callKindNames[k]
	}
	return fmt.Sprintf("CallKind(%d)", k)
}

// SuperStart is the starting-class strategy of a super call site.
type SuperStart uint8

const (
	StartStaticInstance SuperStart = iota // start class pushed, instance ancestry
	StartStaticClass                      // start class pushed, singleton ancestry
	StartDynamic                          // start read from the executing frame
	StartEnclosing                        // as StartDynamic, arguments from the home frame
)

var superStartNames = [...]string{"instance", "class", "unresolved", "zsuper"}

func (s SuperStart) String() string {
	if int(s) < len(superStartNames) {
		return superStartNames[s]
	}
	return fmt.Sprintf("SuperStart(%d)", s)
}

// CallSite is the immutable record an invoke instruction refers to.
type CallSite struct {
	Kind     CallKind
	Name     string
	Argc     int    // positional operands on the stack
	SplatMap []bool // per operand: flatten before invoking
	HasBlock bool   // a block operand follows the arguments

	Super     SuperStart // super sites only
	SplatWhen bool       // eqq only: the when-value is a splatted list
	HashFast  bool       // aref only: frozen-string Hash lookup allowed

	File string
	Line int

	CacheSlot   int // cell for the primary dispatch
	MissingSlot int // cell for the method_missing dispatch
}

// Location formats the site's source position.
func (s *CallSite) Location() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// ---------------------------------------------------------------------------
// CompiledMethod
// ---------------------------------------------------------------------------

// CompiledMethod is a method whose body is emitted bytecode.
type CompiledMethod struct {
	name       string
	owner      *Class
	visibility Visibility
	Code       *Code
}

// NewCompiledMethod wraps a compiled body as a method named name.
func NewCompiledMethod(name string, code *Code) *CompiledMethod {
	return &CompiledMethod{name: name, Code: code}
}

// WithVisibility sets the visibility and returns the method.
func (m *CompiledMethod) WithVisibility(v Visibility) *CompiledMethod {
	m.visibility = v
	return m
}

func (m *CompiledMethod) Name() string           { return m.name }
func (m *CompiledMethod) Owner() *Class          { return m.owner }
func (m *CompiledMethod) Visibility() Visibility { return m.visibility }
func (m *CompiledMethod) AcceptsBlock() bool     { return true }

func (m *CompiledMethod) Arity() Arity {
	return Arity{Required: m.Code.Params, Rest: m.Code.Rest}
}
