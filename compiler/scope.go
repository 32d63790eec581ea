package compiler

// ScopeKind classifies a lexical scope.
type ScopeKind uint8

const (
	ScopeTop ScopeKind = iota
	ScopeClass
	ScopeMethod
	ScopeBlock
)

// Scope is the lexical context a call is emitted in. Blocks chain to
// their enclosing scope; the nearest method scope is the block's home.
type Scope struct {
	Name        string
	Kind        ScopeKind
	Owner       string // class or module defining the method
	ClassMethod bool   // method is defined on the owner's singleton
	Params      int
	Rest        bool
	Parent      *Scope
}

// NewMethodScope creates the scope of a method body.
func NewMethodScope(owner, name string, params int, rest, classMethod bool) *Scope {
	return &Scope{Name: name, Kind: ScopeMethod, Owner: owner, ClassMethod: classMethod, Params: params, Rest: rest}
}

// NewBlockScope creates the scope of a block nested in parent.
func NewBlockScope(parent *Scope, params int, rest bool) *Scope {
	return &Scope{Name: "<block>", Kind: ScopeBlock, Params: params, Rest: rest, Parent: parent}
}

// HomeMethod returns the method scope enclosing s, or nil at top level or
// in a class body.
func (s *Scope) HomeMethod() *Scope {
	for c := s; c != nil; c = c.Parent {
		switch c.Kind {
		case ScopeMethod:
			return c
		case ScopeTop, ScopeClass:
			return nil
		}
	}
	return nil
}

// homeArgc is the number of home-frame registers a zsuper forwards: the
// positional parameters plus the rest array.
func (s *Scope) homeArgc() int {
	n := s.Params
	if s.Rest {
		n++
	}
	return n
}
