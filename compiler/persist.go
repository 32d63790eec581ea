package compiler

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/callsite/vm"
)

// ---------------------------------------------------------------------------
// Unit persistence (CBOR)
// ---------------------------------------------------------------------------

// Persisted units carry bytecode, literal frames and call-site tables.
// Inline cache contents are runtime state and are never written; a
// loaded unit starts with every site empty.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type unitRecord struct {
	ID      []byte        `cbor:"1,keyasint"`
	File    string        `cbor:"2,keyasint,omitempty"`
	Main    *codeRecord   `cbor:"3,keyasint,omitempty"`
	Classes []classRecord `cbor:"4,keyasint,omitempty"`
}

type classRecord struct {
	Name       string         `cbor:"1,keyasint"`
	Superclass string         `cbor:"2,keyasint,omitempty"`
	Module     bool           `cbor:"3,keyasint,omitempty"`
	Include    []string       `cbor:"4,keyasint,omitempty"`
	Methods    []methodRecord `cbor:"5,keyasint,omitempty"`
}

type methodRecord struct {
	Name        string      `cbor:"1,keyasint"`
	ClassMethod bool        `cbor:"2,keyasint,omitempty"`
	Visibility  uint8       `cbor:"3,keyasint,omitempty"`
	Code        *codeRecord `cbor:"4,keyasint"`
}

type codeRecord struct {
	Name     string          `cbor:"1,keyasint"`
	File     string          `cbor:"2,keyasint,omitempty"`
	Params   int             `cbor:"3,keyasint,omitempty"`
	Rest     bool            `cbor:"4,keyasint,omitempty"`
	NumRegs  int             `cbor:"5,keyasint,omitempty"`
	IsBlock  bool            `cbor:"6,keyasint,omitempty"`
	Bytecode []byte          `cbor:"7,keyasint"`
	Literals []literalRecord `cbor:"8,keyasint,omitempty"`
	Sites    []siteRecord    `cbor:"9,keyasint,omitempty"`
	Blocks   []*codeRecord   `cbor:"10,keyasint,omitempty"`
}

type siteRecord struct {
	Kind        uint8  `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint,omitempty"`
	Argc        int    `cbor:"3,keyasint,omitempty"`
	SplatMap    []bool `cbor:"4,keyasint,omitempty"`
	HasBlock    bool   `cbor:"5,keyasint,omitempty"`
	Super       uint8  `cbor:"6,keyasint,omitempty"`
	SplatWhen   bool   `cbor:"7,keyasint,omitempty"`
	HashFast    bool   `cbor:"8,keyasint,omitempty"`
	File        string `cbor:"9,keyasint,omitempty"`
	Line        int    `cbor:"10,keyasint,omitempty"`
	CacheSlot   int    `cbor:"11,keyasint,omitempty"`
	MissingSlot int    `cbor:"12,keyasint,omitempty"`
}

// Literal kinds.
const (
	litNil uint8 = iota
	litBool
	litInt
	litFloat
	litString
	litSymbol
	litRegexp
	litRange
)

type literalRecord struct {
	Kind      uint8          `cbor:"1,keyasint"`
	Int       int64          `cbor:"2,keyasint,omitempty"`
	Float     uint64         `cbor:"3,keyasint,omitempty"` // IEEE 754 bits
	Str       string         `cbor:"4,keyasint,omitempty"`
	Bool      bool           `cbor:"5,keyasint,omitempty"`
	Frozen    bool           `cbor:"6,keyasint,omitempty"`
	First     *literalRecord `cbor:"7,keyasint,omitempty"`
	Last      *literalRecord `cbor:"8,keyasint,omitempty"`
	Exclusive bool           `cbor:"9,keyasint,omitempty"`
}

// MarshalUnit serializes a compiled unit.
func MarshalUnit(u *Unit) ([]byte, error) {
	rec := unitRecord{ID: u.ID[:], File: u.File}
	var err error
	if u.Main != nil {
		if rec.Main, err = encodeCode(u.Main); err != nil {
			return nil, err
		}
	}
	for _, c := range u.Classes {
		cr := classRecord{Name: c.Name, Superclass: c.Superclass, Module: c.Module, Include: c.Include}
		for _, m := range c.Methods {
			code, err := encodeCode(m.Code)
			if err != nil {
				return nil, fmt.Errorf("compiler: %s#%s: %w", c.Name, m.Name, err)
			}
			cr.Methods = append(cr.Methods, methodRecord{
				Name:        m.Name,
				ClassMethod: m.ClassMethod,
				Visibility:  uint8(m.Visibility),
				Code:        code,
			})
		}
		rec.Classes = append(rec.Classes, cr)
	}
	return cborEncMode.Marshal(&rec)
}

// UnmarshalUnit deserializes a unit written by MarshalUnit.
func UnmarshalUnit(data []byte) (*Unit, error) {
	var rec unitRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal unit: %w", err)
	}
	id, err := uuid.FromBytes(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("compiler: unit id: %w", err)
	}
	u := &Unit{ID: id, File: rec.File}
	if rec.Main != nil {
		if u.Main, err = loadCode(rec.Main); err != nil {
			return nil, err
		}
	}
	for _, cr := range rec.Classes {
		cu := ClassUnit{Name: cr.Name, Superclass: cr.Superclass, Module: cr.Module, Include: cr.Include}
		for _, mr := range cr.Methods {
			if mr.Code == nil {
				return nil, fmt.Errorf("compiler: %s#%s has no code", cr.Name, mr.Name)
			}
			code, err := loadCode(mr.Code)
			if err != nil {
				return nil, err
			}
			cu.Methods = append(cu.Methods, MethodUnit{
				Name:        mr.Name,
				ClassMethod: mr.ClassMethod,
				Visibility:  vm.Visibility(mr.Visibility),
				Code:        code,
			})
		}
		u.Classes = append(u.Classes, cu)
	}
	return u, nil
}

func encodeCode(c *vm.Code) (*codeRecord, error) {
	r := &codeRecord{
		Name:     c.Name,
		File:     c.File,
		Params:   c.Params,
		Rest:     c.Rest,
		NumRegs:  c.NumRegs,
		IsBlock:  c.IsBlock,
		Bytecode: c.Bytecode,
	}
	for k, lit := range c.Literals {
		lr, err := encodeLiteral(lit)
		if err != nil {
			return nil, fmt.Errorf("%s: literal %d: %w", c.Name, k, err)
		}
		r.Literals = append(r.Literals, *lr)
	}
	for _, s := range c.CallSites {
		r.Sites = append(r.Sites, siteRecord{
			Kind:        uint8(s.Kind),
			Name:        s.Name,
			Argc:        s.Argc,
			SplatMap:    s.SplatMap,
			HasBlock:    s.HasBlock,
			Super:       uint8(s.Super),
			SplatWhen:   s.SplatWhen,
			HashFast:    s.HashFast,
			File:        s.File,
			Line:        s.Line,
			CacheSlot:   s.CacheSlot,
			MissingSlot: s.MissingSlot,
		})
	}
	for _, b := range c.Blocks {
		br, err := encodeCode(b)
		if err != nil {
			return nil, err
		}
		r.Blocks = append(r.Blocks, br)
	}
	return r, nil
}

// loadCode decodes a top-level body and verifies its bytecode.
func loadCode(r *codeRecord) (*vm.Code, error) {
	c, err := decodeCode(r)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, fmt.Errorf("compiler: %w: %v", ErrBadInstruction, err)
	}
	return c, nil
}

func decodeCode(r *codeRecord) (*vm.Code, error) {
	c := &vm.Code{
		Name:     r.Name,
		File:     r.File,
		Params:   r.Params,
		Rest:     r.Rest,
		NumRegs:  r.NumRegs,
		IsBlock:  r.IsBlock,
		Bytecode: r.Bytecode,
	}
	for k := range r.Literals {
		v, err := decodeLiteral(&r.Literals[k])
		if err != nil {
			return nil, fmt.Errorf("compiler: %s: literal %d: %w", r.Name, k, err)
		}
		c.Literals = append(c.Literals, v)
	}
	for _, s := range r.Sites {
		if s.CacheSlot != 2*len(c.CallSites) || s.MissingSlot != s.CacheSlot+1 {
			return nil, fmt.Errorf("compiler: %s: site %d has cache slots %d/%d", r.Name, len(c.CallSites), s.CacheSlot, s.MissingSlot)
		}
		c.CallSites = append(c.CallSites, &vm.CallSite{
			Kind:        vm.CallKind(s.Kind),
			Name:        s.Name,
			Argc:        s.Argc,
			SplatMap:    s.SplatMap,
			HasBlock:    s.HasBlock,
			Super:       vm.SuperStart(s.Super),
			SplatWhen:   s.SplatWhen,
			HashFast:    s.HashFast,
			File:        s.File,
			Line:        s.Line,
			CacheSlot:   s.CacheSlot,
			MissingSlot: s.MissingSlot,
		})
	}
	for _, br := range r.Blocks {
		b, err := decodeCode(br)
		if err != nil {
			return nil, err
		}
		c.Blocks = append(c.Blocks, b)
	}
	return c, nil
}

func encodeLiteral(v vm.Value) (*literalRecord, error) {
	switch x := v.(type) {
	case nil:
		return &literalRecord{Kind: litNil}, nil
	case bool:
		return &literalRecord{Kind: litBool, Bool: x}, nil
	case int64:
		return &literalRecord{Kind: litInt, Int: x}, nil
	case float64:
		return &literalRecord{Kind: litFloat, Float: math.Float64bits(x)}, nil
	case *vm.String:
		return &literalRecord{Kind: litString, Str: x.S, Frozen: x.Frozen}, nil
	case vm.Symbol:
		return &literalRecord{Kind: litSymbol, Str: string(x)}, nil
	case *vm.Regexp:
		return &literalRecord{Kind: litRegexp, Str: x.Source}, nil
	case *vm.Range:
		first, err := encodeLiteral(x.First)
		if err != nil {
			return nil, err
		}
		last, err := encodeLiteral(x.Last)
		if err != nil {
			return nil, err
		}
		return &literalRecord{Kind: litRange, First: first, Last: last, Exclusive: x.Exclusive}, nil
	}
	return nil, fmt.Errorf("cannot persist %T literal", v)
}

func decodeLiteral(r *literalRecord) (vm.Value, error) {
	switch r.Kind {
	case litNil:
		return nil, nil
	case litBool:
		return r.Bool, nil
	case litInt:
		return r.Int, nil
	case litFloat:
		return math.Float64frombits(r.Float), nil
	case litString:
		if r.Frozen {
			return vm.NewFrozenString(r.Str), nil
		}
		return vm.NewString(r.Str), nil
	case litSymbol:
		return vm.Symbol(r.Str), nil
	case litRegexp:
		return vm.NewRegexp(r.Str)
	case litRange:
		var first, last vm.Value
		var err error
		if r.First != nil {
			if first, err = decodeLiteral(r.First); err != nil {
				return nil, err
			}
		}
		if r.Last != nil {
			if last, err = decodeLiteral(r.Last); err != nil {
				return nil, err
			}
		}
		return vm.NewRange(first, last, r.Exclusive), nil
	}
	return nil, fmt.Errorf("unknown literal kind %d", r.Kind)
}
