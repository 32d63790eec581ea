// Package ir defines the intermediate representation the call-site
// compiler lowers from: classes, method bodies and a top-level body made
// of register-level instructions whose operands are already evaluated.
package ir

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Program is one compilation unit.
type Program struct {
	File    string     `yaml:"file"`
	Classes []ClassDef `yaml:"classes"`
	Main    []Instr    `yaml:"main"`
}

// ClassDef opens (or creates) a class or module and defines methods in
// it.
type ClassDef struct {
	Name       string      `yaml:"name"`
	Superclass string      `yaml:"superclass,omitempty"`
	Module     bool        `yaml:"module,omitempty"`
	Include    []string    `yaml:"include,omitempty"`
	Methods    []MethodDef `yaml:"methods,omitempty"`
}

// MethodDef is a method body. Rest names the parameter that collects
// surplus arguments.
type MethodDef struct {
	Name        string   `yaml:"name"`
	Params      []string `yaml:"params,omitempty"`
	Rest        string   `yaml:"rest,omitempty"`
	ClassMethod bool     `yaml:"class_method,omitempty"`
	Visibility  string   `yaml:"visibility,omitempty"`
	Line        int      `yaml:"line,omitempty"`
	Body        []Instr  `yaml:"body"`
}

// Instruction opcodes.
const (
	OpCall   = "call"
	OpSet    = "set"
	OpArray  = "array"
	OpReturn = "return"
	OpNext   = "next"
	OpYield  = "yield"
	OpIf     = "if"
)

// Instr is one IR instruction. Which fields apply depends on Op:
//
//	call    Call, Name, Recv, Args, Splat, Block, BlockArg, When, Value, Dst
//	set     Value, Dst
//	array   Elems, Dst
//	return  Value
//	next    Value (blocks)
//	yield   Args, Dst
//	if      Cond, Then, Else
type Instr struct {
	Op   string `yaml:"op"`
	Line int    `yaml:"line,omitempty"`
	Dst  string `yaml:"dst,omitempty"`

	Call     string  `yaml:"call,omitempty"`
	Name     string  `yaml:"name,omitempty"`
	Recv     *Value  `yaml:"recv,omitempty"`
	Args     []Value `yaml:"args,omitempty"`
	Splat    []bool  `yaml:"splat,omitempty"`
	Block    *Block  `yaml:"block,omitempty"`
	BlockArg *Value  `yaml:"block_arg,omitempty"`

	// case_eq: When === Value, SplatWhen tests each element of When.
	When      *Value `yaml:"when,omitempty"`
	SplatWhen bool   `yaml:"splat_when,omitempty"`

	Value *Value  `yaml:"value,omitempty"`
	Elems []Value `yaml:"elems,omitempty"`

	Cond *Value  `yaml:"cond,omitempty"`
	Then []Instr `yaml:"then,omitempty"`
	Else []Instr `yaml:"else,omitempty"`
}

// Block is a literal block passed to a call.
type Block struct {
	Params []string `yaml:"params,omitempty"`
	Rest   string   `yaml:"rest,omitempty"`
	Body   []Instr  `yaml:"body"`
}

// Value is an operand. Exactly one field is set. In YAML a bare integer,
// float, boolean or null is a literal and a bare word names a variable.
type Value struct {
	Int    *int64      `yaml:"int,omitempty"`
	Float  *float64    `yaml:"float,omitempty"`
	Str    *string     `yaml:"str,omitempty"`
	Sym    string      `yaml:"sym,omitempty"`
	Nil    bool        `yaml:"nil,omitempty"`
	Bool   *bool       `yaml:"bool,omitempty"`
	Self   bool        `yaml:"self,omitempty"`
	Var    string      `yaml:"var,omitempty"`
	Const  string      `yaml:"const,omitempty"`
	Regexp *string     `yaml:"regexp,omitempty"`
	Range  *RangeValue `yaml:"range,omitempty"`
	Block  bool        `yaml:"block,omitempty"`
}

// RangeValue is a literal range.
type RangeValue struct {
	From      *Value `yaml:"from,omitempty"`
	To        *Value `yaml:"to,omitempty"`
	Exclusive bool   `yaml:"exclusive,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand as well as the mapping form.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch node.ShortTag() {
		case "!!int":
			var n int64
			if err := node.Decode(&n); err != nil {
				return err
			}
			*v = Value{Int: &n}
		case "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				return err
			}
			*v = Value{Float: &f}
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*v = Value{Bool: &b}
		case "!!null":
			*v = Value{Nil: true}
		case "!!str":
			if node.Value == "self" {
				*v = Value{Self: true}
			} else {
				*v = Value{Var: node.Value}
			}
		default:
			return fmt.Errorf("line %d: unsupported operand %q", node.Line, node.Value)
		}
		return nil
	}
	type plain Value
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*v = Value(p)
	return nil
}

// Int returns an integer operand.
func Int(n int64) Value { return Value{Int: &n} }

// Float returns a float operand.
func Float(f float64) Value { return Value{Float: &f} }

// Str returns a string literal operand.
func Str(s string) Value { return Value{Str: &s} }

// Var returns a variable operand.
func Var(name string) Value { return Value{Var: name} }

func (v Value) String() string {
	switch {
	case v.Int != nil:
		return fmt.Sprintf("%d", *v.Int)
	case v.Float != nil:
		return fmt.Sprintf("%g", *v.Float)
	case v.Str != nil:
		return fmt.Sprintf("%q", *v.Str)
	case v.Sym != "":
		return ":" + v.Sym
	case v.Nil:
		return "nil"
	case v.Bool != nil:
		return fmt.Sprintf("%t", *v.Bool)
	case v.Self:
		return "self"
	case v.Var != "":
		return v.Var
	case v.Const != "":
		return v.Const
	case v.Regexp != nil:
		return "/" + *v.Regexp + "/"
	case v.Range != nil:
		return "range"
	case v.Block:
		return "&block"
	}
	return "nil"
}
