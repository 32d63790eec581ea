package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/callsite/ir"
	"github.com/chazu/callsite/vm"
)

func compileSource(t *testing.T, src string, opts Options) *Unit {
	t.Helper()
	p, err := ir.ParseProgram([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.File == "" {
		p.File = "test.rb"
	}
	u, err := CompileProgram(p, opts)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return u
}

func runSource(t *testing.T, src string) (vm.Value, *vm.VM, error) {
	t.Helper()
	u := compileSource(t, src, DefaultOptions())
	v := vm.NewVM()
	r, err := u.Run(v.NewInterpreter())
	return r, v, err
}

func wantResult(t *testing.T, src, want string) {
	t.Helper()
	r, _, err := runSource(t, src)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := vm.Inspect(r); got != want {
		t.Errorf("result = %s, want %s", got, want)
	}
}

func wantRaised(t *testing.T, src, class string) *vm.RaisedError {
	t.Helper()
	_, _, err := runSource(t, src)
	var raised *vm.RaisedError
	if !errors.As(err, &raised) {
		t.Fatalf("expected %s, got %v", class, err)
	}
	if raised.Class.Name != class {
		t.Fatalf("raised %s (%s), want %s", raised.Class.Name, raised.Message, class)
	}
	return raised
}

const greeters = `
classes:
  - name: A
    methods:
      - name: greet
        params: [x]
        body:
          - {op: call, recv: {str: "A"}, name: "+", args: [x], dst: r}
          - {op: return, value: r}
      - name: create
        body:
          - {op: return, value: {str: instance}}
      - name: create
        class_method: true
        body:
          - {op: return, value: {str: class}}
  - name: B
    superclass: A
    methods:
      - name: greet
        params: [x]
        body:
          - {op: call, call: super, args: [{str: b}], dst: r}
          - {op: return, value: r}
      - name: create
        class_method: true
        body:
          - {op: call, call: super, dst: r}
          - {op: call, recv: r, name: "+", args: [{str: "!"}], dst: out}
          - {op: return, value: out}
      - name: each_greet
        params: [x]
        body:
          - {op: array, elems: [x], dst: xs}
          - op: call
            recv: xs
            name: map
            block:
              params: [y]
              body:
                - {op: call, call: super, name: greet, args: [y], dst: g}
                - {op: next, value: g}
            dst: out
          - {op: return, value: out}
`

func TestInstanceSuper(t *testing.T) {
	wantResult(t, greeters+`
main:
  - {op: call, recv: {const: B}, name: new, dst: b}
  - {op: call, recv: b, name: greet, args: [{str: x}], dst: r}
  - {op: return, value: r}
`, `"Ab"`)
}

func TestClassSuperUsesSingletonAncestry(t *testing.T) {
	wantResult(t, greeters+`
main:
  - {op: call, recv: {const: B}, name: create, dst: r}
  - {op: return, value: r}
`, `"class!"`)
}

func TestSuperInsideBlockResolvesAtRunTime(t *testing.T) {
	u := compileSource(t, greeters, DefaultOptions())
	var each *vm.Code
	for _, c := range u.Classes {
		for _, m := range c.Methods {
			if m.Name == "each_greet" {
				each = m.Code
			}
		}
	}
	if each == nil || len(each.Blocks) != 1 {
		t.Fatal("each_greet should have one block")
	}
	site := each.Blocks[0].CallSites[0]
	if site.Kind != vm.CallSuper || site.Super != vm.StartDynamic {
		t.Errorf("block super site = %s %s, want dynamic super", site.Kind, site.Super)
	}

	wantResult(t, greeters+`
main:
  - {op: call, recv: {const: B}, name: new, dst: b}
  - {op: call, recv: b, name: each_greet, args: [{str: y}], dst: r}
  - {op: return, value: r}
`, `["Ay"]`)
}

func TestZSuperForwardsCurrentArguments(t *testing.T) {
	wantResult(t, `
classes:
  - name: A
    methods:
      - name: m
        params: [a]
        rest: rest
        body:
          - {op: array, elems: [a, rest], dst: r}
          - {op: return, value: r}
  - name: B
    superclass: A
    methods:
      - name: m
        params: [a]
        rest: rest
        body:
          - {op: set, dst: a, value: 10}
          - {op: call, call: zsuper, dst: r}
          - {op: return, value: r}
main:
  - {op: call, recv: {const: B}, name: new, dst: b}
  - {op: call, recv: b, name: m, args: [1, 2, 3], dst: r}
  - {op: return, value: r}
`, `[10, [2, 3]]`)
}

func TestZSuperForwardsBlock(t *testing.T) {
	wantResult(t, `
classes:
  - name: A
    methods:
      - name: twice
        params: [n]
        body:
          - {op: yield, args: [n], dst: a}
          - {op: yield, args: [a], dst: b}
          - {op: return, value: b}
  - name: B
    superclass: A
    methods:
      - name: twice
        params: [n]
        body:
          - {op: call, call: zsuper, dst: r}
          - {op: return, value: r}
main:
  - {op: call, recv: {const: B}, name: new, dst: b}
  - op: call
    recv: b
    name: twice
    args: [3]
    block:
      params: [x]
      body:
        - {op: call, recv: x, name: "*", args: [x], dst: y}
        - {op: next, value: y}
    dst: r
  - {op: return, value: r}
`, `81`)
}

func TestSuperWithoutTargetIsMissing(t *testing.T) {
	raised := wantRaised(t, `
classes:
  - name: Lonely
    methods:
      - name: work
        body:
          - {op: call, call: super, dst: r}
          - {op: return, value: r}
main:
  - {op: call, recv: {const: Lonely}, name: new, dst: o}
  - {op: call, recv: o, name: work, dst: r}
`, "NoMethodError")
	if !strings.Contains(raised.Message, "work") {
		t.Errorf("message should name the method: %q", raised.Message)
	}
}

func TestSuperOutsideMethod(t *testing.T) {
	p, err := ir.ParseProgram([]byte("main:\n  - {op: call, call: super}\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = CompileProgram(p, DefaultOptions())
	if !errors.Is(err, ErrSuperOutsideMethod) {
		t.Errorf("error = %v, want super outside method", err)
	}
}

func TestCaseEquality(t *testing.T) {
	wantResult(t, `
classes:
  - name: Matcher
    methods:
      - name: "==="
        params: [v]
        body:
          - {op: call, recv: v, name: "==", args: [42], dst: r}
          - {op: return, value: r}
main:
  - {op: call, call: case_eq, when: {const: Integer}, value: 5, dst: a}
  - {op: call, call: case_eq, when: {const: String}, value: 5, dst: b}
  - {op: call, call: case_eq, when: {range: {from: 1, to: 5, exclusive: true}}, value: 5, dst: c}
  - {op: call, call: case_eq, when: {regexp: "^ab"}, value: {str: abc}, dst: d}
  - {op: array, elems: [{const: Float}, {const: String}], dst: ws}
  - {op: call, call: case_eq, when: ws, splat_when: true, value: {str: s}, dst: e}
  - {op: call, recv: {const: Matcher}, name: new, dst: m}
  - {op: call, call: case_eq, when: m, value: 42, dst: f}
  - {op: call, call: case_eq, when: {sym: x}, value: {sym: x}, dst: g}
  - {op: array, elems: [a, b, c, d, e, f, g], dst: r}
  - {op: return, value: r}
`, `[true, false, false, true, true, true, true]`)
}

func TestSplattedArguments(t *testing.T) {
	wantResult(t, `
classes:
  - name: Object
    methods:
      - name: collect
        rest: xs
        body:
          - {op: return, value: xs}
main:
  - {op: array, elems: [2, 3], dst: a}
  - {op: call, name: collect, args: [1, a, 4, null], splat: [false, true, false, true], dst: r}
  - {op: return, value: r}
`, `[1, 2, 3, 4]`)
}

func TestPrivateMethodVisibility(t *testing.T) {
	src := `
classes:
  - name: Safe
    methods:
      - name: secret
        visibility: private
        body:
          - {op: return, value: 7}
      - name: reveal
        body:
          - {op: call, name: secret, dst: r}
          - {op: return, value: r}
`
	wantResult(t, src+`
main:
  - {op: call, recv: {const: Safe}, name: new, dst: s}
  - {op: call, recv: s, name: reveal, dst: r}
  - {op: return, value: r}
`, `7`)
	raised := wantRaised(t, src+`
main:
  - {op: call, recv: {const: Safe}, name: new, dst: s}
  - {op: call, recv: s, name: secret, dst: r}
`, "NoMethodError")
	if !strings.Contains(raised.Message, "private method 'secret'") {
		t.Errorf("message = %q", raised.Message)
	}
}

func TestConditionalsAndOuterAssignment(t *testing.T) {
	wantResult(t, `
main:
  - {op: set, dst: total, value: 0}
  - {op: array, elems: [1, 2, 3, 4], dst: xs}
  - op: call
    recv: xs
    name: each
    block:
      params: [x]
      body:
        - {op: call, recv: x, name: even?, dst: e}
        - op: if
          cond: e
          then:
            - {op: call, recv: total, name: "+", args: [x], dst: total}
    dst: ignored
  - {op: return, value: total}
`, `6`)
}

func TestLoweringErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"undefined variable", "main:\n  - {op: return, value: nope}\n", ErrUndefinedVariable},
		{"unknown op", "main:\n  - {op: jump}\n", ErrBadInstruction},
		{"unknown call type", "main:\n  - {op: call, call: teleport, name: x}\n", ErrBadInstruction},
		{"other without receiver", "main:\n  - {op: call, call: other, name: x}\n", ErrBadInstruction},
		{"set without value", "main:\n  - {op: set, dst: x}\n", ErrBadInstruction},
		{"case_eq without when", "main:\n  - {op: call, call: case_eq, value: 1}\n", ErrBadInstruction},
		{"both block forms", "main:\n  - {op: call, name: x, block: {body: []}, block_arg: {block: true}}\n", ErrBadInstruction},
		{"as_string with argument", "main:\n  - {op: call, call: as_string, recv: 1, args: [2]}\n", ErrOperandMismatch},
		{"aref without index", "main:\n  - {op: call, call: aref, recv: 1}\n", ErrOperandMismatch},
		{"splat map too short", "main:\n  - {op: call, name: x, args: [1, 2], splat: [true]}\n", ErrSplatMapMismatch},
		{"self call without name", "main:\n  - {op: call}\n", ErrMissingName},
		{"bad regexp", "main:\n  - {op: return, value: {regexp: \"(\"}}\n", ErrBadInstruction},
		{"bad visibility", "classes:\n  - name: A\n    methods:\n      - {name: m, visibility: secret, body: []}\n", ErrBadInstruction},
		{"zsuper with arguments", "classes:\n  - name: A\n    methods:\n      - name: m\n        body:\n          - {op: call, call: zsuper, args: [1]}\n", ErrOperandMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ir.ParseProgram([]byte(tt.src))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			_, err = CompileProgram(p, DefaultOptions())
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReopenBuiltinClass(t *testing.T) {
	wantResult(t, `
classes:
  - name: Integer
    methods:
      - name: double
        body:
          - {op: call, recv: self, name: "*", args: [2], dst: r}
          - {op: return, value: r}
main:
  - {op: call, recv: 21, name: double, dst: r}
  - {op: return, value: r}
`, `42`)
}

func TestInstallErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"superclass mismatch", "classes:\n  - {name: Integer, superclass: String}\n", "superclass mismatch"},
		{"undefined superclass", "classes:\n  - {name: A, superclass: Nope}\n", "undefined superclass"},
		{"module as superclass", "classes:\n  - {name: A, superclass: Kernel}\n", "is a module"},
		{"include a class", "classes:\n  - {name: A, include: [String]}\n", "is a class"},
		{"include undefined", "classes:\n  - {name: A, include: [Nope]}\n", "undefined module"},
		{"class reopened as module", "classes:\n  - {name: String, module: true}\n", "already defined as a class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := compileSource(t, tt.src, DefaultOptions())
			err := u.Install(vm.NewVM())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Install error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestIncludedModuleMethods(t *testing.T) {
	wantResult(t, `
classes:
  - name: Loud
    module: true
    methods:
      - name: shout
        params: [s]
        body:
          - {op: call, recv: s, name: upcase, dst: r}
          - {op: return, value: r}
  - name: Speaker
    include: [Loud]
    methods:
      - name: shout
        params: [s]
        body:
          - {op: call, call: super, args: [s], dst: r}
          - {op: call, recv: r, name: "+", args: [{str: "!"}], dst: out}
          - {op: return, value: out}
main:
  - {op: call, recv: {const: Speaker}, name: new, dst: sp}
  - {op: call, recv: sp, name: shout, args: [{str: hi}], dst: r}
  - {op: return, value: r}
`, `"HI!"`)
}
