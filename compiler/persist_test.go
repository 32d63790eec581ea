package compiler

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/callsite/vm"
)

func TestUnitRoundTrip(t *testing.T) {
	u := compileSource(t, greeters+`
main:
  - {op: set, dst: r, value: {range: {from: 1, to: 3}}}
  - {op: call, call: case_eq, when: {regexp: "b+"}, value: {str: abc}, dst: m}
  - {op: call, recv: {const: B}, name: new, dst: b}
  - {op: call, recv: b, name: each_greet, args: [{str: z}], dst: out}
  - {op: array, elems: [out, m, r], dst: all}
  - {op: return, value: all}
`, DefaultOptions())

	// Warm the caches first; they must not leak into the encoding.
	if _, err := u.Run(vm.NewVM().NewInterpreter()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	data, err := MarshalUnit(u)
	if err != nil {
		t.Fatalf("MarshalUnit failed: %v", err)
	}
	back, err := UnmarshalUnit(data)
	if err != nil {
		t.Fatalf("UnmarshalUnit failed: %v", err)
	}
	if back.ID != u.ID || back.File != u.File {
		t.Errorf("header = %s %q, want %s %q", back.ID, back.File, u.ID, u.File)
	}
	if len(back.Codes()) != len(u.Codes()) {
		t.Fatalf("decoded %d bodies, want %d", len(back.Codes()), len(u.Codes()))
	}
	for k, c := range back.Codes() {
		if c.Caches() != nil {
			t.Errorf("body %s decoded with cache state", c.Name)
		}
		if c.Disassemble() != u.Codes()[k].Disassemble() {
			t.Errorf("body %s changed in transit:\n%s", c.Name, c.Disassemble())
		}
	}

	r, err := back.Run(vm.NewVM().NewInterpreter())
	if err != nil {
		t.Fatalf("decoded run failed: %v", err)
	}
	if got := vm.Inspect(r); got != `[["Az"], true, 1..3]` {
		t.Errorf("result = %s", got)
	}
}

func TestUnmarshalUnitRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not cbor"), {0xa1, 0x01, 0x41, 0x00}} {
		if _, err := UnmarshalUnit(data); err == nil {
			t.Errorf("UnmarshalUnit(%x) should fail", data)
		}
	}
}

func TestMarshalUnitRejectsRuntimeLiterals(t *testing.T) {
	f := NewFunction("<main>", "p.rb", 0, false)
	if err := f.PushValue(vm.NewArray()); err != nil {
		t.Fatal(err)
	}
	f.Return()
	code, err := f.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MarshalUnit(&Unit{Main: code}); err == nil {
		t.Error("an Array literal cannot be persisted")
	}
}

// persisted returns the unit's main body after a save and reload.
func persisted(t *testing.T, main *vm.Code) *vm.Code {
	t.Helper()
	data, err := MarshalUnit(&Unit{Main: main})
	if err != nil {
		t.Fatalf("MarshalUnit failed: %v", err)
	}
	u, err := UnmarshalUnit(data)
	if err != nil {
		t.Fatalf("UnmarshalUnit failed: %v", err)
	}
	return u.Main
}

func TestPersistedFloatKeepsSign(t *testing.T) {
	negZero := math.Copysign(0, -1)
	v := vm.NewVM()
	tests := []struct {
		name string
		self vm.Value
		emit func(e *Emitter) error
	}{
		{"generic send", 1.0, func(e *Emitter) error {
			return e.InvokeOther(testLoc, nil, NewCall(CallOther, "/", 1, testLoc), 1,
				OtherOperands{Context(), Self(), Self(), []Operand{Literal(negZero)}, None})
		}},
		{"fast path fallback", int64(1), func(e *Emitter) error {
			return e.InvokeOtherOneFloat(testLoc, nil, NewCall(CallOther, "/", 1, testLoc),
				FloatOperands{Context(), Self(), Self(), negZero})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmitter(DefaultOptions())
			if err := tt.emit(e); err != nil {
				t.Fatal(err)
			}
			e.Function().Return()
			code, err := e.Function().Finish()
			if err != nil {
				t.Fatal(err)
			}
			back := persisted(t, code)
			if f, ok := back.Literals[0].(float64); !ok || !math.Signbit(f) {
				t.Fatalf("literal = %v, want -0.0", back.Literals[0])
			}
			r, err := v.NewInterpreter().Execute(back, tt.self)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if f, ok := r.(float64); !ok || !math.IsInf(f, -1) {
				t.Errorf("1 / -0.0 = %s, want -Infinity", vm.Inspect(r))
			}
		})
	}
}

func TestUnmarshalUnitRejectsBadOperands(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(c *vm.Code)
	}{
		{"site index", func(c *vm.Code) { c.Bytecode[4] = 7 }},
		{"literal index", func(c *vm.Code) { c.Literals = nil }},
		{"truncated operand", func(c *vm.Code) { c.Bytecode = c.Bytecode[:len(c.Bytecode)-2] }},
		{"splat map", func(c *vm.Code) { c.CallSites[0].SplatMap = []bool{true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// PUSH_CONTEXT PUSH_SELF PUSH_SELF INVOKE_OTHER site PUSH_LITERAL RETURN_TOP
			e := newTestEmitter(DefaultOptions())
			if err := e.InvokeOther(testLoc, nil, NewCall(CallOther, "x", 0, testLoc), 0,
				OtherOperands{Context(), Self(), Self(), nil, None}); err != nil {
				t.Fatal(err)
			}
			f := e.Function()
			f.Pop()
			if err := f.PushValue(int64(5)); err != nil {
				t.Fatal(err)
			}
			f.Return()
			code, err := f.Finish()
			if err != nil {
				t.Fatal(err)
			}
			tt.corrupt(code)
			data, err := MarshalUnit(&Unit{Main: code})
			if err != nil {
				t.Fatalf("MarshalUnit failed: %v", err)
			}
			if _, err := UnmarshalUnit(data); !errors.Is(err, ErrBadInstruction) {
				t.Errorf("UnmarshalUnit error = %v, want %v", err, ErrBadInstruction)
			}
		})
	}
}
