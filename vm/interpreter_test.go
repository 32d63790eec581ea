package vm

import (
	"math"
	"reflect"
	"testing"
)

func TestApplySplatMap(t *testing.T) {
	tests := []struct {
		name     string
		args     []Value
		splatMap []bool
		want     []Value
	}{
		{
			name:     "no splat",
			args:     []Value{int64(1), int64(2)},
			splatMap: nil,
			want:     []Value{int64(1), int64(2)},
		},
		{
			name:     "middle splat",
			args:     []Value{int64(1), NewArray(int64(2), int64(3)), int64(4)},
			splatMap: []bool{false, true, false},
			want:     []Value{int64(1), int64(2), int64(3), int64(4)},
		},
		{
			name:     "splat nil",
			args:     []Value{nil, int64(1)},
			splatMap: []bool{true, false},
			want:     []Value{int64(1)},
		},
		{
			name:     "splat scalar",
			args:     []Value{int64(7)},
			splatMap: []bool{true},
			want:     []Value{int64(7)},
		},
		{
			name:     "all flags false",
			args:     []Value{int64(1)},
			splatMap: []bool{false},
			want:     []Value{int64(1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplySplatMap(tt.args, tt.splatMap)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplySplatMap = %s, want %s", Inspect(NewArray(got...)), Inspect(NewArray(tt.want...)))
			}
		})
	}
}

func TestExecuteLiteralsAndJumps(t *testing.T) {
	v := NewVM()
	b := NewBytecodeBuilder()
	elseL, end := b.NewLabel(), b.NewLabel()
	b.Emit(OpPushFalse)
	b.EmitJump(OpJumpFalse, elseL)
	b.EmitUint16(OpPushLiteral, 0)
	b.EmitJump(OpJump, end)
	b.Mark(elseL)
	b.EmitUint16(OpPushLiteral, 1)
	b.Mark(end)
	b.Emit(OpReturnTop)
	code := &Code{Name: "branch", Bytecode: b.Bytes(), Literals: []Value{"then", "else"}}

	r, err := v.NewInterpreter().Execute(code, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if r != "else" {
		t.Errorf("result = %v, want else", r)
	}
}

func TestBlockClosesOverRegisters(t *testing.T) {
	v := NewVM()

	// block: |x| acc = acc + x  (acc lives in the outer frame)
	blk := NewBytecodeBuilder()
	blk.Emit(OpPushContext)
	blk.Emit(OpPushSelf)
	blk.EmitBytes(OpPushOuter, 1, 0)
	blk.EmitByte(OpPushReg, 0)
	blk.EmitInvoke(OpInvokeOther, 0)
	blk.EmitBytes(OpStoreOuter, 1, 0)
	blk.Emit(OpReturnTop)
	blockCode := &Code{
		Name: "<block>", Params: 1, NumRegs: 1, IsBlock: true,
		Bytecode:  blk.Bytes(),
		CallSites: []*CallSite{{Kind: CallOther, Name: "+", Argc: 1, CacheSlot: 0, MissingSlot: 1}},
	}

	// acc = 0; [1, 2, 3].each { ... }; acc
	b := NewBytecodeBuilder()
	b.EmitUint16(OpPushLiteral, 0)
	b.EmitByte(OpStoreReg, 0)
	b.Emit(OpPOP)
	b.Emit(OpPushContext)
	b.Emit(OpPushSelf)
	b.EmitUint16(OpPushLiteral, 1)
	b.EmitUint16(OpPushLiteral, 2)
	b.EmitUint16(OpPushLiteral, 3)
	b.EmitByte(OpMakeArray, 3)
	b.EmitUint16(OpMakeBlock, 0)
	b.EmitInvoke(OpInvokeOther, 0)
	b.Emit(OpPOP)
	b.EmitByte(OpPushReg, 0)
	b.Emit(OpReturnTop)
	code := &Code{
		Name: "<main>", NumRegs: 1,
		Bytecode:  b.Bytes(),
		Literals:  []Value{int64(0), int64(1), int64(2), int64(3)},
		CallSites: []*CallSite{{Kind: CallOther, Name: "each", HasBlock: true, CacheSlot: 0, MissingSlot: 1}},
		Blocks:    []*Code{blockCode},
	}

	r, err := v.NewInterpreter().Execute(code, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if r != int64(6) {
		t.Errorf("acc = %v, want 6", r)
	}
	if blockCode.Caches() == nil {
		t.Error("nested block caches should be allocated on load")
	}
}

func TestYieldWithoutBlock(t *testing.T) {
	v := NewVM()
	b := NewBytecodeBuilder()
	b.EmitByte(OpYield, 0)
	b.Emit(OpReturnTop)
	code := &Code{Name: "gen", Bytecode: b.Bytes()}
	v.ObjectClass.DefineMethod(NewCompiledMethod("gen", code))

	_, err := v.NewInterpreter().Call(NewObject(v.ObjectClass), "gen")
	wantRaised(t, err, v.LocalJumpErrorClass)
}

func TestPushConstUndefined(t *testing.T) {
	v := NewVM()
	b := NewBytecodeBuilder()
	b.EmitUint16(OpPushConst, 0)
	b.Emit(OpReturnTop)
	code := &Code{Name: "c", Bytecode: b.Bytes(), Literals: []Value{Symbol("Missing")}}

	_, err := v.NewInterpreter().Execute(code, nil)
	raised := wantRaised(t, err, v.NameErrorClass)
	if raised.Message != "uninitialized constant Missing" {
		t.Errorf("message = %q", raised.Message)
	}
}

func TestStackDepthLimit(t *testing.T) {
	v := NewVM()
	code := sendSelf("loop")
	v.ObjectClass.DefineMethod(NewCompiledMethod("loop", code))
	in := v.NewInterpreter()
	in.MaxDepth = 50

	_, err := in.Call(NewObject(v.ObjectClass), "loop")
	wantRaised(t, err, v.SystemStackErrorClass)

	// The interpreter is usable after unwinding.
	r, err := in.Call(int64(2), "+", int64(3))
	if err != nil || r != int64(5) {
		t.Errorf("2 + 3 after unwind = %v, %v", r, err)
	}
}

func TestFixnumFastPathSequence(t *testing.T) {
	v := NewVM()
	build := func(lit int64) *Code {
		b := NewBytecodeBuilder()
		fallback, done := b.NewLabel(), b.NewLabel()
		b.Emit(OpPushContext)
		b.Emit(OpPushSelf)
		b.Emit(OpPushSelf)
		b.EmitGuard(OpGuardFixnum, 0, fallback)
		b.EmitFixnumOp(IntrinsicAdd, lit, fallback)
		b.EmitJump(OpJump, done)
		b.Mark(fallback)
		b.EmitUint16(OpPushLiteral, 0)
		b.EmitInvoke(OpInvokeOther, 0)
		b.Mark(done)
		b.Emit(OpReturnTop)
		return &Code{
			Name: "add", Bytecode: b.Bytes(), Literals: []Value{lit},
			CallSites: []*CallSite{{Kind: CallFixnum, Name: "+", Argc: 1, CacheSlot: 0, MissingSlot: 1}},
		}
	}
	in := v.NewInterpreter()

	tests := []struct {
		self Value
		lit  int64
		want Value
	}{
		{int64(40), 2, int64(42)},
		{2.5, 1, 3.5},
		{NewString("a"), 1, nil},
	}
	for _, tt := range tests {
		r, err := in.Execute(build(tt.lit), tt.self)
		if tt.want == nil {
			wantRaised(t, err, v.TypeErrorClass)
			continue
		}
		if err != nil || r != tt.want {
			t.Errorf("%s + %d = %v, %v; want %v", Inspect(tt.self), tt.lit, r, err, tt.want)
		}
	}

	// Overflow leaves the inline path and the generic method raises.
	_, err := in.Execute(build(1), int64(math.MaxInt64))
	wantRaised(t, err, v.RangeErrorClass)
}

func TestFixnumGuardHonoursRedefinition(t *testing.T) {
	v := NewVM()
	b := NewBytecodeBuilder()
	fallback, done := b.NewLabel(), b.NewLabel()
	b.Emit(OpPushContext)
	b.Emit(OpPushSelf)
	b.Emit(OpPushSelf)
	b.EmitGuard(OpGuardFixnum, 0, fallback)
	b.EmitFixnumOp(IntrinsicMul, 2, fallback)
	b.EmitJump(OpJump, done)
	b.Mark(fallback)
	b.EmitUint16(OpPushLiteral, 0)
	b.EmitInvoke(OpInvokeOther, 0)
	b.Mark(done)
	b.Emit(OpReturnTop)
	code := &Code{
		Name: "mul", Bytecode: b.Bytes(), Literals: []Value{int64(2)},
		CallSites: []*CallSite{{Kind: CallFixnum, Name: "*", Argc: 1, CacheSlot: 0, MissingSlot: 1}},
	}
	in := v.NewInterpreter()

	if r, _ := in.Execute(code, int64(21)); r != int64(42) {
		t.Fatalf("21 * 2 = %v", r)
	}
	v.IntegerClass.DefineMethod(NewMethod1("*", func(_ *Interpreter, _ Value, _ Value) Value {
		return "patched"
	}))
	if r, _ := in.Execute(code, int64(21)); r != "patched" {
		t.Errorf("after redefinition 21 * 2 = %v, want patched", r)
	}
}

func TestCallBlockArity(t *testing.T) {
	p := &Proc{Code: &Code{Params: 2}}
	if p.Arity() != 2 {
		t.Errorf("arity = %d, want 2", p.Arity())
	}
	p = &Proc{Code: &Code{Params: 1, Rest: true}}
	if p.Arity() != -2 {
		t.Errorf("arity = %d, want -2", p.Arity())
	}
}
