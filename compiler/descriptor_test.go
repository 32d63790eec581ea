package compiler

import (
	"errors"
	"testing"
)

func TestCallTypeNames(t *testing.T) {
	for ct := CallOther; ct <= CallCaseEq; ct++ {
		got, ok := ParseCallType(ct.String())
		if !ok || got != ct {
			t.Errorf("ParseCallType(%q) = %v, %v", ct.String(), got, ok)
		}
	}
	if _, ok := ParseCallType("bogus"); ok {
		t.Error("unknown name should not parse")
	}
	for _, ct := range []CallType{CallSuperInstance, CallSuperClass, CallSuperUnresolved, CallSuperZSuper} {
		if !ct.IsSuper() {
			t.Errorf("%s should be a super type", ct)
		}
	}
	if CallOther.IsSuper() || CallCaseEq.IsSuper() {
		t.Error("plain calls are not super types")
	}
}

func TestArity(t *testing.T) {
	if (Arity{Fixed: 2}).Int() != 2 {
		t.Error("fixed arity should be its count")
	}
	if (Arity{Fixed: 2, Variadic: true}).Int() != -1 {
		t.Error("variadic arity should be -1")
	}
	if s := (Arity{Fixed: 3, Variadic: true}).String(); s != "3*" {
		t.Errorf("String = %q", s)
	}
}

func TestValidate(t *testing.T) {
	loc := Location{File: "v.rb", Line: 7}
	tests := []struct {
		name string
		d    CallDescriptor
		want error
	}{
		{"plain", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 2}, CallType: CallOther}, nil},
		{"splatted", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 2, Variadic: true}, SplatMap: []bool{false, true}, CallType: CallSelf}, nil},
		{"all-false splat map", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 1}, SplatMap: []bool{false}, CallType: CallOther}, nil},
		{"negative", CallDescriptor{Name: "foo", Arity: Arity{Fixed: -1}, CallType: CallOther}, ErrOperandMismatch},
		{"short splat map", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 2, Variadic: true}, SplatMap: []bool{true}, CallType: CallOther}, ErrSplatMapMismatch},
		{"variadic without splat", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 1, Variadic: true}, SplatMap: []bool{false}, CallType: CallOther}, ErrSplatMapMismatch},
		{"splat without variadic", CallDescriptor{Name: "foo", Arity: Arity{Fixed: 1}, SplatMap: []bool{true}, CallType: CallOther}, ErrSplatMapMismatch},
		{"missing name", CallDescriptor{CallType: CallSelf}, ErrMissingName},
		{"super may omit name", CallDescriptor{CallType: CallSuperInstance}, nil},
		{"aref two indexes", CallDescriptor{Name: "[]", Arity: Arity{Fixed: 2}, CallType: CallArrayDeref}, ErrOperandMismatch},
		{"aref with block", CallDescriptor{Name: "[]", Arity: Arity{Fixed: 1}, HasBlock: true, CallType: CallArrayDeref}, ErrOperandMismatch},
		{"to_s with argument", CallDescriptor{Name: "to_s", Arity: Arity{Fixed: 1}, CallType: CallAsString}, ErrOperandMismatch},
		{"eqq splatted when", CallDescriptor{Name: "===", Arity: Arity{Fixed: 1, Variadic: true}, SplatMap: []bool{true}, CallType: CallCaseEq}, nil},
		{"eqq two values", CallDescriptor{Name: "===", Arity: Arity{Fixed: 2}, CallType: CallCaseEq}, ErrOperandMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.d
			d.Location = loc
			err := d.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var ce *CompileError
			if !errors.As(err, &ce) || ce.Location != loc {
				t.Errorf("error should carry the call location, got %v", err)
			}
		})
	}
}

func TestNewSuperCall(t *testing.T) {
	d, err := NewSuperCall(CallSuperInstance, "s.rb", 3, "", 2, true, nil)
	if err != nil {
		t.Fatalf("NewSuperCall failed: %v", err)
	}
	if d.Arity.Fixed != 2 || d.Arity.Variadic || !d.HasBlock || d.Location.Line != 3 {
		t.Errorf("descriptor = %+v", d)
	}

	d, err = NewSuperCall(CallSuperUnresolved, "s.rb", 4, "m", -1, false, []bool{false, true})
	if err != nil {
		t.Fatalf("variadic NewSuperCall failed: %v", err)
	}
	if d.Arity.Int() != -1 || d.Arity.Fixed != 2 {
		t.Errorf("variadic arity = %s", d.Arity)
	}

	if _, err := NewSuperCall(CallSuperClass, "s.rb", 5, "m", -1, false, nil); !errors.Is(err, ErrSplatMapMismatch) {
		t.Errorf("variadic without splat map: %v", err)
	}
	if _, err := NewSuperCall(CallOther, "s.rb", 6, "m", 0, false, nil); !errors.Is(err, ErrOperandMismatch) {
		t.Errorf("non-super type: %v", err)
	}
}

func TestScopeHomeMethod(t *testing.T) {
	m := NewMethodScope("A", "run", 1, true, false)
	inner := NewBlockScope(NewBlockScope(m, 1, false), 0, false)
	if inner.HomeMethod() != m {
		t.Error("nested block should find its home method")
	}
	if m.homeArgc() != 2 {
		t.Errorf("homeArgc = %d, want 2", m.homeArgc())
	}

	top := &Scope{Kind: ScopeTop}
	if NewBlockScope(top, 0, false).HomeMethod() != nil {
		t.Error("block at top level has no home method")
	}
	class := &Scope{Kind: ScopeClass, Parent: m}
	if class.HomeMethod() != nil {
		t.Error("class body stops the search")
	}
}
