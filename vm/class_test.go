package vm

import (
	"fmt"
	"sync"
	"testing"
)

func classNames(cs []*Class) []string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

func TestDefineClass(t *testing.T) {
	v := NewVM()
	c := v.DefineClass("Point", nil)

	if c.Superclass != v.ObjectClass {
		t.Errorf("superclass = %v, want Object", c.Superclass.Name)
	}
	if v.Classes.Lookup("Point") != c {
		t.Error("class should be registered by name")
	}
	s := c.Singleton()
	if s == nil || !s.IsSingleton() || s.Attached != c {
		t.Fatal("class should have an attached singleton")
	}
	if s.Superclass != v.ObjectClass.Singleton() {
		t.Errorf("singleton superclass = %s, want #<Class:Object>", s.Superclass.Name)
	}
	if v.ClassOf(c) != s {
		t.Error("ClassOf a class should be its singleton")
	}
	if v.RealClassOf(c) != v.ClassClass {
		t.Errorf("RealClassOf a class = %s, want Class", v.RealClassOf(c).Name)
	}
}

func TestAncestors(t *testing.T) {
	v := NewVM()
	got := fmt.Sprint(classNames(v.IntegerClass.Ancestors()))
	want := "[Integer Numeric Comparable Object Kernel BasicObject]"
	if got != want {
		t.Errorf("Integer ancestors = %s, want %s", got, want)
	}
}

func TestAncestorsIncludeOrder(t *testing.T) {
	v := NewVM()
	m1 := v.DefineModule("M1")
	m2 := v.DefineModule("M2")
	inner := v.DefineModule("Inner")
	m2.Include(inner)
	c := v.DefineClass("C", nil)
	c.Include(m1)
	c.Include(m2)
	c.Include(m1) // no-op

	got := classNames(c.Ancestors())[:4]
	want := []string{"C", "M2", "Inner", "M1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ancestors = %v, want %v", got, want)
	}
	if !c.IsSubclassOf(inner) {
		t.Error("C should count Inner among its ancestors")
	}
}

func TestSingletonChain(t *testing.T) {
	v := NewVM()
	a := v.DefineClass("A", nil)
	b := v.DefineClass("B", a)
	a.Singleton().DefineMethod(constMethod("build", int64(1)))

	if m := v.FindMethod(v.ClassOf(b), "build"); m == nil {
		t.Error("class methods should be inherited through the singleton chain")
	}
	if m := v.FindMethod(v.ClassOf(NewObject(b)), "build"); m != nil {
		t.Error("instances must not see class methods")
	}
	if m := v.FindMethod(v.ClassOf(b), "instance_variable_get"); m == nil {
		t.Error("class-side lookup should reach Object's instance methods")
	}
}

func TestFindSuperMethod(t *testing.T) {
	v := NewVM()
	a := v.DefineClass("A", nil)
	mixin := v.DefineModule("Mixin")
	b := v.DefineClass("B", a)
	b.Include(mixin)
	a.DefineMethod(constMethod("greet", "a"))
	mixin.DefineMethod(constMethod("greet", "mixin"))
	b.DefineMethod(constMethod("greet", "b"))

	tests := []struct {
		start *Class
		owner *Class
		found bool
	}{
		{b, mixin, true},
		{mixin, a, true},
		{a, nil, true},
		{v.StringClass, nil, false},
	}
	for _, tt := range tests {
		m, ok := v.FindSuperMethod(b, tt.start, "greet")
		if ok != tt.found {
			t.Errorf("start %s: found = %v, want %v", tt.start.Name, ok, tt.found)
			continue
		}
		if tt.owner == nil {
			if m != nil {
				t.Errorf("start %s: expected no method, got one on %s", tt.start.Name, m.Owner().Name)
			}
			continue
		}
		if m == nil || m.Owner() != tt.owner {
			t.Errorf("start %s: expected method on %s", tt.start.Name, tt.owner.Name)
		}
	}
}

func TestRemoveMethodInvalidates(t *testing.T) {
	v := NewVM()
	a := v.DefineClass("A", nil)
	b := v.DefineClass("B", a)
	a.DefineMethod(constMethod("x", nil))
	before := b.Generation()

	if !a.RemoveMethod("x") {
		t.Fatal("RemoveMethod should report the removal")
	}
	if b.Generation() == before {
		t.Error("removing a method should bump subclass generations")
	}
	if a.RemoveMethod("x") {
		t.Error("second removal should report false")
	}
}

func TestClassTableConcurrency(t *testing.T) {
	v := NewVM()
	base := v.Classes.Len()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("Concurrent%d", n)
			v.DefineClass(name, nil)
			if v.Classes.Lookup(name) == nil {
				t.Errorf("%s missing right after definition", name)
			}
		}(i)
	}
	wg.Wait()

	if v.Classes.Len() != base+10 {
		t.Errorf("Len = %d, want %d", v.Classes.Len(), base+10)
	}
}
