package vm

// VM is the host runtime that emitted call sites execute against. It owns
// the class graph and method tables, and exposes the resolution hook and
// generation oracle the dispatch protocol consults.
//
// A VM is shared by any number of Interpreters, one per goroutine.
type VM struct {
	Classes *ClassTable

	// CacheCapacity bounds the entries of every inline cache cell created
	// for code loaded into this VM.
	CacheCapacity int

	// HashFastPath enables the frozen-string Hash#[] shortcut at array
	// dereference sites.
	HashFastPath bool

	// Well-known classes (for fast-path checks and bootstrapping)
	BasicObjectClass *Class
	ObjectClass      *Class
	ModuleClass      *Class
	ClassClass       *Class
	KernelModule     *Class
	ComparableModule *Class
	NumericClass     *Class
	IntegerClass     *Class
	FloatClass       *Class
	StringClass      *Class
	SymbolClass      *Class
	ArrayClass       *Class
	HashClass        *Class
	RangeClass       *Class
	RegexpClass      *Class
	ProcClass        *Class
	NilClass         *Class
	TrueClass        *Class
	FalseClass       *Class
	ContextClass     *Class

	ExceptionClass         *Class
	StandardErrorClass     *Class
	RuntimeErrorClass      *Class
	FrozenErrorClass       *Class
	RegexpErrorClass       *Class
	NameErrorClass         *Class
	NoMethodErrorClass     *Class
	ArgumentErrorClass     *Class
	TypeErrorClass         *Class
	IndexErrorClass        *Class
	KeyErrorClass          *Class
	ZeroDivisionErrorClass *Class
	RangeErrorClass        *Class
	LocalJumpErrorClass    *Class
	SystemStackErrorClass  *Class
}

// NewVM creates a runtime with the core class graph and builtin methods
// installed.
func NewVM() *VM {
	v := &VM{
		Classes:       NewClassTable(),
		CacheCapacity: MaxPICEntries,
		HashFastPath:  true,
	}
	v.bootstrap()
	return v
}

func (v *VM) bootstrap() {
	// The four root classes are wired by hand: the singleton of
	// BasicObject inherits from Class, which does not exist yet.
	v.BasicObjectClass = newClass("BasicObject", nil, false)
	v.ObjectClass = newClass("Object", v.BasicObjectClass, false)
	v.ModuleClass = newClass("Module", v.ObjectClass, false)
	v.ClassClass = newClass("Class", v.ModuleClass, false)

	v.attachSingleton(v.BasicObjectClass, v.ClassClass)
	v.attachSingleton(v.ObjectClass, v.BasicObjectClass.singleton)
	v.attachSingleton(v.ModuleClass, v.ObjectClass.singleton)
	v.attachSingleton(v.ClassClass, v.ModuleClass.singleton)
	for _, c := range []*Class{v.BasicObjectClass, v.ObjectClass, v.ModuleClass, v.ClassClass} {
		v.Classes.Register(c)
	}

	v.KernelModule = v.DefineModule("Kernel")
	v.ObjectClass.Include(v.KernelModule)
	v.ComparableModule = v.DefineModule("Comparable")

	v.NumericClass = v.DefineClass("Numeric", v.ObjectClass)
	v.NumericClass.Include(v.ComparableModule)
	v.IntegerClass = v.DefineClass("Integer", v.NumericClass)
	v.FloatClass = v.DefineClass("Float", v.NumericClass)
	v.StringClass = v.DefineClass("String", v.ObjectClass)
	v.StringClass.Include(v.ComparableModule)
	v.SymbolClass = v.DefineClass("Symbol", v.ObjectClass)
	v.ArrayClass = v.DefineClass("Array", v.ObjectClass)
	v.HashClass = v.DefineClass("Hash", v.ObjectClass)
	v.RangeClass = v.DefineClass("Range", v.ObjectClass)
	v.RegexpClass = v.DefineClass("Regexp", v.ObjectClass)
	v.ProcClass = v.DefineClass("Proc", v.ObjectClass)
	v.NilClass = v.DefineClass("NilClass", v.ObjectClass)
	v.TrueClass = v.DefineClass("TrueClass", v.ObjectClass)
	v.FalseClass = v.DefineClass("FalseClass", v.ObjectClass)
	v.ContextClass = v.DefineClass("ThreadContext", v.ObjectClass)

	v.ExceptionClass = v.DefineClass("Exception", v.ObjectClass)
	v.StandardErrorClass = v.DefineClass("StandardError", v.ExceptionClass)
	v.RuntimeErrorClass = v.DefineClass("RuntimeError", v.StandardErrorClass)
	v.FrozenErrorClass = v.DefineClass("FrozenError", v.RuntimeErrorClass)
	v.RegexpErrorClass = v.DefineClass("RegexpError", v.StandardErrorClass)
	v.NameErrorClass = v.DefineClass("NameError", v.StandardErrorClass)
	v.NoMethodErrorClass = v.DefineClass("NoMethodError", v.NameErrorClass)
	v.ArgumentErrorClass = v.DefineClass("ArgumentError", v.StandardErrorClass)
	v.TypeErrorClass = v.DefineClass("TypeError", v.StandardErrorClass)
	v.IndexErrorClass = v.DefineClass("IndexError", v.StandardErrorClass)
	v.KeyErrorClass = v.DefineClass("KeyError", v.IndexErrorClass)
	v.ZeroDivisionErrorClass = v.DefineClass("ZeroDivisionError", v.StandardErrorClass)
	v.RangeErrorClass = v.DefineClass("RangeError", v.StandardErrorClass)
	v.LocalJumpErrorClass = v.DefineClass("LocalJumpError", v.StandardErrorClass)
	v.SystemStackErrorClass = v.DefineClass("SystemStackError", v.ExceptionClass)

	v.registerObjectPrimitives()
	v.registerModulePrimitives()
	v.registerIntegerPrimitives()
	v.registerFloatPrimitives()
	v.registerStringPrimitives()
	v.registerArrayPrimitives()
	v.registerHashPrimitives()
	v.registerRangePrimitives()
	v.registerRegexpPrimitives()
	v.registerBlockPrimitives()
	v.registerSpecialPrimitives()
}

func (v *VM) attachSingleton(c, super *Class) {
	name := "#<Class:" + c.Name + ">"
	s := newClass(name, super, false)
	s.Attached = c
	c.singleton = s
}

// DefineClass creates and registers a class. A nil superclass means
// Object.
func (v *VM) DefineClass(name string, super *Class) *Class {
	if super == nil {
		super = v.ObjectClass
	}
	c := newClass(name, super, false)
	v.attachSingleton(c, super.singleton)
	v.Classes.Register(c)
	return c
}

// DefineModule creates and registers a module.
func (v *VM) DefineModule(name string) *Class {
	m := newClass(name, nil, true)
	v.attachSingleton(m, v.ModuleClass)
	v.Classes.Register(m)
	return m
}

// ClassOf returns the class used as the dispatch key for val. For
// classes and modules that is their singleton class.
func (v *VM) ClassOf(val Value) *Class {
	switch x := val.(type) {
	case nil:
		return v.NilClass
	case bool:
		if x {
			return v.TrueClass
		}
		return v.FalseClass
	case int64:
		return v.IntegerClass
	case float64:
		return v.FloatClass
	case Symbol:
		return v.SymbolClass
	case *String:
		return v.StringClass
	case *Array:
		return v.ArrayClass
	case *Hash:
		return v.HashClass
	case *Range:
		return v.RangeClass
	case *Regexp:
		return v.RegexpClass
	case *Proc:
		return v.ProcClass
	case *Context:
		return v.ContextClass
	case *Class:
		if x.singleton == nil {
			return v.ClassClass
		}
		return x.singleton
	case *Object:
		return x.class
	}
	return v.ObjectClass
}

// RealClassOf is ClassOf with singleton classes skipped, i.e. the value
// Kernel#class reports.
func (v *VM) RealClassOf(val Value) *Class {
	c := v.ClassOf(val)
	for c != nil && c.IsSingleton() {
		c = c.Superclass
	}
	return c
}

// FindMethod is the runtime resolution hook: it walks the ancestry of
// class and returns the first method named name, or nil.
func (v *VM) FindMethod(class *Class, name string) Method {
	for _, a := range class.Ancestors() {
		if m := a.LookupLocal(name); m != nil {
			return m
		}
	}
	return nil
}

// FindSuperMethod resolves name in the ancestry of class strictly above
// start. The second result is false when start is not an ancestor of
// class at all.
func (v *VM) FindSuperMethod(class, start *Class, name string) (Method, bool) {
	ancestors := class.Ancestors()
	for i, a := range ancestors {
		if a != start {
			continue
		}
		for _, above := range ancestors[i+1:] {
			if m := above.LookupLocal(name); m != nil {
				return m, true
			}
		}
		return nil, true
	}
	return nil, false
}

// IsKindOf reports whether val is an instance of class or of one of its
// descendants.
func (v *VM) IsKindOf(val Value, class *Class) bool {
	return v.ClassOf(val).IsSubclassOf(class)
}

// NewInterpreter creates an execution thread bound to this VM.
func (v *VM) NewInterpreter() *Interpreter {
	return newInterpreter(v)
}

// Load prepares a compiled body for execution in this VM, allocating the
// cache arenas of the body and its nested blocks. Concurrent loads of the
// same body agree on one arena.
func (v *VM) Load(code *Code) {
	for {
		old := code.caches.Load()
		if old != nil && old.Capacity() == v.CacheCapacity {
			break
		}
		if code.caches.CompareAndSwap(old, NewCacheArena(2*len(code.CallSites), v.CacheCapacity)) {
			break
		}
	}
	for _, b := range code.Blocks {
		v.Load(b)
	}
}
