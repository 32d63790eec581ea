package vm

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Class: classes, modules and singleton classes
// ---------------------------------------------------------------------------

// Class represents a class or a module. Every class and module has a
// singleton class holding its class-level methods; the singleton of a
// class inherits from the singleton of its superclass, so class-side
// lookups walk a chain parallel to the instance chain.
type Class struct {
	Name       string
	Superclass *Class
	IsModule   bool

	// Attached is the class this singleton class belongs to, nil for
	// ordinary classes.
	Attached *Class

	singleton *Class

	mu         sync.RWMutex
	methods    *MethodTable
	includes   []*Class // modules in inclusion order
	subclasses []*Class // direct subclasses and, for modules, includers

	// generation is bumped with release semantics every time this class's
	// effective method set may have changed. Inline caches compare the
	// stamp they recorded against it with an acquire load.
	generation atomic.Uint64
}

func newClass(name string, super *Class, module bool) *Class {
	c := &Class{
		Name:       name,
		Superclass: super,
		IsModule:   module,
		methods:    NewMethodTable(),
	}
	if super != nil {
		super.addSubclass(c)
	}
	return c
}

// Generation returns the current generation of the class. This is the
// generation oracle the inline caches validate entries against.
func (c *Class) Generation() uint64 {
	return c.generation.Load()
}

// IsSingleton reports whether c is a singleton (class-level) class.
func (c *Class) IsSingleton() bool {
	return c.Attached != nil
}

// Singleton returns the singleton class of c.
func (c *Class) Singleton() *Class {
	return c.singleton
}

// DefineMethod installs m under its name and invalidates every cache
// entry that might have resolved through this class.
func (c *Class) DefineMethod(m Method) {
	c.mu.Lock()
	c.methods.Add(m.Name(), m)
	c.mu.Unlock()
	bindOwner(m, c)
	c.Invalidate()
}

// RemoveMethod deletes a method defined directly on c.
func (c *Class) RemoveMethod(name string) bool {
	c.mu.Lock()
	ok := c.methods.Remove(name)
	c.mu.Unlock()
	if ok {
		c.Invalidate()
	}
	return ok
}

// LookupLocal finds a method defined directly on c.
func (c *Class) LookupLocal(name string) Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.methods.Lookup(name)
}

// Include mixes module m into c. The module is placed directly above c in
// the ancestry, ahead of previously included modules.
func (c *Class) Include(m *Class) {
	c.mu.Lock()
	for _, existing := range c.includes {
		if existing == m {
			c.mu.Unlock()
			return
		}
	}
	c.includes = append(c.includes, m)
	c.mu.Unlock()
	m.addSubclass(c)
	c.Invalidate()
}

// Invalidate bumps the generation of c and of every class that inherits
// from or includes it.
func (c *Class) Invalidate() {
	seen := make(map[*Class]bool)
	var walk func(k *Class)
	walk = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		k.generation.Add(1)
		k.mu.RLock()
		subs := append([]*Class(nil), k.subclasses...)
		k.mu.RUnlock()
		for _, s := range subs {
			walk(s)
		}
	}
	walk(c)
}

func (c *Class) addSubclass(sub *Class) {
	c.mu.Lock()
	c.subclasses = append(c.subclasses, sub)
	c.mu.Unlock()
}

// Ancestors returns the method resolution order starting at c: the class
// itself, its included modules (most recent first, each followed by its
// own includes), then the ancestors of the superclass.
func (c *Class) Ancestors() []*Class {
	var out []*Class
	seen := make(map[*Class]bool)
	var add func(k *Class)
	add = func(k *Class) {
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		k.mu.RLock()
		incs := append([]*Class(nil), k.includes...)
		k.mu.RUnlock()
		for i := len(incs) - 1; i >= 0; i-- {
			add(incs[i])
		}
	}
	for k := c; k != nil; k = k.Superclass {
		add(k)
	}
	return out
}

// IsSubclassOf returns true if c is other or has other among its
// ancestors, included modules counted.
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, a := range c.Ancestors() {
		if a == other {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ClassTable: global name -> class registry
// ---------------------------------------------------------------------------

// ClassTable maps names to classes and modules.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates an empty table.
func NewClassTable() *ClassTable {
	return &ClassTable{classes: make(map[string]*Class)}
}

// Register adds or replaces a class by name.
func (ct *ClassTable) Register(c *Class) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.classes[c.Name] = c
}

// Lookup finds a class by name, returning nil when absent.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
