package vm

// MethodTable holds the methods defined directly on one class.
//
// Inheritance is not handled here: resolution walks Class.Ancestors and
// consults each table with Lookup. Tables are guarded by the owning
// class's lock.
type MethodTable struct {
	methods map[string]Method
	order   []string
}

// NewMethodTable creates an empty method table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[string]Method, 16)}
}

// Lookup finds a method by name in this table only.
func (mt *MethodTable) Lookup(name string) Method {
	return mt.methods[name]
}

// Add adds or replaces a method.
func (mt *MethodTable) Add(name string, m Method) {
	if _, ok := mt.methods[name]; !ok {
		mt.order = append(mt.order, name)
	}
	mt.methods[name] = m
}

// Remove deletes a method, reporting whether it existed.
func (mt *MethodTable) Remove(name string) bool {
	if _, ok := mt.methods[name]; !ok {
		return false
	}
	delete(mt.methods, name)
	for i, n := range mt.order {
		if n == name {
			mt.order = append(mt.order[:i], mt.order[i+1:]...)
			break
		}
	}
	return true
}

// Names returns method names in definition order.
func (mt *MethodTable) Names() []string {
	return append([]string(nil), mt.order...)
}

// Len returns the number of methods.
func (mt *MethodTable) Len() int {
	return len(mt.methods)
}
