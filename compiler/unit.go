package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/callsite/vm"
)

// Unit is the output of compiling one program: the top-level body and
// the method bodies to install, grouped by class.
type Unit struct {
	ID      uuid.UUID
	File    string
	Main    *vm.Code
	Classes []ClassUnit
}

// ClassUnit opens or creates one class or module.
type ClassUnit struct {
	Name       string
	Superclass string
	Module     bool
	Include    []string
	Methods    []MethodUnit
}

// MethodUnit is one compiled method.
type MethodUnit struct {
	Name        string
	ClassMethod bool
	Visibility  vm.Visibility
	Code        *vm.Code
}

// Codes returns every top-level body of the unit, main first.
func (u *Unit) Codes() []*vm.Code {
	codes := []*vm.Code{u.Main}
	for _, c := range u.Classes {
		for _, m := range c.Methods {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

// Install defines the unit's classes and methods in v and prepares every
// body for execution. Classes that already exist are reopened.
func (u *Unit) Install(v *vm.VM) error {
	for _, cu := range u.Classes {
		c, err := u.openClass(v, cu)
		if err != nil {
			return err
		}
		for _, name := range cu.Include {
			m := v.Classes.Lookup(name)
			if m == nil {
				return fmt.Errorf("%s: include of undefined module %s", cu.Name, name)
			}
			if !m.IsModule {
				return fmt.Errorf("%s: %s is a class, not a module", cu.Name, name)
			}
			c.Include(m)
		}
		for _, mu := range cu.Methods {
			target := c
			if mu.ClassMethod {
				target = c.Singleton()
			}
			v.Load(mu.Code)
			target.DefineMethod(vm.NewCompiledMethod(mu.Name, mu.Code).WithVisibility(mu.Visibility))
			log.Debugf("installed %s#%s (%s)", target.Name, mu.Name, mu.Visibility)
		}
	}
	if u.Main != nil {
		v.Load(u.Main)
	}
	return nil
}

func (u *Unit) openClass(v *vm.VM, cu ClassUnit) (*vm.Class, error) {
	if c := v.Classes.Lookup(cu.Name); c != nil {
		if c.IsModule != cu.Module {
			return nil, fmt.Errorf("%s is already defined as a %s", cu.Name, kindName(c.IsModule))
		}
		if cu.Superclass != "" && (c.Superclass == nil || c.Superclass.Name != cu.Superclass) {
			return nil, fmt.Errorf("superclass mismatch for class %s", cu.Name)
		}
		return c, nil
	}
	if cu.Module {
		return v.DefineModule(cu.Name), nil
	}
	var super *vm.Class
	if cu.Superclass != "" {
		super = v.Classes.Lookup(cu.Superclass)
		if super == nil {
			return nil, fmt.Errorf("%s: undefined superclass %s", cu.Name, cu.Superclass)
		}
		if super.IsModule {
			return nil, fmt.Errorf("%s: superclass %s is a module", cu.Name, cu.Superclass)
		}
	}
	return v.DefineClass(cu.Name, super), nil
}

func kindName(module bool) string {
	if module {
		return "module"
	}
	return "class"
}

// Run installs the unit and executes its top-level body with a fresh
// main object as self.
func (u *Unit) Run(in *vm.Interpreter) (vm.Value, error) {
	v := in.VM()
	if err := u.Install(v); err != nil {
		return nil, err
	}
	if u.Main == nil {
		return nil, nil
	}
	return in.Execute(u.Main, vm.NewObject(v.ObjectClass))
}
