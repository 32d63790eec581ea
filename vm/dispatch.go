package vm

// ---------------------------------------------------------------------------
// Call-site dispatch
// ---------------------------------------------------------------------------

// resolve returns the method for name on class through the site's cache
// cell. On a miss the class generation is read before resolution and the
// result is recorded with it; failed lookups are never recorded.
func (i *Interpreter) resolve(code *Code, slot int, class *Class, name string) Method {
	ic := code.Caches().GetOrCreate(slot)
	if m := ic.Lookup(class, nil); m != nil {
		return m
	}
	gen := class.Generation()
	m := i.vm.FindMethod(class, name)
	ic.Update(class, nil, gen, m)
	return m
}

// dispatch performs the generic cached call used by the other, self and
// fallback paths. explicit is set for calls with an explicit receiver,
// which are subject to visibility checks.
func (i *Interpreter) dispatch(code *Code, s *CallSite, caller, recv Value, args []Value, blk *Proc, explicit bool) Value {
	class := i.vm.ClassOf(recv)
	m := i.resolve(code, s.CacheSlot, class, s.Name)
	if m == nil {
		return i.methodMissing(code, s, recv, s.Name, args, blk, missingUndefined)
	}
	if explicit {
		switch m.Visibility() {
		case Private:
			return i.methodMissing(code, s, recv, s.Name, args, blk, missingPrivate)
		case Protected:
			if !i.vm.IsKindOf(caller, m.Owner()) {
				return i.methodMissing(code, s, recv, s.Name, args, blk, missingProtected)
			}
		}
	}
	return i.invoke(m, recv, args, blk)
}

// methodMissing routes a failed dispatch to method_missing, which is
// itself resolved through the site's second cache cell.
func (i *Interpreter) methodMissing(code *Code, s *CallSite, recv Value, name string, args []Value, blk *Proc, reason missingReason) Value {
	class := i.vm.ClassOf(recv)
	m := i.resolve(code, s.MissingSlot, class, "method_missing")
	if m == nil {
		i.raiseNoMethod(recv, name, reason)
	}
	i.missing = reason
	full := make([]Value, 0, len(args)+1)
	full = append(full, Symbol(name))
	full = append(full, args...)
	return i.invoke(m, recv, full, blk)
}

// arrayDeref implements target[index]. A Hash indexed by a frozen string
// is looked up directly as long as Hash#[] is still the builtin.
func (i *Interpreter) arrayDeref(code *Code, s *CallSite, caller, target, index Value) Value {
	if s.HashFast && i.vm.HashFastPath {
		if h, ok := target.(*Hash); ok {
			if key, ok := index.(*String); ok && key.Frozen {
				m := i.resolve(code, s.CacheSlot, i.vm.HashClass, s.Name)
				if IntrinsicOf(m) == IntrinsicHashAref {
					return h.Get(key)
				}
			}
		}
	}
	return i.dispatch(code, s, caller, target, []Value{index}, nil, true)
}

// asString converts target with string-interpolation semantics: strings
// pass through, anything else is sent to_s, and a to_s that does not
// answer a String is replaced by the default object description.
func (i *Interpreter) asString(code *Code, s *CallSite, caller, target Value) Value {
	if str, ok := target.(*String); ok {
		return str
	}
	r := i.dispatch(code, s, caller, target, nil, nil, false)
	if str, ok := r.(*String); ok {
		return str
	}
	return NewString(i.defaultToS(target))
}

func (i *Interpreter) defaultToS(v Value) string {
	return "#<" + i.vm.RealClassOf(v).Name + ">"
}

// invokeSuper resolves a super call. The cache is keyed on the pair
// (class of self, starting class) because the target depends on both.
func (i *Interpreter) invokeSuper(f *Frame, code *Code, s *CallSite, self, startValue Value, args []Value, blk *Proc) Value {
	name := s.Name
	if name == "" && f.Home.Method != nil {
		name = f.Home.Method.Name()
	}
	start, ok := startValue.(*Class)
	if !ok {
		i.Raise(i.vm.RuntimeErrorClass, "super called outside of method")
	}
	if s.Super == StartStaticClass {
		start = start.Singleton()
	}
	class := i.vm.ClassOf(self)

	ic := code.Caches().GetOrCreate(s.CacheSlot)
	m := ic.Lookup(class, start)
	if m == nil {
		gen := class.Generation()
		var found bool
		m, found = i.vm.FindSuperMethod(class, start, name)
		if !found {
			i.Raise(i.vm.TypeErrorClass, "self has wrong type to call super in this context: %s (expected %s)",
				i.vm.RealClassOf(self).Name, start.Name)
		}
		ic.Update(class, start, gen, m)
	}
	if m == nil {
		return i.methodMissing(code, s, self, name, args, blk, missingSuper)
	}
	return i.invoke(m, self, args, blk)
}

// caseEqual evaluates when === caseValue. Builtin === implementations
// are short-circuited once the cache proves they are the target.
func (i *Interpreter) caseEqual(code *Code, s *CallSite, caseValue, when Value) Value {
	if s.SplatWhen {
		arr, ok := when.(*Array)
		if !ok {
			return Truthy(i.eqq(code, s, caseValue, when))
		}
		for _, w := range arr.Elems {
			if Truthy(i.eqq(code, s, caseValue, w)) {
				return true
			}
		}
		return false
	}
	return i.eqq(code, s, caseValue, when)
}

func (i *Interpreter) eqq(code *Code, s *CallSite, caseValue, when Value) Value {
	class := i.vm.ClassOf(when)
	m := i.resolve(code, s.CacheSlot, class, s.Name)
	switch IntrinsicOf(m) {
	case IntrinsicEqqIdentity:
		if Identical(caseValue, when) {
			return true
		}
	case IntrinsicEqqKindOf:
		if c, ok := when.(*Class); ok {
			return i.vm.IsKindOf(caseValue, c)
		}
	case IntrinsicEqqRange:
		if r, ok := when.(*Range); ok {
			return r.Cover(caseValue)
		}
	case IntrinsicEqqRegexp:
		if re, ok := when.(*Regexp); ok {
			return i.regexpMatch(re, caseValue)
		}
	}
	if m == nil {
		return i.methodMissing(code, s, when, s.Name, []Value{caseValue}, nil, missingUndefined)
	}
	return i.invoke(m, when, []Value{caseValue}, nil)
}

// guard checks that recv is the primitive class the fast path was
// specialised for and that the site's operator still resolves to the
// builtin.
func (i *Interpreter) guard(code *Code, s *CallSite, recv Value, fixnum bool) bool {
	var class *Class
	if fixnum {
		if _, ok := recv.(int64); !ok {
			return false
		}
		class = i.vm.IntegerClass
	} else {
		if _, ok := recv.(float64); !ok {
			return false
		}
		class = i.vm.FloatClass
	}
	m := i.resolve(code, s.CacheSlot, class, s.Name)
	want := IntrinsicFor(s.Name)
	return want != IntrinsicNone && IntrinsicOf(m) == want
}
