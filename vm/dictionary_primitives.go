package vm

import (
	"hash/maphash"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Hash storage: insertion-ordered map keyed by value equality
// ---------------------------------------------------------------------------

// Hash is an insertion-ordered dictionary. Strings are keyed by content,
// numbers and symbols by value and everything else by identity. A mutable
// String key is copied and frozen on insertion.
type Hash struct {
	keys    []Value
	vals    []Value
	index   map[any]int
	Default Value
}

// stringKey distinguishes string content from a Symbol with the same
// spelling in the index.
type stringKey string

// NewHash creates an empty hash.
func NewHash() *Hash {
	return &Hash{index: make(map[any]int)}
}

func hashKeyOf(k Value) any {
	switch x := k.(type) {
	case *String:
		return stringKey(x.S)
	case float64:
		if x == 0 {
			return float64(0) // -0.0 and 0.0 are the same key
		}
	}
	return k
}

// Lookup returns the value stored under k.
func (h *Hash) Lookup(k Value) (Value, bool) {
	idx, ok := h.index[hashKeyOf(k)]
	if !ok {
		return nil, false
	}
	return h.vals[idx], true
}

// Get returns the value stored under k, or the default value.
func (h *Hash) Get(k Value) Value {
	if v, ok := h.Lookup(k); ok {
		return v
	}
	return h.Default
}

// Set stores v under k.
func (h *Hash) Set(k, v Value) {
	hk := hashKeyOf(k)
	if idx, ok := h.index[hk]; ok {
		h.vals[idx] = v
		return
	}
	if s, ok := k.(*String); ok && !s.Frozen {
		k = NewFrozenString(s.S)
	}
	h.index[hk] = len(h.keys)
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

// Delete removes k and returns its value.
func (h *Hash) Delete(k Value) (Value, bool) {
	hk := hashKeyOf(k)
	idx, ok := h.index[hk]
	if !ok {
		return nil, false
	}
	v := h.vals[idx]
	delete(h.index, hk)
	h.keys = append(h.keys[:idx], h.keys[idx+1:]...)
	h.vals = append(h.vals[:idx], h.vals[idx+1:]...)
	for j := idx; j < len(h.keys); j++ {
		h.index[hashKeyOf(h.keys[j])] = j
	}
	return v, true
}

// Len returns the number of entries.
func (h *Hash) Len() int {
	return len(h.keys)
}

// Each calls fn for every entry in insertion order.
func (h *Hash) Each(fn func(k, v Value)) {
	for j := range h.keys {
		fn(h.keys[j], h.vals[j])
	}
}

var hashSeed = maphash.MakeSeed()

// hashOf answers the value of #hash for builtins, consistent with the
// keying rules of Hash.
func hashOf(v Value) uint64 {
	var mh maphash.Hash
	mh.SetSeed(hashSeed)
	switch x := v.(type) {
	case *String:
		mh.WriteString("s" + x.S)
	case Symbol:
		mh.WriteString("y" + string(x))
	case int64:
		var b [8]byte
		for j := range b {
			b[j] = byte(uint64(x) >> (8 * j))
		}
		mh.WriteString("i")
		mh.Write(b[:])
	case float64:
		bits := math.Float64bits(x)
		if x == 0 {
			bits = 0
		}
		var b [8]byte
		for j := range b {
			b[j] = byte(bits >> (8 * j))
		}
		mh.WriteString("f")
		mh.Write(b[:])
	default:
		mh.WriteString(Inspect(v))
	}
	return mh.Sum64() >> 2
}

// ---------------------------------------------------------------------------
// Hash Primitives
// ---------------------------------------------------------------------------

func (v *VM) registerHashPrimitives() {
	c := v.HashClass

	c.Singleton().DefineMethod(NewNativeMethod("new", Arity{Optional: 1}, func(_ *Interpreter, _ Value, args []Value, _ *Proc) Value {
		h := NewHash()
		if len(args) == 1 {
			h.Default = args[0]
		}
		return h
	}))

	c.DefineMethod(NewMethod1("[]", func(_ *Interpreter, self, arg Value) Value {
		return self.(*Hash).Get(arg)
	}).WithIntrinsic(IntrinsicHashAref))
	c.DefineMethod(NewNativeMethod("[]=", Arity{Required: 2}, func(_ *Interpreter, self Value, args []Value, _ *Proc) Value {
		self.(*Hash).Set(args[0], args[1])
		return args[1]
	}))
	c.DefineMethod(NewNativeMethod("fetch", Arity{Required: 1, Optional: 1}, func(in *Interpreter, self Value, args []Value, _ *Proc) Value {
		if v, ok := self.(*Hash).Lookup(args[0]); ok {
			return v
		}
		if len(args) == 2 {
			return args[1]
		}
		in.Raise(in.vm.KeyErrorClass, "key not found: %s", in.inspect(args[0]))
		return nil
	}))
	c.DefineMethod(NewMethod1("delete", func(_ *Interpreter, self, arg Value) Value {
		v, _ := self.(*Hash).Delete(arg)
		return v
	}))

	hasKey := func(_ *Interpreter, self, arg Value) Value {
		_, ok := self.(*Hash).Lookup(arg)
		return ok
	}
	c.DefineMethod(NewMethod1("key?", hasKey))
	c.DefineMethod(NewMethod1("has_key?", hasKey))
	c.DefineMethod(NewMethod1("include?", hasKey))

	size := func(_ *Interpreter, self Value) Value {
		return int64(self.(*Hash).Len())
	}
	c.DefineMethod(NewMethod0("size", size))
	c.DefineMethod(NewMethod0("length", size))
	c.DefineMethod(NewMethod0("empty?", func(_ *Interpreter, self Value) Value {
		return self.(*Hash).Len() == 0
	}))
	c.DefineMethod(NewMethod0("keys", func(_ *Interpreter, self Value) Value {
		return NewArray(append([]Value(nil), self.(*Hash).keys...)...)
	}))
	c.DefineMethod(NewMethod0("values", func(_ *Interpreter, self Value) Value {
		return NewArray(append([]Value(nil), self.(*Hash).vals...)...)
	}))

	c.DefineMethod(NewNativeMethod("each", Arity{}, func(in *Interpreter, self Value, _ []Value, blk *Proc) Value {
		if blk == nil {
			in.Raise(in.vm.LocalJumpErrorClass, "no block given (yield)")
		}
		self.(*Hash).Each(func(k, v Value) {
			in.CallBlock(blk, k, v)
		})
		return self
	}).WithBlock())

	inspect := func(in *Interpreter, self Value) Value {
		h := self.(*Hash)
		parts := make([]string, 0, h.Len())
		h.Each(func(k, v Value) {
			parts = append(parts, in.inspect(k)+" => "+in.inspect(v))
		})
		return NewString("{" + strings.Join(parts, ", ") + "}")
	}
	c.DefineMethod(NewMethod0("to_s", inspect))
	c.DefineMethod(NewMethod0("inspect", inspect))
}
