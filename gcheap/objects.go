package gcheap

import (
	"unsafe"

	"github.com/emberlang/ember/value"
)

// HeapString is an immutable byte buffer with a cached length and a
// lazily-computed hash.
type HeapString struct {
	bytes  []byte
	hash   uint64
	hashed bool
}

func NewString(s string) *HeapString {
	return &HeapString{bytes: []byte(s)}
}

func (s *HeapString) ObjKind() ObjectKind          { return KindString }
func (s *HeapString) Trace(visit func(value.Value)) {}
func (s *HeapString) Bytes() []byte                { return s.bytes }
func (s *HeapString) String() string               { return string(s.bytes) }
func (s *HeapString) Len() int                     { return len(s.bytes) }

// Hash returns an FNV-1a hash, computed once and cached. Equality (Seq/Sne)
// only consults this for strings longer than 16 bytes.
func (s *HeapString) Hash() uint64 {
	if s.hashed {
		return s.hash
	}
	var h uint64 = 14695981039346656037
	for _, b := range s.bytes {
		h ^= uint64(b)
		h *= 1099511628211
	}
	s.hash = h
	s.hashed = true
	return h
}

// HeapArray is a growable vector of values plus a type-id hint. StoreElem
// and Append mutate in place; arrays may grow after allocation.
type HeapArray struct {
	elems   []value.Value
	typeHint int32
}

func NewArray(typeHint int32, elems []value.Value) *HeapArray {
	return &HeapArray{elems: elems, typeHint: typeHint}
}

func (a *HeapArray) ObjKind() ObjectKind { return KindArray }
func (a *HeapArray) Trace(visit func(value.Value)) {
	for _, v := range a.elems {
		visit(v)
	}
}
func (a *HeapArray) Len() int         { return len(a.elems) }
func (a *HeapArray) TypeHint() int32  { return a.typeHint }
func (a *HeapArray) Elements() []value.Value { return a.elems }

// Get returns the element at a 0-based index and whether it was in range.
func (a *HeapArray) Get(i int) (value.Value, bool) {
	if i < 0 || i >= len(a.elems) {
		return value.Null, false
	}
	return a.elems[i], true
}

// Set stores v at a 0-based index; returns false if out of range. Negative
// indices are not implicitly wrapped.
func (a *HeapArray) Set(i int, v value.Value) bool {
	if i < 0 || i >= len(a.elems) {
		return false
	}
	a.elems[i] = v
	return true
}

func (a *HeapArray) Append(v value.Value) {
	a.elems = append(a.elems, v)
}

// HeapObject is a class instance: a class-id plus a fixed field vector.
// An object never changes class, and its field count is fixed by that
// class.
type HeapObject struct {
	ClassID uint32
	Fields  []value.Value
}

func NewObject(classID uint32, fieldCount int) *HeapObject {
	return &HeapObject{ClassID: classID, Fields: make([]value.Value, fieldCount)}
}

func (o *HeapObject) ObjKind() ObjectKind { return KindObject }
func (o *HeapObject) Trace(visit func(value.Value)) {
	for _, v := range o.Fields {
		visit(v)
	}
}

// HeapClosure is a function-id plus a captured-values vector whose length
// is fixed at creation; captures are mutable by index. RefCell layers
// capture-by-reference on top when the compiler needs it.
type HeapClosure struct {
	FunctionID uint32
	Captures   []value.Value
}

func NewClosure(functionID uint32, captures []value.Value) *HeapClosure {
	return &HeapClosure{FunctionID: functionID, Captures: captures}
}

func (c *HeapClosure) ObjKind() ObjectKind { return KindClosure }
func (c *HeapClosure) Trace(visit func(value.Value)) {
	for _, v := range c.Captures {
		visit(v)
	}
}

// SetCapture mutates an already-constructed closure's capture slot, used by
// the SetClosureCapture opcode for recursive self-capture.
func (c *HeapClosure) SetCapture(i int, v value.Value) bool {
	if i < 0 || i >= len(c.Captures) {
		return false
	}
	c.Captures[i] = v
	return true
}

// HeapRefCell is a single-slot mutable cell used for capture-by-reference.
type HeapRefCell struct {
	slot value.Value
}

func NewRefCell(v value.Value) *HeapRefCell { return &HeapRefCell{slot: v} }

func (r *HeapRefCell) ObjKind() ObjectKind           { return KindRefCell }
func (r *HeapRefCell) Trace(visit func(value.Value)) { visit(r.slot) }
func (r *HeapRefCell) Load() value.Value             { return r.slot }
func (r *HeapRefCell) Store(v value.Value)           { r.slot = v }

// HeapMap is an insertion-ordered key/value table keyed by value equality
// (value.Equal plus the string-content comparator the VM supplies, so
// content-equal strings collide as one key).
type HeapMap struct {
	order []value.Value
	index map[mapKey]int
	vals  []value.Value
}

// mapKey is a hashable projection of a value.Value used for the Go map
// index; string-keyed entries hash by content (via the caller-supplied
// strOf function) so that two distinct string heap objects with equal
// bytes collide as the same key.
type mapKey struct {
	tag  value.Kind
	bits uint64
	ptr  unsafe.Pointer // populated when tag == value.KindPtr and str == ""
	str  string         // populated only when tag == value.KindPtr and the pointer is a string
}

func NewMap() *HeapMap {
	return &HeapMap{index: make(map[mapKey]int)}
}

func (m *HeapMap) ObjKind() ObjectKind { return KindMap }
func (m *HeapMap) Trace(visit func(value.Value)) {
	for _, k := range m.order {
		visit(k)
	}
	for _, v := range m.vals {
		visit(v)
	}
}

func keyOf(k value.Value, strOf func(value.Value) (string, bool)) mapKey {
	mk := mapKey{tag: k.Tag, bits: k.Bits}
	if k.Tag == value.KindPtr {
		if s, ok := strOf(k); ok {
			mk.str = s
		} else {
			p, _ := k.AsPtr()
			mk.ptr = p
		}
	}
	return mk
}

func (m *HeapMap) Len() int { return len(m.order) }

func (m *HeapMap) Get(k value.Value, strOf func(value.Value) (string, bool)) (value.Value, bool) {
	idx, ok := m.index[keyOf(k, strOf)]
	if !ok {
		return value.Null, false
	}
	return m.vals[idx], true
}

func (m *HeapMap) Set(k, v value.Value, strOf func(value.Value) (string, bool)) {
	mk := keyOf(k, strOf)
	if idx, ok := m.index[mk]; ok {
		m.vals[idx] = v
		return
	}
	m.index[mk] = len(m.order)
	m.order = append(m.order, k)
	m.vals = append(m.vals, v)
}

func (m *HeapMap) Delete(k value.Value, strOf func(value.Value) (string, bool)) bool {
	mk := keyOf(k, strOf)
	idx, ok := m.index[mk]
	if !ok {
		return false
	}
	delete(m.index, mk)
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	m.vals = append(m.vals[:idx], m.vals[idx+1:]...)
	for key, i := range m.index {
		if i > idx {
			m.index[key] = i - 1
		}
	}
	return true
}

func (m *HeapMap) Keys() []value.Value { return m.order }
func (m *HeapMap) Values() []value.Value { return m.vals }

// HeapSet is a value set, built on the same keying scheme as
// HeapMap.
type HeapSet struct {
	order []value.Value
	index map[mapKey]int
}

func NewSet() *HeapSet {
	return &HeapSet{index: make(map[mapKey]int)}
}

func (s *HeapSet) ObjKind() ObjectKind { return KindSet }
func (s *HeapSet) Trace(visit func(value.Value)) {
	for _, v := range s.order {
		visit(v)
	}
}

func (s *HeapSet) Len() int { return len(s.order) }

func (s *HeapSet) Has(v value.Value, strOf func(value.Value) (string, bool)) bool {
	_, ok := s.index[keyOf(v, strOf)]
	return ok
}

func (s *HeapSet) Add(v value.Value, strOf func(value.Value) (string, bool)) bool {
	mk := keyOf(v, strOf)
	if _, ok := s.index[mk]; ok {
		return false
	}
	s.index[mk] = len(s.order)
	s.order = append(s.order, v)
	return true
}

func (s *HeapSet) Remove(v value.Value, strOf func(value.Value) (string, bool)) bool {
	mk := keyOf(v, strOf)
	idx, ok := s.index[mk]
	if !ok {
		return false
	}
	delete(s.index, mk)
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	for key, i := range s.index {
		if i > idx {
			s.index[key] = i - 1
		}
	}
	return true
}

func (s *HeapSet) Values() []value.Value {
	sorted := make([]value.Value, len(s.order))
	copy(sorted, s.order)
	return sorted
}

// HeapBuffer is a fixed-size mutable byte array with i32/f64 accessors at
// byte offsets, little-endian.
type HeapBuffer struct {
	bytes []byte
}

func NewBuffer(size int) *HeapBuffer {
	return &HeapBuffer{bytes: make([]byte, size)}
}

func (b *HeapBuffer) ObjKind() ObjectKind           { return KindBuffer }
func (b *HeapBuffer) Trace(visit func(value.Value)) {}
func (b *HeapBuffer) Len() int                      { return len(b.bytes) }
func (b *HeapBuffer) Bytes() []byte                 { return b.bytes }

// HeapRegExp is a compiled pattern plus flags. The compiled
// form is supplied by the caller (builtins/regexp native) since regexp
// compilation is outside this package's concern.
type HeapRegExp struct {
	Pattern string
	Flags   string
	Handle  any // the compiled engine object, opaque to gcheap
}

func (r *HeapRegExp) ObjKind() ObjectKind           { return KindRegExp }
func (r *HeapRegExp) Trace(visit func(value.Value)) {}
