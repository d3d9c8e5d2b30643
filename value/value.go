// Package value implements the tagged Value word used throughout the Ember
// runtime: the operand stack, locals, globals, closures, and every heap
// object field hold a value.Value.
package value

import (
	"math"
	"unsafe"
)

// Kind discriminates the payload carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI32
	KindI64
	KindF64
	KindHandle // unsigned 64-bit handle (task ids, mutex ids)
	KindPtr    // heap pointer; the pointed-to kind is known from use site
)

// Value is a tagged word: a kind tag, a 64-bit payload, and a separate
// pointer slot for heap values. It is bitwise-copyable: copying a Value
// never needs to invalidate or duplicate heap state, since Ptr is an
// unowned reference into the GC heap (see package gcheap).
//
// Go's precise garbage collector cannot scan a pointer hidden inside a
// float64 bit pattern, so unlike a literal NaN-boxed word this struct keeps
// the pointer in its own machine word rather than folding it into Bits.
// The exact layout is an internal choice; every operation stays O(1) and
// the word remains bitwise-copyable.
type Value struct {
	Tag  Kind
	Bits uint64         // i32/i64/bool/handle payload, or the raw bits of a float64
	Ptr  unsafe.Pointer // valid iff Tag == KindPtr
}

var Null = Value{Tag: KindNull}

func Bool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{Tag: KindBool, Bits: bits}
}

func I32(i int32) Value {
	return Value{Tag: KindI32, Bits: uint64(uint32(i))}
}

func I64(i int64) Value {
	return Value{Tag: KindI64, Bits: uint64(i)}
}

func F64(f float64) Value {
	return Value{Tag: KindF64, Bits: math.Float64bits(f)}
}

func Handle(h uint64) Value {
	return Value{Tag: KindHandle, Bits: h}
}

// MakePtr constructs a heap-pointer value. The caller must know the pointed-to
// kind at every use site; Value carries no self-description for pointers.
func MakePtr(p unsafe.Pointer) Value {
	return Value{Tag: KindPtr, Ptr: p}
}

func (v Value) IsNull() bool   { return v.Tag == KindNull }
func (v Value) IsBool() bool   { return v.Tag == KindBool }
func (v Value) IsI32() bool    { return v.Tag == KindI32 }
func (v Value) IsI64() bool    { return v.Tag == KindI64 }
func (v Value) IsF64() bool    { return v.Tag == KindF64 }
func (v Value) IsHandle() bool { return v.Tag == KindHandle }
func (v Value) IsPtr() bool    { return v.Tag == KindPtr }

// AsBool returns the boolean payload and whether the tag matched.
func (v Value) AsBool() (bool, bool) {
	if v.Tag != KindBool {
		return false, false
	}
	return v.Bits != 0, true
}

func (v Value) AsI32() (int32, bool) {
	if v.Tag != KindI32 {
		return 0, false
	}
	return int32(uint32(v.Bits)), true
}

func (v Value) AsI64() (int64, bool) {
	if v.Tag != KindI64 {
		return 0, false
	}
	return int64(v.Bits), true
}

func (v Value) AsF64() (float64, bool) {
	if v.Tag != KindF64 {
		return 0, false
	}
	return math.Float64frombits(v.Bits), true
}

func (v Value) AsHandle() (uint64, bool) {
	if v.Tag != KindHandle {
		return 0, false
	}
	return v.Bits, true
}

func (v Value) AsPtr() (unsafe.Pointer, bool) {
	if v.Tag != KindPtr {
		return nil, false
	}
	return v.Ptr, true
}

// Truthy reports the value's truthiness: null and boolean-false are false; numeric
// zero and the empty string are truthy,
// as is every other value.
func (v Value) Truthy() bool {
	switch v.Tag {
	case KindNull:
		return false
	case KindBool:
		return v.Bits != 0
	default:
		return true
	}
}

// Equal implements bitwise equality for discrete kinds, IEEE equality for
// floats, and pointer identity for heap values. Content equality for
// strings and other heap kinds is layered on top by callers that know the
// pointed-to type (see vm package Seq/Sne and the builtins equality native).
func Equal(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case KindNull:
		return true
	case KindF64:
		af, _ := a.AsF64()
		bf, _ := b.AsF64()
		return af == bf
	case KindPtr:
		return a.Ptr == b.Ptr
	default:
		return a.Bits == b.Bits
	}
}

// TypeName implements the Typeof opcode's string results.
func (v Value) TypeName(ptrKind func(unsafe.Pointer) string) string {
	switch v.Tag {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindI32, KindI64, KindF64:
		return "number"
	case KindHandle:
		return "number"
	case KindPtr:
		if ptrKind != nil {
			return ptrKind(v.Ptr)
		}
		return "object"
	default:
		return "undefined"
	}
}
