package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// Array natives (0x01xx), mutating a HeapArray in place.
const (
	ArrNew NativeID = RangeArray + iota
	ArrLen
	ArrGet
	ArrSet
	ArrAppend
	ArrSlice
	ArrIndexOf
)

var arrayFuncs = []Func{
	ArrNew % rangeSize:     arrNew,
	ArrLen % rangeSize:     arrLen,
	ArrGet % rangeSize:     arrGet,
	ArrSet % rangeSize:     arrSet,
	ArrAppend % rangeSize:  arrAppend,
	ArrSlice % rangeSize:   arrSlice,
	ArrIndexOf % rangeSize: arrIndexOf,
}

func asArray(v value.Value) (*gcheap.HeapArray, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	a, isArr := gcheap.ObjectFor(v).(*gcheap.HeapArray)
	return a, isArr
}

// arrNew allocates a fresh array of the given length, filled with null, and
// an optional element-type hint (arg[1]).
func arrNew(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) < 1 {
		return fault(exception.KindRuntimeError, "array.new takes at least 1 argument")
	}
	n, isI32 := args[0].AsI32()
	if !isI32 || n < 0 {
		return fault(exception.KindTypeError, "array.new length must be a non-negative i32")
	}
	var typeHint int32
	if len(args) > 1 {
		typeHint, _ = args[1].AsI32()
	}
	elems := make([]value.Value, n)
	for i := range elems {
		elems[i] = value.Null
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(typeHint, elems)))
}

func arrLen(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.len receiver is not an array")
	}
	return okResult(value.I32(int32(a.Len())))
}

func arrGet(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.get receiver is not an array")
	}
	idx, isI32 := args[1].AsI32()
	if !isI32 {
		return fault(exception.KindTypeError, "array.get index must be an i32")
	}
	v, inRange := a.Get(int(idx))
	if !inRange {
		return fault(exception.KindIndexOutOfBounds, "array index out of range")
	}
	return okResult(v)
}

func arrSet(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.set receiver is not an array")
	}
	idx, isI32 := args[1].AsI32()
	if !isI32 {
		return fault(exception.KindTypeError, "array.set index must be an i32")
	}
	if !a.Set(int(idx), args[2]) {
		return fault(exception.KindIndexOutOfBounds, "array index out of range")
	}
	return okResult(value.Null)
}

func arrAppend(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.append receiver is not an array")
	}
	a.Append(args[1])
	return okResult(value.I32(int32(a.Len())))
}

func arrSlice(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.slice receiver is not an array")
	}
	start, isI32 := args[1].AsI32()
	if !isI32 {
		return fault(exception.KindTypeError, "array.slice start must be an i32")
	}
	end, isI32 := args[2].AsI32()
	if !isI32 {
		return fault(exception.KindTypeError, "array.slice end must be an i32")
	}
	elems := a.Elements()
	if start < 0 || end > int32(len(elems)) || start > end {
		return fault(exception.KindIndexOutOfBounds, "array.slice range out of bounds")
	}
	out := make([]value.Value, end-start)
	copy(out, elems[start:end])
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(a.TypeHint(), out)))
}

func arrIndexOf(ctx *Context, taskID int64, args []value.Value) Result {
	a, isArr := asArray(args[0])
	if !isArr {
		return fault(exception.KindTypeError, "array.index_of receiver is not an array")
	}
	needle := args[1]
	for i, v := range a.Elements() {
		if valuesEqual(ctx, v, needle) {
			return okResult(value.I32(int32(i)))
		}
	}
	return okResult(value.I32(-1))
}

// valuesEqual layers string content-equality on top of value.Equal, the
// same comparator the VM's Seq/Sne opcodes and the map/set natives use.
func valuesEqual(ctx *Context, a, b value.Value) bool {
	if a.Tag == value.KindPtr && b.Tag == value.KindPtr {
		as, aIsStr := ctx.StrOf(a)
		bs, bIsStr := ctx.StrOf(b)
		if aIsStr && bIsStr {
			return as == bs
		}
	}
	return value.Equal(a, b)
}
