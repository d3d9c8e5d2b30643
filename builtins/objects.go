package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// Object natives (0x00xx), operating on the fixed-shape HeapObject field
// vector.
const (
	ObjGetField NativeID = RangeObject + iota
	ObjSetField
	ObjFieldCount
	ObjClassID
)

var objectFuncs = []Func{
	ObjGetField % rangeSize:   objGetField,
	ObjSetField % rangeSize:   objSetField,
	ObjFieldCount % rangeSize: objFieldCount,
	ObjClassID % rangeSize:    objClassID,
}

func asObject(v value.Value) (*gcheap.HeapObject, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	obj, isObj := gcheap.ObjectFor(v).(*gcheap.HeapObject)
	return obj, isObj
}

func objGetField(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) != 2 {
		return fault(exception.KindRuntimeError, "get_field takes 2 arguments")
	}
	obj, isObj := asObject(args[0])
	if !isObj {
		return fault(exception.KindTypeError, "get_field receiver is not an object")
	}
	idx, isI32 := args[1].AsI32()
	if !isI32 || int(idx) < 0 || int(idx) >= len(obj.Fields) {
		return fault(exception.KindIndexOutOfBounds, "field index out of range")
	}
	return okResult(obj.Fields[idx])
}

func objSetField(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) != 3 {
		return fault(exception.KindRuntimeError, "set_field takes 3 arguments")
	}
	obj, isObj := asObject(args[0])
	if !isObj {
		return fault(exception.KindTypeError, "set_field receiver is not an object")
	}
	idx, isI32 := args[1].AsI32()
	if !isI32 || int(idx) < 0 || int(idx) >= len(obj.Fields) {
		return fault(exception.KindIndexOutOfBounds, "field index out of range")
	}
	obj.Fields[idx] = args[2]
	return okResult(value.Null)
}

func objFieldCount(ctx *Context, taskID int64, args []value.Value) Result {
	obj, isObj := asObject(args[0])
	if !isObj {
		return fault(exception.KindTypeError, "field_count receiver is not an object")
	}
	return okResult(value.I32(int32(len(obj.Fields))))
}

func objClassID(ctx *Context, taskID int64, args []value.Value) Result {
	obj, isObj := asObject(args[0])
	if !isObj {
		return fault(exception.KindTypeError, "class_id receiver is not an object")
	}
	return okResult(value.Handle(uint64(obj.ClassID)))
}
