package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// execObjectArray handles object/array allocation, field and element
// access, and statics.
func (vm *Interpreter) execObjectArray(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpNew:
		classID := vm.fetchU32(t)
		if int(classID) >= len(t.Module.Classes) {
			return vm.fault(ec, exception.KindInvalidModule, "new of undefined class")
		}
		class := &t.Module.Classes[classID]
		vm.push(t, vm.Heap.Allocate(gcheap.NewObject(classID, class.FieldCount)))
		return Outcome{}, false

	case OpObjectLiteral:
		classID := vm.fetchU32(t)
		fieldCount := int(vm.fetchU16(t))
		values := make([]value.Value, fieldCount)
		for i := fieldCount - 1; i >= 0; i-- {
			values[i] = vm.pop(t)
		}
		if int(classID) >= len(t.Module.Classes) {
			return vm.fault(ec, exception.KindInvalidModule, "object literal of undefined class")
		}
		obj := gcheap.NewObject(classID, t.Module.Classes[classID].FieldCount)
		copy(obj.Fields, values)
		vm.push(t, vm.Heap.Allocate(obj))
		return Outcome{}, false

	case OpLoadField, OpOptionalField, OpLoadFieldFast:
		var offset int
		if op == OpLoadFieldFast {
			offset = int(vm.fetchByte(t))
		} else {
			offset = int(vm.fetchU16(t))
		}
		receiver := vm.pop(t)
		if op == OpOptionalField && receiver.IsNull() {
			vm.push(t, value.Null)
			return Outcome{}, false
		}
		obj, ok := vm.asHeapObject(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "field access on a non-object")
		}
		if offset < 0 || offset >= len(obj.Fields) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "field offset out of range")
		}
		vm.push(t, obj.Fields[offset])
		return Outcome{}, false

	case OpStoreField, OpStoreFieldFast:
		var offset int
		if op == OpStoreFieldFast {
			offset = int(vm.fetchByte(t))
		} else {
			offset = int(vm.fetchU16(t))
		}
		v := vm.pop(t)
		receiver := vm.pop(t)
		obj, ok := vm.asHeapObject(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "field store on a non-object")
		}
		if offset < 0 || offset >= len(obj.Fields) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "field offset out of range")
		}
		obj.Fields[offset] = v
		return Outcome{}, false

	case OpLoadStatic:
		classID := vm.fetchU32(t)
		offset := int(vm.fetchU16(t))
		v, ok := vm.Classes.LoadStatic(classID, offset)
		if !ok {
			return vm.fault(ec, exception.KindInvalidModule, "static field out of range")
		}
		vm.push(t, v)
		return Outcome{}, false

	case OpStoreStatic:
		classID := vm.fetchU32(t)
		offset := int(vm.fetchU16(t))
		v := vm.pop(t)
		if !vm.Classes.StoreStatic(classID, offset, v) {
			return vm.fault(ec, exception.KindInvalidModule, "static field out of range")
		}
		return Outcome{}, false

	case OpNewArray:
		n := vm.pop(t)
		length, ok := n.AsI32()
		if !ok || length < 0 {
			return vm.fault(ec, exception.KindTypeError, "array length must be a non-negative i32")
		}
		vm.push(t, vm.Heap.Allocate(gcheap.NewArray(0, make([]value.Value, length))))
		return Outcome{}, false

	case OpArrayLiteral:
		length := int(vm.fetchU16(t))
		elems := make([]value.Value, length)
		for i := length - 1; i >= 0; i-- {
			elems[i] = vm.pop(t)
		}
		vm.push(t, vm.Heap.Allocate(gcheap.NewArray(0, elems)))
		return Outcome{}, false

	case OpLoadElem:
		idx := vm.pop(t)
		receiver := vm.pop(t)
		arr, ok := vm.asHeapArray(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "indexing a non-array")
		}
		i, isI32 := idx.AsI32()
		if !isI32 {
			return vm.fault(ec, exception.KindTypeError, "array index must be an i32")
		}
		v, inRange := arr.Get(int(i))
		if !inRange {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "array index out of range")
		}
		vm.push(t, v)
		return Outcome{}, false

	case OpStoreElem:
		v := vm.pop(t)
		idx := vm.pop(t)
		receiver := vm.pop(t)
		arr, ok := vm.asHeapArray(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "indexing a non-array")
		}
		i, isI32 := idx.AsI32()
		if !isI32 {
			return vm.fault(ec, exception.KindTypeError, "array index must be an i32")
		}
		if !arr.Set(int(i), v) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "array index out of range")
		}
		return Outcome{}, false

	case OpInitObject:
		// Literal construction: the object stays on top for the next
		// InitObject in the sequence.
		offset := int(vm.fetchU16(t))
		v := vm.pop(t)
		obj, ok := vm.asHeapObject(vm.peek(t, 0))
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "init field on a non-object")
		}
		if offset < 0 || offset >= len(obj.Fields) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "field offset out of range")
		}
		obj.Fields[offset] = v
		return Outcome{}, false

	case OpInitArray:
		idx := int(vm.fetchU16(t))
		v := vm.pop(t)
		arr, ok := vm.asHeapArray(vm.peek(t, 0))
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "init element on a non-array")
		}
		if !arr.Set(idx, v) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "array index out of range")
		}
		return Outcome{}, false

	case OpArrayLen:
		receiver := vm.pop(t)
		arr, ok := vm.asHeapArray(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "array.len on a non-array")
		}
		vm.push(t, value.I32(int32(arr.Len())))
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid object/array opcode")
	}
}

func (vm *Interpreter) asHeapObject(v value.Value) (*gcheap.HeapObject, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	o, ok := gcheap.ObjectFor(v).(*gcheap.HeapObject)
	return o, ok
}

func (vm *Interpreter) asHeapArray(v value.Value) (*gcheap.HeapArray, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	a, ok := gcheap.ObjectFor(v).(*gcheap.HeapArray)
	return a, ok
}
