package vm

import (
	"unsafe"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// execType handles InstanceOf/Cast/Typeof.
func (vm *Interpreter) execType(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpInstanceOf:
		classID := vm.fetchU32(t)
		receiver := vm.pop(t)
		obj, ok := vm.asHeapObject(receiver)
		if !ok {
			vm.push(t, value.Bool(false))
			return Outcome{}, false
		}
		vm.push(t, value.Bool(t.Module.InstanceOf(obj.ClassID, classID)))
		return Outcome{}, false

	case OpCast:
		classID := vm.fetchU32(t)
		receiver := vm.pop(t)
		if receiver.IsNull() {
			vm.push(t, receiver)
			return Outcome{}, false
		}
		obj, ok := vm.asHeapObject(receiver)
		if !ok || !t.Module.InstanceOf(obj.ClassID, classID) {
			return vm.fault(ec, exception.KindTypeError, "cast failed: value is not an instance of the target class")
		}
		vm.push(t, receiver)
		return Outcome{}, false

	case OpTypeof:
		receiver := vm.pop(t)
		vm.push(t, vm.allocString(receiver.TypeName(func(p unsafe.Pointer) string {
			return vm.typeNameOfPtr(t, value.MakePtr(p))
		})))
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid type opcode")
	}
}

// typeNameOfPtr distinguishes a class instance by its registered name
// rather than a generic "object" label; every other heap kind gets a
// fixed type-name string.
func (vm *Interpreter) typeNameOfPtr(t *task.Task, receiver value.Value) string {
	switch obj := gcheap.ObjectFor(receiver).(type) {
	case *gcheap.HeapString:
		return "string"
	case *gcheap.HeapArray:
		return "array"
	case *gcheap.HeapObject:
		if int(obj.ClassID) < len(t.Module.Classes) {
			return t.Module.Classes[obj.ClassID].Name
		}
		return "object"
	case *gcheap.HeapClosure:
		return "function"
	case *gcheap.HeapRefCell:
		return "refcell"
	case *gcheap.HeapMap:
		return "map"
	case *gcheap.HeapSet:
		return "set"
	case *gcheap.HeapBuffer:
		return "buffer"
	case *gcheap.HeapRegExp:
		return "regexp"
	default:
		return "object"
	}
}
