package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// execClosure handles closure creation and capture access. LoadCaptured/StoreCaptured address the closure currently
// executing (the top of task.ClosureStack, pushed by Call's closure-call
// path); SetClosureCapture instead mutates a closure value sitting just
// below the top of the operand stack, used right after MakeClosure to wire
// up recursive self-capture before the closure escapes.
func (vm *Interpreter) execClosure(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpMakeClosure:
		functionID := vm.fetchU32(t)
		captureCount := int(vm.fetchU16(t))
		captures := make([]value.Value, captureCount)
		for i := captureCount - 1; i >= 0; i-- {
			captures[i] = vm.pop(t)
		}
		vm.push(t, vm.Heap.Allocate(gcheap.NewClosure(functionID, captures)))
		return Outcome{}, false

	case OpLoadCaptured:
		idx := int(vm.fetchU16(t))
		closure, ok := vm.activeClosure(t)
		if !ok {
			return vm.fault(ec, exception.KindRuntimeError, "no active closure to load a capture from")
		}
		if idx < 0 || idx >= len(closure.Captures) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "capture index out of range")
		}
		vm.push(t, closure.Captures[idx])
		return Outcome{}, false

	case OpStoreCaptured:
		idx := int(vm.fetchU16(t))
		v := vm.pop(t)
		closure, ok := vm.activeClosure(t)
		if !ok {
			return vm.fault(ec, exception.KindRuntimeError, "no active closure to store a capture into")
		}
		if !closure.SetCapture(idx, v) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "capture index out of range")
		}
		return Outcome{}, false

	case OpSetClosureCapture:
		idx := int(vm.fetchU16(t))
		v := vm.pop(t)
		closureVal := vm.peek(t, 0)
		closure, ok := gcheap.ObjectFor(closureVal).(*gcheap.HeapClosure)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "set_closure_capture target is not a closure")
		}
		if !closure.SetCapture(idx, v) {
			return vm.fault(ec, exception.KindIndexOutOfBounds, "capture index out of range")
		}
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid closure opcode")
	}
}

func (vm *Interpreter) activeClosure(t *task.Task) (*gcheap.HeapClosure, bool) {
	if len(t.ClosureStack) == 0 {
		return nil, false
	}
	top := t.ClosureStack[len(t.ClosureStack)-1]
	c, ok := gcheap.ObjectFor(top).(*gcheap.HeapClosure)
	return c, ok
}
