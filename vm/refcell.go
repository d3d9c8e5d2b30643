package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// execRefCell handles the single-slot mutable cell used for
// capture-by-reference.
func (vm *Interpreter) execRefCell(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpNewRefCell:
		v := vm.pop(t)
		vm.push(t, vm.Heap.Allocate(gcheap.NewRefCell(v)))
		return Outcome{}, false

	case OpLoadRefCell:
		receiver := vm.pop(t)
		cell, ok := vm.asRefCell(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "load_ref_cell on a non-refcell")
		}
		vm.push(t, cell.Load())
		return Outcome{}, false

	case OpStoreRefCell:
		v := vm.pop(t)
		receiver := vm.pop(t)
		cell, ok := vm.asRefCell(receiver)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "store_ref_cell on a non-refcell")
		}
		cell.Store(v)
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid refcell opcode")
	}
}

func (vm *Interpreter) asRefCell(v value.Value) (*gcheap.HeapRefCell, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	c, ok := gcheap.ObjectFor(v).(*gcheap.HeapRefCell)
	return c, ok
}
