package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/value"
)

func (vm *Interpreter) execStackConst(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpNop:
	case OpPop:
		vm.pop(t)
	case OpDup:
		vm.push(t, vm.peek(t, 0))
	case OpSwap:
		a := vm.pop(t)
		b := vm.pop(t)
		vm.push(t, a)
		vm.push(t, b)
	case OpConstNull:
		vm.push(t, value.Null)
	case OpConstTrue:
		vm.push(t, value.Bool(true))
	case OpConstFalse:
		vm.push(t, value.Bool(false))
	case OpConstI32:
		vm.push(t, value.I32(int32(vm.fetchU32(t))))
	case OpConstF64:
		vm.push(t, value.F64(vm.fetchF64(t)))
	case OpConstStr:
		idx := vm.fetchU16(t)
		if int(idx) >= len(t.Module.ConstantStrings) {
			return vm.fault(ec, exception.KindInvalidModule, "constant string index out of range")
		}
		vm.push(t, vm.allocString(t.Module.ConstantStrings[idx]))
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid stack/const opcode")
	}
	return Outcome{}, false
}

// execLocal handles LoadLocal/StoreLocal and their operand-free 0/1
// variants, addressed relative to the current frame's LocalsBase.
func (vm *Interpreter) execLocal(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	frame := vm.currentFrame(t)

	var idx int
	switch op {
	case OpLoadLocal, OpStoreLocal:
		idx = int(vm.fetchU16(t))
	case OpLoadLocal1, OpStoreLocal1:
		idx = 1
	}
	slot := frame.LocalsBase + idx
	if slot < 0 || slot >= len(t.Stack) {
		return vm.fault(ec, exception.KindRuntimeError, "local index out of range")
	}
	switch op {
	case OpLoadLocal, OpLoadLocal0, OpLoadLocal1:
		vm.push(t, t.Stack[slot])
	case OpStoreLocal, OpStoreLocal0, OpStoreLocal1:
		t.Stack[slot] = vm.pop(t)
	}
	return Outcome{}, false
}

// execGlobal handles LoadGlobal/StoreGlobal against the shared Globals
// table.
func (vm *Interpreter) execGlobal(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	idx := vm.fetchU32(t)
	switch op {
	case OpLoadGlobal:
		vm.push(t, vm.Globals.Load(int(idx)))
	case OpStoreGlobal:
		vm.Globals.Store(int(idx), vm.pop(t))
	}
	return Outcome{}, false
}
