package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/value"
)

// execControl handles the jump family and Return/ReturnVoid. Jump offsets
// are relative signed 16-bit values measured from the byte after the
// operand; backward jumps poll the safepoint so a tight
// loop still yields to a stop-the-world request.
func (vm *Interpreter) execControl(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t

	switch op {
	case OpJmp, OpJmpIfTrue, OpJmpIfFalse, OpJmpIfNull, OpJmpIfNotNull:
		offset := vm.fetchI16(t)
		frame := vm.currentFrame(t)
		base := frame.IP

		taken := true
		switch op {
		case OpJmpIfTrue:
			taken = vm.pop(t).Truthy()
		case OpJmpIfFalse:
			taken = !vm.pop(t).Truthy()
		case OpJmpIfNull:
			taken = vm.pop(t).IsNull()
		case OpJmpIfNotNull:
			taken = !vm.pop(t).IsNull()
		}

		if taken {
			if offset < 0 {
				vm.Safepoint.Poll()
			}
			frame.IP = base + int(offset)
		}
		return Outcome{}, false

	case OpReturn:
		return vm.doReturn(ec, vm.pop(t))

	case OpReturnVoid:
		return vm.doReturn(ec, value.Null)

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid control opcode")
	}
}
