package vm

import (
	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/value"
)

// execNativeCall handles the NativeCall opcode: a 2-byte native-id and a
// 1-byte arg count, dispatched straight into builtins.Table.
func (vm *Interpreter) execNativeCall(ec *execCtx) (Outcome, bool) {
	t := ec.t
	id := builtins.NativeID(vm.fetchU16(t))
	argc := int(vm.fetchByte(t))
	args := vm.popArgs(t, argc)
	return vm.invokeNative(ec, id, args)
}

// invokeNative dispatches a resolved native id and translates the result
// into interpreter terms: a pushed value, a Suspend outcome, a woken peer
// task (mutex/channel handoff), or a fault entering the unwind protocol.
// Shared by the NativeCall opcode and CallMethod's native-receiver path.
func (vm *Interpreter) invokeNative(ec *execCtx, id builtins.NativeID, args []value.Value) (Outcome, bool) {
	t := ec.t
	res := vm.Natives.Dispatch(id, vm.nativeContext(), t.ID, args)

	if res.WokePeer != 0 {
		if waiter, ok := vm.Tasks.Get(res.WokePeer); ok {
			if res.HasHandoff {
				waiter.Resume(res.HandoffVal)
			}
			ec.wake(res.WokePeer)
		}
	}
	for _, id := range res.WokeClosed {
		if waiter, ok := vm.Tasks.Get(id); ok {
			waiter.ResumeWithException(vm.stringException("channel closed"))
			ec.wake(id)
		}
	}

	if res.Fault != nil {
		return vm.fault(ec, res.Fault.Kind, res.Fault.Message)
	}
	if res.Suspend != nil {
		t.Suspend(*res.Suspend)
		return Outcome{Flow: FlowSuspended, Reason: *res.Suspend}, true
	}

	vm.push(t, res.Value)
	return Outcome{}, false
}
