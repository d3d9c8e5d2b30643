package vm

import "github.com/emberlang/ember/value"

// completeTask and failTask implement the terminal transitions: store the
// result or exception, then wake every waiter with it. Since the interpreter, not
// a separate scheduler goroutine, is the one that observes the terminal
// transition, it performs the waiter wake-up directly against the shared
// task registry and records every woken id on ec so the caller knows to
// re-enqueue them.

func (vm *Interpreter) completeTask(ec *execCtx, result value.Value) Outcome {
	t := ec.t
	t.Complete(result)
	for _, waiterID := range t.TakeWaiters() {
		if waiter, ok := vm.Tasks.Get(waiterID); ok {
			waiter.Resume(result)
			ec.wake(waiterID)
		}
	}
	return Outcome{Flow: FlowCompleted, Value: result}
}

// failTask releases every mutex the task still holds before marking it
// Failed: a task that never reaches a Try handler (or whose handler stack
// runs out while unwinding) still owns whatever it locked, and since it
// will never run again, those mutexes must be force-released here rather
// than left owned forever.
func (vm *Interpreter) failTask(ec *execCtx, excVal value.Value) Outcome {
	t := ec.t
	for {
		id, ok := t.PopHeldMutex()
		if !ok {
			break
		}
		if next, woke := vm.Mutexes.ForceRelease(id); woke {
			vm.wakeMutexWaiter(ec, next, id)
		}
	}
	t.Fail(excVal)
	for _, waiterID := range t.TakeWaiters() {
		if waiter, ok := vm.Tasks.Get(waiterID); ok {
			waiter.ResumeWithException(excVal)
			ec.wake(waiterID)
		}
	}
	return Outcome{Flow: FlowFailed, Exception: excVal}
}

func (vm *Interpreter) stringException(msg string) value.Value {
	return vm.allocString(msg)
}
