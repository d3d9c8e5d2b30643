package vm

import (
	"time"

	"github.com/emberlang/ember/channel"
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// execConcurrency handles Spawn/SpawnClosure/Await/WaitAll/Sleep/Yield/
// TaskCancel/NewMutex/MutexLock/MutexUnlock/NewChannel. Unlike channel send/receive, which are native
// calls dispatched through builtins.Table, these are VM opcodes proper:
// they touch task.Registry and mutexreg.Registry directly, and several of
// them change the current task's own state rather than just pushing a
// result.
func (vm *Interpreter) execConcurrency(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpSpawn:
		functionID := vm.fetchU32(t)
		argc := int(vm.fetchU16(t))
		args := vm.popArgs(t, argc)

		if int(functionID) >= len(t.Module.Functions) {
			return vm.fault(ec, exception.KindInvalidModule, "spawn of undefined function")
		}
		newID := vm.Tasks.NextID()
		child := task.New(newID, t.Module, functionID, t.ID, args)
		vm.Tasks.Insert(child)
		vm.push(t, value.Handle(uint64(newID)))
		ec.wake(newID)
		return Outcome{}, false

	case OpSpawnClosure:
		argc := int(vm.fetchU16(t))
		args := vm.popArgs(t, argc)
		closureVal := vm.pop(t)
		closure, ok := gcheap.ObjectFor(closureVal).(*gcheap.HeapClosure)
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "spawn target is not a closure")
		}

		newID := vm.Tasks.NextID()
		child := task.New(newID, t.Module, closure.FunctionID, t.ID, args)
		child.ClosureStack = append(child.ClosureStack, closureVal)
		child.Frames[0].HasClosure = true
		vm.Tasks.Insert(child)
		vm.push(t, value.Handle(uint64(newID)))
		ec.wake(newID)
		return Outcome{}, false

	case OpAwait:
		handle, ok := vm.pop(t).AsHandle()
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "await target is not a task handle")
		}
		awaited, found := vm.Tasks.Get(int64(handle))
		if !found {
			return vm.fault(ec, exception.KindRuntimeError, "await on an unknown task")
		}
		if result, done := awaited.Result(); done {
			vm.push(t, result)
			return Outcome{}, false
		}
		if failure, failed := awaited.Failure(); failed {
			if res, terminal := vm.raise(ec, failure); terminal {
				return res, true
			}
			return Outcome{}, false
		}
		if !awaited.AddWaiter(t.ID) {
			// The awaited task went terminal between the checks above and
			// the registration; its waiters list has already been drained,
			// so read the terminal state directly instead of suspending.
			if result, done := awaited.Result(); done {
				vm.push(t, result)
				return Outcome{}, false
			}
			failure, _ := awaited.Failure()
			if res, terminal := vm.raise(ec, failure); terminal {
				return res, true
			}
			return Outcome{}, false
		}
		t.Suspend(task.SuspendReason{Kind: task.SuspendAwaitTask, AwaitedID: int64(handle)})
		return Outcome{Flow: FlowSuspended, Reason: task.SuspendReason{Kind: task.SuspendAwaitTask, AwaitedID: int64(handle)}}, true

	case OpWaitAll:
		// The handle array stays on the operand stack (peek, not pop):
		// if every awaited task is already done this resolves in one
		// pass, but on contention the task suspends and, on resume,
		// re-enters this same opcode from scratch (Run rewinds IP by
		// one) to re-derive which tasks are still pending, since no
		// persistent record of that set is kept anywhere else.
		arrVal := vm.peek(t, 0)
		arr, ok := vm.asHeapArray(arrVal)
		if !ok {
			vm.pop(t)
			return vm.fault(ec, exception.KindTypeError, "wait_all target is not an array of task handles")
		}

		results := make([]value.Value, arr.Len())
		var pending []*task.Task
		for i, elem := range arr.Elements() {
			handle, isHandle := elem.AsHandle()
			if !isHandle {
				vm.pop(t)
				return vm.fault(ec, exception.KindTypeError, "wait_all element is not a task handle")
			}
			awaited, found := vm.Tasks.Get(int64(handle))
			if !found {
				vm.pop(t)
				return vm.fault(ec, exception.KindRuntimeError, "wait_all on an unknown task")
			}
			if result, done := awaited.Result(); done {
				results[i] = result
				continue
			}
			if failure, failed := awaited.Failure(); failed {
				vm.pop(t)
				if res, terminal := vm.raise(ec, failure); terminal {
					return res, true
				}
				return Outcome{}, false
			}
			pending = append(pending, awaited)
		}

		if len(pending) > 0 {
			registered := 0
			for _, awaited := range pending {
				if awaited.AddWaiter(t.ID) {
					registered++
				}
			}
			vm.currentFrame(t).IP--
			if registered == 0 {
				// Every still-pending dependency went terminal during
				// registration; re-execute the opcode immediately rather
				// than suspend with no one left to wake us.
				return Outcome{}, false
			}
			t.Suspend(task.SuspendReason{Kind: task.SuspendWaitAll, WaitAll: handlesOf(arr)})
			return Outcome{Flow: FlowSuspended, Reason: task.SuspendReason{Kind: task.SuspendWaitAll, WaitAll: handlesOf(arr)}}, true
		}

		vm.pop(t)
		vm.push(t, vm.Heap.Allocate(gcheap.NewArray(arr.TypeHint(), results)))
		return Outcome{}, false

	case OpSleep:
		millis, ok := vm.pop(t).AsI32()
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "sleep duration is not an i32")
		}
		wakeAt := time.Now().Add(time.Duration(millis) * time.Millisecond)
		reason := task.SuspendReason{Kind: task.SuspendSleep, WakeAt: wakeAt}
		t.Suspend(reason)
		return Outcome{Flow: FlowSuspended, Reason: reason}, true

	case OpYield:
		reason := task.SuspendReason{Kind: task.SuspendYield}
		t.Suspend(reason)
		return Outcome{Flow: FlowSuspended, Reason: reason}, true

	case OpTaskCancel:
		handle, ok := vm.pop(t).AsHandle()
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "task_cancel target is not a task handle")
		}
		if target, found := vm.Tasks.Get(int64(handle)); found {
			target.RequestCancel()
		}
		return Outcome{}, false

	case OpNewMutex:
		id := vm.Mutexes.New()
		vm.push(t, value.Handle(id))
		return Outcome{}, false

	case OpMutexLock:
		handle, ok := vm.pop(t).AsHandle()
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "mutex_lock target is not a mutex handle")
		}
		acquired, mustSuspend, exists := vm.Mutexes.Lock(handle, t.ID)
		if !exists {
			return vm.fault(ec, exception.KindRuntimeError, "lock of an unknown mutex")
		}
		if acquired {
			t.PushHeldMutex(handle)
			return Outcome{}, false
		}
		if mustSuspend {
			reason := task.SuspendReason{Kind: task.SuspendMutexLock, MutexID: handle}
			t.Suspend(reason)
			return Outcome{Flow: FlowSuspended, Reason: reason}, true
		}
		return vm.fault(ec, exception.KindMutexOwnership, "lock failed")

	case OpMutexUnlock:
		handle, ok := vm.pop(t).AsHandle()
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "mutex_unlock target is not a mutex handle")
		}
		next, woke, exists := vm.Mutexes.Unlock(handle, t.ID)
		if !exists {
			return vm.fault(ec, exception.KindMutexOwnership, "unlock of a mutex this task does not own")
		}
		t.RemoveHeldMutex(handle)
		if woke {
			vm.wakeMutexWaiter(ec, next, handle)
		}
		return Outcome{}, false

	case OpNewChannel:
		capacity, ok := vm.pop(t).AsI32()
		if !ok || capacity < 0 {
			return vm.fault(ec, exception.KindTypeError, "channel capacity must be a non-negative i32")
		}
		vm.push(t, vm.Heap.Allocate(channel.New(int(capacity))))
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid concurrency opcode")
	}
}

// wakeMutexWaiter transitions the next FIFO owner from Suspended(MutexLock)
// back to Ready. mutexreg already transferred ownership atomically with
// the unlock; the waiter records the mutex in its own held list when it
// consumes the resume (a task's HeldMutexes may only be touched by the
// worker driving it). The wake value is discarded on that side — a mutex
// handoff carries no payload, only the fact of acquisition.
func (vm *Interpreter) wakeMutexWaiter(ec *execCtx, nextOwner int64, mutexID uint64) {
	waiter, found := vm.Tasks.Get(nextOwner)
	if !found {
		return
	}
	waiter.Resume(value.Null)
	ec.wake(nextOwner)
}

func handlesOf(arr *gcheap.HeapArray) []int64 {
	elems := arr.Elements()
	ids := make([]int64, 0, len(elems))
	for _, e := range elems {
		if h, ok := e.AsHandle(); ok {
			ids = append(ids, int64(h))
		}
	}
	return ids
}

