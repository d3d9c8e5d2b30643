package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// Mutex natives (0x03xx), thin wrappers over mutexreg.Registry, exposed through
// NativeCall for method-style use (`m.try_lock()`) alongside the dedicated
// MutexLock/MutexUnlock opcodes the compiler emits for `lock`/`unlock`
// statements.
const (
	MutexNew NativeID = RangeMutex + iota
	MutexTryLock
	MutexLock
	MutexUnlock
	MutexOwner
)

var mutexFuncs = []Func{
	MutexNew % rangeSize:     mutexNew,
	MutexTryLock % rangeSize: mutexTryLock,
	MutexLock % rangeSize:    mutexLock,
	MutexUnlock % rangeSize:  mutexUnlock,
	MutexOwner % rangeSize:   mutexOwner,
}

func mutexNew(ctx *Context, taskID int64, args []value.Value) Result {
	return okResult(value.Handle(ctx.Mutexes.New()))
}

func asMutexID(v value.Value) (uint64, bool) {
	return v.AsHandle()
}

func mutexTryLock(ctx *Context, taskID int64, args []value.Value) Result {
	id, isHandle := asMutexID(args[0])
	if !isHandle {
		return fault(exception.KindTypeError, "try_lock receiver is not a mutex handle")
	}
	acquired, exists := ctx.Mutexes.TryLock(id, taskID)
	if !exists {
		return fault(exception.KindRuntimeError, "unknown mutex")
	}
	if acquired {
		if t, ok := ctx.Tasks.Get(taskID); ok {
			t.PushHeldMutex(id)
		}
	}
	return okResult(value.Bool(acquired))
}

func mutexLock(ctx *Context, taskID int64, args []value.Value) Result {
	id, isHandle := asMutexID(args[0])
	if !isHandle {
		return fault(exception.KindTypeError, "lock receiver is not a mutex handle")
	}
	acquired, mustSuspend, exists := ctx.Mutexes.Lock(id, taskID)
	if !exists {
		return fault(exception.KindRuntimeError, "unknown mutex")
	}
	if mustSuspend {
		return Result{Suspend: &task.SuspendReason{Kind: task.SuspendMutexLock, MutexID: id}}
	}
	if acquired {
		// Record the acquisition for the unwind protocol's auto-release;
		// the calling task is the one this worker is driving, so its held
		// list is safe to touch here.
		if t, ok := ctx.Tasks.Get(taskID); ok {
			t.PushHeldMutex(id)
		}
	}
	return okResult(value.Null)
}

func mutexUnlock(ctx *Context, taskID int64, args []value.Value) Result {
	id, isHandle := asMutexID(args[0])
	if !isHandle {
		return fault(exception.KindTypeError, "unlock receiver is not a mutex handle")
	}
	next, woke, exists := ctx.Mutexes.Unlock(id, taskID)
	if !exists {
		return fault(exception.KindMutexOwnership, "unlock called by a non-owner or on an unknown mutex")
	}
	if t, ok := ctx.Tasks.Get(taskID); ok {
		t.RemoveHeldMutex(id)
	}
	res := Result{Value: value.Null}
	if woke {
		res.WokePeer = next
	}
	return res
}

func mutexOwner(ctx *Context, taskID int64, args []value.Value) Result {
	id, isHandle := asMutexID(args[0])
	if !isHandle {
		return fault(exception.KindTypeError, "owner receiver is not a mutex handle")
	}
	owner, exists := ctx.Mutexes.Owner(id)
	if !exists {
		return fault(exception.KindRuntimeError, "unknown mutex")
	}
	if owner == mutexreg.NoOwner {
		return okResult(value.Null)
	}
	return okResult(value.Handle(uint64(owner)))
}
