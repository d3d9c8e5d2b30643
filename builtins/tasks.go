package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// Task natives (0x05xx): handle-based introspection and cancellation for
// tasks, reachable as NativeCall methods (`t.state()`, `t.cancel()`)
// alongside the dedicated Spawn/Await/WaitAll/TaskCancel opcodes
// that the compiler emits for `spawn`/`await` syntax.
const (
	TaskID NativeID = RangeTask + iota
	TaskState
	TaskCancelNative
	TaskResult
)

var taskFuncs = []Func{
	TaskID % rangeSize:           taskIDNative,
	TaskState % rangeSize:        taskState,
	TaskCancelNative % rangeSize: taskCancelNative,
	TaskResult % rangeSize:       taskResult,
}

func lookupTask(ctx *Context, v value.Value) (*task.Task, bool) {
	id, isHandle := v.AsHandle()
	if !isHandle {
		return nil, false
	}
	return ctx.Tasks.Get(int64(id))
}

func taskIDNative(ctx *Context, taskID int64, args []value.Value) Result {
	t, exists := lookupTask(ctx, args[0])
	if !exists {
		return fault(exception.KindRuntimeError, "unknown task")
	}
	return okResult(value.Handle(uint64(t.ID)))
}

func taskState(ctx *Context, taskID int64, args []value.Value) Result {
	t, exists := lookupTask(ctx, args[0])
	if !exists {
		return fault(exception.KindRuntimeError, "unknown task")
	}
	return okResult(value.I32(int32(t.State())))
}

func taskCancelNative(ctx *Context, taskID int64, args []value.Value) Result {
	t, exists := lookupTask(ctx, args[0])
	if !exists {
		return fault(exception.KindRuntimeError, "unknown task")
	}
	t.RequestCancel()
	return okResult(value.Null)
}

func taskResult(ctx *Context, taskID int64, args []value.Value) Result {
	t, exists := lookupTask(ctx, args[0])
	if !exists {
		return fault(exception.KindRuntimeError, "unknown task")
	}
	if v, done := t.Result(); done {
		return okResult(v)
	}
	if _, failed := t.Failure(); failed {
		return fault(exception.KindRuntimeError, "task failed")
	}
	return okResult(value.Null)
}
