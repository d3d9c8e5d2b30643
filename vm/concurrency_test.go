package vm

import (
	"testing"

	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// driveUntilDone repeatedly runs every Ready task in ids (plus whatever
// Run's Woken list adds along the way) until the root task terminates,
// standing in for the scheduler this package doesn't have yet.
func driveUntilDone(t *testing.T, vm *Interpreter, rootID int64) Outcome {
	t.Helper()
	ready := []int64{rootID}
	for i := 0; i < 10000; i++ {
		if len(ready) == 0 {
			t.Fatal("no more ready tasks but root never completed")
		}
		id := ready[0]
		ready = ready[1:]

		tsk, ok := vm.Tasks.Get(id)
		if !ok {
			continue
		}
		if tsk.State() != task.Ready && tsk.State() != task.Running {
			continue
		}

		out := vm.Run(tsk)
		ready = append(ready, out.Woken...)

		if id == rootID {
			switch out.Flow {
			case FlowCompleted, FlowFailed:
				return out
			case FlowSuspended:
				switch out.Reason.Kind {
				case task.SuspendSleep, task.SuspendYield:
					tsk.Resume(value.Null)
					ready = append(ready, id)
				default:
					ready = append(ready, id)
				}
			}
			continue
		}

		if out.Flow == FlowSuspended {
			switch out.Reason.Kind {
			case task.SuspendSleep, task.SuspendYield:
				tsk.Resume(value.Null)
				ready = append(ready, id)
			}
		}
	}
	t.Fatal("root task never completed")
	return Outcome{}
}

func TestSpawnAndAwaitChannelRendezvous(t *testing.T) {
	receiver := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpNativeCall).u16(uint16(builtins.ChanReceive)).byteOp(1).
		op(OpReturn).code

	mainAsm := &asm{}
	mainAsm.op(OpConstI32).u32(0) // channel capacity
	mainAsm.op(OpNewChannel)
	mainAsm.op(OpStoreLocal).u16(0)
	mainAsm.op(OpLoadLocal).u16(0)
	mainAsm.op(OpSpawn).u32(1).u16(1)
	mainAsm.op(OpStoreLocal).u16(1)
	mainAsm.op(OpLoadLocal).u16(0)
	mainAsm.op(OpConstI32).u32(99)
	mainAsm.op(OpNativeCall).u16(uint16(builtins.ChanSend)).byteOp(2)
	mainAsm.op(OpPop) // discard send's null result
	mainAsm.op(OpLoadLocal).u16(1)
	mainAsm.op(OpAwait)
	mainAsm.op(OpReturn)

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 2, Code: mainAsm.code},
		module.Function{Name: "receiver", ParamCount: 1, LocalCount: 1, Code: receiver},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := driveUntilDone(t, vm, tsk.ID)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 99 {
		t.Fatalf("expected 99, got %d", got)
	}
}

func TestMutexGrantsFIFOOwnership(t *testing.T) {
	// holder(m): lock(m); yield; unlock(m); return 1;
	holder := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpMutexLock).
		op(OpYield).
		op(OpLoadLocal).u16(0).
		op(OpMutexUnlock).
		op(OpConstI32).u32(1).
		op(OpReturn).code

	// waiter(m): lock(m); unlock(m); return 2;
	waiter := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpMutexLock).
		op(OpLoadLocal).u16(0).
		op(OpMutexUnlock).
		op(OpConstI32).u32(2).
		op(OpReturn).code

	main := (&asm{}).
		op(OpNewMutex).
		op(OpStoreLocal).u16(0).
		op(OpLoadLocal).u16(0).
		op(OpSpawn).u32(1).u16(1). // holder
		op(OpStoreLocal).u16(1).
		op(OpLoadLocal).u16(0).
		op(OpSpawn).u32(2).u16(1). // waiter
		op(OpStoreLocal).u16(2).
		op(OpLoadLocal).u16(1).
		op(OpAwait).
		op(OpPop).
		op(OpLoadLocal).u16(2).
		op(OpAwait).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 3, Code: main},
		module.Function{Name: "holder", ParamCount: 1, LocalCount: 1, Code: holder},
		module.Function{Name: "waiter", ParamCount: 1, LocalCount: 1, Code: waiter},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := driveUntilDone(t, vm, tsk.ID)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 2 {
		t.Fatalf("expected the waiter's result 2, got %d", got)
	}
}

func TestWaitAllResolvesOnceEveryTaskCompletes(t *testing.T) {
	// child(n): return n;
	child := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpReturn).code

	main := (&asm{}).
		op(OpConstI32).u32(1).
		op(OpSpawn).u32(1).u16(1).
		op(OpConstI32).u32(2).
		op(OpSpawn).u32(1).u16(1).
		op(OpArrayLiteral).u16(2).
		op(OpWaitAll).
		op(OpArrayLen).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 0, Code: main},
		module.Function{Name: "child", ParamCount: 1, LocalCount: 1, Code: child},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := driveUntilDone(t, vm, tsk.ID)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 2 {
		t.Fatalf("expected wait_all result array of length 2, got %d", got)
	}
}
