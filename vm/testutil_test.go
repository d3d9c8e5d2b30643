package vm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/emberlang/ember/classreg"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// asm accumulates a function body byte-by-byte; it's a thin builder over
// the opcode encodings documented in opcodes.go, used here instead of a
// compiler since these tests exercise the interpreter directly.
type asm struct {
	code []byte
}

func (a *asm) op(op OpCode) *asm {
	a.code = append(a.code, byte(op))
	return a
}

func (a *asm) u16(v uint16) *asm {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	a.code = append(a.code, b[:]...)
	return a
}

func (a *asm) i16(v int16) *asm { return a.u16(uint16(v)) }

func (a *asm) u32(v uint32) *asm {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.code = append(a.code, b[:]...)
	return a
}

func (a *asm) f64(v float64) *asm {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	a.code = append(a.code, b[:]...)
	return a
}

func (a *asm) byteOp(b byte) *asm {
	a.code = append(a.code, b)
	return a
}

func newTestModule(functions ...module.Function) *module.Module {
	return &module.Module{Functions: functions}
}

// newTestRuntime wires the same shared resources the host assembles in
// ember.NewVM, sized for a single
// in-process test: one safepoint participant, no automatic GC trigger.
func newTestRuntime(mod *module.Module) *Interpreter {
	sp := safepoint.NewCoordinator(1)
	heap := gcheap.New(sp, 0)
	classes := classreg.Load(mod)
	mutexes := mutexreg.NewRegistry()
	tasks := task.NewRegistry()
	globals := NewGlobals()
	vm := New(heap, sp, classes, mutexes, tasks, globals)
	heap.AddRootSource(tasks)
	heap.AddRootSource(globals)
	return vm
}

// spawnTask creates and registers a task directly against vm.Tasks,
// bypassing the Spawn opcode, for tests that want to drive a task from a
// known entry point without another task's help.
func spawnTask(vm *Interpreter, mod *module.Module, entryFunc uint32, args ...value.Value) *task.Task {
	id := vm.Tasks.NextID()
	tsk := task.New(id, mod, entryFunc, task.NoParent, args)
	vm.Tasks.Insert(tsk)
	return tsk
}

// runToCompletion drives Run across a single task until it terminates,
// feeding any Suspend(Sleep/Yield) straight back with an immediate Resume
// so tests that don't care about real scheduling delay don't have to poll
// a timer; tests that specifically exercise mutex/channel/await/waitall
// contention instead call vm.Run directly against multiple tasks.
func runToCompletion(t *testing.T, vm *Interpreter, tsk *task.Task) Outcome {
	t.Helper()
	for i := 0; i < 10000; i++ {
		out := vm.Run(tsk)
		switch out.Flow {
		case FlowCompleted, FlowFailed:
			return out
		case FlowSuspended:
			switch out.Reason.Kind {
			case task.SuspendSleep, task.SuspendYield:
				tsk.Resume(value.Null)
				continue
			}
			return out
		}
	}
	t.Fatal("task never completed")
	return Outcome{}
}

func mustI32(t *testing.T, v value.Value) int32 {
	t.Helper()
	i, ok := v.AsI32()
	if !ok {
		t.Fatalf("expected i32, got %#v", v)
	}
	return i
}
