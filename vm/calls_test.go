package vm

import (
	"testing"

	"github.com/emberlang/ember/module"
)

func TestCallReturnsCalleeResult(t *testing.T) {
	double := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpLoadLocal).u16(0).
		op(OpIAdd).
		op(OpReturn).code

	main := (&asm{}).
		op(OpConstI32).u32(21).
		op(OpCall).u32(1).u16(1).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 0, Code: main},
		module.Function{Name: "double", ParamCount: 1, LocalCount: 1, Code: double},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

// TestRecursiveCallPreservesFrameStack exercises the flat frame-stack
// design directly: factorial(5) nests five live task.Frame entries
// without ever recursing into the Go call stack.
func TestRecursiveCallPreservesFrameStack(t *testing.T) {
	// fact(n): if n <= 1 jump to base case; else fall through into
	// n * fact(n - 1), with the base case (return 1) appended last.
	a := (&asm{}).
		op(OpLoadLocal).u16(0).
		op(OpConstI32).u32(1).
		op(OpIGt).
		op(OpJmpIfFalse).i16(0) // patched below, taken when n <= 1
	jumpOperandAt := len(a.code) - 2
	jumpBase := len(a.code)

	a.op(OpLoadLocal).u16(0)
	a.op(OpLoadLocal).u16(0)
	a.op(OpConstI32).u32(1)
	a.op(OpISub)
	a.op(OpCall).u32(1).u16(1)
	a.op(OpIMul)
	a.op(OpReturn)

	baseCaseStart := len(a.code)
	a.op(OpConstI32).u32(1)
	a.op(OpReturn)

	patchOffset := int16(baseCaseStart - jumpBase)
	a.code[jumpOperandAt] = byte(patchOffset)
	a.code[jumpOperandAt+1] = byte(patchOffset >> 8)

	main := (&asm{}).
		op(OpConstI32).u32(5).
		op(OpCall).u32(1).u16(1).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 0, Code: main},
		module.Function{Name: "fact", ParamCount: 1, LocalCount: 1, Code: a.code},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 120 {
		t.Fatalf("expected 5! == 120, got %d", got)
	}
}

func TestClosureCallUsesCapturedValue(t *testing.T) {
	// adder(x): return load_captured(0) + load_local(0);
	adder := (&asm{}).
		op(OpLoadCaptured).u16(0).
		op(OpLoadLocal).u16(0).
		op(OpIAdd).
		op(OpReturn).code

	main := (&asm{}).
		op(OpConstI32).u32(10). // capture value
		op(OpMakeClosure).u32(1).u16(1).
		op(OpConstI32).u32(32). // call argument
		op(OpCall).u32(uint32(ClosureCallSentinel)).u16(1).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 0, Code: main},
		module.Function{Name: "adder", ParamCount: 1, LocalCount: 1, Code: adder},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
