package vm

import (
	"testing"

	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
)

func TestTryCatchCatchesThrownValue(t *testing.T) {
	// try { throw "boom"; } catch (e) { return e; }
	tryOp := (&asm{}).op(OpTry)
	tryOperandAt := len(tryOp.code)
	tryOp.i16(0).i16(-1) // catch offset patched below, no finally

	a := tryOp
	a.op(OpConstStr).u16(0) // "boom" at constant pool index 0
	a.op(OpThrow)

	catchStart := len(a.code)
	a.op(OpReturn) // exception value is already on the stack, pushed by raise()

	// CatchOffset/FinallyOffset are absolute bytecode positions (raise
	// sets the frame's IP to them directly), unlike Jmp's relative offsets.
	patch := int16(catchStart)
	a.code[tryOperandAt] = byte(patch)
	a.code[tryOperandAt+1] = byte(patch >> 8)

	mod := &module.Module{
		Functions:       []module.Function{{Name: "main", LocalCount: 0, Code: a.code}},
		ConstantStrings: []string{"boom"},
	}
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected the catch block to complete the task, got flow=%v", out.Flow)
	}
	s, ok := gcheap.ObjectFor(out.Value).(*gcheap.HeapString)
	if !ok {
		t.Fatalf("expected the caught value to be a string, got %#v", out.Value)
	}
	if s.String() != "boom" {
		t.Fatalf("expected %q, got %q", "boom", s.String())
	}
}

func TestUncaughtThrowFailsTaskAndReleasesHeldMutexes(t *testing.T) {
	// lock(m); throw "boom"; — never reached: unlock.
	body := (&asm{}).
		op(OpNewMutex).
		op(OpMutexLock).
		op(OpConstStr).u16(0).
		op(OpThrow).code

	mod := &module.Module{
		Functions:       []module.Function{{Name: "main", LocalCount: 0, Code: body}},
		ConstantStrings: []string{"boom"},
	}
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowFailed {
		t.Fatalf("expected the task to fail, got flow=%v", out.Flow)
	}

	if tsk.HeldMutexCount() != 0 {
		t.Fatalf("expected the unwind to auto-release every held mutex, held=%d", tsk.HeldMutexCount())
	}
}

// An exception unwinding through a closure-call frame must pop that
// frame's entry off the closure stack, the same as a normal return does:
// a LoadCaptured executed in the catch block afterwards resolves against
// the enclosing closure, not the dead callee's.
func TestUnwindThroughClosureCallPopsClosureStack(t *testing.T) {
	// outer (a closure capturing 10):
	//   try { inner = closure capturing 99; inner(); } catch (e) { return captured[0]; }
	outer := (&asm{}).op(OpTry)
	tryOperandAt := len(outer.code)
	outer.i16(0).i16(-1) // catch offset patched below

	outer.op(OpConstI32).u32(99)
	outer.op(OpMakeClosure).u32(2).u16(1)
	outer.op(OpCall).u32(uint32(ClosureCallSentinel)).u16(0)

	catchStart := len(outer.code)
	outer.op(OpPop)               // discard the caught exception
	outer.op(OpLoadCaptured).u16(0) // must read outer's capture, not inner's
	outer.op(OpReturn)

	patch := int16(catchStart)
	outer.code[tryOperandAt] = byte(patch)
	outer.code[tryOperandAt+1] = byte(patch >> 8)

	// inner (a closure capturing 99): throw 5;
	inner := (&asm{}).
		op(OpConstI32).u32(5).
		op(OpThrow).code

	main := (&asm{}).
		op(OpConstI32).u32(10).
		op(OpMakeClosure).u32(1).u16(1).
		op(OpCall).u32(uint32(ClosureCallSentinel)).u16(0).
		op(OpReturn).code

	mod := newTestModule(
		module.Function{Name: "main", LocalCount: 0, Code: main},
		module.Function{Name: "outer", LocalCount: 0, Code: outer.code},
		module.Function{Name: "inner", LocalCount: 0, Code: inner},
	)
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 10 {
		t.Fatalf("caught-block LoadCaptured = %d, want the enclosing closure's 10", got)
	}
	if len(tsk.ClosureStack) != 0 {
		t.Fatalf("closure stack should be empty after return, depth=%d", len(tsk.ClosureStack))
	}
}
