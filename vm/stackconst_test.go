package vm

import (
	"testing"

	"github.com/emberlang/ember/module"
)

func TestFastLocalVariants(t *testing.T) {
	a := &asm{}
	a.op(OpConstI32).u32(5).op(OpStoreLocal0)
	a.op(OpConstI32).u32(7).op(OpStoreLocal1)
	a.op(OpLoadLocal0).op(OpLoadLocal1).op(OpIAdd)
	a.op(OpReturn)
	mod := newTestModule(module.Function{Name: "main", LocalCount: 2, Code: a.code})

	vm := newTestRuntime(mod)
	out := runToCompletion(t, vm, spawnTask(vm, mod, 0))
	if out.Flow != FlowCompleted {
		t.Fatalf("flow = %v, want completed", out.Flow)
	}
	if got := mustI32(t, out.Value); got != 12 {
		t.Fatalf("result = %d, want 12", got)
	}
}

func TestFastFieldVariants(t *testing.T) {
	a := &asm{}
	a.op(OpNew).u32(0)
	a.op(OpDup)
	a.op(OpConstI32).u32(4).op(OpStoreFieldFast).byteOp(1)
	a.op(OpLoadFieldFast).byteOp(1)
	a.op(OpReturn)
	mod := objectTestModule(a.code)

	vm := newTestRuntime(mod)
	out := runToCompletion(t, vm, spawnTask(vm, mod, 0))
	if out.Flow != FlowCompleted {
		t.Fatalf("flow = %v, want completed", out.Flow)
	}
	if got := mustI32(t, out.Value); got != 4 {
		t.Fatalf("field 1 = %d, want 4", got)
	}
}

func TestDupPopIsIdentityOnStack(t *testing.T) {
	a := &asm{}
	a.op(OpConstI32).u32(9)
	a.op(OpDup).op(OpPop)
	a.op(OpReturn)
	mod := newTestModule(module.Function{Name: "main", Code: a.code})

	vm := newTestRuntime(mod)
	out := runToCompletion(t, vm, spawnTask(vm, mod, 0))
	if got := mustI32(t, out.Value); got != 9 {
		t.Fatalf("result = %d, want 9", got)
	}
}

func TestSwapReordersTopTwo(t *testing.T) {
	a := &asm{}
	a.op(OpConstI32).u32(1)
	a.op(OpConstI32).u32(2)
	a.op(OpSwap)
	a.op(OpReturn) // returns the new top: the value pushed first
	mod := newTestModule(module.Function{Name: "main", Code: a.code})

	vm := newTestRuntime(mod)
	out := runToCompletion(t, vm, spawnTask(vm, mod, 0))
	if got := mustI32(t, out.Value); got != 1 {
		t.Fatalf("result = %d, want 1", got)
	}
}
