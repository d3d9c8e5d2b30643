package vm

import (
	"testing"

	"github.com/emberlang/ember/module"
)

func TestIntAddOfTwoI32s(t *testing.T) {
	body := (&asm{}).
		op(OpConstI32).u32(7).
		op(OpConstI32).u32(5).
		op(OpIAdd).
		op(OpReturn).code

	mod := newTestModule(module.Function{Name: "add", LocalCount: 0, Code: body})
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v exc=%v", out.Flow, out.Exception)
	}
	if got := mustI32(t, out.Value); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestIntDivisionByZeroRaisesCatchableException(t *testing.T) {
	body := (&asm{}).
		op(OpConstI32).u32(1).
		op(OpConstI32).u32(0).
		op(OpIDiv).
		op(OpReturn).code

	mod := newTestModule(module.Function{Name: "divzero", LocalCount: 0, Code: body})
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowFailed {
		t.Fatalf("expected failure, got flow=%v", out.Flow)
	}
}

func TestMinIntDividedByNegOneWraps(t *testing.T) {
	body := (&asm{}).
		op(OpConstI32).u32(uint32(minInt32)).
		op(OpConstI32).u32(uint32(int32(-1))).
		op(OpIDiv).
		op(OpReturn).code

	mod := newTestModule(module.Function{Name: "wrap", LocalCount: 0, Code: body})
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v", out.Flow)
	}
	if got := mustI32(t, out.Value); got != minInt32 {
		t.Fatalf("expected wraparound to %d, got %d", minInt32, got)
	}
}

// StrictEq is currently identical to Eq: both coerce numerically across
// kinds, so i32 3 and f64 3.0 compare equal under either opcode.
func TestStrictEqIsIdenticalToEq(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   OpCode
	}{
		{"Eq", OpEq},
		{"StrictEq", OpStrictEq},
	} {
		body := (&asm{}).
			op(OpConstI32).u32(3).
			op(OpConstF64).f64(3.0).
			op(tc.op).
			op(OpReturn).code

		mod := newTestModule(module.Function{Name: "main", LocalCount: 0, Code: body})
		vm := newTestRuntime(mod)
		tsk := spawnTask(vm, mod, 0)

		out := runToCompletion(t, vm, tsk)
		if out.Flow != FlowCompleted {
			t.Fatalf("%s: expected completion, got flow=%v", tc.name, out.Flow)
		}
		b, ok := out.Value.AsBool()
		if !ok || !b {
			t.Fatalf("%s: i32 3 vs f64 3.0 = %#v, want true", tc.name, out.Value)
		}
	}
}

func TestStrictNeIsIdenticalToNe(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   OpCode
	}{
		{"Ne", OpNe},
		{"StrictNe", OpStrictNe},
	} {
		body := (&asm{}).
			op(OpConstI32).u32(3).
			op(OpConstF64).f64(3.0).
			op(tc.op).
			op(OpReturn).code

		mod := newTestModule(module.Function{Name: "main", LocalCount: 0, Code: body})
		vm := newTestRuntime(mod)
		tsk := spawnTask(vm, mod, 0)

		out := runToCompletion(t, vm, tsk)
		b, ok := out.Value.AsBool()
		if !ok || b {
			t.Fatalf("%s: i32 3 vs f64 3.0 = %#v, want false", tc.name, out.Value)
		}
	}
}

func TestNumericGenericPromotesToFloat(t *testing.T) {
	body := (&asm{}).
		op(OpConstI32).u32(3).
		op(OpConstF64).f64(0.5).
		op(OpNAdd).
		op(OpReturn).code

	mod := newTestModule(module.Function{Name: "promote", LocalCount: 0, Code: body})
	vm := newTestRuntime(mod)
	tsk := spawnTask(vm, mod, 0)

	out := runToCompletion(t, vm, tsk)
	if out.Flow != FlowCompleted {
		t.Fatalf("expected completion, got flow=%v", out.Flow)
	}
	f, ok := out.Value.AsF64()
	if !ok || f != 3.5 {
		t.Fatalf("expected 3.5, got %#v", out.Value)
	}
}
