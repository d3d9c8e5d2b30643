package ember

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/config"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/value"
	"github.com/emberlang/ember/vm"
)

// code assembles a function body; the compiler front-end is out of scope,
// so end-to-end scenarios are written directly against the bytecode
// encoding documented in vm/opcodes.go.
type code struct {
	b []byte
}

func (c *code) op(op vm.OpCode) *code {
	c.b = append(c.b, byte(op))
	return c
}

func (c *code) u16(v uint16) *code {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	c.b = append(c.b, buf[:]...)
	return c
}

func (c *code) i16(v int16) *code { return c.u16(uint16(v)) }

func (c *code) u32(v uint32) *code {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	c.b = append(c.b, buf[:]...)
	return c
}

func (c *code) constI32(v int32) *code { return c.op(vm.OpConstI32).u32(uint32(v)) }

func (c *code) spawn(fnID uint32) *code { return c.op(vm.OpSpawn).u32(fnID).u16(0) }

func (c *code) native(id builtins.NativeID, argc byte) *code {
	c.op(vm.OpNativeCall).u16(uint16(id))
	c.b = append(c.b, argc)
	return c
}

func testVM(workers int) *VM {
	cfg := config.Default()
	cfg.Workers = workers
	cfg.GCCollectEvery = 0
	return NewVM(cfg)
}

func mustExecute(t *testing.T, v *VM, mod *module.Module) value.Value {
	t.Helper()
	result, err := v.Execute(mod)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

// Scenario 1: main() { return (10 + 20) * 2; }
func TestPureArithmetic(t *testing.T) {
	main := &code{}
	main.constI32(10).constI32(20).op(vm.OpIAdd).constI32(2).op(vm.OpIMul).op(vm.OpReturn)
	mod := &module.Module{Functions: []module.Function{{Name: "main", Code: main.b}}}

	result := mustExecute(t, testVM(2), mod)
	if got, ok := result.AsI32(); !ok || got != 60 {
		t.Fatalf("result = %#v, want i32 60", result)
	}
}

// Scenario 2: main() { try { throw "boom"; } catch (e) { return e; } }
func TestTryCatchReturnsThrownValue(t *testing.T) {
	main := &code{}
	// 0: Try catch=9 finally=-1
	// 5: ConstStr 0 ("boom")
	// 8: Throw
	// 9: Return            <- catch target; the exception value is on the stack
	main.op(vm.OpTry).i16(9).i16(-1)
	main.op(vm.OpConstStr).u16(0)
	main.op(vm.OpThrow)
	main.op(vm.OpReturn)
	mod := &module.Module{
		Functions:       []module.Function{{Name: "main", Code: main.b}},
		ConstantStrings: []string{"boom"},
	}

	result := mustExecute(t, testVM(2), mod)
	if got := DescribeValue(result); got != "boom" {
		t.Fatalf("caught value = %q, want \"boom\"", got)
	}
}

// Scenario 3: mutex fairness. A locks and sleeps 50ms before unlocking;
// B then C contend. Acquisition order after A must be B, then C. Each
// contender increments a mutex-protected counter and records its own
// acquisition rank in a global.
func TestMutexFairnessFIFO(t *testing.T) {
	holder := &code{}
	holder.op(vm.OpLoadGlobal).u32(0).op(vm.OpMutexLock)
	holder.constI32(50).op(vm.OpSleep)
	holder.op(vm.OpLoadGlobal).u32(0).op(vm.OpMutexUnlock)
	holder.op(vm.OpReturnVoid)

	contender := func(rankGlobal uint32) []byte {
		c := &code{}
		c.op(vm.OpLoadGlobal).u32(0).op(vm.OpMutexLock)
		c.op(vm.OpLoadGlobal).u32(1).constI32(1).op(vm.OpIAdd)
		c.op(vm.OpDup).op(vm.OpStoreGlobal).u32(1)
		c.op(vm.OpStoreGlobal).u32(rankGlobal)
		c.op(vm.OpLoadGlobal).u32(0).op(vm.OpMutexUnlock)
		c.op(vm.OpReturnVoid)
		return c.b
	}

	main := &code{}
	main.op(vm.OpNewMutex).op(vm.OpStoreGlobal).u32(0)
	main.constI32(0).op(vm.OpStoreGlobal).u32(1)
	main.spawn(1)                  // A takes the lock
	main.constI32(10).op(vm.OpSleep)
	main.spawn(2)                  // B queues first
	main.constI32(10).op(vm.OpSleep)
	main.spawn(3)                  // C queues second
	main.op(vm.OpArrayLiteral).u16(3)
	main.op(vm.OpWaitAll).op(vm.OpPop)
	// return rankB * 10 + rankC
	main.op(vm.OpLoadGlobal).u32(2).constI32(10).op(vm.OpIMul)
	main.op(vm.OpLoadGlobal).u32(3).op(vm.OpIAdd)
	main.op(vm.OpReturn)

	mod := &module.Module{Functions: []module.Function{
		{Name: "main", Code: main.b},
		{Name: "holder", Code: holder.b},
		{Name: "contenderB", Code: contender(2)},
		{Name: "contenderC", Code: contender(3)},
	}}

	result := mustExecute(t, testVM(4), mod)
	if got, _ := result.AsI32(); got != 12 {
		t.Fatalf("acquisition ranks = %d, want 12 (B first, then C)", got)
	}
}

// Scenario 4: channel rendezvous on an unbuffered channel.
func TestChannelRendezvous(t *testing.T) {
	sender := &code{}
	sender.op(vm.OpLoadGlobal).u32(0).constI32(42).native(builtins.ChanSend, 2)
	sender.op(vm.OpReturn) // send's result (null)

	receiver := &code{}
	receiver.op(vm.OpLoadGlobal).u32(0).native(builtins.ChanReceive, 1)
	receiver.op(vm.OpReturn)

	main := &code{}
	main.constI32(0).op(vm.OpNewChannel).op(vm.OpStoreGlobal).u32(0)
	main.spawn(1).spawn(2)
	main.op(vm.OpArrayLiteral).u16(2)
	main.op(vm.OpWaitAll)
	main.op(vm.OpReturn)

	mod := &module.Module{Functions: []module.Function{
		{Name: "main", Code: main.b},
		{Name: "sender", Code: sender.b},
		{Name: "receiver", Code: receiver.b},
	}}

	result := mustExecute(t, testVM(4), mod)
	arr, ok := gcheap.ObjectFor(result).(*gcheap.HeapArray)
	if !ok {
		t.Fatalf("result is not an array: %#v", result)
	}
	elems := arr.Elements()
	if len(elems) != 2 {
		t.Fatalf("result length = %d, want 2", len(elems))
	}
	if !elems[0].IsNull() {
		t.Errorf("sender result = %#v, want null", elems[0])
	}
	if got, _ := elems[1].AsI32(); got != 42 {
		t.Errorf("receiver result = %#v, want i32 42", elems[1])
	}
}

// Scenario 5: WaitAll returns results in input order, not completion order.
func TestWaitAllPreservesInputOrder(t *testing.T) {
	sleepRet := func(ms int32) []byte {
		c := &code{}
		c.constI32(ms).op(vm.OpSleep).constI32(ms).op(vm.OpReturn)
		return c.b
	}

	main := &code{}
	main.spawn(1).spawn(2).spawn(3)
	main.op(vm.OpArrayLiteral).u16(3)
	main.op(vm.OpWaitAll)
	main.op(vm.OpReturn)

	mod := &module.Module{Functions: []module.Function{
		{Name: "main", Code: main.b},
		{Name: "t30", Code: sleepRet(30)},
		{Name: "t10", Code: sleepRet(10)},
		{Name: "t20", Code: sleepRet(20)},
	}}

	result := mustExecute(t, testVM(4), mod)
	arr, ok := gcheap.ObjectFor(result).(*gcheap.HeapArray)
	if !ok {
		t.Fatalf("result is not an array: %#v", result)
	}
	want := []int32{30, 10, 20}
	elems := arr.Elements()
	if len(elems) != len(want) {
		t.Fatalf("result length = %d, want %d", len(elems), len(want))
	}
	for i, w := range want {
		if got, _ := elems[i].AsI32(); got != w {
			t.Errorf("result[%d] = %#v, want i32 %d", i, elems[i], w)
		}
	}
}

// Scenario 6: an exception crosses an await edge.
func TestExceptionAcrossAwait(t *testing.T) {
	thrower := &code{}
	thrower.op(vm.OpConstStr).u16(0).op(vm.OpThrow)

	t.Run("caught by awaiter", func(t *testing.T) {
		main := &code{}
		// 0: Try catch=13 finally=-1
		// 5: Spawn thrower
		// 12: Await
		// 13: Return          <- catch target
		main.op(vm.OpTry).i16(13).i16(-1)
		main.spawn(1)
		main.op(vm.OpAwait)
		main.op(vm.OpReturn)
		mod := &module.Module{
			Functions: []module.Function{
				{Name: "main", Code: main.b},
				{Name: "thrower", Code: thrower.b},
			},
			ConstantStrings: []string{"boom"},
		}

		result := mustExecute(t, testVM(2), mod)
		if got := DescribeValue(result); got != "boom" {
			t.Fatalf("caught value = %q, want \"boom\"", got)
		}
	})

	t.Run("uncaught bubbles to host", func(t *testing.T) {
		main := &code{}
		main.spawn(1).op(vm.OpAwait).op(vm.OpReturn)
		mod := &module.Module{
			Functions: []module.Function{
				{Name: "main", Code: main.b},
				{Name: "thrower", Code: thrower.b},
			},
			ConstantStrings: []string{"boom"},
		}

		_, err := testVM(2).Execute(mod)
		var emberErr *Error
		if !errors.As(err, &emberErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if emberErr.Code != ErrUncaughtException {
			t.Errorf("code = %v, want uncaught exception", emberErr.Code)
		}
		if emberErr.Message != "boom" {
			t.Errorf("message = %q, want \"boom\"", emberErr.Message)
		}
	})
}

func TestDivisionByZeroSurfacesAsRuntimeError(t *testing.T) {
	main := &code{}
	main.constI32(1).constI32(0).op(vm.OpIDiv).op(vm.OpReturn)
	mod := &module.Module{Functions: []module.Function{{Name: "main", Code: main.b}}}

	_, err := testVM(1).Execute(mod)
	var emberErr *Error
	if !errors.As(err, &emberErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if emberErr.Code != ErrRuntimeError {
		t.Errorf("code = %v, want runtime error", emberErr.Code)
	}
}

func TestExecuteRejectsModuleWithoutMain(t *testing.T) {
	body := &code{}
	body.op(vm.OpReturnVoid)
	mod := &module.Module{Functions: []module.Function{{Name: "helper", Code: body.b}}}

	_, err := testVM(1).Execute(mod)
	var emberErr *Error
	if !errors.As(err, &emberErr) || emberErr.Code != ErrInvalidModule {
		t.Fatalf("expected invalid module, got %v", err)
	}
}

func TestExecuteRejectsOutOfRangeVtable(t *testing.T) {
	main := &code{}
	main.op(vm.OpReturnVoid)
	mod := &module.Module{
		Functions: []module.Function{{Name: "main", Code: main.b}},
		Classes: []module.Class{{
			Name:     "Broken",
			ParentID: module.NoParent, ConstructorID: module.NoConstructor,
			Vtable: []uint32{99},
		}},
	}

	_, err := testVM(1).Execute(mod)
	var emberErr *Error
	if !errors.As(err, &emberErr) || emberErr.Code != ErrInvalidModule {
		t.Fatalf("expected invalid module, got %v", err)
	}
}

// Garbage created in a loop is reclaimed by an explicit collection
// requested from the host while the module runs.
func TestCollectGarbageFromHost(t *testing.T) {
	main := &code{}
	// 50 iterations of allocating a string and dropping it, then sleep so
	// the host can collect while the task is parked. Numeric zero is
	// truthy, so the loop condition is an explicit IEq against zero.
	// 0:  ConstI32 50, StoreLocal 0
	// 8:  LoadLocal 0, ConstI32 0, IEq, JmpIfTrue -> 39
	// 20: ConstStr 0, Pop
	// 24: LoadLocal 0, ConstI32 1, ISub, StoreLocal 0
	// 36: Jmp -> 8
	// 39: ConstI32 100, Sleep
	// 45: ConstI32 1, Return
	main.constI32(50).op(vm.OpStoreLocal).u16(0)
	main.op(vm.OpLoadLocal).u16(0).constI32(0).op(vm.OpIEq).op(vm.OpJmpIfTrue).i16(int16(39 - 20))
	main.op(vm.OpConstStr).u16(0).op(vm.OpPop)
	main.op(vm.OpLoadLocal).u16(0).constI32(1).op(vm.OpISub).op(vm.OpStoreLocal).u16(0)
	main.op(vm.OpJmp).i16(int16(8 - 39))
	main.constI32(100).op(vm.OpSleep)
	main.constI32(1).op(vm.OpReturn)
	mod := &module.Module{
		Functions:       []module.Function{{Name: "main", LocalCount: 1, Code: main.b}},
		ConstantStrings: []string{"garbage"},
	}

	v := testVM(2)
	done := make(chan struct{})
	var result value.Value
	var execErr error
	go func() {
		result, execErr = v.Execute(mod)
		close(done)
	}()

	// Wait for the execution to come up, then force a collection.
	for {
		if _, ok := v.HeapStats(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	v.CollectGarbage()

	<-done
	if execErr != nil {
		t.Fatalf("Execute: %v", execErr)
	}
	if got, _ := result.AsI32(); got != 1 {
		t.Fatalf("result = %#v, want i32 1", result)
	}
}
