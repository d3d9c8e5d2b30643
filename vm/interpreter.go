package vm

import (
	"sync/atomic"

	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/classreg"
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// Interpreter drives one task at a time through the fetch/decode/dispatch
// loop. One Interpreter is shared by every worker; each
// worker calls Run with the task it has dequeued, owning that task's stack
// and IP exclusively until Run returns.
//
// Interpreter keeps an explicit task.Frame stack on the Task itself and
// never recurses into the Go call stack for a bytecode Call, which rules
// out driving nested calls through Go-native recursion: a task can be suspended and
// resumed on a different worker goroutine between any two opcodes, and a
// Go call stack cannot survive that handoff the way a plain data structure
// can. Call/Return simply push/pop task.Frame entries and the fetch loop
// continues flat.
type Interpreter struct {
	Heap      *gcheap.Heap
	Safepoint *safepoint.Coordinator
	Classes   *classreg.Registry
	Mutexes   *mutexreg.Registry
	Tasks     *task.Registry
	Globals   *Globals
	Natives   *builtins.Table

	nextTaskID int64
}

// New constructs an Interpreter over the given shared runtime resources.
// All of Heap/Safepoint/Classes/Mutexes/Tasks are expected to have already
// been wired together by the host (ember.NewVM, which cmd/embervm calls).
func New(heap *gcheap.Heap, sp *safepoint.Coordinator, classes *classreg.Registry, mutexes *mutexreg.Registry, tasks *task.Registry, globals *Globals) *Interpreter {
	return &Interpreter{
		Heap:      heap,
		Safepoint: sp,
		Classes:   classes,
		Mutexes:   mutexes,
		Tasks:     tasks,
		Globals:   globals,
		Natives:   builtins.NewTable(),
	}
}

// NextTaskID issues a unique monotonic task id from the Interpreter's own
// counter. Spawn does not use it: spawned tasks take their ids from
// Tasks.NextID.
func (vm *Interpreter) NextTaskID() int64 {
	return atomic.AddInt64(&vm.nextTaskID, 1)
}

// strOf is the builtins.StrOf callback every native call receives: it
// recognizes a HeapString pointer and returns its content.
func (vm *Interpreter) strOf(v value.Value) (string, bool) {
	if !v.IsPtr() {
		return "", false
	}
	s, isStr := gcheap.ObjectFor(v).(*gcheap.HeapString)
	if !isStr {
		return "", false
	}
	return s.String(), true
}

func (vm *Interpreter) nativeContext() *builtins.Context {
	return &builtins.Context{
		Heap:    vm.Heap,
		Mutexes: vm.Mutexes,
		Tasks:   vm.Tasks,
		StrOf:   vm.strOf,
	}
}

// execCtx is a single Run call's scratch state: the task being driven plus
// the set of other tasks that became Ready as a side effect (a mutex
// handoff, a channel rendezvous, a completed await's waiter) during this
// call. The scheduler only regains control when Run returns, so wakes are
// accumulated here and handed back once, in the final Outcome, rather than
// requiring the interpreter to call back into a scheduler mid-loop.
type execCtx struct {
	t     *task.Task
	woken []int64
}

func (ec *execCtx) wake(id int64) {
	if id != 0 {
		ec.woken = append(ec.woken, id)
	}
}

// Run drives t until it completes, fails, or suspends, starting from
// wherever its Frames/Stack/IP currently sit. A resume value or resume exception pending from a prior
// suspend is consumed exactly once, at the top of this call.
func (vm *Interpreter) Run(t *task.Task) (outcome Outcome) {
	t.SetState(task.Running)
	ec := &execCtx{t: t}

	defer func() {
		if r := recover(); r != nil {
			f, isFault := r.(exception.Fault)
			if !isFault {
				panic(r)
			}
			excVal := vm.allocString(f.Error())
			t.Fail(excVal)
			outcome = Outcome{Flow: FlowFailed, Exception: excVal, Woken: ec.woken}
		}
	}()

	if v, isExc, has := t.TakeResume(); has {
		switch {
		case isExc:
			if res, terminal := vm.raise(ec, v); terminal {
				res.Woken = ec.woken
				return res
			}
		case t.LastSuspendKind() == task.SuspendMutexLock:
			// Ownership was transferred to this task while it was parked
			// (mutexreg moved it atomically with the wake); record it in
			// the held-mutex list now that this worker owns the task
			// again. The wake itself carries no value: MutexLock's
			// immediate-acquire path pushes nothing, so its suspend/
			// resume path must match.
			t.PushHeldMutex(t.LastSuspend().MutexID)
		case t.LastSuspendKind() == task.SuspendSleep || t.LastSuspendKind() == task.SuspendYield:
			// void resumes: Sleep/Yield carry no payload.
		case t.LastSuspendKind() == task.SuspendWaitAll:
			// WaitAll already rewound its own IP before suspending, so it
			// re-executes and re-derives completeness from scratch; the
			// resume value here is just a wake nudge, not a result.
		default:
			vm.push(t, v)
		}
	}

	for {
		if t.PreemptRequested() {
			// Cooperative preemption: yield at the next
			// opcode boundary and let the scheduler re-enqueue us.
			t.ClearPreempt()
			reason := task.SuspendReason{Kind: task.SuspendYield}
			t.Suspend(reason)
			return Outcome{Flow: FlowSuspended, Reason: reason, Woken: ec.woken}
		}
		if t.CancelRequested() {
			exc := vm.stringException("task cancelled")
			if res, terminal := vm.raise(ec, exc); terminal {
				res.Woken = ec.woken
				return res
			}
			continue
		}

		frame := vm.currentFrame(t)
		fn := &t.Module.Functions[frame.FunctionID]
		if frame.IP >= len(fn.Code) {
			if res, terminal := vm.doReturn(ec, value.Null); terminal {
				res.Woken = ec.woken
				return res
			}
			continue
		}

		op := OpCode(fn.Code[frame.IP])
		frame.IP++

		if pollingOpcode(op) {
			vm.Safepoint.Poll()
		}

		res, terminal := vm.dispatch(ec, op)
		if terminal {
			res.Woken = ec.woken
			return res
		}
	}
}

// currentFrame returns a pointer into t.Frames so opcode handlers can
// mutate IP in place.
func (vm *Interpreter) currentFrame(t *task.Task) *task.Frame {
	return &t.Frames[len(t.Frames)-1]
}

func (vm *Interpreter) dispatch(ec *execCtx, op OpCode) (Outcome, bool) {
	switch {
	case op <= OpConstStr:
		return vm.execStackConst(ec, op)
	case op >= OpLoadLocal && op <= OpStoreLocal1:
		return vm.execLocal(ec, op)
	case op == OpLoadGlobal || op == OpStoreGlobal:
		return vm.execGlobal(ec, op)
	case op >= OpIAdd && op <= OpINot:
		return vm.execIntArith(ec, op)
	case op >= OpIEq && op <= OpIGe:
		return vm.execIntCompare(ec, op)
	case op >= OpFAdd && op <= OpFGe:
		return vm.execFloatArith(ec, op)
	case op >= OpNAdd && op <= OpNDiv:
		return vm.execNumericGeneric(ec, op)
	case op >= OpNot && op <= OpStrictNe:
		return vm.execBoolEq(ec, op)
	case op >= OpSConcat && op <= OpToString:
		return vm.execString(ec, op)
	case op >= OpJmp && op <= OpReturnVoid:
		return vm.execControl(ec, op)
	case op >= OpCall && op <= OpCallSuper:
		return vm.execCall(ec, op)
	case op >= OpNew && op <= OpStoreFieldFast:
		return vm.execObjectArray(ec, op)
	case op >= OpMakeClosure && op <= OpSetClosureCapture:
		return vm.execClosure(ec, op)
	case op >= OpNewRefCell && op <= OpStoreRefCell:
		return vm.execRefCell(ec, op)
	case op >= OpTry && op <= OpRethrow:
		return vm.execException(ec, op)
	case op >= OpSpawn && op <= OpNewChannel:
		return vm.execConcurrency(ec, op)
	case op >= OpInstanceOf && op <= OpTypeof:
		return vm.execType(ec, op)
	case op == OpNativeCall:
		return vm.execNativeCall(ec)
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid opcode")
	}
}
