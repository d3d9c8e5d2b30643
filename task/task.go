// Package task implements the runtime's unit of execution and its
// lifecycle state machine: a unique id, an operand stack, an instruction
// pointer, an exception-handler stack, a closure stack, held mutexes, a
// suspend reason, and a waiters list.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/value"
)

// State is the task lifecycle state.
type State int

const (
	Ready State = iota
	Running
	Suspended
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// SuspendReasonKind discriminates why a task is parked.
type SuspendReasonKind int

const (
	SuspendNone SuspendReasonKind = iota
	SuspendSleep
	SuspendMutexLock
	SuspendChannelSend
	SuspendChannelReceive
	SuspendAwaitTask
	SuspendWaitAll
	SuspendYield
)

// SuspendReason is the payload a Suspend(reason) interpreter result carries
// back to the scheduler.
type SuspendReason struct {
	Kind      SuspendReasonKind
	WakeAt    time.Time // SuspendSleep
	MutexID   uint64    // SuspendMutexLock
	ChannelID uint64    // SuspendChannelSend / SuspendChannelReceive
	SendValue value.Value
	AwaitedID int64 // SuspendAwaitTask / first-incomplete id for SuspendWaitAll
	WaitAll   []int64
}

// Frame is one call-frame record pushed on nested calls, used to
// reconstruct stack traces.
type Frame struct {
	FunctionID uint32
	ReturnIP   int
	LocalsBase int // index into the operand stack where this frame's locals begin
	IP         int // current instruction pointer within this frame

	HasClosure  bool        // true if this call pushed a closure onto ClosureStack
	ReturnsThis bool        // true for CallConstructor: discard the callee's Return value and push ThisValue instead
	ThisValue   value.Value // valid when ReturnsThis

	// OwnerClassID is the class a method/constructor frame was dispatched
	// against (NoParent when the frame is a plain function call). CallSuper
	// resolves this class's parent to find which constructor to invoke.
	OwnerClassID int32
}

// Task owns its full execution state: id, module reference, entry
// point, operand stack, IP, frame trace, handler stack, closure stack,
// held mutexes, exception slots, state, suspend reason, resume value,
// result, waiters, cancel/preempt flags, and optional parent.
type Task struct {
	ID        int64
	Module    *module.Module
	EntryFunc uint32
	ParentID  int64 // -1 if none
	TaskLocal value.Value

	Stack  []value.Value // operand stack
	Frames []Frame       // call-frame trace; Frames[len-1] is current

	Handlers     []exception.Handler
	ClosureStack []value.Value // heap-pointer Values to HeapClosure, current on top
	HeldMutexes  []uint64

	CurrentException     value.Value
	HasCurrentException  bool
	CaughtException      value.Value
	HasCaughtException   bool

	mu            sync.Mutex
	state         State
	suspendReason SuspendReason
	lastSuspend   SuspendReason
	resumeValue   value.Value
	hasResume     bool
	resumeIsExc   bool
	result        value.Value
	failure       value.Value
	hasFailure    bool
	waiters       []int64

	cancelRequested  atomic.Bool
	preemptRequested atomic.Bool

	CreatedAt time.Time
}

const NoParent int64 = -1

// New constructs a task in the Ready state.
func New(id int64, mod *module.Module, entryFunc uint32, parentID int64, args []value.Value) *Task {
	t := &Task{
		ID:        id,
		Module:    mod,
		EntryFunc: entryFunc,
		ParentID:  parentID,
		TaskLocal: value.Null,
		state:     Ready,
		CreatedAt: time.Now(),
	}
	fn := mod.Functions[entryFunc]
	locals := make([]value.Value, fn.LocalCount)
	copy(locals, args)
	t.Stack = append(t.Stack, locals...)
	t.Frames = append(t.Frames, Frame{FunctionID: entryFunc, LocalsBase: 0, OwnerClassID: module.NoParent})
	return t
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// BeginRun transitions Ready -> Running, reporting false when the task is
// not currently Ready (terminal, still suspended, or already claimed by
// another worker — a task woken redundantly can appear in a run queue
// twice, and exactly one worker may drive it).
func (t *Task) BeginRun() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Ready {
		return false
	}
	t.state = Running
	return true
}

// Suspend transitions the task to Suspended with the given reason. If a
// wake raced ahead of the suspension — the task registered with a
// resource, and another worker satisfied the wait and called Resume
// before this worker finished parking the task — the suspension is
// consumed on the spot: the task goes straight back to Ready with the
// resume value still pending, and the scheduler re-enqueues it when it
// observes the Ready state on the suspend outcome.
func (t *Task) Suspend(reason SuspendReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSuspend = reason
	if t.hasResume {
		t.state = Ready
		t.suspendReason = SuspendReason{}
		return
	}
	t.state = Suspended
	t.suspendReason = reason
}

func (t *Task) SuspendReason() SuspendReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspendReason
}

// LastSuspendKind reports the kind of the most recent Suspend call, even
// after Resume has cleared SuspendReason — Run uses it to tell whether a
// pending resume value should be pushed onto the operand stack (channel
// rendezvous, a single Await's result) or discarded because the opcode
// re-derives its own state on re-entry (WaitAll) or carries no result at
// all (Sleep, Yield, mutex handoff).
func (t *Task) LastSuspendKind() SuspendReasonKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSuspend.Kind
}

// LastSuspend returns the full reason of the most recent Suspend call;
// the mutex-handoff resume path needs the mutex id, not just the kind.
func (t *Task) LastSuspend() SuspendReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSuspend
}

// Resume clears the suspend reason, stores a resume value for the
// interpreter to push before re-entering the fetch loop, and transitions
// back to Ready. A Resume that
// arrives while the task is still Running (its worker has registered with
// a resource but not yet parked it) only records the value; the racing
// Suspend call observes it and completes the wake.
func (t *Task) Resume(v value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumeValue = v
	t.hasResume = true
	t.resumeIsExc = false
	if t.state != Running {
		t.state = Ready
		t.suspendReason = SuspendReason{}
	}
}

// ResumeWithException is like Resume, but marks the resume value as an
// exception to raise through the unwind protocol rather than push onto the
// stack — the Await opcode's "awaited task Failed" path.
func (t *Task) ResumeWithException(exc value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumeValue = exc
	t.hasResume = true
	t.resumeIsExc = true
	if t.state != Running {
		t.state = Ready
		t.suspendReason = SuspendReason{}
	}
}

// TakeResume consumes the pending resume value, if any, reporting whether
// it should be raised as an exception (ResumeWithException) rather than
// pushed onto the stack.
func (t *Task) TakeResume() (v value.Value, isException bool, hasResume bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasResume {
		return value.Null, false, false
	}
	t.hasResume = false
	isExc := t.resumeIsExc
	t.resumeIsExc = false
	return t.resumeValue, isExc, true
}

// Complete transitions to Completed with a result.
func (t *Task) Complete(result value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Completed
	t.result = result
}

// Fail transitions to Failed with the propagated exception.
func (t *Task) Fail(exc value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Failed
	t.failure = exc
	t.hasFailure = true
}

func (t *Task) Result() (value.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Completed {
		return value.Null, false
	}
	return t.result, true
}

func (t *Task) Failure() (value.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure, t.hasFailure
}

// AddWaiter registers another task as blocked on this task's completion
// (the Await opcode's suspend path). It reports false if this task is
// already terminal — the waiters list has been (or is about to be)
// drained, so the caller must read Result/Failure directly instead of
// waiting for a wake that will never come.
func (t *Task) AddWaiter(taskID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Completed || t.state == Failed {
		return false
	}
	t.waiters = append(t.waiters, taskID)
	return true
}

// TakeWaiters returns and clears the waiters list (called once, when the
// task completes or fails, so the scheduler can re-enqueue each one).
func (t *Task) TakeWaiters() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.waiters
	t.waiters = nil
	return w
}

// RequestCancel sets the cancel flag; observed at the next safepoint.
func (t *Task) RequestCancel()        { t.cancelRequested.Store(true) }
func (t *Task) CancelRequested() bool { return t.cancelRequested.Load() }

func (t *Task) RequestPreempt()        { t.preemptRequested.Store(true) }
func (t *Task) PreemptRequested() bool { return t.preemptRequested.Load() }
func (t *Task) ClearPreempt()          { t.preemptRequested.Store(false) }

// PushHeldMutex / PopHeldMutex / HeldMutexCount back the exception unwind
// protocol's LIFO auto-release.
func (t *Task) PushHeldMutex(id uint64) {
	t.HeldMutexes = append(t.HeldMutexes, id)
}

func (t *Task) PopHeldMutex() (uint64, bool) {
	if len(t.HeldMutexes) == 0 {
		return 0, false
	}
	id := t.HeldMutexes[len(t.HeldMutexes)-1]
	t.HeldMutexes = t.HeldMutexes[:len(t.HeldMutexes)-1]
	return id, true
}

func (t *Task) HeldMutexCount() int { return len(t.HeldMutexes) }

// RemoveHeldMutex removes the most recent record of id from the held
// list, reporting whether it was present. Unlock order is not required to
// be LIFO — only the unwind auto-release is.
func (t *Task) RemoveHeldMutex(id uint64) bool {
	for i := len(t.HeldMutexes) - 1; i >= 0; i-- {
		if t.HeldMutexes[i] == id {
			t.HeldMutexes = append(t.HeldMutexes[:i], t.HeldMutexes[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot copies the execution-frames record for out-of-band readers (a
// sampling profiler resolving frame IPs through the module's line
// tables). The copy is taken without synchronization; callers sample at
// safepoints, where the driving worker is parked.
func (t *Task) Snapshot() []Frame {
	frames := make([]Frame, len(t.Frames))
	copy(frames, t.Frames)
	return frames
}

// Roots implements gcheap.RootSource for this single task: its operand
// stack, closure stack, current/caught exception slots, and task-local
// value are all GC roots.
func (t *Task) Roots(visit func(value.Value)) {
	for _, v := range t.Stack {
		visit(v)
	}
	for _, v := range t.ClosureStack {
		visit(v)
	}
	if t.HasCurrentException {
		visit(t.CurrentException)
	}
	if t.HasCaughtException {
		visit(t.CaughtException)
	}
	visit(t.TaskLocal)
}
