// Package ember is the embedding surface of the Ember virtual machine: a
// stack-based bytecode VM with cooperative user-space tasks, a shared-heap
// tracing collector, exception unwinding, FIFO mutexes, and bounded
// channels. A host constructs a VM, hands it a loaded module, and receives
// the root task's result or a classified error.
//
// The runtime is organized as flat top-level packages: value, gcheap,
// safepoint, classreg, mutexreg, channel, task, scheduler, vm, exception,
// builtins, module, config.
package ember

import (
	"fmt"
	"strings"
	"sync"

	"github.com/emberlang/ember/classreg"
	"github.com/emberlang/ember/config"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/scheduler"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
	"github.com/emberlang/ember/vm"
)

// ErrorCode is the machine-readable classification surfaced to the host.
type ErrorCode int

const (
	ErrUncaughtException ErrorCode = iota
	ErrInvalidOpcode
	ErrStackUnderflow
	ErrTypeError
	ErrRuntimeError
	ErrInvalidModule
)

func (c ErrorCode) String() string {
	switch c {
	case ErrUncaughtException:
		return "uncaught exception"
	case ErrInvalidOpcode:
		return "invalid opcode"
	case ErrStackUnderflow:
		return "stack underflow"
	case ErrTypeError:
		return "type error"
	case ErrRuntimeError:
		return "runtime error"
	case ErrInvalidModule:
		return "invalid module"
	default:
		return "unknown error"
	}
}

// Error pairs an ErrorCode with a message, the same typed-error idiom the
// rest of the runtime uses internally.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

// VM is one virtual machine instance. It may Execute one module at a time;
// Spawn and CollectGarbage act on the execution currently in flight.
type VM struct {
	cfg config.Config

	mu sync.Mutex
	rt *instance
}

// instance is the per-Execute wiring of shared runtime resources.
type instance struct {
	mod     *module.Module
	sp      *safepoint.Coordinator
	heap    *gcheap.Heap
	mutexes *mutexreg.Registry
	tasks   *task.Registry
	globals *vm.Globals
	classes *classreg.Registry
	interp  *vm.Interpreter
	sched   *scheduler.Scheduler
}

// NewVM constructs a VM with the given tuning. Use config.Default() for
// the stock settings.
func NewVM(cfg config.Config) *VM {
	if cfg.Workers < 1 {
		cfg = config.Default()
	}
	return &VM{cfg: cfg}
}

// Execute registers the module's classes, spawns a root task running
// "main", drives the scheduler until the root task terminates, and returns
// its result. Worker goroutines are torn down before Execute returns;
// detached tasks that have not finished by then stay suspended.
func (v *VM) Execute(mod *module.Module) (value.Value, error) {
	if err := validateModule(mod); err != nil {
		return value.Null, err
	}
	mainID, ok := findFunction(mod, "main")
	if !ok {
		return value.Null, &Error{Code: ErrInvalidModule, Message: `module has no "main" function`}
	}

	rt := v.newInstance(mod)
	v.mu.Lock()
	if v.rt != nil {
		v.mu.Unlock()
		return value.Null, &Error{Code: ErrRuntimeError, Message: "an execution is already in flight"}
	}
	v.rt = rt
	v.mu.Unlock()

	rt.sched.Start()
	defer func() {
		rt.sched.Stop()
		v.mu.Lock()
		v.rt = nil
		v.mu.Unlock()
	}()

	root := task.New(rt.tasks.NextID(), mod, mainID, task.NoParent, nil)
	rt.tasks.Insert(root)
	out := rt.sched.RunRoot(root)

	switch out.Flow {
	case vm.FlowCompleted:
		return out.Value, nil
	case vm.FlowFailed:
		return value.Null, failureError(out.Exception)
	default:
		return value.Null, &Error{Code: ErrRuntimeError, Message: "root task neither completed nor failed"}
	}
}

// Spawn schedules an additional task running functionID with the given
// arguments against the execution currently in flight, returning its task
// id. The id can be awaited from bytecode via a handle value.
func (v *VM) Spawn(functionID uint32, args []value.Value) (int64, error) {
	v.mu.Lock()
	rt := v.rt
	v.mu.Unlock()
	if rt == nil {
		return 0, &Error{Code: ErrRuntimeError, Message: "no execution in flight"}
	}
	if int(functionID) >= len(rt.mod.Functions) {
		return 0, &Error{Code: ErrInvalidModule, Message: "spawn of undefined function"}
	}
	id := rt.tasks.NextID()
	t := task.New(id, rt.mod, functionID, task.NoParent, args)
	rt.tasks.Insert(t)
	rt.sched.Enqueue(t)
	return id, nil
}

// CollectGarbage requests an eager collection at the next safepoint. It
// blocks until every worker has parked and the collection has run. A no-op
// when no execution is in flight (there is nothing to collect against).
func (v *VM) CollectGarbage() {
	v.mu.Lock()
	rt := v.rt
	v.mu.Unlock()
	if rt == nil {
		return
	}
	rt.heap.CollectNow()
}

// HeapStats reports the live-object count and collection count of the
// execution in flight.
func (v *VM) HeapStats() (gcheap.Stats, bool) {
	v.mu.Lock()
	rt := v.rt
	v.mu.Unlock()
	if rt == nil {
		return gcheap.Stats{}, false
	}
	return rt.heap.Stats(), true
}

func (v *VM) newInstance(mod *module.Module) *instance {
	sp := safepoint.NewCoordinator(v.cfg.Workers)
	heap := gcheap.New(sp, v.cfg.GCCollectEvery)
	mutexes := mutexreg.NewRegistry()
	tasks := task.NewRegistry()
	globals := vm.NewGlobals()
	classes := classreg.Load(mod)
	interp := vm.New(heap, sp, classes, mutexes, tasks, globals)
	heap.AddRootSource(tasks)
	heap.AddRootSource(globals)
	heap.AddRootSource(classes)
	sched := scheduler.New(interp, tasks, sp, v.cfg)
	return &instance{
		mod:     mod,
		sp:      sp,
		heap:    heap,
		mutexes: mutexes,
		tasks:   tasks,
		globals: globals,
		classes: classes,
		interp:  interp,
		sched:   sched,
	}
}

// validateModule enforces the constraints checked at module load: every cross-reference (parent class, constructor,
// vtable slot) must be in range, and a function's locals must at least
// cover its parameters.
func validateModule(mod *module.Module) error {
	if mod == nil || len(mod.Functions) == 0 {
		return &Error{Code: ErrInvalidModule, Message: "module has no functions"}
	}
	for i, fn := range mod.Functions {
		if fn.LocalCount < fn.ParamCount {
			return &Error{Code: ErrInvalidModule, Message: fmt.Sprintf("function %d (%s): local count %d < param count %d", i, fn.Name, fn.LocalCount, fn.ParamCount)}
		}
	}
	for i, c := range mod.Classes {
		if c.ParentID != module.NoParent && int(c.ParentID) >= len(mod.Classes) {
			return &Error{Code: ErrInvalidModule, Message: fmt.Sprintf("class %d (%s): parent %d out of range", i, c.Name, c.ParentID)}
		}
		if c.ConstructorID != module.NoConstructor && int(c.ConstructorID) >= len(mod.Functions) {
			return &Error{Code: ErrInvalidModule, Message: fmt.Sprintf("class %d (%s): constructor %d out of range", i, c.Name, c.ConstructorID)}
		}
		for slot, fnID := range c.Vtable {
			if int(fnID) >= len(mod.Functions) {
				return &Error{Code: ErrInvalidModule, Message: fmt.Sprintf("class %d (%s): vtable slot %d references function %d out of range", i, c.Name, slot, fnID)}
			}
		}
	}
	return nil
}

func findFunction(mod *module.Module, name string) (uint32, bool) {
	for i, fn := range mod.Functions {
		if fn.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// failureError converts an uncaught exception value into the host-facing
// error taxonomy. Primitive faults reach here as "<Kind>: <message>"
// strings; anything else is an uncaught user throw.
func failureError(exc value.Value) error {
	msg := DescribeValue(exc)
	code := ErrUncaughtException
	if kind, rest, found := strings.Cut(msg, ": "); found {
		switch kind {
		case "TypeError":
			code = ErrTypeError
		case "StackUnderflow":
			code = ErrStackUnderflow
		case "RuntimeError":
			if rest == "invalid opcode" {
				code = ErrInvalidOpcode
			} else {
				code = ErrRuntimeError
			}
		case "DivisionByZero", "IndexOutOfBounds", "MutexOwnership", "ChannelClosed", "Cancelled":
			code = ErrRuntimeError
		case "InvalidModule":
			code = ErrInvalidModule
		}
	}
	return &Error{Code: code, Message: msg}
}

// DescribeValue renders a value for host-facing messages: scalar kinds in
// their literal form, strings by content, any other heap object as
// "[object]".
func DescribeValue(v value.Value) string {
	switch v.Tag {
	case value.KindNull:
		return "null"
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			return "true"
		}
		return "false"
	case value.KindI32:
		i, _ := v.AsI32()
		return fmt.Sprintf("%d", i)
	case value.KindI64:
		i, _ := v.AsI64()
		return fmt.Sprintf("%d", i)
	case value.KindF64:
		f, _ := v.AsF64()
		return fmt.Sprintf("%g", f)
	case value.KindHandle:
		h, _ := v.AsHandle()
		return fmt.Sprintf("%d", h)
	case value.KindPtr:
		if s, ok := gcheap.ObjectFor(v).(*gcheap.HeapString); ok {
			return s.String()
		}
		return "[object]"
	default:
		return "undefined"
	}
}
