package vm

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// fault converts a primitive-opcode fault into the unwind protocol:
// catchable kinds become an opaque string exception value and enter
// raise(); fatal kinds panic, to be caught by Run's top-level recover and
// surfaced straight to the host.
func (vm *Interpreter) fault(ec *execCtx, kind exception.Kind, msg string) (Outcome, bool) {
	f := exception.New(kind, msg)
	if kind.Fatal() {
		panic(f)
	}
	return vm.raise(ec, vm.allocString(f.Error()))
}

// raise implements the unwind protocol.
func (vm *Interpreter) raise(ec *execCtx, excVal value.Value) (Outcome, bool) {
	t := ec.t
	vm.attachStackTrace(t, excVal)

	for {
		if len(t.Handlers) == 0 {
			return vm.failTask(ec, excVal), true
		}
		h := t.Handlers[len(t.Handlers)-1]

		if h.FrameCount < len(t.Frames) {
			// The handler lives in a caller frame: unwind this call frame
			// and propagate by looping back to step 1 with a shallower
			// frame count. A closure-call frame owns the top of the
			// closure stack, so it is popped here just as doReturn pops
			// it on a normal return — otherwise LoadCaptured after the
			// unwind would resolve against the dead callee's closure.
			discarded := t.Frames[len(t.Frames)-1]
			t.Frames = t.Frames[:len(t.Frames)-1]
			if discarded.HasClosure && len(t.ClosureStack) > 0 {
				t.ClosureStack = t.ClosureStack[:len(t.ClosureStack)-1]
			}
			if len(t.Frames) == 0 {
				return vm.failTask(ec, excVal), true
			}
			continue
		}

		if len(t.Stack) > h.StackDepth {
			t.Stack = t.Stack[:h.StackDepth]
		}

		for t.HeldMutexCount() > h.MutexCount {
			id, ok := t.PopHeldMutex()
			if !ok {
				break
			}
			if next, woke := vm.Mutexes.ForceRelease(id); woke {
				vm.wakeMutexWaiter(ec, next, id)
			}
		}

		if h.CatchOffset != exception.NoOffset {
			t.Handlers = t.Handlers[:len(t.Handlers)-1]
			t.CaughtException = excVal
			t.HasCaughtException = true
			vm.push(t, excVal)
			vm.currentFrame(t).IP = h.CatchOffset
			return Outcome{}, false
		}
		if h.FinallyOffset != exception.NoOffset {
			t.Handlers = t.Handlers[:len(t.Handlers)-1]
			t.CurrentException = excVal
			t.HasCurrentException = true
			vm.currentFrame(t).IP = h.FinallyOffset
			return Outcome{}, false
		}
		t.Handlers = t.Handlers[:len(t.Handlers)-1]
	}
}

// execException handles Try/EndTry/Throw/Rethrow.
func (vm *Interpreter) execException(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpTry:
		catchOff := vm.fetchI16(t)
		finallyOff := vm.fetchI16(t)
		t.Handlers = append(t.Handlers, exception.Handler{
			CatchOffset:   int(catchOff),
			FinallyOffset: int(finallyOff),
			StackDepth:    len(t.Stack),
			FrameCount:    len(t.Frames),
			MutexCount:    t.HeldMutexCount(),
		})
		return Outcome{}, false

	case OpEndTry:
		if len(t.Handlers) > 0 {
			t.Handlers = t.Handlers[:len(t.Handlers)-1]
		}
		return Outcome{}, false

	case OpThrow:
		v := vm.pop(t)
		return vm.raise(ec, v)

	case OpRethrow:
		if t.HasCaughtException {
			return vm.raise(ec, t.CaughtException)
		}
		return vm.raise(ec, vm.stringException("rethrow with no caught exception"))

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid exception opcode")
	}
}

// attachStackTrace attaches a stack trace to Error-classed values: when
// the thrown value's class (or a parent) is one of exception.ErrorClassNames,
// resolve the current frame chain and write a multi-line trace string into
// the object's conventional field index 2.
func (vm *Interpreter) attachStackTrace(t *task.Task, thrown value.Value) {
	if !thrown.IsPtr() {
		return
	}
	obj, isObj := gcheap.ObjectFor(thrown).(*gcheap.HeapObject)
	if !isObj || !vm.isErrorClass(t, obj.ClassID) {
		return
	}

	frames := make([]exception.Frame, 0, len(t.Frames))
	for i := len(t.Frames) - 1; i >= 0; i-- {
		fr := t.Frames[i]
		name := t.Module.FunctionName(fr.FunctionID)
		line, col, ok := t.Module.ResolveLine(fr.FunctionID, fr.IP)
		source := ""
		if ok && t.Module.Debug != nil && fr.FunctionID < uint32(len(t.Module.Debug.Functions)) {
			dbgFn := t.Module.Debug.Functions[fr.FunctionID]
			if dbgFn.SourceFile >= 0 && dbgFn.SourceFile < len(t.Module.Debug.SourceFiles) {
				source = t.Module.Debug.SourceFiles[dbgFn.SourceFile]
			}
		}
		frames = append(frames, exception.Frame{FunctionName: name, SourceFile: source, Line: line, Column: col})
	}

	if len(obj.Fields) > 2 {
		obj.Fields[2] = vm.allocString(exception.FormatTrace(frames))
	}
}

func (vm *Interpreter) isErrorClass(t *task.Task, classID uint32) bool {
	for {
		if int(classID) >= len(t.Module.Classes) {
			return false
		}
		c := t.Module.Classes[classID]
		if exception.ErrorClassNames[c.Name] {
			return true
		}
		if c.ParentID == module.NoParent {
			return false
		}
		classID = uint32(c.ParentID)
	}
}
