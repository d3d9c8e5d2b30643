package vm

import (
	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// popArgs pops n values off the stack and returns them in their original
// left-to-right push order.
func (vm *Interpreter) popArgs(t *task.Task, n int) []value.Value {
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = vm.pop(t)
	}
	return args
}

func (vm *Interpreter) pushFrame(t *task.Task, fn *module.Function, functionID uint32, args []value.Value, ownerClassID int32) {
	localsBase := len(t.Stack)
	locals := make([]value.Value, fn.LocalCount)
	copy(locals, args)
	t.Stack = append(t.Stack, locals...)
	t.Frames = append(t.Frames, task.Frame{
		FunctionID:   functionID,
		LocalsBase:   localsBase,
		OwnerClassID: ownerClassID,
	})
}

// execCall handles Call, CallMethod, CallConstructor and CallSuper. Each simply pushes a new task.Frame and lets the flat
// fetch loop continue into it; the callee's Return/fall-off-end eventually
// pops it via doReturn.
func (vm *Interpreter) execCall(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	switch op {
	case OpCall:
		functionID := vm.fetchU32(t)
		argc := int(vm.fetchU16(t))

		if functionID == ClosureCallSentinel {
			args := vm.popArgs(t, argc)
			closureVal := vm.pop(t)
			closure, ok := gcheap.ObjectFor(closureVal).(*gcheap.HeapClosure)
			if !ok {
				return vm.fault(ec, exception.KindTypeError, "call target is not a closure")
			}
			fn := &t.Module.Functions[closure.FunctionID]
			localsBase := len(t.Stack)
			locals := make([]value.Value, fn.LocalCount)
			copy(locals, args)
			t.Stack = append(t.Stack, locals...)
			t.ClosureStack = append(t.ClosureStack, closureVal)
			t.Frames = append(t.Frames, task.Frame{
				FunctionID:   closure.FunctionID,
				LocalsBase:   localsBase,
				HasClosure:   true,
				OwnerClassID: module.NoParent,
			})
			return Outcome{}, false
		}

		if int(functionID) >= len(t.Module.Functions) {
			return vm.fault(ec, exception.KindInvalidModule, "call to undefined function")
		}
		args := vm.popArgs(t, argc)
		vm.pushFrame(t, &t.Module.Functions[functionID], functionID, args, module.NoParent)
		return Outcome{}, false

	case OpCallMethod:
		methodIndex := int(vm.fetchU16(t))
		argc := int(vm.fetchByte(t))
		args := vm.popArgs(t, argc)
		receiver := vm.pop(t)
		return vm.dispatchMethod(ec, receiver, methodIndex, args)

	case OpCallConstructor:
		classID := vm.fetchU32(t)
		argc := int(vm.fetchU16(t))
		args := vm.popArgs(t, argc)

		if int(classID) >= len(t.Module.Classes) {
			return vm.fault(ec, exception.KindInvalidModule, "construct of undefined class")
		}
		class := &t.Module.Classes[classID]
		objVal := vm.Heap.Allocate(gcheap.NewObject(classID, class.FieldCount))

		if class.ConstructorID == module.NoConstructor {
			vm.push(t, objVal)
			return Outcome{}, false
		}
		fn := &t.Module.Functions[class.ConstructorID]
		localsBase := len(t.Stack)
		locals := make([]value.Value, fn.LocalCount)
		if fn.LocalCount > 0 {
			locals[0] = objVal
		}
		copy(locals[1:], args)
		t.Stack = append(t.Stack, locals...)
		t.Frames = append(t.Frames, task.Frame{
			FunctionID:   uint32(class.ConstructorID),
			LocalsBase:   localsBase,
			ReturnsThis:  true,
			ThisValue:    objVal,
			OwnerClassID: int32(classID),
		})
		return Outcome{}, false

	case OpCallSuper:
		argc := int(vm.fetchU16(t))
		args := vm.popArgs(t, argc)

		frame := vm.currentFrame(t)
		if frame.OwnerClassID == module.NoParent {
			return vm.fault(ec, exception.KindRuntimeError, "super call outside a method or constructor")
		}
		if int(frame.OwnerClassID) >= len(t.Module.Classes) {
			return vm.fault(ec, exception.KindInvalidModule, "super call from undefined class")
		}
		class := &t.Module.Classes[frame.OwnerClassID]
		if class.ParentID == module.NoParent {
			return vm.fault(ec, exception.KindRuntimeError, "super call with no superclass")
		}
		parent := &t.Module.Classes[class.ParentID]
		if parent.ConstructorID == module.NoConstructor {
			return vm.fault(ec, exception.KindRuntimeError, "superclass has no constructor")
		}

		thisVal := t.Stack[frame.LocalsBase]
		fn := &t.Module.Functions[parent.ConstructorID]
		localsBase := len(t.Stack)
		locals := make([]value.Value, fn.LocalCount)
		if fn.LocalCount > 0 {
			locals[0] = thisVal
		}
		copy(locals[1:], args)
		t.Stack = append(t.Stack, locals...)
		t.Frames = append(t.Frames, task.Frame{
			FunctionID:   uint32(parent.ConstructorID),
			LocalsBase:   localsBase,
			ReturnsThis:  true,
			ThisValue:    thisVal,
			OwnerClassID: class.ParentID,
		})
		return Outcome{}, false

	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid call opcode")
	}
}

// dispatchMethod resolves CallMethod's receiver: a class instance dispatches
// through the module's vtable, anything else (array/string/map/set/buffer/
// regexp) dispatches as a native call, treating methodIndex as an offset
// into that heap kind's native range.
func (vm *Interpreter) dispatchMethod(ec *execCtx, receiver value.Value, methodIndex int, args []value.Value) (Outcome, bool) {
	t := ec.t

	if receiver.IsPtr() {
		if obj, ok := gcheap.ObjectFor(receiver).(*gcheap.HeapObject); ok {
			functionID, found := t.Module.ResolveMethod(obj.ClassID, methodIndex)
			if !found {
				return vm.fault(ec, exception.KindInvalidModule, "unresolved method index")
			}
			fullArgs := make([]value.Value, 0, len(args)+1)
			fullArgs = append(fullArgs, receiver)
			fullArgs = append(fullArgs, args...)
			fn := &t.Module.Functions[functionID]
			localsBase := len(t.Stack)
			locals := make([]value.Value, fn.LocalCount)
			copy(locals, fullArgs)
			t.Stack = append(t.Stack, locals...)
			t.Frames = append(t.Frames, task.Frame{
				FunctionID:   functionID,
				LocalsBase:   localsBase,
				OwnerClassID: int32(obj.ClassID),
			})
			return Outcome{}, false
		}
	}

	base, ok := nativeRangeFor(receiver)
	if !ok {
		return vm.fault(ec, exception.KindTypeError, "method call on a value with no methods")
	}
	fullArgs := make([]value.Value, 0, len(args)+1)
	fullArgs = append(fullArgs, receiver)
	fullArgs = append(fullArgs, args...)
	return vm.invokeNative(ec, base+builtins.NativeID(methodIndex), fullArgs)
}

func nativeRangeFor(v value.Value) (builtins.NativeID, bool) {
	if !v.IsPtr() {
		return 0, false
	}
	switch gcheap.ObjectFor(v).(type) {
	case *gcheap.HeapArray:
		return builtins.RangeArray, true
	case *gcheap.HeapString:
		return builtins.RangeString, true
	case *gcheap.HeapObject:
		return builtins.RangeObject, true
	case *gcheap.HeapBuffer:
		return builtins.RangeBuffer, true
	case *gcheap.HeapMap:
		return builtins.RangeMap, true
	case *gcheap.HeapSet:
		return builtins.RangeSet, true
	case *gcheap.HeapRegExp:
		return builtins.RangeRegExp, true
	default:
		return 0, false
	}
}

// doReturn pops the current call frame, restoring the caller's stack depth
// and pushing the return value (or, for a constructor/super frame, the
// constructed "this"). Returning from the outermost frame completes the
// task instead.
func (vm *Interpreter) doReturn(ec *execCtx, retVal value.Value) (Outcome, bool) {
	t := ec.t
	callee := t.Frames[len(t.Frames)-1]
	t.Frames = t.Frames[:len(t.Frames)-1]

	if callee.HasClosure && len(t.ClosureStack) > 0 {
		t.ClosureStack = t.ClosureStack[:len(t.ClosureStack)-1]
	}
	if len(t.Stack) > callee.LocalsBase {
		t.Stack = t.Stack[:callee.LocalsBase]
	}

	result := retVal
	if callee.ReturnsThis {
		result = callee.ThisValue
	}

	if len(t.Frames) == 0 {
		return vm.completeTask(ec, result), true
	}
	vm.push(t, result)
	return Outcome{}, false
}
