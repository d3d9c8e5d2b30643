package vm

import (
	"encoding/binary"
	"math"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// push/pop/peek operate on the task's shared operand stack. Underflow is
// a fatal, non-catchable fault (it means compiler-emitted bytecode is
// wrong): these panic rather than return an error, and Run's deferred
// recover turns the panic into a fatal Outcome.

func (vm *Interpreter) push(t *task.Task, v value.Value) {
	t.Stack = append(t.Stack, v)
}

func (vm *Interpreter) pop(t *task.Task) value.Value {
	n := len(t.Stack)
	if n == 0 {
		panic(exception.New(exception.KindStackUnderflow, "pop from empty stack"))
	}
	v := t.Stack[n-1]
	t.Stack = t.Stack[:n-1]
	return v
}

func (vm *Interpreter) peek(t *task.Task, offset int) value.Value {
	i := len(t.Stack) - 1 - offset
	if i < 0 {
		panic(exception.New(exception.KindStackUnderflow, "peek past empty stack"))
	}
	return t.Stack[i]
}

func (vm *Interpreter) setAt(t *task.Task, offset int, v value.Value) {
	i := len(t.Stack) - 1 - offset
	if i < 0 {
		panic(exception.New(exception.KindStackUnderflow, "set past empty stack"))
	}
	t.Stack[i] = v
}

func (vm *Interpreter) depth(t *task.Task) int { return len(t.Stack) }

// fetchByte/fetchU16/fetchI16/fetchU32/fetchF64 read inline operands from
// the current frame's bytecode, little-endian.

func (vm *Interpreter) fetchByte(t *task.Task) byte {
	f := vm.currentFrame(t)
	b := t.Module.Functions[f.FunctionID].Code[f.IP]
	f.IP++
	return b
}

func (vm *Interpreter) fetchU16(t *task.Task) uint16 {
	f := vm.currentFrame(t)
	code := t.Module.Functions[f.FunctionID].Code
	v := binary.LittleEndian.Uint16(code[f.IP:])
	f.IP += 2
	return v
}

func (vm *Interpreter) fetchI16(t *task.Task) int16 {
	return int16(vm.fetchU16(t))
}

func (vm *Interpreter) fetchU32(t *task.Task) uint32 {
	f := vm.currentFrame(t)
	code := t.Module.Functions[f.FunctionID].Code
	v := binary.LittleEndian.Uint32(code[f.IP:])
	f.IP += 4
	return v
}

func (vm *Interpreter) fetchF64(t *task.Task) float64 {
	f := vm.currentFrame(t)
	code := t.Module.Functions[f.FunctionID].Code
	bits := binary.LittleEndian.Uint64(code[f.IP:])
	f.IP += 8
	return math.Float64frombits(bits)
}

func (vm *Interpreter) allocString(s string) value.Value {
	return vm.Heap.Allocate(gcheap.NewString(s))
}
