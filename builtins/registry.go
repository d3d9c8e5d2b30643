// Package builtins implements the native-call dispatch table: a static,
// range-partitioned table mapping a 16-bit native-id to a Go function,
// one range per heap/handle kind (object/array/string/mutex/channel/task/
// buffer/map/set/regexp/date/JSON). The hot NativeCall path is a range
// test, one lookup of that range's slice keyed by the range base, and a
// direct slice index; there is no vtable.
package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// NativeID is the 2-byte operand of the NativeCall opcode.
type NativeID uint16

// Range bases, one per heap/handle kind.
const (
	RangeObject NativeID = 0x0000
	RangeArray  NativeID = 0x0100
	RangeString NativeID = 0x0200
	RangeMutex  NativeID = 0x0300
	RangeChannel NativeID = 0x0400
	RangeTask   NativeID = 0x0500
	RangeBuffer NativeID = 0x0700
	RangeMap    NativeID = 0x0800
	RangeSet    NativeID = 0x0900
	RangeRegExp NativeID = 0x0A00
	RangeDate   NativeID = 0x0B00
	RangeJSON   NativeID = 0x0C00

	rangeSize = 0x0100
)

// StrOf recovers a string's content from a heap-pointer value for any
// native that must hash or compare by string content (map/set keys,
// string equality). It returns ok=false for non-string pointers.
type StrOf func(value.Value) (string, bool)

// Context is the fixed set of runtime resources every native may touch.
// It deliberately excludes the scheduler and task registry's mutation
// surface beyond what TaskCancel-style natives need, keeping builtins free
// of an import on package scheduler (which itself will depend on vm).
type Context struct {
	Heap    *gcheap.Heap
	Mutexes *mutexreg.Registry
	Tasks   *task.Registry
	StrOf   StrOf
}

// Result is what a native call hands back to the interpreter: either a
// value, a suspend request (mutex/channel contention), or a fault that
// enters the unwind protocol.
type Result struct {
	Value      value.Value
	Suspend    *task.SuspendReason
	WokePeer   int64 // a task the scheduler must re-enqueue as a side effect (mutex/channel handoff)
	HandoffVal value.Value
	HasHandoff bool
	WokeClosed []int64 // tasks to wake with a ChannelClosed failure (Channel.Close fans out to many)
	Fault      *exception.Fault
}

func okResult(v value.Value) Result { return Result{Value: v} }

func fault(kind exception.Kind, msg string) Result {
	f := exception.New(kind, msg)
	return Result{Fault: &f}
}

// Func is a single native implementation. taskID identifies the calling
// task, needed by mutex/channel natives for ownership and wait-queue
// bookkeeping.
type Func func(ctx *Context, taskID int64, args []value.Value) Result

// Table is the dispatch table: one slice per range, indexed by the native
// id's low byte.
type Table struct {
	ranges map[NativeID][]Func
}

// NewTable builds the fully populated dispatch table.
func NewTable() *Table {
	t := &Table{ranges: make(map[NativeID][]Func)}
	t.ranges[RangeObject] = objectFuncs
	t.ranges[RangeArray] = arrayFuncs
	t.ranges[RangeString] = stringFuncs
	t.ranges[RangeMutex] = mutexFuncs
	t.ranges[RangeChannel] = channelFuncs
	t.ranges[RangeTask] = taskFuncs
	t.ranges[RangeBuffer] = bufferFuncs
	t.ranges[RangeMap] = mapFuncs
	t.ranges[RangeSet] = setFuncs
	t.ranges[RangeRegExp] = regexpFuncs
	t.ranges[RangeDate] = dateFuncs
	t.ranges[RangeJSON] = jsonFuncs
	return t
}

// Dispatch resolves a native-id to its range by a range test, then
// indexes directly into that range's slice.
func (t *Table) Dispatch(id NativeID, ctx *Context, taskID int64, args []value.Value) Result {
	base := id - (id % rangeSize)
	fns, ok := t.ranges[base]
	if !ok {
		return fault(exception.KindRuntimeError, "unknown native range")
	}
	idx := int(id % rangeSize)
	if idx < 0 || idx >= len(fns) || fns[idx] == nil {
		return fault(exception.KindRuntimeError, "unknown native id")
	}
	return fns[idx](ctx, taskID, args)
}
