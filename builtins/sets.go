package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// Set natives (0x09xx), sharing HeapMap's keying scheme. A generic
// comparable-constrained set type cannot serve here: sets key by
// value-equality across heap-string content, not by Go's `comparable`
// constraint, so the keyOf projection in gcheap does the keying.
const (
	SetNew NativeID = RangeSet + iota
	SetLen
	SetHas
	SetAdd
	SetRemove
	SetValues
)

var setFuncs = []Func{
	SetNew % rangeSize:    setNew,
	SetLen % rangeSize:    setLen,
	SetHas % rangeSize:    setHas,
	SetAdd % rangeSize:    setAdd,
	SetRemove % rangeSize: setRemove,
	SetValues % rangeSize: setValues,
}

func asSet(v value.Value) (*gcheap.HeapSet, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	s, isSet := gcheap.ObjectFor(v).(*gcheap.HeapSet)
	return s, isSet
}

func setNew(ctx *Context, taskID int64, args []value.Value) Result {
	return okResult(ctx.Heap.Allocate(gcheap.NewSet()))
}

func setLen(ctx *Context, taskID int64, args []value.Value) Result {
	s, isSet := asSet(args[0])
	if !isSet {
		return fault(exception.KindTypeError, "set.len receiver is not a set")
	}
	return okResult(value.I32(int32(s.Len())))
}

func setHas(ctx *Context, taskID int64, args []value.Value) Result {
	s, isSet := asSet(args[0])
	if !isSet {
		return fault(exception.KindTypeError, "set.has receiver is not a set")
	}
	return okResult(value.Bool(s.Has(args[1], ctx.StrOf)))
}

func setAdd(ctx *Context, taskID int64, args []value.Value) Result {
	s, isSet := asSet(args[0])
	if !isSet {
		return fault(exception.KindTypeError, "set.add receiver is not a set")
	}
	return okResult(value.Bool(s.Add(args[1], ctx.StrOf)))
}

func setRemove(ctx *Context, taskID int64, args []value.Value) Result {
	s, isSet := asSet(args[0])
	if !isSet {
		return fault(exception.KindTypeError, "set.remove receiver is not a set")
	}
	return okResult(value.Bool(s.Remove(args[1], ctx.StrOf)))
}

func setValues(ctx *Context, taskID int64, args []value.Value) Result {
	s, isSet := asSet(args[0])
	if !isSet {
		return fault(exception.KindTypeError, "set.values receiver is not a set")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(0, s.Values())))
}
