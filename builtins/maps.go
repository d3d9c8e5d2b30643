package builtins

import (
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// Map natives (0x08xx), over HeapMap's insertion-ordered, value-equality
// keying (content-equal strings collide as the same key via ctx.StrOf).
const (
	MapNew NativeID = RangeMap + iota
	MapLen
	MapGet
	MapSet
	MapDelete
	MapHas
	MapKeys
	MapValues
)

var mapFuncs = []Func{
	MapNew % rangeSize:    mapNew,
	MapLen % rangeSize:    mapLen,
	MapGet % rangeSize:    mapGet,
	MapSet % rangeSize:    mapSet,
	MapDelete % rangeSize: mapDelete,
	MapHas % rangeSize:    mapHas,
	MapKeys % rangeSize:   mapKeys,
	MapValues % rangeSize: mapValues,
}

func asMap(v value.Value) (*gcheap.HeapMap, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	m, isMap := gcheap.ObjectFor(v).(*gcheap.HeapMap)
	return m, isMap
}

func mapNew(ctx *Context, taskID int64, args []value.Value) Result {
	return okResult(ctx.Heap.Allocate(gcheap.NewMap()))
}

func mapLen(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.len receiver is not a map")
	}
	return okResult(value.I32(int32(m.Len())))
}

func mapGet(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.get receiver is not a map")
	}
	v, found := m.Get(args[1], ctx.StrOf)
	if !found {
		return okResult(value.Null)
	}
	return okResult(v)
}

func mapSet(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.set receiver is not a map")
	}
	m.Set(args[1], args[2], ctx.StrOf)
	return okResult(value.Null)
}

func mapDelete(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.delete receiver is not a map")
	}
	return okResult(value.Bool(m.Delete(args[1], ctx.StrOf)))
}

func mapHas(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.has receiver is not a map")
	}
	_, found := m.Get(args[1], ctx.StrOf)
	return okResult(value.Bool(found))
}

func mapKeys(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.keys receiver is not a map")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(0, append([]value.Value{}, m.Keys()...))))
}

func mapValues(ctx *Context, taskID int64, args []value.Value) Result {
	m, isMap := asMap(args[0])
	if !isMap {
		return fault(exception.KindTypeError, "map.values receiver is not a map")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(0, append([]value.Value{}, m.Values()...))))
}
