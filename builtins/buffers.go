package builtins

import (
	"encoding/binary"
	"math"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// Buffer natives (0x07xx): a fixed-size mutable byte array with
// little-endian i32/f64 accessors at byte offsets, layered over
// encoding/binary.
const (
	BufNew NativeID = RangeBuffer + iota
	BufLen
	BufGetI32
	BufSetI32
	BufGetF64
	BufSetF64
	BufGetByte
	BufSetByte
)

var bufferFuncs = []Func{
	BufNew % rangeSize:     bufNew,
	BufLen % rangeSize:     bufLen,
	BufGetI32 % rangeSize:  bufGetI32,
	BufSetI32 % rangeSize:  bufSetI32,
	BufGetF64 % rangeSize:  bufGetF64,
	BufSetF64 % rangeSize:  bufSetF64,
	BufGetByte % rangeSize: bufGetByte,
	BufSetByte % rangeSize: bufSetByte,
}

func asBuffer(v value.Value) (*gcheap.HeapBuffer, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	b, isBuf := gcheap.ObjectFor(v).(*gcheap.HeapBuffer)
	return b, isBuf
}

func bufNew(ctx *Context, taskID int64, args []value.Value) Result {
	size, isI32 := args[0].AsI32()
	if !isI32 || size < 0 {
		return fault(exception.KindTypeError, "buffer size must be a non-negative i32")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewBuffer(int(size))))
}

func bufLen(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.len receiver is not a buffer")
	}
	return okResult(value.I32(int32(b.Len())))
}

func bufGetI32(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.get_i32 receiver is not a buffer")
	}
	off, isI32 := args[1].AsI32()
	if !isI32 || off < 0 || int(off)+4 > b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.get_i32 offset out of range")
	}
	return okResult(value.I32(int32(binary.LittleEndian.Uint32(b.Bytes()[off : off+4]))))
}

func bufSetI32(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.set_i32 receiver is not a buffer")
	}
	off, offIsI32 := args[1].AsI32()
	val, valIsI32 := args[2].AsI32()
	if !offIsI32 || !valIsI32 || off < 0 || int(off)+4 > b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.set_i32 offset out of range")
	}
	binary.LittleEndian.PutUint32(b.Bytes()[off:off+4], uint32(val))
	return okResult(value.Null)
}

func bufGetF64(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.get_f64 receiver is not a buffer")
	}
	off, isI32 := args[1].AsI32()
	if !isI32 || off < 0 || int(off)+8 > b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.get_f64 offset out of range")
	}
	bits := binary.LittleEndian.Uint64(b.Bytes()[off : off+8])
	return okResult(value.F64(math.Float64frombits(bits)))
}

func bufSetF64(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.set_f64 receiver is not a buffer")
	}
	off, offIsI32 := args[1].AsI32()
	val, valIsF64 := args[2].AsF64()
	if !offIsI32 || !valIsF64 || off < 0 || int(off)+8 > b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.set_f64 offset out of range")
	}
	binary.LittleEndian.PutUint64(b.Bytes()[off:off+8], math.Float64bits(val))
	return okResult(value.Null)
}

func bufGetByte(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.get_byte receiver is not a buffer")
	}
	off, isI32 := args[1].AsI32()
	if !isI32 || off < 0 || int(off) >= b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.get_byte offset out of range")
	}
	return okResult(value.I32(int32(b.Bytes()[off])))
}

func bufSetByte(ctx *Context, taskID int64, args []value.Value) Result {
	b, isBuf := asBuffer(args[0])
	if !isBuf {
		return fault(exception.KindTypeError, "buffer.set_byte receiver is not a buffer")
	}
	off, offIsI32 := args[1].AsI32()
	val, valIsI32 := args[2].AsI32()
	if !offIsI32 || !valIsI32 || off < 0 || int(off) >= b.Len() {
		return fault(exception.KindIndexOutOfBounds, "buffer.set_byte offset out of range")
	}
	b.Bytes()[off] = byte(val)
	return okResult(value.Null)
}
