package builtins

import (
	"strconv"
	"strings"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// String natives (0x02xx), operating on HeapString's cached-hash
// immutable bytes.
const (
	StrLen NativeID = RangeString + iota
	StrConcat
	StrSlice
	StrUpper
	StrLower
	StrCompare
	StrToNumber
	StrFromNumber
	StrHash
	StrCrypt
	StrRipemd160
	StrArgon2
)

var stringFuncs = []Func{
	StrLen % rangeSize:        strLen,
	StrConcat % rangeSize:     strConcat,
	StrSlice % rangeSize:      strSlice,
	StrUpper % rangeSize:      strUpper,
	StrLower % rangeSize:      strLower,
	StrCompare % rangeSize:    strCompare,
	StrToNumber % rangeSize:   strToNumber,
	StrFromNumber % rangeSize: strFromNumber,
	StrHash % rangeSize:       strHash,
	StrCrypt % rangeSize:      strCrypt,
	StrRipemd160 % rangeSize:  strRipemd160,
	StrArgon2 % rangeSize:     strArgon2,
}

func asString(v value.Value) (*gcheap.HeapString, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	s, isStr := gcheap.ObjectFor(v).(*gcheap.HeapString)
	return s, isStr
}

func strLen(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.len receiver is not a string")
	}
	return okResult(value.I32(int32(s.Len())))
}

func strConcat(ctx *Context, taskID int64, args []value.Value) Result {
	a, aIsStr := asString(args[0])
	b, bIsStr := asString(args[1])
	if !aIsStr || !bIsStr {
		return fault(exception.KindTypeError, "string.concat operands must be strings")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(a.String() + b.String())))
}

func strSlice(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.slice receiver is not a string")
	}
	start, startIsI32 := args[1].AsI32()
	end, endIsI32 := args[2].AsI32()
	if !startIsI32 || !endIsI32 {
		return fault(exception.KindTypeError, "string.slice bounds must be i32")
	}
	str := s.String()
	if start < 0 || end > int32(len(str)) || start > end {
		return fault(exception.KindIndexOutOfBounds, "string.slice range out of bounds")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(str[start:end])))
}

func strUpper(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.upper receiver is not a string")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(strings.ToUpper(s.String()))))
}

func strLower(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.lower receiver is not a string")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(strings.ToLower(s.String()))))
}

// strCompare matches the Seq opcode's long-string equality path: strings
// of up to 16 bytes are compared directly, longer ones via the cached hash
// first as a fast mismatch check, falling back to a byte compare on a hash
// collision.
func strCompare(ctx *Context, taskID int64, args []value.Value) Result {
	a, aIsStr := asString(args[0])
	b, bIsStr := asString(args[1])
	if !aIsStr || !bIsStr {
		return fault(exception.KindTypeError, "string.compare operands must be strings")
	}
	if a.Len() > 16 && b.Len() > 16 && a.Hash() != b.Hash() {
		return okResult(value.Bool(false))
	}
	return okResult(value.Bool(a.String() == b.String()))
}

func strToNumber(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.to_number receiver is not a string")
	}
	if f, err := strconv.ParseFloat(s.String(), 64); err == nil {
		return okResult(value.F64(f))
	}
	return fault(exception.KindRuntimeError, "string is not numeric")
}

// strFromNumber implements the runtime's float-to-string formatting: shortest
// round-trip decimal for magnitudes under 1e15, exponential notation at or
// above it.
func strFromNumber(ctx *Context, taskID int64, args []value.Value) Result {
	var s string
	switch {
	case args[0].IsI32():
		n, _ := args[0].AsI32()
		s = strconv.FormatInt(int64(n), 10)
	case args[0].IsI64():
		n, _ := args[0].AsI64()
		s = strconv.FormatInt(n, 10)
	case args[0].IsF64():
		f, _ := args[0].AsF64()
		if f != 0 && (f >= 1e15 || f <= -1e15) {
			s = strconv.FormatFloat(f, 'e', -1, 64)
		} else {
			s = strconv.FormatFloat(f, 'f', -1, 64)
		}
	default:
		return fault(exception.KindTypeError, "to_string argument is not a number")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(s)))
}

func strHash(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "string.hash receiver is not a string")
	}
	return okResult(value.Handle(s.Hash()))
}
