package builtins

import (
	"time"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/value"
)

// Date natives (0x0Bxx). Dates are represented as an i64 Unix millisecond
// timestamp rather than a heap object.
const (
	DateNow NativeID = RangeDate + iota
	DateYear
	DateMonth
	DateDay
	DateHour
	DateMinute
	DateSecond
	DateFromParts
)

var dateFuncs = []Func{
	DateNow % rangeSize:       dateNow,
	DateYear % rangeSize:      dateYear,
	DateMonth % rangeSize:     dateMonth,
	DateDay % rangeSize:       dateDay,
	DateHour % rangeSize:      dateHour,
	DateMinute % rangeSize:    dateMinute,
	DateSecond % rangeSize:    dateSecond,
	DateFromParts % rangeSize: dateFromParts,
}

func dateNow(ctx *Context, taskID int64, args []value.Value) Result {
	return okResult(value.I64(time.Now().UnixMilli()))
}

func asTime(v value.Value) (time.Time, bool) {
	ms, isI64 := v.AsI64()
	if !isI64 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func dateYear(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.year receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Year())))
}

func dateMonth(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.month receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Month())))
}

func dateDay(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.day receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Day())))
}

func dateHour(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.hour receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Hour())))
}

func dateMinute(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.minute receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Minute())))
}

func dateSecond(ctx *Context, taskID int64, args []value.Value) Result {
	t, isTime := asTime(args[0])
	if !isTime {
		return fault(exception.KindTypeError, "date.second receiver is not a timestamp")
	}
	return okResult(value.I32(int32(t.Second())))
}

func dateFromParts(ctx *Context, taskID int64, args []value.Value) Result {
	if len(args) != 6 {
		return fault(exception.KindRuntimeError, "date.from_parts takes 6 arguments")
	}
	var parts [6]int32
	for i, a := range args {
		n, isI32 := a.AsI32()
		if !isI32 {
			return fault(exception.KindTypeError, "date.from_parts arguments must be i32")
		}
		parts[i] = n
	}
	t := time.Date(int(parts[0]), time.Month(parts[1]), int(parts[2]), int(parts[3]), int(parts[4]), int(parts[5]), 0, time.UTC)
	return okResult(value.I64(t.UnixMilli()))
}
