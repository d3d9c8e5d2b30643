package builtins

import (
	"encoding/json"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// JSON natives (0x0Cxx), layered on encoding/json with a
// Value<->interface{} bridge either side of the stdlib codec.
const (
	JSONParse NativeID = RangeJSON + iota
	JSONStringify
)

var jsonFuncs = []Func{
	JSONParse % rangeSize:     jsonParse,
	JSONStringify % rangeSize: jsonStringify,
}

func jsonParse(ctx *Context, taskID int64, args []value.Value) Result {
	s, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "json.parse argument must be a string")
	}
	var decoded any
	if err := json.Unmarshal(s.Bytes(), &decoded); err != nil {
		return fault(exception.KindRuntimeError, "invalid JSON: "+err.Error())
	}
	return okResult(jsonToValue(ctx, decoded))
}

func jsonToValue(ctx *Context, v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null
	case bool:
		return value.Bool(t)
	case float64:
		return value.F64(t)
	case string:
		return ctx.Heap.Allocate(gcheap.NewString(t))
	case []any:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			elems[i] = jsonToValue(ctx, e)
		}
		return ctx.Heap.Allocate(gcheap.NewArray(0, elems))
	case map[string]any:
		m := gcheap.NewMap()
		for k, e := range t {
			key := ctx.Heap.Allocate(gcheap.NewString(k))
			m.Set(key, jsonToValue(ctx, e), ctx.StrOf)
		}
		return ctx.Heap.Allocate(m)
	default:
		return value.Null
	}
}

func jsonStringify(ctx *Context, taskID int64, args []value.Value) Result {
	native, err := valueToJSON(ctx, args[0])
	if err != nil {
		return fault(exception.KindRuntimeError, err.Error())
	}
	encoded, err := json.Marshal(native)
	if err != nil {
		return fault(exception.KindRuntimeError, "json.stringify: "+err.Error())
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(string(encoded))))
}

func valueToJSON(ctx *Context, v value.Value) (any, error) {
	switch {
	case v.IsNull():
		return nil, nil
	case v.IsBool():
		b, _ := v.AsBool()
		return b, nil
	case v.IsI32():
		n, _ := v.AsI32()
		return n, nil
	case v.IsI64():
		n, _ := v.AsI64()
		return n, nil
	case v.IsF64():
		f, _ := v.AsF64()
		return f, nil
	case v.IsPtr():
		return ptrToJSON(ctx, v)
	default:
		return nil, errUnsupportedJSONValue
	}
}

var errUnsupportedJSONValue = jsonErr("value cannot be represented as JSON")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }

func ptrToJSON(ctx *Context, v value.Value) (any, error) {
	switch obj := gcheap.ObjectFor(v).(type) {
	case *gcheap.HeapString:
		return obj.String(), nil
	case *gcheap.HeapArray:
		out := make([]any, obj.Len())
		for i, e := range obj.Elements() {
			conv, err := valueToJSON(ctx, e)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case *gcheap.HeapMap:
		out := make(map[string]any, obj.Len())
		keys := obj.Keys()
		vals := obj.Values()
		for i, k := range keys {
			keyStr, isStr := ctx.StrOf(k)
			if !isStr {
				return nil, jsonErr("json.stringify: map key is not a string")
			}
			conv, err := valueToJSON(ctx, vals[i])
			if err != nil {
				return nil, err
			}
			out[keyStr] = conv
		}
		return out, nil
	default:
		return nil, errUnsupportedJSONValue
	}
}
