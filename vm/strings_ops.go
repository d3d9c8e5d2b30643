package vm

import (
	"bytes"

	"github.com/emberlang/ember/builtins"
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

func (vm *Interpreter) asHeapString(v value.Value) (*gcheap.HeapString, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	s, ok := gcheap.ObjectFor(v).(*gcheap.HeapString)
	return s, ok
}

// stringsEqual implements the long-string equality rule: up to
// 16 bytes compares content directly, longer strings consult the cached
// hash first and only fall back to a byte compare on a collision.
func stringsEqual(a, b *gcheap.HeapString) bool {
	if a.Len() > 16 && b.Len() > 16 && a.Hash() != b.Hash() {
		return false
	}
	return a.String() == b.String()
}

// execString handles the string group: concatenation, length, the six
// comparisons, and ToString.
func (vm *Interpreter) execString(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t

	if op == OpSLen {
		s, ok := vm.asHeapString(vm.pop(t))
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "slen operand is not a string")
		}
		vm.push(t, value.I32(int32(s.Len())))
		return Outcome{}, false
	}

	if op == OpToString {
		return vm.execToString(ec)
	}

	b := vm.pop(t)
	a := vm.pop(t)

	if op == OpSConcat {
		as, aok := vm.asHeapString(a)
		bs, bok := vm.asHeapString(b)
		if !aok || !bok {
			return vm.fault(ec, exception.KindTypeError, "sconcat operands must be strings")
		}
		vm.push(t, vm.allocString(as.String()+bs.String()))
		return Outcome{}, false
	}

	as, aok := vm.asHeapString(a)
	bs, bok := vm.asHeapString(b)
	if !aok || !bok {
		return vm.fault(ec, exception.KindTypeError, "string comparison operands must be strings")
	}

	switch op {
	case OpSEq:
		vm.push(t, value.Bool(stringsEqual(as, bs)))
	case OpSNe:
		vm.push(t, value.Bool(!stringsEqual(as, bs)))
	case OpSLt:
		vm.push(t, value.Bool(bytes.Compare(as.Bytes(), bs.Bytes()) < 0))
	case OpSLe:
		vm.push(t, value.Bool(bytes.Compare(as.Bytes(), bs.Bytes()) <= 0))
	case OpSGt:
		vm.push(t, value.Bool(bytes.Compare(as.Bytes(), bs.Bytes()) > 0))
	case OpSGe:
		vm.push(t, value.Bool(bytes.Compare(as.Bytes(), bs.Bytes()) >= 0))
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid string opcode")
	}
	return Outcome{}, false
}

// execToString converts the popped value to its string representation,
// delegating numeric formatting to the same native strFromNumber the
// to_string builtin uses so both paths agree on formatting.
func (vm *Interpreter) execToString(ec *execCtx) (Outcome, bool) {
	t := ec.t
	v := vm.pop(t)

	switch {
	case v.IsNull():
		vm.push(t, vm.allocString("null"))
		return Outcome{}, false
	case v.IsBool():
		b, _ := v.AsBool()
		if b {
			vm.push(t, vm.allocString("true"))
		} else {
			vm.push(t, vm.allocString("false"))
		}
		return Outcome{}, false
	case v.IsI32(), v.IsI64(), v.IsF64():
		res := vm.Natives.Dispatch(builtins.StrFromNumber, vm.nativeContext(), t.ID, []value.Value{v})
		if res.Fault != nil {
			return vm.fault(ec, res.Fault.Kind, res.Fault.Message)
		}
		vm.push(t, res.Value)
		return Outcome{}, false
	}

	if s, ok := vm.asHeapString(v); ok {
		vm.push(t, vm.allocString(s.String()))
		return Outcome{}, false
	}

	if v.IsPtr() {
		switch gcheap.ObjectFor(v).(type) {
		case *gcheap.HeapArray:
			vm.push(t, vm.allocString("[array]"))
		case *gcheap.HeapObject:
			vm.push(t, vm.allocString("[object]"))
		case *gcheap.HeapMap:
			vm.push(t, vm.allocString("[map]"))
		case *gcheap.HeapSet:
			vm.push(t, vm.allocString("[set]"))
		case *gcheap.HeapClosure:
			vm.push(t, vm.allocString("[closure]"))
		default:
			vm.push(t, vm.allocString("[value]"))
		}
		return Outcome{}, false
	}

	vm.push(t, vm.allocString("[handle]"))
	return Outcome{}, false
}
