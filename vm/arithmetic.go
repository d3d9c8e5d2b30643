package vm

import (
	"math"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

func asInt(v value.Value) (val int64, wide bool, ok bool) {
	if v.IsI32() {
		i, _ := v.AsI32()
		return int64(i), false, true
	}
	if v.IsI64() {
		i, _ := v.AsI64()
		return i, true, true
	}
	return 0, false, false
}

func intResult(v int64, wide bool) value.Value {
	if wide {
		return value.I64(v)
	}
	return value.I32(int32(v))
}

// execIntArith handles the wrapping integer arithmetic/bitwise group.
// Division and modulo by zero are
// runtime errors, not panics; the width of the result follows the widest
// operand (either operand i64 promotes the result to i64).
func (vm *Interpreter) execIntArith(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t

	if op == OpINeg || op == OpINot {
		v, wide, ok := asInt(vm.pop(t))
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "operand is not an integer")
		}
		if op == OpINeg {
			return vm.pushInt(t, -v, wide)
		}
		return vm.pushInt(t, ^v, wide)
	}

	bv, bw, bok := asInt(vm.pop(t))
	av, aw, aok := asInt(vm.pop(t))
	if !aok || !bok {
		return vm.fault(ec, exception.KindTypeError, "operand is not an integer")
	}
	wide := aw || bw

	switch op {
	case OpIAdd:
		return vm.pushInt(t, av+bv, wide)
	case OpISub:
		return vm.pushInt(t, av-bv, wide)
	case OpIMul:
		return vm.pushInt(t, av*bv, wide)
	case OpIDiv:
		if bv == 0 {
			return vm.fault(ec, exception.KindDivisionByZero, "integer division by zero")
		}
		if bv == -1 && ((wide && av == minInt64) || (!wide && av == int64(minInt32))) {
			return vm.pushInt(t, av, wide) // MININT / -1 overflows; wraps back to MININT
		}
		return vm.pushInt(t, av/bv, wide)
	case OpIMod:
		if bv == 0 {
			return vm.fault(ec, exception.KindDivisionByZero, "integer modulo by zero")
		}
		return vm.pushInt(t, av%bv, wide)
	case OpIPow:
		return vm.pushInt(t, intPow(av, bv), wide)
	case OpIShl:
		return vm.pushInt(t, av<<(uint(bv)&31), wide)
	case OpIShr:
		return vm.pushInt(t, av>>(uint(bv)&31), wide)
	case OpIUShr:
		return vm.pushInt(t, int64(uint64(av)>>(uint(bv)&31)), wide)
	case OpIAnd:
		return vm.pushInt(t, av&bv, wide)
	case OpIOr:
		return vm.pushInt(t, av|bv, wide)
	case OpIXor:
		return vm.pushInt(t, av^bv, wide)
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid integer opcode")
	}
}

const minInt32 = int32(-2147483648)
const minInt64 = int64(-9223372036854775808)

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	var result int64 = 1
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func (vm *Interpreter) pushInt(t *task.Task, v int64, wide bool) (Outcome, bool) {
	vm.push(t, intResult(v, wide))
	return Outcome{}, false
}

// execIntCompare handles the integer comparison group.
func (vm *Interpreter) execIntCompare(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	bv, _, bok := asInt(vm.pop(t))
	av, _, aok := asInt(vm.pop(t))
	if !aok || !bok {
		return vm.fault(ec, exception.KindTypeError, "operand is not an integer")
	}
	var result bool
	switch op {
	case OpIEq:
		result = av == bv
	case OpINe:
		result = av != bv
	case OpILt:
		result = av < bv
	case OpILe:
		result = av <= bv
	case OpIGt:
		result = av > bv
	case OpIGe:
		result = av >= bv
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid integer comparison opcode")
	}
	vm.push(t, value.Bool(result))
	return Outcome{}, false
}

func asFloat(v value.Value) (float64, bool) {
	if v.IsF64() {
		f, _ := v.AsF64()
		return f, true
	}
	if i, _, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// execFloatArith handles the float arithmetic and comparison group: NaN/Inf propagate exactly as Go's math ops
// already produce them, no trapping.
func (vm *Interpreter) execFloatArith(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t

	if op == OpFNeg {
		v, ok := asFloat(vm.pop(t))
		if !ok {
			return vm.fault(ec, exception.KindTypeError, "operand is not a number")
		}
		vm.push(t, value.F64(-v))
		return Outcome{}, false
	}

	b, bok := asFloat(vm.pop(t))
	a, aok := asFloat(vm.pop(t))
	if !aok || !bok {
		return vm.fault(ec, exception.KindTypeError, "operand is not a number")
	}

	switch op {
	case OpFAdd:
		vm.push(t, value.F64(a+b))
	case OpFSub:
		vm.push(t, value.F64(a-b))
	case OpFMul:
		vm.push(t, value.F64(a*b))
	case OpFDiv:
		vm.push(t, value.F64(a/b))
	case OpFPow:
		vm.push(t, value.F64(math.Pow(a, b)))
	case OpFMod:
		vm.push(t, value.F64(math.Mod(a, b)))
	case OpFEq:
		vm.push(t, value.Bool(a == b))
	case OpFNe:
		vm.push(t, value.Bool(a != b))
	case OpFLt:
		vm.push(t, value.Bool(a < b))
	case OpFLe:
		vm.push(t, value.Bool(a <= b))
	case OpFGt:
		vm.push(t, value.Bool(a > b))
	case OpFGe:
		vm.push(t, value.Bool(a >= b))
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid float opcode")
	}
	return Outcome{}, false
}

// execNumericGeneric handles NAdd/NSub/NMul/NDiv, which promote to float
// arithmetic the instant either operand is a float, otherwise behaving like the wrapping integer group.
func (vm *Interpreter) execNumericGeneric(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t
	bRaw := vm.pop(t)
	aRaw := vm.pop(t)

	if aRaw.IsF64() || bRaw.IsF64() {
		a, aok := asFloat(aRaw)
		b, bok := asFloat(bRaw)
		if !aok || !bok {
			return vm.fault(ec, exception.KindTypeError, "operand is not a number")
		}
		switch op {
		case OpNAdd:
			vm.push(t, value.F64(a+b))
		case OpNSub:
			vm.push(t, value.F64(a-b))
		case OpNMul:
			vm.push(t, value.F64(a*b))
		case OpNDiv:
			vm.push(t, value.F64(a/b))
		}
		return Outcome{}, false
	}

	av, aw, aok := asInt(aRaw)
	bv, bw, bok := asInt(bRaw)
	if !aok || !bok {
		return vm.fault(ec, exception.KindTypeError, "operand is not a number")
	}
	wide := aw || bw
	switch op {
	case OpNAdd:
		return vm.pushInt(t, av+bv, wide)
	case OpNSub:
		return vm.pushInt(t, av-bv, wide)
	case OpNMul:
		return vm.pushInt(t, av*bv, wide)
	case OpNDiv:
		if bv == 0 {
			return vm.fault(ec, exception.KindDivisionByZero, "division by zero")
		}
		return vm.pushInt(t, av/bv, wide)
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid generic numeric opcode")
	}
}

// execBoolEq handles Not/And/Or plus the generic and strict equality ops.
func (vm *Interpreter) execBoolEq(ec *execCtx, op OpCode) (Outcome, bool) {
	t := ec.t

	if op == OpNot {
		v := vm.pop(t)
		vm.push(t, value.Bool(!v.Truthy()))
		return Outcome{}, false
	}
	if op == OpAnd || op == OpOr {
		b := vm.pop(t)
		a := vm.pop(t)
		if op == OpAnd {
			vm.push(t, value.Bool(a.Truthy() && b.Truthy()))
		} else {
			vm.push(t, value.Bool(a.Truthy() || b.Truthy()))
		}
		return Outcome{}, false
	}

	b := vm.pop(t)
	a := vm.pop(t)
	switch op {
	case OpEq:
		vm.push(t, value.Bool(vm.looseEqual(a, b)))
	case OpNe:
		vm.push(t, value.Bool(!vm.looseEqual(a, b)))
	case OpStrictEq:
		// Identical to Eq for now; strict no-coercion semantics are not
		// implemented yet.
		vm.push(t, value.Bool(vm.looseEqual(a, b)))
	case OpStrictNe:
		vm.push(t, value.Bool(!vm.looseEqual(a, b)))
	default:
		return vm.fault(ec, exception.KindRuntimeError, "invalid equality opcode")
	}
	return Outcome{}, false
}

// looseEqual numerically coerces across i32/i64/f64 before falling back to
// value.Equal's exact-tag comparison.
func (vm *Interpreter) looseEqual(a, b value.Value) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok && (a.Tag != b.Tag) {
		return af == bf
	}
	return value.Equal(a, b)
}
