// Package modyaml loads a Module from a YAML description: named functions
// whose bodies are lists of mnemonic instructions, a string pool, and
// class metadata. It exists for hosts and fixtures — the cmd/embervm host
// loop and round-trip tests — not as a compiler target; the binary
// bytecode file format is a separate, out-of-scope concern.
package modyaml

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/vm"
)

type fileModule struct {
	Functions []fileFunction `yaml:"functions"`
	Strings   []string       `yaml:"strings"`
	Classes   []fileClass    `yaml:"classes"`
}

type fileFunction struct {
	Name   string            `yaml:"name"`
	Params int               `yaml:"params"`
	Locals int               `yaml:"locals"`
	Code   []fileInstruction `yaml:"code"`
}

type fileClass struct {
	Name        string   `yaml:"name"`
	Fields      int      `yaml:"fields"`
	Parent      *int32   `yaml:"parent"`
	Constructor *int32   `yaml:"constructor"`
	Vtable      []uint32 `yaml:"vtable"`
}

// fileInstruction is one mnemonic line. Which operand fields an opcode
// requires is fixed by the bytecode encoding (vm/opcodes.go); Parse
// rejects instructions missing theirs.
type fileInstruction struct {
	Op      string   `yaml:"op"`
	I32     *int32   `yaml:"i32"`     // ConstI32
	F64     *float64 `yaml:"f64"`     // ConstF64
	Idx     *uint16  `yaml:"idx"`     // pool/local/field/method/capture index
	Global  *uint32  `yaml:"global"`  // LoadGlobal/StoreGlobal
	Fn      *uint32  `yaml:"fn"`      // Call/Spawn/MakeClosure target
	Class   *uint32  `yaml:"class"`   // New/ObjectLiteral/statics/InstanceOf/Cast/CallConstructor
	Argc    *int     `yaml:"argc"`    // call-family argument count
	Count   *int     `yaml:"count"`   // literal/capture count
	Off     *int16   `yaml:"off"`     // relative jump offset
	Catch   *int16   `yaml:"catch"`   // Try catch offset (-1 = absent)
	Finally *int16   `yaml:"finally"` // Try finally offset (-1 = absent)
	Native  *uint16  `yaml:"native"`  // NativeCall id
}

// Load reads and parses a YAML module file.
func Load(path string) (*module.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modyaml: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML module description and assembles each function's
// bytecode.
func Parse(data []byte) (*module.Module, error) {
	var file fileModule
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("modyaml: %w", err)
	}

	mod := &module.Module{ConstantStrings: file.Strings}
	for i, fn := range file.Functions {
		code, err := assemble(fn.Code)
		if err != nil {
			return nil, fmt.Errorf("modyaml: function %d (%s): %w", i, fn.Name, err)
		}
		locals := fn.Locals
		if locals < fn.Params {
			locals = fn.Params
		}
		mod.Functions = append(mod.Functions, module.Function{
			Name:       fn.Name,
			ParamCount: fn.Params,
			LocalCount: locals,
			Code:       code,
		})
	}
	for _, c := range file.Classes {
		parent := module.NoParent
		if c.Parent != nil {
			parent = *c.Parent
		}
		ctor := module.NoConstructor
		if c.Constructor != nil {
			ctor = *c.Constructor
		}
		mod.Classes = append(mod.Classes, module.Class{
			Name:          c.Name,
			FieldCount:    c.Fields,
			ParentID:      parent,
			ConstructorID: ctor,
			Vtable:        c.Vtable,
			StaticInitial: nil,
		})
	}
	return mod, nil
}

type assembler struct {
	code []byte
}

func (a *assembler) byte1(b byte)   { a.code = append(a.code, b) }
func (a *assembler) u16(v uint16)   { a.code = binary.LittleEndian.AppendUint16(a.code, v) }
func (a *assembler) u32(v uint32)   { a.code = binary.LittleEndian.AppendUint32(a.code, v) }
func (a *assembler) u64(v uint64)   { a.code = binary.LittleEndian.AppendUint64(a.code, v) }

func assemble(instrs []fileInstruction) ([]byte, error) {
	a := &assembler{}
	for n, in := range instrs {
		if err := a.emit(in); err != nil {
			return nil, fmt.Errorf("instruction %d: %w", n, err)
		}
	}
	return a.code, nil
}

// emit encodes one instruction per the operand widths fixed in
// vm/opcodes.go.
func (a *assembler) emit(in fileInstruction) error {
	op, known := vm.OpcodeByName(in.Op)
	if !known {
		return fmt.Errorf("unknown opcode %q", in.Op)
	}
	a.byte1(byte(op))

	switch op {
	case vm.OpConstI32:
		if in.I32 == nil {
			return fmt.Errorf("%s needs i32", in.Op)
		}
		a.u32(uint32(*in.I32))

	case vm.OpConstF64:
		if in.F64 == nil {
			return fmt.Errorf("%s needs f64", in.Op)
		}
		a.u64(math.Float64bits(*in.F64))

	case vm.OpConstStr, vm.OpLoadLocal, vm.OpStoreLocal,
		vm.OpLoadField, vm.OpStoreField, vm.OpOptionalField,
		vm.OpInitObject, vm.OpInitArray, vm.OpArrayLiteral,
		vm.OpLoadCaptured, vm.OpStoreCaptured, vm.OpSetClosureCapture:
		idx, err := idxOrCount(in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Op, err)
		}
		a.u16(idx)

	case vm.OpLoadFieldFast, vm.OpStoreFieldFast:
		idx, err := idxOrCount(in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Op, err)
		}
		a.byte1(byte(idx))

	case vm.OpLoadGlobal, vm.OpStoreGlobal:
		if in.Global == nil {
			return fmt.Errorf("%s needs global", in.Op)
		}
		a.u32(*in.Global)

	case vm.OpJmp, vm.OpJmpIfTrue, vm.OpJmpIfFalse, vm.OpJmpIfNull, vm.OpJmpIfNotNull:
		if in.Off == nil {
			return fmt.Errorf("%s needs off", in.Op)
		}
		a.u16(uint16(*in.Off))

	case vm.OpCall, vm.OpSpawn:
		if in.Fn == nil || in.Argc == nil {
			return fmt.Errorf("%s needs fn and argc", in.Op)
		}
		a.u32(*in.Fn)
		a.u16(uint16(*in.Argc))

	case vm.OpCallMethod:
		if in.Idx == nil || in.Argc == nil {
			return fmt.Errorf("%s needs idx and argc", in.Op)
		}
		a.u16(*in.Idx)
		a.byte1(byte(*in.Argc))

	case vm.OpCallConstructor:
		if in.Class == nil || in.Argc == nil {
			return fmt.Errorf("%s needs class and argc", in.Op)
		}
		a.u32(*in.Class)
		a.u16(uint16(*in.Argc))

	case vm.OpCallSuper, vm.OpSpawnClosure:
		if in.Argc == nil {
			return fmt.Errorf("%s needs argc", in.Op)
		}
		a.u16(uint16(*in.Argc))

	case vm.OpNew, vm.OpInstanceOf, vm.OpCast:
		if in.Class == nil {
			return fmt.Errorf("%s needs class", in.Op)
		}
		a.u32(*in.Class)

	case vm.OpObjectLiteral:
		if in.Class == nil || in.Count == nil {
			return fmt.Errorf("%s needs class and count", in.Op)
		}
		a.u32(*in.Class)
		a.u16(uint16(*in.Count))

	case vm.OpLoadStatic, vm.OpStoreStatic:
		if in.Class == nil || in.Idx == nil {
			return fmt.Errorf("%s needs class and idx", in.Op)
		}
		a.u32(*in.Class)
		a.u16(*in.Idx)

	case vm.OpMakeClosure:
		if in.Fn == nil || in.Count == nil {
			return fmt.Errorf("%s needs fn and count", in.Op)
		}
		a.u32(*in.Fn)
		a.u16(uint16(*in.Count))

	case vm.OpTry:
		catch := int16(-1)
		finally := int16(-1)
		if in.Catch != nil {
			catch = *in.Catch
		}
		if in.Finally != nil {
			finally = *in.Finally
		}
		a.u16(uint16(catch))
		a.u16(uint16(finally))

	case vm.OpNativeCall:
		if in.Native == nil || in.Argc == nil {
			return fmt.Errorf("%s needs native and argc", in.Op)
		}
		a.u16(*in.Native)
		a.byte1(byte(*in.Argc))

	default:
		// Every remaining opcode is operand-free.
	}
	return nil
}

// idxOrCount accepts either field for u16-operand opcodes: literal counts
// read better as "count", indexes as "idx".
func idxOrCount(in fileInstruction) (uint16, error) {
	if in.Idx != nil {
		return *in.Idx, nil
	}
	if in.Count != nil {
		return uint16(*in.Count), nil
	}
	return 0, fmt.Errorf("needs idx")
}
