// Package module defines the immutable, loaded Module the VM executes:
// functions, a constant pool, class metadata, and optional debug info.
package module

import (
	"sort"

	"github.com/emberlang/ember/value"
)

// Function is one compiled function: name, parameter count, local count,
// and its bytecode body.
type Function struct {
	Name       string
	ParamCount int
	LocalCount int
	Code       []byte
}

// Class describes one registered class: name, field count, an optional
// parent class-id, an optional constructor function-id, a dense vtable
// (method-index -> function-id, inheriting parent entries unless
// overridden — the compiler is expected to have already materialized
// inherited slots), and static-field initial values.
type Class struct {
	Name            string
	FieldCount      int
	ParentID        int32 // -1 if none
	ConstructorID   int32 // -1 if none
	Vtable          []uint32
	StaticInitial   []value.Value
}

const NoParent int32 = -1
const NoConstructor int32 = -1

// LineEntry maps a bytecode offset to a source (line, column) pair, sorted
// by Offset.
type LineEntry struct {
	Offset int
	Line   int
	Column int
}

// DebugFunction carries a function's start position and its sorted line
// table.
type DebugFunction struct {
	StartLine   int
	StartColumn int
	SourceFile  int
	Lines       []LineEntry // sorted by Offset
}

// DebugInfo is optional per-module debug metadata.
type DebugInfo struct {
	SourceFiles []string
	Functions   []DebugFunction // parallel to Module.Functions
}

// Module is immutable after Load: it is safe to share across every worker
// goroutine and every task without synchronization.
type Module struct {
	Functions       []Function
	ConstantStrings []string
	Classes         []Class
	Debug           *DebugInfo // nil if the module was compiled without -g
}

// ResolveLine resolves a
// bytecode offset to (line, column) by finding the greatest entry with
// Offset <= target, falling back to the function's start position on
// underflow, and to the function's name (via the ok=false return) when no
// debug info is present at all.
func (m *Module) ResolveLine(functionID uint32, offset int) (line, column int, ok bool) {
	if m.Debug == nil || int(functionID) >= len(m.Debug.Functions) {
		return 0, 0, false
	}
	fn := m.Debug.Functions[functionID]
	lines := fn.Lines
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Offset > offset })
	if i == 0 {
		return fn.StartLine, fn.StartColumn, true
	}
	entry := lines[i-1]
	return entry.Line, entry.Column, true
}

// FunctionName returns a function's name, or "?" if the id is out of range
// (used as the profiler/stack-trace fallback when no debug info resolves).
func (m *Module) FunctionName(functionID uint32) string {
	if int(functionID) >= len(m.Functions) {
		return "?"
	}
	return m.Functions[functionID].Name
}

// InstanceOf walks the class parent chain looking for target, matching
// the transitive instance-of relation.
func (m *Module) InstanceOf(classID uint32, target uint32) bool {
	for {
		if classID == target {
			return true
		}
		if int(classID) >= len(m.Classes) {
			return false
		}
		parent := m.Classes[classID].ParentID
		if parent == NoParent {
			return false
		}
		classID = uint32(parent)
	}
}

// ResolveMethod looks up a method-index on a class's vtable and returns the
// slot's function id as stored. The parent chain is not searched: this
// package trusts the vtable as already-dense, with inherited slots filled
// in, and returns a 0 entry like any other.
func (m *Module) ResolveMethod(classID uint32, methodIndex int) (functionID uint32, ok bool) {
	if int(classID) >= len(m.Classes) {
		return 0, false
	}
	vt := m.Classes[classID].Vtable
	if methodIndex < 0 || methodIndex >= len(vt) {
		return 0, false
	}
	return vt[methodIndex], true
}
