// Package classreg holds the mutable half of class registration: the
// per-class static-field vector. Class shape itself (name,
// field count, parent, vtable) is immutable module metadata and lives in
// package module; classreg is what LoadStatic/StoreStatic and the GC's
// root walk actually touch at runtime. The GC enumerates the registry as
// a root source.
package classreg

import (
	"sync"

	"github.com/emberlang/ember/module"
	"github.com/emberlang/ember/value"
)

// Registry owns the live, mutable static-field vector for every class in
// a loaded Module. Reader/writer locked: class registration is read-many,
// write-rare.
type Registry struct {
	mod *module.Module

	mu     sync.RWMutex
	static [][]value.Value // parallel to mod.Classes
}

// Load registers every class in mod, seeding static fields from each
// class's StaticInitial vector.
func Load(mod *module.Module) *Registry {
	r := &Registry{mod: mod, static: make([][]value.Value, len(mod.Classes))}
	for i, c := range mod.Classes {
		slots := make([]value.Value, len(c.StaticInitial))
		copy(slots, c.StaticInitial)
		r.static[i] = slots
	}
	return r
}

func (r *Registry) Module() *module.Module { return r.mod }

// LoadStatic reads a static field by (class-id, offset).
func (r *Registry) LoadStatic(classID uint32, offset int) (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(classID) >= len(r.static) {
		return value.Null, false
	}
	slots := r.static[classID]
	if offset < 0 || offset >= len(slots) {
		return value.Null, false
	}
	return slots[offset], true
}

// StoreStatic writes a static field by (class-id, offset).
func (r *Registry) StoreStatic(classID uint32, offset int, v value.Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(classID) >= len(r.static) {
		return false
	}
	slots := r.static[classID]
	if offset < 0 || offset >= len(slots) {
		return false
	}
	slots[offset] = v
	return true
}

// Roots implements gcheap.RootSource: every static field slot of every
// registered class is a GC root.
func (r *Registry) Roots(visit func(value.Value)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, slots := range r.static {
		for _, v := range slots {
			visit(v)
		}
	}
}
