package vm

import (
	"sync"

	"github.com/emberlang/ember/value"
)

// Globals is the dense, auto-growing globals vector addressed by
// LoadGlobal/StoreGlobal. It is process-wide mutable
// state shared by every task, so it is read-many/write-rare locked like
// classreg.Registry, and it doubles as a gcheap.RootSource.
type Globals struct {
	mu   sync.RWMutex
	vals []value.Value
}

func NewGlobals() *Globals {
	return &Globals{}
}

func (g *Globals) Load(index int) value.Value {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index < 0 || index >= len(g.vals) {
		return value.Null
	}
	return g.vals[index]
}

// Store auto-grows the vector so that index becomes valid.
func (g *Globals) Store(index int, v value.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index >= len(g.vals) {
		grown := make([]value.Value, index+1)
		copy(grown, g.vals)
		g.vals = grown
	}
	g.vals[index] = v
}

// Roots implements gcheap.RootSource.
func (g *Globals) Roots(visit func(value.Value)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, v := range g.vals {
		visit(v)
	}
}
