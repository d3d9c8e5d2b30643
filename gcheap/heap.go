// Package gcheap implements the runtime's stop-the-world, non-moving,
// reference-traced garbage collector. Real memory is still
// owned by the Go allocator and Go's own collector; gcheap layers a
// reachability sweep on top so that heap.Object pointers handed out to the
// interpreter are stable across allocation, freed only when unreachable
// from the traced root set, and never subject to finalizers.
package gcheap

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/value"
)

// ObjectKind identifies the concrete shape behind a heap pointer.
type ObjectKind uint8

const (
	KindString ObjectKind = iota
	KindArray
	KindObject
	KindClosure
	KindRefCell
	KindMap
	KindSet
	KindBuffer
	KindRegExp
	KindChannel
)

// Object is implemented by every heap-allocated kind. Trace must call visit
// on every value.Value the object directly holds, so the collector can walk
// the reference graph (cycles included — tracing handles them naturally).
type Object interface {
	ObjKind() ObjectKind
	Trace(visit func(value.Value))
}

type header struct {
	marked atomic.Bool
	obj    Object
}

// RootSource is registered with the heap by the scheduler/task registry and
// class registry; Roots is called once per collection, after every worker
// has parked at the safepoint, to seed the mark phase.
type RootSource interface {
	Roots(visit func(value.Value))
}

// Heap owns every live allocation. It is safe for concurrent allocation
// from multiple worker goroutines; collection itself is exclusive, gated by
// the safepoint coordinator.
type Heap struct {
	sp *safepoint.Coordinator

	mu      sync.Mutex
	objects map[*header]struct{}

	roots []RootSource

	allocated      atomic.Int64 // objects allocated since last collection
	collectEvery   int64        // trigger policy: collect after this many allocations
	lastCollected  atomic.Int64
	collectionsRun atomic.Int64
}

// New creates a heap bound to the given safepoint coordinator. collectEvery
// is the size-threshold trigger policy; 0 disables the automatic trigger and
// leaves collection to explicit CollectNow calls.
func New(sp *safepoint.Coordinator, collectEvery int64) *Heap {
	return &Heap{
		sp:           sp,
		objects:      make(map[*header]struct{}),
		collectEvery: collectEvery,
	}
}

// AddRootSource registers a component (task registry, class registry,
// globals vector) whose Roots method must be walked on every collection.
func (h *Heap) AddRootSource(rs RootSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots = append(h.roots, rs)
}

// Allocate hands out a stable pointer wrapping obj. It never invalidates
// existing pointers. Every allocation is preceded by a safepoint poll by
// the caller (the interpreter polls before allocating opcodes); Allocate
// itself also polls defensively.
func (h *Heap) Allocate(obj Object) value.Value {
	h.sp.Poll()

	hdr := &header{obj: obj}
	h.mu.Lock()
	h.objects[hdr] = struct{}{}
	h.mu.Unlock()

	if n := h.allocated.Add(1); h.collectEvery > 0 && n >= h.collectEvery {
		h.allocated.Store(0)
		h.sp.RequestFromWorker(h.collect)
	}

	return value.MakePtr(unsafe.Pointer(hdr))
}

// ObjectFor recovers the Object behind a heap pointer value. Panics if v is
// not a heap pointer; callers are expected to know the kind from context.
func ObjectFor(v value.Value) Object {
	p, ok := v.AsPtr()
	if !ok {
		panic("gcheap: value is not a heap pointer")
	}
	hdr := (*header)(p)
	return hdr.obj
}

// CollectNow requests an eager collection from outside the worker pool
// (the host's CollectGarbage entry point). It blocks the
// caller until every worker has reached a safepoint and the collection has
// completed.
func (h *Heap) CollectNow() {
	h.sp.StopTheWorld(h.collect)
}

// collect runs while every worker is parked at the safepoint barrier
// (safepoint.Coordinator guarantees this via StopTheWorld). No heap
// allocation occurs outside the collector during this window, and every
// task stack is in a consistent state.
func (h *Heap) collect() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for hdr := range h.objects {
		hdr.marked.Store(false)
	}

	var stack []value.Value
	visit := func(v value.Value) {
		if v.Tag == value.KindPtr {
			stack = append(stack, v)
		}
	}
	for _, rs := range h.roots {
		rs.Roots(visit)
	}

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p, _ := v.AsPtr()
		hdr := (*header)(p)
		if hdr.marked.Swap(true) {
			continue // already visited; cycles terminate here
		}
		hdr.obj.Trace(visit)
	}

	for hdr := range h.objects {
		if !hdr.marked.Load() {
			delete(h.objects, hdr)
		}
	}

	h.collectionsRun.Add(1)
}

// Stats reports collector activity for diagnostics (e.g. a gc_stats()
// native, mirroring builtins/gc.go's gc_stats()).
type Stats struct {
	LiveObjects int
	Collections int64
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		LiveObjects: len(h.objects),
		Collections: h.collectionsRun.Load(),
	}
}
