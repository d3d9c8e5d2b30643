package task

import (
	"sync"
	"sync/atomic"

	"github.com/emberlang/ember/value"
)

// Registry is the global task table shared by every scheduler worker.
// It is explicitly constructed rather than a package singleton so
// multiple VM instances can coexist in a process (e.g. in tests).
type Registry struct {
	mu    sync.RWMutex
	tasks map[int64]*Task

	nextID int64
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[int64]*Task)}
}

// NextID issues the next monotonic task id.
func (r *Registry) NextID() int64 {
	return atomic.AddInt64(&r.nextID, 1)
}

func (r *Registry) Insert(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
}

func (r *Registry) Get(id int64) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// Roots implements gcheap.RootSource: every live task's operand stack,
// closure stack, and exception slots are GC roots.
func (r *Registry) Roots(visit func(value.Value)) {
	r.mu.RLock()
	tasks := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.RUnlock()

	for _, t := range tasks {
		t.Roots(visit)
	}
}
