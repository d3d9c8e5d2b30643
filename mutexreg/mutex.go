// Package mutexreg implements the runtime's FIFO mutex registry: unique
// mutex ids, an optional owner task-id, and a FIFO wait queue. Ownership
// transfer on Unlock is atomic with the wake. Waiters are parked as
// suspended tasks, not goroutines — the scheduler, not the OS thread, is
// responsible for waking a suspended task.
package mutexreg

import "sync"

const NoOwner int64 = -1

type mutexState struct {
	owner   int64
	waiters []int64
}

// Registry issues unique mutex ids and tracks ownership/wait state for
// each one.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	mutexes map[uint64]*mutexState
}

func NewRegistry() *Registry {
	return &Registry{mutexes: make(map[uint64]*mutexState)}
}

// New creates a fresh, unowned mutex and returns its id (the NewMutex
// opcode).
func (r *Registry) New() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.mutexes[id] = &mutexState{owner: NoOwner}
	return id
}

// TryLock succeeds atomically if the mutex is unowned; it never enqueues
// the caller on contention.
func (r *Registry) TryLock(id uint64, taskID int64) (acquired bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return false, false
	}
	if m.owner == NoOwner {
		m.owner = taskID
		return true, true
	}
	return false, true
}

// Lock attempts to acquire the mutex immediately; on contention it appends
// taskID to the FIFO wait queue and reports mustSuspend so the interpreter
// can transition the task to Suspended(MutexLock).
func (r *Registry) Lock(id uint64, taskID int64) (acquired bool, mustSuspend bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return false, false, false
	}
	if m.owner == NoOwner {
		m.owner = taskID
		return true, false, true
	}
	m.waiters = append(m.waiters, taskID)
	return false, true, true
}

// Unlock releases the mutex. It fails if the caller is not the owner.
// Otherwise it transfers ownership to the head of the FIFO wait queue (if
// any) and returns that task's id so the scheduler can re-enqueue it; the
// transfer is atomic with respect to concurrent Lock/TryLock/Unlock calls
// on the same mutex.
func (r *Registry) Unlock(id uint64, taskID int64) (nextOwner int64, woke bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return NoOwner, false, false
	}
	if m.owner != taskID {
		return NoOwner, false, false
	}
	if len(m.waiters) == 0 {
		m.owner = NoOwner
		return NoOwner, false, true
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.owner = next
	return next, true, true
}

// ForceRelease releases the mutex on behalf of the owner without requiring
// the caller to present the owning task-id; used by the unwind protocol's
// auto-release of mutexes acquired after a handler's installation.
// Returns the woken waiter, if any.
func (r *Registry) ForceRelease(id uint64) (nextOwner int64, woke bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return NoOwner, false
	}
	if len(m.waiters) == 0 {
		m.owner = NoOwner
		return NoOwner, false
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.owner = next
	return next, true
}

// Owner reports the current owner of a mutex, or NoOwner.
func (r *Registry) Owner(id uint64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return NoOwner, false
	}
	return m.owner, true
}

// Waiters returns a snapshot of the current FIFO wait queue, for
// diagnostics and tests.
func (r *Registry) Waiters(id uint64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.mutexes[id]
	if !exists {
		return nil
	}
	out := make([]int64, len(m.waiters))
	copy(out, m.waiters)
	return out
}
