package scheduler

import (
	"sync"

	"github.com/emberlang/ember/task"
)

// injector is the global queue into which ready tasks are pushed for
// worker pickup. FIFO: spawn order is pickup
// order when every worker is busy.
type injector struct {
	mu    sync.Mutex
	tasks []*task.Task
}

func (q *injector) push(t *task.Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

func (q *injector) pop() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

func (q *injector) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// localQueue is one worker's run queue. The owner pushes and pops at the
// back (LIFO, keeps cache-warm tasks local); thieves steal from the front,
// taking the oldest entry.
type localQueue struct {
	mu    sync.Mutex
	tasks []*task.Task
}

func (q *localQueue) push(t *task.Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

func (q *localQueue) pop() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[len(q.tasks)-1]
	q.tasks = q.tasks[:len(q.tasks)-1]
	return t
}

func (q *localQueue) steal() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

func (q *localQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
