package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one Sleep-suspended task keyed by its wake time.
type timerEntry struct {
	taskID int64
	wakeAt time.Time
}

// timerQueue is a priority queue of sleeping tasks ordered by wake time,
// the same container/heap shape the single-goroutine predecessor used for
// its start-time-ordered task queue.
type timerQueue []timerEntry

func (tq timerQueue) Len() int            { return len(tq) }
func (tq timerQueue) Less(i, j int) bool  { return tq[i].wakeAt.Before(tq[j].wakeAt) }
func (tq timerQueue) Swap(i, j int)       { tq[i], tq[j] = tq[j], tq[i] }
func (tq *timerQueue) Push(x interface{}) { *tq = append(*tq, x.(timerEntry)) }

func (tq *timerQueue) Pop() interface{} {
	old := *tq
	n := len(old)
	item := old[n-1]
	*tq = old[0 : n-1]
	return item
}

// timerWheel holds Sleep-suspended tasks until their wake time passes.
// Any worker may insert or expire; the heap is shared across the pool.
type timerWheel struct {
	mu sync.Mutex
	q  timerQueue
}

func newTimerWheel() *timerWheel {
	tw := &timerWheel{}
	heap.Init(&tw.q)
	return tw
}

func (tw *timerWheel) insert(taskID int64, wakeAt time.Time) {
	tw.mu.Lock()
	heap.Push(&tw.q, timerEntry{taskID: taskID, wakeAt: wakeAt})
	tw.mu.Unlock()
}

// expired pops every entry whose wake time is at or before now.
func (tw *timerWheel) expired(now time.Time) []int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	var due []int64
	for tw.q.Len() > 0 {
		head := tw.q[0]
		if head.wakeAt.After(now) {
			break
		}
		heap.Pop(&tw.q)
		due = append(due, head.taskID)
	}
	return due
}

// nextExpiry reports the earliest pending wake time, if any, so an idle
// worker can bound its sleep.
func (tw *timerWheel) nextExpiry() (time.Time, bool) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.q.Len() == 0 {
		return time.Time{}, false
	}
	return tw.q[0].wakeAt, true
}

func (tw *timerWheel) len() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.q.Len()
}
