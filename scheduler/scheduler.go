// Package scheduler implements the runtime's work-stealing worker pool:
// one global injector, N worker goroutines each with a local queue and
// access to the other workers' queues for stealing, a timer wheel for
// Sleep-suspended tasks, and a parker that lets idle workers sleep until
// new work arrives or the next timer expires.
//
// golang.org/x/sync/errgroup supervises the worker goroutines and
// surfaces the first fatal worker error to Wait.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emberlang/ember/config"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
	"github.com/emberlang/ember/vm"
)

// Scheduler drives the task pool. Construct with New, call Start, hand it
// tasks via Enqueue (or block on a root task via RunRoot), then Stop.
type Scheduler struct {
	interp *vm.Interpreter
	tasks  *task.Registry
	sp     *safepoint.Coordinator
	cfg    config.Config

	inject *injector
	locals []*localQueue
	timers *timerWheel

	// wake is the parker: a 1-buffered nudge channel. Enqueueing work or
	// arming a timer sends a nudge; an idle worker selects on it with the
	// next timer expiry (bounded by cfg.IdlePoll) as its deadline.
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	rootMu   sync.Mutex
	rootID   int64
	rootDone chan vm.Outcome
}

// New wires a scheduler over shared runtime resources. The safepoint
// coordinator's worker count is set here so a collection waits for exactly
// this pool.
func New(interp *vm.Interpreter, tasks *task.Registry, sp *safepoint.Coordinator, cfg config.Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = config.Default().IdlePoll
	}
	s := &Scheduler{
		interp: interp,
		tasks:  tasks,
		sp:     sp,
		cfg:    cfg,
		inject: &injector{},
		timers: newTimerWheel(),
		wake:   make(chan struct{}, 1),
	}
	s.locals = make([]*localQueue, cfg.Workers)
	for i := range s.locals {
		s.locals[i] = &localQueue{}
	}
	sp.SetWorkerCount(cfg.Workers)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start launches the worker goroutines.
func (s *Scheduler) Start() {
	s.group, _ = errgroup.WithContext(s.ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		i := i
		s.group.Go(func() error { return s.runWorker(i) })
	}
}

// Stop shuts the pool down and waits for every worker to exit. Suspended
// tasks are left wherever they are parked; Stop does not drain them.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.Wait()
}

// Wait blocks until every worker has exited, returning the first fatal
// worker error, if any.
func (s *Scheduler) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Enqueue pushes a Ready task into the global injector and nudges an idle
// worker.
func (s *Scheduler) Enqueue(t *task.Task) {
	s.inject.push(t)
	s.nudge()
}

// RunRoot enqueues t as the root task and blocks until it completes or
// fails, returning the terminal outcome. The scheduler must have been
// started.
func (s *Scheduler) RunRoot(t *task.Task) vm.Outcome {
	done := make(chan vm.Outcome, 1)
	s.rootMu.Lock()
	s.rootID = t.ID
	s.rootDone = done
	s.rootMu.Unlock()

	s.Enqueue(t)
	return <-done
}

// Preempt requests a cooperative yield from a running task at its next
// opcode boundary. The concrete long-time-slice policy is left
// to the host; this is its hook.
func (s *Scheduler) Preempt(taskID int64) {
	if t, ok := s.tasks.Get(taskID); ok {
		t.RequestPreempt()
	}
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// runWorker is one worker's loop: pop a task (local, then steal, then
// injector), poll the safepoint, drive the interpreter, process the
// outcome. A worker with no task expires due timers and parks.
func (s *Scheduler) runWorker(index int) (err error) {
	defer s.sp.WorkerExited()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: worker %d panicked: %v", index, r)
			err = fmt.Errorf("worker %d: panic: %v", index, r)
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		default:
		}

		// Participate in any pending collection before touching work;
		// the interpreter polls again at every safepoint opcode.
		s.sp.Poll()

		s.expireTimers()

		t := s.next(index)
		if t == nil {
			s.idleWait()
			continue
		}
		if !t.BeginRun() {
			// Woken redundantly, cancelled after enqueue, or claimed by
			// another worker; drop this reference.
			continue
		}

		out := s.runTask(t)
		s.afterRun(index, t, out)
	}
}

// runTask drives the interpreter, containing any panic that escapes it (a
// VM bug, not a guest-program fault) to the one task it occurred on: the
// task fails, its waiters are woken with the failure, and the pool stays
// up.
func (s *Scheduler) runTask(t *task.Task) (out vm.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: task %d panicked: %v", t.ID, r)
			exc := s.interp.Heap.Allocate(gcheap.NewString(fmt.Sprintf("internal error: %v", r)))
			t.Fail(exc)
			out = vm.Outcome{Flow: vm.FlowFailed, Exception: exc}
			for _, id := range t.TakeWaiters() {
				if w, ok := s.tasks.Get(id); ok {
					w.ResumeWithException(exc)
					s.inject.push(w)
				}
			}
		}
	}()
	return s.interp.Run(t)
}

// next implements the fixed pickup order: local queue, then
// steal from a sibling, then the global injector.
func (s *Scheduler) next(index int) *task.Task {
	if t := s.locals[index].pop(); t != nil {
		return t
	}
	for off := 1; off < len(s.locals); off++ {
		victim := s.locals[(index+off)%len(s.locals)]
		if t := victim.steal(); t != nil {
			return t
		}
	}
	return s.inject.pop()
}

// idleWait parks until new work is nudged in, the next timer expires, or
// cfg.IdlePoll elapses. The IdlePoll bound doubles as the worst-case
// latency for this worker to join a pending stop-the-world.
func (s *Scheduler) idleWait() {
	deadline := s.cfg.IdlePoll
	if wakeAt, ok := s.timers.nextExpiry(); ok {
		if until := time.Until(wakeAt); until < deadline {
			deadline = until
		}
	}
	if deadline <= 0 {
		return
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case <-s.wake:
	case <-timer.C:
	case <-s.ctx.Done():
	}
}

// expireTimers resumes every Sleep/Yield-suspended task whose wake time
// has passed and pushes it back into the injector.
func (s *Scheduler) expireTimers() {
	for _, id := range s.timers.expired(time.Now()) {
		t, ok := s.tasks.Get(id)
		if !ok {
			continue
		}
		t.Resume(value.Null)
		s.inject.push(t)
	}
	if s.inject.len() > 0 {
		s.nudge()
	}
}

// afterRun processes one Run call's outcome.
func (s *Scheduler) afterRun(index int, t *task.Task, out vm.Outcome) {
	// Side-effect wakes first (mutex handoff, channel rendezvous, waiters
	// of a completed task): they go to this worker's local queue, where
	// siblings can steal them.
	for _, id := range out.Woken {
		if woken, ok := s.tasks.Get(id); ok {
			s.locals[index].push(woken)
		}
	}
	if len(out.Woken) > 0 {
		s.nudge()
	}

	switch out.Flow {
	case vm.FlowCompleted, vm.FlowFailed:
		s.finishRoot(t, out)
	case vm.FlowSuspended:
		switch out.Reason.Kind {
		case task.SuspendSleep, task.SuspendYield:
			// Yield's zero WakeAt is already due, so it round-trips
			// through the wheel as an immediate re-enqueue.
			s.timers.insert(t.ID, out.Reason.WakeAt)
			s.nudge()
		default:
			// MutexLock / ChannelSend / ChannelReceive / AwaitTask /
			// WaitAll: the resource's wait queue owns re-enqueueing when
			// its condition is met. If the wake raced ahead of the
			// suspension, Suspend consumed it and left the task Ready —
			// and whoever woke it may already have had its enqueue
			// claimed and dropped, so it is re-enqueued here. BeginRun
			// deduplicates the case where both references survive.
			if t.State() == task.Ready {
				s.locals[index].push(t)
				s.nudge()
			}
		}
	}
}

func (s *Scheduler) finishRoot(t *task.Task, out vm.Outcome) {
	s.rootMu.Lock()
	done := s.rootDone
	isRoot := done != nil && t.ID == s.rootID
	if isRoot {
		s.rootDone = nil
	}
	s.rootMu.Unlock()
	if isRoot {
		done <- out
	}
}

// QueuedTasks reports how many tasks currently sit in the injector, the
// local queues, and the timer wheel, for diagnostics and tests.
func (s *Scheduler) QueuedTasks() int {
	n := s.inject.len() + s.timers.len()
	for _, q := range s.locals {
		n += q.len()
	}
	return n
}
