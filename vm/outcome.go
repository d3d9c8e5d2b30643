package vm

import (
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// Flow discriminates how a Run call ended: a terminal Completed/Failed
// result, or a Suspend(reason) handed back to the scheduler.
type Flow int

const (
	FlowCompleted Flow = iota
	FlowFailed
	FlowSuspended
)

// Outcome is what the interpreter hands back to the scheduler after one
// Run call returns control.
type Outcome struct {
	Flow      Flow
	Value     value.Value        // meaningful when FlowCompleted
	Exception value.Value        // meaningful when FlowFailed
	Reason    task.SuspendReason // meaningful when FlowSuspended

	// Woken lists other tasks that became Ready as a side effect during
	// this Run call (mutex handoff, channel rendezvous) and that the
	// scheduler must re-enqueue alongside processing Flow/Reason.
	Woken []int64
}
