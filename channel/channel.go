// Package channel implements the runtime's bounded FIFO channel object:
// buffered values, pending-sender and pending-receiver queues, and a
// closed flag.
//
// Instead of parking the calling goroutine, a full send or an empty
// receive returns a "must suspend" indication so the scheduler can park
// the task as a cooperative continuation and wake it later with a resume
// value.
package channel

import (
	"sync"

	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// ErrClosed is a sentinel for a channel-closed failure. No function in this
// package returns it; closure is reported through the Closed result flags
// below.
var ErrClosed = struct{}{}

type waitingSender struct {
	taskID int64
	value  value.Value
}

// Channel is a bounded MPMC queue with capacity 0 meaning unbuffered
// rendezvous.
type Channel struct {
	mu       sync.Mutex
	capacity int
	buffer   []value.Value
	senders  []waitingSender
	receivers []int64
	closed   bool
}

func New(capacity int) *Channel {
	return &Channel{capacity: capacity}
}

func (c *Channel) ObjKind() gcheap.ObjectKind { return gcheap.KindChannel }

func (c *Channel) Trace(visit func(value.Value)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.buffer {
		visit(v)
	}
	for _, s := range c.senders {
		visit(s.value)
	}
}

// SendOutcome communicates what the interpreter should do after a
// send_or_suspend call.
type SendOutcome struct {
	Sent         bool        // value accepted (buffered, or handed directly to a receiver)
	WokeReceiver int64       // valid when a receiver was woken directly; 0 means none
	HandoffValue value.Value // the value to deliver as the woken receiver's resume value
	MustSuspend  bool
	Closed       bool
}

// SendOrSuspend implements the channel send protocol.
func (c *Channel) SendOrSuspend(v value.Value, taskID int64) SendOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SendOutcome{Closed: true}
	}
	if len(c.receivers) > 0 {
		recv := c.receivers[0]
		c.receivers = c.receivers[1:]
		return SendOutcome{Sent: true, WokeReceiver: recv, HandoffValue: v}
	}
	if c.capacity > 0 && len(c.buffer) < c.capacity {
		c.buffer = append(c.buffer, v)
		return SendOutcome{Sent: true}
	}
	c.senders = append(c.senders, waitingSender{taskID: taskID, value: v})
	return SendOutcome{MustSuspend: true}
}

// ReceiveOutcome communicates what the interpreter should do after a
// receive_or_suspend call.
type ReceiveOutcome struct {
	Value       value.Value
	Received    bool
	WokeSender  int64 // valid when a sender was woken; 0 means none
	MustSuspend bool
	Closed      bool
}

// ReceiveOrSuspend implements the channel receive protocol: when a
// sender is waiting, consume its value directly; if the channel is
// buffered, first drain the buffer head and promote the sender's value
// into the buffer tail to preserve FIFO order, then wake the sender.
func (c *Channel) ReceiveOrSuspend(taskID int64) ReceiveOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.senders) > 0 {
		s := c.senders[0]
		c.senders = c.senders[1:]
		if c.capacity > 0 {
			if len(c.buffer) > 0 {
				head := c.buffer[0]
				c.buffer = c.buffer[1:]
				c.buffer = append(c.buffer, s.value)
				return ReceiveOutcome{Value: head, Received: true, WokeSender: s.taskID}
			}
			return ReceiveOutcome{Value: s.value, Received: true, WokeSender: s.taskID}
		}
		return ReceiveOutcome{Value: s.value, Received: true, WokeSender: s.taskID}
	}
	if len(c.buffer) > 0 {
		head := c.buffer[0]
		c.buffer = c.buffer[1:]
		return ReceiveOutcome{Value: head, Received: true}
	}
	if c.closed {
		return ReceiveOutcome{Closed: true}
	}
	c.receivers = append(c.receivers, taskID)
	return ReceiveOutcome{MustSuspend: true}
}

// TrySend is the non-blocking, never-suspending variant. Like
// SendOrSuspend, a waiting receiver takes the value by direct handoff;
// the caller must deliver the wake (the receiver is in no other queue,
// so dropping wokeReceiver would strand it forever).
func (c *Channel) TrySend(v value.Value) (sent bool, wokeReceiver int64, handoff value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, 0, value.Null
	}
	if len(c.receivers) > 0 {
		recv := c.receivers[0]
		c.receivers = c.receivers[1:]
		return true, recv, v
	}
	if c.capacity > 0 && len(c.buffer) < c.capacity {
		c.buffer = append(c.buffer, v)
		return true, 0, value.Null
	}
	return false, 0, value.Null
}

// TryReceive is the non-blocking, never-suspending variant. It follows
// the same pending-sender promotion as ReceiveOrSuspend (drain the buffer
// head first, keep FIFO) and reports any sender it completed so the
// caller can wake it — a consumed sender is in no other queue.
func (c *Channel) TryReceive() (v value.Value, received bool, wokeSender int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.senders) > 0 {
		s := c.senders[0]
		c.senders = c.senders[1:]
		if c.capacity > 0 && len(c.buffer) > 0 {
			head := c.buffer[0]
			c.buffer = c.buffer[1:]
			c.buffer = append(c.buffer, s.value)
			return head, true, s.taskID
		}
		return s.value, true, s.taskID
	}
	if len(c.buffer) > 0 {
		head := c.buffer[0]
		c.buffer = c.buffer[1:]
		return head, true, 0
	}
	return value.Null, false, 0
}

// Close sets the closed flag and returns the task ids that must be woken
// with a channel-closed failure (all pending receivers and senders).
func (c *Channel) Close() (wokeReceivers, wokeSenders []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	wokeReceivers = c.receivers
	for _, s := range c.senders {
		wokeSenders = append(wokeSenders, s.taskID)
	}
	c.receivers = nil
	c.senders = nil
	return
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Channel) Capacity() int { return c.capacity }
