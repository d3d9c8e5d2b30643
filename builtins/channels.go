package builtins

import (
	"github.com/emberlang/ember/channel"
	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

// Channel natives (0x04xx), thin wrappers over channel.Channel's
// suspend/resume protocol, reachable both as NativeCall methods and via
// the dedicated NewChannel opcode the compiler emits for channel
// literals.
const (
	ChanNew NativeID = RangeChannel + iota
	ChanSend
	ChanReceive
	ChanTrySend
	ChanTryReceive
	ChanClose
	ChanLen
	ChanClosed
)

var channelFuncs = []Func{
	ChanNew % rangeSize:        chanNew,
	ChanSend % rangeSize:       chanSend,
	ChanReceive % rangeSize:    chanReceive,
	ChanTrySend % rangeSize:    chanTrySend,
	ChanTryReceive % rangeSize: chanTryReceive,
	ChanClose % rangeSize:      chanClose,
	ChanLen % rangeSize:        chanLen,
	ChanClosed % rangeSize:     chanClosed,
}

func asChannel(v value.Value) (*channel.Channel, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	ch, isChan := gcheap.ObjectFor(v).(*channel.Channel)
	return ch, isChan
}

func chanNew(ctx *Context, taskID int64, args []value.Value) Result {
	capacity, isI32 := args[0].AsI32()
	if !isI32 || capacity < 0 {
		return fault(exception.KindTypeError, "channel capacity must be a non-negative i32")
	}
	return okResult(ctx.Heap.Allocate(channel.New(int(capacity))))
}

func chanSend(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "send receiver is not a channel")
	}
	outcome := ch.SendOrSuspend(args[1], taskID)
	if outcome.Closed {
		return fault(exception.KindChannelClosed, "send on closed channel")
	}
	if outcome.MustSuspend {
		return Result{Suspend: &task.SuspendReason{Kind: task.SuspendChannelSend, SendValue: args[1]}}
	}
	res := Result{Value: value.Null}
	if outcome.WokeReceiver != 0 {
		res.WokePeer = outcome.WokeReceiver
		res.HasHandoff = true
		res.HandoffVal = outcome.HandoffValue
	}
	return res
}

func chanReceive(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "receive receiver is not a channel")
	}
	outcome := ch.ReceiveOrSuspend(taskID)
	if outcome.Closed {
		return fault(exception.KindChannelClosed, "receive on closed channel")
	}
	if outcome.MustSuspend {
		return Result{Suspend: &task.SuspendReason{Kind: task.SuspendChannelReceive}}
	}
	res := Result{Value: outcome.Value}
	if outcome.WokeSender != 0 {
		res.WokePeer = outcome.WokeSender
		res.HasHandoff = true
		res.HandoffVal = value.Null
	}
	return res
}

func chanTrySend(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "try_send receiver is not a channel")
	}
	sent, wokeReceiver, handoff := ch.TrySend(args[1])
	res := Result{Value: value.Bool(sent)}
	if wokeReceiver != 0 {
		res.WokePeer = wokeReceiver
		res.HasHandoff = true
		res.HandoffVal = handoff
	}
	return res
}

func chanTryReceive(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "try_receive receiver is not a channel")
	}
	v, received, wokeSender := ch.TryReceive()
	if !received {
		return okResult(value.Null)
	}
	res := Result{Value: v}
	if wokeSender != 0 {
		// The completed sender's resume value is the null a send returns.
		res.WokePeer = wokeSender
		res.HasHandoff = true
		res.HandoffVal = value.Null
	}
	return res
}

func chanClose(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "close receiver is not a channel")
	}
	receivers, senders := ch.Close()
	return Result{Value: value.Null, WokeClosed: append(receivers, senders...)}
}

func chanLen(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "len receiver is not a channel")
	}
	return okResult(value.I32(int32(ch.Len())))
}

func chanClosed(ctx *Context, taskID int64, args []value.Value) Result {
	ch, isChan := asChannel(args[0])
	if !isChan {
		return fault(exception.KindTypeError, "closed receiver is not a channel")
	}
	return okResult(value.Bool(ch.Closed()))
}
