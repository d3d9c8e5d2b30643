package channel

import (
	"testing"

	"github.com/emberlang/ember/value"
)

func TestTrySendTryReceiveRoundTrip(t *testing.T) {
	const capacity = 3
	ch := New(capacity)

	for i := int32(0); i < capacity; i++ {
		if sent, _, _ := ch.TrySend(value.I32(i)); !sent {
			t.Fatalf("try_send(%d) should succeed below capacity", i)
		}
	}
	if sent, _, _ := ch.TrySend(value.I32(99)); sent {
		t.Fatal("try_send past capacity should fail")
	}
	for i := int32(0); i < capacity; i++ {
		v, ok, _ := ch.TryReceive()
		if !ok {
			t.Fatalf("try_receive %d should succeed", i)
		}
		if got, _ := v.AsI32(); got != i {
			t.Fatalf("try_receive returned %d, want %d (FIFO order)", got, i)
		}
	}
	if _, ok, _ := ch.TryReceive(); ok {
		t.Fatal("try_receive on a drained channel should fail")
	}
}

// A try_send that lands while a receiver is parked must hand the value
// off and report the receiver's id: the receiver sits in no other queue,
// so the caller is the only party that can wake it.
func TestTrySendHandsOffToWaitingReceiver(t *testing.T) {
	ch := New(0)
	if out := ch.ReceiveOrSuspend(7); !out.MustSuspend {
		t.Fatalf("empty receive must suspend, got %+v", out)
	}

	sent, wokeReceiver, handoff := ch.TrySend(value.I32(42))
	if !sent {
		t.Fatal("try_send with a waiting receiver should succeed")
	}
	if wokeReceiver != 7 {
		t.Fatalf("woke receiver %d, want 7", wokeReceiver)
	}
	if got, _ := handoff.AsI32(); got != 42 {
		t.Fatalf("handoff value %d, want 42", got)
	}
	if ch.Len() != 0 {
		t.Fatalf("direct handoff must not buffer, len = %d", ch.Len())
	}
}

// The mirror case: a try_receive that completes a parked sender must
// report that sender's id, and on a buffered channel must still drain the
// buffer head first (promoting the sender's value to the tail).
func TestTryReceiveWakesPendingSenderInFIFOOrder(t *testing.T) {
	ch := New(1)
	if out := ch.SendOrSuspend(value.I32(1), 10); !out.Sent {
		t.Fatalf("first send should buffer, got %+v", out)
	}
	if out := ch.SendOrSuspend(value.I32(2), 11); !out.MustSuspend {
		t.Fatalf("second send should suspend on a full buffer, got %+v", out)
	}

	v, ok, wokeSender := ch.TryReceive()
	if !ok || wokeSender != 11 {
		t.Fatalf("try_receive = (%#v, %v, woke %d), want to wake sender 11", v, ok, wokeSender)
	}
	if got, _ := v.AsI32(); got != 1 {
		t.Fatalf("try_receive returned %d, want the buffered head 1", got)
	}

	v, ok, wokeSender = ch.TryReceive()
	if !ok || wokeSender != 0 {
		t.Fatalf("second try_receive = (%#v, %v, woke %d)", v, ok, wokeSender)
	}
	if got, _ := v.AsI32(); got != 2 {
		t.Fatalf("second try_receive returned %d, want the promoted 2", got)
	}
}

func TestRendezvousSendSuspendsUntilReceiver(t *testing.T) {
	ch := New(0)

	out := ch.SendOrSuspend(value.I32(42), 1)
	if !out.MustSuspend {
		t.Fatalf("unbuffered send with no receiver must suspend, got %+v", out)
	}

	recv := ch.ReceiveOrSuspend(2)
	if !recv.Received {
		t.Fatalf("receive should consume the pending sender, got %+v", recv)
	}
	if got, _ := recv.Value.AsI32(); got != 42 {
		t.Errorf("received %d, want 42", got)
	}
	if recv.WokeSender != 1 {
		t.Errorf("woke sender %d, want 1", recv.WokeSender)
	}
}

func TestReceiverHandoffWakesDirectly(t *testing.T) {
	ch := New(0)

	if out := ch.ReceiveOrSuspend(7); !out.MustSuspend {
		t.Fatalf("empty receive must suspend, got %+v", out)
	}
	out := ch.SendOrSuspend(value.I32(5), 8)
	if !out.Sent || out.WokeReceiver != 7 {
		t.Fatalf("send should hand off to the waiting receiver, got %+v", out)
	}
	if got, _ := out.HandoffValue.AsI32(); got != 5 {
		t.Errorf("handoff value %d, want 5", got)
	}
}

// A buffered receive from a full channel with a pending sender must drain
// the buffer head and promote the sender's value to the tail, preserving
// per-channel FIFO.
func TestBufferedReceivePromotesPendingSender(t *testing.T) {
	ch := New(1)
	if out := ch.SendOrSuspend(value.I32(1), 10); !out.Sent {
		t.Fatalf("first send should buffer, got %+v", out)
	}
	if out := ch.SendOrSuspend(value.I32(2), 11); !out.MustSuspend {
		t.Fatalf("second send should suspend on a full buffer, got %+v", out)
	}

	recv := ch.ReceiveOrSuspend(12)
	if !recv.Received || recv.WokeSender != 11 {
		t.Fatalf("receive should wake the pending sender, got %+v", recv)
	}
	if got, _ := recv.Value.AsI32(); got != 1 {
		t.Errorf("received %d, want the buffered head 1", got)
	}

	recv = ch.ReceiveOrSuspend(12)
	if got, _ := recv.Value.AsI32(); !recv.Received || got != 2 {
		t.Errorf("second receive = %+v, want the promoted value 2", recv)
	}
}

func TestCloseWakesAllPending(t *testing.T) {
	ch := New(0)
	ch.ReceiveOrSuspend(1)
	ch.ReceiveOrSuspend(2)

	receivers, senders := ch.Close()
	if len(receivers) != 2 || receivers[0] != 1 || receivers[1] != 2 {
		t.Errorf("woken receivers = %v, want [1 2]", receivers)
	}
	if len(senders) != 0 {
		t.Errorf("woken senders = %v, want none", senders)
	}

	if out := ch.SendOrSuspend(value.I32(1), 3); !out.Closed {
		t.Errorf("send on closed channel = %+v, want Closed", out)
	}
	if out := ch.ReceiveOrSuspend(3); !out.Closed {
		t.Errorf("receive on closed empty channel = %+v, want Closed", out)
	}
}

func TestCloseDrainsBufferBeforeFailing(t *testing.T) {
	ch := New(2)
	ch.SendOrSuspend(value.I32(1), 1)
	ch.Close()

	recv := ch.ReceiveOrSuspend(2)
	if !recv.Received {
		t.Fatalf("buffered value should survive close, got %+v", recv)
	}
	if out := ch.ReceiveOrSuspend(2); !out.Closed {
		t.Errorf("drained closed channel should fail receives, got %+v", out)
	}
}

// Five sends into a capacity-2 channel with no receiver: the extra sends
// wait as pending senders, and the buffer never holds more than 2 values.
func TestBufferNeverExceedsCapacity(t *testing.T) {
	ch := New(2)
	for i := 0; i < 5; i++ {
		ch.SendOrSuspend(value.I32(int32(i)), int64(i+1))
	}
	if ch.Len() > ch.Capacity() {
		t.Fatalf("buffer size %d exceeds capacity %d", ch.Len(), ch.Capacity())
	}
}
