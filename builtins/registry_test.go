package builtins

import (
	"testing"

	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/mutexreg"
	"github.com/emberlang/ember/safepoint"
	"github.com/emberlang/ember/task"
	"github.com/emberlang/ember/value"
)

func newTestContext() *Context {
	heap := gcheap.New(safepoint.NewCoordinator(1), 0)
	return &Context{
		Heap:    heap,
		Mutexes: mutexreg.NewRegistry(),
		Tasks:   task.NewRegistry(),
		StrOf: func(v value.Value) (string, bool) {
			if !v.IsPtr() {
				return "", false
			}
			s, isStr := gcheap.ObjectFor(v).(*gcheap.HeapString)
			if !isStr {
				return "", false
			}
			return s.String(), true
		},
	}
}

func TestStringConcat(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	a := ctx.Heap.Allocate(gcheap.NewString("foo"))
	b := ctx.Heap.Allocate(gcheap.NewString("bar"))

	res := tbl.Dispatch(StrConcat, ctx, 1, []value.Value{a, b})
	if res.Fault != nil {
		t.Fatalf("unexpected fault: %v", res.Fault)
	}
	got, isStr := asString(res.Value)
	if !isStr || got.String() != "foobar" {
		t.Fatalf("concat = %v, want %q", res.Value, "foobar")
	}
}

func TestArrayAppendAndGet(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	arr := tbl.Dispatch(ArrNew, ctx, 1, []value.Value{value.I32(0)})
	if arr.Fault != nil {
		t.Fatalf("array.new faulted: %v", arr.Fault)
	}

	appendRes := tbl.Dispatch(ArrAppend, ctx, 1, []value.Value{arr.Value, value.I32(42)})
	if appendRes.Fault != nil {
		t.Fatalf("array.append faulted: %v", appendRes.Fault)
	}

	getRes := tbl.Dispatch(ArrGet, ctx, 1, []value.Value{arr.Value, value.I32(0)})
	if getRes.Fault != nil {
		t.Fatalf("array.get faulted: %v", getRes.Fault)
	}
	n, isI32 := getRes.Value.AsI32()
	if !isI32 || n != 42 {
		t.Fatalf("array.get = %v, want 42", getRes.Value)
	}
}

func TestMapSetGetContentEquality(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	m := tbl.Dispatch(MapNew, ctx, 1, nil)
	key1 := ctx.Heap.Allocate(gcheap.NewString("name"))
	key2 := ctx.Heap.Allocate(gcheap.NewString("name")) // distinct object, same content

	setRes := tbl.Dispatch(MapSet, ctx, 1, []value.Value{m.Value, key1, value.I32(7)})
	if setRes.Fault != nil {
		t.Fatalf("map.set faulted: %v", setRes.Fault)
	}

	getRes := tbl.Dispatch(MapGet, ctx, 1, []value.Value{m.Value, key2})
	if getRes.Fault != nil {
		t.Fatalf("map.get faulted: %v", getRes.Fault)
	}
	n, isI32 := getRes.Value.AsI32()
	if !isI32 || n != 7 {
		t.Fatalf("map.get with content-equal key = %v, want 7", getRes.Value)
	}
}

func TestMutexTryLockIsExclusive(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	newRes := tbl.Dispatch(MutexNew, ctx, 1, nil)
	id := newRes.Value

	first := tbl.Dispatch(MutexTryLock, ctx, 1, []value.Value{id})
	if b, _ := first.Value.AsBool(); !b {
		t.Fatal("first try_lock should succeed")
	}

	second := tbl.Dispatch(MutexTryLock, ctx, 2, []value.Value{id})
	if b, _ := second.Value.AsBool(); b {
		t.Fatal("second try_lock on a held mutex should fail")
	}
}

func TestChannelSendReceiveRendezvous(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	ch := tbl.Dispatch(ChanNew, ctx, 1, []value.Value{value.I32(0)})

	recv := tbl.Dispatch(ChanReceive, ctx, 2, []value.Value{ch.Value})
	if recv.Suspend == nil {
		t.Fatal("receive on an empty unbuffered channel should suspend")
	}

	send := tbl.Dispatch(ChanSend, ctx, 1, []value.Value{ch.Value, value.I32(42)})
	if send.Fault != nil {
		t.Fatalf("send faulted: %v", send.Fault)
	}
	if send.WokePeer != 2 {
		t.Fatalf("send should wake the waiting receiver task 2, got %d", send.WokePeer)
	}
}

func TestChannelTrySendWakesWaitingReceiver(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	ch := tbl.Dispatch(ChanNew, ctx, 1, []value.Value{value.I32(0)})

	recv := tbl.Dispatch(ChanReceive, ctx, 2, []value.Value{ch.Value})
	if recv.Suspend == nil {
		t.Fatal("receive on an empty unbuffered channel should suspend")
	}

	try := tbl.Dispatch(ChanTrySend, ctx, 1, []value.Value{ch.Value, value.I32(7)})
	if b, _ := try.Value.AsBool(); !b {
		t.Fatal("try_send with a waiting receiver should report true")
	}
	if try.WokePeer != 2 {
		t.Fatalf("try_send should wake the waiting receiver task 2, got %d", try.WokePeer)
	}
	if !try.HasHandoff {
		t.Fatal("try_send handoff must carry the receiver's resume value")
	}
	if got, _ := try.HandoffVal.AsI32(); got != 7 {
		t.Fatalf("handoff value = %#v, want i32 7", try.HandoffVal)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := newTestContext()
	tbl := NewTable()

	src := ctx.Heap.Allocate(gcheap.NewString(`{"a":1,"b":[true,null,"x"]}`))
	parsed := tbl.Dispatch(JSONParse, ctx, 1, []value.Value{src})
	if parsed.Fault != nil {
		t.Fatalf("json.parse faulted: %v", parsed.Fault)
	}

	out := tbl.Dispatch(JSONStringify, ctx, 1, []value.Value{parsed.Value})
	if out.Fault != nil {
		t.Fatalf("json.stringify faulted: %v", out.Fault)
	}
	if _, isStr := asString(out.Value); !isStr {
		t.Fatal("json.stringify should return a string value")
	}
}
