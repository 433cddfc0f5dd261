package session

import (
	"testing"
	"time"
)

func TestQueueImmediateFIFO(t *testing.T) {
	q := newSendQueue()
	for i := 0; i < 5; i++ {
		q.Push(&OutgoingMessage{Kind: KindAppMessage, Seq: uint32(i)})
	}
	now := time.Now()
	for i := 0; i < 5; i++ {
		m := q.PopReady(now)
		if m == nil || m.Seq != uint32(i) {
			t.Fatalf("pop %d: got %+v", i, m)
		}
	}
	if q.PopReady(now) != nil {
		t.Fatal("queue should be empty")
	}
}

func TestQueueDeadlineOrdering(t *testing.T) {
	q := newSendQueue()
	now := time.Now()
	q.Push(&OutgoingMessage{Seq: 3, Deadline: now.Add(3 * time.Second)})
	q.Push(&OutgoingMessage{Seq: 1, Deadline: now.Add(1 * time.Second)})
	q.Push(&OutgoingMessage{Seq: 2, Deadline: now.Add(2 * time.Second)})

	if m := q.PopReady(now); m != nil {
		t.Fatalf("nothing is due yet, got %+v", m)
	}
	if m := q.PopReady(now.Add(1500 * time.Millisecond)); m == nil || m.Seq != 1 {
		t.Fatalf("expected seq 1, got %+v", m)
	}
	if m := q.PopReady(now.Add(10 * time.Second)); m == nil || m.Seq != 2 {
		t.Fatalf("expected seq 2, got %+v", m)
	}
	if m := q.PopReady(now.Add(10 * time.Second)); m == nil || m.Seq != 3 {
		t.Fatalf("expected seq 3, got %+v", m)
	}
}

func TestQueueEqualDeadlinesKeepOrder(t *testing.T) {
	q := newSendQueue()
	d := time.Now().Add(time.Second)
	for i := 0; i < 10; i++ {
		q.Push(&OutgoingMessage{Seq: uint32(i), Deadline: d})
	}
	for i := 0; i < 10; i++ {
		m := q.PopReady(d)
		if m == nil || m.Seq != uint32(i) {
			t.Fatalf("pop %d: got %+v", i, m)
		}
	}
}

func TestQueueRequeueGoesFirst(t *testing.T) {
	q := newSendQueue()
	q.Push(&OutgoingMessage{Seq: 1})
	q.Push(&OutgoingMessage{Seq: 2})

	now := time.Now()
	head := q.PopReady(now)
	if head.Seq != 1 {
		t.Fatalf("head %+v", head)
	}
	q.Requeue(head)
	if m := q.PopReady(now); m.Seq != 1 {
		t.Fatalf("requeued message must come back first, got %+v", m)
	}
}

func TestQueueNextDeadline(t *testing.T) {
	q := newSendQueue()
	if _, ok := q.NextDeadline(); ok {
		t.Fatal("empty queue has no deadline")
	}
	d := time.Now().Add(time.Minute)
	q.Push(&OutgoingMessage{Deadline: d})
	got, ok := q.NextDeadline()
	if !ok || !got.Equal(d) {
		t.Fatalf("got %v %v", got, ok)
	}
}
