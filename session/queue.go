// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package session

import (
	"container/heap"
	"time"
)

// Kind discriminates what the send task does with a queued message.
type Kind int

const (
	// KindAppMessage is an opcode-tagged application message; it travels as
	// a fragmented blob.
	KindAppMessage Kind = iota
	// KindLoginRequest opens the handshake on the login port.
	KindLoginRequest
	// KindConnectResponse echoes the cookie to the world port.
	KindConnectResponse
	// KindSwitchToWorld retargets the socket's default remote; emitted once.
	KindSwitchToWorld
	// KindRequestRetransmit asks the server to resend missing sequences.
	KindRequestRetransmit
	// KindServeRetransmit resends our own packets from the history ring.
	KindServeRetransmit
	// KindPeerAck trims the history ring up to an acknowledged sequence.
	KindPeerAck
	// KindAckPending records the latest contiguous inbound sequence for the
	// next outbound header.
	KindAckPending
	// KindDisconnect emits the goodbye packet during teardown.
	KindDisconnect
)

// OutgoingMessage is one unit of work for the send task. A zero Deadline
// means "send on the next tick".
type OutgoingMessage struct {
	Kind     Kind
	Body     []byte
	Cookie   uint64
	Account  string
	Password string
	Seqs     []uint32
	Seq      uint32
	ClientID uint16
	Table    uint16
	Seed     uint32
	Deadline time.Time
}

type queueItem struct {
	msg   *OutgoingMessage
	order uint64
}

type messageHeap []queueItem

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	di, dj := h[i].msg.Deadline, h[j].msg.Deadline
	if di.Equal(dj) {
		return h[i].order < h[j].order
	}
	return di.Before(dj)
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x interface{}) { *h = append(*h, x.(queueItem)) }

func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// sendQueue orders messages by deadline; ties keep enqueue order. Owned by
// the send task; not safe for concurrent use.
type sendQueue struct {
	heap  messageHeap
	order uint64
}

func newSendQueue() *sendQueue {
	return &sendQueue{}
}

func (q *sendQueue) Push(msg *OutgoingMessage) {
	q.order++
	heap.Push(&q.heap, queueItem{msg: msg, order: q.order})
}

// PopReady removes and returns the earliest message whose deadline has
// passed, or nil when nothing is due.
func (q *sendQueue) PopReady(now time.Time) *OutgoingMessage {
	if len(q.heap) == 0 {
		return nil
	}
	if q.heap[0].msg.Deadline.After(now) {
		return nil
	}
	return heap.Pop(&q.heap).(queueItem).msg
}

// Requeue puts a message back at the head after a would-block send. The
// original deadline is kept so it goes out first on the next tick.
func (q *sendQueue) Requeue(msg *OutgoingMessage) {
	heap.Push(&q.heap, queueItem{msg: msg, order: 0})
}

// NextDeadline reports when the earliest queued message becomes due.
func (q *sendQueue) NextDeadline() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].msg.Deadline, true
}

func (q *sendQueue) Len() int { return len(q.heap) }
