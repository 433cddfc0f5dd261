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

import "github.com/amoeba/acload/acnet"

// HistorySize is how many outbound packets are retained for retransmission.
const HistorySize = 256

// sentPacket is the retransmittable portion of an outbound packet. The
// ack/time-sync region is rebuilt fresh when it is resent; the fragment
// header and body are replayed verbatim under the original sequence.
type sentPacket struct {
	seq      uint32
	fragment acnet.FragmentHeader
	chunk    []byte
}

// history is a ring of the last HistorySize outbound packets, indexed by
// sequence. Owned by the send task.
type history struct {
	ring [HistorySize]sentPacket
	used [HistorySize]bool
}

func (h *history) Add(seq uint32, fragment acnet.FragmentHeader, chunk []byte) {
	slot := seq % HistorySize
	h.ring[slot] = sentPacket{seq: seq, fragment: fragment, chunk: chunk}
	h.used[slot] = true
}

// Get returns the retained packet for seq, if it has not been overwritten or
// acknowledged away.
func (h *history) Get(seq uint32) (sentPacket, bool) {
	slot := seq % HistorySize
	if !h.used[slot] || h.ring[slot].seq != seq {
		return sentPacket{}, false
	}
	return h.ring[slot], true
}

// Ack releases every retained packet with sequence <= acked.
func (h *history) Ack(acked uint32) {
	for slot := range h.ring {
		if h.used[slot] && h.ring[slot].seq <= acked {
			h.used[slot] = false
			h.ring[slot].chunk = nil
		}
	}
}
