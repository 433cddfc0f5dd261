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
	"fmt"
	"sync/atomic"
)

// Counters is the shared per-harness counter block. All fields are updated
// with atomics; one instance is typically shared by every session.
type Counters struct {
	PacketsSent      uint64
	PacketsReceived  uint64
	BytesSent        uint64
	BytesReceived    uint64
	ChecksumFailures uint64
	FramingErrors    uint64
	ReassemblyErrors uint64
	BlobsCompleted   uint64
	RetransmitsAsked uint64
	RetransmitsServed uint64
	SessionsStarted  uint64
	SessionsConnected uint64
	SessionsInWorld  uint64
	SessionsFailed   uint64
	Disconnects      uint64
}

func (c *Counters) add(field *uint64, n uint64) {
	if c != nil {
		atomic.AddUint64(field, n)
	}
}

// Copy snapshots the block for display.
func (c *Counters) Copy() Counters {
	var d Counters
	if c == nil {
		return d
	}
	d.PacketsSent = atomic.LoadUint64(&c.PacketsSent)
	d.PacketsReceived = atomic.LoadUint64(&c.PacketsReceived)
	d.BytesSent = atomic.LoadUint64(&c.BytesSent)
	d.BytesReceived = atomic.LoadUint64(&c.BytesReceived)
	d.ChecksumFailures = atomic.LoadUint64(&c.ChecksumFailures)
	d.FramingErrors = atomic.LoadUint64(&c.FramingErrors)
	d.ReassemblyErrors = atomic.LoadUint64(&c.ReassemblyErrors)
	d.BlobsCompleted = atomic.LoadUint64(&c.BlobsCompleted)
	d.RetransmitsAsked = atomic.LoadUint64(&c.RetransmitsAsked)
	d.RetransmitsServed = atomic.LoadUint64(&c.RetransmitsServed)
	d.SessionsStarted = atomic.LoadUint64(&c.SessionsStarted)
	d.SessionsConnected = atomic.LoadUint64(&c.SessionsConnected)
	d.SessionsInWorld = atomic.LoadUint64(&c.SessionsInWorld)
	d.SessionsFailed = atomic.LoadUint64(&c.SessionsFailed)
	d.Disconnects = atomic.LoadUint64(&c.Disconnects)
	return d
}

// Header matches ToSlice field for field, for CSV logging.
func (c *Counters) Header() []string {
	return []string{
		"PacketsSent", "PacketsReceived", "BytesSent", "BytesReceived",
		"ChecksumFailures", "FramingErrors", "ReassemblyErrors", "BlobsCompleted",
		"RetransmitsAsked", "RetransmitsServed",
		"SessionsStarted", "SessionsConnected", "SessionsInWorld",
		"SessionsFailed", "Disconnects",
	}
}

// ToSlice renders the current values in Header order.
func (c *Counters) ToSlice() []string {
	d := c.Copy()
	return []string{
		fmt.Sprint(d.PacketsSent), fmt.Sprint(d.PacketsReceived),
		fmt.Sprint(d.BytesSent), fmt.Sprint(d.BytesReceived),
		fmt.Sprint(d.ChecksumFailures), fmt.Sprint(d.FramingErrors),
		fmt.Sprint(d.ReassemblyErrors), fmt.Sprint(d.BlobsCompleted),
		fmt.Sprint(d.RetransmitsAsked), fmt.Sprint(d.RetransmitsServed),
		fmt.Sprint(d.SessionsStarted), fmt.Sprint(d.SessionsConnected),
		fmt.Sprint(d.SessionsInWorld), fmt.Sprint(d.SessionsFailed),
		fmt.Sprint(d.Disconnects),
	}
}
