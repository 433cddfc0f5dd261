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

package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBusCapacity is the per-subscription buffer depth.
const DefaultBusCapacity = 1024

// Bus is a broadcast channel with bounded per-subscriber buffers. Publishing
// never blocks: a subscriber that falls behind loses envelopes and receives a
// TypeLagged notification when it catches up enough to take one.
type Bus struct {
	mutex  sync.Mutex
	subs   map[int]*Subscription
	nextID int
	cap    int
}

// Subscription is one observer's view of the bus. Receive from C; Close when
// done. Dropping a subscription never affects publishers or other observers.
type Subscription struct {
	bus    *Bus
	id     int
	mask   Type
	events chan Envelope
	missed uint64
	closed bool
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		subs: make(map[int]*Subscription),
		cap:  capacity,
	}
}

// Subscribe registers an observer for the masked event types.
func (b *Bus) Subscribe(mask Type) *Subscription {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	s := &Subscription{
		bus:    b,
		id:     b.nextID,
		mask:   mask,
		events: make(chan Envelope, b.cap),
	}
	b.subs[b.nextID] = s
	b.nextID++
	return s
}

// Publish delivers e to every matching subscription without blocking. A send
// that finds no room records a miss; the next delivery that does fit is
// preceded by a lag notification carrying the miss count.
func (b *Bus) Publish(e Envelope) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, s := range b.subs {
		if s.mask&e.Type == 0 {
			continue
		}
		if missed := atomic.LoadUint64(&s.missed); missed > 0 {
			lag := Envelope{
				Type:    TypeLagged,
				Data:    Lagged{Missed: missed},
				Context: Context{ClientID: e.Context.ClientID},
				Source:  SourceSystem,
			}
			select {
			case s.events <- lag:
				atomic.StoreUint64(&s.missed, 0)
			default:
				atomic.AddUint64(&s.missed, 1)
				continue
			}
		}
		select {
		case s.events <- e:
		default:
			atomic.AddUint64(&s.missed, 1)
		}
	}
}

// Subscribers reports the current observer count.
func (b *Bus) Subscribers() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subs)
}

// C is the subscription's event stream. It is closed by Close.
func (s *Subscription) C() <-chan Envelope { return s.events }

// Missed reports envelopes dropped since the last lag notification.
func (s *Subscription) Missed() uint64 { return atomic.LoadUint64(&s.missed) }

// Close detaches the observer from the bus.
func (s *Subscription) Close() {
	s.bus.mutex.Lock()
	defer s.bus.mutex.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s.id)
	close(s.events)
}

// Sender tags a session's raw observations with its client id and a
// monotonic per-session sequence before they reach the bus.
type Sender struct {
	bus      *Bus
	clientID uint32
	seq      uint64
}

func NewSender(bus *Bus, clientID uint32) *Sender {
	return &Sender{bus: bus, clientID: clientID}
}

// Publish wraps and broadcasts one observation.
func (s *Sender) Publish(typ Type, src Source, data interface{}) {
	seq := atomic.AddUint64(&s.seq, 1) - 1
	s.bus.Publish(Envelope{
		Type: typ,
		Data: data,
		Context: Context{
			ClientID:   s.clientID,
			SessionSeq: seq,
		},
		Source: src,
	})
}

// ClientID identifies the session this sender belongs to.
func (s *Sender) ClientID() uint32 { return s.clientID }
