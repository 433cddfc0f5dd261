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

package runner

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/amoeba/acload/session"
)

// Stats aggregates the fleet's wire counters with per-state session tallies
// and time-in-state accounting.
type Stats struct {
	Counters *session.Counters

	mu          sync.Mutex
	states      map[uint32]string
	sinceState  map[uint32]time.Time
	stateTime   map[string]time.Duration
	transitions uint64
}

func NewStats(counters *session.Counters) *Stats {
	return &Stats{
		Counters:   counters,
		states:     make(map[uint32]string),
		sinceState: make(map[uint32]time.Time),
		stateTime:  make(map[string]time.Duration),
	}
}

// RecordTransition accounts one session state change.
func (s *Stats) RecordTransition(clientID uint32, from, to string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.states[clientID]; ok {
		s.stateTime[prev] += now.Sub(s.sinceState[clientID])
	}
	s.states[clientID] = to
	s.sinceState[clientID] = now
	s.transitions++
}

// Transitions reports how many state changes were recorded.
func (s *Stats) Transitions() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

// byState snapshots how many sessions sit in each state right now.
func (s *Stats) byState() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.states))
	for _, st := range s.states {
		out[st]++
	}
	return out
}

// Print writes a one-shot progress report.
func (s *Stats) Print(elapsed time.Duration) {
	c := s.Counters.Copy()
	log.Printf("[%s] sent %d recv %d cksumfail %d reasmfail %d retransmit %d/%d",
		elapsed.Round(time.Second),
		c.PacketsSent, c.PacketsReceived, c.ChecksumFailures, c.ReassemblyErrors,
		c.RetransmitsAsked, c.RetransmitsServed)

	states := s.byState()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("  %-20s %d", name, states[name])
	}
}

// PrintFinal writes the end-of-run summary.
func (s *Stats) PrintFinal(elapsed time.Duration) {
	c := s.Counters.Copy()
	banner := color.New(color.FgGreen, color.Bold)
	banner.Printf("=== load test finished after %s ===\n", elapsed.Round(time.Millisecond))
	log.Printf("sessions: started %d connected %d in-world %d failed %d disconnects %d",
		c.SessionsStarted, c.SessionsConnected, c.SessionsInWorld, c.SessionsFailed, c.Disconnects)
	log.Printf("packets: sent %d (%d bytes) recv %d (%d bytes)",
		c.PacketsSent, c.BytesSent, c.PacketsReceived, c.BytesReceived)
	log.Printf("errors: checksum %d framing %d reassembly %d",
		c.ChecksumFailures, c.FramingErrors, c.ReassemblyErrors)
	log.Printf("state transitions: %d", s.Transitions())

	s.mu.Lock()
	// close out the open intervals
	now := time.Now()
	for id, st := range s.states {
		s.stateTime[st] += now.Sub(s.sinceState[id])
		s.sinceState[id] = now
	}
	names := make([]string, 0, len(s.stateTime))
	for name := range s.stateTime {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("  time in %-20s %s", name, s.stateTime[name].Round(time.Millisecond))
	}
	s.mu.Unlock()
}
