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
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/thejerf/suture/v4"

	"github.com/amoeba/acload/acnet"
	"github.com/amoeba/acload/events"
	"github.com/amoeba/acload/session"
)

// RunConfig describes one load-test run.
type RunConfig struct {
	Host          string
	Port          uint16
	Clients       uint32
	RateLimit     time.Duration // spacing between session starts
	StatsInterval time.Duration // 0 disables the periodic report
	Verbose       bool
	BusCapacity   int
	Reconnect     session.ReconnectConfig
	Tracer        session.Tracer
	Dial          session.DialFunc
	Counters      *session.Counters // optional shared block, e.g. for external CSV logging
}

// Validate rejects configurations the harness cannot run with.
func (c RunConfig) Validate() error {
	if c.Host == "" {
		return errors.New("runner: host must not be empty")
	}
	if c.Clients == 0 {
		return errors.New("runner: client count must be non-zero")
	}
	if c.RateLimit <= 0 {
		return errors.New("runner: rate limit must be non-zero")
	}
	return nil
}

// ConsumerBuilder makes the observer set for one session. The actions
// channel feeds commands back into that session.
type ConsumerBuilder func(clientID uint32, cfg session.Config, actions chan<- session.Action) events.Consumer

// ClientConfigBuilder customizes a session's config; the runner fills in the
// bus, counters and shared plumbing afterwards.
type ClientConfigBuilder func(clientID uint32) session.Config

// Result is what a finished run reports.
type Result struct {
	Counters session.Counters
	Stats    *Stats
	Elapsed  time.Duration
}

// sessionService adapts a session to suture: sessions manage their own
// reconnect policy, so the supervisor never restarts them.
type sessionService struct {
	sess *session.Session
	done func()
}

func (w sessionService) Serve(ctx context.Context) error {
	defer w.done()
	if err := w.sess.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("session ended: %+v", err)
	}
	return suture.ErrDoNotRestart
}

// DefaultClientConfig derives a session config from the deterministic
// naming scheme.
func DefaultClientConfig(host string, port uint16) ClientConfigBuilder {
	return func(clientID uint32) session.Config {
		naming := NewNaming(clientID)
		return session.Config{
			ClientID: clientID,
			Server:   acnet.NewServerInfo(host, port),
			Account:  naming.AccountName(),
			Password: naming.Password(),
		}
	}
}

// DefaultConsumers wires the stock stats and auto-login observers.
func DefaultConsumers(stats *Stats, verbose bool) ConsumerBuilder {
	return func(clientID uint32, cfg session.Config, actions chan<- session.Action) events.Consumer {
		characterName := NewNaming(clientID).CharacterName()
		return events.NewCompositeConsumer(
			NewStatsConsumer(clientID, stats).WithVerbose(verbose),
			NewAutoLoginConsumer(clientID, characterName, actions).WithVerbose(verbose),
		)
	}
}

// Run spawns the fleet, spacing session starts by the rate limit, and blocks
// until every session has terminated or the context is cancelled. Shutdown
// is cooperative: each session drains its send queue for a bounded time.
func Run(ctx context.Context, rc RunConfig, buildConsumer ConsumerBuilder, buildClient ClientConfigBuilder) (*Result, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if buildClient == nil {
		buildClient = DefaultClientConfig(rc.Host, rc.Port)
	}

	bus := events.NewBus(rc.BusCapacity)
	counters := rc.Counters
	if counters == nil {
		counters = &session.Counters{}
	}
	stats := NewStats(counters)
	if buildConsumer == nil {
		buildConsumer = DefaultConsumers(stats, rc.Verbose)
	}

	start := time.Now()
	supCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sup := suture.New("acload", suture.Spec{
		// session failures are their own business; never escalate the tree
		FailureThreshold: float64(rc.Clients) + 1,
	})
	supErr := sup.ServeBackground(supCtx)

	var wg sync.WaitGroup
	var pumps sync.WaitGroup
	var subs []*events.Subscription

	spawn := func(clientID uint32) {
		cfg := buildClient(clientID)
		cfg.Bus = bus
		cfg.Counters = counters
		cfg.Reconnect = rc.Reconnect
		if cfg.Tracer == nil {
			cfg.Tracer = rc.Tracer
		}
		if cfg.Dial == nil {
			cfg.Dial = rc.Dial
		}

		sess := session.New(cfg)
		consumer := buildConsumer(clientID, cfg, sess.Actions())

		sub := bus.Subscribe(events.AllTypes)
		subs = append(subs, sub)
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			for e := range sub.C() {
				consumer.OnEnvelope(e)
			}
		}()

		wg.Add(1)
		sup.Add(sessionService{sess: sess, done: wg.Done})
	}

	// stagger the fleet
	var launched uint32
launch:
	for clientID := uint32(0); clientID < rc.Clients; clientID++ {
		spawn(clientID)
		launched++
		if clientID+1 < rc.Clients {
			select {
			case <-ctx.Done():
				break launch
			case <-time.After(rc.RateLimit):
			}
		}
	}
	log.Printf("launched %d/%d sessions", launched, rc.Clients)

	if rc.StatsInterval > 0 {
		ticker := time.NewTicker(rc.StatsInterval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-supCtx.Done():
					return
				case <-ticker.C:
					stats.Print(time.Since(start))
				}
			}
		}()
	}

	// wait for the fleet to finish or the caller to pull the plug
	fleetDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(fleetDone)
	}()
	select {
	case <-fleetDone:
	case <-ctx.Done():
		<-fleetDone // sessions observe cancellation and drain
	}

	cancel()
	<-supErr

	// closing the subscriptions ends the consumer pumps
	for _, sub := range subs {
		sub.Close()
	}
	busDrained := make(chan struct{})
	go func() {
		pumps.Wait()
		close(busDrained)
	}()
	select {
	case <-busDrained:
	case <-time.After(time.Second):
	}

	return &Result{
		Counters: counters.Copy(),
		Stats:    stats,
		Elapsed:  time.Since(start),
	}, nil
}
