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

	"github.com/amoeba/acload/acnet"
	"github.com/amoeba/acload/events"
	"github.com/amoeba/acload/session"
)

// StatsConsumer folds a session's events into the fleet stats.
type StatsConsumer struct {
	clientID uint32
	stats    *Stats
	verbose  bool
}

func NewStatsConsumer(clientID uint32, stats *Stats) *StatsConsumer {
	return &StatsConsumer{clientID: clientID, stats: stats}
}

func (c *StatsConsumer) WithVerbose(v bool) *StatsConsumer {
	c.verbose = v
	return c
}

func (c *StatsConsumer) OnEnvelope(e events.Envelope) {
	if e.Context.ClientID != c.clientID {
		return
	}
	if c.verbose {
		log.Printf("client %d: %v from %v seq %d", c.clientID, e.Type, e.Source, e.Context.SessionSeq)
	}
	if e.Type == events.TypeStateChanged {
		if sc, ok := e.Data.(events.StateChange); ok {
			c.stats.RecordTransition(c.clientID, sc.From, sc.To)
		}
	}
}

// AutoLoginConsumer walks a session from character select into the world:
// it picks the deterministic character, creates it if the account is fresh,
// and completes the login once the player object lands.
type AutoLoginConsumer struct {
	clientID      uint32
	characterName string
	actions       chan<- session.Action
	verbose       bool
	created       bool
}

func NewAutoLoginConsumer(clientID uint32, characterName string, actions chan<- session.Action) *AutoLoginConsumer {
	return &AutoLoginConsumer{
		clientID:      clientID,
		characterName: characterName,
		actions:       actions,
	}
}

func (c *AutoLoginConsumer) WithVerbose(v bool) *AutoLoginConsumer {
	c.verbose = v
	return c
}

func (c *AutoLoginConsumer) push(act session.Action) {
	select {
	case c.actions <- act:
	default:
		log.Printf("client %d: action channel full, dropping %v", c.clientID, act.Kind)
	}
}

func (c *AutoLoginConsumer) OnEnvelope(e events.Envelope) {
	if e.Context.ClientID != c.clientID {
		return
	}
	switch e.Type {
	case events.TypeCharacterList:
		cl, ok := e.Data.(*acnet.CharacterList)
		if !ok {
			return
		}
		for _, ch := range cl.Characters {
			if ch.Name == c.characterName {
				if c.verbose {
					log.Printf("client %d: logging in as %s", c.clientID, ch.Name)
				}
				c.push(session.Action{
					Kind:          session.ActionLoginCharacter,
					CharacterID:   ch.ID,
					CharacterName: ch.Name,
				})
				return
			}
		}
		if c.created {
			log.Printf("client %d: character %s still missing after creation", c.clientID, c.characterName)
			return
		}
		c.created = true
		if c.verbose {
			log.Printf("client %d: creating character %s", c.clientID, c.characterName)
		}
		c.push(session.Action{
			Kind:    session.ActionCreateCharacter,
			CharGen: NewCharacterBuilder(c.characterName).Build(),
		})

	case events.TypeCreatePlayer:
		c.push(session.Action{Kind: session.ActionLoginComplete})

	case events.TypeReconnecting:
		// a fresh connection replays character select
		c.created = false
	}
}

// LoggingConsumer prints every envelope; useful with --verbose and a small
// fleet.
type LoggingConsumer struct{}

func (LoggingConsumer) OnEnvelope(e events.Envelope) {
	log.Printf("client %d: %v %v: %v", e.Context.ClientID, e.Source, e.Type, e.Data)
}
