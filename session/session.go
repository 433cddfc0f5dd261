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

// Package session drives one logical game session from cold connect through
// authentication, world handoff and in-world message exchange. A session is
// a set of cooperating tasks (socket receive, send scheduler, state machine)
// sharing nothing but channels.
package session

import (
	"context"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/amoeba/acload/acnet"
	"github.com/amoeba/acload/events"
)

// State is the session's protocol state.
type State int32

const (
	StateAuthLoginRequest State = iota
	StateAuthConnectResponse
	StateAuthConnected
	StateWorldConnected
	StateTerminationStarted
)

func (s State) String() string {
	switch s {
	case StateAuthLoginRequest:
		return "AuthLoginRequest"
	case StateAuthConnectResponse:
		return "AuthConnectResponse"
	case StateAuthConnected:
		return "AuthConnected"
	case StateWorldConnected:
		return "WorldConnected"
	case StateTerminationStarted:
		return "TerminationStarted"
	default:
		return "Unknown"
	}
}

// ActionKind selects what an observer wants the session to do.
type ActionKind int

const (
	ActionLoginCharacter ActionKind = iota
	ActionCreateCharacter
	ActionSendChat
	ActionSendTell
	ActionLoginComplete
	ActionDisconnect
)

// Action is an outgoing command from an observer (auto-login, scripting
// bridge) back into the session.
type Action struct {
	Kind          ActionKind
	CharacterID   uint32
	CharacterName string
	Recipient     string
	Message       string
	CharGen       *acnet.CharGenResult
}

// Tracer captures raw datagrams for offline inspection.
type Tracer interface {
	Record(outbound bool, datagram []byte) error
}

// DialFunc opens the packet socket a session talks through.
type DialFunc func(ctx context.Context) (net.PacketConn, error)

// Config carries everything a session needs. Zero durations fall back to
// the documented defaults.
type Config struct {
	ClientID uint32
	Server   acnet.ServerInfo
	Account  string
	Password string

	Bus      *events.Bus
	Counters *Counters
	Tracer   Tracer
	Dial     DialFunc

	Reconnect ReconnectConfig

	HandshakeTimeout  time.Duration
	HandshakeAttempts int
	TimeSyncPeriod    time.Duration
	DrainTimeout      time.Duration
}

const (
	defaultHandshakeTimeout  = 15 * time.Second
	defaultHandshakeAttempts = 5
	defaultTimeSyncPeriod    = 2 * time.Second
	defaultDrainTimeout      = 2 * time.Second
)

var (
	errServerDisconnect = errors.New("session: server closed the connection")
	errHandshakeTimeout = errors.New("session: no ConnectRequest within the handshake deadline")
)

// Session owns one socket and one protocol state machine.
type Session struct {
	cfg     Config
	sender  *events.Sender
	actions chan Action
	state   int32
}

// New builds a session. The bus may be nil when nothing observes it.
func New(cfg Config) *Session {
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(1)
	}
	if cfg.Counters == nil {
		cfg.Counters = &Counters{}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.HandshakeAttempts <= 0 {
		cfg.HandshakeAttempts = defaultHandshakeAttempts
	}
	if cfg.TimeSyncPeriod <= 0 {
		cfg.TimeSyncPeriod = defaultTimeSyncPeriod
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = func(context.Context) (net.PacketConn, error) {
			return net.ListenUDP("udp", nil)
		}
	}
	return &Session{
		cfg:     cfg,
		sender:  events.NewSender(cfg.Bus, cfg.ClientID),
		actions: make(chan Action, 16),
	}
}

// Actions is the channel observers push commands into.
func (s *Session) Actions() chan<- Action { return s.actions }

// State reports the current protocol state.
func (s *Session) State() State { return State(atomic.LoadInt32(&s.state)) }

func (s *Session) setState(next State) {
	prev := State(atomic.SwapInt32(&s.state, int32(next)))
	if prev != next {
		s.sender.Publish(events.TypeStateChanged, events.SourceClientInternal, events.StateChange{
			From: prev.String(),
			To:   next.String(),
		})
	}
}

// Serve runs the session until the context is cancelled or the connection
// fails beyond its reconnect policy. It implements suture.Service.
func (s *Session) Serve(ctx context.Context) error {
	c := s.cfg.Counters
	c.add(&c.SessionsStarted, 1)

	for attempt := uint32(0); ; attempt++ {
		err := s.runConnection(ctx)
		c.add(&c.Disconnects, 1)

		if ctx.Err() != nil {
			s.publishDisconnect(false, attempt, 0)
			return ctx.Err()
		}

		rc := s.cfg.Reconnect
		if !rc.Enabled || !rc.ShouldAttempt(attempt) {
			s.publishDisconnect(false, attempt, 0)
			if err != nil {
				c.add(&c.SessionsFailed, 1)
			}
			return err
		}

		delay := rc.DelayForAttempt(attempt)
		s.publishDisconnect(true, attempt, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		s.sender.Publish(events.TypeReconnecting, events.SourceSystem, events.Reconnect{
			Attempt: attempt + 1,
			Delay:   delay,
		})
	}
}

func (s *Session) publishDisconnect(willReconnect bool, attempt uint32, delay time.Duration) {
	s.sender.Publish(events.TypeDisconnected, events.SourceSystem, events.Disconnect{
		WillReconnect: willReconnect,
		Attempt:       attempt,
		Delay:         delay,
	})
}

// pendingLogin remembers which character the session is entering the world
// with, so the success event can name it.
type pendingLogin struct {
	id   uint32
	name string
}

// runConnection performs one full connect attempt: resolve, socket, task
// spawn, state machine, teardown with bounded drain.
func (s *Session) runConnection(ctx context.Context) error {
	loginAddr, err := s.cfg.Server.LoginAddr(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve login addr")
	}
	worldAddr, err := s.cfg.Server.WorldAddr(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve world addr")
	}

	sock, err := s.cfg.Dial(ctx)
	if err != nil {
		return errors.Wrap(err, "open socket")
	}

	c := &conn{
		sess:      s,
		sock:      sock,
		loginAddr: loginAddr,
		worldAddr: worldAddr,
		outbox:    make(chan *OutgoingMessage, 128),
		inbound:   make(chan inboundItem, 64),
		recvErr:   make(chan error, 1),
		sendErr:   make(chan error, 1),
		stopSend:  make(chan struct{}),
		sendDone:  make(chan struct{}),
		die:       make(chan struct{}),
	}

	go c.recvLoop()
	go c.sendLoop()

	s.setState(StateAuthLoginRequest)
	s.sender.Publish(events.TypeConnecting, events.SourceSystem, nil)
	c.push(&OutgoingMessage{Kind: KindLoginRequest, Account: s.cfg.Account, Password: s.cfg.Password})

	err = s.stateLoop(ctx, c)

	// teardown: goodbye packet, bounded drain, then release the tasks
	s.setState(StateTerminationStarted)
	c.push(&OutgoingMessage{Kind: KindDisconnect})
	close(c.stopSend)
	select {
	case <-c.sendDone:
	case <-time.After(s.cfg.DrainTimeout):
	}
	close(c.die)
	sock.Close()
	return err
}

// stateLoop is the state machine task. It owns the protocol state and
// reacts to inbound packets, observer actions and the handshake timer.
func (s *Session) stateLoop(ctx context.Context, c *conn) error {
	cnt := s.cfg.Counters

	handshake := time.NewTimer(s.cfg.HandshakeTimeout)
	defer handshake.Stop()
	loginAttempts := 1

	var hs struct {
		clientID uint16
		table    uint16
	}
	var pending pendingLogin

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-c.recvErr:
			return err

		case err := <-c.sendErr:
			return err

		case <-handshake.C:
			if s.State() != StateAuthLoginRequest {
				continue
			}
			if loginAttempts >= s.cfg.HandshakeAttempts {
				return errors.WithStack(errHandshakeTimeout)
			}
			loginAttempts++
			log.Printf("client %d: login retry %d/%d", s.cfg.ClientID, loginAttempts, s.cfg.HandshakeAttempts)
			c.push(&OutgoingMessage{Kind: KindLoginRequest, Account: s.cfg.Account, Password: s.cfg.Password})
			handshake.Reset(s.cfg.HandshakeTimeout)

		case act := <-s.actions:
			if done := s.handleAction(c, act, &pending); done {
				return nil
			}

		case item := <-c.inbound:
			pkt := item.pkt
			flags := pkt.Header.Flags

			if flags.Has(acnet.FlagDisconnect) || flags.Has(acnet.FlagNetError) || flags.Has(acnet.FlagNetErrorDisconnect) {
				return errors.WithStack(errServerDisconnect)
			}

			if cr := pkt.Optional.ConnectRequest; cr != nil && s.State() == StateAuthLoginRequest {
				hs.clientID = uint16(cr.NetID)
				hs.table = pkt.Header.Iteration
				c.push(&OutgoingMessage{
					Kind:     KindConnectResponse,
					Cookie:   cr.Cookie,
					ClientID: hs.clientID,
					Table:    hs.table,
					Seed:     cr.OutgoingSeed,
				})
				s.setState(StateAuthConnectResponse)
				handshake.Stop()
				continue
			}

			if s.State() == StateAuthConnectResponse && hs.clientID != 0 && pkt.Header.RecipientID == hs.clientID {
				s.setState(StateAuthConnected)
				cnt.add(&cnt.SessionsConnected, 1)
				s.sender.Publish(events.TypeConnected, events.SourceSystem, nil)
			}

			if item.msg != nil {
				s.handleMessage(c, item.msg, &pending)
			}
		}
	}
}

func (s *Session) handleAction(c *conn, act Action, pending *pendingLogin) (done bool) {
	switch act.Kind {
	case ActionLoginCharacter:
		pending.id = act.CharacterID
		pending.name = act.CharacterName
		c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.EncodeEnterWorldRequest()})
		c.push(&OutgoingMessage{
			Kind:     KindAppMessage,
			Body:     acnet.EncodeEnterWorld(act.CharacterID, s.cfg.Account),
			Deadline: time.Now().Add(500 * time.Millisecond),
		})
	case ActionCreateCharacter:
		if act.CharGen != nil {
			c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.EncodeCharacterCreate(s.cfg.Account, act.CharGen)})
		}
	case ActionSendChat:
		c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.EncodeTalk(act.Message)})
	case ActionSendTell:
		c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.EncodeTell(act.Recipient, act.Message)})
	case ActionLoginComplete:
		c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.EncodeLoginComplete()})
	case ActionDisconnect:
		return true
	}
	return false
}

func (s *Session) handleMessage(c *conn, msg *acnet.Message, pending *pendingLogin) {
	cnt := s.cfg.Counters

	switch msg.Opcode {
	case acnet.OpDDDInterrogation:
		s.sender.Publish(events.TypeUpdatingStarted, events.SourceNetwork, nil)
		c.push(&OutgoingMessage{Kind: KindAppMessage, Body: acnet.DDDUpToDateResponse})
		s.sender.Publish(events.TypeUpdatingDone, events.SourceClientInternal, nil)

	case acnet.OpCharacterList:
		cl, err := acnet.DecodeCharacterList(msg.Body)
		if err != nil {
			cnt.add(&cnt.FramingErrors, 1)
			log.Printf("client %d: character list: %+v", s.cfg.ClientID, err)
			return
		}
		s.sender.Publish(events.TypeCharacterList, events.SourceNetwork, cl)

	case acnet.OpCharacterError:
		ce, err := acnet.DecodeCharacterError(msg.Body)
		if err != nil {
			cnt.add(&cnt.FramingErrors, 1)
			return
		}
		s.sender.Publish(events.TypeCharacterError, events.SourceNetwork, ce)

	case acnet.OpServerName:
		if name, err := acnet.DecodeServerName(msg.Body); err == nil {
			s.sender.Publish(events.TypeWorldName, events.SourceNetwork, name)
		}

	case acnet.OpCreatePlayer:
		if id, err := acnet.DecodeCreatePlayer(msg.Body); err == nil {
			s.sender.Publish(events.TypeCreatePlayer, events.SourceNetwork, id)
		}

	case acnet.OpLoginComplete:
		s.setState(StateWorldConnected)
		cnt.add(&cnt.SessionsInWorld, 1)
		c.push(&OutgoingMessage{Kind: KindSwitchToWorld})
		s.sender.Publish(events.TypeLoginSucceeded, events.SourceNetwork, events.LoginSuccess{
			CharacterID:   pending.id,
			CharacterName: pending.name,
		})

	case acnet.OpHearSpeech, acnet.OpHearRangedSpeech, acnet.OpHearDirectSpeech:
		if sp, err := acnet.DecodeHearSpeech(msg.Body); err == nil {
			s.sender.Publish(events.TypeChatReceived, events.SourceNetwork, sp)
		}

	default:
		s.sender.Publish(events.TypeRawMessage, events.SourceNetwork, events.RawMessage{Message: msg})
	}
}
