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

// Package events carries session observations to any number of observers
// over a lossy broadcast bus.
package events

import (
	"time"

	"github.com/amoeba/acload/acnet"
)

// Source tells observers which side of the session produced an event.
type Source int

const (
	SourceNetwork Source = iota
	SourceClientInternal
	SourceSystem
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceClientInternal:
		return "client"
	case SourceSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Type is a bitmask so subscribers can filter at the bus.
type Type uint64

const (
	TypeStateChanged Type = 1 << iota
	TypeConnecting
	TypeConnected
	TypeCharacterList
	TypeCharacterError
	TypeLoginSucceeded
	TypeLoginFailed
	TypeCreatePlayer
	TypeChatReceived
	TypeWorldName
	TypeUpdatingStarted
	TypeUpdatingDone
	TypeReassemblyError
	TypeDisconnected
	TypeReconnecting
	TypeRawMessage
	TypeLagged

	AllTypes = ^Type(0)
)

func (t Type) String() string {
	switch t {
	case TypeStateChanged:
		return "StateChanged"
	case TypeConnecting:
		return "Connecting"
	case TypeConnected:
		return "Connected"
	case TypeCharacterList:
		return "CharacterList"
	case TypeCharacterError:
		return "CharacterError"
	case TypeLoginSucceeded:
		return "LoginSucceeded"
	case TypeLoginFailed:
		return "LoginFailed"
	case TypeCreatePlayer:
		return "CreatePlayer"
	case TypeChatReceived:
		return "ChatReceived"
	case TypeWorldName:
		return "WorldName"
	case TypeUpdatingStarted:
		return "UpdatingStarted"
	case TypeUpdatingDone:
		return "UpdatingDone"
	case TypeReassemblyError:
		return "ReassemblyError"
	case TypeDisconnected:
		return "Disconnected"
	case TypeReconnecting:
		return "Reconnecting"
	case TypeRawMessage:
		return "RawMessage"
	case TypeLagged:
		return "Lagged"
	default:
		return "Unknown"
	}
}

// Context ties an envelope to its session and position in that session's
// publication order. SessionSeq is unrelated to the wire sequence.
type Context struct {
	ClientID   uint32
	SessionSeq uint64
}

// Envelope is what observers receive.
type Envelope struct {
	Type    Type
	Data    interface{}
	Context Context
	Source  Source
}

// StateChange reports a session state transition.
type StateChange struct {
	From string
	To   string
}

// LoginSuccess is published when the character enters the world.
type LoginSuccess struct {
	CharacterID   uint32
	CharacterName string
}

// LoginFailure carries the reason a login attempt died.
type LoginFailure struct {
	Reason string
}

// Disconnect is the terminal event of a connection attempt.
type Disconnect struct {
	WillReconnect bool
	Attempt       uint32
	Delay         time.Duration
}

// Reconnect announces the next connection attempt after backoff.
type Reconnect struct {
	Attempt uint32
	Delay   time.Duration
}

// Lagged tells a slow observer how many envelopes it missed.
type Lagged struct {
	Missed uint64
}

// RawMessage exposes opcodes the core does not decode.
type RawMessage struct {
	Message *acnet.Message
}

// Consumer is anything that observes envelopes. Implementations must not
// block; the pump delivering to them is per-subscription.
type Consumer interface {
	OnEnvelope(Envelope)
}

// CompositeConsumer fans one envelope out to several children.
type CompositeConsumer struct {
	children []Consumer
}

func NewCompositeConsumer(children ...Consumer) *CompositeConsumer {
	return &CompositeConsumer{children: children}
}

func (c *CompositeConsumer) OnEnvelope(e Envelope) {
	for _, child := range c.children {
		child.OnEnvelope(e)
	}
}
