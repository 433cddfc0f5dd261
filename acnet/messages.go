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

package acnet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Application message opcodes the core cares about. Anything else travels as
// an opaque Message and is left to observers.
const (
	OpCharacterCreate          uint32 = 0xF656
	OpEnterWorld               uint32 = 0xF657
	OpCharacterList            uint32 = 0xF658
	OpCharacterError           uint32 = 0xF659
	OpCreatePlayer             uint32 = 0xF746
	OpGameEvent                uint32 = 0xF7B0
	OpGameAction               uint32 = 0xF7B1
	OpLoginComplete            uint32 = 0xF7C7
	OpEnterWorldRequest        uint32 = 0xF7C8
	OpServerName               uint32 = 0xF7E1
	OpDDDInterrogation         uint32 = 0xF7E5
	OpDDDInterrogationResponse uint32 = 0xF7E6
	OpDDDEndDDD                uint32 = 0xF7EA
	OpHearSpeech               uint32 = 0x02BB
	OpHearRangedSpeech         uint32 = 0x02BC
	OpHearDirectSpeech         uint32 = 0x02BD

	// game action types inside OpGameAction
	ActionTalk uint32 = 0x0015
	ActionTell uint32 = 0x0005
)

// ClientVersion is the retail client build the server expects.
const ClientVersion = "1802"

const authTypePassword = 2

// DDDUpToDateResponse tells the server the client needs no data patches:
// opcode, language 1, and an empty iteration list.
var DDDUpToDateResponse = []byte{
	0xE6, 0xF7, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// Message is one application-level message: a numeric opcode plus its body.
// Decoders for known opcodes live below; unknown opcodes stay opaque.
type Message struct {
	Opcode uint32
	Body   []byte
}

// ParseMessage splits a reassembled blob into opcode and body.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) < 4 {
		return nil, errors.WithStack(ErrShortMessage)
	}
	return &Message{
		Opcode: binary.LittleEndian.Uint32(b),
		Body:   b[4:],
	}, nil
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// appendString16L writes the protocol's short string: u16 length, raw bytes,
// zero padding to the next 4-byte boundary (length prefix included).
func appendString16L(b []byte, s string) []byte {
	b = appendUint16(b, uint16(len(s)))
	b = append(b, s...)
	if pad := (2 + len(s)) % 4; pad != 0 {
		b = append(b, make([]byte, 4-pad)...)
	}
	return b
}

// readString16L is the inverse of appendString16L.
func readString16L(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errors.WithStack(ErrShortMessage)
	}
	n := int(binary.LittleEndian.Uint16(b))
	total := 2 + n
	if pad := total % 4; pad != 0 {
		total += 4 - pad
	}
	if len(b) < total {
		return "", nil, errors.WithStack(ErrShortMessage)
	}
	return string(b[2 : 2+n]), b[total:], nil
}

// EncodeLoginRequest builds the LoginRequest payload (everything after the
// transit header). Layout follows the retail client's password login: version
// string, auth region length, auth type, auth flags, timestamp, account,
// login-as, then the packed password region with no trailing padding.
func EncodeLoginRequest(account, password string, timestamp int64) []byte {
	packed := 1
	if len(password) > 255 {
		packed = 2
	}
	// everything after the length field: auth type, auth flags, timestamp,
	// account string, login-as and the password region
	acctLen := 2 + len(account)
	if pad := acctLen % 4; pad != 0 {
		acctLen += 4 - pad
	}
	authLen := 4 + 4 + 4 + acctLen + 4 + 4 + packed + len(password)

	b := make([]byte, 0, 8+4+authLen)
	b = appendString16L(b, ClientVersion)
	b = appendUint32(b, uint32(authLen))
	b = appendUint32(b, authTypePassword)
	b = appendUint32(b, 0) // auth flags, plain password login
	b = appendUint32(b, uint32(int32(timestamp)))
	b = appendString16L(b, account)
	b = appendUint32(b, 0) // account-to-login-as
	b = appendUint32(b, uint32(packed+len(password)))
	if packed == 1 {
		b = append(b, byte(len(password)))
	} else {
		b = append(b, byte(len(password)>>8)|0x80, byte(len(password)))
	}
	b = append(b, password...)
	return b
}

// EncodeEnterWorldRequest asks the server to ready a world slot.
func EncodeEnterWorldRequest() []byte {
	return appendUint32(nil, OpEnterWorldRequest)
}

// EncodeEnterWorld logs a character into the world.
func EncodeEnterWorld(characterID uint32, account string) []byte {
	b := appendUint32(nil, OpEnterWorld)
	b = appendUint32(b, characterID)
	b = appendString16L(b, account)
	return b
}

// EncodeLoginComplete acknowledges the initial object stream.
func EncodeLoginComplete() []byte {
	return appendUint32(nil, OpLoginComplete)
}

// EncodeTalk wraps a say-to-local-area chat line in a game action.
func EncodeTalk(message string) []byte {
	b := appendUint32(nil, OpGameAction)
	b = appendUint32(b, ActionTalk)
	b = appendString16L(b, message)
	return b
}

// EncodeTell wraps a direct tell in a game action.
func EncodeTell(recipient, message string) []byte {
	b := appendUint32(nil, OpGameAction)
	b = appendUint32(b, ActionTell)
	b = appendString16L(b, message)
	b = appendString16L(b, recipient)
	return b
}

// CharacterIdentity is one entry in the account's character list.
type CharacterIdentity struct {
	ID           uint32
	Name         string
	DeletePeriod uint32
}

// CharacterList is the server's character-select roster.
type CharacterList struct {
	Characters []CharacterIdentity
	Account    string
	Slots      uint32
}

// DecodeCharacterList parses the body of an OpCharacterList message.
func DecodeCharacterList(body []byte) (*CharacterList, error) {
	if len(body) < 8 {
		return nil, errors.WithStack(ErrShortMessage)
	}
	// leading u32 is unused by this client
	body = body[4:]
	n := binary.LittleEndian.Uint32(body)
	body = body[4:]

	cl := &CharacterList{Characters: make([]CharacterIdentity, 0, n)}
	for i := uint32(0); i < n; i++ {
		if len(body) < 4 {
			return nil, errors.WithStack(ErrShortMessage)
		}
		var c CharacterIdentity
		c.ID = binary.LittleEndian.Uint32(body)
		body = body[4:]
		var err error
		if c.Name, body, err = readString16L(body); err != nil {
			return nil, err
		}
		if len(body) < 4 {
			return nil, errors.WithStack(ErrShortMessage)
		}
		c.DeletePeriod = binary.LittleEndian.Uint32(body)
		body = body[4:]
		cl.Characters = append(cl.Characters, c)
	}
	if len(body) < 4 {
		return nil, errors.WithStack(ErrShortMessage)
	}
	body = body[4:] // unused slot filler
	var err error
	if cl.Account, body, err = readString16L(body); err != nil {
		return nil, err
	}
	if len(body) >= 4 {
		cl.Slots = binary.LittleEndian.Uint32(body)
	}
	return cl, nil
}

// CharacterError is the server's character-operation failure report.
type CharacterError struct {
	Code uint32
}

func DecodeCharacterError(body []byte) (*CharacterError, error) {
	if len(body) < 4 {
		return nil, errors.WithStack(ErrShortMessage)
	}
	return &CharacterError{Code: binary.LittleEndian.Uint32(body)}, nil
}

// DecodeServerName extracts the world name announcement.
func DecodeServerName(body []byte) (string, error) {
	if len(body) < 8 {
		return "", errors.WithStack(ErrShortMessage)
	}
	// connected count and max precede the name
	name, _, err := readString16L(body[8:])
	return name, err
}

// Speech is a chat line overheard from the world.
type Speech struct {
	Message     string
	Sender      string
	MessageType uint32
}

// DecodeHearSpeech parses local and ranged speech bodies.
func DecodeHearSpeech(body []byte) (*Speech, error) {
	var s Speech
	var err error
	if s.Message, body, err = readString16L(body); err != nil {
		return nil, err
	}
	if s.Sender, body, err = readString16L(body); err != nil {
		return nil, err
	}
	if len(body) < 8 {
		return nil, errors.WithStack(ErrShortMessage)
	}
	// sender object id precedes the chat channel
	s.MessageType = binary.LittleEndian.Uint32(body[4:])
	return &s, nil
}

// DecodeCreatePlayer yields the character object entering the world.
func DecodeCreatePlayer(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, errors.WithStack(ErrShortMessage)
	}
	return binary.LittleEndian.Uint32(body), nil
}
