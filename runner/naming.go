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

// Package runner spawns and supervises fleets of load-test sessions.
package runner

import "strings"

// MaxClientID is the largest id the 4-letter code space can express.
const MaxClientID = 26*26*26*26 - 1 // 456975

// EncodeClientID turns an id into its 4-letter base-26 code, AAAA through
// ZZZZ. Over-range ids clamp to ZZZZ.
func EncodeClientID(id uint32) string {
	if id > MaxClientID {
		id = MaxClientID
	}
	var code [4]byte
	for i := 3; i >= 0; i-- {
		code[i] = byte('A' + id%26)
		id /= 26
	}
	return string(code[:])
}

// DecodeClientID is the inverse of EncodeClientID. It reports false for
// anything that is not exactly four uppercase letters.
func DecodeClientID(code string) (uint32, bool) {
	if len(code) != 4 {
		return 0, false
	}
	var id uint32
	for i := 0; i < 4; i++ {
		ch := code[i]
		if ch < 'A' || ch > 'Z' {
			return 0, false
		}
		id = id*26 + uint32(ch-'A')
	}
	return id, true
}

// Naming maps a client id onto its deterministic account, password and
// character names.
type Naming struct {
	clientID uint32
	code     string
}

func NewNaming(clientID uint32) Naming {
	return Naming{clientID: clientID, code: EncodeClientID(clientID)}
}

// Code is the client's 4-letter identifier.
func (n Naming) Code() string { return n.code }

// AccountName is Load-XXXX.
func (n Naming) AccountName() string {
	var b strings.Builder
	b.WriteString("Load-")
	b.WriteString(n.code)
	return b.String()
}

// Password is identical to the account name.
func (n Naming) Password() string { return n.AccountName() }

// CharacterName is Load-XXXX-A.
func (n Naming) CharacterName() string {
	return n.AccountName() + "-A"
}
