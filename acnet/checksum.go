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

import "encoding/binary"

// ChecksumSentinel is written into the header's checksum field before the
// packet checksum is computed.
const ChecksumSentinel uint32 = 0xBADD70DD

// Checksum computes the protocol's additive hash over b. The input is read
// as little-endian 32-bit words with wrapping addition; the 0-3 trailing
// bytes are folded in from the high byte downward. When includeSize is set
// the length of b is added into the high word first.
func Checksum(b []byte, includeSize bool) uint32 {
	var m uint32
	if includeSize {
		m = uint32(len(b)) << 16
	}

	n := len(b) &^ 3
	for i := 0; i < n; i += 4 {
		m += binary.LittleEndian.Uint32(b[i:])
	}

	shift := uint(3)
	for i := n; i < len(b); i++ {
		m += uint32(b[i]) << (shift * 8)
		shift--
	}

	return m
}

// SignWithKey masks a raw checksum with one keystream draw. The same
// operation unmasks on the receive side.
func SignWithKey(raw, key uint32) uint32 {
	return raw ^ key
}
