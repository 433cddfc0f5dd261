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

// CryptoSystem is the ISAAC keystream that masks header checksums once the
// EncryptedChecksum flag is negotiated. The server hands the client a 32-bit
// outgoing seed in its ConnectRequest; the ISAAC key block is that seed's
// 4-byte little-endian form repeated eight times.
type CryptoSystem struct {
	mm  [256]uint32
	rsl [256]uint32
	aa  uint32
	bb  uint32
	cc  uint32
	idx int
}

// NewCryptoSystem seeds a keystream from the server-provided outgoing seed.
func NewCryptoSystem(seed uint32) *CryptoSystem {
	cs := &CryptoSystem{}
	for i := 0; i < 8; i++ {
		cs.rsl[i] = seed
	}
	cs.reseed()
	return cs
}

// NextKey advances the keystream by one 32-bit draw.
func (c *CryptoSystem) NextKey() uint32 {
	if c.idx == 256 {
		c.round()
		c.idx = 0
	}
	v := c.rsl[c.idx]
	c.idx++
	return v
}

// Clone snapshots the keystream state. Drawing from the clone does not
// advance the original.
func (c *CryptoSystem) Clone() *CryptoSystem {
	dup := *c
	return &dup
}

func mix(s *[8]uint32) {
	s[0] ^= s[1] << 11
	s[3] += s[0]
	s[1] += s[2]
	s[1] ^= s[2] >> 2
	s[4] += s[1]
	s[2] += s[3]
	s[2] ^= s[3] << 8
	s[5] += s[2]
	s[3] += s[4]
	s[3] ^= s[4] >> 16
	s[6] += s[3]
	s[4] += s[5]
	s[4] ^= s[5] << 10
	s[7] += s[4]
	s[5] += s[6]
	s[5] ^= s[6] >> 4
	s[0] += s[5]
	s[6] += s[7]
	s[6] ^= s[7] << 8
	s[1] += s[6]
	s[7] += s[0]
	s[7] ^= s[0] >> 9
	s[2] += s[7]
	s[0] += s[1]
}

// reseed runs the standard ISAAC key schedule over whatever is in rsl and
// produces the first result block.
func (c *CryptoSystem) reseed() {
	var s [8]uint32
	for i := range s {
		s[i] = 0x9e3779b9 // the golden ratio
	}
	for i := 0; i < 4; i++ {
		mix(&s)
	}
	for i := 0; i < 256; i += 8 {
		for j := 0; j < 8; j++ {
			s[j] += c.rsl[i+j]
		}
		mix(&s)
		copy(c.mm[i:i+8], s[:])
	}
	for i := 0; i < 256; i += 8 {
		for j := 0; j < 8; j++ {
			s[j] += c.mm[i+j]
		}
		mix(&s)
		copy(c.mm[i:i+8], s[:])
	}
	c.round()
}

func (c *CryptoSystem) round() {
	c.cc++
	c.bb += c.cc
	for i := 0; i < 256; i++ {
		x := c.mm[i]
		switch i & 3 {
		case 0:
			c.aa ^= c.aa << 13
		case 1:
			c.aa ^= c.aa >> 6
		case 2:
			c.aa ^= c.aa << 2
		case 3:
			c.aa ^= c.aa >> 16
		}
		c.aa += c.mm[(i+128)&0xff]
		y := c.mm[(x>>2)&0xff] + c.aa + c.bb
		c.mm[i] = y
		c.bb = c.mm[(y>>10)&0xff] + x
		c.rsl[i] = c.bb
	}
}
