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

const (
	// HeaderSize is the fixed transit header length.
	HeaderSize = 20
	// FragmentHeaderSize follows the transit header when BlobFragments is set.
	FragmentHeaderSize = 16
	// MTU bounds the encoded datagram; payloads that would exceed it must be
	// fragmented before they reach the codec.
	MTU = 1464

	checksumOffset = 8
)

var (
	ErrShortHeader  = errors.New("acnet: datagram shorter than transit header")
	ErrShortPacket  = errors.New("acnet: datagram shorter than declared size")
	ErrBadFlags     = errors.New("acnet: illegal flag combination")
	ErrOversize     = errors.New("acnet: encoded packet exceeds MTU")
	ErrBadChecksum  = errors.New("acnet: checksum mismatch")
	ErrShortOption  = errors.New("acnet: truncated optional header field")
	ErrShortMessage = errors.New("acnet: truncated message")
)

// TransitHeader is the 20-byte little-endian header on every datagram.
type TransitHeader struct {
	Sequence     uint32
	Flags        Flag
	Checksum     uint32
	RecipientID  uint16
	TimeSinceLast uint16
	Size         uint16
	Iteration    uint16
}

func (h *TransitHeader) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.Sequence)
	binary.LittleEndian.PutUint32(b[4:], uint32(h.Flags))
	binary.LittleEndian.PutUint32(b[8:], h.Checksum)
	binary.LittleEndian.PutUint16(b[12:], h.RecipientID)
	binary.LittleEndian.PutUint16(b[14:], h.TimeSinceLast)
	binary.LittleEndian.PutUint16(b[16:], h.Size)
	binary.LittleEndian.PutUint16(b[18:], h.Iteration)
}

func (h *TransitHeader) unmarshal(b []byte) error {
	if len(b) < HeaderSize {
		return errors.WithStack(ErrShortHeader)
	}
	h.Sequence = binary.LittleEndian.Uint32(b[0:])
	h.Flags = Flag(binary.LittleEndian.Uint32(b[4:]))
	h.Checksum = binary.LittleEndian.Uint32(b[8:])
	h.RecipientID = binary.LittleEndian.Uint16(b[12:])
	h.TimeSinceLast = binary.LittleEndian.Uint16(b[14:])
	h.Size = binary.LittleEndian.Uint16(b[16:])
	h.Iteration = binary.LittleEndian.Uint16(b[18:])
	return nil
}

// FragmentHeader prefixes each fragment of a blob when BlobFragments is set.
type FragmentHeader struct {
	Sequence uint32
	BlobID   uint32
	Count    uint16
	Size     uint16
	Index    uint16
	Group    uint16
}

// Marshal writes the 16-byte fragment header.
func (f *FragmentHeader) Marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], f.Sequence)
	binary.LittleEndian.PutUint32(b[4:], f.BlobID)
	binary.LittleEndian.PutUint16(b[8:], f.Count)
	binary.LittleEndian.PutUint16(b[10:], f.Size)
	binary.LittleEndian.PutUint16(b[12:], f.Index)
	binary.LittleEndian.PutUint16(b[14:], f.Group)
}

// Unmarshal reads the 16-byte fragment header.
func (f *FragmentHeader) Unmarshal(b []byte) error {
	if len(b) < FragmentHeaderSize {
		return errors.WithStack(ErrShortOption)
	}
	f.Sequence = binary.LittleEndian.Uint32(b[0:])
	f.BlobID = binary.LittleEndian.Uint32(b[4:])
	f.Count = binary.LittleEndian.Uint16(b[8:])
	f.Size = binary.LittleEndian.Uint16(b[10:])
	f.Index = binary.LittleEndian.Uint16(b[12:])
	f.Group = binary.LittleEndian.Uint16(b[14:])
	return nil
}
