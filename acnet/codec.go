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
	"math"

	"github.com/pkg/errors"
)

// ServerSwitch moves the session to another connection endpoint.
type ServerSwitch struct {
	Sequence uint32
	Type     uint32
}

// EchoResponse carries the server's echo timing pair.
type EchoResponse struct {
	HoldingTime float32
	LocalTime   float32
}

// FlowData is the server's flow-control report.
type FlowData struct {
	Bytes    uint32
	Interval uint16
}

// CICMD is an admin command smuggled in the header region.
type CICMD struct {
	Command   uint32
	Parameter uint32
}

// ConnectRequest is the 32-byte optional header the login server sends to
// finish the handshake.
type ConnectRequest struct {
	ServerTime   float64
	Cookie       uint64
	NetID        int32
	OutgoingSeed uint32
	IncomingSeed uint32
	Unknown      uint32
}

// Optional is the variable header region between the transit header and the
// payload. Fields appear on the wire in the canonical order below; nil means
// absent. EncryptedChecksum and Disconnect are pure markers and live only in
// the flags word.
type Optional struct {
	Retransmitted     []uint32
	ServerSwitch      *ServerSwitch
	RequestRetransmit []uint32
	RejectRetransmit  []uint32
	AckSequence       *uint32
	TimeSync          *float64
	EchoRequest       *float32
	EchoResponse      *EchoResponse
	Flow              *FlowData
	ConnectRequest    *ConnectRequest
	Cookie            *uint64 // ConnectResponse / WorldLoginRequest echo
	CICMD             *CICMD
}

// Packet is one decoded (or to-be-encoded) datagram.
type Packet struct {
	Header   TransitHeader
	Optional Optional
	Payload  []byte
}

func putList(b []byte, list []uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(list)))
	b = append(b, tmp[:]...)
	for _, v := range list {
		binary.LittleEndian.PutUint32(tmp[:], v)
		b = append(b, tmp[:]...)
	}
	return b
}

func getList(b []byte) ([]uint32, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.WithStack(ErrShortOption)
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < n*4 {
		return nil, nil, errors.WithStack(ErrShortOption)
	}
	list := make([]uint32, n)
	for i := range list {
		list[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return list, b[n*4:], nil
}

func (o *Optional) encode(flags Flag) ([]byte, error) {
	var b []byte
	var tmp [8]byte

	if flags.Has(FlagRetransmission) {
		b = putList(b, o.Retransmitted)
	}
	if flags.Has(FlagServerSwitch) {
		if o.ServerSwitch == nil {
			return nil, errors.Wrap(ErrBadFlags, "ServerSwitch flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], o.ServerSwitch.Sequence)
		binary.LittleEndian.PutUint32(tmp[4:], o.ServerSwitch.Type)
		b = append(b, tmp[:8]...)
	}
	if flags.Has(FlagRequestRetransmit) {
		b = putList(b, o.RequestRetransmit)
	}
	if flags.Has(FlagRejectRetransmit) {
		b = putList(b, o.RejectRetransmit)
	}
	if flags.Has(FlagAckSequence) {
		if o.AckSequence == nil {
			return nil, errors.Wrap(ErrBadFlags, "AckSequence flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], *o.AckSequence)
		b = append(b, tmp[:4]...)
	}
	if flags.Has(FlagTimeSync) {
		if o.TimeSync == nil {
			return nil, errors.Wrap(ErrBadFlags, "TimeSync flag without data")
		}
		binary.LittleEndian.PutUint64(tmp[0:], math.Float64bits(*o.TimeSync))
		b = append(b, tmp[:8]...)
	}
	if flags.Has(FlagEchoRequest) {
		if o.EchoRequest == nil {
			return nil, errors.Wrap(ErrBadFlags, "EchoRequest flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], math.Float32bits(*o.EchoRequest))
		b = append(b, tmp[:4]...)
	}
	if flags.Has(FlagEchoResponse) {
		if o.EchoResponse == nil {
			return nil, errors.Wrap(ErrBadFlags, "EchoResponse flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], math.Float32bits(o.EchoResponse.HoldingTime))
		binary.LittleEndian.PutUint32(tmp[4:], math.Float32bits(o.EchoResponse.LocalTime))
		b = append(b, tmp[:8]...)
	}
	if flags.Has(FlagFlow) {
		if o.Flow == nil {
			return nil, errors.Wrap(ErrBadFlags, "Flow flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], o.Flow.Bytes)
		binary.LittleEndian.PutUint16(tmp[4:], o.Flow.Interval)
		b = append(b, tmp[:6]...)
	}
	if flags.Has(FlagConnectRequest) {
		// server-side field; the client never emits it
		return nil, errors.Wrap(ErrBadFlags, "ConnectRequest is decode-only")
	}
	if flags.Has(FlagConnectResponse) || flags.Has(FlagWorldLoginRequest) {
		if o.Cookie == nil {
			return nil, errors.Wrap(ErrBadFlags, "cookie flag without cookie")
		}
		binary.LittleEndian.PutUint64(tmp[0:], *o.Cookie)
		b = append(b, tmp[:8]...)
	}
	if flags.Has(FlagCICMDCommand) {
		if o.CICMD == nil {
			return nil, errors.Wrap(ErrBadFlags, "CICMDCommand flag without data")
		}
		binary.LittleEndian.PutUint32(tmp[0:], o.CICMD.Command)
		binary.LittleEndian.PutUint32(tmp[4:], o.CICMD.Parameter)
		b = append(b, tmp[:8]...)
	}
	return b, nil
}

func (o *Optional) decode(flags Flag, b []byte) (rest []byte, err error) {
	if flags.Has(FlagRetransmission) {
		if o.Retransmitted, b, err = getList(b); err != nil {
			return nil, err
		}
	}
	if flags.Has(FlagServerSwitch) {
		if len(b) < 8 {
			return nil, errors.WithStack(ErrShortOption)
		}
		o.ServerSwitch = &ServerSwitch{
			Sequence: binary.LittleEndian.Uint32(b[0:]),
			Type:     binary.LittleEndian.Uint32(b[4:]),
		}
		b = b[8:]
	}
	if flags.Has(FlagRequestRetransmit) {
		if o.RequestRetransmit, b, err = getList(b); err != nil {
			return nil, err
		}
	}
	if flags.Has(FlagRejectRetransmit) {
		if o.RejectRetransmit, b, err = getList(b); err != nil {
			return nil, err
		}
	}
	if flags.Has(FlagAckSequence) {
		if len(b) < 4 {
			return nil, errors.WithStack(ErrShortOption)
		}
		v := binary.LittleEndian.Uint32(b)
		o.AckSequence = &v
		b = b[4:]
	}
	if flags.Has(FlagTimeSync) {
		if len(b) < 8 {
			return nil, errors.WithStack(ErrShortOption)
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(b))
		o.TimeSync = &v
		b = b[8:]
	}
	if flags.Has(FlagEchoRequest) {
		if len(b) < 4 {
			return nil, errors.WithStack(ErrShortOption)
		}
		v := math.Float32frombits(binary.LittleEndian.Uint32(b))
		o.EchoRequest = &v
		b = b[4:]
	}
	if flags.Has(FlagEchoResponse) {
		if len(b) < 8 {
			return nil, errors.WithStack(ErrShortOption)
		}
		o.EchoResponse = &EchoResponse{
			HoldingTime: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
			LocalTime:   math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		}
		b = b[8:]
	}
	if flags.Has(FlagFlow) {
		if len(b) < 6 {
			return nil, errors.WithStack(ErrShortOption)
		}
		o.Flow = &FlowData{
			Bytes:    binary.LittleEndian.Uint32(b[0:]),
			Interval: binary.LittleEndian.Uint16(b[4:]),
		}
		b = b[6:]
	}
	if flags.Has(FlagConnectRequest) {
		if len(b) < 32 {
			return nil, errors.WithStack(ErrShortOption)
		}
		o.ConnectRequest = &ConnectRequest{
			ServerTime:   math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
			Cookie:       binary.LittleEndian.Uint64(b[8:]),
			NetID:        int32(binary.LittleEndian.Uint32(b[16:])),
			OutgoingSeed: binary.LittleEndian.Uint32(b[20:]),
			IncomingSeed: binary.LittleEndian.Uint32(b[24:]),
			Unknown:      binary.LittleEndian.Uint32(b[28:]),
		}
		b = b[32:]
	}
	if flags.Has(FlagConnectResponse) || flags.Has(FlagWorldLoginRequest) {
		if len(b) < 8 {
			return nil, errors.WithStack(ErrShortOption)
		}
		v := binary.LittleEndian.Uint64(b)
		o.Cookie = &v
		b = b[8:]
	}
	if flags.Has(FlagCICMDCommand) {
		if len(b) < 8 {
			return nil, errors.WithStack(ErrShortOption)
		}
		o.CICMD = &CICMD{
			Command:   binary.LittleEndian.Uint32(b[0:]),
			Parameter: binary.LittleEndian.Uint32(b[4:]),
		}
		b = b[8:]
	}
	return b, nil
}

// Encode serializes the packet, fixes up Size and computes the checksum with
// the sentinel in place. When the EncryptedChecksum flag is set, keys must be
// non-nil and exactly one keystream draw masks the stored value.
func (p *Packet) Encode(keys *CryptoSystem) ([]byte, error) {
	if !p.Header.Flags.Valid() {
		return nil, errors.Wrapf(ErrBadFlags, "flags %s", p.Header.Flags)
	}
	opt, err := p.Optional.encode(p.Header.Flags)
	if err != nil {
		return nil, err
	}
	size := len(opt) + len(p.Payload)
	total := HeaderSize + size
	if total > MTU {
		return nil, errors.Wrapf(ErrOversize, "%d bytes", total)
	}
	p.Header.Size = uint16(size)

	buf := make([]byte, total)
	p.Header.Checksum = ChecksumSentinel
	p.Header.marshal(buf)
	copy(buf[HeaderSize:], opt)
	copy(buf[HeaderSize+len(opt):], p.Payload)

	raw := Checksum(buf, true)
	if p.Header.Flags.Has(FlagEncryptedChecksum) {
		if keys == nil {
			return nil, errors.Wrap(ErrBadFlags, "EncryptedChecksum without keystream")
		}
		raw = SignWithKey(raw, keys.NextKey())
	}
	p.Header.Checksum = raw
	binary.LittleEndian.PutUint32(buf[checksumOffset:], raw)
	return buf, nil
}

// DecodePacket parses one datagram. The checksum is not verified here; use
// VerifyDatagram on the raw bytes first.
func DecodePacket(b []byte) (*Packet, error) {
	p := &Packet{}
	if err := p.Header.unmarshal(b); err != nil {
		return nil, err
	}
	if !p.Header.Flags.Valid() {
		return nil, errors.Wrapf(ErrBadFlags, "flags %s", p.Header.Flags)
	}
	if len(b) < HeaderSize+int(p.Header.Size) {
		return nil, errors.Wrapf(ErrShortPacket, "have %d, declared %d", len(b)-HeaderSize, p.Header.Size)
	}
	rest, err := p.Optional.decode(p.Header.Flags, b[HeaderSize:HeaderSize+int(p.Header.Size)])
	if err != nil {
		return nil, err
	}
	p.Payload = rest
	return p, nil
}

// VerifyDatagram recomputes the checksum of a raw datagram. When the header
// carries EncryptedChecksum and keys is non-nil, exactly one keystream draw
// unmasks the stored value. The buffer is restored before returning.
func VerifyDatagram(raw []byte, keys *CryptoSystem) bool {
	if len(raw) < HeaderSize {
		return false
	}
	stored := binary.LittleEndian.Uint32(raw[checksumOffset:])
	flags := Flag(binary.LittleEndian.Uint32(raw[4:]))

	binary.LittleEndian.PutUint32(raw[checksumOffset:], ChecksumSentinel)
	expected := Checksum(raw, true)
	binary.LittleEndian.PutUint32(raw[checksumOffset:], stored)

	if flags.Has(FlagEncryptedChecksum) && keys != nil {
		stored = SignWithKey(stored, keys.NextKey())
	}
	return stored == expected
}
