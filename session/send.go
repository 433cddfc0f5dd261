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

package session

import (
	"log"
	"net"
	"time"

	"github.com/amoeba/acload/acnet"
)

const (
	// maxFragmentPayload is the data carried per blob fragment.
	maxFragmentPayload = 448
	// sendTick paces the scheduler when nothing is due sooner.
	sendTick = 50 * time.Millisecond
	// standaloneAckDelay is how long a pending ack may wait for a packet to
	// piggyback on before it gets its own.
	standaloneAckDelay = 250 * time.Millisecond
)

// pendingWrite is an encoded datagram the socket refused with a would-block
// condition. It is retried verbatim: the keystream already advanced for it,
// so it must hit the wire exactly as signed.
type pendingWrite struct {
	raw  []byte
	dest net.Addr
}

// sendState is the send task's private world: the deadline queue, transmit
// history, sequence counter, keystream and piggyback state. Only sendLoop
// touches it.
type sendState struct {
	c *conn

	queue   *sendQueue
	hist    history
	sendSeq uint32
	keys    *acnet.CryptoSystem

	established bool
	clientID    uint16
	table       uint16
	remote      net.Addr

	pendingAck   *uint32
	ackSince     time.Time
	lastSendAt   time.Time
	lastTimeSync time.Time
	blobID       uint32

	pending      []pendingWrite
	sentThisTick bool
}

// sendLoop is the send scheduler task. It drains the outbox into the
// deadline queue, emits due messages, injects acks and time-sync, serves
// retransmit requests and honours backpressure by retaining encoded bytes
// on a would-block write.
func (c *conn) sendLoop() {
	defer close(c.sendDone)

	t := &sendState{
		c:            c,
		queue:        newSendQueue(),
		remote:       c.loginAddr,
		lastTimeSync: time.Now(),
		blobID:       1,
	}

	ticker := time.NewTicker(sendTick)
	defer ticker.Stop()

	for {
		select {
		case m := <-c.outbox:
			t.accept(m, time.Now())

		case <-ticker.C:
			t.tick(time.Now())

		case <-c.stopSend:
			t.drain()
			return
		}
	}
}

// accept routes one outbox entry: control kinds mutate state immediately,
// sendable kinds join the deadline queue.
func (t *sendState) accept(m *OutgoingMessage, now time.Time) {
	switch m.Kind {
	case KindPeerAck:
		t.hist.Ack(m.Seq)

	case KindAckPending:
		if t.pendingAck == nil {
			seq := m.Seq
			t.pendingAck = &seq
			t.ackSince = now
		} else if m.Seq > *t.pendingAck {
			*t.pendingAck = m.Seq
		}

	case KindSwitchToWorld:
		t.remote = t.c.worldAddr

	case KindServeRetransmit:
		t.serveRetransmit(m.Seqs, now)

	default:
		t.queue.Push(m)
		t.tick(now)
	}
}

// tick retries blocked writes first; while any remain, the queue head is
// retained untouched. Then it sends everything due, and finally standalone
// time-sync or ack packets when no other packet carried them.
func (t *sendState) tick(now time.Time) {
	t.sentThisTick = false

	if !t.flushPending() {
		return
	}

	for {
		m := t.queue.PopReady(now)
		if m == nil {
			break
		}
		t.transmit(m, now)
		if len(t.pending) > 0 {
			break
		}
	}

	if t.established && !t.sentThisTick && len(t.pending) == 0 {
		if now.Sub(t.lastTimeSync) >= t.c.sess.cfg.TimeSyncPeriod {
			t.sendControl(acnet.FlagTimeSync, now)
		} else if t.pendingAck != nil && now.Sub(t.ackSince) >= standaloneAckDelay {
			t.sendControl(0, now)
		}
	}
}

// flushPending retries blocked datagrams in order and reports whether the
// backlog is clear.
func (t *sendState) flushPending() bool {
	cnt := t.c.sess.cfg.Counters
	for len(t.pending) > 0 {
		pw := t.pending[0]
		if _, err := t.c.sock.WriteTo(pw.raw, pw.dest); err != nil {
			if ne, ok := err.(net.Error); ok && (ne.Timeout() || ne.Temporary()) {
				return false
			}
			t.reportErr(err)
			t.pending = nil
			return false
		}
		cnt.add(&cnt.PacketsSent, 1)
		cnt.add(&cnt.BytesSent, uint64(len(pw.raw)))
		t.c.trace(true, pw.raw)
		t.lastSendAt = time.Now()
		t.sentThisTick = true
		t.pending = t.pending[1:]
	}
	return true
}

// drain flushes whatever is queued within the drain budget, deadline order,
// ignoring future deadlines.
func (t *sendState) drain() {
	deadline := time.Now().Add(t.c.sess.cfg.DrainTimeout)
	future := time.Now().Add(time.Hour)
	for time.Now().Before(deadline) {
		if !t.flushPending() {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		m := t.queue.PopReady(future)
		if m == nil {
			break
		}
		t.transmit(m, time.Now())
	}
	// best-effort: the goodbye may still be sitting in the outbox
	for {
		select {
		case m := <-t.c.outbox:
			if m.Kind == KindDisconnect && time.Now().Before(deadline) {
				t.transmit(m, time.Now())
				t.flushPending()
			}
		default:
			return
		}
	}
}

// transmit emits one queued message.
func (t *sendState) transmit(m *OutgoingMessage, now time.Time) {
	switch m.Kind {
	case KindLoginRequest:
		payload := acnet.EncodeLoginRequest(m.Account, m.Password, now.Unix())
		pkt := &acnet.Packet{
			Header:  acnet.TransitHeader{Flags: acnet.FlagLoginRequest},
			Payload: payload,
		}
		t.writePacket(pkt, t.c.loginAddr)

	case KindConnectResponse:
		t.clientID = m.ClientID
		t.table = m.Table
		t.keys = acnet.NewCryptoSystem(m.Seed)
		t.established = true
		cookie := m.Cookie
		pkt := &acnet.Packet{
			Header: acnet.TransitHeader{
				Flags:       acnet.FlagConnectResponse,
				RecipientID: t.clientID,
				Iteration:   t.table,
			},
			Optional: acnet.Optional{Cookie: &cookie},
		}
		t.writePacket(pkt, t.c.worldAddr)

	case KindRequestRetransmit:
		pkt := t.newPacket(acnet.FlagRequestRetransmit, now)
		pkt.Optional.RequestRetransmit = m.Seqs
		t.writePacket(pkt, t.remote)

	case KindAppMessage:
		t.sendBlob(m.Body, now)

	case KindDisconnect:
		pkt := &acnet.Packet{
			Header: acnet.TransitHeader{
				Flags:       acnet.FlagDisconnect,
				RecipientID: t.clientID,
				Iteration:   t.table,
			},
		}
		if t.established {
			pkt.Header.Flags |= acnet.FlagEncryptedChecksum
		}
		t.writePacket(pkt, t.remote)
	}
}

// sendBlob fragments one application message and transmits every fragment
// under its own strictly increasing sequence.
func (t *sendState) sendBlob(body []byte, now time.Time) {
	count := (len(body) + maxFragmentPayload - 1) / maxFragmentPayload
	if count == 0 {
		count = 1
	}
	fragSize := maxFragmentPayload
	if count == 1 {
		fragSize = len(body)
	}

	blob := t.blobID
	t.blobID++

	for i := 0; i < count; i++ {
		start := i * maxFragmentPayload
		end := start + maxFragmentPayload
		if end > len(body) {
			end = len(body)
		}
		chunk := body[start:end]

		t.sendSeq++
		seq := t.sendSeq
		fh := acnet.FragmentHeader{
			Sequence: seq,
			BlobID:   blob,
			Count:    uint16(count),
			Size:     uint16(fragSize),
			Index:    uint16(i),
			Group:    1,
		}
		t.hist.Add(seq, fh, chunk)
		t.transmitFragment(seq, fh, chunk, false, now)
	}
}

// serveRetransmit replays requested sequences from the history ring; what
// fell out of the ring is rejected so the peer stops asking.
func (t *sendState) serveRetransmit(seqs []uint32, now time.Time) {
	cnt := t.c.sess.cfg.Counters
	var missing []uint32
	for _, seq := range seqs {
		ent, ok := t.hist.Get(seq)
		if !ok {
			missing = append(missing, seq)
			continue
		}
		cnt.add(&cnt.RetransmitsServed, 1)
		t.transmitFragment(ent.seq, ent.fragment, ent.chunk, true, now)
	}
	if len(missing) > 0 {
		pkt := t.newPacket(acnet.FlagRejectRetransmit, now)
		pkt.Optional.RejectRetransmit = missing
		t.writePacket(pkt, t.remote)
	}
}

// transmitFragment wraps one fragment in a transit header. Retransmits keep
// their original sequence and are marked as such; the ack/time-sync region
// is rebuilt fresh either way.
func (t *sendState) transmitFragment(seq uint32, fh acnet.FragmentHeader, chunk []byte, isRetransmit bool, now time.Time) {
	pkt := t.newPacket(acnet.FlagBlobFragments, now)
	pkt.Header.Sequence = seq
	if isRetransmit {
		pkt.Header.Flags |= acnet.FlagRetransmission
		pkt.Optional.Retransmitted = []uint32{seq}
	}

	payload := make([]byte, acnet.FragmentHeaderSize+len(chunk))
	fh.Marshal(payload)
	copy(payload[acnet.FragmentHeaderSize:], chunk)
	pkt.Payload = payload

	t.writePacket(pkt, t.remote)
}

// sendControl emits a packet that exists only to carry time-sync and/or the
// pending ack.
func (t *sendState) sendControl(extra acnet.Flag, now time.Time) {
	pkt := t.newPacket(extra, now)
	t.writePacket(pkt, t.remote)
}

// newPacket builds the common header for a post-handshake packet and
// piggybacks the pending ack and due time-sync.
func (t *sendState) newPacket(flags acnet.Flag, now time.Time) *acnet.Packet {
	pkt := &acnet.Packet{
		Header: acnet.TransitHeader{
			Flags:       flags,
			RecipientID: t.clientID,
			Iteration:   t.table,
		},
	}
	if t.established {
		pkt.Header.Flags |= acnet.FlagEncryptedChecksum
	}
	if t.pendingAck != nil {
		pkt.Header.Flags |= acnet.FlagAckSequence
		ack := *t.pendingAck
		pkt.Optional.AckSequence = &ack
	}
	if t.established && (flags.Has(acnet.FlagTimeSync) || now.Sub(t.lastTimeSync) >= t.c.sess.cfg.TimeSyncPeriod) {
		pkt.Header.Flags |= acnet.FlagTimeSync
		ts := float64(now.UnixNano()) / float64(time.Second)
		pkt.Optional.TimeSync = &ts
	}
	return pkt
}

// writePacket signs and transmits one packet. A would-block write parks the
// signed bytes for retry; the keystream never re-draws for the same packet.
func (t *sendState) writePacket(pkt *acnet.Packet, dest net.Addr) {
	cnt := t.c.sess.cfg.Counters
	now := time.Now()

	pkt.Header.TimeSinceLast = sinceMillis(t.lastSendAt, now)

	var keys *acnet.CryptoSystem
	if pkt.Header.Flags.Has(acnet.FlagEncryptedChecksum) {
		keys = t.keys
	}
	raw, err := pkt.Encode(keys)
	if err != nil {
		cnt.add(&cnt.FramingErrors, 1)
		log.Printf("client %d: encode: %+v", t.c.sess.cfg.ClientID, err)
		return
	}

	// piggyback state is consumed at signing time: the bytes now own it
	if pkt.Optional.AckSequence != nil {
		t.pendingAck = nil
	}
	if pkt.Optional.TimeSync != nil {
		t.lastTimeSync = now
	}

	if len(t.pending) > 0 {
		t.pending = append(t.pending, pendingWrite{raw: raw, dest: dest})
		return
	}

	if _, err := t.c.sock.WriteTo(raw, dest); err != nil {
		if ne, ok := err.(net.Error); ok && (ne.Timeout() || ne.Temporary()) {
			t.pending = append(t.pending, pendingWrite{raw: raw, dest: dest})
			return
		}
		t.reportErr(err)
		return
	}

	cnt.add(&cnt.PacketsSent, 1)
	cnt.add(&cnt.BytesSent, uint64(len(raw)))
	t.c.trace(true, raw)
	t.lastSendAt = now
	t.sentThisTick = true
}

func (t *sendState) reportErr(err error) {
	select {
	case t.c.sendErr <- err:
	default:
	}
}

func sinceMillis(last, now time.Time) uint16 {
	if last.IsZero() {
		return 0
	}
	ms := now.Sub(last).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 65535 {
		ms = 65535
	}
	return uint16(ms)
}
