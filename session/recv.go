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
	"github.com/amoeba/acload/events"
)

// retransmitWindow caps how many missing sequences one gap may request.
const retransmitWindow = 64

// inboundItem is what the receive task hands the state machine: the decoded
// packet plus, when the payload completed a message, that message.
type inboundItem struct {
	pkt *acnet.Packet
	msg *acnet.Message
}

// conn is the per-attempt wiring between the session's tasks. The receive
// task owns recvKeys, the reassembler and the inbound sequence window; the
// send task owns everything in sendLoop. Nothing here is shared.
type conn struct {
	sess      *Session
	sock      net.PacketConn
	loginAddr *net.UDPAddr
	worldAddr *net.UDPAddr

	outbox  chan *OutgoingMessage
	inbound chan inboundItem

	recvErr  chan error
	sendErr  chan error
	stopSend chan struct{}
	sendDone chan struct{}
	die      chan struct{}
}

// push hands work to the send task. The outbox is deep enough for any sane
// burst; overflow drops with a log line rather than stalling the caller.
func (c *conn) push(m *OutgoingMessage) {
	select {
	case c.outbox <- m:
	default:
		log.Printf("client %d: outbox full, dropping %v", c.sess.cfg.ClientID, m.Kind)
	}
}

func (c *conn) trace(outbound bool, raw []byte) {
	if tr := c.sess.cfg.Tracer; tr != nil {
		if err := tr.Record(outbound, raw); err != nil {
			log.Printf("client %d: trace: %+v", c.sess.cfg.ClientID, err)
		}
	}
}

func (c *conn) closed() bool {
	select {
	case <-c.die:
		return true
	default:
		return false
	}
}

// recvLoop is the socket receive task. It filters by peer, verifies
// checksums, tracks the inbound sequence window, feeds the reassembler and
// forwards semantic items to the state machine.
func (c *conn) recvLoop() {
	s := c.sess
	cnt := s.cfg.Counters

	var recvKeys *acnet.CryptoSystem
	reasm := acnet.NewReassembler()
	defer reasm.Reset()

	var recvSeq uint32
	processed := make(map[uint32]bool) // beyond the contiguous point

	buf := make([]byte, acnet.MTU)
	for {
		if c.closed() {
			return
		}
		c.sock.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, peer, err := c.sock.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				reasm.GC(time.Now())
				continue
			}
			if c.closed() {
				return
			}
			select {
			case c.recvErr <- err:
			default:
			}
			return
		}

		cnt.add(&cnt.PacketsReceived, 1)
		cnt.add(&cnt.BytesReceived, uint64(n))
		raw := buf[:n]
		c.trace(false, raw)

		if !s.cfg.Server.IsFrom(peer) {
			continue
		}

		if !acnet.VerifyDatagram(raw, recvKeys) {
			cnt.add(&cnt.ChecksumFailures, 1)
			continue
		}

		pkt, err := acnet.DecodePacket(raw)
		if err != nil {
			cnt.add(&cnt.FramingErrors, 1)
			log.Printf("client %d: framing: %+v", s.cfg.ClientID, err)
			continue
		}
		// the decoded packet outlives buf
		pkt.Payload = append([]byte(nil), pkt.Payload...)

		if cr := pkt.Optional.ConnectRequest; cr != nil && recvKeys == nil {
			recvKeys = acnet.NewCryptoSystem(cr.IncomingSeed)
		}
		if ack := pkt.Optional.AckSequence; ack != nil {
			c.push(&OutgoingMessage{Kind: KindPeerAck, Seq: *ack})
		}
		if req := pkt.Optional.RequestRetransmit; len(req) > 0 {
			c.push(&OutgoingMessage{Kind: KindServeRetransmit, Seqs: req})
		}

		// sequence window: 0 marks pre-handshake control traffic
		if seq := pkt.Header.Sequence; seq != 0 {
			if seq <= recvSeq || processed[seq] {
				continue // duplicate or already handled out of order
			}
			if seq == recvSeq+1 {
				recvSeq++
				for processed[recvSeq+1] {
					delete(processed, recvSeq+1)
					recvSeq++
				}
			} else {
				missing := make([]uint32, 0, retransmitWindow)
				for want := recvSeq + 1; want < seq && len(missing) < retransmitWindow; want++ {
					if !processed[want] {
						missing = append(missing, want)
					}
				}
				if len(missing) > 0 {
					cnt.add(&cnt.RetransmitsAsked, uint64(len(missing)))
					c.push(&OutgoingMessage{Kind: KindRequestRetransmit, Seqs: missing})
				}
				processed[seq] = true
			}
			// ack only the most recent contiguous sequence
			c.push(&OutgoingMessage{Kind: KindAckPending, Seq: recvSeq})
		}

		c.dispatch(pkt, reasm)
	}
}

// dispatch turns one verified packet into zero or one inbound items.
func (c *conn) dispatch(pkt *acnet.Packet, reasm *acnet.Reassembler) {
	s := c.sess
	cnt := s.cfg.Counters

	if pkt.Header.Flags.Has(acnet.FlagBlobFragments) {
		var fh acnet.FragmentHeader
		if err := fh.Unmarshal(pkt.Payload); err != nil {
			cnt.add(&cnt.FramingErrors, 1)
			return
		}
		blob, err := reasm.Feed(&fh, pkt.Payload[acnet.FragmentHeaderSize:], time.Now())
		if err != nil {
			cnt.add(&cnt.ReassemblyErrors, 1)
			s.sender.Publish(events.TypeReassemblyError, events.SourceClientInternal, err.Error())
			return
		}
		if blob == nil {
			return
		}
		cnt.add(&cnt.BlobsCompleted, 1)
		msg, err := acnet.ParseMessage(blob)
		if err != nil {
			cnt.add(&cnt.FramingErrors, 1)
			return
		}
		c.deliver(inboundItem{pkt: pkt, msg: msg})
		return
	}

	if len(pkt.Payload) >= 4 && pkt.Optional.ConnectRequest == nil {
		if msg, err := acnet.ParseMessage(pkt.Payload); err == nil {
			c.deliver(inboundItem{pkt: pkt, msg: msg})
			return
		}
	}

	// control packet; the state machine still wants handshake and
	// recipient-addressed traffic
	c.deliver(inboundItem{pkt: pkt})
}

func (c *conn) deliver(item inboundItem) {
	select {
	case c.inbound <- item:
	case <-c.die:
	}
}
