package session

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoeba/acload/acnet"
	"github.com/amoeba/acload/events"
)

// buildServerPacket hand-assembles a server-side datagram, sentinel checksum
// included, so tests can emit fields the client codec refuses to encode.
func buildServerPacket(flags acnet.Flag, seq uint32, recipient, iteration uint16, optional, payload []byte) []byte {
	size := len(optional) + len(payload)
	raw := make([]byte, acnet.HeaderSize+size)
	binary.LittleEndian.PutUint32(raw[0:], seq)
	binary.LittleEndian.PutUint32(raw[4:], uint32(flags))
	binary.LittleEndian.PutUint32(raw[8:], acnet.ChecksumSentinel)
	binary.LittleEndian.PutUint16(raw[12:], recipient)
	binary.LittleEndian.PutUint16(raw[16:], uint16(size))
	binary.LittleEndian.PutUint16(raw[18:], iteration)
	copy(raw[acnet.HeaderSize:], optional)
	copy(raw[acnet.HeaderSize+len(optional):], payload)
	binary.LittleEndian.PutUint32(raw[8:], acnet.Checksum(raw, true))
	return raw
}

type fakeServer struct {
	t     *testing.T
	login *net.UDPConn
	world *net.UDPConn
	info  acnet.ServerInfo

	cookie  uint64
	netID   uint16
	table   uint16
	outSeed uint32
	inSeed  uint32

	mu         sync.Mutex
	clientAddr *net.UDPAddr
	seq        uint32
	reasm      *acnet.Reassembler

	loginSeen chan struct{}
	cookieCh  chan uint64
	msgCh     chan *acnet.Message

	done chan struct{}
}

// newFakeServer binds an adjacent port pair so world = login + 1 holds.
func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	var login, world *net.UDPConn
	for i := 0; i < 32; i++ {
		l, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		port := l.LocalAddr().(*net.UDPAddr).Port
		if port >= 65535 {
			l.Close()
			continue
		}
		w, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		if err != nil {
			l.Close()
			continue
		}
		login, world = l, w
		break
	}
	require.NotNil(t, login, "could not bind an adjacent port pair")

	f := &fakeServer{
		t:         t,
		login:     login,
		world:     world,
		cookie:    0xC00C00C00C00C00C,
		netID:     0x0123,
		table:     7,
		outSeed:   0xAABBCCDD,
		inSeed:    0x11223344,
		reasm:     acnet.NewReassembler(),
		loginSeen: make(chan struct{}, 4),
		cookieCh:  make(chan uint64, 4),
		msgCh:     make(chan *acnet.Message, 64),
		done:      make(chan struct{}),
	}
	f.info = acnet.NewServerInfo("127.0.0.1", uint16(login.LocalAddr().(*net.UDPAddr).Port))
	go f.reader(login)
	go f.reader(world)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) Close() {
	select {
	case <-f.done:
		return
	default:
	}
	close(f.done)
	f.login.Close()
	f.world.Close()
}

func (f *fakeServer) reader(sock *net.UDPConn) {
	buf := make([]byte, acnet.MTU)
	for {
		sock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-f.done:
				return
			default:
				continue
			}
		}
		raw := append([]byte(nil), buf[:n]...)
		f.handle(raw, addr)
	}
}

func (f *fakeServer) handle(raw []byte, addr *net.UDPAddr) {
	pkt, err := acnet.DecodePacket(raw)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.clientAddr = addr
	f.mu.Unlock()

	if pkt.Header.Flags.Has(acnet.FlagLoginRequest) {
		select {
		case f.loginSeen <- struct{}{}:
		default:
		}
		opt := make([]byte, 32)
		binary.LittleEndian.PutUint64(opt[8:], f.cookie)
		binary.LittleEndian.PutUint32(opt[16:], uint32(f.netID))
		binary.LittleEndian.PutUint32(opt[20:], f.outSeed)
		binary.LittleEndian.PutUint32(opt[24:], f.inSeed)
		f.send(buildServerPacket(acnet.FlagConnectRequest, 0, 0, f.table, opt, nil))
		return
	}

	if pkt.Optional.Cookie != nil {
		select {
		case f.cookieCh <- *pkt.Optional.Cookie:
		default:
		}
		return
	}

	if pkt.Header.Flags.Has(acnet.FlagBlobFragments) {
		var fh acnet.FragmentHeader
		if fh.Unmarshal(pkt.Payload) != nil {
			return
		}
		blob, err := f.reasm.Feed(&fh, pkt.Payload[acnet.FragmentHeaderSize:], time.Now())
		if err != nil || blob == nil {
			return
		}
		if msg, err := acnet.ParseMessage(blob); err == nil {
			f.msgCh <- msg
		}
	}
}

func (f *fakeServer) send(raw []byte) {
	f.mu.Lock()
	addr := f.clientAddr
	f.mu.Unlock()
	if addr == nil {
		f.t.Log("no client address yet")
		return
	}
	f.login.WriteToUDP(raw, addr)
}

// sendMessage ships one application message as a single-fragment blob.
func (f *fakeServer) sendMessage(body []byte) {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	payload := make([]byte, acnet.FragmentHeaderSize+len(body))
	fh := acnet.FragmentHeader{
		Sequence: seq,
		BlobID:   seq,
		Count:    1,
		Size:     uint16(len(body)),
		Group:    1,
	}
	fh.Marshal(payload)
	copy(payload[acnet.FragmentHeaderSize:], body)
	f.send(buildServerPacket(acnet.FlagBlobFragments, seq, f.netID, f.table, nil, payload))
}

func waitMessage(t *testing.T, f *fakeServer, opcode uint32, timeout time.Duration) *acnet.Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-f.msgCh:
			if msg.Opcode == opcode {
				return msg
			}
		case <-deadline:
			t.Fatalf("no message with opcode %#x within %v", opcode, timeout)
			return nil
		}
	}
}

func waitEvent(t *testing.T, sub *events.Subscription, typ events.Type, timeout time.Duration) events.Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-sub.C():
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("no %v event within %v", typ, timeout)
			return events.Envelope{}
		}
	}
}

func TestSessionEndToEnd(t *testing.T) {
	srv := newFakeServer(t)

	bus := events.NewBus(256)
	sub := bus.Subscribe(events.AllTypes)
	defer sub.Close()

	var counters Counters
	sess := New(Config{
		ClientID: 1,
		Server:   srv.info,
		Account:  "Load-AAAB",
		Password: "Load-AAAB",
		Bus:      bus,
		Counters: &counters,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- sess.Serve(ctx) }()

	// handshake: LoginRequest on the login port, cookie echo on the world port
	select {
	case <-srv.loginSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("no LoginRequest reached the server")
	}
	select {
	case cookie := <-srv.cookieCh:
		assert.Equal(t, srv.cookie, cookie, "cookie must be echoed verbatim")
	case <-time.After(5 * time.Second):
		t.Fatal("no ConnectResponse reached the world port")
	}
	require.Eventually(t, func() bool {
		return sess.State() == StateAuthConnectResponse
	}, 5*time.Second, 10*time.Millisecond)

	// first recipient-addressed packet completes authentication
	srv.send(buildServerPacket(0, 0, srv.netID, srv.table, nil, nil))
	waitEvent(t, sub, events.TypeConnected, 5*time.Second)
	assert.Equal(t, StateAuthConnected, sess.State())

	// DDD interrogation is answered with the up-to-date sentinel
	srv.sendMessage(binaryMessage(acnet.OpDDDInterrogation))
	waitMessage(t, srv, acnet.OpDDDInterrogationResponse, 5*time.Second)

	// character roster is published to observers
	srv.sendMessage(characterListBody())
	e := waitEvent(t, sub, events.TypeCharacterList, 5*time.Second)
	cl := e.Data.(*acnet.CharacterList)
	assert.Equal(t, "Load-AAAB", cl.Account)
	require.Len(t, cl.Characters, 1)

	// picking a character drives EnterWorldRequest then EnterWorld
	sess.Actions() <- Action{
		Kind:          ActionLoginCharacter,
		CharacterID:   cl.Characters[0].ID,
		CharacterName: cl.Characters[0].Name,
	}
	waitMessage(t, srv, acnet.OpEnterWorldRequest, 5*time.Second)
	enter := waitMessage(t, srv, acnet.OpEnterWorld, 5*time.Second)
	assert.Equal(t, cl.Characters[0].ID, binary.LittleEndian.Uint32(enter.Body))

	// LoginComplete moves the session into the world
	srv.sendMessage(binaryMessage(acnet.OpLoginComplete))
	e = waitEvent(t, sub, events.TypeLoginSucceeded, 5*time.Second)
	success := e.Data.(events.LoginSuccess)
	assert.Equal(t, cl.Characters[0].Name, success.CharacterName)
	require.Eventually(t, func() bool {
		return sess.State() == StateWorldConnected
	}, 5*time.Second, 10*time.Millisecond)

	// in-world chat flows out as a game action
	sess.Actions() <- Action{Kind: ActionSendChat, Message: "hello"}
	talk := waitMessage(t, srv, acnet.OpGameAction, 5*time.Second)
	assert.Equal(t, acnet.ActionTalk, binary.LittleEndian.Uint32(talk.Body))

	assert.Equal(t, uint64(1), counters.Copy().SessionsConnected)
	assert.Equal(t, uint64(1), counters.Copy().SessionsInWorld)

	cancel()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
	waitEvent(t, sub, events.TypeDisconnected, time.Second)
}

func TestSessionHandshakeTimeout(t *testing.T) {
	// a server whose ports are bound and then closed, so nothing answers
	srv := newFakeServer(t)
	srv.Close()

	bus := events.NewBus(64)
	sub := bus.Subscribe(events.AllTypes)
	defer sub.Close()

	sess := New(Config{
		ClientID:          2,
		Server:            srv.info,
		Account:           "Load-AAAC",
		Password:          "Load-AAAC",
		Bus:               bus,
		HandshakeTimeout:  100 * time.Millisecond,
		HandshakeAttempts: 2,
	})

	served := make(chan error, 1)
	go func() { served <- sess.Serve(context.Background()) }()

	select {
	case err := <-served:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not give up after the handshake attempts")
	}
	waitEvent(t, sub, events.TypeDisconnected, time.Second)
}

func binaryMessage(opcode uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, opcode)
	return b
}

func characterListBody() []byte {
	var body []byte
	tmp := make([]byte, 4)

	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(tmp, v)
		body = append(body, tmp...)
	}
	str := func(s string) {
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(s)))
		body = append(body, tmp[:2]...)
		body = append(body, s...)
		if pad := (2 + len(s)) % 4; pad != 0 {
			body = append(body, make([]byte, 4-pad)...)
		}
	}

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, acnet.OpCharacterList)

	u32(0) // unused
	u32(1) // one character
	u32(0x50000001)
	str("Load-AAAB-A")
	u32(0) // delete period
	u32(0) // filler
	str("Load-AAAB")
	u32(11) // slots

	return append(b, body...)
}
