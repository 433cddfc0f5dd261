package acnet

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// Login with root:root, captured with aclog. The four timestamp bytes vary
// per run and are wildcarded with 0xFF.
var loginRootRoot = []byte{
	0x04, 0x00, 0x31, 0x38, 0x30, 0x32, // ClientVersion
	0x00, 0x00, // Align
	0x21, 0x00, 0x00, 0x00, // Length
	0x02, 0x00, 0x00, 0x00, // AuthType
	0x00, 0x00, 0x00, 0x00, // AuthFlags
	0xFF, 0xFF, 0xFF, 0xFF, // Timestamp
	0x04, 0x00, 0x72, 0x6F, 0x6F, 0x74, // AccountName
	0x00, 0x00, // Align
	0x00, 0x00, 0x00, 0x00, // LoginAs
	0x05, 0x00, 0x00, 0x00, // Password region length
	0x04, 0x72, 0x6F, 0x6F, 0x74, // Password
}

func matchWithWildcard(t *testing.T, want, got []byte) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length mismatch: want %d, got %d\n% x", len(want), len(got), got)
	}
	for i := range want {
		if want[i] != 0xFF && want[i] != got[i] {
			t.Fatalf("byte %d: want %02x, got %02x\n% x", i, want[i], got[i], got)
		}
	}
}

func TestEncodeLoginRequestRootRoot(t *testing.T) {
	got := EncodeLoginRequest("root", "root", 0x65f3c0e5)
	matchWithWildcard(t, loginRootRoot, got)
	if len(got) != 45 {
		t.Fatalf("payload length %d", len(got))
	}
}

func TestEncodeLoginRequestTestingTesting(t *testing.T) {
	// size 0x34 in the same capture set
	got := EncodeLoginRequest("testing", "testing", 1)
	if len(got) != 0x34 {
		t.Fatalf("payload length %d, want 0x34", len(got))
	}
	// auth region length field
	if v := binary.LittleEndian.Uint32(got[8:]); v != 0x28 {
		t.Fatalf("auth length %#x, want 0x28", v)
	}
}

func TestEncodeLoginRequestLongPassword(t *testing.T) {
	pw := string(bytes.Repeat([]byte{'x'}, 300))
	got := EncodeLoginRequest("acct", pw, 0)
	// packed length switches to the 2-byte high-bit form
	idx := len(got) - 300 - 2
	if got[idx] != byte(300>>8)|0x80 || got[idx+1] != byte(300&0xFF) {
		t.Fatalf("packed form % x", got[idx:idx+2])
	}
}

func TestString16LRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abc", "abcd", "Load-AAAA-A"} {
		b := appendString16L(nil, s)
		if len(b)%4 != 0 {
			t.Fatalf("%q: unaligned length %d", s, len(b))
		}
		got, rest, err := readString16L(b)
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		if got != s || len(rest) != 0 {
			t.Fatalf("%q: got %q, rest %d", s, got, len(rest))
		}
	}
}

func TestDDDUpToDateResponse(t *testing.T) {
	want := []byte{
		0xE6, 0xF7, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(DDDUpToDateResponse, want) {
		t.Fatalf("sentinel bytes % x", DDDUpToDateResponse)
	}
	msg, err := ParseMessage(DDDUpToDateResponse)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Opcode != OpDDDInterrogationResponse {
		t.Fatalf("opcode %#x", msg.Opcode)
	}
}

func TestDecodeCharacterList(t *testing.T) {
	var body []byte
	body = appendUint32(body, 0) // unused
	body = appendUint32(body, 2) // count
	body = appendUint32(body, 100)
	body = appendString16L(body, "Load-AAAA-A")
	body = appendUint32(body, 0)
	body = appendUint32(body, 101)
	body = appendString16L(body, "Load-AAAA-B")
	body = appendUint32(body, 0)
	body = appendUint32(body, 0) // filler
	body = appendString16L(body, "Load-AAAA")
	body = appendUint32(body, 11)

	cl, err := DecodeCharacterList(body)
	if err != nil {
		t.Fatal(err)
	}
	if cl.Account != "Load-AAAA" || cl.Slots != 11 || len(cl.Characters) != 2 {
		t.Fatalf("bad decode: %+v", cl)
	}
	if cl.Characters[0].ID != 100 || cl.Characters[0].Name != "Load-AAAA-A" {
		t.Fatalf("bad first character: %+v", cl.Characters[0])
	}
}

func TestDecodeCharacterListTruncated(t *testing.T) {
	var body []byte
	body = appendUint32(body, 0)
	body = appendUint32(body, 3) // promises three entries, delivers none
	if _, err := DecodeCharacterList(body); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestEncodeEnterWorld(t *testing.T) {
	b := EncodeEnterWorld(0x50000001, "Load-AAAA")
	if binary.LittleEndian.Uint32(b) != OpEnterWorld {
		t.Fatalf("opcode % x", b[:4])
	}
	if binary.LittleEndian.Uint32(b[4:]) != 0x50000001 {
		t.Fatalf("character id % x", b[4:8])
	}
	name, _, err := readString16L(b[8:])
	if err != nil || name != "Load-AAAA" {
		t.Fatalf("account %q err %v", name, err)
	}
}

func TestEncodeTalk(t *testing.T) {
	b := EncodeTalk("hello world")
	msg, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Opcode != OpGameAction {
		t.Fatalf("opcode %#x", msg.Opcode)
	}
	if binary.LittleEndian.Uint32(msg.Body) != ActionTalk {
		t.Fatalf("action %#x", binary.LittleEndian.Uint32(msg.Body))
	}
}

func TestEncodeCharacterCreateStable(t *testing.T) {
	c := &CharGenResult{
		Heritage: 1, Gender: 1,
		Strength: 10, Endurance: 10, Coordination: 10,
		Quickness: 10, Focus: 10, Self: 10,
		Name: "Load-AAAA-A",
	}
	b := EncodeCharacterCreate("Load-AAAA", c)
	msg, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Opcode != OpCharacterCreate {
		t.Fatalf("opcode %#x", msg.Opcode)
	}
	acct, rest, err := readString16L(msg.Body)
	if err != nil || acct != "Load-AAAA" {
		t.Fatalf("account %q err %v", acct, err)
	}
	// version word then 31 appearance/attribute words then the skill list
	if binary.LittleEndian.Uint32(rest) != 1 {
		t.Fatalf("blob version % x", rest[:4])
	}
	skillCount := binary.LittleEndian.Uint32(rest[4+31*4:])
	if skillCount != SkillCount {
		t.Fatalf("skill count %d", skillCount)
	}
}
