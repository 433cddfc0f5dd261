package runner

import "testing"

func TestEncodeKnownValues(t *testing.T) {
	cases := []struct {
		id   uint32
		want string
	}{
		{0, "AAAA"},
		{1, "AAAB"},
		{25, "AAAZ"},
		{26, "AABA"},
		{27, "AABB"},
		{675, "AAZZ"},
		{456975, "ZZZZ"},
		{456976, "ZZZZ"}, // clamped
		{1 << 30, "ZZZZ"},
	}
	for _, c := range cases {
		if got := EncodeClientID(c.id); got != c.want {
			t.Fatalf("encode(%d) = %s, want %s", c.id, got, c.want)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 1, 25, 26, 27, 100, 675, 456975} {
		code := EncodeClientID(id)
		got, ok := DecodeClientID(code)
		if !ok || got != id {
			t.Fatalf("roundtrip %d -> %s -> %d (%v)", id, code, got, ok)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, code := range []string{"", "AAA", "AAAAA", "AAAa", "AA!A", "aaaa"} {
		if _, ok := DecodeClientID(code); ok {
			t.Fatalf("decode(%q) should fail", code)
		}
	}
}

func TestNaming(t *testing.T) {
	n := NewNaming(27)
	if n.Code() != "AABB" {
		t.Fatalf("code %s", n.Code())
	}
	if n.AccountName() != "Load-AABB" {
		t.Fatalf("account %s", n.AccountName())
	}
	if n.Password() != "Load-AABB" {
		t.Fatalf("password %s", n.Password())
	}
	if n.CharacterName() != "Load-AABB-A" {
		t.Fatalf("character %s", n.CharacterName())
	}
}

func TestNamingSequential(t *testing.T) {
	want := []string{"AAAA", "AAAB", "AAAC", "AAAD", "AAAE", "AAAF", "AAAG", "AAAH", "AAAI", "AAAJ"}
	for i, w := range want {
		if got := EncodeClientID(uint32(i)); got != w {
			t.Fatalf("encode(%d) = %s, want %s", i, got, w)
		}
	}
}
