package acnet

import "testing"

func TestCryptoSystemDeterministic(t *testing.T) {
	a := NewCryptoSystem(0x12345678)
	b := NewCryptoSystem(0x12345678)
	for i := 0; i < 1000; i++ {
		if ka, kb := a.NextKey(), b.NextKey(); ka != kb {
			t.Fatalf("draw %d diverged: %08x vs %08x", i, ka, kb)
		}
	}
}

func TestCryptoSystemSeedsDiffer(t *testing.T) {
	a := NewCryptoSystem(0x12345678)
	b := NewCryptoSystem(0x12345679)
	same := 0
	for i := 0; i < 256; i++ {
		if a.NextKey() == b.NextKey() {
			same++
		}
	}
	if same > 4 {
		t.Fatalf("adjacent seeds produced %d identical draws", same)
	}
}

func TestCryptoSystemNoShortCycle(t *testing.T) {
	c := NewCryptoSystem(0xCAFEBABE)
	seen := make(map[uint32]int)
	for i := 0; i < 1024; i++ {
		seen[c.NextKey()]++
	}
	// a keystream with a cycle shorter than the refill window would repeat
	if len(seen) < 1000 {
		t.Fatalf("only %d distinct draws in 1024", len(seen))
	}
}

func TestCryptoSystemClone(t *testing.T) {
	c := NewCryptoSystem(7)
	for i := 0; i < 300; i++ { // past one refill boundary
		c.NextKey()
	}
	snap := c.Clone()
	want := make([]uint32, 16)
	for i := range want {
		want[i] = snap.NextKey()
	}
	for i := range want {
		if got := c.NextKey(); got != want[i] {
			t.Fatalf("clone diverged at draw %d", i)
		}
	}
}
