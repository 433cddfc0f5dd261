package session

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	c := ReconnectConfig{
		InitialDelay: 10 * time.Second,
		MaxDelay:     600 * time.Second,
		Multiplier:   2.0,
	}
	want := []time.Duration{
		10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second,
		160 * time.Second, 320 * time.Second, 600 * time.Second, 600 * time.Second,
	}
	for k, w := range want {
		if got := c.DelayForAttempt(uint32(k)); got != w {
			t.Fatalf("delay(%d) = %v, want %v", k, got, w)
		}
	}
}

func TestBackoffMonotone(t *testing.T) {
	c := DefaultReconnectConfig()
	prev := time.Duration(0)
	for k := uint32(0); k < 64; k++ {
		d := c.DelayForAttempt(k)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", k, d, prev)
		}
		if d > c.MaxDelay {
			t.Fatalf("delay %v exceeds cap", d)
		}
		prev = d
	}
}

func TestBackoffAttemptCap(t *testing.T) {
	c := ReconnectConfig{MaxAttempts: 3}
	for k := uint32(0); k < 3; k++ {
		if !c.ShouldAttempt(k) {
			t.Fatalf("attempt %d should be allowed", k)
		}
	}
	if c.ShouldAttempt(3) {
		t.Fatal("attempt 3 should be refused")
	}
	unlimited := ReconnectConfig{MaxAttempts: 0}
	if !unlimited.ShouldAttempt(1 << 20) {
		t.Fatal("zero means unlimited")
	}
}
