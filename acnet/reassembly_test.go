package acnet

import (
	"bytes"
	"testing"
	"time"
)

func frag(blob uint32, idx, count uint16, data []byte) (*FragmentHeader, []byte) {
	return &FragmentHeader{
		BlobID: blob,
		Count:  count,
		Size:   4,
		Index:  idx,
		Group:  1,
	}, data
}

func TestReassembleOutOfOrder(t *testing.T) {
	r := NewReassembler()
	now := time.Now()

	fh, d := frag(9, 2, 3, []byte("CCCC"))
	if msg, err := r.Feed(fh, d, now); err != nil || msg != nil {
		t.Fatalf("fragment 2: msg=%v err=%v", msg, err)
	}
	fh, d = frag(9, 0, 3, []byte("AAAA"))
	if msg, err := r.Feed(fh, d, now); err != nil || msg != nil {
		t.Fatalf("fragment 0: msg=%v err=%v", msg, err)
	}
	if r.Pending() != 1 {
		t.Fatalf("pending %d", r.Pending())
	}
	fh, d = frag(9, 1, 3, []byte("BBBB"))
	msg, err := r.Feed(fh, d, now)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg, []byte("AAAABBBBCCCC")) {
		t.Fatalf("reassembled %q", msg)
	}
	if r.Pending() != 0 {
		t.Fatalf("blob not released, pending %d", r.Pending())
	}
}

func TestReassembleShortLastFragment(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	fh, d := frag(3, 0, 2, []byte("AAAA"))
	if _, err := r.Feed(fh, d, now); err != nil {
		t.Fatal(err)
	}
	fh, d = frag(3, 1, 2, []byte("BB"))
	msg, err := r.Feed(fh, d, now)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg, []byte("AAAABB")) {
		t.Fatalf("reassembled %q", msg)
	}
}

func TestReassembleDuplicateIdempotent(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	fh, d := frag(5, 0, 2, []byte("AAAA"))
	if _, err := r.Feed(fh, d, now); err != nil {
		t.Fatal(err)
	}
	fh, d = frag(5, 0, 2, []byte("AAAA"))
	if msg, err := r.Feed(fh, d, now); err != nil || msg != nil {
		t.Fatalf("duplicate: msg=%v err=%v", msg, err)
	}
	fh, d = frag(5, 1, 2, []byte("BBBB"))
	msg, err := r.Feed(fh, d, now)
	if err != nil || msg == nil {
		t.Fatalf("completion after duplicate: msg=%v err=%v", msg, err)
	}
}

func TestReassembleDegenerateSingleFragment(t *testing.T) {
	r := NewReassembler()
	fh, d := frag(1, 0, 1, []byte("solo"))
	msg, err := r.Feed(fh, d, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg, []byte("solo")) {
		t.Fatalf("reassembled %q", msg)
	}
}

func TestReassembleCountMismatchAborts(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	fh, d := frag(7, 0, 3, []byte("AAAA"))
	if _, err := r.Feed(fh, d, now); err != nil {
		t.Fatal(err)
	}
	fh, d = frag(7, 1, 4, []byte("BBBB")) // count disagrees
	if _, err := r.Feed(fh, d, now); err == nil {
		t.Fatal("expected mismatch error")
	}
	if r.Pending() != 0 {
		t.Fatal("mismatched blob must be dropped, not kept")
	}
}

func TestReassembleBadIndex(t *testing.T) {
	r := NewReassembler()
	fh, d := frag(2, 5, 3, []byte("XXXX"))
	if _, err := r.Feed(fh, d, time.Now()); err == nil {
		t.Fatal("expected index error")
	}
	fh, d = frag(2, 0, 0, nil)
	if _, err := r.Feed(fh, d, time.Now()); err == nil {
		t.Fatal("expected zero-count error")
	}
}

func TestReassembleTTL(t *testing.T) {
	r := NewReassembler()
	start := time.Now()
	fh, d := frag(11, 0, 2, []byte("AAAA"))
	if _, err := r.Feed(fh, d, start); err != nil {
		t.Fatal(err)
	}
	if n := r.GC(start.Add(5 * time.Second)); n != 0 {
		t.Fatalf("evicted %d before TTL", n)
	}
	if n := r.GC(start.Add(11 * time.Second)); n != 1 {
		t.Fatalf("evicted %d after TTL", n)
	}
	if r.Pending() != 0 {
		t.Fatal("stale blob survived GC")
	}
}

func TestReassembleBlobCap(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	for i := 0; i < DefaultMaxBlobs; i++ {
		fh, d := frag(uint32(100+i), 0, 2, []byte("AAAA"))
		if _, err := r.Feed(fh, d, now); err != nil {
			t.Fatalf("blob %d: %v", i, err)
		}
	}
	fh, d := frag(9999, 0, 2, []byte("AAAA"))
	if _, err := r.Feed(fh, d, now); err == nil {
		t.Fatal("expected fail-closed at the blob cap")
	}
	// completing an existing blob still works at the cap
	fh, d = frag(100, 1, 2, []byte("BBBB"))
	if msg, err := r.Feed(fh, d, now); err != nil || msg == nil {
		t.Fatalf("completion at cap: msg=%v err=%v", msg, err)
	}
}
