package session

import (
	"testing"

	"github.com/amoeba/acload/acnet"
)

func TestHistoryAddGet(t *testing.T) {
	var h history
	fh := acnet.FragmentHeader{Sequence: 5, BlobID: 1, Count: 1, Size: 3}
	h.Add(5, fh, []byte("abc"))

	ent, ok := h.Get(5)
	if !ok || string(ent.chunk) != "abc" || ent.fragment.BlobID != 1 {
		t.Fatalf("got %+v %v", ent, ok)
	}
	if _, ok := h.Get(6); ok {
		t.Fatal("unknown sequence must miss")
	}
}

func TestHistoryOverwriteAfterWrap(t *testing.T) {
	var h history
	h.Add(1, acnet.FragmentHeader{}, []byte("old"))
	h.Add(1+HistorySize, acnet.FragmentHeader{}, []byte("new"))

	if _, ok := h.Get(1); ok {
		t.Fatal("wrapped slot must not serve the old sequence")
	}
	ent, ok := h.Get(1 + HistorySize)
	if !ok || string(ent.chunk) != "new" {
		t.Fatalf("got %+v %v", ent, ok)
	}
}

func TestHistoryAck(t *testing.T) {
	var h history
	for seq := uint32(1); seq <= 10; seq++ {
		h.Add(seq, acnet.FragmentHeader{Sequence: seq}, []byte{byte(seq)})
	}
	h.Ack(7)
	for seq := uint32(1); seq <= 7; seq++ {
		if _, ok := h.Get(seq); ok {
			t.Fatalf("seq %d should be released", seq)
		}
	}
	for seq := uint32(8); seq <= 10; seq++ {
		if _, ok := h.Get(seq); !ok {
			t.Fatalf("seq %d should survive the ack", seq)
		}
	}
}
