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
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultReassemblyTTL bounds how long an incomplete blob is retained.
	DefaultReassemblyTTL = 10 * time.Second
	// DefaultMaxBlobs caps concurrently pending blobs per session.
	DefaultMaxBlobs = 64
)

var (
	ErrBlobMismatch = errors.New("acnet: fragment disagrees with pending blob")
	ErrBlobOverflow = errors.New("acnet: too many pending blobs")
	ErrBadFragment  = errors.New("acnet: fragment index out of range")
)

type blobKey struct {
	id    uint32
	group uint16
}

type pendingBlob struct {
	count     uint16
	fragSize  uint16
	received  []bool
	remaining int
	buf       []byte
	lengths   []int
	firstSeen time.Time
}

// Reassembler collects blob fragments keyed by (blob id, group) and returns
// whole messages once every fragment has arrived. Owned by the receive task;
// not safe for concurrent use.
type Reassembler struct {
	pending map[blobKey]*pendingBlob
	ttl     time.Duration
	maxBlobs int
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		pending:  make(map[blobKey]*pendingBlob),
		ttl:      DefaultReassemblyTTL,
		maxBlobs: DefaultMaxBlobs,
	}
}

// Feed adds one fragment. It returns the completed message once the last
// fragment of a blob arrives, nil otherwise. Duplicates are idempotent. A
// fragment whose count or size disagrees with the pending blob aborts the
// whole blob.
func (r *Reassembler) Feed(fh *FragmentHeader, data []byte, now time.Time) ([]byte, error) {
	if fh.Count == 0 || fh.Index >= fh.Count {
		return nil, errors.Wrapf(ErrBadFragment, "index %d of %d", fh.Index, fh.Count)
	}

	key := blobKey{id: fh.BlobID, group: fh.Group}
	pb, ok := r.pending[key]
	if !ok {
		if len(r.pending) >= r.maxBlobs {
			return nil, errors.Wrapf(ErrBlobOverflow, "blob %d", fh.BlobID)
		}
		pb = &pendingBlob{
			count:     fh.Count,
			fragSize:  fh.Size,
			received:  make([]bool, fh.Count),
			remaining: int(fh.Count),
			buf:       make([]byte, int(fh.Count)*int(fh.Size)),
			lengths:   make([]int, fh.Count),
			firstSeen: now,
		}
		r.pending[key] = pb
	}

	if fh.Count != pb.count || fh.Size != pb.fragSize {
		delete(r.pending, key)
		return nil, errors.Wrapf(ErrBlobMismatch, "blob %d: count %d/%d size %d/%d",
			fh.BlobID, fh.Count, pb.count, fh.Size, pb.fragSize)
	}
	if len(data) > int(pb.fragSize) {
		delete(r.pending, key)
		return nil, errors.Wrapf(ErrBlobMismatch, "blob %d: fragment %d larger than declared size", fh.BlobID, fh.Index)
	}

	if pb.received[fh.Index] {
		return nil, nil // duplicate
	}
	pb.received[fh.Index] = true
	pb.remaining--
	copy(pb.buf[int(fh.Index)*int(pb.fragSize):], data)
	pb.lengths[fh.Index] = len(data)

	if pb.remaining > 0 {
		return nil, nil
	}

	delete(r.pending, key)
	msg := make([]byte, 0, len(pb.buf))
	for i := 0; i < int(pb.count); i++ {
		start := i * int(pb.fragSize)
		msg = append(msg, pb.buf[start:start+pb.lengths[i]]...)
	}
	return msg, nil
}

// GC drops pending blobs older than the TTL and returns how many were
// evicted.
func (r *Reassembler) GC(now time.Time) int {
	var evicted int
	for key, pb := range r.pending {
		if now.Sub(pb.firstSeen) > r.ttl {
			delete(r.pending, key)
			evicted++
		}
	}
	return evicted
}

// Pending reports how many incomplete blobs are held.
func (r *Reassembler) Pending() int { return len(r.pending) }

// Reset discards all pending blobs, used at session teardown.
func (r *Reassembler) Reset() {
	r.pending = make(map[blobKey]*pendingBlob)
}
