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

package std

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// TraceRecord is one captured datagram.
type TraceRecord struct {
	Outbound bool
	When     time.Time
	Datagram []byte
}

// Tracer captures raw datagrams to a snappy-framed file for offline
// inspection. Safe for use from several session tasks at once.
type Tracer struct {
	mu sync.Mutex
	w  *snappy.Writer
	f  *os.File
}

// NewTracer opens (truncating) the capture file.
func NewTracer(path string) (*Tracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "open trace file")
	}
	return &Tracer{w: snappy.NewBufferedWriter(f), f: f}, nil
}

// Record appends one datagram: direction byte, nanosecond timestamp,
// u16 length, raw bytes.
func (t *Tracer) Record(outbound bool, datagram []byte) error {
	var hdr [11]byte
	if outbound {
		hdr[0] = 1
	}
	binary.LittleEndian.PutUint64(hdr[1:], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint16(hdr[9:], uint16(len(datagram)))

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "trace header")
	}
	if _, err := t.w.Write(datagram); err != nil {
		return errors.Wrap(err, "trace datagram")
	}
	return nil
}

// Close flushes and closes the capture.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.Close(); err != nil {
		t.f.Close()
		return errors.Wrap(err, "close trace writer")
	}
	return errors.Wrap(t.f.Close(), "close trace file")
}

// ReadTrace decodes a capture stream back into records.
func ReadTrace(r io.Reader) ([]TraceRecord, error) {
	sr := snappy.NewReader(r)
	var out []TraceRecord
	var hdr [11]byte
	for {
		if _, err := io.ReadFull(sr, hdr[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, errors.Wrap(err, "trace header")
		}
		rec := TraceRecord{
			Outbound: hdr[0] == 1,
			When:     time.Unix(0, int64(binary.LittleEndian.Uint64(hdr[1:]))),
			Datagram: make([]byte, binary.LittleEndian.Uint16(hdr[9:])),
		}
		if _, err := io.ReadFull(sr, rec.Datagram); err != nil {
			return out, errors.Wrap(err, "trace datagram")
		}
		out = append(out, rec)
	}
}
