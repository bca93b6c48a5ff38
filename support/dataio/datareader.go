// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataio

import (
	"io"
	"sync/atomic"
)

// Reader represents a Reader that can read both individual bytes and
// sequences of bytes.
type Reader interface {
	io.Reader
	io.ByteReader
}

// MakeReader returns a Reader for the specified Reader.
func MakeReader(r io.Reader) Reader {
	if dr, ok := r.(Reader); ok {
		return dr
	}
	return &simulatedReader{Reader: r}
}

type simulatedReader struct {
	io.Reader
	buf [1]byte
}

func (r *simulatedReader) ReadByte() (byte, error) {
	// A Reader may legally return (0, nil); keep trying until it produces a
	// byte or an error.
	for {
		amt, err := r.Read(r.buf[:])
		if amt == 1 {
			return r.buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// CountingReader is a Reader that tracks the number of bytes that have been
// read through it.
//
// Count is safe to call concurrently with reads, so that a progress monitor
// can poll it while another goroutine consumes the stream.
type CountingReader struct {
	r     Reader
	count int64
}

// NewCountingReader wraps r in a CountingReader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: MakeReader(r)}
}

// Read implements io.Reader.
func (cr *CountingReader) Read(b []byte) (int, error) {
	amt, err := cr.r.Read(b)
	atomic.AddInt64(&cr.count, int64(amt))
	return amt, err
}

// ReadByte implements io.ByteReader.
func (cr *CountingReader) ReadByte() (byte, error) {
	b, err := cr.r.ReadByte()
	if err == nil {
		atomic.AddInt64(&cr.count, 1)
	}
	return b, err
}

// Count returns the number of bytes read so far.
func (cr *CountingReader) Count() int64 { return atomic.LoadInt64(&cr.count) }
