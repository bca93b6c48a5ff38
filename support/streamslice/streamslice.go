// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package streamslice offers views over forward-only byte streams: bounded
// sub-streams (Slice), concatenation (Concat) and seekability adaptation
// (Seekable).
//
// These let a decoder bound or skip regions of a multi-gigabyte stream
// without buffering it.
package streamslice

import (
	"io"

	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/formaterr"
)

// Slice is a read-only, forward-only view over the next N bytes of an
// underlying stream.
//
// Reading beyond the declared length is a format error rather than an
// end-of-data condition: it means the length was declared incorrectly, and
// continuing would desynchronize the outer stream. Such reads fail with a
// formaterr.OverRead error. If the underlying stream ends before the declared
// length, reads fail with formaterr.TruncatedData.
type Slice struct {
	r         dataio.Reader
	remaining int64
}

var _ dataio.Reader = (*Slice)(nil)

// New returns a Slice exposing the next n bytes of r.
func New(r io.Reader, n int64) *Slice {
	return &Slice{
		r:         dataio.MakeReader(r),
		remaining: n,
	}
}

// Reset repoints s at the next n bytes of r, allowing a Slice to be reused.
func (s *Slice) Reset(r io.Reader, n int64) {
	s.r, s.remaining = dataio.MakeReader(r), n
}

// Remaining returns the number of bytes that may still be read.
func (s *Slice) Remaining() int64 { return s.remaining }

func (s *Slice) overRead(want int) error {
	return formaterr.Errorf(formaterr.OverRead, "slice read",
		"requested %d byte(s) with %d remaining", want, s.remaining)
}

// Read implements io.Reader.
//
// If fewer bytes remain than requested, Read returns what remains; the next
// Read fails with an OverRead error. Callers that use io.ReadFull therefore
// never silently receive truncated data.
func (s *Slice) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if s.remaining <= 0 {
		return 0, s.overRead(len(b))
	}

	if int64(len(b)) > s.remaining {
		b = b[:s.remaining]
	}
	amt, err := s.r.Read(b)
	s.remaining -= int64(amt)
	if err != nil {
		if err == io.EOF {
			if s.remaining > 0 {
				return amt, formaterr.FromIO("slice read", io.ErrUnexpectedEOF)
			}
			err = nil
		}
		return amt, err
	}
	return amt, nil
}

// ReadByte implements io.ByteReader.
func (s *Slice) ReadByte() (byte, error) {
	if s.remaining <= 0 {
		return 0, s.overRead(1)
	}

	b, err := s.r.ReadByte()
	if err != nil {
		return 0, formaterr.FromIO("slice read", err)
	}
	s.remaining--
	return b, nil
}

// SkipRest discards any unread bytes in the Slice, leaving the underlying
// stream positioned immediately after it.
//
// SkipRest returns the number of bytes that were discarded.
func (s *Slice) SkipRest() (int64, error) {
	if s.remaining <= 0 {
		return 0, nil
	}

	amt, err := dataio.Skip(s.r, s.remaining, true)
	s.remaining -= amt
	if err != nil {
		return amt, formaterr.FromIO("slice skip", err)
	}
	return amt, nil
}

// Concat presents several streams as a single continuous forward-only stream.
//
// Unlike io.MultiReader, the result is also an io.ByteReader, so it can be
// handed directly to byte-oriented decoders.
func Concat(readers ...io.Reader) dataio.Reader {
	cr := concatReader{
		readers: make([]dataio.Reader, len(readers)),
	}
	for i, r := range readers {
		cr.readers[i] = dataio.MakeReader(r)
	}
	return &cr
}

type concatReader struct {
	readers []dataio.Reader
}

func (cr *concatReader) Read(b []byte) (int, error) {
	for len(cr.readers) > 0 {
		amt, err := cr.readers[0].Read(b)
		if err == io.EOF {
			cr.readers = cr.readers[1:]
			if amt > 0 {
				return amt, nil
			}
			continue
		}
		return amt, err
	}
	return 0, io.EOF
}

func (cr *concatReader) ReadByte() (byte, error) {
	for len(cr.readers) > 0 {
		b, err := cr.readers[0].ReadByte()
		if err == io.EOF {
			cr.readers = cr.readers[1:]
			continue
		}
		return b, err
	}
	return 0, io.EOF
}
