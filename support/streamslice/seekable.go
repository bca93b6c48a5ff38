// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package streamslice

import (
	"io"
	"sync/atomic"

	"github.com/danjacques/gobinlog/support/dataio"

	"github.com/pkg/errors"
)

// SeekableReader adapts a forward-only source into an io.ReadSeeker.
//
// Only the operations a forward-only source can honor are supported:
//
//   - Seek(0, io.SeekCurrent) reports the current position.
//   - Forward seeks (io.SeekStart or io.SeekCurrent) skip bytes.
//   - Seek(0, io.SeekEnd) reports the total length, if it was supplied or
//     probed from an underlying io.Seeker at construction.
//
// Backwards seeks fail.
//
// Position and Size may be called concurrently with reads, which lets a
// progress monitor poll a stream that another goroutine is consuming.
type SeekableReader struct {
	r    io.Reader
	size int64
	pos  int64
}

var _ io.ReadSeeker = (*SeekableReader)(nil)

// Seekable wraps r in a SeekableReader.
//
// size is the total length of r, or -1 if it is not known. If it is not
// known and r is an io.Seeker, it is probed here, before any data is read,
// and the source is left at its original offset. The length is reported
// relative to that offset.
func Seekable(r io.Reader, size int64) *SeekableReader {
	if size < 0 {
		if seeker, ok := r.(io.Seeker); ok {
			size = probeSize(seeker)
		}
	}
	return &SeekableReader{
		r:    r,
		size: size,
	}
}

// probeSize returns the number of bytes between s's current offset and its
// end, or -1 if s cannot report them.
func probeSize(s io.Seeker) int64 {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return -1
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return -1
	}
	if end < cur {
		return -1
	}
	return end - cur
}

// Read implements io.Reader.
func (sr *SeekableReader) Read(b []byte) (int, error) {
	amt, err := sr.r.Read(b)
	atomic.AddInt64(&sr.pos, int64(amt))
	return amt, err
}

// Position returns the number of bytes consumed from the source so far.
func (sr *SeekableReader) Position() int64 { return atomic.LoadInt64(&sr.pos) }

// Size returns the total length of the source.
//
// If the length was neither supplied nor probed, Size returns an error.
func (sr *SeekableReader) Size() (int64, error) {
	if sr.size < 0 {
		return -1, errors.New("length of forward-only stream is unknown")
	}
	return sr.size, nil
}

// Seek implements io.Seeker, within the limits described on SeekableReader.
func (sr *SeekableReader) Seek(offset int64, whence int) (int64, error) {
	pos := sr.Position()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = pos + offset
	case io.SeekEnd:
		if offset != 0 {
			return pos, errors.New("only Seek(0, io.SeekEnd) is supported")
		}
		return sr.Size()
	default:
		return pos, errors.Errorf("invalid whence %d", whence)
	}

	switch {
	case target < pos:
		return pos, errors.Errorf("cannot seek backwards from %d to %d", pos, target)
	case target == pos:
		return pos, nil
	}

	amt, err := dataio.Skip(sr.r, target-pos, true)
	atomic.AddInt64(&sr.pos, amt)
	if err != nil {
		return sr.Position(), errors.Wrap(err, "skipping forward")
	}
	return sr.Position(), nil
}
