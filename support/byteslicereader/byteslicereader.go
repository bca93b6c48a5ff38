// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package byteslicereader offers R, a slice-backed Reader.
//
// R is used wherever an already-materialized region of a log (for example an
// embedded archive block) must be handed to an API that wants an io.Reader,
// io.ByteReader, io.Seeker or io.ReaderAt. Unlike bytes.Reader, R exposes its
// Buffer directly so that callers can hand out sub-slices without copying.
package byteslicereader

import (
	"io"

	"github.com/pkg/errors"
)

// R is a Reader over a byte slice.
//
// R can be copied, creating a snapshot of its current state.
type R struct {
	// Buffer is the backing buffer for this reader.
	Buffer []byte

	// pos is the R's position within Buffer.
	pos int64
}

var _ interface {
	io.Reader
	io.ByteReader
	io.Seeker
	io.ReaderAt
} = (*R)(nil)

func (r *R) remainingSlice() []byte {
	if r.pos >= int64(len(r.Buffer)) {
		return nil
	}
	return r.Buffer[r.pos:]
}

// Size returns the total size of the backing Buffer.
func (r *R) Size() int64 { return int64(len(r.Buffer)) }

// Remaining returns the number of bytes remaining in the reader, from the
// current position.
func (r *R) Remaining() int { return len(r.remainingSlice()) }

// Read implements io.Reader.
func (r *R) Read(b []byte) (amt int, err error) {
	remaining := r.remainingSlice()
	if len(remaining) == 0 && len(b) > 0 {
		return 0, io.EOF
	}

	amt = copy(b, remaining)
	r.pos += int64(amt)
	return
}

// ReadByte implements io.ByteReader.
func (r *R) ReadByte() (b byte, err error) {
	if r.pos >= int64(len(r.Buffer)) {
		return 0, io.EOF
	}

	b, r.pos = r.Buffer[r.pos], r.pos+1
	return
}

// ReadAt implements io.ReaderAt. It does not affect the reader's position.
func (r *R) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(r.Buffer)) {
		return 0, io.EOF
	}

	amt := copy(b, r.Buffer[off:])
	if amt < len(b) {
		return amt, io.EOF
	}
	return amt, nil
}

// Seek implements io.Seeker.
//
// Seeking to the end of the Buffer is legal; seeking beyond it is not.
func (r *R) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = int64(len(r.Buffer)) + offset
	default:
		return r.pos, errors.Errorf("invalid whence %d", whence)
	}

	if newPos < 0 || newPos > int64(len(r.Buffer)) {
		return r.pos, errors.New("seek outside of bounds")
	}

	r.pos = newPos
	return r.pos, nil
}

// Next returns the next n bytes in r, advancing r.
//
// Next is a zero-copy equivalent to Read, and returns a slice of the underlying
// Buffer. If there are fewer than n bytes in r, Next will return as many bytes
// as it can and io.EOF as an error.
func (r *R) Next(n int) (v []byte, err error) {
	v = r.remainingSlice()
	if n <= len(v) {
		v = v[:n]
	} else {
		err = io.EOF
	}

	r.pos += int64(len(v))
	return
}
