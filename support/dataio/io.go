// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataio

import (
	"io"

	"github.com/danjacques/gobinlog/support/bufferpool"
)

// skipBufferSize is the size of the scratch buffers used by Skip.
const skipBufferSize = 64 * 1024

var skipBuffers = bufferpool.Pool{Size: skipBufferSize}

// ReadFull reads from r until buf is full, or until an error is encountered.
//
// This accommodates the fact that io.Reader is allowed to return less than the
// full buffer size without erroring. If r runs out of data before buf is
// full, ReadFull returns io.ErrUnexpectedEOF; if it had no data at all, it
// returns io.EOF.
func ReadFull(r io.Reader, buf []byte) error {
	// Read until we fill our buffer or encounter an error.
	for remaining := buf; len(remaining) > 0; {
		amt, err := r.Read(remaining)
		remaining = remaining[amt:]
		if err != nil {
			switch {
			case len(remaining) == 0:
				// Finished read; any error (including EOF) belongs to the next read.
				return nil
			case err == io.EOF && len(remaining) < len(buf):
				return io.ErrUnexpectedEOF
			default:
				// Either did not finish read, or returned a non-EOF error.
				return err
			}
		}
	}
	return nil
}

// Skip advances r by n bytes, discarding them.
//
// Skip uses pooled scratch buffers and does not allocate per call. If r is
// an io.Seeker, it is not used: Skip works on forward-only streams.
//
// If mustSkipAll is true, Skip returns io.ErrUnexpectedEOF when r ends before
// n bytes were skipped. Otherwise, reaching the end of r is not an error and
// Skip returns the number of bytes that were actually skipped.
func Skip(r io.Reader, n int64, mustSkipAll bool) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	buf := skipBuffers.Get()
	defer buf.Release()
	scratch := buf.Bytes()

	skipped := int64(0)
	for skipped < n {
		chunk := scratch
		if rem := n - skipped; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}

		amt, err := r.Read(chunk)
		skipped += int64(amt)
		if err != nil {
			if skipped == n {
				break
			}
			if err == io.EOF {
				if mustSkipAll {
					return skipped, io.ErrUnexpectedEOF
				}
				return skipped, nil
			}
			return skipped, err
		}
	}
	return skipped, nil
}
