// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dataio

import (
	"io"
)

// Writer represents a Writer that can write both individual bytes and
// sequences of bytes.
type Writer interface {
	io.Writer
	io.ByteWriter
}

// MakeWriter returns a Writer for the specified Writer.
func MakeWriter(w io.Writer) Writer {
	if dr, ok := w.(Writer); ok {
		return dr
	}
	return &simulatedWriter{Writer: w}
}

type simulatedWriter struct {
	io.Writer
	buf [1]byte
}

func (w *simulatedWriter) WriteByte(c byte) error {
	w.buf[0] = c
	switch amt, err := w.Write(w.buf[:]); {
	case err != nil:
		return err
	case amt != 1:
		return io.ErrShortWrite
	default:
		return nil
	}
}

// CountingWriter is a Writer that tracks the number of bytes written through
// it.
type CountingWriter struct {
	w     Writer
	count int64
}

// NewCountingWriter wraps w in a CountingWriter.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: MakeWriter(w)}
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(b []byte) (int, error) {
	amt, err := cw.w.Write(b)
	cw.count += int64(amt)
	return amt, err
}

// WriteByte implements io.ByteWriter.
func (cw *CountingWriter) WriteByte(c byte) error {
	if err := cw.w.WriteByte(c); err != nil {
		return err
	}
	cw.count++
	return nil
}

// Count returns the number of bytes written so far.
func (cw *CountingWriter) Count() int64 { return cw.count }
