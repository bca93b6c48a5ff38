// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package wire

import (
	"io"
	"time"

	"github.com/danjacques/gobinlog/support/dataio"

	"github.com/golang/protobuf/proto"
)

// Encoder writes primitive values to an underlying stream.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	w   dataio.Writer
	buf *proto.Buffer
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   dataio.MakeWriter(w),
		buf: proto.NewBuffer(make([]byte, 0, MaxVarIntLen64)),
	}
}

// Reset redirects the Encoder to w, retaining its scratch space.
func (e *Encoder) Reset(w io.Writer) { e.w = dataio.MakeWriter(w) }

func (e *Encoder) writeUvarint(v uint64) error {
	e.buf.Reset()
	if err := e.buf.EncodeVarint(v); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return err
}

// WriteVarInt writes a 32-bit VarInt.
func (e *Encoder) WriteVarInt(v int32) error { return e.writeUvarint(uint64(uint32(v))) }

// WriteVarInt64 writes a 64-bit VarInt.
func (e *Encoder) WriteVarInt64(v int64) error { return e.writeUvarint(uint64(v)) }

// WriteBool writes a boolean as a single byte.
func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.w.WriteByte(1)
	}
	return e.w.WriteByte(0)
}

// WriteBytes writes a length-prefixed byte block. A nil block is written as
// absent, and reads back as nil; an empty, non-nil block reads back as empty.
func (e *Encoder) WriteBytes(b []byte) error {
	if b == nil {
		return e.writeUvarint(0)
	}
	if int64(len(b)) >= MaxBlockLength {
		return errBlockTooLarge(int64(len(b)))
	}
	if err := e.writeUvarint(uint64(len(b)) + 1); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

// WriteString writes a length-prefixed string.
func (e *Encoder) WriteString(s string) error {
	if int64(len(s)) >= MaxBlockLength {
		return errBlockTooLarge(int64(len(s)))
	}
	if err := e.writeUvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, s)
	return err
}

// WriteTimestamp writes t as a tick count followed by its kind.
func (e *Encoder) WriteTimestamp(t time.Time, kind TimestampKind) error {
	if err := e.WriteVarInt64(TimeToTicks(t)); err != nil {
		return err
	}
	return e.WriteVarInt(int32(kind))
}

// WriteRaw writes b verbatim, without a length prefix.
func (e *Encoder) WriteRaw(b []byte) error {
	_, err := e.w.Write(b)
	return err
}
