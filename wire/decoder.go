// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"math"
	"time"

	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/formaterr"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

const (
	// MaxVarIntLen32 is the maximum encoded size of a 32-bit VarInt.
	MaxVarIntLen32 = 5
	// MaxVarIntLen64 is the maximum encoded size of a 64-bit VarInt.
	MaxVarIntLen64 = 10

	// MaxBlockLength bounds the length of a byte block or string. Block
	// lengths are written as 32-bit VarInts (len+1 for blocks).
	MaxBlockLength = math.MaxInt32
)

func errBlockTooLarge(size int64) error {
	return errors.Errorf("block of %d bytes exceeds maximum length", size)
}

// Decoder reads primitive values from an underlying stream.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	r   dataio.Reader
	off int64

	sizeBuf [MaxVarIntLen64]byte
	dataBuf bytes.Buffer
}

// NewDecoder returns a Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: dataio.MakeReader(r)}
}

// Reset redirects the Decoder to r, positioned at offset off, retaining its
// scratch space.
func (d *Decoder) Reset(r io.Reader, off int64) {
	d.r, d.off = dataio.MakeReader(r), off
}

// Offset returns the number of bytes consumed by the Decoder, plus the offset
// it was Reset to.
func (d *Decoder) Offset() int64 { return d.off }

// Reader returns the Decoder's underlying reader. Bytes read directly from it
// are not counted by Offset.
func (d *Decoder) Reader() dataio.Reader { return d.r }

func (d *Decoder) fail(kind formaterr.Kind, op string, format string, args ...interface{}) error {
	return formaterr.Errorf(kind, op, format, args...).At(d.off, "")
}

func (d *Decoder) ioFail(op string, err error) error {
	err = formaterr.FromIO(op, err)
	if fe, ok := err.(*formaterr.Error); ok {
		return fe.At(d.off, "")
	}
	return errors.Wrapf(err, "%s at offset %d", op, d.off)
}

// bufferNextVarint reads a VarInt's bytes into sizeBuf, stopping at the first
// byte without the continuation bit.
func (d *Decoder) bufferNextVarint(op string, maxLen int) ([]byte, error) {
	sizeBuf := d.sizeBuf[:0]
	for len(sizeBuf) < maxLen {
		b, err := d.r.ReadByte()
		if err != nil {
			// The value must be present; any end of data is a truncation.
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return sizeBuf, d.ioFail(op, err)
		}
		d.off++

		sizeBuf = append(sizeBuf, b)
		if (b & 0x80) == 0 {
			// Varint does not have continuation bit set.
			return sizeBuf, nil
		}
	}

	// If we've reached our maximum size, error.
	return sizeBuf, d.fail(formaterr.InvalidFormat, op, "VarInt exceeds %d bytes", maxLen)
}

func (d *Decoder) readUvarint(op string, maxLen int) (uint64, error) {
	sizeBuf, err := d.bufferNextVarint(op, maxLen)
	if err != nil {
		return 0, err
	}

	// sizeBuf contains the full varint. Since we've vetted its termination
	// in bufferNextVarint, decoding must consume all of it.
	v, amt := proto.DecodeVarint(sizeBuf)
	if amt != len(sizeBuf) {
		return 0, d.fail(formaterr.InvalidFormat, op, "malformed VarInt")
	}
	return v, nil
}

// ReadVarInt reads a 32-bit VarInt.
func (d *Decoder) ReadVarInt() (int32, error) {
	v, err := d.readUvarint("read VarInt", MaxVarIntLen32)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, d.fail(formaterr.InvalidFormat, "read VarInt", "value %d overflows 32 bits", v)
	}
	return int32(uint32(v)), nil
}

// ReadVarInt64 reads a 64-bit VarInt.
func (d *Decoder) ReadVarInt64() (int64, error) {
	v, err := d.readUvarint("read VarInt64", MaxVarIntLen64)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadLength reads a 32-bit VarInt that must be a non-negative length.
func (d *Decoder) ReadLength() (int64, error) {
	v, err := d.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, d.fail(formaterr.InvalidFormat, "read length", "negative length %d", v)
	}
	return int64(v), nil
}

// ReadBool reads a single-byte boolean.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return false, d.ioFail("read bool", err)
	}
	d.off++

	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, d.fail(formaterr.InvalidFormat, "read bool", "invalid boolean byte 0x%02X", b)
	}
}

// readBlock reads exactly n bytes into the decoder's scratch buffer. The
// buffer grows as data arrives, so a corrupt length cannot force a large
// allocation up front.
func (d *Decoder) readBlock(op string, n int64) ([]byte, error) {
	d.dataBuf.Reset()
	amt, err := io.CopyN(&d.dataBuf, d.r, n)
	d.off += amt
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, d.ioFail(op, err)
	}
	return d.dataBuf.Bytes(), nil
}

// ReadBytes reads a length-prefixed byte block. An absent block is returned
// as nil; an empty block as a non-nil, empty slice.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	data, err := d.readBlock("read bytes", n-1)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, len(data)), data...), nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadLength()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}

	data, err := d.readBlock("read string", n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadTimestamp reads a timestamp written by WriteTimestamp.
func (d *Decoder) ReadTimestamp() (time.Time, TimestampKind, error) {
	ticks, err := d.ReadVarInt64()
	if err != nil {
		return time.Time{}, 0, err
	}
	if ticks < 0 {
		return time.Time{}, 0, d.fail(formaterr.InvalidFormat, "read timestamp", "negative tick count %d", ticks)
	}

	kind, err := d.ReadVarInt()
	if err != nil {
		return time.Time{}, 0, err
	}
	tk := TimestampKind(kind)
	if !tk.valid() {
		return time.Time{}, 0, d.fail(formaterr.InvalidFormat, "read timestamp", "unknown timestamp kind %d", kind)
	}
	return TicksToTime(ticks, tk), tk, nil
}
