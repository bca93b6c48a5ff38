// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"bytes"
	"io"
	"os"

	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/fmtutil"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/support/streamslice"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// FormatVersion is the file format version written by this package.
	FormatVersion uint16 = 3

	// ReaderVersion is the newest MinReaderVersion this package can read.
	ReaderVersion uint16 = 3

	// writerMinReaderVersion is the MinReaderVersion written by this package.
	writerMinReaderVersion uint16 = 3

	// headerSize is the packed size of Header.
	headerSize = 10
)

// Signature is the magic prefix of every binary log file.
var Signature = [4]byte{'B', 'L', 'O', 'G'}

// snapshotSignature is the prefix of a tree snapshot file, used by Detect.
var snapshotSignature = []byte{1, 2, 48}

// HeaderFlags are file-level feature bits.
type HeaderFlags uint8

const (
	// HeaderInternedStrings is set if string fields are encoded as string table
	// handles rather than inline.
	HeaderInternedStrings HeaderFlags = 1 << iota
)

// Header is the fixed, uncompressed prefix of a binary log file.
type Header struct {
	Signature        [4]byte
	FormatVersion    uint16 `struc:",little"`
	MinReaderVersion uint16 `struc:",little"`
	Compression      Compression
	Flags            HeaderFlags
}

// Interned returns true if string fields in this file are interned.
func (h *Header) Interned() bool { return h.Flags&HeaderInternedStrings != 0 }

func (h *Header) write(w io.Writer) error {
	return struc.Pack(w, h)
}

func (h *Header) read(r io.Reader) error {
	const op = "read header"

	var buf [headerSize]byte
	switch err := dataio.ReadFull(r, buf[:]); err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		return formaterr.Errorf(formaterr.InvalidFormat, op, "file is too short to be a binary log")
	default:
		return errors.Wrap(err, "reading header")
	}

	if err := struc.Unpack(bytes.NewReader(buf[:]), h); err != nil {
		return formaterr.E(formaterr.InvalidFormat, op, err)
	}
	if h.Signature != Signature {
		return formaterr.Errorf(formaterr.InvalidFormat, op, "bad signature %s", fmtutil.HexSlice(h.Signature[:]))
	}
	if h.FormatVersion < h.MinReaderVersion {
		return formaterr.Errorf(formaterr.InvalidFormat, op,
			"format version %d precedes its minimum reader version %d", h.FormatVersion, h.MinReaderVersion)
	}
	return nil
}

// Format identifies the kind of persisted build log in a file.
type Format int

const (
	// FormatUnknown is a file that is neither a binary log nor a snapshot.
	FormatUnknown Format = iota
	// FormatEventRecords is a binary log: a stream of event records.
	FormatEventRecords
	// FormatTreeSnapshot is a serialized, already-constructed tree.
	FormatTreeSnapshot
)

func (f Format) String() string {
	switch f {
	case FormatEventRecords:
		return "binlog"
	case FormatTreeSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Detect identifies the format of the stream r from its leading bytes.
//
// The bytes consumed while detecting are stitched back in front of the rest
// of r, so the returned reader yields the complete stream and can be handed
// to the matching decoder.
func Detect(r io.Reader) (Format, io.Reader, error) {
	peek := make([]byte, len(Signature))
	amt, err := io.ReadFull(r, peek)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return FormatUnknown, nil, errors.Wrap(err, "reading leading bytes")
	}
	peek = peek[:amt]

	format := FormatUnknown
	switch {
	case bytes.Equal(peek, Signature[:]):
		format = FormatEventRecords
	case bytes.HasPrefix(peek, snapshotSignature):
		format = FormatTreeSnapshot
	}
	return format, streamslice.Concat(bytes.NewReader(peek), r), nil
}

// Sniff returns the format of the file at path.
func Sniff(path string) (Format, error) {
	fd, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer func() {
		_ = fd.Close()
	}()

	format, _, err := Detect(fd)
	return format, err
}
