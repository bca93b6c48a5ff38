// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"fmt"
	"io"
	"os"

	"github.com/danjacques/gobinlog/stringtable"
	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/support/logging"
	"github.com/danjacques/gobinlog/support/streamslice"
	"github.com/danjacques/gobinlog/wire"

	"github.com/pkg/errors"
)

// RecoverableReadError describes a problem that a Reader stepped over
// without failing: a record or trailing fields it did not understand in a
// file written by a newer writer.
type RecoverableReadError struct {
	// Offset is the decompressed body offset of the record.
	Offset int64
	// Kind is the record's kind.
	Kind RecordKind
	// Skipped is the number of bytes that were skipped.
	Skipped int64
	// Reason describes what was skipped.
	Reason string
}

func (e *RecoverableReadError) Error() string {
	return fmt.Sprintf("skipped %d byte(s) of %s record at offset %d: %s",
		e.Skipped, e.Kind, e.Offset, e.Reason)
}

// ReaderOptions configures a Reader. The zero value is a valid
// configuration.
type ReaderOptions struct {
	// AllowForwardCompatibility reads files whose MinReaderVersion is newer
	// than ReaderVersion, skipping whatever cannot be understood.
	AllowForwardCompatibility bool

	// SkipEmbeddedArchives skips embedded content blocks without reading
	// them, instead of returning them as *EmbeddedArchive events.
	SkipEmbeddedArchives bool

	// OnRecoverableError, if not nil, is called for each RecoverableReadError.
	OnRecoverableError func(*RecoverableReadError)

	// Logger, if not nil, is used to log reader operation.
	Logger logging.L
}

// Reader reads events from a binary log.
//
// Reader reads in a single forward pass and is not safe for concurrent use,
// with the exception of Position, which may be polled by another goroutine
// to report progress.
type Reader struct {
	opts   ReaderOptions
	logger logging.L

	hdr    Header
	src    *streamslice.SeekableReader
	closer io.Closer

	raw  rawStreamReader
	body *dataio.CountingReader
	// dec reads record framing from body.
	dec *wire.Decoder
	// rec reads a single record's payload through slice.
	rec   *wire.Decoder
	slice streamslice.Slice

	strings stringtable.Table

	numRecords int64
	done       bool
}

// Open opens the binary log at path.
func (o *ReaderOptions) Open(path string) (*Reader, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening binary log")
	}

	size := int64(-1)
	if st, err := fd.Stat(); err == nil {
		size = st.Size()
	}

	r, err := o.newReader(fd, size, fd)
	if err != nil {
		_ = fd.Close()
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	return r, nil
}

// NewReader returns a Reader that reads a binary log from r.
//
// Closing the Reader does not close r.
func (o *ReaderOptions) NewReader(r io.Reader) (*Reader, error) {
	return o.newReader(r, -1, nil)
}

// Open opens the binary log at path with default options.
func Open(path string) (*Reader, error) {
	var opts ReaderOptions
	return opts.Open(path)
}

func (o *ReaderOptions) newReader(base io.Reader, size int64, closer io.Closer) (*Reader, error) {
	r := Reader{
		opts:   *o,
		logger: logging.Must(o.Logger),
		src:    streamslice.Seekable(base, size),
		closer: closer,
	}

	if err := r.hdr.read(r.src); err != nil {
		readErrors.WithLabelValues(formaterr.KindOf(err).String()).Inc()
		return nil, err
	}
	if r.hdr.MinReaderVersion > ReaderVersion {
		if !o.AllowForwardCompatibility {
			readErrors.WithLabelValues(formaterr.UnsupportedVersion.String()).Inc()
			return nil, formaterr.Errorf(formaterr.UnsupportedVersion, "read header",
				"file requires reader version %d, this reader is version %d",
				r.hdr.MinReaderVersion, ReaderVersion)
		}
		r.logger.Warnf("Reading version %d file (requires reader version %d) in forward-compatibility mode.",
			r.hdr.FormatVersion, r.hdr.MinReaderVersion)
	}

	if err := r.raw.reset(r.src, r.hdr.Compression); err != nil {
		r.raw.close()
		if errors.Cause(err) == io.EOF || errors.Cause(err) == io.ErrUnexpectedEOF {
			return nil, formaterr.E(formaterr.TruncatedData, "open body", errors.Wrap(err, "file is incomplete"))
		}
		return nil, formaterr.E(formaterr.InvalidFormat, "open body", err)
	}

	r.body = dataio.NewCountingReader(r.raw)
	r.dec = wire.NewDecoder(r.body)
	r.rec = wire.NewDecoder(&r.slice)
	return &r, nil
}

// Header returns the file's header.
func (r *Reader) Header() Header { return r.hdr }

// Strings returns the string table populated by the records read so far.
func (r *Reader) Strings() *stringtable.Table { return &r.strings }

// Position returns the number of (compressed) file bytes consumed so far.
//
// Position is safe to call concurrently with Next.
func (r *Reader) Position() int64 { return r.src.Position() }

// Size returns the total (compressed) length of the file, or an error if it
// cannot be determined.
func (r *Reader) Size() (int64, error) { return r.src.Size() }

// NumRecords returns the number of records read so far.
func (r *Reader) NumRecords() int64 { return r.numRecords }

// Close releases the Reader's resources, closing its file if it owns one.
func (r *Reader) Close() error {
	r.raw.close()
	r.done = true
	if r.closer == nil {
		return nil
	}
	closer := r.closer
	r.closer = nil
	return closer.Close()
}

// tolerant returns true if unknown content should be skipped rather than
// rejected.
func (r *Reader) tolerant() bool {
	return r.opts.AllowForwardCompatibility || r.hdr.FormatVersion > ReaderVersion
}

func (r *Reader) recoverable(rre *RecoverableReadError) {
	recordsSkipped.WithLabelValues("recoverable").Inc()
	r.logger.Warnf("Recoverable read error: %s", rre)
	if r.opts.OnRecoverableError != nil {
		r.opts.OnRecoverableError(rre)
	}
}

// Next returns the next event in the log.
//
// Next returns io.EOF after the log's EndOfFile record has been read. If the
// log ends before its EndOfFile record, Next returns a TruncatedData error;
// a partially-read event is never returned.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return nil, io.EOF
	}

	ev, err := r.next()
	if err != nil && err != io.EOF {
		r.done = true
		if formaterr.Is(formaterr.TruncatedData, err) {
			err = errors.Wrap(err, "file is incomplete")
		}
		readErrors.WithLabelValues(formaterr.KindOf(err).String()).Inc()
	}
	return ev, err
}

func (r *Reader) next() (Event, error) {
	for {
		kind32, err := r.dec.ReadVarInt()
		if err != nil {
			return nil, err
		}
		kind := RecordKind(kind32)

		length, err := r.dec.ReadVarInt()
		if err != nil {
			return nil, annotate(err, kind)
		}
		if length < 0 {
			return nil, formaterr.Errorf(formaterr.InvalidFormat, "read record",
				"negative record length %d", length).At(r.dec.Offset(), kind.String())
		}

		start := r.dec.Offset()
		r.slice.Reset(r.body, int64(length))
		r.rec.Reset(&r.slice, start)
		r.numRecords++

		ev, err := r.readRecord(kind, start)
		if err != nil {
			return nil, annotate(err, kind)
		}

		// Advance our framing decoder past the record.
		r.dec.Reset(r.body, start+int64(length))
		if ev != nil || kind == KindEndOfFile {
			recordsRead.WithLabelValues(kind.String()).Inc()
		}

		switch {
		case kind == KindEndOfFile:
			r.done = true
			return nil, io.EOF
		case ev != nil:
			return ev, nil
		}
	}
}

// readRecord reads the body of a single record from r.slice.
//
// It returns a nil Event if the record was consumed without producing an
// event.
func (r *Reader) readRecord(kind RecordKind, start int64) (Event, error) {
	const op = "read record"

	switch {
	case kind == KindEndOfFile:
		return nil, r.finishRecord(kind, start)

	case !kind.Known():
		if !r.tolerant() {
			return nil, formaterr.Errorf(formaterr.InvalidFormat, op, "unknown record kind %d", int32(kind)).At(start, "")
		}
		amt, err := r.slice.SkipRest()
		if err != nil {
			return nil, err
		}
		r.recoverable(&RecoverableReadError{Offset: start, Kind: kind, Skipped: amt, Reason: "unknown record kind"})
		return nil, nil

	case kind.introducedIn() > r.hdr.FormatVersion:
		return nil, formaterr.Errorf(formaterr.InvalidFormat, op,
			"%s records are not valid in version %d files", kind, r.hdr.FormatVersion).At(start, "")

	case kind == KindString:
		if !r.hdr.Interned() {
			return nil, formaterr.Errorf(formaterr.InvalidFormat, op,
				"string record in a file without interned strings").At(start, "")
		}
		s, err := r.rec.ReadString()
		if err != nil {
			return nil, err
		}
		r.strings.Add(s)
		return nil, r.finishRecord(kind, start)

	case kind == KindEmbeddedArchive && r.opts.SkipEmbeddedArchives:
		amt, err := r.slice.SkipRest()
		if err != nil {
			return nil, err
		}
		recordsSkipped.WithLabelValues("archive").Inc()
		r.logger.Debugf("Skipped %d-byte embedded archive at offset %d.", amt, start)
		return nil, nil
	}

	ev := newEvent[kind]()
	d := recordDecoder{dec: r.rec}
	if r.hdr.Interned() {
		d.strings = &r.strings
	}

	var flags int32
	if d.varint(&flags); d.err != nil {
		return nil, d.err
	}
	if unknown := FieldFlags(flags) &^ allowedFlags(ev); unknown != 0 {
		if !r.tolerant() {
			return nil, formaterr.Errorf(formaterr.InvalidFormat, op,
				"unknown field flags 0x%X", int32(unknown)).At(start, "")
		}

		// Unknown fields may precede known ones, so nothing after the flags can
		// be located. Skip the record.
		amt, err := r.slice.SkipRest()
		if err != nil {
			return nil, err
		}
		r.recoverable(&RecoverableReadError{Offset: start, Kind: kind, Skipped: amt,
			Reason: fmt.Sprintf("unknown field flags 0x%X", int32(unknown))})
		return nil, nil
	}

	d.common(ev, FieldFlags(flags))
	if d.err == nil {
		d.err = ev.decodeFields(&d)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := r.finishRecord(kind, start); err != nil {
		return nil, err
	}
	return ev, nil
}

// finishRecord verifies that a known record was fully consumed, skipping
// trailing fields added by a newer writer when tolerated.
func (r *Reader) finishRecord(kind RecordKind, start int64) error {
	remaining := r.slice.Remaining()
	if remaining == 0 {
		return nil
	}
	if !r.tolerant() {
		return formaterr.Errorf(formaterr.InvalidFormat, "read record",
			"%d unread byte(s) at end of record", remaining).At(r.rec.Offset(), "")
	}

	amt, err := r.slice.SkipRest()
	if err != nil {
		return err
	}
	r.recoverable(&RecoverableReadError{Offset: start, Kind: kind, Skipped: amt, Reason: "unknown trailing fields"})
	return nil
}

// annotate attaches the record kind to a format error.
func annotate(err error, kind RecordKind) error {
	if fe, ok := err.(*formaterr.Error); ok {
		return fe.At(-1, kind.String())
	}
	return err
}
