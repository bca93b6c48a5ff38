// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"io"
	"math"
	"os"

	"github.com/danjacques/gobinlog/stringtable"
	"github.com/danjacques/gobinlog/support/bufferpool"
	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/logging"
	"github.com/danjacques/gobinlog/wire"

	"github.com/pkg/errors"
)

// WriterOptions configures a Writer. The zero value is a valid
// configuration.
type WriterOptions struct {
	// Compression is the compression to apply to the body. If zero, no
	// compression is used; DefaultCompression is what callers normally want.
	Compression Compression
	// CompressionLevel is the level to apply to Compression, if applicable.
	// A negative value selects the compressor's default.
	CompressionLevel int

	// DisableInterning writes strings inline instead of through the string
	// table.
	DisableInterning bool

	// Logger, if not nil, is used to log writer operation.
	Logger logging.L
}

// DefaultWriterOptions returns the options used for newly-recorded logs.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Compression:      DefaultCompression,
		CompressionLevel: -1,
	}
}

var recordBuffers = bufferpool.Pool{Size: 4 * 1024}

// Writer writes events to a binary log.
//
// Writer is not safe for concurrent use; see replay.Recorder for a
// concurrency-safe live sink.
type Writer struct {
	opts   WriterOptions
	logger logging.L

	// out is the (compressed) body stream.
	out *rawStreamWriter
	// body counts the uncompressed bytes written to out.
	body *dataio.CountingWriter
	// enc writes record framing to body.
	enc *wire.Encoder

	// rec is the scratch encoder used to assemble a record's payload, so that
	// its length is known before it is written.
	rec    *wire.Encoder
	recBuf *bufferpool.Buffer
	// strEnc assembles String record payloads, which may be emitted while a
	// record is being assembled in rec.
	strEnc *wire.Encoder
	strBuf *bufferpool.Buffer

	strings stringtable.Table

	numRecords int64
	numBytes   int64
	closed     bool
}

// Create creates a new binary log at path, overwriting it if it exists.
func (o *WriterOptions) Create(path string) (*Writer, error) {
	fd, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating binary log")
	}

	w, err := o.newWriter(fd, fd)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter returns a Writer that writes a binary log to w.
//
// Closing the Writer does not close w.
func (o *WriterOptions) NewWriter(w io.Writer) (*Writer, error) {
	return o.newWriter(w, nil)
}

// Create creates a new binary log at path using DefaultWriterOptions.
func Create(path string) (*Writer, error) {
	opts := DefaultWriterOptions()
	return opts.Create(path)
}

func (o *WriterOptions) newWriter(base io.Writer, closer io.Closer) (*Writer, error) {
	w := Writer{
		opts:   *o,
		logger: logging.Must(o.Logger),
		out:    newRawStreamWriter(base, closer),
	}

	hdr := Header{
		Signature:        Signature,
		FormatVersion:    FormatVersion,
		MinReaderVersion: writerMinReaderVersion,
		Compression:      o.Compression,
	}
	if !o.DisableInterning {
		hdr.Flags |= HeaderInternedStrings
	}

	// The header is never compressed.
	if err := hdr.write(w.out); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}
	if err := w.out.beginCompression(o.Compression, o.CompressionLevel); err != nil {
		return nil, errors.Wrap(err, "enabling compression")
	}

	w.body = dataio.NewCountingWriter(w.out)
	w.enc = wire.NewEncoder(w.body)
	w.recBuf = recordBuffers.Get()
	w.rec = wire.NewEncoder(w.recBuf)
	w.strBuf = recordBuffers.Get()
	w.strEnc = wire.NewEncoder(w.strBuf)
	return &w, nil
}

// NumRecords returns the number of records written so far, including string
// definitions.
func (w *Writer) NumRecords() int64 { return w.numRecords }

// NumBytes returns the number of uncompressed body bytes written so far.
func (w *Writer) NumBytes() int64 { return w.numBytes }

// Write writes ev to the log.
//
// If ev was decoded by a Reader, every field it was decoded with is written
// again, even if it has since been cleared.
func (w *Writer) Write(ev Event) error {
	if w.closed {
		return errors.New("writer is closed")
	}

	w.recBuf.Truncate(0)
	e := recordEncoder{enc: w.rec}
	if !w.opts.DisableInterning {
		e.intern = w.intern
	}

	e.common(ev, eventFlags(ev))
	if e.err == nil {
		e.err = ev.encodeFields(&e)
	}
	if err := e.finish(); err != nil {
		return errors.Wrapf(err, "encoding %s record", ev.Kind())
	}
	return w.writeRecord(ev.Kind(), w.recBuf.Bytes())
}

// WriteEmbeddedArchive writes a block of embedded content, typically a zip
// archive built by archive.Builder.
func (w *Writer) WriteEmbeddedArchive(data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return w.Write(&EmbeddedArchive{Data: data})
}

// intern returns the handle for s, emitting a String record the first time s
// is seen.
func (w *Writer) intern(s string) (stringtable.Handle, error) {
	before := w.strings.Len()
	h, canonical := w.strings.Intern(s)
	if w.strings.Len() == before {
		return h, nil
	}

	w.strBuf.Truncate(0)
	if err := w.strEnc.WriteString(canonical); err != nil {
		return stringtable.None, err
	}
	if err := w.writeRecord(KindString, w.strBuf.Bytes()); err != nil {
		return stringtable.None, errors.Wrap(err, "writing string record")
	}
	return h, nil
}

func (w *Writer) writeRecord(kind RecordKind, payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return errors.Errorf("%s record of %d bytes is too large", kind, len(payload))
	}

	start := w.body.Count()
	if err := w.enc.WriteVarInt(int32(kind)); err != nil {
		return errors.Wrap(err, "writing record kind")
	}
	if err := w.enc.WriteVarInt(int32(len(payload))); err != nil {
		return errors.Wrap(err, "writing record length")
	}
	if err := w.enc.WriteRaw(payload); err != nil {
		return errors.Wrap(err, "writing record payload")
	}

	size := w.body.Count() - start
	w.numRecords++
	w.numBytes += size
	recordsWritten.WithLabelValues(kind.String()).Inc()
	bytesWritten.Add(float64(size))
	return nil
}

// Close finalizes the log, writing its EndOfFile record and flushing and
// closing all underlying streams.
//
// The underlying file, if the Writer owns one, is closed even if finalizing
// fails.
func (w *Writer) Close() (err error) {
	if w.closed {
		return nil
	}
	w.closed = true

	defer func() {
		w.recBuf.Release()
		w.strBuf.Release()
		w.recBuf, w.strBuf = nil, nil

		closeErr := w.out.Close()
		if err == nil {
			err = errors.Wrap(closeErr, "closing stream")
		}
	}()

	if err = w.writeRecord(KindEndOfFile, nil); err != nil {
		return
	}

	w.logger.Debugf("Finalized binary log: %d record(s), %d byte(s).", w.numRecords, w.numBytes)
	return
}
