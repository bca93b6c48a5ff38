// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/danjacques/gobinlog/support/dataio"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Compression is the compression applied to a binary log's body.
type Compression uint8

// Compression values. These are written to file headers.
const (
	CompressionNone   Compression = 0
	CompressionGzip   Compression = 1
	CompressionSnappy Compression = 2
	CompressionZstd   Compression = 3
	CompressionLZ4    Compression = 4

	// DefaultCompression is the compression used by a zero-value
	// WriterOptions.
	DefaultCompression = CompressionGzip
)

var compressionNames = map[Compression]string{
	CompressionNone:   "none",
	CompressionGzip:   "gzip",
	CompressionSnappy: "snappy",
	CompressionZstd:   "zstd",
	CompressionLZ4:    "lz4",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression returns the Compression named by v.
func ParseCompression(v string) (Compression, error) {
	for c, name := range compressionNames {
		if name == v {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown compression type: %q", v)
}

// CompressionFlag is a pflag.Value implementation that stores a compression
// value.
type CompressionFlag Compression

var _ pflag.Value = (*CompressionFlag)(nil)

func (cf *CompressionFlag) String() string { return Compression(*cf).String() }

// Set implements pflag.Value.
func (cf *CompressionFlag) Set(v string) error {
	c, err := ParseCompression(v)
	if err != nil {
		return err
	}
	*cf = CompressionFlag(c)
	return nil
}

// Type implements pflag.Value.
func (cf *CompressionFlag) Type() string { return "binlog.Compression" }

// Value returns the compression value held by this flag.
func (cf CompressionFlag) Value() Compression { return Compression(cf) }

// CompressionFlagValues returns the list of possible values for a
// CompressionFlag.
func CompressionFlagValues() string {
	values := make([]Compression, 0, len(compressionNames))
	for c := range compressionNames {
		values = append(values, c)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	opts := make([]string, len(values))
	for i, c := range values {
		opts[i] = c.String()
	}
	return strings.Join(opts, ", ")
}

const (
	// rawStreamLargeBufferSize is the buffer size used over the file (4MB).
	rawStreamLargeBufferSize = 1024 * 1024 * 4
	// rawStreamBodyBufferSize is the buffer size used over decompressed data.
	rawStreamBodyBufferSize = 1024 * 64
)

// lz4Levels maps a numeric compression level onto lz4's levels.
var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// rawStreamReader decompresses a binary log body.
type rawStreamReader struct {
	// Currently connected to the decompressed source.
	dataio.Reader

	br    *bufio.Reader
	body  *bufio.Reader
	zstdR *zstd.Decoder
}

// buffered returns a buffered reader over a decompressor's output, so that
// byte-wise record decoding does not call into the decompressor per byte.
func (r *rawStreamReader) buffered(dr io.Reader) *bufio.Reader {
	if r.body == nil {
		r.body = bufio.NewReaderSize(dr, rawStreamBodyBufferSize)
	} else {
		r.body.Reset(dr)
	}
	return r.body
}

func (r *rawStreamReader) reset(base io.Reader, comp Compression) error {
	if r.br == nil {
		r.br = bufio.NewReaderSize(base, rawStreamLargeBufferSize)
	} else {
		r.br.Reset(base)
	}

	switch comp {
	case CompressionSnappy:
		r.Reader = r.buffered(snappy.NewReader(r.br))

	case CompressionGzip:
		gz, err := gzip.NewReader(r.br)
		if err != nil {
			return errors.Wrap(err, "creating gzip reader")
		}
		r.Reader = r.buffered(gz)

	case CompressionZstd:
		if r.zstdR == nil {
			zr, err := zstd.NewReader(r.br)
			if err != nil {
				return errors.Wrap(err, "creating zstd reader")
			}
			r.zstdR = zr
		} else if err := r.zstdR.Reset(r.br); err != nil {
			return errors.Wrap(err, "resetting zstd reader")
		}
		r.Reader = r.buffered(r.zstdR)

	case CompressionLZ4:
		r.Reader = r.buffered(lz4.NewReader(r.br))

	case CompressionNone:
		r.Reader = r.br

	default:
		return errors.Errorf("unknown compression: %s", comp)
	}
	return nil
}

func (r *rawStreamReader) close() {
	if r.zstdR != nil {
		r.zstdR.Close()
		r.zstdR = nil
	}
}

// rawStreamWriter compresses a binary log body.
type rawStreamWriter struct {
	dataio.Writer

	closer     io.Closer
	bw         *bufio.Writer
	compressor io.WriteCloser
}

func newRawStreamWriter(base io.Writer, closer io.Closer) *rawStreamWriter {
	w := rawStreamWriter{
		bw:     bufio.NewWriterSize(base, rawStreamLargeBufferSize),
		closer: closer,
	}
	w.Writer = w.bw
	return &w
}

func (w *rawStreamWriter) beginCompression(comp Compression, level int) error {
	switch comp {
	case CompressionSnappy:
		w.compressor = snappy.NewBufferedWriter(w.bw)

	case CompressionGzip:
		if level < 0 {
			level = gzip.DefaultCompression
		}

		gw, err := gzip.NewWriterLevel(w.bw, level)
		if err != nil {
			return errors.Wrap(err, "creating gzip writer")
		}
		w.compressor = gw

	case CompressionZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level >= 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		zw, err := zstd.NewWriter(w.bw, opts...)
		if err != nil {
			return errors.Wrap(err, "creating zstd writer")
		}
		w.compressor = zw

	case CompressionLZ4:
		lw := lz4.NewWriter(w.bw)
		if level >= 0 {
			if level >= len(lz4Levels) {
				level = len(lz4Levels) - 1
			}
			if err := lw.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
				return errors.Wrap(err, "configuring lz4 writer")
			}
		}
		w.compressor = lw

	case CompressionNone:
		w.Writer = w.bw
		return nil

	default:
		return errors.Errorf("unknown compression: %s", comp)
	}

	w.Writer = dataio.MakeWriter(w.compressor)
	return nil
}

func (w *rawStreamWriter) Close() (err error) {
	// Always close our underlying base, if we have one.
	if w.closer != nil {
		defer func() {
			closeErr := w.closer.Close()
			if err == nil {
				err = closeErr
			}
		}()
	}

	if w.compressor != nil {
		if err = w.compressor.Close(); err != nil {
			return
		}
	}

	err = w.bw.Flush()
	return
}
