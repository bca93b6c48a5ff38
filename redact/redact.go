// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package redact rewrites binary logs, passing every string they carry
// through a transform.
//
// Redaction operates on decoded events only: it never builds a tree. The
// output has exactly the input's events, in the input's order, with the same
// fields present; only string content changes.
package redact

import (
	"context"
	"io"
	"strings"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/replay"
	"github.com/danjacques/gobinlog/support/logging"
	"github.com/danjacques/gobinlog/support/stagingfile"

	"github.com/pkg/errors"
)

// Replacement is the text that Secrets substitutes for each secret.
const Replacement = "REDACTED"

// Transform returns the replacement for a string. If it returns an error, the
// rewrite is aborted.
type Transform func(s string) (string, error)

// Secrets returns a Transform that replaces every occurrence of each token
// with Replacement. Empty tokens are ignored.
func Secrets(tokens ...string) Transform {
	pairs := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		if tok != "" {
			pairs = append(pairs, tok, Replacement)
		}
	}
	if len(pairs) == 0 {
		return func(s string) (string, error) { return s, nil }
	}

	rep := strings.NewReplacer(pairs...)
	return func(s string) (string, error) { return rep.Replace(s), nil }
}

// Options configures a rewrite.
type Options struct {
	// IncludeArchives passes the paths and contents of embedded archive
	// entries through the transform. Otherwise, embedded archives are copied
	// unchanged.
	IncludeArchives bool

	// ReaderOptions are used to read the input log. Embedded archives are
	// always read, regardless of SkipEmbeddedArchives.
	ReaderOptions binlog.ReaderOptions

	// WriterOptions, if not nil, are used to write the output log. If nil,
	// the output uses the input's compression and string interning.
	WriterOptions *binlog.WriterOptions

	// Logger, if not nil, is used to log the rewrite.
	Logger logging.L
}

func (o *Options) readerOptions() *binlog.ReaderOptions {
	ropts := o.ReaderOptions
	ropts.SkipEmbeddedArchives = false
	if ropts.Logger == nil {
		ropts.Logger = o.Logger
	}
	return &ropts
}

func (o *Options) writerOptions(hdr binlog.Header) *binlog.WriterOptions {
	if o.WriterOptions != nil {
		return o.WriterOptions
	}
	return &binlog.WriterOptions{
		Compression:      hdr.Compression,
		CompressionLevel: -1,
		DisableInterning: !hdr.Interned(),
		Logger:           o.Logger,
	}
}

// Stats describes a completed rewrite.
type Stats struct {
	// Events is the number of events rewritten.
	Events int64
	// Strings is the number of non-empty strings passed through the
	// transform.
	Strings int64
	// Changed is the number of strings the transform changed.
	Changed int64
	// ArchiveEntries is the number of embedded archive entries rewritten.
	ArchiveEntries int64
}

// File rewrites the binary log at inPath into outPath.
//
// If outPath is empty, inPath is rewritten in place. In either case the
// output is written to a staging file next to outPath and only moved into
// place once the whole log has been rewritten successfully. On failure,
// including a transform error, outPath is left untouched.
func File(c context.Context, inPath, outPath string, t Transform, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = &Options{}
	}
	if outPath == "" {
		outPath = inPath
	}
	logger := logging.Must(opts.Logger)

	r, err := opts.readerOptions().Open(inPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	sf, err := stagingfile.New(outPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sf.Destroy(); err != nil {
			logger.Warnf("Failed to remove staging file: %s", err)
		}
	}()

	w, err := opts.writerOptions(r.Header()).NewWriter(sf)
	if err != nil {
		return nil, err
	}

	st, err := rewrite(c, r, w, t, opts)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "closing output")
	}
	if err != nil {
		redactFailures.Inc()
		return nil, err
	}

	if err := r.Close(); err != nil {
		return nil, errors.Wrap(err, "closing input")
	}
	if err := sf.Commit(); err != nil {
		redactFailures.Inc()
		return nil, err
	}

	logger.Infof("Rewrote %d event(s) from %q to %q; %d of %d string(s) changed.",
		st.Events, inPath, outPath, st.Changed, st.Strings)
	return st, nil
}

// Stream rewrites the binary log read from in, writing the result to out.
//
// Unlike File, Stream cannot protect out from a failed rewrite.
func Stream(c context.Context, in io.Reader, out io.Writer, t Transform, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = &Options{}
	}

	r, err := opts.readerOptions().NewReader(in)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	w, err := opts.writerOptions(r.Header()).NewWriter(out)
	if err != nil {
		return nil, err
	}

	st, err := rewrite(c, r, w, t, opts)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "closing output")
	}
	if err != nil {
		redactFailures.Inc()
		return nil, err
	}
	return st, nil
}

type rewriter struct {
	t       Transform
	opts    *Options
	logger  logging.L
	w       *binlog.Writer
	st      Stats
	pending error
}

func rewrite(c context.Context, r *binlog.Reader, w *binlog.Writer, t Transform, opts *Options) (*Stats, error) {
	rw := rewriter{
		t:      t,
		opts:   opts,
		logger: logging.Must(opts.Logger),
		w:      w,
	}

	p := replay.Player{
		Handler: rw.handle,
		Logger:  opts.Logger,
	}
	if err := p.Play(c, r); err != nil {
		return nil, err
	}
	return &rw.st, nil
}

// str transforms a single string, recording the first error.
func (rw *rewriter) str(s *string) {
	if rw.pending != nil || *s == "" {
		return
	}

	v, err := rw.t(*s)
	if err != nil {
		rw.pending = errors.Wrap(err, "transforming string")
		return
	}

	rw.st.Strings++
	if v != *s {
		rw.st.Changed++
		redactedStrings.Inc()
		*s = v
	}
}

func (rw *rewriter) handle(ev binlog.Event) error {
	binlog.VisitStrings(ev, rw.str)
	if rw.pending != nil {
		return rw.pending
	}

	if ea, ok := ev.(*binlog.EmbeddedArchive); ok && rw.opts.IncludeArchives {
		data, err := rw.rewriteArchive(ea)
		if err != nil {
			return err
		}
		ea.Data = data
	}

	rw.st.Events++
	return rw.w.Write(ev)
}

func (rw *rewriter) rewriteArchive(ea *binlog.EmbeddedArchive) ([]byte, error) {
	a := ea.Archive(rw.logger)
	if a.Len() == 0 && len(ea.Data) > 0 {
		rw.logger.Warnf("Dropping unreadable embedded archive (%d byte(s)).", len(ea.Data))
	}

	data, err := a.Rewrite(func(path string, content []byte) (string, []byte, error) {
		rw.str(&path)
		s := string(content)
		rw.str(&s)
		if rw.pending != nil {
			return "", nil, rw.pending
		}

		rw.st.ArchiveEntries++
		return path, []byte(s), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "rewriting embedded archive")
	}
	return data, nil
}
