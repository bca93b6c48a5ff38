// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package archive reads and writes the zip archives that binary logs embed
// to carry the build's project files.
//
// Entries are keyed by NormalizePath, so that a lookup matches regardless of
// drive letters, path separators or leading slashes.
package archive

import (
	"bytes"
	"fmt"
	"io/ioutil"
	pathpkg "path"
	"sort"
	"strings"
	"sync"

	"github.com/danjacques/gobinlog/support/byteslicereader"
	"github.com/danjacques/gobinlog/support/logging"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Lookup when an archive has no entry for a path.
var ErrNotFound = errors.New("no such archive entry")

var pathReplacer = strings.NewReplacer(":", "", "\\", "/")

// NormalizePath returns the archive key for path: colons are removed,
// backslashes become forward slashes and leading slashes are trimmed.
//
// For example, "C:\src\a.proj" becomes "C/src/a.proj".
func NormalizePath(path string) string {
	return strings.TrimLeft(pathReplacer.Replace(path), "/")
}

// Builder assembles a new archive in memory.
type Builder struct {
	buf  bytes.Buffer
	zw   *zip.Writer
	seen map[string]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := Builder{
		seen: make(map[string]struct{}),
	}
	b.zw = zip.NewWriter(&b.buf)
	return &b
}

// Add adds an entry for path with the specified content.
//
// Adding a path whose normalized form has already been added is an error.
func (b *Builder) Add(path string, content []byte) error {
	if b.zw == nil {
		return errors.New("builder is finished")
	}

	name := NormalizePath(path)
	if name == "" {
		return errors.Errorf("invalid entry path %q", path)
	}
	if _, ok := b.seen[name]; ok {
		return errors.Errorf("duplicate entry %q", name)
	}

	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return errors.Wrapf(err, "creating entry %q", name)
	}
	if _, err := w.Write(content); err != nil {
		return errors.Wrapf(err, "writing entry %q", name)
	}
	b.seen[name] = struct{}{}
	return nil
}

// AddFile adds an entry for the file at path, reading its content from disk.
func (b *Builder) AddFile(path string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading archive source file")
	}
	return b.Add(path, content)
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.seen) }

// Has returns true if an entry whose normalized path matches path's has been
// added.
func (b *Builder) Has(path string) bool {
	_, ok := b.seen[NormalizePath(path)]
	return ok
}

// uniquePath returns path, or if it is already taken, path with a "~N"
// suffix inserted before its extension, using the smallest free N >= 2.
func (b *Builder) uniquePath(path string) string {
	name := NormalizePath(path)
	if !b.Has(name) {
		return name
	}

	ext := pathpkg.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s~%d%s", base, i, ext)
		if !b.Has(candidate) {
			return candidate
		}
	}
}

// Bytes finishes the archive and returns its encoded form. No more entries
// may be added afterwards.
func (b *Builder) Bytes() ([]byte, error) {
	if b.zw != nil {
		if err := b.zw.Close(); err != nil {
			return nil, errors.Wrap(err, "finishing archive")
		}
		b.zw = nil
	}
	return b.buf.Bytes(), nil
}

// Archive is a read-only view of an embedded archive.
//
// Entries are decompressed lazily, on first Lookup, and cached. Archive is
// safe for concurrent use.
type Archive struct {
	entries map[string]*zip.File
	paths   []string

	mu    sync.Mutex
	cache map[string][]byte
}

// Open opens the archive encoded in data.
//
// Open never fails: corrupt content yields an empty archive, and a warning is
// logged to logger.
func Open(data []byte, logger logging.L) *Archive {
	logger = logging.Must(logger)

	a := Archive{
		entries: make(map[string]*zip.File),
		cache:   make(map[string][]byte),
	}
	if len(data) == 0 {
		return &a
	}

	zr, err := zip.NewReader(&byteslicereader.R{Buffer: data}, int64(len(data)))
	if err != nil {
		logger.Warnf("Ignoring corrupt embedded archive (%d bytes): %s", len(data), err)
		return &a
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := NormalizePath(f.Name)
		if _, ok := a.entries[name]; ok {
			logger.Debugf("Ignoring duplicate embedded archive entry %q.", name)
			continue
		}
		a.entries[name] = f
		a.paths = append(a.paths, name)
	}
	sort.Strings(a.paths)
	return &a
}

// OpenFile opens the archive stored in the file at path.
//
// Only failing to read the file is an error; corrupt content is tolerated as
// it is by Open.
func OpenFile(path string, logger logging.L) (*Archive, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading archive file")
	}
	return Open(data, logger), nil
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int { return len(a.paths) }

// Paths returns the normalized paths of all entries, sorted.
func (a *Archive) Paths() []string { return a.paths }

// Lookup returns the content of the entry for path.
//
// path is normalized before it is looked up. If there is no such entry,
// Lookup returns ErrNotFound.
func (a *Archive) Lookup(path string) ([]byte, error) {
	name := NormalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if content, ok := a.cache[name]; ok {
		return content, nil
	}

	f := a.entries[name]
	if f == nil {
		return nil, ErrNotFound
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening entry %q", name)
	}
	defer func() {
		_ = rc.Close()
	}()

	content, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing entry %q", name)
	}
	a.cache[name] = content
	return content, nil
}

// RewriteFunc transforms a single archive entry, returning its new path and
// content.
type RewriteFunc func(path string, content []byte) (string, []byte, error)

// Rewrite builds a new archive by passing every entry, in path order, through
// fn.
//
// If fn maps several entries to the same path, the first keeps it and later
// ones are disambiguated with a "~N" suffix before the extension, so
// "a/app.proj" is followed by "a/app~2.proj".
func (a *Archive) Rewrite(fn RewriteFunc) ([]byte, error) {
	b := NewBuilder()
	for _, path := range a.paths {
		content, err := a.Lookup(path)
		if err != nil {
			return nil, err
		}

		newPath, newContent, err := fn(path, content)
		if err != nil {
			return nil, errors.Wrapf(err, "rewriting entry %q", path)
		}
		if err := b.Add(b.uniquePath(newPath), newContent); err != nil {
			return nil, err
		}
	}
	return b.Bytes()
}
