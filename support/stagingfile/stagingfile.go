// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingfile writes a file in a temporary location and atomically
// moves it into place once it is complete.
package stagingfile

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// F manages a staging file.
//
// While F is active, it resides next to its destination under a temporary
// name, so the final rename never crosses a filesystem boundary. Once
// finished, F can either be committed or destroyed. On commit, it is
// atomically renamed over its destination; on destroy, it is deleted.
//
// If F is neither committed nor destroyed, the destination is untouched.
type F struct {
	*os.File

	// dest is the final destination path.
	dest string
	// closed is true if File has been closed.
	closed bool
}

// New creates a new staging file for dest.
func New(dest string) (*F, error) {
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}

	fd, err := ioutil.TempFile(dir, "."+base+".staging")
	if err != nil {
		return nil, errors.Wrap(err, "creating staging file")
	}

	return &F{
		File: fd,
		dest: dest,
	}, nil
}

// Destination returns the path that the file will be committed to.
func (sf *F) Destination() string { return sf.dest }

func (sf *F) closeFile() error {
	if sf.closed {
		return nil
	}
	sf.closed = true
	return sf.File.Close()
}

// Destroy closes and deletes the staging file. It is safe to call Destroy
// after Commit, in which case it does nothing.
func (sf *F) Destroy() error {
	if sf.File == nil {
		// There is nothing to destroy.
		return nil
	}

	_ = sf.closeFile()
	if err := os.Remove(sf.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}

	sf.File = nil // Destroyed.
	return nil
}

// Commit finalizes the staging file, syncing it and atomically renaming it
// over its destination.
func (sf *F) Commit() error {
	// If we've already been committed, this is an error.
	if sf.File == nil {
		return errors.New("invalid staging file")
	}

	if !sf.closed {
		if err := sf.File.Sync(); err != nil {
			return errors.Wrap(err, "syncing staging file")
		}
	}
	if err := sf.closeFile(); err != nil {
		return errors.Wrap(err, "closing staging file")
	}

	// Move the final file into place (atomic).
	path := sf.File.Name()
	if err := os.Rename(path, sf.dest); err != nil {
		return errors.Wrapf(err, "moving temporary file into place (%q => %q)", path, sf.dest)
	}
	sf.File = nil // Path no longer exists, committed.
	return nil
}

// Close closes the underlying file without committing it. Commit or Destroy
// must still be called.
func (sf *F) Close() error {
	if sf.File == nil {
		return nil
	}
	return sf.closeFile()
}
