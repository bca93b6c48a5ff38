// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package formaterr defines the classified errors raised while decoding the
// binary log and tree snapshot formats.
//
// Every decoding failure is one of a small set of Kinds. Callers generally
// only need Is to decide how to react: none of these errors are retryable,
// but a TruncatedData error may be surfaced alongside whatever was decoded
// before it.
package formaterr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind classifies a format error.
type Kind uint8

// Kinds of format errors.
const (
	Other              Kind = iota // Unclassified.
	InvalidFormat                  // Bad signature, illegal value or structure.
	TruncatedData                  // Data ended in the middle of a value or record.
	OverRead                       // A declared length was violated.
	UnsupportedVersion             // Data was produced by a newer format version.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InvalidFormat:
		return "invalid format"
	case TruncatedData:
		return "truncated data"
	case OverRead:
		return "over-read of declared length"
	case UnsupportedVersion:
		return "unsupported version"
	default:
		return "unknown error kind"
	}
}

// Error is a classified format error.
//
// Offset is the byte offset at which the error was detected, or -1 if it is
// not known. Record, if not empty, names the record or node being decoded.
type Error struct {
	Kind   Kind
	Op     string
	Offset int64
	Record string
	Err    error
}

var _ error = (*Error)(nil)

// E constructs a new Error of the specified kind wrapping err.
//
// If err is nil, the Error will render its Kind only.
func E(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:   kind,
		Op:     op,
		Offset: -1,
		Err:    err,
	}
}

// Errorf constructs a new Error of the specified kind with a formatted
// message.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return E(kind, op, errors.Errorf(format, args...))
}

// At returns a copy of e annotated with offset and record, unless e already
// carries them.
func (e *Error) At(offset int64, record string) *Error {
	ne := *e
	if ne.Offset < 0 {
		ne.Offset = offset
	}
	if ne.Record == "" {
		ne.Record = record
	}
	return &ne
}

func (e *Error) Error() string {
	var b bytes.Buffer
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Record != "" {
		fmt.Fprintf(&b, " in %s", e.Record)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause implements the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.Err }

// KindOf returns the Kind of the first Error in err's chain, or Other if there
// is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Other
}

// Is returns true if err is, or wraps, an Error of the specified Kind.
func Is(kind Kind, err error) bool {
	return err != nil && KindOf(err) == kind
}

// FromIO classifies an I/O error returned while reading a value that must be
// present.
//
// io.EOF and io.ErrUnexpectedEOF become TruncatedData. Errors that are
// already classified are returned unchanged. Other errors are returned as-is
// so that genuine I/O failures are not mistaken for format problems.
func FromIO(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != Other:
		return err
	}

	switch errors.Cause(err) {
	case io.EOF, io.ErrUnexpectedEOF:
		return E(TruncatedData, op, io.ErrUnexpectedEOF)
	default:
		return err
	}
}
