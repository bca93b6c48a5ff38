// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stringtable deduplicates the strings shared across a log file.
//
// Strings are normalized before they are interned: "\r\n" and lone "\r" line
// breaks become "\n". Lookup is by exact post-normalization content, and one
// logical string maps to exactly one stored instance and Handle per table.
//
// Two interchangeable Interner implementations are offered. Table is keyed
// purely by content. BucketedTable buckets strings by length first, which
// keeps individual maps small for very large tables.
package stringtable

import (
	"strings"

	"github.com/danjacques/gobinlog/wire"

	"github.com/pkg/errors"
)

// Handle identifies an interned string within a table. Handles are assigned
// sequentially, starting at 1. The zero Handle denotes "no string".
type Handle int32

// None is the Handle for an absent string.
const None Handle = 0

// Interner is a string table.
type Interner interface {
	// Intern normalizes text and returns its Handle and canonical instance,
	// adding it to the table if it is not already present.
	Intern(text string) (Handle, string)
	// Lookup returns the string for h. It returns false if h is None or is
	// not part of the table.
	Lookup(h Handle) (string, bool)
	// Len returns the number of strings in the table.
	Len() int
	// Range calls fn for each string in the table, in Handle order, until fn
	// returns false.
	Range(fn func(h Handle, s string) bool)
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize normalizes line breaks in text.
func Normalize(text string) string {
	if strings.IndexByte(text, '\r') < 0 {
		return text
	}
	return lineBreaks.Replace(text)
}

// Table is an Interner keyed by string content.
//
// The zero value is an empty Table, ready for use.
type Table struct {
	handles map[string]Handle
	strs    []string
}

var _ Interner = (*Table)(nil)

// Intern implements Interner.
func (t *Table) Intern(text string) (Handle, string) {
	text = Normalize(text)
	if h, ok := t.handles[text]; ok {
		return h, t.strs[h-1]
	}

	if t.handles == nil {
		t.handles = make(map[string]Handle)
	}
	t.strs = append(t.strs, text)
	h := Handle(len(t.strs))
	t.handles[text] = h
	return h, text
}

// Add appends text to the table as read from a stream, without normalizing
// or deduplicating it, and returns its Handle.
//
// Add is used when reconstructing a table whose Handles were assigned by a
// writer; the writer already normalized and deduplicated.
func (t *Table) Add(text string) Handle {
	t.strs = append(t.strs, text)
	h := Handle(len(t.strs))
	if t.handles == nil {
		t.handles = make(map[string]Handle)
	}
	if _, ok := t.handles[text]; !ok {
		t.handles[text] = h
	}
	return h
}

// Lookup implements Interner.
func (t *Table) Lookup(h Handle) (string, bool) { return lookup(t.strs, h) }

// Len implements Interner.
func (t *Table) Len() int { return len(t.strs) }

// Range implements Interner.
func (t *Table) Range(fn func(h Handle, s string) bool) { rangeStrings(t.strs, fn) }

// Strings returns the table's strings in Handle order. The returned slice
// must not be modified.
func (t *Table) Strings() []string { return t.strs }

// BucketedTable is an Interner that buckets strings by length before keying
// by content.
//
// The zero value is an empty BucketedTable, ready for use.
type BucketedTable struct {
	buckets map[int]map[string]Handle
	strs    []string
}

var _ Interner = (*BucketedTable)(nil)

// Intern implements Interner.
func (t *BucketedTable) Intern(text string) (Handle, string) {
	text = Normalize(text)

	bucket := t.buckets[len(text)]
	if h, ok := bucket[text]; ok {
		return h, t.strs[h-1]
	}

	if bucket == nil {
		if t.buckets == nil {
			t.buckets = make(map[int]map[string]Handle)
		}
		bucket = make(map[string]Handle)
		t.buckets[len(text)] = bucket
	}
	t.strs = append(t.strs, text)
	h := Handle(len(t.strs))
	bucket[text] = h
	return h, text
}

// Lookup implements Interner.
func (t *BucketedTable) Lookup(h Handle) (string, bool) { return lookup(t.strs, h) }

// Len implements Interner.
func (t *BucketedTable) Len() int { return len(t.strs) }

// Range implements Interner.
func (t *BucketedTable) Range(fn func(h Handle, s string) bool) { rangeStrings(t.strs, fn) }

func lookup(strs []string, h Handle) (string, bool) {
	if h <= None || int(h) > len(strs) {
		return "", false
	}
	return strs[h-1], true
}

func rangeStrings(strs []string, fn func(h Handle, s string) bool) {
	for i, s := range strs {
		if !fn(Handle(i+1), s) {
			return
		}
	}
}

// Encode writes every string in t as a single region: a VarInt count, then
// each string in Handle order.
func Encode(enc *wire.Encoder, t Interner) error {
	if err := enc.WriteVarInt(int32(t.Len())); err != nil {
		return err
	}

	var err error
	t.Range(func(_ Handle, s string) bool {
		err = enc.WriteString(s)
		return err == nil
	})
	return err
}

// Decode reads a region written by Encode into a new Table.
func Decode(dec *wire.Decoder) (*Table, error) {
	count, err := dec.ReadLength()
	if err != nil {
		return nil, errors.Wrap(err, "reading string count")
	}

	var t Table
	for i := int64(0); i < count; i++ {
		s, err := dec.ReadString()
		if err != nil {
			return nil, errors.Wrapf(err, "reading string #%d", i)
		}
		t.Add(s)
	}
	return &t, nil
}
