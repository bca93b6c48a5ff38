// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package snapshot persists a sealed tree.Tree, so that a build's tree can be
// loaded without replaying its binary log.
//
// A snapshot is a 3-byte header followed by a gzip-compressed region:
//
//	header: Major u8 (1) | Minor u8 (2) | Marker u8 (48)
//	region: VarInt(string count) | string* | node*
//	node:   VarInt(kind) | VarInt(name handle) |
//	        (VarInt(key handle) VarInt(value handle))* | VarInt(0) |
//	        VarInt(child count) | bytes(payload)
//
// Nodes are written depth-first, each followed by its children. Handle 0 is
// the empty string; a node's name and attribute values may use it, but
// attribute keys may not, since a zero key handle ends the attribute list.
// Strings are interned, so line breaks in them are normalized to "\n".
package snapshot

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/danjacques/gobinlog/stringtable"
	"github.com/danjacques/gobinlog/support/dataio"
	"github.com/danjacques/gobinlog/support/fmtutil"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/support/stagingfile"
	"github.com/danjacques/gobinlog/tree"
	"github.com/danjacques/gobinlog/wire"

	"github.com/klauspost/compress/gzip"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// MajorVersion is the snapshot major version written and understood by
	// this package. Files with a newer major version cannot be read.
	MajorVersion = 1
	// MinorVersion is the snapshot minor version written by this package.
	MinorVersion = 2

	headerMarker = 48
	headerSize   = 3
)

// Header is the uncompressed prefix of a snapshot file.
type Header struct {
	Major  uint8
	Minor  uint8
	Marker uint8
}

// Write writes t to a snapshot file at path.
//
// The snapshot is written to a staging file alongside path and renamed into
// place once complete, so path is never left holding a partial snapshot.
func Write(path string, t *tree.Tree) error {
	sf, err := stagingfile.New(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = sf.Destroy()
	}()

	bw := bufio.NewWriter(sf)
	if err := Encode(bw, t); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing snapshot")
	}
	return sf.Commit()
}

// Encode writes t as a snapshot to w.
func Encode(w io.Writer, t *tree.Tree) error {
	if t.Len() == 0 {
		return errors.New("cannot snapshot an empty tree")
	}

	// Pass 1: intern every name and attribute.
	var table stringtable.BucketedTable
	intern := func(s string) stringtable.Handle {
		if s == "" {
			return stringtable.None
		}
		h, _ := table.Intern(s)
		return h
	}

	handles := make([]stringtable.Handle, 0, t.Len())
	for id := tree.NodeID(0); int(id) < t.Len(); id++ {
		handles = append(handles, intern(t.Name(id)))
		for _, a := range t.Attrs(id) {
			if a.Key == "" {
				return errors.Errorf("%s node %q has an attribute with an empty key", t.Kind(id), t.Name(id))
			}
			intern(a.Key)
			intern(a.Value)
		}
	}

	// Pass 2: write the header, table and nodes.
	hdr := Header{
		Major:  MajorVersion,
		Minor:  MinorVersion,
		Marker: headerMarker,
	}
	if err := struc.Pack(w, &hdr); err != nil {
		return errors.Wrap(err, "writing header")
	}

	gw := gzip.NewWriter(w)
	enc := wire.NewEncoder(gw)
	if err := stringtable.Encode(enc, &table); err != nil {
		return errors.Wrap(err, "writing string table")
	}

	// IDs are assigned in pre-order, which is exactly the order nodes are
	// written in.
	for id := tree.NodeID(0); int(id) < t.Len(); id++ {
		if err := writeNode(enc, t, id, handles[id], intern); err != nil {
			return errors.Wrapf(err, "writing node #%d", id)
		}
	}

	if err := gw.Close(); err != nil {
		return errors.Wrap(err, "finishing compressed region")
	}
	return nil
}

func writeNode(enc *wire.Encoder, t *tree.Tree, id tree.NodeID, name stringtable.Handle,
	intern func(string) stringtable.Handle) error {

	if err := enc.WriteVarInt(int32(t.Kind(id))); err != nil {
		return err
	}
	if err := enc.WriteVarInt(int32(name)); err != nil {
		return err
	}
	for _, a := range t.Attrs(id) {
		if err := enc.WriteVarInt(int32(intern(a.Key))); err != nil {
			return err
		}
		if err := enc.WriteVarInt(int32(intern(a.Value))); err != nil {
			return err
		}
	}
	if err := enc.WriteVarInt(0); err != nil {
		return err
	}
	if err := enc.WriteVarInt(int32(len(t.Children(id)))); err != nil {
		return err
	}
	return enc.WriteBytes(t.Payload(id))
}

// Read reads the snapshot file at path.
func Read(path string) (*tree.Tree, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening snapshot")
	}
	defer func() {
		_ = fd.Close()
	}()

	t, err := Decode(bufio.NewReader(fd))
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %q", path)
	}
	return t, nil
}

// Decode reads a snapshot from r.
func Decode(r io.Reader) (*tree.Tree, error) {
	const op = "read snapshot"

	var buf [headerSize]byte
	switch err := dataio.ReadFull(r, buf[:]); err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		return nil, formaterr.Errorf(formaterr.InvalidFormat, op, "file is too short to be a snapshot")
	default:
		return nil, errors.Wrap(err, "reading header")
	}

	var hdr Header
	if err := struc.Unpack(bytes.NewReader(buf[:]), &hdr); err != nil {
		return nil, formaterr.E(formaterr.InvalidFormat, op, err)
	}
	switch {
	case hdr.Marker != headerMarker || hdr.Major == 0:
		return nil, formaterr.Errorf(formaterr.InvalidFormat, op, "bad snapshot header %s", fmtutil.HexSlice(buf[:]))
	case hdr.Major > MajorVersion:
		return nil, formaterr.Errorf(formaterr.UnsupportedVersion, op,
			"snapshot version %d.%d is newer than supported version %d", hdr.Major, hdr.Minor, MajorVersion)
	}

	gr, err := gzip.NewReader(r)
	if err != nil {
		if errors.Cause(err) == io.EOF || errors.Cause(err) == io.ErrUnexpectedEOF {
			return nil, formaterr.E(formaterr.TruncatedData, op, err)
		}
		return nil, formaterr.E(formaterr.InvalidFormat, op, err)
	}
	dec := wire.NewDecoder(gr)

	table, err := stringtable.Decode(dec)
	if err != nil {
		return nil, err
	}

	nd := nodeDecoder{dec: dec, table: table}
	root, err := nd.decodeTree()
	if err != nil {
		return nil, err
	}

	// The region must end exactly after the root subtree.
	switch _, err := dec.Reader().ReadByte(); err {
	case io.EOF:
	case nil:
		return nil, formaterr.Errorf(formaterr.InvalidFormat, op,
			"unexpected data after root node").At(dec.Offset(), "")
	default:
		return nil, formaterr.FromIO(op, err)
	}

	return tree.Seal(root), nil
}

type nodeDecoder struct {
	dec   *wire.Decoder
	table *stringtable.Table
}

func (nd *nodeDecoder) str(op string) (string, stringtable.Handle, error) {
	off := nd.dec.Offset()
	h, err := nd.dec.ReadVarInt()
	if err != nil {
		return "", 0, err
	}
	if stringtable.Handle(h) == stringtable.None {
		return "", stringtable.None, nil
	}

	s, ok := nd.table.Lookup(stringtable.Handle(h))
	if !ok {
		return "", 0, formaterr.Errorf(formaterr.InvalidFormat, op,
			"string handle %d is not in the table (%d entries)", h, nd.table.Len()).At(off, "")
	}
	return s, stringtable.Handle(h), nil
}

// decodeNode reads a single node, returning it and its child count.
func (nd *nodeDecoder) decodeNode() (*tree.MutableNode, int, error) {
	const op = "read node"

	off := nd.dec.Offset()
	kind, err := nd.dec.ReadVarInt()
	if err != nil {
		return nil, 0, err
	}
	if kind < 0 || kind > 0xFF || !tree.NodeKind(kind).Valid() {
		return nil, 0, formaterr.Errorf(formaterr.InvalidFormat, op, "unknown node kind %d", kind).At(off, "")
	}

	name, _, err := nd.str(op)
	if err != nil {
		return nil, 0, err
	}
	n := tree.NewNode(tree.NodeKind(kind), name)

	for {
		key, h, err := nd.str(op)
		if err != nil {
			return nil, 0, err
		}
		if h == stringtable.None {
			break
		}

		value, _, err := nd.str(op)
		if err != nil {
			return nil, 0, err
		}
		n.Attrs = append(n.Attrs, tree.Attr{Key: key, Value: value})
	}

	off = nd.dec.Offset()
	numChildren, err := nd.dec.ReadVarInt()
	if err != nil {
		return nil, 0, err
	}
	if numChildren < 0 {
		return nil, 0, formaterr.Errorf(formaterr.InvalidFormat, op, "negative child count %d", numChildren).At(off, "")
	}

	if n.Payload, err = nd.dec.ReadBytes(); err != nil {
		return nil, 0, err
	}
	return n, int(numChildren), nil
}

// decodeTree rebuilds the tree from the node stream using an explicit stack,
// so that deep trees cannot exhaust the goroutine stack.
func (nd *nodeDecoder) decodeTree() (*tree.MutableNode, error) {
	type frame struct {
		node      *tree.MutableNode
		remaining int
	}

	root, numChildren, err := nd.decodeNode()
	if err != nil {
		return nil, err
	}

	stack := []frame{{root, numChildren}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.remaining == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		top.remaining--

		n, numChildren, err := nd.decodeNode()
		if err != nil {
			return nil, err
		}
		top.node.Add(n)
		if numChildren > 0 {
			stack = append(stack, frame{n, numChildren})
		}
	}
	return root, nil
}
