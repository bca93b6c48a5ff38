// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package tree models a build log as a tree of nodes: the build, its
// projects, targets and tasks, and the messages raised along the way.
//
// Trees are assembled from MutableNodes, typically by a Constructor replaying
// a binary log, and then sealed into an immutable Tree.
package tree

import (
	"fmt"
)

// NodeKind is the kind of a node. These values are written to snapshot
// files; they must never be renumbered.
type NodeKind uint8

// Node kinds.
const (
	KindBuild NodeKind = iota + 1
	KindProject
	KindTarget
	KindTask
	KindMessage
	KindError
	KindWarning
	KindProperty
	KindItem
	KindMetadata
	KindFolder
	KindNote

	maxKind = KindNote
)

var kindNames = [...]string{
	KindBuild:    "Build",
	KindProject:  "Project",
	KindTarget:   "Target",
	KindTask:     "Task",
	KindMessage:  "Message",
	KindError:    "Error",
	KindWarning:  "Warning",
	KindProperty: "Property",
	KindItem:     "Item",
	KindMetadata: "Metadata",
	KindFolder:   "Folder",
	KindNote:     "Note",
}

// Valid returns true if k is a known node kind.
func (k NodeKind) Valid() bool { return k >= KindBuild && k <= maxKind }

func (k NodeKind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Attr is a named node attribute.
type Attr struct {
	Key   string
	Value string
}

// MutableNode is a node under construction.
//
// A MutableNode exclusively owns its Children. Once construction is
// complete, the tree is sealed with Seal and the MutableNodes are discarded.
type MutableNode struct {
	Kind NodeKind
	// Name is the node's display name. It may be empty.
	Name  string
	Attrs []Attr
	// Payload is optional opaque content, such as an embedded file.
	Payload  []byte
	Children []*MutableNode

	parent *MutableNode
}

// NewNode returns a new, parentless node.
func NewNode(kind NodeKind, name string) *MutableNode {
	return &MutableNode{Kind: kind, Name: name}
}

// Parent returns the node's parent, or nil if it is a root.
func (n *MutableNode) Parent() *MutableNode { return n.parent }

// Add appends child to n's children and returns it.
//
// child must not already have a parent.
func (n *MutableNode) Add(child *MutableNode) *MutableNode {
	if child.parent != nil {
		panic("node already has a parent")
	}
	child.parent = n
	n.Children = append(n.Children, child)
	return child
}

// AddChild creates a new child node of n and returns it.
func (n *MutableNode) AddChild(kind NodeKind, name string) *MutableNode {
	return n.Add(NewNode(kind, name))
}

// SetAttr sets the attribute key to value, replacing any existing value.
func (n *MutableNode) SetAttr(key, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{key, value})
}

// Attr returns the value of the attribute key.
func (n *MutableNode) Attr(key string) (string, bool) { return findAttr(n.Attrs, key) }

// FindChild returns the first child of n with the specified kind and name, or
// nil if there is none.
func (n *MutableNode) FindChild(kind NodeKind, name string) *MutableNode {
	for _, c := range n.Children {
		if c.Kind == kind && c.Name == name {
			return c
		}
	}
	return nil
}

func findAttr(attrs []Attr, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
