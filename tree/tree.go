// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tree

// NodeID addresses a node within a Tree. IDs are assigned in depth-first
// pre-order, so the root is always 0 and a node's descendants follow it.
type NodeID int32

// NoNode is the NodeID of a node that does not exist, such as the root's
// parent.
const NoNode NodeID = -1

type sealedNode struct {
	kind    NodeKind
	name    string
	attrs   []Attr
	payload []byte

	parent     NodeID
	firstChild int32
	numChild   int32
}

// Tree is an immutable, sealed tree of nodes.
//
// Nodes are stored in a single arena and addressed by NodeID, and the child
// lists of all nodes share one backing array. A Tree is safe for concurrent
// reads.
type Tree struct {
	nodes    []sealedNode
	children []NodeID
}

// Seal converts the tree rooted at root into an immutable Tree.
//
// If root is nil, Seal returns an empty Tree.
func Seal(root *MutableNode) *Tree {
	var t Tree
	if root == nil {
		return &t
	}

	// Assign pre-order IDs.
	var order []*MutableNode
	ids := make(map[*MutableNode]NodeID)
	stack := []*MutableNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ids[n] = NodeID(len(order))
		order = append(order, n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}

	t.nodes = make([]sealedNode, len(order))
	t.children = make([]NodeID, 0, len(order)-1)
	for i, n := range order {
		sn := &t.nodes[i]
		sn.kind, sn.name = n.Kind, n.Name
		if n.Payload != nil {
			sn.payload = append(make([]byte, 0, len(n.Payload)), n.Payload...)
		}
		if len(n.Attrs) > 0 {
			sn.attrs = append([]Attr(nil), n.Attrs...)
		}

		sn.parent = NoNode
		if i > 0 {
			sn.parent = ids[n.parent]
		}

		sn.firstChild, sn.numChild = int32(len(t.children)), int32(len(n.Children))
		for _, c := range n.Children {
			t.children = append(t.children, ids[c])
		}
	}
	return &t
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the root node's ID, or NoNode if the tree is empty.
func (t *Tree) Root() NodeID {
	if len(t.nodes) == 0 {
		return NoNode
	}
	return 0
}

// Valid returns true if id addresses a node in t.
func (t *Tree) Valid(id NodeID) bool { return id >= 0 && int(id) < len(t.nodes) }

// Kind returns the node's kind.
func (t *Tree) Kind(id NodeID) NodeKind { return t.nodes[id].kind }

// Name returns the node's name.
func (t *Tree) Name(id NodeID) string { return t.nodes[id].name }

// Attrs returns the node's attributes. The returned slice must not be
// modified.
func (t *Tree) Attrs(id NodeID) []Attr { return t.nodes[id].attrs }

// Attr returns the value of the node's attribute key.
func (t *Tree) Attr(id NodeID, key string) (string, bool) { return findAttr(t.nodes[id].attrs, key) }

// Payload returns the node's payload, or nil if it has none. The returned
// slice must not be modified.
func (t *Tree) Payload(id NodeID) []byte { return t.nodes[id].payload }

// Parent returns the node's parent, or NoNode for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// Children returns the node's children in order. The returned slice must not
// be modified.
func (t *Tree) Children(id NodeID) []NodeID {
	n := &t.nodes[id]
	return t.children[n.firstChild : n.firstChild+n.numChild]
}

// Walk visits every node in depth-first pre-order, starting at the root.
//
// If fn returns false, the node's descendants are skipped.
func (t *Tree) Walk(fn func(id NodeID, depth int) bool) {
	if len(t.nodes) == 0 {
		return
	}

	type entry struct {
		id    NodeID
		depth int
	}
	stack := []entry{{0, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !fn(e.id, e.depth) {
			continue
		}
		children := t.Children(e.id)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, entry{children[i], e.depth + 1})
		}
	}
}

// Find returns the first node in pre-order with the specified kind and name,
// or NoNode if there is none.
func (t *Tree) Find(kind NodeKind, name string) NodeID {
	for i := range t.nodes {
		if t.nodes[i].kind == kind && t.nodes[i].name == name {
			return NodeID(i)
		}
	}
	return NoNode
}

// Count returns the number of nodes of the specified kind.
func (t *Tree) Count(kind NodeKind) int {
	count := 0
	for i := range t.nodes {
		if t.nodes[i].kind == kind {
			count++
		}
	}
	return count
}
