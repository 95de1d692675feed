package conversation

import (
	"github.com/go-go-golems/chattier/pkg/helpers"
	"github.com/huandu/go-clone"
)

// Tree stores the messages of a conversation as an arena.
//
// Nodes are addressed by their index in Nodes. The root is always at index 0
// and has no parent. Each node keeps the IDs of its children in creation order
// and the index of the active child, so the "current conversation" is the
// walk from the root following Selected at every level.
//
// Removing a subtree rebuilds the arena depth first, which keeps it free of
// tombstones at the cost of renumbering the remaining nodes.
type Tree struct {
	Nodes []*Node
}

// NewTree returns a tree holding only a system root. Token fields are left
// for the owner to compute.
func NewTree(systemPrompt string) *Tree {
	return &Tree{
		Nodes: []*Node{{
			ID:      0,
			Parent:  NoNode,
			Role:    RoleSystem,
			Content: systemPrompt,
		}},
	}
}

func (t *Tree) Root() *Node {
	return t.Nodes[0]
}

func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Get returns the node with the given ID.
func (t *Tree) Get(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(t.Nodes) {
		return nil, false
	}
	return t.Nodes[id], true
}

// SelectedPath walks from the root along the selected children. A positive
// limit caps the number of returned nodes, the root included.
func (t *Tree) SelectedPath(limit int) []*Node {
	path := []*Node{t.Root()}
	for limit <= 0 || len(path) < limit {
		next, ok := path[len(path)-1].SelectedChild()
		if !ok {
			break
		}
		path = append(path, t.Nodes[next])
	}
	return path
}

// Attach appends n as the last child of parent and makes it the active
// branch. The parent must exist.
func (t *Tree) Attach(parent NodeID, n *Node) NodeID {
	p := t.Nodes[parent]
	n.ID = NodeID(len(t.Nodes))
	n.Parent = parent
	t.Nodes = append(t.Nodes, n)
	p.Children = append(p.Children, n.ID)
	p.Selected = helpers.ToPtr(len(p.Children) - 1)
	return n.ID
}

// Detach removes the child at index idx of parent together with its subtree.
//
// If the removed child was the active one, selection moves to the previous
// sibling, or to the first remaining child, or to nil when none remain.
// Selecting a later sibling is kept pointing at the same node.
func (t *Tree) Detach(parent NodeID, idx int) {
	p := t.Nodes[parent]
	p.Children = append(p.Children[:idx:idx], p.Children[idx+1:]...)

	switch {
	case len(p.Children) == 0:
		p.Selected = nil
	case p.Selected == nil:
		p.Selected = helpers.ToPtr(0)
	case *p.Selected == idx:
		p.Selected = helpers.ToPtr(max(idx-1, 0))
	case *p.Selected > idx:
		p.Selected = helpers.ToPtr(*p.Selected - 1)
	}

	t.compact()
}

// compact drops every node that is no longer reachable from the root and
// renumbers the rest in depth-first order.
func (t *Tree) compact() {
	remap := make(map[NodeID]NodeID, len(t.Nodes))
	nodes := make([]*Node, 0, len(t.Nodes))

	var visit func(id NodeID)
	visit = func(id NodeID) {
		n := t.Nodes[id]
		remap[id] = NodeID(len(nodes))
		nodes = append(nodes, n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(0)

	for _, n := range nodes {
		n.ID = remap[n.ID]
		if n.Parent != NoNode {
			n.Parent = remap[n.Parent]
		}
		for i, c := range n.Children {
			n.Children[i] = remap[c]
		}
	}
	t.Nodes = nodes
}

// Walk visits id and all of its descendants depth first, parents before
// children. Walking stops at the first error.
func (t *Tree) Walk(id NodeID, fn func(n *Node) error) error {
	n, ok := t.Get(id)
	if !ok {
		return ErrUnknownNode
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := t.Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy that shares nothing with t.
func (t *Tree) Clone() *Tree {
	return clone.Clone(t).(*Tree)
}
