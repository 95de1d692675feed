package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	}
	return false
}

// NodeID addresses a node inside its Tree. IDs are only stable until the
// next structural removal, which compacts the arena.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is a single message of the conversation tree.
//
// Tokens is the encoded size of Content plus the per-message overhead.
// ContextTokens is the cost of everything above this node on its branch,
// i.e. parent.ContextTokens + parent.Tokens.
type Node struct {
	ID            NodeID
	Parent        NodeID
	Role          Role
	Content       string
	Tokens        int
	ContextTokens int
	Children      []NodeID
	// Selected is the index into Children of the active branch, nil when the
	// node has no children.
	Selected *int
}

func (n *Node) IsRoot() bool {
	return n.Parent == NoNode
}

// SelectedChild returns the ID of the active child.
func (n *Node) SelectedChild() (NodeID, bool) {
	if n.Selected == nil || *n.Selected < 0 || *n.Selected >= len(n.Children) {
		return NoNode, false
	}
	return n.Children[*n.Selected], true
}

func (n *Node) String() string {
	return fmt.Sprintf("[%s]: %s", n.Role, strings.TrimRight(n.Content, "\n"))
}
