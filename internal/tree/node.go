// Package tree holds the file explorer model: a lazily listed directory tree
// with tri-state check selection.
package tree

import (
	"errors"
	"path/filepath"
	"slices"
)

// CheckState is the selection state of a node
type CheckState string

const (
	Checked   CheckState = "Checked"
	Unchecked CheckState = "Unchecked"
	Partial   CheckState = "Partial"
)

var (
	// ErrNotFound is returned when an index path does not resolve to a node
	ErrNotFound = errors.New("node not found")

	// ErrNotDirectory is returned when expanding a file node
	ErrNotDirectory = errors.New("node is not a directory")
)

// Node is a single file or directory in the explorer tree
type Node struct {
	IndexPath   []int      `json:"index_path"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	IsDirectory bool       `json:"is_directory"`
	CheckState  CheckState `json:"check_state"`
	Expanded    bool       `json:"expanded"`
	Loaded      bool       `json:"loaded"`
	Error       string     `json:"error,omitempty"`
	Children    []*Node    `json:"children"`

	parent *Node
}

// Parent returns the node's parent, or nil for the root
func (n *Node) Parent() *Node {
	return n.parent
}

// Clone returns a deep copy of the subtree rooted at n. The copy's root has
// no parent.
func (n *Node) Clone() *Node {
	return n.clone(nil)
}

func (n *Node) clone(parent *Node) *Node {
	c := *n
	c.parent = parent
	c.IndexPath = append([]int{}, n.IndexPath...)
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.clone(&c)
		}
	}
	return &c
}

// setState applies state to n and every loaded descendant
func (n *Node) setState(state CheckState) {
	n.CheckState = state
	for _, child := range n.Children {
		child.setState(state)
	}
}

// recompute derives a directory's state from its loaded children. Nodes
// without loaded children keep the state they were given directly.
func (n *Node) recompute() {
	if !n.IsDirectory || len(n.Children) == 0 {
		return
	}

	allChecked, allUnchecked := true, true
	for _, child := range n.Children {
		if child.CheckState != Checked {
			allChecked = false
		}
		if child.CheckState != Unchecked {
			allUnchecked = false
		}
	}

	switch {
	case allChecked:
		n.CheckState = Checked
	case allUnchecked:
		n.CheckState = Unchecked
	default:
		n.CheckState = Partial
	}
}

// link sets parent pointers and index paths for the whole subtree and
// repairs the tri-state rule bottom-up. Null children are dropped.
func (n *Node) link(parent *Node, indexPath []int) {
	n.parent = parent
	n.IndexPath = indexPath
	if n.Children != nil {
		n.Children = slices.DeleteFunc(n.Children, func(c *Node) bool { return c == nil })
	}
	for i, child := range n.Children {
		child.link(n, appendIndex(indexPath, i))
	}

	if len(n.Children) == 0 && n.CheckState == Partial {
		n.CheckState = Unchecked
	}
	if n.CheckState == "" {
		n.CheckState = Unchecked
	}
	n.recompute()
}

func appendIndex(indexPath []int, i int) []int {
	p := make([]int, len(indexPath)+1)
	copy(p, indexPath)
	p[len(indexPath)] = i
	return p
}

func displayName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return path
	}
	return name
}
