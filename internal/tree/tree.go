package tree

import (
	"fmt"
	"iter"
	"path/filepath"
)

// Tree is the file explorer model. It is not safe for concurrent use;
// callers serialize access.
type Tree struct {
	root   *Node
	lister Lister
}

// New creates a tree rooted at rootPath and lists the root's children. A
// root that cannot be listed is kept with its error set.
func New(rootPath string, lister Lister) *Tree {
	root := &Node{
		IndexPath:   []int{},
		Name:        displayName(rootPath),
		Path:        rootPath,
		IsDirectory: true,
		CheckState:  Unchecked,
	}

	t := &Tree{root: root, lister: lister}
	if err := t.load(root); err == nil {
		root.Expanded = true
	}
	return t
}

// Restore rebuilds a tree from a previously serialized root, restoring parent
// pointers and index paths.
func Restore(root *Node, lister Lister) *Tree {
	root.link(nil, []int{})
	return &Tree{root: root, lister: lister}
}

// Root returns the live root node
func (t *Tree) Root() *Node {
	return t.root
}

// Snapshot returns a deep copy of the tree safe to hand to other goroutines
func (t *Tree) Snapshot() *Node {
	return t.root.Clone()
}

// Find resolves an index path. The empty path is the root.
func (t *Tree) Find(indexPath []int) (*Node, error) {
	node := t.root
	for _, i := range indexPath {
		if i < 0 || i >= len(node.Children) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, indexPath)
		}
		node = node.Children[i]
	}
	return node, nil
}

// ToggleCheck flips a node between Checked and Unchecked (Partial becomes
// Checked), applies the result to its descendants and recomputes every
// ancestor.
func (t *Tree) ToggleCheck(indexPath []int) (*Node, error) {
	node, err := t.Find(indexPath)
	if err != nil {
		return nil, err
	}

	desired := Checked
	if node.CheckState == Checked {
		desired = Unchecked
	}
	node.setState(desired)

	for p := node.parent; p != nil; p = p.parent {
		p.recompute()
	}
	return node, nil
}

// ToggleExpand flips a directory's expanded flag, listing it on first
// expansion. A listing failure is recorded on the node, which stays
// collapsed; it is not returned as an error.
func (t *Tree) ToggleExpand(indexPath []int) (*Node, error) {
	node, err := t.Find(indexPath)
	if err != nil {
		return nil, err
	}
	if !node.IsDirectory {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, node.Path)
	}

	if node.Expanded {
		node.Expanded = false
		return node, nil
	}

	if !node.Loaded {
		if err := t.load(node); err != nil {
			return node, nil
		}
	}
	node.Expanded = true
	return node, nil
}

// SelectedPaths yields the absolute path of every Checked node. A Checked
// directory is yielded once and not descended into. Each iteration reads the
// current tree.
func (t *Tree) SelectedPaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		selectedPaths(t.root, yield)
	}
}

func selectedPaths(n *Node, yield func(string) bool) bool {
	switch n.CheckState {
	case Checked:
		return yield(n.Path)
	case Partial:
		for _, child := range n.Children {
			if !selectedPaths(child, yield) {
				return false
			}
		}
	}
	return true
}

// load populates a directory's children. New children inherit Checked from
// a Checked parent and are Unchecked otherwise.
func (t *Tree) load(node *Node) error {
	entries, err := t.lister.List(node.Path)
	if err != nil {
		node.Error = err.Error()
		node.Expanded = false
		return err
	}

	state := Unchecked
	if node.CheckState == Checked {
		state = Checked
	}

	children := make([]*Node, 0, len(entries))
	for i, e := range entries {
		children = append(children, &Node{
			IndexPath:   appendIndex(node.IndexPath, i),
			Name:        e.Name,
			Path:        filepath.Join(node.Path, e.Name),
			IsDirectory: e.IsDir,
			CheckState:  state,
			parent:      node,
		})
	}

	node.Children = children
	node.Loaded = true
	node.Error = ""
	return nil
}
