/*
Package catalog provides the immutable style tree users browse.

PURPOSE:
  The catalog is a tree of nodes: categories (have children) and leaves
  (selectable styles carrying a prompt fragment for the generation backend).
  It is built once at startup and never mutated afterwards, so it is shared
  by reference across all sessions without locking.

VALIDATION:
  Construction fails fast if the declared nodes do not form a proper tree:
  duplicate ids, a missing parent, more than one root, or a parent cycle all
  abort startup. A broken catalog is a deploy error, not a runtime condition.

KEY TYPES:
  Node:    One catalog entry. Leaf iff it has no children.
  Builder: Collects node declarations, validates, produces a Catalog.
  Catalog: Read-only lookups (Get, Children, Root, Path).

CHANGING THE CATALOG:
  There is deliberately no mutation API. Editing the tree means editing
  seed.go (or supplying a different node list) and redeploying.

SEE ALSO:
  - seed.go: The built-in production style tree
  - session/: Navigation state over this tree
*/
package catalog

import (
	"errors"
	"fmt"
)

// =============================================================================
// NODE
// =============================================================================

// Node is a single entry in the style tree. Nodes are value types; the
// Catalog hands out copies of slices so callers cannot corrupt the tree.
type Node struct {
	ID             string
	Title          string
	Description    string
	PromptFragment string // empty for categories
	ParentID       string // empty only for the root
	ChildIDs       []string
}

// IsLeaf reports whether the node is a selectable style (no children).
func (n *Node) IsLeaf() bool { return len(n.ChildIDs) == 0 }

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNodeNotFound is returned when a node id does not exist in the tree.
	// Usually indicates stale client state (old menu message).
	ErrNodeNotFound = errors.New("catalog node not found")

	// ErrDuplicateID is a construction error: two nodes share an id.
	ErrDuplicateID = errors.New("duplicate catalog node id")

	// ErrMissingParent is a construction error: a node references a parent
	// that was never declared.
	ErrMissingParent = errors.New("catalog node references missing parent")

	// ErrNoRoot is a construction error: no node with an empty parent id,
	// or more than one.
	ErrNoRoot = errors.New("catalog must have exactly one root")

	// ErrCycle is a construction error: following parent pointers never
	// reaches the root.
	ErrCycle = errors.New("catalog parent chain contains a cycle")
)

// =============================================================================
// BUILDER
// =============================================================================

// Decl is a node declaration fed to the Builder. Children are derived from
// parent ids; declaration order of siblings is preserved.
type Decl struct {
	ID             string
	Title          string
	Description    string
	PromptFragment string
	ParentID       string
}

// Builder accumulates declarations and validates them into a Catalog.
type Builder struct {
	decls []Decl
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Category declares a non-leaf node.
func (b *Builder) Category(id, title, parentID string) *Builder {
	b.decls = append(b.decls, Decl{ID: id, Title: title, ParentID: parentID})
	return b
}

// Leaf declares a selectable style with its prompt fragment.
func (b *Builder) Leaf(id, title, description, promptFragment, parentID string) *Builder {
	b.decls = append(b.decls, Decl{
		ID:             id,
		Title:          title,
		Description:    description,
		PromptFragment: promptFragment,
		ParentID:       parentID,
	})
	return b
}

// Build validates the declarations and returns the immutable Catalog.
func (b *Builder) Build() (*Catalog, error) {
	nodes := make(map[string]*Node, len(b.decls))
	order := make([]string, 0, len(b.decls))

	rootID := ""
	for _, d := range b.decls {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog node with empty id (title %q)", d.Title)
		}
		if _, ok := nodes[d.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, d.ID)
		}
		nodes[d.ID] = &Node{
			ID:             d.ID,
			Title:          d.Title,
			Description:    d.Description,
			PromptFragment: d.PromptFragment,
			ParentID:       d.ParentID,
		}
		order = append(order, d.ID)

		if d.ParentID == "" {
			if rootID != "" {
				return nil, fmt.Errorf("%w: %q and %q", ErrNoRoot, rootID, d.ID)
			}
			rootID = d.ID
		}
	}
	if rootID == "" {
		return nil, ErrNoRoot
	}

	// Attach children in declaration order.
	for _, id := range order {
		n := nodes[id]
		if n.ParentID == "" {
			continue
		}
		parent, ok := nodes[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: %q -> %q", ErrMissingParent, id, n.ParentID)
		}
		parent.ChildIDs = append(parent.ChildIDs, id)
	}

	// Every node must reach the root in a finite number of parent hops.
	for _, id := range order {
		seen := map[string]bool{}
		cur := nodes[id]
		for cur.ID != rootID {
			if seen[cur.ID] {
				return nil, fmt.Errorf("%w: via %q", ErrCycle, id)
			}
			seen[cur.ID] = true
			cur = nodes[cur.ParentID]
		}
	}

	return &Catalog{nodes: nodes, rootID: rootID}, nil
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the validated, read-only style tree.
type Catalog struct {
	nodes  map[string]*Node
	rootID string
}

// RootID returns the id of the single root node.
func (c *Catalog) RootID() string { return c.rootID }

// Root returns the root node.
func (c *Catalog) Root() *Node { return c.nodes[c.rootID] }

// Get returns the node with the given id, or ErrNodeNotFound.
func (c *Catalog) Get(id string) (*Node, error) {
	n, ok := c.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return n, nil
}

// Children returns a node's children in declaration order.
func (c *Catalog) Children(id string) ([]*Node, error) {
	n, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	children := make([]*Node, 0, len(n.ChildIDs))
	for _, cid := range n.ChildIDs {
		children = append(children, c.nodes[cid])
	}
	return children, nil
}

// Path returns the ids from the root down to (and including) the node.
func (c *Catalog) Path(id string) ([]string, error) {
	n, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	var rev []string
	for {
		rev = append(rev, n.ID)
		if n.ParentID == "" {
			break
		}
		n = c.nodes[n.ParentID]
	}
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path, nil
}

// Len returns the total number of nodes.
func (c *Catalog) Len() int { return len(c.nodes) }
