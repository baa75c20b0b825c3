package devtree

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/nodeid"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/status"
)

const (
	// RootName is the name of the tree root.
	RootName = "root"
	// MiscName is the name of the misc anchor under the root.
	MiscName = "misc"
)

// Tree is the root-anchored structure owning every device node.
type Tree struct {
	mu    sync.Mutex
	root  *node.Node
	misc  *node.Node
	index map[string]*node.Node
}

// New creates a tree holding an ACTIVE root and an ACTIVE misc node. Both
// anchors are non-bindable.
func New() *Tree {
	t := &Tree{index: make(map[string]*node.Node)}

	root, err := node.New(node.Args{Name: RootName, ProtoID: protocol.Root, Flags: node.NonBindable})
	if err != nil {
		panic(err)
	}
	activate(root)
	t.root = root
	t.index[root.ID()] = root

	misc, err := node.New(node.Args{Name: MiscName, ProtoID: protocol.Misc, Flags: node.NonBindable})
	if err != nil {
		panic(err)
	}
	if err := t.Add(root, misc); err != nil {
		panic(err)
	}
	t.misc = misc
	return t
}

func activate(n *node.Node) {
	if err := n.Transition(node.Created, node.PendingAdd); err != nil {
		panic(err)
	}
	n.Props().Freeze()
	if err := n.Transition(node.PendingAdd, node.Active); err != nil {
		panic(err)
	}
}

// Root returns the tree root.
func (t *Tree) Root() *node.Node {
	return t.root
}

// Misc returns the misc anchor node.
func (t *Tree) Misc() *node.Node {
	return t.misc
}

// Add links n under parent and makes it ACTIVE. On failure the tree is
// unchanged.
func (t *Tree) Add(parent, n *node.Node) error {
	if parent == nil {
		return fmt.Errorf("add %q: nil parent: %w", n.Name(), status.ErrInvalidParent)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[parent.ID()]; !ok {
		return fmt.Errorf("add %q: parent %q is not in the tree: %w", n.Name(), parent.Name(), status.ErrInvalidParent)
	}
	if parent.State() != node.Active || parent.Removing() {
		return fmt.Errorf("add %q: parent %q is %s (removing=%t): %w", n.Name(), parent.Name(), parent.State(), parent.Removing(), status.ErrInvalidParent)
	}
	if n.State() != node.Created {
		return fmt.Errorf("add %q: node is %s: %w", n.Name(), n.State(), status.ErrInvalidState)
	}
	if err := n.SetParent(parent); err != nil {
		return fmt.Errorf("add %q: %w", n.Name(), err)
	}

	// The lock hides PENDING_ADD from everyone else; it exists so the
	// lifecycle stays uniform for nodes built outside the tree.
	if err := n.Transition(node.Created, node.PendingAdd); err != nil {
		status.Fatalf("add %q: %v", n.Name(), err)
	}
	parent.AppendChild(n)
	t.index[n.ID()] = n
	n.Props().Freeze()
	if err := n.Transition(node.PendingAdd, node.Active); err != nil {
		status.Fatalf("activate %q: %v", n.Name(), err)
	}
	return nil
}

// MarkRemoving latches the removal request on n and returns the children
// present at that moment. Once latched, Add refuses n as a parent, so the
// returned slice is every child removal has to wait for.
func (t *Tree) MarkRemoving(n *node.Node) (first bool, children []*node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !n.BeginRemoval() {
		return false, nil
	}
	return true, n.Children()
}

// BeginUnbinding moves n from ACTIVE to UNBINDING. Every child must already
// be REMOVED; anything else means a parent is overtaking its descendants,
// which is fatal.
func (t *Tree) BeginUnbinding(n *node.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == t.root {
		return fmt.Errorf("the root cannot be removed: %w", status.ErrInvalidState)
	}
	for _, c := range n.Children() {
		if c.State() != node.Removed {
			status.Fatalf("device %q unbinding while child %q is %s", n.Path(), c.Name(), c.State())
		}
	}
	return n.Transition(node.Active, node.Unbinding)
}

// Detach unlinks an UNBINDING node from its parent and the index and marks
// it REMOVED.
func (t *Tree) Detach(n *node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(n.Children()) != 0 {
		status.Fatalf("device %q removed with %d linked children", n.Path(), len(n.Children()))
	}
	if p := n.Parent(); p != nil {
		if !p.RemoveChild(n) {
			status.Fatalf("device %q missing from parent %q", n.Name(), p.Name())
		}
	}
	delete(t.index, n.ID())
	if err := n.Transition(node.Unbinding, node.Removed); err != nil {
		status.Fatalf("detach %q: %v", n.Name(), err)
	}
}

// Lookup finds a live node by id.
func (t *Tree) Lookup(id string) (*node.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.index[id]
	return n, ok
}

// Resolve finds a live node by device path, e.g. "root/sys/usb[1]".
func (t *Tree) Resolve(path string) (*node.Node, error) {
	p, err := nodeid.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %v: %w", path, err, status.ErrInvalidArgs)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := p.Resolve(t.root)
	if !ok {
		return nil, fmt.Errorf("device %q: %w", path, status.ErrNotFound)
	}
	return n, nil
}

// Count returns the number of linked nodes, root and misc included.
func (t *Tree) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// Walk visits every linked node in pre-order. fn runs under the tree lock
// and must not call back into the tree.
func (t *Tree) Walk(fn func(n *node.Node) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	walk(t.root, fn)
}

func walk(n *node.Node, fn func(n *node.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children() {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Nodes returns every linked node in pre-order.
func (t *Tree) Nodes() []*node.Node {
	var out []*node.Node
	t.Walk(func(n *node.Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// OwnedBy counts linked nodes that driver is bound to or published.
func (t *Tree) OwnedBy(driver string) int {
	count := 0
	t.Walk(func(n *node.Node) bool {
		if o, _ := n.Owner(); o != nil && o.Name() == driver {
			count++
		} else if p := n.Publisher(); p != nil && p.Name() == driver {
			count++
		}
		return true
	})
	return count
}
