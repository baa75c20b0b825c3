package node

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// MaxNameLen is the longest device name accepted, in bytes.
const MaxNameLen = 31

// Owner is the view of a driver that a node keeps. The lifecycle package
// stores its registry descriptors here.
type Owner interface {
	Name() string
}

// AddFlags modify how a node is added to the tree.
type AddFlags uint32

const (
	// NonBindable excludes the node from matching permanently.
	NonBindable AddFlags = 1 << iota
	// Instance marks a per-open instance node. Instances are never matched
	// and are not announced to namespace publishers.
	Instance
	// BusDev asks the manager to instantiate a device host through a
	// bus-manager driver's create operation.
	BusDev
)

// Args describe a node to create. Name and Props are copied; the remaining
// reference fields are stored as given.
type Args struct {
	Name      string
	Publisher Owner
	Ctx       any
	Ops       any
	Props     []props.Prop
	ProtoID   protocol.ID
	ProtoOps  any
	Flags     AddFlags

	// BusDriver, BusDevArgs and Resource are used with the BusDev flag.
	BusDriver  string
	BusDevArgs string
	Resource   resource.Handle
}

// Node is a single device in the device tree.
type Node struct {
	id        uuid.UUID
	name      string
	publisher Owner
	ctx       any
	ops       any
	protoID   protocol.ID
	protoOps  any
	props     *props.Set
	flags     AddFlags

	busDriver  string
	busDevArgs string
	resource   resource.Handle

	// parent is assigned once, before the node leaves CREATED.
	parent *Node

	state atomic.Int32

	mu       sync.Mutex
	children []*Node
	owner    Owner
	cookie   any
	hostID   string
	tried    map[string]struct{}

	// lifecycle serializes bind attempts against removal and driver unbind.
	lifecycle sync.Mutex

	// removing latches the first removal request.
	removing atomic.Bool
	// released guards the release callback; a second release is fatal.
	released atomic.Bool
	// removed is closed after release, or when an add is rolled back.
	removed     chan struct{}
	removedOnce sync.Once
}

// New constructs a node in the CREATED state. It is not linked to any tree.
func New(args Args) (*Node, error) {
	if args.Name == "" {
		return nil, fmt.Errorf("device name is empty: %w", status.ErrInvalidArgs)
	}
	if len(args.Name) > MaxNameLen {
		return nil, fmt.Errorf("device name %q exceeds %d bytes: %w", args.Name, MaxNameLen, status.ErrInvalidArgs)
	}
	if args.Flags&BusDev != 0 && args.BusDriver == "" {
		return nil, fmt.Errorf("device %q: bus device without a bus driver: %w", args.Name, status.ErrInvalidArgs)
	}
	for _, p := range args.Props {
		if !p.Key.Valid() {
			return nil, fmt.Errorf("device %q: unknown property key %s: %w", args.Name, p.Key, status.ErrInvalidArgs)
		}
	}

	set := props.New(args.Props...)
	if args.ProtoID != protocol.None {
		if _, ok := set.Get(props.KeyProtocol); !ok {
			_ = set.Set(props.KeyProtocol, uint32(args.ProtoID))
		}
	}

	n := &Node{
		id:         uuid.New(),
		name:       args.Name,
		publisher:  args.Publisher,
		ctx:        args.Ctx,
		ops:        args.Ops,
		protoID:    args.ProtoID,
		protoOps:   args.ProtoOps,
		props:      set,
		flags:      args.Flags,
		busDriver:  args.BusDriver,
		busDevArgs: args.BusDevArgs,
		resource:   args.Resource,
		removed:    make(chan struct{}),
	}
	n.state.Store(int32(Created))
	return n, nil
}

// ID returns the node's unique handle.
func (n *Node) ID() string {
	return n.id.String()
}

// Name returns the device name.
func (n *Node) Name() string {
	return n.name
}

// Publisher returns the driver that added the node, if any.
func (n *Node) Publisher() Owner {
	return n.publisher
}

// Ctx returns the driver-private context pointer.
func (n *Node) Ctx() any {
	return n.ctx
}

// Ops returns the device's protocol operation table.
func (n *Node) Ops() any {
	return n.ops
}

// Protocol returns the optional secondary protocol id and its table.
func (n *Node) Protocol() (protocol.ID, any) {
	return n.protoID, n.protoOps
}

// Props returns the node's property set. It is read-only once ACTIVE.
func (n *Node) Props() *props.Set {
	return n.props
}

// Flags returns the add flags the node was created with.
func (n *Node) Flags() AddFlags {
	return n.flags
}

// Bindable reports whether the node takes part in matching at all.
func (n *Node) Bindable() bool {
	return n.flags&(NonBindable|Instance) == 0
}

// BusDev returns the bus device request carried by the node.
func (n *Node) BusDev() (driver, args string, rsrc resource.Handle, ok bool) {
	return n.busDriver, n.busDevArgs, n.resource, n.flags&BusDev != 0
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// SetParent assigns the parent. It may only happen once, while the node is
// still CREATED; the tree calls it under its lock.
func (n *Node) SetParent(p *Node) error {
	if n.parent != nil {
		return fmt.Errorf("device %q already has a parent: %w", n.name, status.ErrInvalidState)
	}
	if n.State() != Created {
		return fmt.Errorf("device %q is %s: %w", n.name, n.State(), status.ErrInvalidState)
	}
	n.parent = p
	return nil
}

// Path returns the slash separated names from the root to n.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.name
	}
	return n.parent.Path() + "/" + n.name
}

// Children returns a snapshot of the node's children.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AppendChild links c as the last child. Only the tree calls it.
func (n *Node) AppendChild(c *Node) {
	n.mu.Lock()
	n.children = append(n.children, c)
	n.mu.Unlock()
}

// RemoveChild unlinks c. It reports whether c was a child.
func (n *Node) RemoveChild(c *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, cur := range n.children {
		if cur == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return true
		}
	}
	return false
}

// Owner returns the driver bound to the node and its cookie.
func (n *Node) Owner() (Owner, any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.owner, n.cookie
}

// SetOwner records a successful bind. It fails if another driver already
// owns the node.
func (n *Node) SetOwner(o Owner, cookie any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.owner != nil {
		return fmt.Errorf("device %q already bound to %q: %w", n.name, n.owner.Name(), status.ErrInvalidState)
	}
	n.owner = o
	n.cookie = cookie
	return nil
}

// ClearOwner drops the bound driver and returns what was stored.
func (n *Node) ClearOwner() (Owner, any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o, c := n.owner, n.cookie
	n.owner, n.cookie = nil, nil
	return o, c
}

// HostID returns the device host instance backing a bus device.
func (n *Node) HostID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hostID
}

// SetHostID records the device host instance backing a bus device.
func (n *Node) SetHostID(id string) {
	n.mu.Lock()
	n.hostID = id
	n.mu.Unlock()
}

// MarkTried records a bind attempt by driver and reports whether this is
// the first attempt for that driver.
func (n *Node) MarkTried(driver string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tried == nil {
		n.tried = make(map[string]struct{})
	}
	if _, ok := n.tried[driver]; ok {
		return false
	}
	n.tried[driver] = struct{}{}
	return true
}

// Tried reports whether driver already attempted to bind.
func (n *Node) Tried(driver string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.tried[driver]
	return ok
}

// ForgetTried clears the attempt history so matching can run again.
func (n *Node) ForgetTried() {
	n.mu.Lock()
	n.tried = nil
	n.mu.Unlock()
}

// LockLifecycle serializes driver callbacks that change ownership of n.
func (n *Node) LockLifecycle() {
	n.lifecycle.Lock()
}

// UnlockLifecycle releases the lock taken by LockLifecycle.
func (n *Node) UnlockLifecycle() {
	n.lifecycle.Unlock()
}

// BeginRemoval latches the removal request. Only the first caller gets true.
func (n *Node) BeginRemoval() bool {
	return n.removing.CompareAndSwap(false, true)
}

// Removing reports whether removal has been requested.
func (n *Node) Removing() bool {
	return n.removing.Load()
}

// Release runs f exactly once and then closes Done. A second call is an
// invariant violation.
func (n *Node) Release(f func()) {
	if !n.released.CompareAndSwap(false, true) {
		status.Fatalf("device %q (%s) released twice", n.name, n.ID())
	}
	defer n.closeDone()
	f()
}

// Done returns a channel closed once the node is REMOVED and released.
func (n *Node) Done() <-chan struct{} {
	return n.removed
}

func (n *Node) closeDone() {
	n.removedOnce.Do(func() { close(n.removed) })
}
