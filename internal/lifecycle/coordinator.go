package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/devhost"
	"github.com/specialistvlad/devmgr/internal/devtree"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/firmware"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// DefaultWorkers is the matching pool size used when Options.Workers is 0.
const DefaultWorkers = 4

// Options configure a Coordinator. Zero values pick in-process defaults.
type Options struct {
	Workers   int
	Launcher  devhost.Launcher
	Firmware  firmware.Loader
	Events    events.Sink
	Resources *resource.Supplier
}

// Coordinator drives devices through their lifecycle.
type Coordinator struct {
	tree      *devtree.Tree
	registry  *registry.Registry
	launcher  devhost.Launcher
	firmware  firmware.Loader
	events    events.Sink
	resources *resource.Supplier

	// ctx is the base context for queued work and removals.
	ctx context.Context

	// gate keeps driver callbacks and driver unregistration apart: callbacks
	// hold it shared, UnregisterDriver holds it exclusively.
	gate sync.RWMutex

	dispatch *dispatcher
	removals sync.WaitGroup
}

// New creates a coordinator over tree and reg and starts its workers. The
// logger in ctx is used for background work; ctx is not used for
// cancellation.
func New(ctx context.Context, tree *devtree.Tree, reg *registry.Registry, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Launcher == nil {
		opts.Launcher = devhost.NewLocalLauncher()
	}
	if opts.Resources == nil {
		opts.Resources = resource.NewSupplier()
	}
	reg.SetOwnershipCounter(tree)

	c := &Coordinator{
		tree:      tree,
		registry:  reg,
		launcher:  opts.Launcher,
		firmware:  opts.Firmware,
		events:    opts.Events,
		resources: opts.Resources,
		ctx:       ctxlog.WithLogger(context.WithoutCancel(ctx), ctxlog.FromContext(ctx).With("component", "lifecycle")),
		dispatch:  newDispatcher(),
	}
	c.dispatch.start(c.ctx, opts.Workers)
	return c
}

// Tree returns the device tree.
func (c *Coordinator) Tree() *devtree.Tree {
	return c.tree
}

// Registry returns the driver registry.
func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// Resources returns the resource handle supplier.
func (c *Coordinator) Resources() *resource.Supplier {
	return c.resources
}

// Flush waits until queued matching and background removals are done.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.dispatch.flush(ctx)
}

// Close drains the work queue and waits for removals in flight. AddDevice
// fails with ErrInvalidState afterwards.
func (c *Coordinator) Close() {
	c.dispatch.close()
	c.removals.Wait()
}

// RegisterDriver registers d and offers it every unbound device (late
// binding).
func (c *Coordinator) RegisterDriver(ctx context.Context, d *registry.Descriptor) error {
	if err := c.registry.Register(ctx, d); err != nil {
		return err
	}
	queued := 0
	for _, n := range c.tree.Nodes() {
		if !n.Matchable() {
			continue
		}
		if o, _ := n.Owner(); o != nil {
			continue
		}
		c.enqueueMatch(n)
		queued++
	}
	ctxlog.FromContext(ctx).Debug("Queued late binding sweep.", "driver", d.Name(), "devices", queued)
	return nil
}

// UnregisterDriver removes a driver that owns no devices. It waits for
// callbacks in flight and cannot be called from inside one.
func (c *Coordinator) UnregisterDriver(ctx context.Context, name string) error {
	if inCallback(ctx) {
		return fmt.Errorf("unregister driver %q from a driver callback: %w", name, status.ErrInvalidState)
	}
	c.gate.Lock()
	defer c.gate.Unlock()
	return c.registry.Unregister(ctx, name)
}

// AddDevice creates a device under parent and returns it ACTIVE. Matching
// for the new device is queued. A closed coordinator refuses new devices. With the BusDev flag the device is built
// by the named bus-manager driver instead and is owned by it.
func (c *Coordinator) AddDevice(ctx context.Context, parent *node.Node, args node.Args) (*node.Node, error) {
	if c.dispatch.isClosed() {
		return nil, fmt.Errorf("add %q: coordinator is closed: %w", args.Name, status.ErrInvalidState)
	}
	n, err := node.New(args)
	if err != nil {
		return nil, err
	}
	if args.Flags&node.BusDev != 0 {
		return c.addBusDevice(ctx, parent, args)
	}

	defer c.enter(ctx)()
	if err := c.checkPublisher(n); err != nil {
		return nil, err
	}
	if err := c.tree.Add(parent, n); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Device added.", "device", n.Path(), "id", n.ID(), "bindable", n.Bindable())
	c.emit(n, events.KindActive, "", nil)
	if n.Bindable() {
		c.enqueueMatch(n)
	}
	return n, nil
}

// CreateBusDevice asks the bus-manager driver to create a device host
// instance named name under parent. An invalid rsrc is replaced with the
// root resource.
func (c *Coordinator) CreateBusDevice(ctx context.Context, parent *node.Node, driver, name, args string, rsrc resource.Handle) (*node.Node, error) {
	return c.AddDevice(ctx, parent, node.Args{
		Name:       name,
		Flags:      node.BusDev,
		BusDriver:  driver,
		BusDevArgs: args,
		Resource:   rsrc,
	})
}

// CreateDeviceWithoutPublishing builds a CREATED device that is not linked
// into any tree. Bus-manager drivers return such a device from Create.
func CreateDeviceWithoutPublishing(name string, devCtx, ops any, driver node.Owner) (*node.Node, error) {
	return node.New(node.Args{Name: name, Ctx: devCtx, Ops: ops, Publisher: driver})
}

// Rebind runs matching again for an ACTIVE device with no driver. Drivers
// that failed to bind it before are offered it again.
func (c *Coordinator) Rebind(ctx context.Context, n *node.Node) error {
	if n == nil {
		return fmt.Errorf("rebind: nil device: %w", status.ErrInvalidArgs)
	}
	if !n.Bindable() {
		return fmt.Errorf("rebind %q: device is not bindable: %w", n.Path(), status.ErrInvalidState)
	}
	if !n.Matchable() {
		return fmt.Errorf("rebind %q: device is %s (removing=%t): %w", n.Path(), n.State(), n.Removing(), status.ErrInvalidState)
	}
	if o, _ := n.Owner(); o != nil {
		return fmt.Errorf("rebind %q: bound to %q: %w", n.Path(), o.Name(), status.ErrInvalidState)
	}
	n.ForgetTried()
	c.enqueueMatch(n)
	ctxlog.FromContext(ctx).Debug("Rebind queued.", "device", n.Path())
	return nil
}

// LoadFirmware loads firmware on behalf of driver. The caller owns the
// returned blob's handle.
func (c *Coordinator) LoadFirmware(ctx context.Context, driver, path string) (*firmware.Blob, error) {
	if c.firmware == nil {
		return nil, fmt.Errorf("firmware %q for driver %q: no loader configured: %w", path, driver, status.ErrNotFound)
	}
	blob, err := c.firmware.Load(ctx, driver, path)
	if err != nil {
		if !errors.Is(err, status.ErrNotFound) {
			ctxlog.FromContext(ctx).Warn("Firmware load failed.", "driver", driver, "path", path, "error", err)
		}
		return nil, err
	}
	return blob, nil
}

// enter holds the gate shared for a structural change that consults the
// registry. Callbacks already hold it.
func (c *Coordinator) enter(ctx context.Context) (leave func()) {
	if inCallback(ctx) {
		return func() {}
	}
	c.gate.RLock()
	return c.gate.RUnlock
}

// checkPublisher rejects a device whose publisher is not a registered
// driver, since its release would have nowhere to go. Call with the gate
// held.
func (c *Coordinator) checkPublisher(n *node.Node) error {
	p := n.Publisher()
	if p == nil {
		return nil
	}
	if _, ok := c.registry.Lookup(p.Name()); !ok {
		return fmt.Errorf("device %q: publisher %q is not a registered driver: %w", n.Name(), p.Name(), status.ErrNotFound)
	}
	return nil
}

// driverFor resolves the driver behind an owner or publisher reference.
func (c *Coordinator) driverFor(o node.Owner) registry.Driver {
	if o == nil {
		return nil
	}
	if d, ok := o.(*registry.Descriptor); ok {
		return d.Ops()
	}
	if d, ok := c.registry.Lookup(o.Name()); ok {
		return d.Ops()
	}
	return nil
}

// guard runs a driver callback and logs fatal invariant violations before
// letting the panic continue.
func (c *Coordinator) guard(ctx context.Context, op string, n *node.Node, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := status.AsFatal(r); ok {
				ctxlog.FromContext(ctx).Error("Fatal invariant violation.", "op", op, "device", n.Path(), "error", fe.Msg)
			}
			panic(r)
		}
	}()
	fn()
}

func (c *Coordinator) emit(n *node.Node, kind events.Kind, driver string, err error) {
	if c.events == nil {
		return
	}
	ev := events.Event{
		Kind:     kind,
		DeviceID: n.ID(),
		Path:     n.Path(),
		Driver:   driver,
		Hidden:   n.Flags()&node.Instance != 0,
	}
	if v, ok := n.Props().Get(props.KeyProtocol); ok {
		ev.Protocol = v
	}
	if p := n.Publisher(); p != nil {
		ev.Publisher = p.Name()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.events.Log(ev)
}
