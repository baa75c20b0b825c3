package lifecycle

import (
	"context"
	"fmt"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/status"
)

// addBusDevice has the bus-manager driver named in args create the device
// in a new device host, links it under parent and hands it to that driver
// without matching. The gate is held from the driver lookup until the
// device is in the tree.
func (c *Coordinator) addBusDevice(ctx context.Context, parent *node.Node, args node.Args) (*node.Node, error) {
	// Unregistration waits until the device is linked and owned.
	defer c.enter(ctx)()

	d, ok := c.registry.Lookup(args.BusDriver)
	if !ok {
		return nil, fmt.Errorf("bus device %q: driver %q: %w", args.Name, args.BusDriver, status.ErrNotFound)
	}
	bm, ok := d.BusManager()
	if !ok {
		return nil, fmt.Errorf("bus device %q: driver %q is not a bus manager: %w", args.Name, d.Name(), status.ErrInvalidArgs)
	}
	if parent == nil || parent.State() != node.Active || parent.Removing() {
		return nil, fmt.Errorf("bus device %q: parent is not active: %w", args.Name, status.ErrInvalidParent)
	}

	rsrc := args.Resource
	if !rsrc.Valid() {
		rsrc = c.resources.Root()
	}
	req := registry.CreateRequest{Name: args.Name, Args: args.BusDevArgs, Resource: rsrc}
	logger := ctxlog.FromContext(ctx).With("driver", d.Name(), "device", args.Name)

	var (
		n   *node.Node
		err error
	)
	cbCtx := c.callbackContext(ctxlog.With(ctx, "driver", d.Name()), "create", parent)
	c.guard(cbCtx, "create", parent, func() {
		n, err = c.launcher.Launch(cbCtx, d.Name(), bm, req)
	})
	if err != nil {
		return nil, err
	}
	if n.State() != node.Created || n.Parent() != nil {
		c.launcher.Stop(ctx, n.HostID())
		return nil, fmt.Errorf("bus device %q: create returned a device that is %s: %w", args.Name, n.State(), status.ErrInvalidState)
	}

	if err := c.checkPublisher(n); err != nil {
		c.launcher.Stop(ctx, n.HostID())
		return nil, err
	}

	// Owned before it becomes visible, so no late binding sweep can take it.
	if err := n.SetOwner(d, nil); err != nil {
		c.launcher.Stop(ctx, n.HostID())
		return nil, fmt.Errorf("bus device %q: %w", args.Name, err)
	}
	if err := c.tree.Add(parent, n); err != nil {
		n.ClearOwner()
		c.launcher.Stop(ctx, n.HostID())
		return nil, err
	}
	logger.Info("Bus device created.", "host", n.HostID(), "path", n.Path())
	c.emit(n, events.KindActive, "", nil)
	c.emit(n, events.KindBound, d.Name(), nil)
	return n, nil
}
