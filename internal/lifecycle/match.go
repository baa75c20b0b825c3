package lifecycle

import (
	"context"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/status"
)

// enqueueMatch queues matching for n. A device added while Close is
// running stays unbound.
func (c *Coordinator) enqueueMatch(n *node.Node) {
	if !c.dispatch.submit(func(ctx context.Context) { c.match(ctx, n) }) {
		ctxlog.FromContext(c.ctx).Warn("Coordinator closed, dropping match.", "device", n.Path())
	}
}

// match offers n to the registered drivers in registration order and stops
// at the first successful bind. A driver whose bind failed is not offered n
// again until Rebind.
func (c *Coordinator) match(ctx context.Context, n *node.Node) {
	if !n.Matchable() {
		return
	}

	c.gate.RLock()
	defer c.gate.RUnlock()
	n.LockLifecycle()
	defer n.UnlockLifecycle()

	if !n.Matchable() {
		return
	}
	if o, _ := n.Owner(); o != nil {
		return
	}

	logger := ctxlog.FromContext(ctx).With("device", n.Path())
	for _, d := range c.registry.Drivers() {
		if n.Tried(d.Name()) || !bind.Matches(d.Program(), n.Props()) {
			continue
		}
		n.MarkTried(d.Name())

		cookie, err := c.callBind(ctx, d, n)
		if err != nil {
			logger.Warn("Driver bind failed.", "driver", d.Name(), "error", err)
			c.emit(n, events.KindBindFailed, d.Name(), err)
			continue
		}
		if err := n.SetOwner(d, cookie); err != nil {
			status.Fatalf("bind %q to %q: %v", n.Path(), d.Name(), err)
		}
		logger.Info("Device bound.", "driver", d.Name())
		c.emit(n, events.KindBound, d.Name(), nil)
		return
	}
	logger.Debug("No driver bound device.")
}

func (c *Coordinator) callBind(ctx context.Context, d *registry.Descriptor, n *node.Node) (cookie any, err error) {
	cbCtx := c.callbackContext(ctxlog.With(ctx, "driver", d.Name(), "device", n.Path()), "bind", n)
	c.guard(cbCtx, "bind", n, func() {
		cookie, err = d.Ops().Bind(cbCtx, n)
	})
	return cookie, err
}

// DriverUnbind detaches driver from n without removing n. Children of n are
// removed first, then the driver's Unbind runs and n stays ACTIVE and
// unbound, ready for Rebind.
func (c *Coordinator) DriverUnbind(ctx context.Context, driver string, n *node.Node) error {
	if n == nil {
		return errInvalidDevice("unbind")
	}
	if info, ok := callbackFrom(ctx); ok && info.device == n {
		return errf(status.ErrInvalidState, "unbind %q from its own %s callback", n.Path(), info.op)
	}
	if n.State() != node.Active || n.Removing() {
		return errf(status.ErrInvalidState, "unbind %q: device is %s (removing=%t)", n.Path(), n.State(), n.Removing())
	}
	if o, _ := n.Owner(); o == nil || o.Name() != driver {
		return errf(status.ErrInvalidState, "unbind %q: not bound to %q", n.Path(), driver)
	}

	if err := c.removeChildren(ctx, n); err != nil {
		return err
	}

	c.gate.RLock()
	defer c.gate.RUnlock()
	n.LockLifecycle()
	defer n.UnlockLifecycle()

	if len(n.Children()) > 0 {
		return errf(status.ErrInvalidState, "unbind %q: device gained children", n.Path())
	}
	o, cookie := n.Owner()
	if o == nil || o.Name() != driver {
		return errf(status.ErrInvalidState, "unbind %q: not bound to %q", n.Path(), driver)
	}
	n.ClearOwner()
	c.callUnbind(ctx, o, n, cookie)
	ctxlog.FromContext(ctx).Info("Driver unbound from device.", "driver", driver, "device", n.Path())
	return nil
}

func (c *Coordinator) callUnbind(ctx context.Context, o node.Owner, n *node.Node, cookie any) {
	drv := c.driverFor(o)
	if drv == nil {
		status.Fatalf("device %q bound to unknown driver %q", n.Path(), o.Name())
	}
	cbCtx := c.callbackContext(ctxlog.With(ctx, "driver", o.Name(), "device", n.Path()), "unbind", n)
	c.guard(cbCtx, "unbind", n, func() {
		drv.Unbind(cbCtx, n, cookie)
	})
	c.emit(n, events.KindUnbound, o.Name(), nil)
}
