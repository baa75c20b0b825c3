package lifecycle

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/status"
)

// RequestRemove removes n and its whole subtree. Children reach REMOVED
// before their parent's Unbind runs. Calling it again, concurrently or
// after the fact, never repeats Unbind or Release.
//
// It returns once n is REMOVED or ctx ends; removal itself carries on
// regardless. From inside a driver callback it returns immediately after
// starting the removal.
func (c *Coordinator) RequestRemove(ctx context.Context, n *node.Node) error {
	if n == nil {
		return errInvalidDevice("remove")
	}
	if n == c.tree.Root() || n == c.tree.Misc() {
		return fmt.Errorf("remove %q: tree anchors cannot be removed: %w", n.Path(), status.ErrInvalidState)
	}
	switch n.State() {
	case node.Removed:
		return nil
	case node.Created:
		return fmt.Errorf("remove %q: device is not in the tree: %w", n.Name(), status.ErrInvalidState)
	}

	c.startRemoval(n)
	if inCallback(ctx) {
		return nil
	}
	select {
	case <-n.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %q to be removed: %w", n.Path(), ctx.Err())
	}
}

// startRemoval launches the removal of n unless one is already running.
func (c *Coordinator) startRemoval(n *node.Node) {
	first, children := c.tree.MarkRemoving(n)
	if !first {
		return
	}
	done := c.dispatch.track()
	c.removals.Add(1)
	go func() {
		defer c.removals.Done()
		defer done()
		c.remove(c.ctx, n, children)
	}()
}

// remove tears down the subtree rooted at n, whose removal latch the caller
// already holds.
func (c *Coordinator) remove(ctx context.Context, n *node.Node, children []*node.Node) {
	var wg conc.WaitGroup
	for _, child := range children {
		wg.Go(func() {
			first, grandchildren := c.tree.MarkRemoving(child)
			if !first {
				<-child.Done()
				return
			}
			c.remove(ctx, child, grandchildren)
		})
	}
	wg.Wait()
	c.finish(ctx, n)
}

// finish unbinds, detaches and releases n once all of its children are
// REMOVED.
func (c *Coordinator) finish(ctx context.Context, n *node.Node) {
	logger := ctxlog.FromContext(ctx).With("device", n.Path())

	c.gate.RLock()
	defer c.gate.RUnlock()
	n.LockLifecycle()
	defer n.UnlockLifecycle()

	if err := c.tree.BeginUnbinding(n); err != nil {
		logger.Error("Device cannot start unbinding.", "error", err)
		status.Fatalf("remove %q: %v", n.Path(), err)
	}

	owner, cookie := n.ClearOwner()
	if owner != nil {
		c.callUnbind(ctx, owner, n, cookie)
	}
	if host := n.HostID(); host != "" {
		c.launcher.Stop(ctx, host)
	}

	c.tree.Detach(n)

	target := n.Publisher()
	if target == nil {
		target = owner
	}
	n.Release(func() {
		if target == nil {
			return
		}
		drv := c.driverFor(target)
		if drv == nil {
			logger.Error("Release target is not a registered driver.", "driver", target.Name())
			status.Fatalf("release %q: driver %q is not registered", n.Path(), target.Name())
		}
		cbCtx := c.callbackContext(ctxlog.With(ctx, "driver", target.Name(), "device", n.Path()), "release", n)
		c.guard(cbCtx, "release", n, func() {
			drv.Release(cbCtx, n)
		})
	})
	logger.Debug("Device removed.")
	c.emit(n, events.KindRemoved, "", nil)
}

// removeChildren removes every current child of n and waits for them.
func (c *Coordinator) removeChildren(ctx context.Context, n *node.Node) error {
	children := n.Children()
	for _, child := range children {
		c.startRemoval(child)
	}
	for _, child := range children {
		select {
		case <-child.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for children of %q: %w", n.Path(), ctx.Err())
		}
	}
	return nil
}
