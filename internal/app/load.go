package app

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
)

// Boot registers every compiled-in driver in name order and then adds the
// board's devices in declaration order. It returns once all queued matching
// has finished.
func (a *App) Boot(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, d := range a.registry.Descriptors() {
		if err := a.coordinator.RegisterDriver(ctx, d); err != nil {
			return fmt.Errorf("failed to register driver %q: %w", d.Name(), err)
		}
	}
	logger.Info("Drivers registered.", "count", len(a.registry.Drivers()))

	for _, dev := range a.board {
		parent, err := a.tree.Resolve(dev.Parent)
		if err != nil {
			return fmt.Errorf("board device %q: %w", dev.Name, err)
		}
		n, err := a.coordinator.AddDevice(ctx, parent, dev.Args)
		if err != nil {
			return fmt.Errorf("board device %q: %w", dev.Name, err)
		}
		logger.Debug("Board device added.", "device", n.Path())
	}

	if err := a.coordinator.Flush(ctx); err != nil {
		return fmt.Errorf("waiting for device matching: %w", err)
	}
	logger.Info("Board applied.", "devices", len(a.board), "tree_size", a.tree.Count())
	return nil
}

// teardown removes every device below the root, waiting at most timeout.
// Each removal runs the normal unbind and release sequence.
func (a *App) teardown(ctx context.Context, timeout time.Duration) {
	logger := ctxlog.FromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	targets := a.tree.Misc().Children()
	for _, n := range a.tree.Root().Children() {
		if n != a.tree.Misc() {
			targets = append(targets, n)
		}
	}
	for _, n := range targets {
		if err := a.coordinator.RequestRemove(ctx, n); err != nil {
			logger.Warn("Device not removed during shutdown.", "device", n.Path(), "error", err)
		}
	}
	logger.Debug("Device tree torn down.", "remaining", a.tree.Count())
}
