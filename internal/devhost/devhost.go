// Package devhost starts device host instances for bus devices.
//
// A device host is the execution context a bus-manager driver's Create
// callback runs in. The Launcher interface is the seam where an out of
// process host would plug in; LocalLauncher runs hosts as goroutines in the
// manager's own process.
package devhost

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/registry"
)

// Launcher creates a bus device inside a fresh device host.
type Launcher interface {
	Launch(ctx context.Context, driver string, bm registry.BusManager, req registry.CreateRequest) (*node.Node, error)
	// Stop tears down the host backing a removed bus device.
	Stop(ctx context.Context, hostID string)
}

// Host describes a running device host.
type Host struct {
	ID     string
	Driver string
	Device string
}

// LocalLauncher runs device hosts in-process.
type LocalLauncher struct {
	mu    sync.Mutex
	hosts map[string]Host
}

// NewLocalLauncher creates an in-process launcher.
func NewLocalLauncher() *LocalLauncher {
	return &LocalLauncher{hosts: make(map[string]Host)}
}

type launchResult struct {
	n   *node.Node
	err error
}

// Launch runs bm.Create on its own goroutine and waits for it or for ctx.
// When ctx ends first, the host is abandoned and any node Create returns
// later is dropped.
func (l *LocalLauncher) Launch(ctx context.Context, driver string, bm registry.BusManager, req registry.CreateRequest) (*node.Node, error) {
	if req.HostID == "" {
		req.HostID = uuid.NewString()
	}
	logger := ctxlog.FromContext(ctx).With("driver", driver, "host", req.HostID, "device", req.Name)
	logger.Debug("Launching device host.")

	done := make(chan launchResult, 1)
	go func() {
		n, err := bm.Create(ctx, req)
		done <- launchResult{n: n, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logger.Warn("Bus device creation failed.", "error", res.err)
			return nil, fmt.Errorf("create bus device %q with %q: %w", req.Name, driver, res.err)
		}
		if res.n == nil {
			return nil, fmt.Errorf("create bus device %q with %q: driver returned no device", req.Name, driver)
		}
		res.n.SetHostID(req.HostID)
		l.mu.Lock()
		l.hosts[req.HostID] = Host{ID: req.HostID, Driver: driver, Device: res.n.Name()}
		l.mu.Unlock()
		return res.n, nil
	case <-ctx.Done():
		logger.Warn("Abandoned device host launch.", "error", ctx.Err())
		return nil, fmt.Errorf("create bus device %q with %q: %w", req.Name, driver, ctx.Err())
	}
}

// Stop forgets the host.
func (l *LocalLauncher) Stop(ctx context.Context, hostID string) {
	l.mu.Lock()
	_, ok := l.hosts[hostID]
	delete(l.hosts, hostID)
	l.mu.Unlock()
	if ok {
		ctxlog.FromContext(ctx).Debug("Stopped device host.", "host", hostID)
	}
}

// Hosts lists running hosts sorted by id.
func (l *LocalLauncher) Hosts() []Host {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Host, 0, len(l.hosts))
	for _, h := range l.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
