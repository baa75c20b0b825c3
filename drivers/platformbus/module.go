// Package platformbus is a bus-manager driver. It binds to platform bus
// devices and creates bus devices from "key=value" argument strings, each in
// its own device host.
package platformbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// Name is the driver name used in manifests and board files.
const Name = "platform_bus"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the driver as a builtin with its default program.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBuiltin(Name, &registry.Builtin{
		Driver: New(),
		Program: bind.Program{
			bind.Equal(props.KeyProtocol, uint32(protocol.PlatformBus)),
		},
		Flags: registry.FlagBusManager,
	})
}

// Device is the driver context of a bus device created by the platform bus.
type Device struct {
	HostID   string
	Args     string
	Resource resource.Handle
}

// Bus is the cookie of a bound platform bus.
type Bus struct {
	Path string
}

// Driver is the platform bus driver.
type Driver struct {
	mu      sync.Mutex
	buses   map[string]*Bus
	created int
}

// New creates an unbound platform bus driver.
func New() *Driver {
	return &Driver{buses: make(map[string]*Bus)}
}

// Init implements registry.Driver.
func (d *Driver) Init(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Platform bus driver initialized.")
	return nil
}

// Bind implements registry.Driver.
func (d *Driver) Bind(ctx context.Context, dev *node.Node) (any, error) {
	bus := &Bus{Path: dev.Path()}
	d.mu.Lock()
	d.buses[dev.ID()] = bus
	d.mu.Unlock()
	ctxlog.FromContext(ctx).Info("Platform bus bound.", "device", bus.Path)
	return bus, nil
}

// Unbind implements registry.Driver.
func (d *Driver) Unbind(ctx context.Context, dev *node.Node, cookie any) {
	if cookie == nil {
		// Bus devices are owned without a cookie.
		return
	}
	bus, ok := cookie.(*Bus)
	if !ok {
		status.Fatalf("platform bus %q: unbind with foreign cookie %T", dev.Path(), cookie)
	}
	d.mu.Lock()
	delete(d.buses, dev.ID())
	d.mu.Unlock()
	ctxlog.FromContext(ctx).Info("Platform bus unbound.", "device", bus.Path)
}

// Release implements registry.Driver. For bus devices it closes the
// resource handle the device was created with, unless it is the root
// resource.
func (d *Driver) Release(ctx context.Context, dev *node.Node) {
	pd, ok := dev.Ctx().(*Device)
	if !ok {
		return
	}
	if c, ok := lifecycle.FromContext(ctx); ok && pd.Resource == c.Resources().Root() {
		return
	}
	pd.Resource.Close()
	ctxlog.FromContext(ctx).Debug("Bus device resource closed.", "device", dev.Name(), "resource", pd.Resource.String())
}

// Create implements registry.BusManager.
func (d *Driver) Create(ctx context.Context, req registry.CreateRequest) (*node.Node, error) {
	items, err := props.ParseList(req.Args)
	if err != nil {
		return nil, fmt.Errorf("bus device %q: %w", req.Name, err)
	}
	pd := &Device{HostID: req.HostID, Args: req.Args, Resource: req.Resource}
	n, err := lifecycle.CreateDeviceWithoutPublishing(req.Name, pd, nil, registry.Ref(Name))
	if err != nil {
		return nil, err
	}
	for _, p := range items {
		if err := n.Props().Set(p.Key, p.Value); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.created++
	d.mu.Unlock()
	ctxlog.FromContext(ctx).Info("Bus device built.", "device", req.Name, "host", req.HostID, "props", len(items))
	return n, nil
}

// Bound returns the paths of the buses the driver is bound to.
func (d *Driver) Bound() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.buses))
	for _, b := range d.buses {
		out = append(out, b.Path)
	}
	return out
}

// Created returns how many bus devices the driver has built.
func (d *Driver) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

var _ registry.BusManager = (*Driver)(nil)
