// Package generic is a plain bindable driver. It can load a firmware image
// when it binds and can publish a child device under every device it owns.
package generic

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/firmware"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/status"
)

// Name is the driver name used in manifests.
const Name = "generic"

// Module implements the registry.Module interface for this package.
type Module struct {
	Config Config
}

// Register registers the driver as a builtin matching generic devices.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBuiltin(Name, &registry.Builtin{
		Driver: New(m.Config),
		Program: bind.Program{
			bind.Equal(props.KeyProtocol, uint32(protocol.Device)),
		},
	})
}

// Config tunes the driver.
type Config struct {
	// Firmware is loaded on every bind when set. A missing image fails the
	// bind.
	Firmware string
	// Child, when set, is the name of a device published under every bound
	// device.
	Child string
}

// Binding is the cookie handed back on unbind.
type Binding struct {
	Path     string
	Firmware *firmware.Blob
	Child    *node.Node
}

// Driver is the generic driver.
type Driver struct {
	cfg Config

	mu       sync.Mutex
	bound    map[string]*Binding
	released int
}

// New creates a generic driver.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg, bound: make(map[string]*Binding)}
}

// Init implements registry.Driver.
func (d *Driver) Init(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Generic driver initialized.", "firmware", d.cfg.Firmware, "child", d.cfg.Child)
	return nil
}

// Bind implements registry.Driver.
func (d *Driver) Bind(ctx context.Context, dev *node.Node) (any, error) {
	logger := ctxlog.FromContext(ctx)
	c, ok := lifecycle.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("bind %q outside of a coordinator: %w", dev.Path(), status.ErrInvalidState)
	}

	b := &Binding{Path: dev.Path()}
	if d.cfg.Firmware != "" {
		blob, err := c.LoadFirmware(ctx, Name, d.cfg.Firmware)
		if err != nil {
			return nil, err
		}
		b.Firmware = blob
		logger.Info("Firmware loaded.", "device", dev.Path(), "source", blob.Source, "size", blob.Size())
	}
	if d.cfg.Child != "" {
		child, err := c.AddDevice(ctx, dev, node.Args{
			Name:      d.cfg.Child,
			Publisher: registry.Ref(Name),
			ProtoID:   protocol.Device,
			Flags:     node.NonBindable,
		})
		if err != nil {
			if b.Firmware != nil {
				b.Firmware.Handle.Close()
			}
			return nil, err
		}
		b.Child = child
	}

	d.mu.Lock()
	d.bound[dev.ID()] = b
	d.mu.Unlock()
	return b, nil
}

// Unbind implements registry.Driver. Children published in Bind are already
// gone by the time it runs.
func (d *Driver) Unbind(ctx context.Context, dev *node.Node, cookie any) {
	b, ok := cookie.(*Binding)
	if !ok {
		status.Fatalf("generic %q: unbind with foreign cookie %T", dev.Path(), cookie)
	}
	if b.Firmware != nil {
		b.Firmware.Handle.Close()
	}
	d.mu.Lock()
	delete(d.bound, dev.ID())
	d.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Generic device unbound.", "device", b.Path)
}

// Release implements registry.Driver.
func (d *Driver) Release(context.Context, *node.Node) {
	d.mu.Lock()
	d.released++
	d.mu.Unlock()
}

// Bound returns how many devices the driver currently owns.
func (d *Driver) Bound() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bound)
}

// Released returns how many release calls the driver received.
func (d *Driver) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

var _ registry.Driver = (*Driver)(nil)
