package registry

import (
	"context"

	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/resource"
)

// Driver is the capability every driver implements.
type Driver interface {
	// Init runs once per process, before any other call.
	Init(ctx context.Context) error
	// Bind attaches the driver to dev. The returned cookie is stored
	// opaquely and handed back to Unbind.
	Bind(ctx context.Context, dev *node.Node) (cookie any, err error)
	// Unbind detaches the driver from dev. It is called only after every
	// child of dev has been removed.
	Unbind(ctx context.Context, dev *node.Node, cookie any)
	// Release is the last call for dev, once it is REMOVED.
	Release(ctx context.Context, dev *node.Node)
}

// BusManager drivers can instantiate device hosts for bus devices.
type BusManager interface {
	Driver
	// Create builds the bus device described by req. The returned node must
	// be CREATED and not linked into any tree; the manager links it.
	Create(ctx context.Context, req CreateRequest) (*node.Node, error)
}

// Unloader is implemented by drivers that want a last call when they are
// unregistered.
type Unloader interface {
	Unload(ctx context.Context)
}

// CreateRequest carries the arguments of a bus device creation.
type CreateRequest struct {
	Name     string
	Args     string
	Resource resource.Handle
	// HostID identifies the device host instance the device will live in.
	HostID string
}

// Flags describe driver capabilities.
type Flags uint32

const (
	// FlagBusManager marks a driver allowed to create bus devices.
	FlagBusManager Flags = 1 << iota
)

// FlagsByName maps manifest flag names to flags.
var FlagsByName = map[string]Flags{
	"bus_manager": FlagBusManager,
}

// Module is the interface that all compiled-in driver packages implement.
type Module interface {
	Register(r *Registry)
}

// Ref names a driver without holding its descriptor. Drivers use it as the
// publisher of nodes they build themselves.
type Ref string

// Name returns the driver name.
func (r Ref) Name() string {
	return string(r)
}
