package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/status"
)

// OwnershipCounter reports how many live nodes a driver owns.
type OwnershipCounter interface {
	OwnedBy(driver string) int
}

// Builtin is a compiled-in driver waiting to be registered.
type Builtin struct {
	Driver  Driver
	Program bind.Program
	Flags   Flags
}

// Definition is the manifest side of a driver: its binding program and
// flags as declared in configuration.
type Definition struct {
	Name    string
	Program bind.Program
	Flags   Flags
	Source  string
}

// Registry holds builtins, manifest definitions and registered drivers for
// a single device manager instance.
type Registry struct {
	BuiltinRegistry    map[string]*Builtin
	DefinitionRegistry map[string]*Definition

	owners OwnershipCounter

	mu          sync.RWMutex
	drivers     map[string]*Descriptor
	order       []*Descriptor
	pending     map[string]struct{}
	initialized map[string]struct{}
}

// New creates an empty registry. owners may be nil, in which case no driver
// is ever considered busy.
func New(owners OwnershipCounter) *Registry {
	return &Registry{
		BuiltinRegistry:    make(map[string]*Builtin),
		DefinitionRegistry: make(map[string]*Definition),
		owners:             owners,
		drivers:            make(map[string]*Descriptor),
		pending:            make(map[string]struct{}),
		initialized:        make(map[string]struct{}),
	}
}

// SetOwnershipCounter replaces the ownership source used by Unregister.
func (r *Registry) SetOwnershipCounter(owners OwnershipCounter) {
	r.mu.Lock()
	r.owners = owners
	r.mu.Unlock()
}

// RegisterBuiltin records a compiled-in driver. Duplicate names are a
// programming error.
func (r *Registry) RegisterBuiltin(name string, b *Builtin) {
	if _, exists := r.BuiltinRegistry[name]; exists {
		panic(fmt.Sprintf("driver with name '%s' already registered", name))
	}
	slog.Debug("Registering builtin driver.", "name", name)
	r.BuiltinRegistry[name] = b
}

// PopulateDefinitions merges manifest definitions into the registry.
func (r *Registry) PopulateDefinitions(defs map[string]*Definition) {
	for name, def := range defs {
		r.DefinitionRegistry[name] = def
	}
}

// Descriptors resolves every builtin into a descriptor, taking the program
// and flags from its manifest when one exists. The result is sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	names := make([]string, 0, len(r.BuiltinRegistry))
	for name := range r.BuiltinRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Descriptor, 0, len(names))
	for _, name := range names {
		b := r.BuiltinRegistry[name]
		program, flags := b.Program, b.Flags
		if def, ok := r.DefinitionRegistry[name]; ok {
			program, flags = def.Program, def.Flags
		}
		out = append(out, NewDescriptor(name, b.Driver, program, flags))
	}
	return out
}

// Register validates d's binding program, runs the driver's Init if this
// process never ran it, and makes the driver visible to matching. On any
// failure the driver is not registered.
func (r *Registry) Register(ctx context.Context, d *Descriptor) error {
	logger := ctxlog.FromContext(ctx).With("driver", d.Name())

	if d.Name() == "" || d.Ops() == nil {
		return fmt.Errorf("register driver %q: missing name or ops: %w", d.Name(), status.ErrInvalidArgs)
	}
	if err := d.Program().Validate(); err != nil {
		logger.Warn("Rejected driver with invalid binding program.", "error", err)
		return fmt.Errorf("register driver %q: %w", d.Name(), err)
	}
	if d.Flags()&FlagBusManager != 0 {
		if _, ok := d.BusManager(); !ok {
			return fmt.Errorf("register driver %q: flagged bus_manager but has no create operation: %w", d.Name(), status.ErrInvalidArgs)
		}
	}

	r.mu.Lock()
	if _, exists := r.drivers[d.Name()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("register driver %q: %w", d.Name(), status.ErrAlreadyExists)
	}
	if _, busy := r.pending[d.Name()]; busy {
		r.mu.Unlock()
		return fmt.Errorf("register driver %q: registration in progress: %w", d.Name(), status.ErrAlreadyExists)
	}
	_, inited := r.initialized[d.Name()]
	r.pending[d.Name()] = struct{}{}
	r.mu.Unlock()

	var initErr error
	if !inited {
		logger.Debug("Initializing driver.")
		initErr = d.Ops().Init(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, d.Name())
	if !inited {
		// Init ran; it never runs again for this name, whatever it returned.
		r.initialized[d.Name()] = struct{}{}
	}
	if initErr != nil {
		logger.Error("Driver init failed.", "error", initErr)
		return fmt.Errorf("register driver %q: init: %w", d.Name(), initErr)
	}
	r.drivers[d.Name()] = d
	r.order = append(r.order, d)
	logger.Info("Driver registered.", "program", d.Program().String(), "bus_manager", d.Flags()&FlagBusManager != 0)
	return nil
}

// Unregister drops a driver that owns no devices and calls its Unload hook.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	d, ok := r.drivers[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unregister driver %q: %w", name, status.ErrNotFound)
	}
	if r.owners != nil {
		if owned := r.owners.OwnedBy(name); owned > 0 {
			r.mu.Unlock()
			return fmt.Errorf("unregister driver %q: owns %d devices: %w", name, owned, status.ErrDriverBusy)
		}
	}
	delete(r.drivers, name)
	for i, cur := range r.order {
		if cur == d {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if u, ok := d.Ops().(Unloader); ok {
		u.Unload(ctx)
	}
	ctxlog.FromContext(ctx).Info("Driver unregistered.", "driver", name)
	return nil
}

// Lookup returns a registered driver.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// Drivers returns the registered drivers in registration order.
func (r *Registry) Drivers() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.order))
	copy(out, r.order)
	return out
}
