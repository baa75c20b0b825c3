package registry

import (
	"github.com/specialistvlad/devmgr/internal/bind"
)

// Descriptor is a registered driver. It satisfies node.Owner.
type Descriptor struct {
	name    string
	ops     Driver
	program bind.Program
	flags   Flags
}

// NewDescriptor bundles a driver with its binding program and flags.
func NewDescriptor(name string, ops Driver, program bind.Program, flags Flags) *Descriptor {
	return &Descriptor{name: name, ops: ops, program: program, flags: flags}
}

// Name returns the driver name.
func (d *Descriptor) Name() string {
	return d.name
}

// Ops returns the driver implementation.
func (d *Descriptor) Ops() Driver {
	return d.ops
}

// Program returns the binding program.
func (d *Descriptor) Program() bind.Program {
	return d.program
}

// Flags returns the driver flags.
func (d *Descriptor) Flags() Flags {
	return d.flags
}

// BusManager returns the bus-manager view of the driver when it is flagged
// as one and implements Create.
func (d *Descriptor) BusManager() (BusManager, bool) {
	if d.flags&FlagBusManager == 0 {
		return nil, false
	}
	bm, ok := d.ops.(BusManager)
	return bm, ok
}
