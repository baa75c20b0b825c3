package app

import (
	"github.com/specialistvlad/devmgr/drivers/generic"
	"github.com/specialistvlad/devmgr/drivers/platformbus"
	"github.com/specialistvlad/devmgr/internal/registry"
)

// coreModules is the definitive list of drivers compiled into the device
// manager binary.
var coreModules = []registry.Module{
	&generic.Module{},
	&platformbus.Module{},
}
