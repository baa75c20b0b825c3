package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
)

// ValidateRegistry performs a strict parity check between manifests and the
// compiled-in drivers, and validates every binding program up front.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for name, def := range r.DefinitionRegistry {
		if _, ok := r.BuiltinRegistry[name]; !ok {
			errs = append(errs, fmt.Sprintf("driver '%s': manifest %s declares a driver that is not compiled in", name, def.Source))
		}
	}

	for _, d := range r.Descriptors() {
		_, hasManifest := r.DefinitionRegistry[d.Name()]
		if len(d.Program()) == 0 {
			if hasManifest {
				errs = append(errs, fmt.Sprintf("driver '%s': manifest declares no match rules", d.Name()))
			} else {
				errs = append(errs, fmt.Sprintf("driver '%s': no manifest and no builtin binding program", d.Name()))
			}
			continue
		}
		if !hasManifest {
			logger.Debug("Driver has no manifest, using builtin binding program.", "driver", d.Name())
		}
		if err := d.Program().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("driver '%s': %v", d.Name(), err))
		}
		if d.Flags()&FlagBusManager != 0 {
			if _, ok := d.BusManager(); !ok {
				errs = append(errs, fmt.Sprintf("driver '%s': flagged bus_manager but the Go driver has no Create method", d.Name()))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
