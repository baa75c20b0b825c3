package firmware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// DirLoader reads firmware from local directories, searched in order.
type DirLoader struct {
	dirs     []string
	supplier *resource.Supplier
}

// NewDirLoader creates a loader over dirs.
func NewDirLoader(supplier *resource.Supplier, dirs ...string) *DirLoader {
	return &DirLoader{dirs: dirs, supplier: supplier}
}

// Load implements Loader.
func (l *DirLoader) Load(ctx context.Context, driver, path string) (*Blob, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx).With("driver", driver, "firmware", path)
	for _, dir := range l.dirs {
		full := filepath.Join(dir, filepath.FromSlash(path))
		data, err := os.ReadFile(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read firmware %q: %w", full, err)
		}
		logger.Debug("Loaded firmware from disk.", "file", full, "size", len(data))
		return &Blob{Handle: l.supplier.Mint(), Data: data, Source: full}, nil
	}
	return nil, fmt.Errorf("firmware %q for driver %q: %w", path, driver, status.ErrNotFound)
}
