package firmware

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/devmgr/internal/resource"
	"github.com/specialistvlad/devmgr/internal/status"
)

// Blob is a loaded firmware image.
type Blob struct {
	Handle resource.Handle
	Data   []byte
	Source string
}

// Size returns the blob length in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

// Loader fetches firmware by path on behalf of a driver.
type Loader interface {
	Load(ctx context.Context, driver, path string) (*Blob, error)
}

// Chain tries each loader in order and returns the first blob found. Any
// error other than not-found stops the search.
type Chain []Loader

// Load implements Loader.
func (c Chain) Load(ctx context.Context, driver, path string) (*Blob, error) {
	for _, l := range c {
		blob, err := l.Load(ctx, driver, path)
		if err == nil {
			return blob, nil
		}
		if !errors.Is(err, status.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("firmware %q for driver %q: %w", path, driver, status.ErrNotFound)
}

// validPath rejects absolute paths and parent references.
func validPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty firmware path: %w", status.ErrInvalidArgs)
	}
	if path[0] == '/' {
		return fmt.Errorf("firmware path %q is absolute: %w", path, status.ErrInvalidArgs)
	}
	for _, seg := range splitPath(path) {
		if seg == ".." {
			return fmt.Errorf("firmware path %q escapes its root: %w", path, status.ErrInvalidArgs)
		}
	}
	return nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	return out
}
