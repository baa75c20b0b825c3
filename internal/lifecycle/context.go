package lifecycle

import (
	"context"

	"github.com/specialistvlad/devmgr/internal/node"
)

type callbackKey struct{}

type callbackInfo struct {
	coordinator *Coordinator
	device      *node.Node
	op          string
}

// callbackContext marks ctx as running inside a driver callback on dev.
func (c *Coordinator) callbackContext(ctx context.Context, op string, dev *node.Node) context.Context {
	return context.WithValue(ctx, callbackKey{}, &callbackInfo{coordinator: c, device: dev, op: op})
}

func callbackFrom(ctx context.Context) (*callbackInfo, bool) {
	info, ok := ctx.Value(callbackKey{}).(*callbackInfo)
	return info, ok
}

// FromContext returns the coordinator that invoked the current driver
// callback.
func FromContext(ctx context.Context) (*Coordinator, bool) {
	info, ok := callbackFrom(ctx)
	if !ok {
		return nil, false
	}
	return info.coordinator, true
}

// inCallback reports whether ctx belongs to a driver callback.
func inCallback(ctx context.Context) bool {
	_, ok := callbackFrom(ctx)
	return ok
}
