// Package resource supplies the opaque resource handles that are passed
// through bus device creation and firmware loading. Holders may move a
// Handle around and close it; nothing else about it is observable.
package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is an owned, opaque resource token.
type Handle struct {
	id     uint64
	closed *atomic.Bool
}

// Valid reports whether the handle was minted by a Supplier.
func (h Handle) Valid() bool {
	return h.id != 0
}

// Close releases the handle. Closing twice is a no-op.
func (h Handle) Close() {
	if h.closed != nil {
		h.closed.Store(true)
	}
}

// Closed reports whether Close was called on this handle or a copy of it.
func (h Handle) Closed() bool {
	return h.closed != nil && h.closed.Load()
}

// String renders the handle for logs without exposing anything about it.
func (h Handle) String() string {
	if !h.Valid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d)", h.id)
}

// Supplier mints handles. The first handle it mints is the root resource.
type Supplier struct {
	next     atomic.Uint64
	rootOnce sync.Once
	root     Handle
}

// NewSupplier creates a supplier.
func NewSupplier() *Supplier {
	return &Supplier{}
}

// Mint returns a new handle.
func (s *Supplier) Mint() Handle {
	return Handle{id: s.next.Add(1), closed: new(atomic.Bool)}
}

// Root returns the root resource handle, minting it on first use.
func (s *Supplier) Root() Handle {
	s.rootOnce.Do(func() { s.root = s.Mint() })
	return s.root
}
