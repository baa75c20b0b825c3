// Package status defines the error kinds shared by every layer of the device
// manager.
//
// Recoverable conditions are plain sentinel errors that callers compare with
// errors.Is. Unrecoverable invariant violations are not errors at all: they
// panic with a *FatalError so the affected subtree stops processing loudly.
package status
