package status

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation targets a node or driver
	// that is not in a state that permits it.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidParent is returned when a node is added under a parent that
	// is not ACTIVE or is being removed.
	ErrInvalidParent = errors.New("invalid parent")
	// ErrInvalidProgram is returned when a binding program fails validation.
	ErrInvalidProgram = errors.New("invalid binding program")
	// ErrDriverBusy is returned when unregistering a driver that still owns
	// device nodes.
	ErrDriverBusy = errors.New("driver busy")
	// ErrNotFound is returned when firmware or a named entity is missing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering a duplicate driver name.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgs is returned for malformed add-device arguments.
	ErrInvalidArgs = errors.New("invalid arguments")
)

// FatalError is the panic value used for unrecoverable invariant violations,
// such as releasing a node twice.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Msg
}

// Fatalf panics with a *FatalError built from the format string.
func Fatalf(format string, args ...any) {
	panic(&FatalError{Msg: fmt.Sprintf(format, args...)})
}

// AsFatal reports whether a recovered panic value is a *FatalError.
func AsFatal(r any) (*FatalError, bool) {
	fe, ok := r.(*FatalError)
	return fe, ok
}
