package node

import (
	"fmt"

	"github.com/specialistvlad/devmgr/internal/status"
)

// State is a node's lifecycle state.
type State int32

const (
	// Created means constructed but not linked to the tree.
	Created State = iota
	// PendingAdd means linked under a parent but not yet matchable.
	PendingAdd
	// Active means matchable, bindable and visible.
	Active
	// Unbinding means the node's own unbind is in progress; all of its
	// descendants are already REMOVED.
	Unbinding
	// Removed is terminal.
	Removed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case PendingAdd:
		return "PENDING_ADD"
	case Active:
		return "ACTIVE"
	case Unbinding:
		return "UNBINDING"
	case Removed:
		return "REMOVED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// next lists the only legal successor of each state. CREATED and
// PENDING_ADD may also fall straight to REMOVED when an add is rolled back.
var next = map[State][]State{
	Created:    {PendingAdd, Removed},
	PendingAdd: {Active, Removed},
	Active:     {Unbinding},
	Unbinding:  {Removed},
}

// State atomically returns the node's lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Transition moves the node from one state to another. It returns an
// ErrInvalidState error when the node is not in from or the edge is not
// part of the lifecycle.
func (n *Node) Transition(from, to State) error {
	legal := false
	for _, s := range next[from] {
		if s == to {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("device %q: illegal transition %s -> %s: %w", n.name, from, to, status.ErrInvalidState)
	}
	if !n.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("device %q: expected %s, found %s: %w", n.name, from, n.State(), status.ErrInvalidState)
	}
	if to == Removed && from != Unbinding {
		// Rolled back adds are never released.
		n.closeDone()
	}
	return nil
}

// Matchable reports whether the node may be offered to drivers right now.
func (n *Node) Matchable() bool {
	return n.State() == Active && !n.Removing() && n.Bindable()
}
