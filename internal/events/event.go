package events

import (
	"fmt"
	"time"
)

// Kind identifies what happened to a device.
type Kind uint8

const (
	KindActive Kind = iota + 1
	KindBound
	KindBindFailed
	KindUnbound
	KindRemoved
)

func (k Kind) String() string {
	switch k {
	case KindActive:
		return "ACTIVE"
	case KindBound:
		return "BOUND"
	case KindBindFailed:
		return "BIND_FAILED"
	case KindUnbound:
		return "UNBOUND"
	case KindRemoved:
		return "REMOVED"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is one lifecycle notification. Integer CBOR keys keep the journal
// compact; JSON names are used on the socket.io wire.
type Event struct {
	Kind      Kind      `cbor:"1,keyasint" json:"kind"`
	Timestamp time.Time `cbor:"2,keyasint" json:"timestamp"`
	DeviceID  string    `cbor:"3,keyasint" json:"device_id"`
	Path      string    `cbor:"4,keyasint" json:"path"`
	Protocol  uint32    `cbor:"5,keyasint" json:"protocol"`
	Driver    string    `cbor:"6,keyasint,omitempty" json:"driver,omitempty"`
	Publisher string    `cbor:"7,keyasint,omitempty" json:"publisher,omitempty"`
	Error     string    `cbor:"8,keyasint,omitempty" json:"error,omitempty"`
	// Hidden events concern instance devices; namespace publishers skip them.
	Hidden bool `cbor:"9,keyasint,omitempty" json:"-"`
}

func (e Event) String() string {
	s := fmt.Sprintf("%s %s", e.Kind, e.Path)
	if e.Driver != "" {
		s += " driver=" + e.Driver
	}
	if e.Error != "" {
		s += " error=" + e.Error
	}
	return s
}

// Sink receives events.
type Sink interface {
	Log(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Log calls f(ev).
func (f SinkFunc) Log(ev Event) {
	f(ev)
}
