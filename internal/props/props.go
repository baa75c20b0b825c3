package props

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/specialistvlad/devmgr/internal/status"
)

// Key identifies a device property.
type Key uint16

const (
	KeyInvalid Key = iota
	KeyProtocol
	KeyBusType
	KeyVendorID
	KeyDeviceID
	KeyClass
	KeySubclass
	KeyInterface
	KeyRevision
	KeyInstance
)

// KeyUserBase is the first key available for driver-private properties.
const KeyUserBase Key = 0x1000

var keyNames = map[Key]string{
	KeyProtocol:  "protocol",
	KeyBusType:   "bus",
	KeyVendorID:  "vid",
	KeyDeviceID:  "did",
	KeyClass:     "class",
	KeySubclass:  "subclass",
	KeyInterface: "interface",
	KeyRevision:  "revision",
	KeyInstance:  "instance",
}

var keysByName = func() map[string]Key {
	m := make(map[string]Key, len(keyNames))
	for k, n := range keyNames {
		m[n] = k
	}
	return m
}()

// String returns the manifest name of the key.
func (k Key) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	if k >= KeyUserBase {
		return fmt.Sprintf("user+%d", k-KeyUserBase)
	}
	return fmt.Sprintf("key(%d)", uint16(k))
}

// Valid reports whether k is a known key or lies in the user range.
func (k Key) Valid() bool {
	_, ok := keyNames[k]
	return ok || k >= KeyUserBase
}

// KeyByName resolves a manifest key name such as "vid".
func KeyByName(name string) (Key, bool) {
	k, ok := keysByName[name]
	return k, ok
}

// KeyNames returns all named keys in key order.
func KeyNames() []string {
	keys := make([]Key, 0, len(keyNames))
	for k := range keyNames {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = keyNames[k]
	}
	return names
}

// Prop is a single typed key/value pair.
type Prop struct {
	Key   Key
	Value uint32
}

// Set is an ordered property bag. The zero value is an empty, mutable set.
//
// A Set is not safe for concurrent mutation. Only the goroutine that builds
// a node writes to it, and after Freeze it is read-only.
type Set struct {
	items  []Prop
	frozen atomic.Bool
}

// New returns a mutable set holding a copy of the given properties. Later
// entries with a duplicate key overwrite earlier ones in place.
func New(items ...Prop) *Set {
	s := &Set{}
	for _, p := range items {
		s.put(p.Key, p.Value)
	}
	return s
}

// Set stores value under key, keeping the key's original position if it was
// already present.
func (s *Set) Set(key Key, value uint32) error {
	if s.frozen.Load() {
		return fmt.Errorf("set %s on frozen property set: %w", key, status.ErrInvalidState)
	}
	if key == KeyInvalid {
		return fmt.Errorf("property key 0 is reserved: %w", status.ErrInvalidArgs)
	}
	s.put(key, value)
	return nil
}

func (s *Set) put(key Key, value uint32) {
	for i := range s.items {
		if s.items[i].Key == key {
			s.items[i].Value = value
			return
		}
	}
	s.items = append(s.items, Prop{Key: key, Value: value})
}

// Get returns the value stored under key.
func (s *Set) Get(key Key) (uint32, bool) {
	if s == nil {
		return 0, false
	}
	for _, p := range s.items {
		if p.Key == key {
			return p.Value, true
		}
	}
	return 0, false
}

// Len returns the number of properties.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// All returns a copy of the properties in insertion order.
func (s *Set) All() []Prop {
	if s == nil {
		return nil
	}
	out := make([]Prop, len(s.items))
	copy(out, s.items)
	return out
}

// Clone returns an unfrozen deep copy.
func (s *Set) Clone() *Set {
	if s == nil {
		return New()
	}
	return New(s.items...)
}

// Freeze makes the set immutable. It is idempotent.
func (s *Set) Freeze() {
	s.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (s *Set) Frozen() bool {
	return s.frozen.Load()
}
