// Package props implements the per-device property bag used by the binding
// matcher.
//
// Keys are small enumerated identifiers rather than free-form strings so a
// match is an integer comparison. A Set is mutable until it is frozen, which
// happens when its node becomes ACTIVE; from then on reads need no locking.
package props
