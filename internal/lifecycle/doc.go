// Package lifecycle sequences binding, unbinding and removal of devices.
//
// The Coordinator owns the device tree and the driver registry for one
// device manager instance. Structural changes go through the tree lock;
// driver callbacks never run under it. Matching is queued on a small worker
// pool, so a driver may add children from inside Bind and return without
// waiting for them to bind.
//
// Removal walks the subtree bottom-up: every child reaches REMOVED before
// its parent's Unbind runs. Independent sibling subtrees are removed in
// parallel. There is no timeout on driver callbacks; a hung Unbind or
// Release stalls its ancestors and nothing else.
//
// Calls made from inside a driver callback, identified by the callback's
// context, never wait on work that could be blocked behind that callback.
package lifecycle
