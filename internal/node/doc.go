// Package node defines the device node: one addressable unit in the device
// tree together with its lifecycle state machine.
//
// A node moves CREATED -> PENDING_ADD -> ACTIVE -> UNBINDING -> REMOVED. The
// state is stored atomically so property reads and protocol dispatch on an
// ACTIVE node never need the tree lock. Structural fields (children, bound
// driver, cookie) sit behind a small per-node mutex; the tree's own lock is
// what serializes structural changes across nodes.
package node
