// Package devtree owns the device tree: the root and misc anchors, the id
// index and the single tree-wide lock that serializes every structural
// mutation.
//
// Only three things change structure: Add links a CREATED node under an
// ACTIVE parent and activates it, BeginUnbinding moves a node whose
// descendants are all gone into UNBINDING, and Detach unlinks an UNBINDING
// node and marks it REMOVED. Each runs entirely under the tree lock, so no
// caller can observe a half-linked node or a parent removed before its
// children. Driver callbacks never run under the lock.
package devtree
