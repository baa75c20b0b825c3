/*
Package nodeid parses and formats device paths, the human-facing way to name
a node in the device tree.

A path is a slash-separated sequence of device names starting at the root,
e.g. `root/sys/pci/eth0`. Device names need not be unique among siblings, so
a segment may carry a zero-based index selecting the n-th sibling with that
name: `root/sys/usb[1]`.
*/
package nodeid
