// Package protocol holds the protocol identifier space attached to device
// nodes. The manager only stores and forwards these identifiers together with
// an opaque operation table; it never interprets either.
package protocol

import (
	"fmt"
	"sort"
)

// ID is a protocol identifier.
type ID uint32

// Well-known protocol identifiers.
const (
	None        ID = 0
	Device      ID = 0x70444556 // 'pDEV'
	Root        ID = 0x70524f4f // 'pROO'
	Misc        ID = 0x704d4953 // 'pMIS'
	PlatformBus ID = 0x70504c42 // 'pPLB'
	PCI         ID = 0x70504349 // 'pPCI'
	USB         ID = 0x70555342 // 'pUSB'
	Block       ID = 0x70424c4b // 'pBLK'
	Console     ID = 0x70434f4e // 'pCON'
	Input       ID = 0x70494e50 // 'pINP'
	Ethernet    ID = 0x70455448 // 'pETH'
)

var names = map[ID]string{
	Device:      "device",
	Root:        "root",
	Misc:        "misc",
	PlatformBus: "platform_bus",
	PCI:         "pci",
	USB:         "usb",
	Block:       "block",
	Console:     "console",
	Input:       "input",
	Ethernet:    "ethernet",
}

// String returns the registered name or the hex value.
func (id ID) String() string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("0x%08x", uint32(id))
}

// ByName resolves a protocol name.
func ByName(name string) (ID, bool) {
	for id, n := range names {
		if n == name {
			return id, true
		}
	}
	return None, false
}

// Table returns every well-known protocol keyed by name, sorted by name when
// iterated through Names.
func Table() map[string]ID {
	out := make(map[string]ID, len(names))
	for id, n := range names {
		out[n] = id
	}
	return out
}

// Names returns the well-known protocol names in sorted order.
func Names() []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
