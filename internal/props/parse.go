package props

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/status"
)

// ParseList parses a comma separated list of key=value properties such as
// "vid=0x8086,did=0x100e,protocol=pci". Keys are property names; the
// protocol key also accepts protocol names. Values are unsigned integers in
// any base strconv understands.
func ParseList(s string) ([]Prop, error) {
	var out []Prop
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("property %q is not key=value: %w", field, status.ErrInvalidArgs)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		key, ok := KeyByName(k)
		if !ok {
			return nil, fmt.Errorf("unknown property %q: %w", k, status.ErrInvalidArgs)
		}
		if key == KeyProtocol {
			if id, ok := protocol.ByName(v); ok {
				out = append(out, Prop{Key: key, Value: uint32(id)})
				continue
			}
		}
		val, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("property %q: bad value %q: %w", k, v, status.ErrInvalidArgs)
		}
		out = append(out, Prop{Key: key, Value: uint32(val)})
	}
	return out, nil
}
