package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/specialistvlad/devmgr/internal/node"
)

var segmentRegex = regexp.MustCompile(`^([a-zA-Z0-9_.:-]+)(?:\[(\d+)\])?$`)

// isValidSegmentName rejects names that read like relative path syntax.
func isValidSegmentName(name string) bool {
	return name != "." && name != ".."
}

// Parse converts a slash separated device path into a Path. A leading slash
// is accepted and ignored.
func Parse(raw string) (*Path, error) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return nil, fmt.Errorf("device path cannot be empty")
	}

	p := &Path{}
	for _, segStr := range strings.Split(raw, "/") {
		if segStr == "" {
			return nil, fmt.Errorf("device path %q contains an empty segment", raw)
		}
		matches := segmentRegex.FindStringSubmatch(segStr)
		if matches == nil {
			return nil, fmt.Errorf("invalid path segment format: %q", segStr)
		}
		name := matches[1]
		if !isValidSegmentName(name) {
			return nil, fmt.Errorf("invalid segment name: %q", name)
		}
		if len(name) > node.MaxNameLen {
			return nil, fmt.Errorf("segment %q exceeds %d bytes", name, node.MaxNameLen)
		}

		seg := NewSegment(name)
		if matches[2] != "" {
			index, err := strconv.Atoi(matches[2])
			if err != nil {
				return nil, fmt.Errorf("segment %q: bad index: %w", segStr, err)
			}
			seg.Index = index
		}
		p.Segments = append(p.Segments, seg)
	}
	return p, nil
}
