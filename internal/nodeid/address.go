package nodeid

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/devmgr/internal/node"
)

// String serializes the path into its canonical form. Index zero is omitted.
func (p *Path) String() string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	for i, seg := range p.Segments {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(seg.Name)
		if seg.Index > 0 {
			fmt.Fprintf(&sb, "[%d]", seg.Index)
		}
	}
	return sb.String()
}

// Equal reports whether both paths select the same node.
func (p *Path) Equal(other *Path) bool {
	if p == nil || other == nil {
		return p == other
	}
	if len(p.Segments) != len(other.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != other.Segments[i] {
			return false
		}
	}
	return true
}

// Resolve walks the path starting at root. The first segment must name root.
func (p *Path) Resolve(root *node.Node) (*node.Node, bool) {
	if p == nil || len(p.Segments) == 0 || root == nil {
		return nil, false
	}
	if first := p.Segments[0]; first.Name != root.Name() || first.Index != 0 {
		return nil, false
	}
	cur := root
	for _, seg := range p.Segments[1:] {
		seen := 0
		var found *node.Node
		for _, c := range cur.Children() {
			if c.Name() != seg.Name {
				continue
			}
			if seen == seg.Index {
				found = c
				break
			}
			seen++
		}
		if found == nil {
			return nil, false
		}
		cur = found
	}
	return cur, true
}

// Of builds the indexed path of n, disambiguating same-named siblings.
func Of(n *node.Node) *Path {
	var segs []Segment
	for cur := n; cur != nil; cur = cur.Parent() {
		seg := NewSegment(cur.Name())
		if parent := cur.Parent(); parent != nil {
			for _, sib := range parent.Children() {
				if sib == cur {
					break
				}
				if sib.Name() == cur.Name() {
					seg.Index++
				}
			}
		}
		segs = append(segs, seg)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return &Path{Segments: segs}
}
