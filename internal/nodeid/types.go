package nodeid

// Segment is one component of a device path, e.g. `usb[1]`.
type Segment struct {
	Name  string
	Index int // 0 when no index is written.
}

// NewSegment creates a segment selecting the first sibling named name.
func NewSegment(name string) Segment {
	return Segment{Name: name}
}

// NewSegmentWithIndex creates a segment selecting the index-th sibling.
func NewSegmentWithIndex(name string, index int) Segment {
	return Segment{Name: name, Index: index}
}

// Path is the structured form of a device path.
type Path struct {
	Segments []Segment
}

// Root reports whether the path names only the tree root.
func (p *Path) Root() bool {
	return p != nil && len(p.Segments) == 1
}
