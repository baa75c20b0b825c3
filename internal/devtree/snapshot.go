package devtree

import (
	"fmt"
	"io"

	"github.com/specialistvlad/devmgr/internal/node"
	"gopkg.in/yaml.v3"
)

// Snapshot is a point-in-time view of a subtree.
type Snapshot struct {
	Name     string            `yaml:"name"`
	ID       string            `yaml:"id,omitempty"`
	State    string            `yaml:"state"`
	Protocol string            `yaml:"protocol,omitempty"`
	Driver   string            `yaml:"driver,omitempty"`
	Host     string            `yaml:"host,omitempty"`
	Props    map[string]uint32 `yaml:"props,omitempty"`
	Children []Snapshot        `yaml:"children,omitempty"`
}

// Snapshot captures the whole tree.
func (t *Tree) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshotOf(t.root)
}

func snapshotOf(n *node.Node) Snapshot {
	s := Snapshot{
		Name:  n.Name(),
		ID:    n.ID(),
		State: n.State().String(),
		Host:  n.HostID(),
	}
	if id, _ := n.Protocol(); id != 0 {
		s.Protocol = id.String()
	}
	if o, _ := n.Owner(); o != nil {
		s.Driver = o.Name()
	}
	if all := n.Props().All(); len(all) > 0 {
		s.Props = make(map[string]uint32, len(all))
		for _, p := range all {
			s.Props[p.Key.String()] = p.Value
		}
	}
	for _, c := range n.Children() {
		s.Children = append(s.Children, snapshotOf(c))
	}
	return s
}

// WriteYAML renders the tree snapshot as YAML.
func (t *Tree) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t.Snapshot()); err != nil {
		return fmt.Errorf("encode device tree: %w", err)
	}
	return enc.Close()
}
