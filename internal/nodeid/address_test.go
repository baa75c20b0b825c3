package nodeid

import (
	"testing"

	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"root", "root/sys/pci", "root/usb[2]/hid"} {
		p, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, p.String())
	}
	p, _ := Parse("root/usb[0]")
	assert.Equal(t, "root/usb", p.String(), "index zero is implicit")

	var nilPath *Path
	assert.Equal(t, "", nilPath.String())
}

func TestEqual(t *testing.T) {
	a, _ := Parse("root/usb[0]")
	b, _ := Parse("root/usb")
	c, _ := Parse("root/usb[1]")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	var nilPath *Path
	assert.True(t, nilPath.Equal(nil))
}

func mk(t *testing.T, parent *node.Node, name string) *node.Node {
	t.Helper()
	n, err := node.New(node.Args{Name: name})
	require.NoError(t, err)
	if parent != nil {
		require.NoError(t, n.SetParent(parent))
		parent.AppendChild(n)
	}
	return n
}

func TestResolveAndOf(t *testing.T) {
	root := mk(t, nil, "root")
	sys := mk(t, root, "sys")
	usb0 := mk(t, sys, "usb")
	usb1 := mk(t, sys, "usb")
	hid := mk(t, usb1, "hid")

	testCases := []struct {
		raw  string
		want *node.Node
	}{
		{"root", root},
		{"root/sys/usb", usb0},
		{"root/sys/usb[1]", usb1},
		{"root/sys/usb[1]/hid", hid},
		{"root/sys/usb[2]", nil},
		{"other/sys", nil},
		{"root/nope", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			p, err := Parse(tc.raw)
			require.NoError(t, err)
			got, ok := p.Resolve(root)
			assert.Equal(t, tc.want != nil, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, "root/sys/usb[1]/hid", Of(hid).String())
	assert.Equal(t, "root/sys/usb", Of(usb0).String())
	assert.True(t, Of(root).Root())
}
