package console

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/devtree"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/specialistvlad/devmgr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shell struct {
	t   *testing.T
	ctx context.Context
	c   *lifecycle.Coordinator
	rec *events.Recorder
	log *testutil.CallLog
}

func newShell(t *testing.T) *shell {
	t.Helper()
	ctx := testutil.Context(nil)
	rec := events.NewRecorder(0)
	c := lifecycle.New(ctx, devtree.New(), registry.New(nil), lifecycle.Options{Events: rec})
	t.Cleanup(c.Close)

	log := &testutil.CallLog{}
	pci := bind.Program{bind.Equal(props.KeyProtocol, uint32(protocol.PCI))}
	platform := bind.Program{bind.Equal(props.KeyProtocol, uint32(protocol.PlatformBus))}
	require.NoError(t, c.RegisterDriver(ctx, registry.NewDescriptor("pcidrv", testutil.NewRecordingDriver("pcidrv", log), pci, 0)))
	require.NoError(t, c.RegisterDriver(ctx, registry.NewDescriptor("pbus", testutil.NewRecordingBusDriver("pbus", log), platform, registry.FlagBusManager)))
	return &shell{t: t, ctx: ctx, c: c, rec: rec, log: log}
}

func (s *shell) run(line string) (string, error) {
	var out bytes.Buffer
	err := Exec(s.ctx, s.c, s.rec, &out, line)
	return out.String(), err
}

func (s *shell) must(line string) string {
	s.t.Helper()
	out, err := s.run(line)
	require.NoError(s.t, err, line)
	return out
}

func TestAddBindsAndRemoves(t *testing.T) {
	s := newShell(t)

	assert.Equal(t, "added root/nic (bound to pcidrv)\n", s.must("add root nic protocol=pci,vid=0x8086"))
	assert.Equal(t, "added root/blob (unbound)\n", s.must("add root blob"))

	tree := s.must("tree")
	assert.Contains(t, tree, "name: nic")
	assert.Contains(t, tree, "driver: pcidrv")

	assert.Equal(t, "removed root/nic\n", s.must("remove root/nic"))
	assert.Equal(t, 1, s.log.Count("release pcidrv root/nic"))
}

func TestUnbindAndRebind(t *testing.T) {
	s := newShell(t)
	s.must("add root nic protocol=pci")

	assert.Equal(t, "unbound root/nic from pcidrv\n", s.must("unbind root/nic"))
	_, err := s.run("unbind root/nic")
	assert.ErrorContains(t, err, "has no driver")

	assert.Equal(t, "root/nic bound to pcidrv\n", s.must("rebind root/nic"))
	assert.Equal(t, 2, s.log.Count("bind pcidrv root/nic"))
}

func TestBusDev(t *testing.T) {
	s := newShell(t)
	out := s.must("busdev root pbus uart0 baud=1")
	assert.Contains(t, out, "created root/uart0 in host ")
	assert.Equal(t, 1, s.log.Count("create pbus uart0 baud=1"))

	_, err := s.run("busdev root pcidrv other")
	assert.True(t, errors.Is(err, status.ErrInvalidArgs), "got %v", err)
}

func TestDriversAndEvents(t *testing.T) {
	s := newShell(t)
	s.must("add root nic protocol=pci")

	drivers := s.must("drivers")
	assert.Regexp(t, `pcidrv\s+false\s+1\s+`, drivers)
	assert.Regexp(t, `pbus\s+true\s+0\s+`, drivers)

	evs := s.must("events root/nic")
	assert.Contains(t, evs, "ACTIVE root/nic")
	assert.Contains(t, evs, "BOUND root/nic driver=pcidrv")
}

func TestUnregister(t *testing.T) {
	s := newShell(t)
	s.must("add root nic protocol=pci")

	_, err := s.run("unregister pcidrv")
	assert.True(t, errors.Is(err, status.ErrDriverBusy), "got %v", err)
	s.must("remove root/nic")
	assert.Equal(t, "unregistered pcidrv\n", s.must("unregister pcidrv"))
}

func TestCommandErrors(t *testing.T) {
	s := newShell(t)
	testCases := []struct {
		line string
		want string
	}{
		{"frobnicate", "unknown command: frobnicate"},
		{"add root", "usage: add"},
		{"remove", "usage: remove"},
		{"remove root/missing", "not found"},
		{"add root x colour=1", "unknown property"},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			_, err := s.run(tc.line)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	out, err := s.run("   ")
	assert.NoError(t, err)
	assert.Empty(t, out)

	_, err = s.run("quit")
	assert.True(t, errors.Is(err, errQuit))
}
