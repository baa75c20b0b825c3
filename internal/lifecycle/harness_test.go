package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/devhost"
	"github.com/specialistvlad/devmgr/internal/devtree"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/testutil"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	ctx      context.Context
	c        *Coordinator
	log      *testutil.CallLog
	rec      *events.Recorder
	launcher *devhost.LocalLauncher
	logs     *testutil.SafeBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logs := &testutil.SafeBuffer{}
	ctx := testutil.Context(logs)
	rec := events.NewRecorder(0)
	launcher := devhost.NewLocalLauncher()
	c := New(ctx, devtree.New(), registry.New(nil), Options{Events: rec, Launcher: launcher})
	t.Cleanup(c.Close)
	return &harness{t: t, ctx: ctx, c: c, log: &testutil.CallLog{}, rec: rec, launcher: launcher, logs: logs}
}

func (h *harness) driver(name string) *testutil.RecordingDriver {
	return testutil.NewRecordingDriver(name, h.log)
}

func (h *harness) register(drv registry.Driver, name string, program bind.Program) {
	h.t.Helper()
	require.NoError(h.t, h.c.RegisterDriver(h.ctx, registry.NewDescriptor(name, drv, program, 0)))
}

func (h *harness) add(parent *node.Node, name string, proto protocol.ID) *node.Node {
	h.t.Helper()
	n, err := h.c.AddDevice(h.ctx, parent, node.Args{Name: name, ProtoID: proto})
	require.NoError(h.t, err)
	return n
}

func (h *harness) root() *node.Node {
	return h.c.Tree().Root()
}

func (h *harness) flush() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.c.Flush(ctx))
}

func (h *harness) remove(n *node.Node) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.c.RequestRemove(ctx, n))
}

// teardown returns only the unbind and release entries of the call log.
func (h *harness) teardown() []string {
	var out []string
	for _, c := range h.log.Calls() {
		if strings.HasPrefix(c, "unbind ") || strings.HasPrefix(c, "release ") {
			out = append(out, c)
		}
	}
	return out
}

func waitDone(t *testing.T, n *node.Node) {
	t.Helper()
	select {
	case <-n.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("device %s never reached REMOVED", n.Path())
	}
}

var always = bind.Program{bind.Always()}
