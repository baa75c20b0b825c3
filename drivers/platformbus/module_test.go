package platformbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/devmgr/internal/devtree"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/specialistvlad/devmgr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (context.Context, *lifecycle.Coordinator, *Driver) {
	t.Helper()
	ctx := testutil.Context(nil)
	reg := registry.New(nil)
	(&Module{}).Register(reg)
	c := lifecycle.New(ctx, devtree.New(), reg, lifecycle.Options{})
	t.Cleanup(c.Close)

	descs := reg.Descriptors()
	require.Len(t, descs, 1)
	require.NoError(t, c.RegisterDriver(ctx, descs[0]))
	drv, ok := descs[0].Ops().(*Driver)
	require.True(t, ok)
	return ctx, c, drv
}

func flush(t *testing.T, ctx context.Context, c *lifecycle.Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Flush(ctx))
}

func TestBindsPlatformBus(t *testing.T) {
	ctx, c, drv := setup(t)
	bus, err := c.AddDevice(ctx, c.Tree().Root(), node.Args{Name: "platform", ProtoID: protocol.PlatformBus})
	require.NoError(t, err)
	_, err = c.AddDevice(ctx, c.Tree().Root(), node.Args{Name: "other", ProtoID: protocol.PCI})
	require.NoError(t, err)
	flush(t, ctx, c)

	assert.Equal(t, []string{"root/platform"}, drv.Bound())
	owner, cookie := bus.Owner()
	require.NotNil(t, owner)
	assert.Equal(t, Name, owner.Name())
	assert.Equal(t, &Bus{Path: "root/platform"}, cookie)

	require.NoError(t, c.RequestRemove(ctx, bus))
	assert.Empty(t, drv.Bound())
}

func TestCreateBusDevice(t *testing.T) {
	ctx, c, drv := setup(t)
	rsrc := c.Resources().Mint()

	dev, err := c.CreateBusDevice(ctx, c.Tree().Root(), Name, "uart0", "vid=0x10,did=0x20", rsrc)
	require.NoError(t, err)
	assert.Equal(t, node.Active, dev.State())
	assert.Equal(t, 1, drv.Created())
	assert.NotEmpty(t, dev.HostID())

	v, ok := dev.Props().Get(props.KeyVendorID)
	require.True(t, ok)
	assert.Equal(t, uint32(0x10), v)

	pd, ok := dev.Ctx().(*Device)
	require.True(t, ok)
	assert.Equal(t, "vid=0x10,did=0x20", pd.Args)
	assert.Equal(t, dev.HostID(), pd.HostID)

	require.NoError(t, c.RequestRemove(ctx, dev))
	assert.True(t, rsrc.Closed(), "release closes the handle the device was created with")
}

func TestCreateBusDeviceKeepsRootResource(t *testing.T) {
	ctx, c, _ := setup(t)
	dev, err := c.CreateBusDevice(ctx, c.Tree().Root(), Name, "rtc", "", c.Resources().Root())
	require.NoError(t, err)
	require.NoError(t, c.RequestRemove(ctx, dev))
	assert.False(t, c.Resources().Root().Closed())
}

func TestCreateBusDeviceBadArgs(t *testing.T) {
	ctx, c, drv := setup(t)
	before := c.Tree().Count()
	_, err := c.CreateBusDevice(ctx, c.Tree().Root(), Name, "bad", "vid", c.Resources().Mint())
	assert.True(t, errors.Is(err, status.ErrInvalidArgs), "got %v", err)
	assert.Equal(t, before, c.Tree().Count())
	assert.Equal(t, 0, drv.Created())
}
