package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDriver) Bind(ctx context.Context, dev *node.Node) (any, error) {
	args := m.Called(ctx, dev)
	return args.Get(0), args.Error(1)
}

func (m *mockDriver) Unbind(ctx context.Context, dev *node.Node, cookie any) {
	m.Called(ctx, dev, cookie)
}

func (m *mockDriver) Release(ctx context.Context, dev *node.Node) {
	m.Called(ctx, dev)
}

type unloadingDriver struct {
	mockDriver
}

func (u *unloadingDriver) Unload(ctx context.Context) {
	u.Called(ctx)
}

type busDriver struct {
	mockDriver
}

func (b *busDriver) Create(ctx context.Context, req CreateRequest) (*node.Node, error) {
	args := b.Called(ctx, req)
	n, _ := args.Get(0).(*node.Node)
	return n, args.Error(1)
}

type counter map[string]int

func (c counter) OwnedBy(name string) int { return c[name] }

var anyProgram = bind.Program{bind.Always()}

func TestRegisterCallsInitOnce(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	drv := new(mockDriver)
	drv.On("Init", mock.Anything).Return(nil).Once()

	require.NoError(t, r.Register(ctx, NewDescriptor("d", drv, anyProgram, 0)))
	err := r.Register(ctx, NewDescriptor("d", drv, anyProgram, 0))
	assert.True(t, errors.Is(err, status.ErrAlreadyExists))

	require.NoError(t, r.Unregister(ctx, "d"))
	require.NoError(t, r.Register(ctx, NewDescriptor("d", drv, anyProgram, 0)), "re-registration after unregister skips init")

	drv.AssertNumberOfCalls(t, "Init", 1)
}

func TestRegisterInitFailure(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	drv := new(mockDriver)
	boom := errors.New("no hardware")
	drv.On("Init", mock.Anything).Return(boom).Once()

	err := r.Register(ctx, NewDescriptor("d", drv, anyProgram, 0))
	assert.ErrorIs(t, err, boom)
	_, ok := r.Lookup("d")
	assert.False(t, ok)
	assert.Empty(t, r.Drivers())
}

func TestRegisterInvalidProgram(t *testing.T) {
	r := New(nil)
	drv := new(mockDriver)

	err := r.Register(context.Background(), NewDescriptor("d", drv, bind.Program{}, 0))
	assert.True(t, errors.Is(err, status.ErrInvalidProgram))
	_, ok := r.Lookup("d")
	assert.False(t, ok)
	drv.AssertNotCalled(t, "Init", mock.Anything)
}

func TestRegisterBusManagerFlag(t *testing.T) {
	ctx := context.Background()
	r := New(nil)

	plain := new(mockDriver)
	err := r.Register(ctx, NewDescriptor("plain", plain, anyProgram, FlagBusManager))
	assert.True(t, errors.Is(err, status.ErrInvalidArgs))

	bus := new(busDriver)
	bus.On("Init", mock.Anything).Return(nil)
	d := NewDescriptor("bus", bus, anyProgram, FlagBusManager)
	require.NoError(t, r.Register(ctx, d))
	bm, ok := d.BusManager()
	assert.True(t, ok)
	assert.NotNil(t, bm)
}

func TestDriversKeepRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		drv := new(mockDriver)
		drv.On("Init", mock.Anything).Return(nil)
		require.NoError(t, r.Register(ctx, NewDescriptor(name, drv, anyProgram, 0)))
	}
	require.NoError(t, r.Unregister(ctx, "alpha"))

	var names []string
	for _, d := range r.Drivers() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"zeta", "mid"}, names)
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	owned := counter{"busy": 2}
	r := New(owned)

	busy := new(mockDriver)
	busy.On("Init", mock.Anything).Return(nil)
	require.NoError(t, r.Register(ctx, NewDescriptor("busy", busy, anyProgram, 0)))
	err := r.Unregister(ctx, "busy")
	assert.True(t, errors.Is(err, status.ErrDriverBusy))
	_, ok := r.Lookup("busy")
	assert.True(t, ok)

	err = r.Unregister(ctx, "ghost")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	idle := new(unloadingDriver)
	idle.On("Init", mock.Anything).Return(nil)
	idle.On("Unload", mock.Anything).Return().Once()
	require.NoError(t, r.Register(ctx, NewDescriptor("idle", idle, anyProgram, 0)))
	require.NoError(t, r.Unregister(ctx, "idle"))
	idle.AssertExpectations(t)
}

func TestConcurrentRegisterSameName(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	drv := new(mockDriver)
	drv.On("Init", mock.Anything).Return(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register(ctx, NewDescriptor("d", drv, anyProgram, 0)) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	drv.AssertNumberOfCalls(t, "Init", 1)
}

func TestRegisterBuiltinPanicsOnDuplicate(t *testing.T) {
	r := New(nil)
	r.RegisterBuiltin("x", &Builtin{Driver: new(mockDriver)})
	assert.Panics(t, func() { r.RegisterBuiltin("x", &Builtin{Driver: new(mockDriver)}) })
}

func TestValidateRegistry(t *testing.T) {
	ctx := context.Background()
	program := bind.Program{bind.Equal(props.KeyVendorID, 1)}

	t.Run("parity ok", func(t *testing.T) {
		r := New(nil)
		r.RegisterBuiltin("a", &Builtin{Driver: new(mockDriver)})
		r.RegisterBuiltin("b", &Builtin{Driver: new(mockDriver), Program: anyProgram})
		r.PopulateDefinitions(map[string]*Definition{"a": {Name: "a", Program: program}})
		require.NoError(t, r.ValidateRegistry(ctx))

		ds := r.Descriptors()
		require.Len(t, ds, 2)
		assert.Equal(t, program, ds[0].Program(), "manifest program wins")
	})

	t.Run("mismatches are aggregated", func(t *testing.T) {
		r := New(nil)
		r.RegisterBuiltin("noprog", &Builtin{Driver: new(mockDriver)})
		r.RegisterBuiltin("flagged", &Builtin{Driver: new(mockDriver), Program: anyProgram, Flags: FlagBusManager})
		r.PopulateDefinitions(map[string]*Definition{"ghost": {Name: "ghost", Program: program, Source: "ghost.hcl"}})

		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "registry validation failed:")
		assert.Contains(t, err.Error(), "driver 'ghost': manifest ghost.hcl declares a driver that is not compiled in")
		assert.Contains(t, err.Error(), "driver 'noprog': no manifest and no builtin binding program")
		assert.Contains(t, err.Error(), "driver 'flagged': flagged bus_manager")
	})
}
