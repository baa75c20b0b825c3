package node

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner string

func (f fakeOwner) Name() string { return string(f) }

func TestNew(t *testing.T) {
	in := []props.Prop{{Key: props.KeyVendorID, Value: 1}}
	n, err := New(Args{Name: "eth0", ProtoID: protocol.Ethernet, Props: in})
	require.NoError(t, err)

	assert.Equal(t, Created, n.State())
	assert.NotEmpty(t, n.ID())
	assert.True(t, n.Bindable())

	v, ok := n.Props().Get(props.KeyProtocol)
	require.True(t, ok, "protocol id is mirrored into the property set")
	assert.Equal(t, uint32(protocol.Ethernet), v)

	in[0].Value = 99
	v, _ = n.Props().Get(props.KeyVendorID)
	assert.Equal(t, uint32(1), v, "properties are copied by value")
}

func TestNewExplicitProtocolPropWins(t *testing.T) {
	n, err := New(Args{Name: "x", ProtoID: protocol.USB, Props: []props.Prop{{Key: props.KeyProtocol, Value: 5}}})
	require.NoError(t, err)
	v, _ := n.Props().Get(props.KeyProtocol)
	assert.Equal(t, uint32(5), v)
}

func TestNewRejectsBadArgs(t *testing.T) {
	testCases := []struct {
		name string
		args Args
	}{
		{"empty name", Args{}},
		{"long name", Args{Name: strings.Repeat("a", MaxNameLen+1)}},
		{"busdev without driver", Args{Name: "b", Flags: BusDev}},
		{"bad key", Args{Name: "k", Props: []props.Prop{{Key: props.Key(500), Value: 1}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.args)
			assert.True(t, errors.Is(err, status.ErrInvalidArgs), "got %v", err)
		})
	}

	_, err := New(Args{Name: strings.Repeat("a", MaxNameLen)})
	assert.NoError(t, err)
}

func TestTransitions(t *testing.T) {
	n, err := New(Args{Name: "dev"})
	require.NoError(t, err)

	require.NoError(t, n.Transition(Created, PendingAdd))
	require.NoError(t, n.Transition(PendingAdd, Active))
	assert.True(t, n.Matchable())

	err = n.Transition(Active, Removed)
	assert.True(t, errors.Is(err, status.ErrInvalidState), "ACTIVE must pass through UNBINDING")

	err = n.Transition(PendingAdd, Active)
	assert.ErrorContains(t, err, "expected PENDING_ADD, found ACTIVE")

	require.NoError(t, n.Transition(Active, Unbinding))
	select {
	case <-n.Done():
		t.Fatal("done closed before REMOVED")
	default:
	}
	require.NoError(t, n.Transition(Unbinding, Removed))
	select {
	case <-n.Done():
		t.Fatal("done closed before release")
	default:
	}
	n.Release(func() {})
	<-n.Done()

	assert.Error(t, n.Transition(Removed, Active))
}

func TestMatchable(t *testing.T) {
	n, _ := New(Args{Name: "a", Flags: NonBindable})
	_ = n.Transition(Created, PendingAdd)
	_ = n.Transition(PendingAdd, Active)
	assert.False(t, n.Matchable())

	m, _ := New(Args{Name: "b"})
	_ = m.Transition(Created, PendingAdd)
	_ = m.Transition(PendingAdd, Active)
	assert.True(t, m.Matchable())
	assert.True(t, m.BeginRemoval())
	assert.False(t, m.BeginRemoval())
	assert.False(t, m.Matchable())
}

func TestSetParentOnce(t *testing.T) {
	p, _ := New(Args{Name: "p"})
	c, _ := New(Args{Name: "c"})
	require.NoError(t, c.SetParent(p))
	assert.Equal(t, "p/c", c.Path())
	assert.True(t, errors.Is(c.SetParent(p), status.ErrInvalidState))
}

func TestOwner(t *testing.T) {
	n, _ := New(Args{Name: "n"})
	require.NoError(t, n.SetOwner(fakeOwner("a"), "cookie"))
	assert.Error(t, n.SetOwner(fakeOwner("b"), nil))

	o, c := n.Owner()
	assert.Equal(t, "a", o.Name())
	assert.Equal(t, "cookie", c)

	o, c = n.ClearOwner()
	assert.Equal(t, "a", o.Name())
	assert.Equal(t, "cookie", c)
	o, _ = n.Owner()
	assert.Nil(t, o)
}

func TestTried(t *testing.T) {
	n, _ := New(Args{Name: "n"})
	assert.True(t, n.MarkTried("d"))
	assert.False(t, n.MarkTried("d"))
	assert.True(t, n.Tried("d"))
	n.ForgetTried()
	assert.False(t, n.Tried("d"))
}

func TestChildren(t *testing.T) {
	p, _ := New(Args{Name: "p"})
	a, _ := New(Args{Name: "a"})
	b, _ := New(Args{Name: "b"})
	p.AppendChild(a)
	p.AppendChild(b)
	assert.Equal(t, []*Node{a, b}, p.Children())
	assert.True(t, p.RemoveChild(a))
	assert.False(t, p.RemoveChild(a))
	assert.Equal(t, []*Node{b}, p.Children())
}

func TestReleaseTwiceIsFatal(t *testing.T) {
	n, _ := New(Args{Name: "n"})
	calls := 0
	n.Release(func() { calls++ })

	assert.PanicsWithValue(t, &status.FatalError{Msg: `device "n" (` + n.ID() + `) released twice`}, func() {
		n.Release(func() { calls++ })
	})
	assert.Equal(t, 1, calls)
}

func TestConcurrentBeginRemoval(t *testing.T) {
	n, _ := New(Args{Name: "n"})
	var wins sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wins.Add(1)
		go func() {
			defer wins.Done()
			if n.BeginRemoval() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wins.Wait()
	assert.Equal(t, 1, winners)
}
