package props

import (
	"errors"
	"testing"

	"github.com/specialistvlad/devmgr/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	s := New(Prop{KeyVendorID, 0x8086}, Prop{KeyDeviceID, 0x100e})

	v, ok := s.Get(KeyVendorID)
	require.True(t, ok)
	assert.Equal(t, uint32(0x8086), v)

	_, ok = s.Get(KeyClass)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyVendorID, 0x10ec))
	require.NoError(t, s.Set(KeyClass, 2))
	assert.Equal(t, []Prop{{KeyVendorID, 0x10ec}, {KeyDeviceID, 0x100e}, {KeyClass, 2}}, s.All())
}

func TestDuplicateKeysCollapse(t *testing.T) {
	s := New(Prop{KeyProtocol, 1}, Prop{KeyClass, 3}, Prop{KeyProtocol, 5})
	assert.Equal(t, 2, s.Len())
	v, _ := s.Get(KeyProtocol)
	assert.Equal(t, uint32(5), v)
}

func TestFrozenRejectsMutation(t *testing.T) {
	s := New(Prop{KeyProtocol, 5})
	s.Freeze()
	s.Freeze()

	err := s.Set(KeyProtocol, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidState))

	v, _ := s.Get(KeyProtocol)
	assert.Equal(t, uint32(5), v, "frozen value must not change")
}

func TestReservedKey(t *testing.T) {
	err := New().Set(KeyInvalid, 1)
	assert.True(t, errors.Is(err, status.ErrInvalidArgs))
}

func TestCloneIsIndependent(t *testing.T) {
	s := New(Prop{KeyProtocol, 5})
	s.Freeze()

	c := s.Clone()
	assert.False(t, c.Frozen())
	require.NoError(t, c.Set(KeyProtocol, 9))

	v, _ := s.Get(KeyProtocol)
	assert.Equal(t, uint32(5), v)
}

func TestKeyNames(t *testing.T) {
	k, ok := KeyByName("vid")
	require.True(t, ok)
	assert.Equal(t, KeyVendorID, k)
	assert.Equal(t, "vid", k.String())

	_, ok = KeyByName("nope")
	assert.False(t, ok)

	assert.True(t, (KeyUserBase + 3).Valid())
	assert.Equal(t, "user+3", (KeyUserBase + 3).String())
	assert.False(t, Key(900).Valid())
	assert.Equal(t, "protocol", KeyNames()[0])
}

func TestNilSetReads(t *testing.T) {
	var s *Set
	_, ok := s.Get(KeyProtocol)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
	assert.Nil(t, s.All())
}
