package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	id, ok := ByName("usb")
	require.True(t, ok)
	assert.Equal(t, USB, id)
	assert.Equal(t, "usb", id.String())

	_, ok = ByName("warp_drive")
	assert.False(t, ok)
}

func TestUnknownIDString(t *testing.T) {
	assert.Equal(t, "0x00000005", ID(5).String())
}

func TestTableMatchesNames(t *testing.T) {
	table := Table()
	assert.Len(t, table, len(Names()))
	for _, n := range Names() {
		id, ok := table[n]
		require.True(t, ok, n)
		assert.Equal(t, n, id.String())
	}
}
