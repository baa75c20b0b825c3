package events

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusStampsAndFansOut(t *testing.T) {
	a, b := NewRecorder(0), NewRecorder(0)
	bus := NewBus(a)
	bus.Attach(b)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	bus.Log(Event{Kind: KindActive, Path: "root/x"})

	require.Len(t, a.Events(), 1)
	assert.Equal(t, fixed, a.Events()[0].Timestamp)
	assert.Equal(t, a.Events(), b.Events())

	var nilBus *Bus
	assert.NotPanics(t, func() { nilBus.Log(Event{}) })
}

func TestRecorderLimit(t *testing.T) {
	r := NewRecorder(2)
	for _, k := range []Kind{KindActive, KindBound, KindRemoved} {
		r.Log(Event{Kind: k, Path: "p"})
	}
	assert.Equal(t, []Kind{KindBound, KindRemoved}, r.Kinds("p"))
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	j, err := OpenJournal(path)
	require.NoError(t, err)

	ts := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)
	j.Log(Event{Kind: KindActive, Timestamp: ts, DeviceID: "1", Path: "root/a", Protocol: 9})
	j.Log(Event{Kind: KindBound, Timestamp: ts, DeviceID: "1", Path: "root/a", Driver: "gen"})
	j.Log(Event{Kind: KindRemoved, Timestamp: ts, DeviceID: "2", Path: "root/b"})
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	j.Log(Event{Kind: KindActive})
	assert.Zero(t, j.WriteErrors())

	r, err := OpenReader(path, Filter{DeviceID: "1"})
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, KindActive, first.Kind)
	assert.True(t, ts.Equal(first.Timestamp), "nanosecond timestamps survive")
	assert.Equal(t, uint32(9), first.Protocol)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "gen", second.Driver)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncodeUsesIntegerKeys(t *testing.T) {
	data, err := Encode(Event{Kind: KindRemoved, Path: "root/x"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "path")

	ev, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "root/x", ev.Path)
	assert.Equal(t, KindRemoved, ev.Kind)
}

func TestPublisherSkipsHidden(t *testing.T) {
	var got []Event
	closed := 0
	p := newPublisher(func(ev Event) { got = append(got, ev) }, func() { closed++ })

	p.Log(Event{Kind: KindActive, Path: "root/eth0"})
	p.Log(Event{Kind: KindActive, Path: "root/eth0/inst", Hidden: true})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	p.Log(Event{Kind: KindRemoved, Path: "root/eth0"})

	require.Len(t, got, 1)
	assert.Equal(t, "root/eth0", got[0].Path)
	assert.Equal(t, 1, p.Sent())
	assert.Equal(t, 1, closed)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "BOUND", KindBound.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.Equal(t, "UNBOUND root/a driver=d", Event{Kind: KindUnbound, Path: "root/a", Driver: "d"}.String())
}
