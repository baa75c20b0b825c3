package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/registry"
)

// CallLog is an ordered, thread-safe record of driver callbacks. Entries look
// like "bind drv root/x".
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Add appends an entry.
func (l *CallLog) Add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

// Calls returns a copy of the entries.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many entries equal call.
func (l *CallLog) Count(call string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Index returns the position of the first entry equal to call, or -1.
func (l *CallLog) Index(call string) int {
	for i, c := range l.Calls() {
		if c == call {
			return i
		}
	}
	return -1
}

// RecordingDriver is a registry.Driver that logs every callback. Optional
// hooks customise the bind and unbind behaviour.
type RecordingDriver struct {
	DriverName string
	Log        *CallLog

	// BindFn, when set, decides the bind result.
	BindFn func(ctx context.Context, dev *node.Node) (any, error)
	// UnbindFn, when set, runs inside Unbind after it is logged.
	UnbindFn func(ctx context.Context, dev *node.Node, cookie any)
	// InitErr is returned by Init.
	InitErr error

	mu      sync.Mutex
	cookies map[string]any
}

// NewRecordingDriver creates a driver logging into log.
func NewRecordingDriver(name string, log *CallLog) *RecordingDriver {
	return &RecordingDriver{DriverName: name, Log: log}
}

// Init implements registry.Driver.
func (d *RecordingDriver) Init(context.Context) error {
	d.Log.Add("init %s", d.DriverName)
	return d.InitErr
}

// Bind implements registry.Driver.
func (d *RecordingDriver) Bind(ctx context.Context, dev *node.Node) (any, error) {
	d.Log.Add("bind %s %s", d.DriverName, dev.Path())
	if d.BindFn != nil {
		return d.BindFn(ctx, dev)
	}
	return "cookie:" + dev.Name(), nil
}

// Unbind implements registry.Driver. It records the cookie it received.
func (d *RecordingDriver) Unbind(ctx context.Context, dev *node.Node, cookie any) {
	d.Log.Add("unbind %s %s", d.DriverName, dev.Path())
	d.mu.Lock()
	if d.cookies == nil {
		d.cookies = make(map[string]any)
	}
	d.cookies[dev.Path()] = cookie
	d.mu.Unlock()
	if d.UnbindFn != nil {
		d.UnbindFn(ctx, dev, cookie)
	}
}

// Release implements registry.Driver.
func (d *RecordingDriver) Release(_ context.Context, dev *node.Node) {
	d.Log.Add("release %s %s", d.DriverName, dev.Path())
}

// UnbindCookie returns the cookie Unbind received for path.
func (d *RecordingDriver) UnbindCookie(path string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cookies[path]
	return c, ok
}

// RecordingBusDriver adds a logged Create to RecordingDriver.
type RecordingBusDriver struct {
	*RecordingDriver
	CreateFn func(ctx context.Context, req registry.CreateRequest) (*node.Node, error)
}

// NewRecordingBusDriver creates a bus-manager driver logging into log. By
// default Create builds a plain node published by the driver.
func NewRecordingBusDriver(name string, log *CallLog) *RecordingBusDriver {
	return &RecordingBusDriver{RecordingDriver: NewRecordingDriver(name, log)}
}

// Create implements registry.BusManager.
func (d *RecordingBusDriver) Create(ctx context.Context, req registry.CreateRequest) (*node.Node, error) {
	d.Log.Add("create %s %s %s", d.DriverName, req.Name, req.Args)
	if d.CreateFn != nil {
		return d.CreateFn(ctx, req)
	}
	return node.New(node.Args{Name: req.Name, Publisher: registry.Ref(d.DriverName)})
}

var (
	_ registry.Driver     = (*RecordingDriver)(nil)
	_ registry.BusManager = (*RecordingBusDriver)(nil)
)
