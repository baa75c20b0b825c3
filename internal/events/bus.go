package events

import (
	"sync"
	"time"
)

// Bus delivers each published event to every attached sink, in attach
// order. It is safe for concurrent use.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	now   func() time.Time
}

// NewBus creates a bus with the given sinks attached.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks, now: time.Now}
}

// Attach adds a sink.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Log stamps ev if it has no timestamp and hands it to every sink.
func (b *Bus) Log(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Log(ev)
	}
}

var _ Sink = (*Bus)(nil)

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder creates a recorder. A positive limit keeps only the most
// recent events.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Log records ev.
func (r *Recorder) Log(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds recorded for path, in order.
func (r *Recorder) Kinds(path string) []Kind {
	var out []Kind
	for _, ev := range r.Events() {
		if ev.Path == path {
			out = append(out, ev.Kind)
		}
	}
	return out
}
