package events

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	journalEncMode cbor.EncMode
	journalDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	journalEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	journalDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR decoder mode: %v", err))
	}
}

// Encode encodes ev to CBOR.
func Encode(ev Event) ([]byte, error) {
	return journalEncMode.Marshal(ev)
}

// Decode decodes one CBOR event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := journalDecMode.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Journal appends events to a file as a stream of CBOR items. It is safe
// for concurrent use.
type Journal struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	errs    int
}

// OpenJournal opens path for appending, creating it with mode 0644.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, encoder: journalEncMode.NewEncoder(f)}, nil
}

// Log appends ev. Write errors are counted, not returned.
func (j *Journal) Log(ev Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	if err := j.encoder.Encode(ev); err != nil {
		j.errs++
	}
}

// WriteErrors returns how many events failed to be written.
func (j *Journal) WriteErrors() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errs
}

// Close closes the file. Later Log calls are ignored.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

var _ Sink = (*Journal)(nil)

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	Kind     Kind
	DeviceID string
	Driver   string
}

func (f Filter) matches(ev Event) bool {
	if f.Kind != 0 && ev.Kind != f.Kind {
		return false
	}
	if f.DeviceID != "" && ev.DeviceID != f.DeviceID {
		return false
	}
	if f.Driver != "" && ev.Driver != f.Driver {
		return false
	}
	return true
}

// Reader iterates over a journal file.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// OpenReader opens the journal at path.
func OpenReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Reader{closer: f, decoder: journalDecMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end.
func (r *Reader) Next() (Event, error) {
	for {
		var ev Event
		if err := r.decoder.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(ev) {
			return ev, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.closer.Close()
}
