package lifecycle

import (
	"context"
	"sync"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
)

type job func(ctx context.Context)

// dispatcher is an unbounded FIFO work queue drained by a fixed set of
// workers. It also counts tracked background work so flush can wait for
// both.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []job
	pending int
	idle    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func newDispatcher() *dispatcher {
	d := &dispatcher{idle: make(chan struct{})}
	close(d.idle)
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// begin must be called with mu held.
func (d *dispatcher) begin() {
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
}

func (d *dispatcher) end() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
	d.mu.Unlock()
}

// submit queues j. It reports false once the dispatcher is closed.
func (d *dispatcher) submit(j job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.begin()
	d.jobs = append(d.jobs, j)
	d.cond.Signal()
	return true
}

func (d *dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// track counts work running outside the workers. The returned func marks
// it finished.
func (d *dispatcher) track() func() {
	d.mu.Lock()
	d.begin()
	d.mu.Unlock()
	var once sync.Once
	return func() { once.Do(d.end) }
}

func (d *dispatcher) worker(ctx context.Context, workerID int) {
	defer d.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for {
		d.mu.Lock()
		for len(d.jobs) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.jobs) == 0 {
			d.mu.Unlock()
			logger.Debug("Worker finished.", "workerID", workerID)
			return
		}
		j := d.jobs[0]
		d.jobs[0] = nil
		d.jobs = d.jobs[1:]
		d.mu.Unlock()

		j(ctx)
		d.end()
	}
}

// flush waits until no job is queued or running and no tracked work is
// outstanding.
func (d *dispatcher) flush(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs, lets the workers drain the queue and waits
// for them.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
}
