package watcher

import (
	"sync"
	"time"
)

// Op is the kind of change seen on a note file
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Event is a debounced change to one note file
type Event struct {
	Path string // slash-separated, relative to the workspace root
	Op   Op
	At   time.Time
}

// Debouncer collapses bursts of events per path into one
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvent
	output  chan Event
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewDebouncer creates a debouncer that emits delay after the last event
// for a path
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		output:  make(chan Event, 100),
		stopCh:  make(chan struct{}),
	}
}

// Events returns the channel of debounced events. It is closed by Stop.
func (d *Debouncer) Events() <-chan Event {
	return d.output
}

// Add records op for path and restarts its quiet period
func (d *Debouncer) Add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := time.Now()
	p, exists := d.pending[path]
	if !exists {
		d.pending[path] = &pendingEvent{
			event: Event{Path: path, Op: op, At: now},
			timer: time.AfterFunc(d.delay, func() { d.emit(path) }),
		}
		return
	}

	p.timer.Stop()
	merged, keep := coalesce(p.event.Op, op)
	if !keep {
		delete(d.pending, path)
		return
	}
	p.event.Op = merged
	p.event.At = now
	p.timer = time.AfterFunc(d.delay, func() { d.emit(path) })
}

// coalesce folds a new op into a pending one. keep is false when the pair
// cancels out.
//
//	CREATE + WRITE  = CREATE
//	CREATE + REMOVE = nothing (the file came and went)
//	REMOVE + CREATE = WRITE   (editor replaced the file)
//	any    + REMOVE = REMOVE
func coalesce(prev, next Op) (op Op, keep bool) {
	switch {
	case prev == OpCreate && next == OpRemove:
		return 0, false
	case next == OpRemove:
		return OpRemove, true
	case prev == OpRemove && next == OpCreate:
		return OpWrite, true
	case prev == OpCreate:
		return OpCreate, true
	default:
		return next, true
	}
}

func (d *Debouncer) emit(path string) {
	d.mu.Lock()
	p, exists := d.pending[path]
	if !exists || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	select {
	case d.output <- p.event:
	case <-d.stopCh:
	}
}

// Flush emits every pending event now
func (d *Debouncer) Flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.pending))
	for path, p := range d.pending {
		p.timer.Stop()
		paths = append(paths, path)
	}
	d.mu.Unlock()

	for _, path := range paths {
		d.emit(path)
	}
}

// Stop drops pending events and closes the output channel
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pending = make(map[string]*pendingEvent)
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	close(d.output)
}

// PendingCount returns the number of paths waiting to be emitted
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
