package sink

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/armmirror/internal/arm"
)

// DefaultInterval is the shortest gap between two sends to a sink.
const DefaultInterval = 50 * time.Millisecond

// Dispatcher fans arm state out to a set of sinks at a bounded rate.
// Offers that arrive faster than the interval are coalesced and only the
// latest state is sent.
type Dispatcher struct {
	interval time.Duration

	// sendMu serializes flushes so sinks see states in the order offered.
	sendMu sync.Mutex

	mu      sync.Mutex
	sinks   map[string]Sink
	pending *arm.State
	errors  map[string]string
}

// NewDispatcher creates a dispatcher. A non-positive interval uses DefaultInterval.
func NewDispatcher(interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		interval: interval,
		sinks:    make(map[string]Sink),
		errors:   make(map[string]string),
	}
}

// Add registers a sink, replacing and closing any sink with the same name.
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	old := d.sinks[s.Name()]
	d.sinks[s.Name()] = s
	delete(d.errors, s.Name())
	d.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("Failed to close sink %s: %v", old.Name(), err)
		}
	}
}

// Remove closes and unregisters a sink. It reports whether the sink existed.
func (d *Dispatcher) Remove(name string) bool {
	d.mu.Lock()
	s, ok := d.sinks[name]
	delete(d.sinks, name)
	delete(d.errors, name)
	d.mu.Unlock()

	if ok {
		if err := s.Close(); err != nil {
			log.Printf("Failed to close sink %s: %v", name, err)
		}
	}
	return ok
}

// Names returns the registered sink names in order.
func (d *Dispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.sinks))
	for n := range d.sinks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LastError returns the most recent send error of a sink, if any.
func (d *Dispatcher) LastError(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errors[name]
}

// Offer queues a state for the next send, replacing any queued state.
func (d *Dispatcher) Offer(state arm.State) {
	d.mu.Lock()
	d.pending = &state
	d.mu.Unlock()
}

// Run sends queued state until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush sends the queued state, if any, to every sink now. Concurrent
// flushes run one after another.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	d.mu.Lock()
	state := d.pending
	d.pending = nil
	sinks := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		sinks = append(sinks, s)
	}
	d.mu.Unlock()

	if state == nil {
		return
	}

	for _, s := range sinks {
		err := s.Send(ctx, *state)

		d.mu.Lock()
		prev := d.errors[s.Name()]
		if err != nil {
			d.errors[s.Name()] = err.Error()
		} else {
			delete(d.errors, s.Name())
		}
		d.mu.Unlock()

		// Log transitions only, not every failed frame.
		if err != nil && prev == "" {
			log.Printf("Sink %s failed: %v", s.Name(), err)
		} else if err == nil && prev != "" {
			log.Printf("Sink %s recovered", s.Name())
		}
	}
}

// Close closes every sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	sinks := d.sinks
	d.sinks = make(map[string]Sink)
	d.mu.Unlock()

	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
