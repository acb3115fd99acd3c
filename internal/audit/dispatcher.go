package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events instead of blocking the caller when the
	// buffer has no room.
	DropIfFull bool
}

// Dispatcher relays events to a sink from one goroutine, so sinks need not
// be safe for concurrent use. A nil *Dispatcher discards everything.
type Dispatcher struct {
	sink Sink
	drop bool

	mu     sync.RWMutex
	queue  chan Event
	closed bool

	drained chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:    sink,
		drop:    cfg.DropIfFull,
		queue:   make(chan Event, max(cfg.BufferSize, 1)),
		drained: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.drained)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. Without DropIfFull it waits for buffer space or ctx.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.drop {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close rejects further events and returns once the buffer has been
// flushed to the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.drained
}

// Dropped reports how many events DropIfFull discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
