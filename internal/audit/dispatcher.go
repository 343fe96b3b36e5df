package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFlushTimeout bounds Close when Config.FlushTimeout is unset.
const DefaultFlushTimeout = 5 * time.Second

// Config controls dispatcher buffering and shutdown.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events instead of blocking the caller when the
	// buffer is full. Drops are counted.
	DropIfFull bool
	// FlushTimeout bounds how long Close waits for the sink to drain the
	// buffer. Events still queued at the deadline are counted as dropped.
	FlushTimeout time.Duration
}

// Dispatcher forwards audit events to a sink from one goroutine. A nil
// Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg  Config
	sink Sink

	// mu guards queue against a send racing the close in Shutdown. Emit
	// holds it shared while sending; stop releases blocked senders.
	mu     sync.RWMutex
	queue  chan Event
	stop   chan struct{}
	closed bool

	// sinkCtx is handed to the sink and canceled when a flush is abandoned.
	sinkCtx    context.Context
	cancelSink context.CancelFunc
	abandoned  atomic.Bool
	finished   chan struct{}

	dropped  atomic.Uint64
	stopOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	sinkCtx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:        cfg,
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		sinkCtx:    sinkCtx,
		cancelSink: cancel,
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until Shutdown closes the queue and the queue is empty.
func (d *Dispatcher) deliver() {
	defer close(d.finished)
	for event := range d.queue {
		if d.abandoned.Load() {
			d.dropped.Add(1)
			continue
		}
		d.sink.Emit(d.sinkCtx, event)
	}
}

// Emit queues event. After Shutdown starts, events are counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
		d.dropped.Add(1)
	}
}

// Shutdown stops accepting events and waits for the sink to drain the
// queue. When ctx ends first, the sink's context is canceled, the rest of
// the queue is dropped and ctx.Err() is returned. Later calls wait for the
// same drain.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	select {
	case <-d.finished:
		d.cancelSink()
		return nil
	case <-ctx.Done():
		d.abandoned.Store(true)
		d.cancelSink()
		return ctx.Err()
	}
}

// Close is Shutdown bounded by Config.FlushTimeout.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.FlushTimeout)
	defer cancel()
	_ = d.Shutdown(ctx)
}

// Dropped counts events discarded on a full buffer, after shutdown or by
// an abandoned flush.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
