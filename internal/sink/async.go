package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"mtf-screener/internal/model"
	"mtf-screener/internal/screener"
)

// ErrQueueFull is returned when an Async sink drops an event.
var ErrQueueFull = errors.New("sink: queue full")

// ErrClosed is returned by sinks after Close.
var ErrClosed = errors.New("sink: closed")

// Async delivers to inner from a single goroutine through a bounded queue.
// Emit never blocks; a full queue drops the event. Events reach inner in
// the order they were accepted.
type Async struct {
	name    string
	inner   screener.Sink
	queue   chan func() error
	onError func(error)
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ screener.Sink = (*Async)(nil)

// NewAsync starts the delivery goroutine. onError, when set, sees every
// error returned by inner.
func NewAsync(name string, inner screener.Sink, size int, onError func(error)) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		name:    name,
		inner:   inner,
		queue:   make(chan func() error, size),
		onError: onError,
		log:     slog.Default().With("component", "sink", "sink", name),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for job := range a.queue {
		if err := job(); err != nil {
			a.failed.Add(1)
			a.log.Warn("async delivery failed", "error", err)
			if a.onError != nil {
				a.onError(err)
			}
		}
	}
}

func (a *Async) enqueue(job func() error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- job:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *Async) EmitSignal(ctx context.Context, s model.Signal) error {
	vals := context.WithoutCancel(ctx)
	return a.enqueue(func() error { return a.inner.EmitSignal(vals, s) })
}

func (a *Async) EmitAligned(ctx context.Context, al model.AlignedSignal) error {
	vals := context.WithoutCancel(ctx)
	return a.enqueue(func() error { return a.inner.EmitAligned(vals, al) })
}

// Dropped is the number of events rejected because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Failed is the number of events inner failed to deliver.
func (a *Async) Failed() uint64 { return a.failed.Load() }

// Close stops accepting events, drains the queue and closes inner if it is
// an io.Closer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	if c, ok := a.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
