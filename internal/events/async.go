// internal/events/async.go
package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when an async observer cannot buffer an event.
var ErrQueueFull = errors.New("observer queue full")

// AsyncObserver decouples a slow observer from the publisher. Events are
// buffered and handed to the inner observer by a single goroutine, so their
// order is preserved. When the buffer is full the event is dropped.
type AsyncObserver struct {
	inner   Observer
	name    string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Envelope
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewAsyncObserver starts the delivery goroutine. timeout bounds each call of
// the inner observer; zero means no bound.
func NewAsyncObserver(name string, inner Observer, buffer int, timeout time.Duration, logger *zap.Logger) *AsyncObserver {
	if buffer <= 0 {
		buffer = 1
	}
	a := &AsyncObserver{
		inner:   inner,
		name:    name,
		timeout: timeout,
		logger:  logger.Named("async_observer").With(zap.String("observer", name)),
		queue:   make(chan Envelope, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Deliver enqueues the envelope without blocking.
func (a *AsyncObserver) Deliver(_ context.Context, env Envelope) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrObserverClosed
	}
	select {
	case a.queue <- env:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *AsyncObserver) run() {
	defer close(a.done)

	for env := range a.queue {
		ctx := context.Background()
		cancel := func() {}
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		err := a.inner.Deliver(ctx, env)
		cancel()

		if err != nil {
			a.failed.Add(1)
			a.logger.Debug("Inner observer failed",
				zap.String("order_id", env.Data.OrderID),
				zap.Error(err))
			continue
		}
		a.delivered.Add(1)
	}
}

// Close stops accepting events, waits until the buffered ones have been
// handed to the inner observer and then closes it if it is an io.Closer.
func (a *AsyncObserver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	a.logger.Debug("Async observer closed",
		zap.Uint64("delivered", a.delivered.Load()),
		zap.Uint64("dropped", a.dropped.Load()),
		zap.Uint64("failed", a.failed.Load()))

	if c, ok := a.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Stats returns delivered, dropped and failed counts.
func (a *AsyncObserver) Stats() (delivered, dropped, failed uint64) {
	return a.delivered.Load(), a.dropped.Load(), a.failed.Load()
}
