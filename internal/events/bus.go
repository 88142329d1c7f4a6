// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus fans order updates out to live observers. Delivery is best effort:
// failing or closed observers are skipped and nothing is replayed to late
// subscribers.
type Bus struct {
	mu        sync.RWMutex
	observers map[string]Observer
	logger    *zap.Logger

	published      atomic.Uint64
	deliveryErrors atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		observers: make(map[string]Observer),
		logger:    logger.Named("event_bus"),
	}
}

// Subscribe registers an observer.
func (b *Bus) Subscribe(o Observer) Subscription {
	id := uuid.New().String()

	b.mu.Lock()
	b.observers[id] = o
	b.mu.Unlock()

	b.logger.Debug("Observer subscribed", zap.String("subscription_id", id))
	return &subscription{id: id, bus: b}
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	_, ok := b.observers[id]
	delete(b.observers, id)
	b.mu.Unlock()

	if ok {
		b.logger.Debug("Observer unsubscribed", zap.String("subscription_id", id))
	}
}

// Publish delivers the update to every observer registered at call time.
// Observers are called in the publisher's goroutine, so a single publisher's
// updates reach each observer in order.
func (b *Bus) Publish(ctx context.Context, update StatusUpdate) {
	env := Envelope{Type: TypeOrderUpdate, Data: update}

	b.mu.RLock()
	snapshot := make(map[string]Observer, len(b.observers))
	for id, o := range b.observers {
		snapshot[id] = o
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for id, o := range snapshot {
		if err := o.Deliver(ctx, env); err != nil {
			b.deliveryErrors.Add(1)
			if !errors.Is(err, ErrObserverClosed) {
				b.logger.Debug("Delivery failed",
					zap.String("subscription_id", id),
					zap.String("order_id", update.OrderID),
					zap.Error(err))
			}
		}
	}
}

// Len returns the number of registered observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Counts returns the number of published updates and failed deliveries.
func (b *Bus) Counts() (published, deliveryErrors uint64) {
	return b.published.Load(), b.deliveryErrors.Load()
}

// Stats returns statistics about the bus.
func (b *Bus) Stats() map[string]interface{} {
	return map[string]interface{}{
		"observers":       b.Len(),
		"published":       b.published.Load(),
		"delivery_errors": b.deliveryErrors.Load(),
	}
}

// Shutdown removes all observers and closes those that implement io.Closer.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")

	b.mu.Lock()
	observers := b.observers
	b.observers = make(map[string]Observer)
	b.mu.Unlock()

	var errs []error
	for _, o := range observers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
