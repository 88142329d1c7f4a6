// internal/events/handler.go
package events

import (
	"context"
	"errors"
)

// ErrObserverClosed is returned by observers that can no longer receive
// events. The bus skips them silently.
var ErrObserverClosed = errors.New("observer closed")

// Observer receives order updates.
type Observer interface {
	// Deliver hands an envelope to the observer. Should not block.
	Deliver(ctx context.Context, env Envelope) error
}

// ObserverFunc is an adapter to allow the use of ordinary functions as observers.
type ObserverFunc func(ctx context.Context, env Envelope) error

// Deliver calls f(ctx, env).
func (f ObserverFunc) Deliver(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Subscription represents a registered observer.
type Subscription interface {
	// ID identifies the subscription on the bus.
	ID() string
	// Unsubscribe removes the observer. Safe to call more than once.
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.bus.Unsubscribe(s.id)
}
