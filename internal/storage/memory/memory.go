// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Store keeps orders in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	clock  *storage.Clock
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		orders: make(map[string]*models.Order),
		clock:  storage.NewClock(),
	}
}

func (s *Store) Get(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) List(_ context.Context) ([]*models.Order, error) {
	s.mu.RLock()
	out := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	storage.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Create(_ context.Context, params models.NewOrder) (*models.Order, error) {
	o := storage.NewRecord(uuid.New().String(), params, s.clock.Now())

	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()

	return o.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, muts ...models.Mutation) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := o.Clone()
	storage.Apply(updated, s.clock.Now(), muts...)
	s.orders[id] = updated
	return updated.Clone(), nil
}

func (s *Store) Close() error {
	return nil
}
