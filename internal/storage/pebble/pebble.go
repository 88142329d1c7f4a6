// internal/storage/pebble/pebble.go
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

const keyPrefix = "order/"

// Store persists orders as JSON documents in a pebble database.
type Store struct {
	db     *pebble.DB
	mu     sync.Mutex // serializes read-modify-write cycles
	clock  *storage.Clock
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database in dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}

	s := &Store{
		db:     db,
		clock:  storage.NewClock(),
		logger: logger.Named("pebble_store"),
	}

	// Keep new CreatedAt values ahead of anything already on disk.
	n := 0
	err = s.scan(func(o *models.Order) error {
		s.clock.Observe(o.CreatedAt)
		n++
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scan existing orders: %w", err)
	}

	s.logger.Info("Order store opened", zap.String("dir", dir), zap.Int("orders", n))
	return s, nil
}

func (s *Store) Get(_ context.Context, id string) (*models.Order, error) {
	return s.load(id)
}

func (s *Store) List(_ context.Context) ([]*models.Order, error) {
	out := []*models.Order{}
	err := s.scan(func(o *models.Order) error {
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Create(_ context.Context, params models.NewOrder) (*models.Order, error) {
	o := storage.NewRecord(uuid.New().String(), params, s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) Update(_ context.Context, id string, muts ...models.Mutation) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.load(id)
	if err != nil {
		return nil, err
	}
	storage.Apply(o, s.clock.Now(), muts...)
	if err := s.save(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(id string) (*models.Order, error) {
	val, closer, err := s.db.Get(keyFor(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	defer closer.Close()

	var o models.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return &o, nil
}

func (s *Store) save(o *models.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	if err := s.db.Set(keyFor(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("set order %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) scan(fn func(o *models.Order) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var o models.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if err := fn(&o); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(id string) []byte {
	return []byte(keyPrefix + id)
}
