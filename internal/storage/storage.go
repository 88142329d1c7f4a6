// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// ErrNotFound is returned when an order id is unknown.
var ErrNotFound = errors.New("order not found")

// Store holds order records. Implementations must apply Update atomically
// per order id.
type Store interface {
	// Get returns the order or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Order, error)
	// List returns all orders, newest first.
	List(ctx context.Context) ([]*models.Order, error)
	// Create stores a new pending order with all optional fields unset.
	Create(ctx context.Context, params models.NewOrder) (*models.Order, error)
	// Update applies the mutations, stamps UpdatedAt and returns the result.
	// Unknown ids yield ErrNotFound; no record is created.
	Update(ctx context.Context, id string, muts ...models.Mutation) (*models.Order, error)
	Close() error
}

// Clock hands out strictly increasing timestamps so that CreatedAt ordering
// is total even when orders are created within the same clock tick.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock returns a Clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current time, bumped past the previous result if needed.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// Observe moves the clock forward to at least t. Stores call it with
// timestamps loaded from disk.
func (c *Clock) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t
	}
}

// NewRecord builds a pending order with the given id.
func NewRecord(id string, params models.NewOrder, now time.Time) *models.Order {
	return &models.Order{
		ID:                id,
		TokenPair:         params.TokenPair,
		Amount:            params.Amount,
		SlippageTolerance: params.SlippageTolerance,
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Apply runs the mutations on o and stamps UpdatedAt. The id and CreatedAt
// cannot be changed by a mutation.
func Apply(o *models.Order, now time.Time, muts ...models.Mutation) {
	id, created := o.ID, o.CreatedAt
	for _, m := range muts {
		m(o)
	}
	o.ID, o.CreatedAt = id, created
	o.UpdatedAt = now
}

// SortNewestFirst orders by CreatedAt descending.
func SortNewestFirst(orders []*models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
