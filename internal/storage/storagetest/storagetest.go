// Package storagetest checks a storage.Store implementation against the
// order store contract.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// Run executes the contract suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateDefaults", func(t *testing.T) { testCreateDefaults(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, newStore(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func sampleOrder() models.NewOrder {
	return models.NewOrder{
		TokenPair:         "SOL/USDC",
		Amount:            decimal.RequireFromString("10"),
		SlippageTolerance: decimal.RequireFromString("1.0"),
	}
}

func testCreateDefaults(t *testing.T, s storage.Store) {
	ctx := context.Background()

	o, err := s.Create(ctx, sampleOrder())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "SOL/USDC", o.TokenPair)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Nil(t, o.SelectedDex)
	assert.Nil(t, o.ExecutionPrice)
	assert.Nil(t, o.TxHash)
	assert.Nil(t, o.ErrorMessage)
	assert.Nil(t, o.RoutingData)
	assert.False(t, o.CreatedAt.IsZero())
	assert.True(t, o.CreatedAt.Equal(o.UpdatedAt))

	got, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
}

func testGetUnknown(t *testing.T, s storage.Store) {
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testUpdateUnknown(t *testing.T, s storage.Store) {
	ctx := context.Background()

	o, err := s.Update(ctx, "missing", models.WithStatus(models.StatusRouting))
	assert.Nil(t, o)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testUpdateMerges(t *testing.T, s storage.Store) {
	ctx := context.Background()

	created, err := s.Create(ctx, sampleOrder())
	require.NoError(t, err)

	decision := &models.RoutingDecision{
		Quotes: [2]models.Quote{
			{Dex: models.PlatformRaydium, Price: 97, Liquidity: 600000},
			{Dex: models.PlatformMeteora, Price: 99, Liquidity: 400000},
		},
		SelectedDex: models.PlatformRaydium,
		Reason:      "RAYDIUM offers 2.02% better price",
	}
	updated, err := s.Update(ctx, created.ID,
		models.WithStatus(models.StatusRouting),
		models.WithRouting(decision),
	)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRouting, updated.Status)
	require.NotNil(t, updated.SelectedDex)
	assert.Equal(t, models.PlatformRaydium, *updated.SelectedDex)
	require.NotNil(t, updated.RoutingData)
	assert.Equal(t, 97.0, updated.RoutingData.Quotes[0].Price)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.Equal(t, "SOL/USDC", updated.TokenPair)

	cleared, err := s.Update(ctx, created.ID,
		models.WithStatus(models.StatusFailed),
		models.WithError("boom"),
		models.ClearExecution(),
	)
	require.NoError(t, err)
	assert.Nil(t, cleared.SelectedDex)
	assert.Nil(t, cleared.RoutingData)
	require.NotNil(t, cleared.ErrorMessage)
	assert.Equal(t, "boom", *cleared.ErrorMessage)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Nil(t, got.SelectedDex)
}

func testListNewestFirst(t *testing.T, s storage.Store) {
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		_, err := s.Create(ctx, sampleOrder())
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.After(all[i].CreatedAt),
			"orders %d and %d are not strictly descending", i-1, i)
	}
}

func testConcurrentUpdates(t *testing.T, s storage.Store) {
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		o, err := s.Create(ctx, sampleOrder())
		require.NoError(t, err)
		ids[i] = o.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := s.Update(ctx, id, models.WithStatus(models.StatusBuilding))
				assert.NoError(t, err)
				_, err = s.Get(ctx, id)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		o, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBuilding, o.Status)
	}
}
