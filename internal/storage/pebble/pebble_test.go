package pebble

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
	"github.com/rovshanmuradov/dex-router/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(t.TempDir(), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsOrders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, zap.NewNop())
	require.NoError(t, err)

	first, err := s.Create(ctx, models.NewOrder{
		TokenPair:         "JUP/USDC",
		Amount:            decimal.NewFromInt(3),
		SlippageTolerance: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, first.ID,
		models.WithStatus(models.StatusConfirmed),
		models.WithExecution("sig", decimal.NewFromFloat(1.35)),
	)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, "sig", *got.TxHash)
	require.NotNil(t, got.ExecutionPrice)
	assert.True(t, got.ExecutionPrice.Equal(decimal.NewFromFloat(1.35)))

	second, err := s.Create(ctx, models.NewOrder{
		TokenPair:         "JUP/USDC",
		Amount:            decimal.NewFromInt(1),
		SlippageTolerance: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(got.CreatedAt))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
}
