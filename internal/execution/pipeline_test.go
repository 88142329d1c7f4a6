package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/dex-router/internal/dex"
	"github.com/rovshanmuradov/dex-router/internal/events"
	"github.com/rovshanmuradov/dex-router/internal/storage"
	"github.com/rovshanmuradov/dex-router/internal/storage/memory"
	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

const testTxHash = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

// fakeRouter returns a fixed decision and fails calls listed in the error
// scripts, indexed by call number.
type fakeRouter struct {
	mu         sync.Mutex
	decision   *models.RoutingDecision
	routeErrs  []error
	swapErrs   []error
	routeCalls int
	swapReqs   []dex.SwapRequest
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		decision: dex.Decide(
			models.Quote{Dex: models.PlatformRaydium, Price: 98.0, Liquidity: 900000},
			models.Quote{Dex: models.PlatformMeteora, Price: 99.0, Liquidity: 700000},
		),
	}
}

func (f *fakeRouter) GetRoutingDecision(_ context.Context, _ string, _ float64) (*models.RoutingDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.routeCalls
	f.routeCalls++
	if i < len(f.routeErrs) && f.routeErrs[i] != nil {
		return nil, f.routeErrs[i]
	}
	return f.decision, nil
}

func (f *fakeRouter) ExecuteSwap(_ context.Context, req dex.SwapRequest) (*dex.SwapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.swapReqs)
	f.swapReqs = append(f.swapReqs, req)
	if i < len(f.swapErrs) && f.swapErrs[i] != nil {
		return nil, f.swapErrs[i]
	}
	return &dex.SwapResult{TxHash: testTxHash, ExecutionPrice: 98.1}, nil
}

// published is an update together with the stored order at publish time.
type published struct {
	update events.StatusUpdate
	stored *models.Order
}

type recordingPublisher struct {
	mu      sync.Mutex
	store   storage.Store
	updates []published
}

func (r *recordingPublisher) Publish(ctx context.Context, u events.StatusUpdate) {
	stored, _ := r.store.Get(ctx, u.OrderID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, published{update: u, stored: stored})
}

func (r *recordingPublisher) statuses() []models.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.OrderStatus, len(r.updates))
	for i, p := range r.updates {
		out[i] = p.update.Status
	}
	return out
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxAttempts: 3,
		BuildDelay:  0,
		BackoffBase: time.Millisecond,
	}
}

func setupPipeline(t *testing.T, router Router, logger *zap.Logger) (*Pipeline, *memory.Store, *recordingPublisher, *Job) {
	t.Helper()
	store := memory.New()
	order, err := store.Create(context.Background(), models.NewOrder{
		TokenPair:         "SOL/USDC",
		Amount:            decimal.NewFromInt(10),
		SlippageTolerance: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)

	pub := &recordingPublisher{store: store}
	p := NewPipeline(testPipelineConfig(), store, router, pub, nil, logger)
	return p, store, pub, JobFor(order)
}

func TestPipelineConfirmsOrder(t *testing.T) {
	router := newFakeRouter()
	p, store, pub, job := setupPipeline(t, router, zaptest.NewLogger(t))

	p.Run(context.Background(), job)

	assert.Equal(t, []models.OrderStatus{
		models.StatusPending,
		models.StatusRouting,
		models.StatusRouting,
		models.StatusBuilding,
		models.StatusSubmitted,
		models.StatusConfirmed,
	}, pub.statuses())

	// every update is visible in the store before it is published
	for _, u := range pub.updates {
		require.NotNil(t, u.stored)
		assert.Equal(t, u.update.Status, u.stored.Status)
	}

	assert.Nil(t, pub.updates[1].update.Data)
	require.NotNil(t, pub.updates[2].update.Data)
	assert.Equal(t, models.PlatformRaydium, pub.updates[2].update.Data.RoutingDecision.SelectedDex)

	confirmed := pub.updates[5].update.Data
	require.NotNil(t, confirmed)
	assert.Equal(t, testTxHash, confirmed.TxHash)
	require.NotNil(t, confirmed.ExecutionPrice)
	assert.True(t, decimal.NewFromFloat(98.1).Equal(*confirmed.ExecutionPrice))

	require.Len(t, router.swapReqs, 1)
	req := router.swapReqs[0]
	assert.Equal(t, models.PlatformRaydium, req.Platform)
	assert.Equal(t, "SOL/USDC", req.TokenPair)
	assert.InDelta(t, 10.0, req.Amount, 1e-9)
	assert.InDelta(t, 0.5, req.SlippageTolerance, 1e-9)
	assert.InDelta(t, 98.0, req.QuotedPrice, 1e-9)

	order, err := store.Get(context.Background(), job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, order.Status)
	require.NotNil(t, order.SelectedDex)
	assert.Equal(t, models.PlatformRaydium, *order.SelectedDex)
	require.NotNil(t, order.TxHash)
	assert.Equal(t, testTxHash, *order.TxHash)
	require.NotNil(t, order.ExecutionPrice)
	assert.True(t, decimal.NewFromFloat(98.1).Equal(*order.ExecutionPrice))
	assert.NotNil(t, order.RoutingData)
	assert.Nil(t, order.ErrorMessage)
}

func TestPipelineFailsAfterMaxAttempts(t *testing.T) {
	swapErr := &dex.ExecutionError{Platform: models.PlatformRaydium, Err: dex.ErrSlippageExceeded}
	router := newFakeRouter()
	router.swapErrs = []error{swapErr, swapErr, swapErr}

	core, logs := observer.New(zapcore.DebugLevel)
	p, store, pub, job := setupPipeline(t, router, zap.New(core))

	p.Run(context.Background(), job)

	attempt := []models.OrderStatus{
		models.StatusRouting,
		models.StatusRouting,
		models.StatusBuilding,
		models.StatusSubmitted,
	}
	want := []models.OrderStatus{models.StatusPending}
	for i := 0; i < 3; i++ {
		want = append(want, attempt...)
	}
	want = append(want, models.StatusFailed)
	assert.Equal(t, want, pub.statuses())
	assert.Len(t, router.swapReqs, 3)

	last := pub.updates[len(pub.updates)-1].update
	require.NotNil(t, last.Data)
	assert.Equal(t, swapErr.Error(), last.Data.ErrorMessage)

	order, err := store.Get(context.Background(), job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, order.Status)
	require.NotNil(t, order.ErrorMessage)
	assert.Equal(t, "transaction failed on raydium: slippage tolerance exceeded", *order.ErrorMessage)
	assert.Nil(t, order.SelectedDex)
	assert.Nil(t, order.RoutingData)
	assert.Nil(t, order.TxHash)
	assert.Nil(t, order.ExecutionPrice)

	// backoff doubles and is not applied after the last attempt
	waits := logs.FilterMessage("Waiting before retry").All()
	require.Len(t, waits, 2)
	assert.Equal(t, time.Millisecond, waits[0].ContextMap()["backoff"])
	assert.Equal(t, 2*time.Millisecond, waits[1].ContextMap()["backoff"])

	failures := logs.FilterMessage("Attempt failed").All()
	require.Len(t, failures, 3)
	for i, entry := range failures {
		assert.EqualValues(t, i+1, entry.ContextMap()["attempt"])
		assert.Equal(t, job.OrderID, entry.ContextMap()["order_id"])
	}
}

func TestPipelineRecoversOnRetry(t *testing.T) {
	router := newFakeRouter()
	router.routeErrs = []error{errors.New("quote from meteora: timeout")}
	p, store, pub, job := setupPipeline(t, router, zaptest.NewLogger(t))

	p.Run(context.Background(), job)

	assert.Equal(t, []models.OrderStatus{
		models.StatusPending,
		models.StatusRouting,
		models.StatusRouting,
		models.StatusRouting,
		models.StatusBuilding,
		models.StatusSubmitted,
		models.StatusConfirmed,
	}, pub.statuses())

	// the retry note is stored while the second attempt routes
	second := pub.updates[2].stored
	require.NotNil(t, second.ErrorMessage)
	assert.Equal(t, "Retry 1/3 after error: routing: quote from meteora: timeout", *second.ErrorMessage)
	assert.Nil(t, second.SelectedDex)

	order, err := store.Get(context.Background(), job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, order.Status)
	assert.Nil(t, order.ErrorMessage)
	assert.NotNil(t, order.TxHash)
}

func TestPipelineSingleAttempt(t *testing.T) {
	router := newFakeRouter()
	router.routeErrs = []error{errors.New("no liquidity")}
	store := memory.New()
	order, err := store.Create(context.Background(), models.NewOrder{
		TokenPair:         "RAY/USDC",
		Amount:            decimal.NewFromInt(1),
		SlippageTolerance: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	pub := &recordingPublisher{store: store}

	cfg := testPipelineConfig()
	cfg.MaxAttempts = 1
	NewPipeline(cfg, store, router, pub, nil, zap.NewNop()).Run(context.Background(), JobFor(order))

	assert.Equal(t, []models.OrderStatus{
		models.StatusPending,
		models.StatusRouting,
		models.StatusFailed,
	}, pub.statuses())
	assert.Equal(t, 1, router.routeCalls)
}

func TestPipelineUnknownOrder(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{store: store}
	router := newFakeRouter()
	p := NewPipeline(testPipelineConfig(), store, router, pub, nil, zap.NewNop())

	p.Run(context.Background(), &Job{OrderID: "missing", TokenPair: "SOL/USDC"})

	assert.Equal(t, []models.OrderStatus{models.StatusFailed}, pub.statuses())
	assert.Zero(t, router.routeCalls)
}
