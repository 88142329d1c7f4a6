// internal/dex/simulator.go
package dex

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// SimulatorConfig tunes the simulated venues.
type SimulatorConfig struct {
	QuoteLatencyMin time.Duration
	QuoteLatencyMax time.Duration
	SwapLatencyMin  time.Duration
	SwapLatencyMax  time.Duration
	FailureRate     float64 // probability in [0, 1]
	Seed            uint64  // 0 picks a random seed
}

// DefaultSimulatorConfig mirrors the latency and failure profile of the
// public Raydium and Meteora endpoints.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		QuoteLatencyMin: 2 * time.Second,
		QuoteLatencyMax: 3 * time.Second,
		SwapLatencyMin:  1 * time.Second,
		SwapLatencyMax:  2 * time.Second,
		FailureRate:     0.05,
	}
}

type liquidityRange struct {
	min    float64
	spread float64
}

// Venues differ in market depth.
var liquidityRanges = map[models.Platform]liquidityRange{
	models.PlatformRaydium: {min: 500_000, spread: 1_000_000},
	models.PlatformMeteora: {min: 300_000, spread: 800_000},
}

// SimulatedProvider fakes quotes and swaps with random prices, liquidity,
// latency and failures.
type SimulatedProvider struct {
	cfg    SimulatorConfig
	mu     sync.Mutex // guards rng
	rng    *rand.Rand
	logger *zap.Logger
}

var _ QuoteProvider = (*SimulatedProvider)(nil)

// NewSimulatedProvider creates a provider. A non-zero Seed makes the random
// stream reproducible.
func NewSimulatedProvider(cfg SimulatorConfig, logger *zap.Logger) *SimulatedProvider {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &SimulatedProvider{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger.Named("simulator"),
	}
}

// GetQuote returns a quote perturbed 2-5% around the base price.
func (p *SimulatedProvider) GetQuote(ctx context.Context, platform models.Platform, tokenPair string, amount float64) (*models.Quote, error) {
	lr, ok := liquidityRanges[platform]
	if !ok {
		return nil, ErrUnknownPlatform
	}

	if err := sleep(ctx, p.latency(p.cfg.QuoteLatencyMin, p.cfg.QuoteLatencyMax)); err != nil {
		return nil, err
	}

	p.mu.Lock()
	variation := 0.02 + p.rng.Float64()*0.03
	direction := 1.0
	if p.rng.Float64() <= 0.5 {
		direction = -1.0
	}
	liquidity := lr.min + p.rng.Float64()*lr.spread
	p.mu.Unlock()

	price := BasePrice(tokenPair) * (1 + direction*variation)
	q := &models.Quote{
		Dex:             platform,
		Price:           price,
		Liquidity:       liquidity,
		EstimatedOutput: amount * price,
		PriceImpact:     PriceImpact(amount, liquidity),
		Timestamp:       time.Now(),
	}

	p.logger.Debug("Quote generated",
		zap.String("dex", platform.String()),
		zap.String("pair", tokenPair),
		zap.Float64("price", q.Price),
		zap.Float64("liquidity", q.Liquidity))
	return q, nil
}

// ExecuteSwap simulates submission and confirmation of a swap. It fails with
// ErrSlippageExceeded at the configured rate.
func (p *SimulatedProvider) ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	if _, ok := liquidityRanges[req.Platform]; !ok {
		return nil, ErrUnknownPlatform
	}

	if err := sleep(ctx, p.latency(p.cfg.SwapLatencyMin, p.cfg.SwapLatencyMax)); err != nil {
		return nil, err
	}

	reference := req.QuotedPrice
	if reference <= 0 {
		reference = BasePrice(req.TokenPair)
	}

	p.mu.Lock()
	sig := newSignature(p.rng)
	drift := (p.rng.Float64() - 0.5) * 0.01
	failed := p.rng.Float64() < p.cfg.FailureRate
	p.mu.Unlock()

	if failed {
		return nil, &ExecutionError{Platform: req.Platform, Err: ErrSlippageExceeded}
	}

	return &SwapResult{
		TxHash:         sig.String(),
		ExecutionPrice: reference * (1 + drift),
	}, nil
}

func (p *SimulatedProvider) latency(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int64N(int64(hi-lo)))
}

// newSignature returns a random transaction signature. A leading byte of at
// least 51 keeps the base58 text form at exactly 88 characters.
func newSignature(rng *rand.Rand) solana.Signature {
	var sig solana.Signature
	for i := range sig {
		sig[i] = byte(rng.Uint32())
	}
	sig[0] = 51 + byte(rng.IntN(205))
	return sig
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
