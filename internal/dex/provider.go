// internal/dex/provider.go
package dex

import (
	"context"
	"errors"
	"fmt"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

var (
	// ErrSlippageExceeded is the simulated execution failure.
	ErrSlippageExceeded = errors.New("slippage tolerance exceeded")
	// ErrUnknownPlatform is returned for venues the provider does not serve.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// QuoteProvider produces venue quotes and executes swaps. The router and the
// order pipeline only see this interface, so a real market-data and execution
// backend can replace the simulator.
type QuoteProvider interface {
	GetQuote(ctx context.Context, platform models.Platform, tokenPair string, amount float64) (*models.Quote, error)
	ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

// SwapRequest describes a swap on one venue.
type SwapRequest struct {
	Platform          models.Platform
	TokenPair         string
	Amount            float64
	SlippageTolerance float64 // percent
	// QuotedPrice is the price the venue was selected at. Zero means the
	// provider falls back to its own reference price.
	QuotedPrice float64
}

// SwapResult is the outcome of a successful swap.
type SwapResult struct {
	TxHash         string
	ExecutionPrice float64
}

// ExecutionError is a transient swap failure on a venue. The pipeline
// retries these.
type ExecutionError struct {
	Platform models.Platform
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("transaction failed on %s: %v", e.Platform, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable execution failure.
func IsTransient(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
