// internal/dex/router.go
package dex

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/dex-router/internal/storage/models"
)

// SimilarPriceThreshold is the price difference, in percent, below which the
// venues are considered equally priced.
const SimilarPriceThreshold = 0.5

// Router compares the quotes of both venues and picks the cheaper one.
type Router struct {
	provider QuoteProvider
	logger   *zap.Logger
}

// NewRouter creates a router on top of provider.
func NewRouter(provider QuoteProvider, logger *zap.Logger) *Router {
	return &Router{
		provider: provider,
		logger:   logger.Named("router"),
	}
}

// GetRoutingDecision fetches a quote from each venue concurrently and
// selects the one with the better buy price.
func (r *Router) GetRoutingDecision(ctx context.Context, tokenPair string, amount float64) (*models.RoutingDecision, error) {
	start := time.Now()
	var quotes [2]models.Quote

	g, gCtx := errgroup.WithContext(ctx)
	for i, platform := range models.Platforms {
		g.Go(func() error {
			q, err := r.provider.GetQuote(gCtx, platform, tokenPair, amount)
			if err != nil {
				return fmt.Errorf("quote from %s: %w", platform, err)
			}
			quotes[i] = *q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decision := Decide(quotes[0], quotes[1])

	r.logger.Debug("Routing decision",
		zap.String("pair", tokenPair),
		zap.String("selected", decision.SelectedDex.String()),
		zap.Float64("price_difference", decision.PriceDifference),
		zap.Duration("took", time.Since(start)))
	return decision, nil
}

// ExecuteSwap runs the swap on the given venue.
func (r *Router) ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, req.Platform)
	}
	return r.provider.ExecuteSwap(ctx, req)
}

// Decide builds a routing decision from the quotes of the first and second
// venue in preference order. The strictly cheaper venue wins and ties go to
// the first one.
func Decide(first, second models.Quote) *models.RoutingDecision {
	selected := first.Dex
	if second.Price < first.Price {
		selected = second.Dex
	}

	diff := (first.Price - second.Price) / second.Price * 100

	reason := "Similar prices, selected based on liquidity"
	if math.Abs(diff) >= SimilarPriceThreshold {
		reason = fmt.Sprintf("%s offers %.2f%% better price", strings.ToUpper(selected.String()), math.Abs(diff))
	}

	return &models.RoutingDecision{
		Quotes:          [2]models.Quote{first, second},
		SelectedDex:     selected,
		PriceDifference: diff,
		Reason:          reason,
	}
}
