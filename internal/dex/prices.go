// internal/dex/prices.go
package dex

import "math"

// DefaultBasePrice is used for token pairs missing from the reference table.
const DefaultBasePrice = 1.0

// MaxPriceImpact caps the estimated price impact, in percent.
const MaxPriceImpact = 15.0

var basePrices = map[string]float64{
	"SOL/USDC":  98.5,
	"SOL/USDT":  98.3,
	"RAY/USDC":  2.15,
	"BONK/SOL":  0.000015,
	"JUP/USDC":  1.35,
	"ORCA/USDC": 3.45,
}

// BasePrice returns the reference price for a token pair.
func BasePrice(tokenPair string) float64 {
	if p, ok := basePrices[tokenPair]; ok {
		return p
	}
	return DefaultBasePrice
}

// PriceImpact estimates the price degradation of trading amount against the
// given liquidity. The result is always within [0, MaxPriceImpact].
func PriceImpact(amount, liquidity float64) float64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	if liquidity <= 0 || math.IsNaN(liquidity) {
		return MaxPriceImpact
	}
	impact := amount / liquidity * 100
	if impact > MaxPriceImpact || math.IsNaN(impact) {
		return MaxPriceImpact
	}
	return impact
}
