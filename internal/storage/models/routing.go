// internal/storage/models/routing.go
package models

import "time"

// Platform identifies a trading venue.
type Platform string

const (
	PlatformRaydium Platform = "raydium"
	PlatformMeteora Platform = "meteora"
)

// Platforms lists the venues in routing preference order.
var Platforms = [2]Platform{PlatformRaydium, PlatformMeteora}

func (p Platform) String() string {
	return string(p)
}

// Valid reports whether p is a known venue.
func (p Platform) Valid() bool {
	return p == PlatformRaydium || p == PlatformMeteora
}

// Quote is a venue's price and liquidity snapshot for one routing call.
type Quote struct {
	Dex             Platform  `json:"dex"`
	Price           float64   `json:"price"`
	Liquidity       float64   `json:"liquidity"`
	EstimatedOutput float64   `json:"estimatedOutput"`
	PriceImpact     float64   `json:"priceImpact"` // percent, within [0, 15]
	Timestamp       time.Time `json:"timestamp"`
}

// RoutingDecision compares the quotes of both venues. Quotes follow the
// order of Platforms. It is immutable once produced.
type RoutingDecision struct {
	Quotes          [2]Quote `json:"quotes"`
	SelectedDex     Platform `json:"selectedDex"`
	PriceDifference float64  `json:"priceDifference"` // percent, (A-B)/B*100
	Reason          string   `json:"reason"`
}

// Quote returns the quote for the given venue.
func (d *RoutingDecision) Quote(p Platform) (Quote, bool) {
	for _, q := range d.Quotes {
		if q.Dex == p {
			return q, true
		}
	}
	return Quote{}, false
}

// SelectedQuote returns the quote of the selected venue.
func (d *RoutingDecision) SelectedQuote() Quote {
	q, _ := d.Quote(d.SelectedDex)
	return q
}
