package chain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PriceFeed holds the native-token USD price for one chain.
// It is a single scalar under a read lock so an external price source can
// hot-swap it while detectors read it concurrently.
type PriceFeed struct {
	mu    sync.RWMutex
	price decimal.Decimal
}

// NewPriceFeed returns a feed seeded with the configured startup price.
func NewPriceFeed(initial decimal.Decimal) *PriceFeed {
	return &PriceFeed{price: initial}
}

// Price returns the current native-token USD price.
func (f *PriceFeed) Price() decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}

// Update replaces the price. Non-positive values are ignored.
func (f *PriceFeed) Update(price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	f.mu.Lock()
	f.price = price
	f.mu.Unlock()
}
