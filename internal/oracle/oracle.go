// Package oracle provides the quote-price lookup the ledger uses to convert
// collateral-denominated values to USD. Lookups are best effort: an unknown
// asset prices at zero and the caller records a zero USD contribution for
// that event rather than blocking the ledger update.
package oracle

import (
	"github.com/shopspring/decimal"
)

// Oracle resolves a collateral or asset id to its USD price.
type Oracle interface {
	QuotePrice(asset string) decimal.Decimal
}

// Static is a configuration-backed oracle. Prices come from the injected
// table; anything absent quotes at zero. Deterministic by construction,
// which keeps replay output independent of external price feeds.
type Static struct {
	prices map[string]decimal.Decimal
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return &Static{prices: prices}
}

func (s *Static) QuotePrice(asset string) decimal.Decimal {
	price, ok := s.prices[asset]
	if !ok {
		return decimal.Zero
	}
	return price
}
