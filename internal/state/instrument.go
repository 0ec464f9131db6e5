package state

import (
	"github.com/shopspring/decimal"
)

// Instrument is a single perpetual market. Created once by CreatePerpetual,
// never destroyed; mutated only by the account ledger and the aggregators.
//
// Position/EntryValue/EntryFunding describe the AMM's own book: the pool is
// the counterparty of every liquidation-by-AMM, and its basis carries the
// same proportional-close semantics as a trader position.
type Instrument struct {
	ID         string
	Pool       string
	Collateral string
	Underlying string
	Symbol     string

	Position     decimal.Decimal
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal

	OpenInterest   decimal.Decimal
	TotalVolume    decimal.Decimal
	TotalVolumeUSD decimal.Decimal
	TotalFee       decimal.Decimal
	TxCount        int64

	UnitAccumulativeFunding decimal.Decimal

	LastPrice     decimal.Decimal
	LastMarkPrice decimal.Decimal
	PrevMarkPrice decimal.Decimal

	// LP-side accumulators; touched only by liquidation-by-AMM.
	LpFunding  decimal.Decimal
	LpTotalPnL decimal.Decimal
	LpPenalty  decimal.Decimal
}

// AccountPosition is the per-(perpetual, trader) position record.
// EntryValue and EntryFunding scale proportionally with Position on every
// partial close; they reach zero only through that carry, never by direct
// subtraction.
type AccountPosition struct {
	Perpetual string
	Trader    string

	Position     decimal.Decimal // signed, positive = long
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal
}

// IsFlat returns true if the account has no exposure.
func (p *AccountPosition) IsFlat() bool {
	return p.Position.IsZero()
}
