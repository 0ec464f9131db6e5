package event

import (
	"github.com/shopspring/decimal"
)

// Trade is a finalized match against a perpetual.
// Amount is signed: positive increases the trader's long exposure.
type Trade struct {
	Perpetual string
	Trader    string
	Amount    decimal.Decimal // signed, quantity units
	Price     decimal.Decimal
	MarkPrice decimal.Decimal
	Fee       decimal.Decimal
	Prov      Provenance
}

func (t *Trade) Kind() Kind             { return KindTrade }
func (t *Trade) PerpetualID() string    { return t.Perpetual }
func (t *Trade) Provenance() Provenance { return t.Prov }

// LiquidationKind distinguishes who took the liquidated position.
type LiquidationKind int32

const (
	LiquidationByAMM LiquidationKind = iota + 1
	LiquidationByTrader
)

func (lk LiquidationKind) String() string {
	switch lk {
	case LiquidationByAMM:
		return "LiquidatedByAMM"
	case LiquidationByTrader:
		return "LiquidatedByTrader"
	default:
		return "Unknown"
	}
}

// Liquidate is a finalized liquidation fill. The amount/price/fee semantics
// match Trade; Penalty is the liquidation penalty charged on top.
type Liquidate struct {
	Perpetual   string
	Trader      string
	Amount      decimal.Decimal // signed delta applied to the trader's position
	Price       decimal.Decimal
	MarkPrice   decimal.Decimal
	Fee         decimal.Decimal
	Penalty     decimal.Decimal
	Liquidation LiquidationKind
	Prov        Provenance
}

func (l *Liquidate) Kind() Kind             { return KindLiquidate }
func (l *Liquidate) PerpetualID() string    { return l.Perpetual }
func (l *Liquidate) Provenance() Provenance { return l.Prov }
