package pnl

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrZeroPositionClose reports a close settlement against a zero prior
// position. The Split contract makes this unreachable; if it fires, the
// event stream or the ledger state is corrupt and processing must halt.
var ErrZeroPositionClose = errors.New("pnl: close settlement against zero position")

// CloseLeg is the settlement of the closing component of a trade.
type CloseLeg struct {
	Amount      decimal.Decimal // the close component (sign convention of the position)
	RealizedPnL decimal.Decimal
	FundingPnL  decimal.Decimal
	PnL         decimal.Decimal // realized + funding
	FeeShare    decimal.Decimal // this leg's share of the event fee

	// Carried-forward account state after the close.
	Position     decimal.Decimal
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal
}

// OpenLeg is the settlement of the opening component of a trade.
// Opening realizes nothing; it only accumulates cost basis.
type OpenLeg struct {
	Amount   decimal.Decimal
	FeeShare decimal.Decimal

	Position     decimal.Decimal
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal
}

// SettleClose computes realized PnL and funding PnL for a close of
// magnitude close against position, and carries the cost basis forward
// proportionally:
//
//	realizedPnL = (-close · price) − entryValue · |close/position|
//	fundingPnL  = entryFunding · |close/position| − (−close · unitAccFunding)
//	entryValue' = entryValue · (position+close)/position
//
// delta is the full trade delta; the leg's fee share is fee · |close/delta|.
func SettleClose(
	position, entryValue, entryFunding decimal.Decimal,
	close, delta decimal.Decimal,
	price, unitAccFunding, fee decimal.Decimal,
) (CloseLeg, error) {
	if position.IsZero() {
		return CloseLeg{}, ErrZeroPositionClose
	}

	percent := close.Abs().Div(delta.Abs())
	closeRatio := close.Div(position).Abs()

	negClose := close.Neg()
	realized := negClose.Mul(price).Sub(entryValue.Mul(closeRatio))
	funding := entryFunding.Mul(closeRatio).Sub(negClose.Mul(unitAccFunding))

	newPosition := position.Add(close)
	carry := newPosition.Div(position)

	return CloseLeg{
		Amount:       close,
		RealizedPnL:  realized,
		FundingPnL:   funding,
		PnL:          realized.Add(funding),
		FeeShare:     fee.Mul(percent),
		Position:     newPosition,
		EntryValue:   entryValue.Mul(carry),
		EntryFunding: entryFunding.Mul(carry),
	}, nil
}

// SettleOpen accumulates cost basis for an open of magnitude open:
// entryValue grows by price·open, entryFunding by unitAccFunding·open.
// When the open follows a full close within the same trade, the caller
// passes the zeroed basis from the close leg, so the fresh position starts
// from its own values rather than blending with the extinguished basis.
func SettleOpen(
	position, entryValue, entryFunding decimal.Decimal,
	open, delta decimal.Decimal,
	price, unitAccFunding, fee decimal.Decimal,
) OpenLeg {
	percent := open.Abs().Div(delta.Abs())

	return OpenLeg{
		Amount:       open,
		FeeShare:     fee.Mul(percent),
		Position:     position.Add(open),
		EntryValue:   entryValue.Add(price.Mul(open)),
		EntryFunding: entryFunding.Add(unitAccFunding.Mul(open)),
	}
}
