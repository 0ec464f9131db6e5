package pnl

import (
	"github.com/shopspring/decimal"
)

// Split decomposes a trade delta against the current signed position into a
// close component and an open component, with close + open == delta.
//
// The close component is the portion of delta that reduces |position| toward
// zero without crossing it; the open component is any remainder that extends
// or flips the position. A flat position or a same-sign delta yields a pure
// open. A delta larger than the opposing position yields close == -position
// (full close) and the rest opens a fresh position.
func Split(position, delta decimal.Decimal) (close, open decimal.Decimal) {
	if position.IsZero() || position.Sign() == delta.Sign() {
		return decimal.Zero, delta
	}

	// Opposite signs: delta moves position toward zero.
	if delta.Abs().Cmp(position.Abs()) <= 0 {
		return delta, decimal.Zero
	}

	close = position.Neg()
	open = delta.Sub(close)
	return close, open
}
