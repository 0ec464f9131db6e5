package pnl

import (
	"github.com/shopspring/decimal"
)

// OpenInterestDelta derives the open-interest change from a position
// transition. Only the long side counts: aggregate open interest would
// double-count if both sides contributed.
func OpenInterestDelta(oldPosition, newPosition decimal.Decimal) decimal.Decimal {
	return longSide(newPosition).Sub(longSide(oldPosition))
}

func longSide(position decimal.Decimal) decimal.Decimal {
	if position.Sign() > 0 {
		return position
	}
	return decimal.Zero
}
