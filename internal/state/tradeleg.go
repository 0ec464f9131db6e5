package state

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LegType tags how a trade leg came to exist.
type LegType int32

const (
	LegNormal LegType = iota
	LegLiquidatedByAMM
	LegLiquidatedByTrader
)

func (lt LegType) String() string {
	switch lt {
	case LegNormal:
		return "Normal"
	case LegLiquidatedByAMM:
		return "LiquidatedByAMM"
	case LegLiquidatedByTrader:
		return "LiquidatedByTrader"
	default:
		return "Unknown"
	}
}

// TradeLeg is the immutable record of one close or open component of a
// trade event. An event produces at most two legs (close then open).
// Identity is (TransactionID, LogIndex, LegIndex).
type TradeLeg struct {
	TransactionID string
	LogIndex      int64
	LegIndex      int32

	Perpetual string
	Trader    string

	Amount      decimal.Decimal
	Price       decimal.Decimal
	MarkPrice   decimal.Decimal
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal // zero for open legs
	IsClose     bool
	Type        LegType

	BlockNumber int64
	Timestamp   int64
}

// ID returns the canonical leg identity, derived only from event content.
func (l *TradeLeg) ID() string {
	return fmt.Sprintf("%s-%d-%d", l.TransactionID, l.LogIndex, l.LegIndex)
}
