package event

// Kind discriminator for event payloads
type Kind int32

const (
	KindUnknown Kind = iota
	KindCreatePerpetual
	KindTrade
	KindLiquidate
	KindUpdatePoolMargin
	KindUpdateUnitAccumulativeFunding
	KindUpdateFundingRate
)

// Provenance pins an event to its position in the source log.
// (BlockNumber, LogIndex) is the global ordering key; TransactionID and
// LogIndex together identify derived records such as trade legs.
type Provenance struct {
	TransactionID string
	LogIndex      int64
	BlockNumber   int64
	Timestamp     int64 // seconds
}

// Event is the interface all event payloads must implement
type Event interface {
	// Kind returns the discriminator
	Kind() Kind

	// PerpetualID returns the perpetual context ("" for pool-level events)
	PerpetualID() string

	// Provenance returns the source-log position of this event
	Provenance() Provenance
}

func (k Kind) String() string {
	switch k {
	case KindCreatePerpetual:
		return "CreatePerpetual"
	case KindTrade:
		return "Trade"
	case KindLiquidate:
		return "Liquidate"
	case KindUpdatePoolMargin:
		return "UpdatePoolMargin"
	case KindUpdateUnitAccumulativeFunding:
		return "UpdateUnitAccumulativeFunding"
	case KindUpdateFundingRate:
		return "UpdateFundingRate"
	default:
		return "Unknown"
	}
}

// Before reports whether p precedes other in source-log order.
func (p Provenance) Before(other Provenance) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber < other.BlockNumber
	}
	return p.LogIndex < other.LogIndex
}
