package event

import (
	"github.com/shopspring/decimal"
)

// UpdateUnitAccumulativeFunding advances the per-perpetual funding index.
// Subsequent trades settle funding against the updated index.
type UpdateUnitAccumulativeFunding struct {
	Perpetual               string
	UnitAccumulativeFunding decimal.Decimal
	Prov                    Provenance
}

func (u *UpdateUnitAccumulativeFunding) Kind() Kind {
	return KindUpdateUnitAccumulativeFunding
}
func (u *UpdateUnitAccumulativeFunding) PerpetualID() string    { return u.Perpetual }
func (u *UpdateUnitAccumulativeFunding) Provenance() Provenance { return u.Prov }

// UpdateFundingRate carries the perpetual's new funding rate. Feeds the
// minute and hourly last-write-wins snapshot series.
type UpdateFundingRate struct {
	Perpetual   string
	FundingRate decimal.Decimal
	Prov        Provenance
}

func (u *UpdateFundingRate) Kind() Kind             { return KindUpdateFundingRate }
func (u *UpdateFundingRate) PerpetualID() string    { return u.Perpetual }
func (u *UpdateFundingRate) Provenance() Provenance { return u.Prov }
