package event

import (
	"github.com/shopspring/decimal"
)

// UpdatePoolMargin is a pool-level margin snapshot. TotalSupply is the
// share-token supply at the same block, supplied by the decoder so that
// the core needs no token bookkeeping of its own.
type UpdatePoolMargin struct {
	Pool        string
	Collateral  string
	PoolMargin  decimal.Decimal
	TotalSupply decimal.Decimal
	Prov        Provenance
}

func (u *UpdatePoolMargin) Kind() Kind             { return KindUpdatePoolMargin }
func (u *UpdatePoolMargin) PerpetualID() string    { return "" }
func (u *UpdatePoolMargin) Provenance() Provenance { return u.Prov }

// PoolID returns the pool context for ordering/routing.
func (u *UpdatePoolMargin) PoolID() string { return u.Pool }
