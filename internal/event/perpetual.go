package event

// CreatePerpetual announces a new perpetual market. It must precede every
// other event referencing the same perpetual; the core treats a missing
// instrument on any later event as a fatal stream-ordering violation.
type CreatePerpetual struct {
	Perpetual  string
	Pool       string
	Collateral string
	Underlying string
	Symbol     string
	Prov       Provenance
}

func (c *CreatePerpetual) Kind() Kind             { return KindCreatePerpetual }
func (c *CreatePerpetual) PerpetualID() string    { return c.Perpetual }
func (c *CreatePerpetual) Provenance() Provenance { return c.Prov }
