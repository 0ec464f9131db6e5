package core

import (
	"fmt"

	"PerpIndexer/internal/event"
)

// OrderingValidator enforces strictly increasing (blockNumber, logIndex)
// across the whole stream. Not thread-safe; only accessed from the
// single-threaded core.
type OrderingValidator struct {
	last event.Provenance
	seen bool
}

func NewOrderingValidator() *OrderingValidator {
	return &OrderingValidator{}
}

// Validate accepts the next event's provenance or reports a regression.
// A regression means the delivery collaborator violated its ordering
// contract; the core halts rather than corrupt the fold.
func (v *OrderingValidator) Validate(p event.Provenance) error {
	if v.seen && !v.last.Before(p) {
		return fmt.Errorf("out-of-order event: last=(%d,%d), got=(%d,%d)",
			v.last.BlockNumber, v.last.LogIndex, p.BlockNumber, p.LogIndex)
	}

	v.last = p
	v.seen = true
	return nil
}

// Last returns the provenance of the most recently accepted event.
func (v *OrderingValidator) Last() (event.Provenance, bool) {
	return v.last, v.seen
}
