package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrInstrumentNotFound reports a reference to a perpetual that was never
// created. The stream guarantees CreatePerpetual precedes every other event
// for an instrument, so absence is a fatal ordering violation; the store
// never fabricates a default instrument.
var ErrInstrumentNotFound = errors.New("state: instrument not found")

// InstrumentStore owns all Instrument records. Callers receive handles into
// the store; records are created exactly once and never removed.
type InstrumentStore struct {
	byID map[string]*Instrument
}

func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{byID: make(map[string]*Instrument)}
}

// Create registers a new instrument. Creating the same id twice is a replay
// of the creation event and leaves the existing record untouched.
func (s *InstrumentStore) Create(inst *Instrument) *Instrument {
	if existing, ok := s.byID[inst.ID]; ok {
		return existing
	}
	s.byID[inst.ID] = inst
	return inst
}

// Get returns the instrument or ErrInstrumentNotFound.
func (s *InstrumentStore) Get(id string) (*Instrument, error) {
	inst, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, id)
	}
	return inst, nil
}

// All returns every instrument in deterministic id order.
func (s *InstrumentStore) All() []*Instrument {
	out := make([]*Instrument, 0, len(s.byID))
	for _, inst := range s.byID {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PositionKey addresses an account position record.
type PositionKey struct {
	Perpetual string
	Trader    string
}

// PositionStore owns all AccountPosition records.
type PositionStore struct {
	byKey map[PositionKey]*AccountPosition
}

func NewPositionStore() *PositionStore {
	return &PositionStore{byKey: make(map[PositionKey]*AccountPosition)}
}

// LoadOrCreate returns the position record, creating a zeroed one if absent.
func (s *PositionStore) LoadOrCreate(perpetual, trader string) *AccountPosition {
	key := PositionKey{Perpetual: perpetual, Trader: trader}
	pos := s.byKey[key]

	if pos == nil {
		pos = &AccountPosition{
			Perpetual:    perpetual,
			Trader:       trader,
			Position:     decimal.Zero,
			EntryValue:   decimal.Zero,
			EntryFunding: decimal.Zero,
		}
		s.byKey[key] = pos
	}

	return pos
}

// Get returns the position record without creating it.
func (s *PositionStore) Get(perpetual, trader string) (*AccountPosition, bool) {
	pos, ok := s.byKey[PositionKey{Perpetual: perpetual, Trader: trader}]
	return pos, ok
}

// All returns every position in deterministic (perpetual, trader) order.
func (s *PositionStore) All() []*AccountPosition {
	out := make([]*AccountPosition, 0, len(s.byKey))
	for _, pos := range s.byKey {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Perpetual != out[j].Perpetual {
			return out[i].Perpetual < out[j].Perpetual
		}
		return out[i].Trader < out[j].Trader
	})
	return out
}

// LegStore is the append-only store of trade legs.
type LegStore struct {
	legs    []*TradeLeg
	byOwner map[PositionKey][]*TradeLeg
}

func NewLegStore() *LegStore {
	return &LegStore{byOwner: make(map[PositionKey][]*TradeLeg)}
}

// Append records a leg. Legs are immutable once appended.
func (s *LegStore) Append(leg *TradeLeg) {
	s.legs = append(s.legs, leg)
	key := PositionKey{Perpetual: leg.Perpetual, Trader: leg.Trader}
	s.byOwner[key] = append(s.byOwner[key], leg)
}

// ByTrader returns the legs for one account in append order.
func (s *LegStore) ByTrader(perpetual, trader string) []*TradeLeg {
	return s.byOwner[PositionKey{Perpetual: perpetual, Trader: trader}]
}

// All returns every leg in append order (which is event order).
func (s *LegStore) All() []*TradeLeg {
	return s.legs
}

// Len returns the number of recorded legs.
func (s *LegStore) Len() int {
	return len(s.legs)
}
