package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket. Created lazily on the first event inside
// its period and monotonically updated afterwards, never re-initialized.
type Candle struct {
	Series     string
	Resolution Resolution
	Index      int64
	Timestamp  int64 // bucket start

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal // quote-denominated: Σ |amount| · price
}

// CandleStore owns all candle buckets of a single resolution.
type CandleStore struct {
	resolution Resolution
	buckets    map[BucketKey]*Candle
}

func NewCandleStore(resolution Resolution) *CandleStore {
	return &CandleStore{
		resolution: resolution,
		buckets:    make(map[BucketKey]*Candle),
	}
}

func (s *CandleStore) Resolution() Resolution {
	return s.resolution
}

// Upsert folds one trade observation into the bucket holding timestamp.
//
// The bound update is deliberately asymmetric: the low bound is examined
// only when the price did not extend the high, so a single update moves at
// most one of high/low. This matches the source system the series were
// ported from; see DESIGN.md before changing it.
func (s *CandleStore) Upsert(seriesID string, timestamp int64, price, amount decimal.Decimal) *Candle {
	key := BucketKey{Series: seriesID, Index: s.resolution.BucketIndex(timestamp)}
	volume := amount.Abs().Mul(price)

	c, ok := s.buckets[key]
	if !ok {
		c = &Candle{
			Series:     seriesID,
			Resolution: s.resolution,
			Index:      key.Index,
			Timestamp:  key.Index * int64(s.resolution),
			Open:       price,
			High:       price,
			Low:        price,
			Close:      price,
			Volume:     volume,
		}
		s.buckets[key] = c
		return c
	}

	c.Close = price
	if price.Cmp(c.High) > 0 {
		c.High = price
	} else if price.Cmp(c.Low) < 0 {
		c.Low = price
	}
	c.Volume = c.Volume.Add(volume)

	return c
}

// Get returns the bucket at (seriesID, index) if it exists.
func (s *CandleStore) Get(seriesID string, index int64) (*Candle, bool) {
	c, ok := s.buckets[BucketKey{Series: seriesID, Index: index}]
	return c, ok
}

// Range returns the series' buckets with index in [from, to], ascending.
func (s *CandleStore) Range(seriesID string, from, to int64) []*Candle {
	out := make([]*Candle, 0)
	for key, c := range s.buckets {
		if key.Series == seriesID && key.Index >= from && key.Index <= to {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// All returns every bucket in deterministic (series, index) order.
func (s *CandleStore) All() []*Candle {
	out := make([]*Candle, 0, len(s.buckets))
	for _, c := range s.buckets {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Series != out[j].Series {
			return out[i].Series < out[j].Series
		}
		return out[i].Index < out[j].Index
	})
	return out
}
