package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CarryBucket is a point-in-time pool snapshot bucket. Unlike candles, a
// freshly created bucket inherits the previous period's values: the series
// is a running level, not an accumulation, and a bucket with no events must
// still read as "unchanged since last period".
type CarryBucket struct {
	Series     string
	Resolution Resolution
	Index      int64
	Timestamp  int64

	PoolMargin    decimal.Decimal
	PoolMarginUSD decimal.Decimal
	NetAssetValue decimal.Decimal
}

// CarryStore owns all carry-forward buckets of a single resolution.
type CarryStore struct {
	resolution Resolution
	buckets    map[BucketKey]*CarryBucket
}

func NewCarryStore(resolution Resolution) *CarryStore {
	return &CarryStore{
		resolution: resolution,
		buckets:    make(map[BucketKey]*CarryBucket),
	}
}

func (s *CarryStore) Resolution() Resolution {
	return s.resolution
}

// GetOrCreate returns the bucket holding timestamp, creating it on first
// touch of the period. A new bucket seeds its carried fields from bucket
// index−1 of the same series when present, and from the domain zero
// otherwise.
func (s *CarryStore) GetOrCreate(seriesID string, timestamp int64) *CarryBucket {
	key := BucketKey{Series: seriesID, Index: s.resolution.BucketIndex(timestamp)}

	b, ok := s.buckets[key]
	if !ok {
		b = &CarryBucket{
			Series:     seriesID,
			Resolution: s.resolution,
			Index:      key.Index,
			Timestamp:  key.Index * int64(s.resolution),
		}
		if prev, found := s.buckets[BucketKey{Series: seriesID, Index: key.Index - 1}]; found {
			b.PoolMargin = prev.PoolMargin
			b.PoolMarginUSD = prev.PoolMarginUSD
			b.NetAssetValue = prev.NetAssetValue
		} else {
			b.PoolMargin = decimal.Zero
			b.PoolMarginUSD = decimal.Zero
			b.NetAssetValue = decimal.Zero
		}
		s.buckets[key] = b
	}

	return b
}

// Upsert records a pool-margin snapshot. The carried fields are overwritten
// with the fresh snapshot whether or not a period boundary was crossed;
// downstream readers expect the latest value inside the current bucket.
func (s *CarryStore) Upsert(seriesID string, timestamp int64, poolMargin, price, totalSupply decimal.Decimal) *CarryBucket {
	b := s.GetOrCreate(seriesID, timestamp)

	b.PoolMargin = poolMargin
	b.PoolMarginUSD = poolMargin.Mul(price)
	if totalSupply.IsZero() {
		b.NetAssetValue = decimal.Zero
	} else {
		b.NetAssetValue = poolMargin.Div(totalSupply)
	}

	return b
}

// Get returns the bucket at (seriesID, index) if it exists.
func (s *CarryStore) Get(seriesID string, index int64) (*CarryBucket, bool) {
	b, ok := s.buckets[BucketKey{Series: seriesID, Index: index}]
	return b, ok
}

// All returns every bucket in deterministic (series, index) order.
func (s *CarryStore) All() []*CarryBucket {
	out := make([]*CarryBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Series != out[j].Series {
			return out[i].Series < out[j].Series
		}
		return out[i].Index < out[j].Index
	})
	return out
}
