package series

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FundingBucket holds the last funding rate observed inside its period.
// No OHLC, no averaging: each event overwrites the stored rate.
type FundingBucket struct {
	Series     string
	Resolution Resolution
	Index      int64
	Timestamp  int64

	FundingRate decimal.Decimal
}

// FundingStore owns all funding-rate snapshot buckets of one resolution.
type FundingStore struct {
	resolution Resolution
	buckets    map[BucketKey]*FundingBucket
}

func NewFundingStore(resolution Resolution) *FundingStore {
	return &FundingStore{
		resolution: resolution,
		buckets:    make(map[BucketKey]*FundingBucket),
	}
}

func (s *FundingStore) Resolution() Resolution {
	return s.resolution
}

// Upsert creates-or-overwrites the bucket's rate (last write wins).
func (s *FundingStore) Upsert(seriesID string, timestamp int64, rate decimal.Decimal) *FundingBucket {
	key := BucketKey{Series: seriesID, Index: s.resolution.BucketIndex(timestamp)}

	b, ok := s.buckets[key]
	if !ok {
		b = &FundingBucket{
			Series:     seriesID,
			Resolution: s.resolution,
			Index:      key.Index,
			Timestamp:  key.Index * int64(s.resolution),
		}
		s.buckets[key] = b
	}

	b.FundingRate = rate
	return b
}

// Get returns the bucket at (seriesID, index) if it exists.
func (s *FundingStore) Get(seriesID string, index int64) (*FundingBucket, bool) {
	b, ok := s.buckets[BucketKey{Series: seriesID, Index: index}]
	return b, ok
}

// All returns every bucket in deterministic (series, index) order.
func (s *FundingStore) All() []*FundingBucket {
	out := make([]*FundingBucket, 0, len(s.buckets))
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
