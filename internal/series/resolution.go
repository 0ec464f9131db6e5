// Package series maintains the time-bucketed market statistics: OHLCV
// candles at four trade grids, carry-forward pool-margin buckets, and
// last-write-wins funding-rate snapshots. Each resolution lives in its own
// keyed store; grids are never derived from one another.
package series

// Resolution is a bucket period in seconds.
type Resolution int64

const (
	Res1m  Resolution = 60
	Res15m Resolution = 900
	Res1h  Resolution = 3600
	Res1d  Resolution = 86400
	Res7d  Resolution = 604800
)

// TradeResolutions are the grids every trade/liquidation event feeds.
func TradeResolutions() []Resolution {
	return []Resolution{Res15m, Res1h, Res1d, Res7d}
}

// BucketIndex maps an event timestamp (seconds) onto this grid.
func (r Resolution) BucketIndex(timestamp int64) int64 {
	return timestamp / int64(r)
}

// BucketStart returns the start timestamp of the bucket holding timestamp.
func (r Resolution) BucketStart(timestamp int64) int64 {
	return r.BucketIndex(timestamp) * int64(r)
}

// BucketKey addresses one bucket within a store.
type BucketKey struct {
	Series string
	Index  int64
}
