package series_test

import (
	"PerpIndexer/internal/series"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ============================================================================
// Test: CandleStore
// ============================================================================

// Bucket created at 50, updated with 55, 48, 52; the 7d grid used here keeps
// all four updates inside one bucket.
func TestCandleUpsert_Scenario(t *testing.T) {
	s := series.NewCandleStore(series.Res7d)

	s.Upsert("perp-eth", 1000, d("50"), d("2"))
	s.Upsert("perp-eth", 1100, d("55"), d("1"))
	s.Upsert("perp-eth", 1200, d("48"), d("3"))
	c := s.Upsert("perp-eth", 1300, d("52"), d("1"))

	if !c.Open.Equal(d("50")) || !c.High.Equal(d("55")) || !c.Low.Equal(d("48")) || !c.Close.Equal(d("52")) {
		t.Errorf("OHLC: got %s/%s/%s/%s, want 50/55/48/52", c.Open, c.High, c.Low, c.Close)
	}

	// 2*50 + 1*55 + 3*48 + 1*52 = 351
	if !c.Volume.Equal(d("351")) {
		t.Errorf("volume: got %s, want 351", c.Volume)
	}
	if c.Timestamp != 0 {
		t.Errorf("bucket start: got %d, want 0", c.Timestamp)
	}
}

func TestCandleUpsert_BoundsInvariant(t *testing.T) {
	s := series.NewCandleStore(series.Res1h)
	prices := []string{"50", "55", "48", "52", "60", "45", "45", "61"}

	for i, p := range prices {
		c := s.Upsert("perp-eth", int64(i), d(p), d("1"))

		if c.Low.Cmp(c.Open) > 0 || c.Low.Cmp(c.Close) > 0 {
			t.Errorf("after %s: low %s exceeds open %s or close %s", p, c.Low, c.Open, c.Close)
		}
		if c.High.Cmp(c.Open) < 0 || c.High.Cmp(c.Close) < 0 {
			t.Errorf("after %s: high %s below open %s or close %s", p, c.High, c.Open, c.Close)
		}
	}
}

// Pins the asymmetric bound rule: one update extends at most one of
// high/low, so a price below the low is ignored in the same update that
// extends the high. Deliberately preserved source behavior.
func TestCandleUpsert_SingleUpdateExtendsOneBound(t *testing.T) {
	s := series.NewCandleStore(series.Res1h)

	s.Upsert("perp-eth", 10, d("100"), d("1"))
	c := s.Upsert("perp-eth", 20, d("110"), d("1"))

	if !c.High.Equal(d("110")) {
		t.Errorf("high: got %s, want 110", c.High)
	}
	// A later lower price extends the low on its own update.
	c = s.Upsert("perp-eth", 30, d("90"), d("1"))
	if !c.Low.Equal(d("90")) {
		t.Errorf("low: got %s, want 90", c.Low)
	}
	if !c.High.Equal(d("110")) {
		t.Errorf("high must not regress: got %s", c.High)
	}
}

func TestCandleUpsert_ResolutionsIndependent(t *testing.T) {
	quarter := series.NewCandleStore(series.Res15m)
	hour := series.NewCandleStore(series.Res1h)

	// 10:05 and 10:50 share an hourly bucket but not a 15m bucket.
	ts1, ts2 := int64(36300), int64(39000)
	quarter.Upsert("perp-eth", ts1, d("100"), d("1"))
	quarter.Upsert("perp-eth", ts2, d("105"), d("1"))
	hour.Upsert("perp-eth", ts1, d("100"), d("1"))
	hour.Upsert("perp-eth", ts2, d("105"), d("1"))

	h, ok := hour.Get("perp-eth", series.Res1h.BucketIndex(ts1))
	if !ok {
		t.Fatal("hourly bucket missing")
	}
	if !h.Open.Equal(d("100")) || !h.Close.Equal(d("105")) || !h.Volume.Equal(d("205")) {
		t.Errorf("hourly bucket: open=%s close=%s volume=%s", h.Open, h.Close, h.Volume)
	}

	q1, ok1 := quarter.Get("perp-eth", series.Res15m.BucketIndex(ts1))
	q2, ok2 := quarter.Get("perp-eth", series.Res15m.BucketIndex(ts2))
	if !ok1 || !ok2 || q1.Index == q2.Index {
		t.Fatalf("15m events should land in two distinct buckets")
	}
	if !q1.Volume.Equal(d("100")) || !q2.Volume.Equal(d("105")) {
		t.Errorf("15m volumes: got %s and %s", q1.Volume, q2.Volume)
	}
}

func TestCandleUpsert_SeriesIsolated(t *testing.T) {
	s := series.NewCandleStore(series.Res1h)

	s.Upsert("perp-eth", 100, d("50"), d("1"))
	s.Upsert("perp-btc", 100, d("70000"), d("1"))

	eth, _ := s.Get("perp-eth", 0)
	btc, _ := s.Get("perp-btc", 0)
	if !eth.Close.Equal(d("50")) || !btc.Close.Equal(d("70000")) {
		t.Errorf("series leaked into each other: %s / %s", eth.Close, btc.Close)
	}
}

// ============================================================================
// Test: CarryStore
// ============================================================================

func TestCarryUpsert_InheritsPriorBucket(t *testing.T) {
	s := series.NewCarryStore(series.Res1d)

	// Day 0: margin 1000, supply 100 → NAV 10.
	s.Upsert("pool-1", 1000, d("1000"), d("1"), d("100"))

	// First touch of day 1 lands mid-day; the freshly created bucket must
	// have seeded from day 0, then been overwritten with today's snapshot.
	b := s.Upsert("pool-1", 86400+3600, d("1200"), d("1"), d("100"))
	if !b.PoolMargin.Equal(d("1200")) || !b.NetAssetValue.Equal(d("12")) {
		t.Errorf("day-1 bucket: margin=%s nav=%s", b.PoolMargin, b.NetAssetValue)
	}

	day0, _ := s.Get("pool-1", 0)
	if !day0.PoolMargin.Equal(d("1000")) {
		t.Errorf("day-0 bucket mutated: %s", day0.PoolMargin)
	}
}

// A freshly created bucket seeds from the prior period's final values;
// GetOrCreate exposes the seeded state before any overwrite.
func TestCarryGetOrCreate_SeedsFromPreviousFinalValues(t *testing.T) {
	s := series.NewCarryStore(series.Res1h)

	s.Upsert("pool-1", 100, d("500"), d("2"), d("50"))
	s.Upsert("pool-1", 200, d("600"), d("2"), d("50")) // same bucket, overwrites

	b := s.GetOrCreate("pool-1", 3700)
	if b.Index != 1 {
		t.Fatalf("expected hour-1 bucket, got index %d", b.Index)
	}
	if !b.PoolMargin.Equal(d("600")) || !b.PoolMarginUSD.Equal(d("1200")) || !b.NetAssetValue.Equal(d("12")) {
		t.Errorf("seeded bucket: margin=%s usd=%s nav=%s, want hour-0 finals 600/1200/12",
			b.PoolMargin, b.PoolMarginUSD, b.NetAssetValue)
	}

	// The snapshot then overwrites the seeded values.
	b = s.Upsert("pool-1", 3700, d("650"), d("2"), d("50"))
	if !b.PoolMargin.Equal(d("650")) || !b.PoolMarginUSD.Equal(d("1300")) || !b.NetAssetValue.Equal(d("13")) {
		t.Errorf("hour-1 bucket: margin=%s usd=%s nav=%s", b.PoolMargin, b.PoolMarginUSD, b.NetAssetValue)
	}
}

func TestCarryUpsert_NoPriorBucketStartsFromZero(t *testing.T) {
	s := series.NewCarryStore(series.Res1d)

	b := s.Upsert("pool-1", 10*86400, d("100"), d("1"), d("0"))
	if !b.PoolMargin.Equal(d("100")) {
		t.Errorf("margin: got %s, want 100", b.PoolMargin)
	}
	// Zero total supply keeps NAV at the domain zero.
	if !b.NetAssetValue.IsZero() {
		t.Errorf("nav with zero supply: got %s, want 0", b.NetAssetValue)
	}
}

// ============================================================================
// Test: FundingStore
// ============================================================================

func TestFundingUpsert_LastWriteWins(t *testing.T) {
	minute := series.NewFundingStore(series.Res1m)
	hour := series.NewFundingStore(series.Res1h)

	for _, r := range []string{"0.0001", "0.0003", "-0.0002"} {
		minute.Upsert("perp-eth", 30, d(r))
		hour.Upsert("perp-eth", 30, d(r))
	}

	m, _ := minute.Get("perp-eth", 0)
	h, _ := hour.Get("perp-eth", 0)
	if !m.FundingRate.Equal(d("-0.0002")) || !h.FundingRate.Equal(d("-0.0002")) {
		t.Errorf("last write should win: minute=%s hour=%s", m.FundingRate, h.FundingRate)
	}
}

func TestFundingUpsert_DistinctBucketsPerResolution(t *testing.T) {
	minute := series.NewFundingStore(series.Res1m)
	hour := series.NewFundingStore(series.Res1h)

	minute.Upsert("perp-eth", 30, d("0.0001"))
	minute.Upsert("perp-eth", 90, d("0.0002"))
	hour.Upsert("perp-eth", 30, d("0.0001"))
	hour.Upsert("perp-eth", 90, d("0.0002"))

	if len(minute.All()) != 2 {
		t.Errorf("minute store: got %d buckets, want 2", len(minute.All()))
	}
	if len(hour.All()) != 1 {
		t.Errorf("hour store: got %d buckets, want 1", len(hour.All()))
	}
}
