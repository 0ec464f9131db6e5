package pnl_test

import (
	"PerpIndexer/internal/pnl"
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
// Test: Split
// ============================================================================

func TestSplit_Cases(t *testing.T) {
	cases := []struct {
		name      string
		position  string
		delta     string
		wantClose string
		wantOpen  string
	}{
		{"flat position opens", "0", "10", "0", "10"},
		{"flat position opens short", "0", "-3", "0", "-3"},
		{"same sign extends long", "5", "2", "0", "2"},
		{"same sign extends short", "-5", "-2", "0", "-2"},
		{"partial close long", "10", "-4", "-4", "0"},
		{"partial close short", "-10", "4", "4", "0"},
		{"exact full close", "10", "-10", "-10", "0"},
		{"flip long to short", "10", "-15", "-10", "-5"},
		{"flip short to long", "-3", "8", "3", "5"},
		{"fractional partial close", "1.5", "-0.5", "-0.5", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			close, open := pnl.Split(d(tc.position), d(tc.delta))
			if !close.Equal(d(tc.wantClose)) {
				t.Errorf("close: got %s, want %s", close, tc.wantClose)
			}
			if !open.Equal(d(tc.wantOpen)) {
				t.Errorf("open: got %s, want %s", open, tc.wantOpen)
			}
		})
	}
}

// Split invariants: close + open == delta and |close| <= |position|,
// across a sweep of sign/magnitude combinations.
func TestSplit_Invariants(t *testing.T) {
	positions := []string{"-20", "-10", "-0.5", "0", "0.5", "10", "20"}
	deltas := []string{"-25", "-10", "-1", "1", "10", "25"}

	for _, p := range positions {
		for _, dl := range deltas {
			position, delta := d(p), d(dl)
			close, open := pnl.Split(position, delta)

			if !close.Add(open).Equal(delta) {
				t.Errorf("P=%s Δ=%s: close+open=%s, want %s", p, dl, close.Add(open), dl)
			}
			if close.Abs().Cmp(position.Abs()) > 0 {
				t.Errorf("P=%s Δ=%s: |close|=%s exceeds |P|", p, dl, close.Abs())
			}
			if !close.IsZero() && close.Sign() == position.Sign() {
				t.Errorf("P=%s Δ=%s: close=%s has the position's sign", p, dl, close)
			}
		}
	}
}

// ============================================================================
// Test: SettleClose / SettleOpen
// ============================================================================

// The two-event scenario: open 10@100 with zero funding index, then close 4
// at 110 with the index at 2.
func TestSettle_OpenThenPartialClose(t *testing.T) {
	// Event A: Δ=+10, price=100, unitAcc=0 on a flat account.
	open := pnl.SettleOpen(d("0"), d("0"), d("0"), d("10"), d("10"), d("100"), d("0"), d("0"))

	if !open.Position.Equal(d("10")) {
		t.Errorf("position after open: got %s, want 10", open.Position)
	}
	if !open.EntryValue.Equal(d("1000")) {
		t.Errorf("entryValue after open: got %s, want 1000", open.EntryValue)
	}
	if !open.EntryFunding.IsZero() {
		t.Errorf("entryFunding after open: got %s, want 0", open.EntryFunding)
	}

	// Event B: Δ=-4, price=110, unitAcc=2.
	leg, err := pnl.SettleClose(
		open.Position, open.EntryValue, open.EntryFunding,
		d("-4"), d("-4"), d("110"), d("2"), d("0"),
	)
	if err != nil {
		t.Fatalf("SettleClose: %v", err)
	}

	// closeRatio=0.4: realized = 4*110 - 1000*0.4 = 40
	if !leg.RealizedPnL.Equal(d("40")) {
		t.Errorf("realizedPnL: got %s, want 40", leg.RealizedPnL)
	}
	// funding = 0*0.4 - 4*2 = -8
	if !leg.FundingPnL.Equal(d("-8")) {
		t.Errorf("fundingPnL: got %s, want -8", leg.FundingPnL)
	}
	if !leg.PnL.Equal(d("32")) {
		t.Errorf("leg PnL: got %s, want 32", leg.PnL)
	}
	if !leg.Position.Equal(d("6")) {
		t.Errorf("position after close: got %s, want 6", leg.Position)
	}
	if !leg.EntryValue.Equal(d("600")) {
		t.Errorf("entryValue after close: got %s, want 600", leg.EntryValue)
	}
	if !leg.EntryFunding.IsZero() {
		t.Errorf("entryFunding after close: got %s, want 0", leg.EntryFunding)
	}
}

// Cost-basis carry is scale-invariant: closing half twice leaves the same
// basis as closing 75% once, given stable price and funding inputs.
func TestSettle_ProportionalCarryScaleInvariant(t *testing.T) {
	price, unitAcc, fee := d("105"), d("3"), d("0")

	position, entryValue, entryFunding := d("8"), d("800"), d("24")

	// Path 1: close 50%, then 50% of the remainder.
	first, err := pnl.SettleClose(position, entryValue, entryFunding, d("-4"), d("-4"), price, unitAcc, fee)
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	second, err := pnl.SettleClose(first.Position, first.EntryValue, first.EntryFunding, d("-2"), d("-2"), price, unitAcc, fee)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}

	// Path 2: close 75% in one leg.
	single, err := pnl.SettleClose(position, entryValue, entryFunding, d("-6"), d("-6"), price, unitAcc, fee)
	if err != nil {
		t.Fatalf("single close: %v", err)
	}

	if !second.EntryValue.Equal(single.EntryValue) {
		t.Errorf("entryValue: two-step %s vs one-step %s", second.EntryValue, single.EntryValue)
	}
	if !second.EntryFunding.Equal(single.EntryFunding) {
		t.Errorf("entryFunding: two-step %s vs one-step %s", second.EntryFunding, single.EntryFunding)
	}
	if !second.Position.Equal(single.Position) {
		t.Errorf("position: two-step %s vs one-step %s", second.Position, single.Position)
	}

	totalPnL := first.PnL.Add(second.PnL)
	if !totalPnL.Equal(single.PnL) {
		t.Errorf("summed PnL: two-step %s vs one-step %s", totalPnL, single.PnL)
	}
}

// A flip settles the close leg to an exactly-zero basis, and the open leg
// builds a fresh basis from its own values only.
func TestSettle_FlipResetsBasis(t *testing.T) {
	position, entryValue, entryFunding := d("10"), d("1000"), d("20")
	delta := d("-15")
	price, unitAcc, fee := d("110"), d("2"), d("3")

	close, open := pnl.Split(position, delta)

	closeLeg, err := pnl.SettleClose(position, entryValue, entryFunding, close, delta, price, unitAcc, fee)
	if err != nil {
		t.Fatalf("SettleClose: %v", err)
	}

	if !closeLeg.Position.IsZero() || !closeLeg.EntryValue.IsZero() || !closeLeg.EntryFunding.IsZero() {
		t.Fatalf("full close should zero the basis, got pos=%s ev=%s ef=%s",
			closeLeg.Position, closeLeg.EntryValue, closeLeg.EntryFunding)
	}

	openLeg := pnl.SettleOpen(closeLeg.Position, closeLeg.EntryValue, closeLeg.EntryFunding,
		open, delta, price, unitAcc, fee)

	if !openLeg.Position.Equal(d("-5")) {
		t.Errorf("flipped position: got %s, want -5", openLeg.Position)
	}
	if !openLeg.EntryValue.Equal(d("-550")) {
		t.Errorf("fresh entryValue: got %s, want -550", openLeg.EntryValue)
	}
	if !openLeg.EntryFunding.Equal(d("-10")) {
		t.Errorf("fresh entryFunding: got %s, want -10", openLeg.EntryFunding)
	}

	// Fee splits by leg share of |Δ|: 10/15 and 5/15.
	wantCloseFee := d("3").Mul(d("10").Div(d("15")))
	if !closeLeg.FeeShare.Equal(wantCloseFee) {
		t.Errorf("close fee share: got %s, want %s", closeLeg.FeeShare, wantCloseFee)
	}
	if !closeLeg.FeeShare.Add(openLeg.FeeShare).Equal(d("3")) {
		t.Errorf("fee shares do not sum to fee: %s + %s", closeLeg.FeeShare, openLeg.FeeShare)
	}
}

func TestSettleClose_ZeroPositionFailsLoudly(t *testing.T) {
	_, err := pnl.SettleClose(d("0"), d("0"), d("0"), d("-1"), d("-1"), d("100"), d("0"), d("0"))
	if err != pnl.ErrZeroPositionClose {
		t.Errorf("got %v, want ErrZeroPositionClose", err)
	}
}

// ============================================================================
// Test: OpenInterestDelta
// ============================================================================

func TestOpenInterestDelta(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
		want     string
	}{
		{"open long", "0", "10", "10"},
		{"close long", "10", "0", "-10"},
		{"partial close long", "10", "6", "-4"},
		{"open short ignored", "0", "-10", "0"},
		{"short to short ignored", "-4", "-9", "0"},
		{"flip short to long", "-5", "3", "3"},
		{"flip long to short", "7", "-2", "-7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pnl.OpenInterestDelta(d(tc.old), d(tc.new))
			if !got.Equal(d(tc.want)) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
