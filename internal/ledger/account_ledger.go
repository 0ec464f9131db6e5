package ledger

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/oracle"
	"PerpIndexer/internal/pnl"
	"PerpIndexer/internal/state"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountLedger owns the position records and turns trade/liquidation events
// into leg records and instrument aggregate updates. Not thread-safe; only
// accessed from the single-threaded core.
type AccountLedger struct {
	instruments *state.InstrumentStore
	positions   *state.PositionStore
	legs        *state.LegStore
	quotes      oracle.Oracle
	log         zerolog.Logger
}

func NewAccountLedger(
	instruments *state.InstrumentStore,
	positions *state.PositionStore,
	legs *state.LegStore,
	quotes oracle.Oracle,
	log zerolog.Logger,
) *AccountLedger {
	return &AccountLedger{
		instruments: instruments,
		positions:   positions,
		legs:        legs,
		quotes:      quotes,
		log:         log,
	}
}

// ApplyTrade splits the trade delta against the trader's position, settles
// PnL and funding on the close component, accumulates basis on the open
// component, and updates the instrument's per-event aggregates.
// Returns the emitted legs (zero, one, or two).
func (l *AccountLedger) ApplyTrade(evt *event.Trade) ([]*state.TradeLeg, error) {
	inst, err := l.instruments.Get(evt.Perpetual)
	if err != nil {
		return nil, fmt.Errorf("trade %s-%d: %w", evt.Prov.TransactionID, evt.Prov.LogIndex, err)
	}

	legs, err := l.applyFill(inst, evt.Trader, evt.Amount, evt.Price, evt.MarkPrice,
		evt.Fee, state.LegNormal, evt.Prov)
	if err != nil {
		return nil, err
	}

	l.updateTradeAggregates(inst, evt.Amount, evt.Price, evt.MarkPrice, evt.Fee)
	return legs, nil
}

// ApplyLiquidate is the liquidation variant of ApplyTrade. A liquidation
// taken by the AMM additionally settles the pool's own book against the
// instrument's pre-update position and feeds the LP accumulators; a
// liquidation taken by another trader leaves them untouched.
func (l *AccountLedger) ApplyLiquidate(evt *event.Liquidate) ([]*state.TradeLeg, error) {
	inst, err := l.instruments.Get(evt.Perpetual)
	if err != nil {
		return nil, fmt.Errorf("liquidate %s-%d: %w", evt.Prov.TransactionID, evt.Prov.LogIndex, err)
	}

	legType := state.LegLiquidatedByTrader
	if evt.Liquidation == event.LiquidationByAMM {
		legType = state.LegLiquidatedByAMM
	}

	legs, err := l.applyFill(inst, evt.Trader, evt.Amount, evt.Price, evt.MarkPrice,
		evt.Fee, legType, evt.Prov)
	if err != nil {
		return nil, err
	}

	if evt.Liquidation == event.LiquidationByAMM {
		if err := l.settleAMMSide(inst, evt); err != nil {
			return nil, err
		}
	}

	l.updateTradeAggregates(inst, evt.Amount, evt.Price, evt.MarkPrice, evt.Fee)
	return legs, nil
}

// applyFill runs the splitter and settlement against one account and emits
// the resulting legs. Open-interest delta is applied once per fill from the
// old/new position pair.
func (l *AccountLedger) applyFill(
	inst *state.Instrument,
	trader string,
	amount, price, markPrice, fee decimal.Decimal,
	legType state.LegType,
	prov event.Provenance,
) ([]*state.TradeLeg, error) {
	pos := l.positions.LoadOrCreate(inst.ID, trader)
	oldPosition := pos.Position

	close, open := pnl.Split(pos.Position, amount)
	legs := make([]*state.TradeLeg, 0, 2)
	legIndex := int32(0)

	if !close.IsZero() {
		settled, err := pnl.SettleClose(
			pos.Position, pos.EntryValue, pos.EntryFunding,
			close, amount, price, inst.UnitAccumulativeFunding, fee,
		)
		if err != nil {
			return nil, fmt.Errorf("close leg for %s/%s: %w", inst.ID, trader, err)
		}

		pos.Position = settled.Position
		pos.EntryValue = settled.EntryValue
		pos.EntryFunding = settled.EntryFunding

		legs = append(legs, l.emitLeg(inst, trader, settled.Amount, price, markPrice,
			settled.FeeShare, settled.PnL, true, legType, legIndex, prov))
		legIndex++
	}

	if !open.IsZero() {
		settled := pnl.SettleOpen(
			pos.Position, pos.EntryValue, pos.EntryFunding,
			open, amount, price, inst.UnitAccumulativeFunding, fee,
		)

		pos.Position = settled.Position
		pos.EntryValue = settled.EntryValue
		pos.EntryFunding = settled.EntryFunding

		legs = append(legs, l.emitLeg(inst, trader, settled.Amount, price, markPrice,
			settled.FeeShare, decimal.Zero, false, legType, legIndex, prov))
	}

	inst.OpenInterest = inst.OpenInterest.Add(pnl.OpenInterestDelta(oldPosition, pos.Position))

	return legs, nil
}

func (l *AccountLedger) emitLeg(
	inst *state.Instrument,
	trader string,
	amount, price, markPrice, fee, legPnL decimal.Decimal,
	isClose bool,
	legType state.LegType,
	legIndex int32,
	prov event.Provenance,
) *state.TradeLeg {
	leg := &state.TradeLeg{
		TransactionID: prov.TransactionID,
		LogIndex:      prov.LogIndex,
		LegIndex:      legIndex,
		Perpetual:     inst.ID,
		Trader:        trader,
		Amount:        amount,
		Price:         price,
		MarkPrice:     markPrice,
		Fee:           fee,
		RealizedPnL:   legPnL,
		IsClose:       isClose,
		Type:          legType,
		BlockNumber:   prov.BlockNumber,
		Timestamp:     prov.Timestamp,
	}

	l.legs.Append(leg)

	l.log.Debug().
		Str("leg", leg.ID()).
		Str("perpetual", inst.ID).
		Str("trader", trader).
		Str("amount", amount.String()).
		Bool("close", isClose).
		Msg("leg emitted")

	return leg
}

// settleAMMSide applies the liquidated amount's counter-fill to the pool's
// own book. The settlement reads the instrument's position as it stood
// before this update; the by-AMM path is the only writer of the LP
// accumulators, and the by-trader path never reaches here.
func (l *AccountLedger) settleAMMSide(inst *state.Instrument, evt *event.Liquidate) error {
	ammDelta := evt.Amount.Neg()
	close, open := pnl.Split(inst.Position, ammDelta)

	if !close.IsZero() {
		settled, err := pnl.SettleClose(
			inst.Position, inst.EntryValue, inst.EntryFunding,
			close, ammDelta, evt.Price, inst.UnitAccumulativeFunding, decimal.Zero,
		)
		if err != nil {
			return fmt.Errorf("amm close leg for %s: %w", inst.ID, err)
		}

		inst.Position = settled.Position
		inst.EntryValue = settled.EntryValue
		inst.EntryFunding = settled.EntryFunding
		inst.LpFunding = inst.LpFunding.Add(settled.FundingPnL)
		inst.LpTotalPnL = inst.LpTotalPnL.Add(settled.PnL)
	}

	if !open.IsZero() {
		settled := pnl.SettleOpen(
			inst.Position, inst.EntryValue, inst.EntryFunding,
			open, ammDelta, evt.Price, inst.UnitAccumulativeFunding, decimal.Zero,
		)

		inst.Position = settled.Position
		inst.EntryValue = settled.EntryValue
		inst.EntryFunding = settled.EntryFunding
	}

	inst.LpPenalty = inst.LpPenalty.Add(evt.Penalty)
	return nil
}

// updateTradeAggregates applies the once-per-event instrument totals using
// the event's full amount/price/fee, independent of how many legs it split
// into. A missing oracle price contributes zero USD volume for the event.
func (l *AccountLedger) updateTradeAggregates(
	inst *state.Instrument,
	amount, price, markPrice, fee decimal.Decimal,
) {
	volume := amount.Abs().Mul(price)
	quote := l.quotes.QuotePrice(inst.Collateral)

	inst.TotalVolume = inst.TotalVolume.Add(volume)
	inst.TotalVolumeUSD = inst.TotalVolumeUSD.Add(volume.Mul(quote))
	inst.TotalFee = inst.TotalFee.Add(fee)
	inst.TxCount++

	inst.LastPrice = price
	inst.PrevMarkPrice = inst.LastMarkPrice
	inst.LastMarkPrice = markPrice
}
