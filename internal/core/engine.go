package core

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/ledger"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/oracle"
	"PerpIndexer/internal/series"
	"PerpIndexer/internal/state"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config carries the injected aggregation setup. PoolNames is the
// certified-pool name table, keyed by pool id, explicit configuration
// rather than a process-wide static lookup.
type Config struct {
	TradeResolutions   []series.Resolution
	CarryResolutions   []series.Resolution
	FundingResolutions []series.Resolution
	PoolNames          map[string]string
}

func DefaultConfig() Config {
	return Config{
		TradeResolutions:   series.TradeResolutions(),
		CarryResolutions:   []series.Resolution{series.Res1h, series.Res1d},
		FundingResolutions: []series.Resolution{series.Res1m, series.Res1h},
		PoolNames:          map[string]string{},
	}
}

// Output is what one applied event produced: the entities it dirtied and
// the records it created, handed to the persistence worker.
type Output struct {
	Kind event.Kind
	Prov event.Provenance

	Instruments    []*state.Instrument
	Positions      []*state.AccountPosition
	Legs           []*state.TradeLeg
	Candles        []*series.Candle
	CarryBuckets   []*series.CarryBucket
	FundingBuckets []*series.FundingBucket
}

// Core is the single-threaded deterministic event processor. It owns every
// keyed store; all processing is a fold over the ordered event sequence
// with no wall-clock reads and no locks.
type Core struct {
	cfg Config

	instruments *state.InstrumentStore
	positions   *state.PositionStore
	legs        *state.LegStore
	ledger      *ledger.AccountLedger

	candles  []*series.CandleStore
	carries  []*series.CarryStore
	fundings []*series.FundingStore

	quotes   oracle.Oracle
	ordering *OrderingValidator
	metrics  *observability.Metrics
	log      zerolog.Logger

	persistChan chan<- Output
}

func NewCore(
	cfg Config,
	quotes oracle.Oracle,
	persistChan chan<- Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Core {
	instruments := state.NewInstrumentStore()
	positions := state.NewPositionStore()
	legs := state.NewLegStore()

	candles := make([]*series.CandleStore, 0, len(cfg.TradeResolutions))
	for _, r := range cfg.TradeResolutions {
		candles = append(candles, series.NewCandleStore(r))
	}
	carries := make([]*series.CarryStore, 0, len(cfg.CarryResolutions))
	for _, r := range cfg.CarryResolutions {
		carries = append(carries, series.NewCarryStore(r))
	}
	fundings := make([]*series.FundingStore, 0, len(cfg.FundingResolutions))
	for _, r := range cfg.FundingResolutions {
		fundings = append(fundings, series.NewFundingStore(r))
	}

	return &Core{
		cfg:         cfg,
		instruments: instruments,
		positions:   positions,
		legs:        legs,
		ledger:      ledger.NewAccountLedger(instruments, positions, legs, quotes, log),
		candles:     candles,
		carries:     carries,
		fundings:    fundings,
		quotes:      quotes,
		ordering:    NewOrderingValidator(),
		metrics:     metrics,
		log:         log,
		persistChan: persistChan,
	}
}

// ProcessEvent is the main processing pipeline: validate ordering, dispatch,
// emit the output. Any returned error is fatal to the stream; the caller
// must stop feeding events rather than skip.
func (c *Core) ProcessEvent(evt event.Event) error {
	start := time.Now()
	kind := evt.Kind().String()
	prov := evt.Provenance()

	if err := c.ordering.Validate(prov); err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(kind, "out_of_order").Inc()
		}
		return fmt.Errorf("%s: %w", kind, err)
	}

	output, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(kind, "dispatch").Inc()
		}
		return fmt.Errorf("%s at (%d,%d): %w", kind, prov.BlockNumber, prov.LogIndex, err)
	}

	output.Kind = evt.Kind()
	output.Prov = prov

	// Persistence: blocking send; the core stalls until the persistence
	// worker drains, so no output is lost.
	if c.persistChan != nil {
		c.persistChan <- output
	}

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(kind).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		c.metrics.CoreBlockHeight.Set(float64(prov.BlockNumber))
	}

	return nil
}

func (c *Core) dispatchEvent(evt event.Event) (Output, error) {
	switch e := evt.(type) {
	case *event.CreatePerpetual:
		return c.handleCreatePerpetual(e)
	case *event.Trade:
		return c.handleTrade(e)
	case *event.Liquidate:
		return c.handleLiquidate(e)
	case *event.UpdatePoolMargin:
		return c.handleUpdatePoolMargin(e)
	case *event.UpdateUnitAccumulativeFunding:
		return c.handleUpdateUnitAccumulativeFunding(e)
	case *event.UpdateFundingRate:
		return c.handleUpdateFundingRate(e)
	default:
		return Output{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *Core) handleCreatePerpetual(evt *event.CreatePerpetual) (Output, error) {
	symbol := evt.Symbol
	if symbol == "" {
		if name, ok := c.cfg.PoolNames[evt.Pool]; ok {
			symbol = name + "-" + evt.Underlying
		}
	}

	inst := c.instruments.Create(&state.Instrument{
		ID:         evt.Perpetual,
		Pool:       evt.Pool,
		Collateral: evt.Collateral,
		Underlying: evt.Underlying,
		Symbol:     symbol,
	})

	c.log.Info().
		Str("perpetual", inst.ID).
		Str("pool", inst.Pool).
		Str("symbol", inst.Symbol).
		Msg("perpetual created")

	return Output{Instruments: []*state.Instrument{inst}}, nil
}

func (c *Core) handleTrade(evt *event.Trade) (Output, error) {
	legs, err := c.ledger.ApplyTrade(evt)
	if err != nil {
		return Output{}, err
	}

	return c.tradeOutput(evt.Perpetual, evt.Trader, legs,
		c.upsertCandles(evt.Perpetual, evt.Prov.Timestamp, evt.Price, evt.Amount))
}

func (c *Core) handleLiquidate(evt *event.Liquidate) (Output, error) {
	legs, err := c.ledger.ApplyLiquidate(evt)
	if err != nil {
		return Output{}, err
	}

	return c.tradeOutput(evt.Perpetual, evt.Trader, legs,
		c.upsertCandles(evt.Perpetual, evt.Prov.Timestamp, evt.Price, evt.Amount))
}

func (c *Core) tradeOutput(perpetual, trader string, legs []*state.TradeLeg, candles []*series.Candle) (Output, error) {
	inst, err := c.instruments.Get(perpetual)
	if err != nil {
		return Output{}, err
	}
	pos, _ := c.positions.Get(perpetual, trader)

	if c.metrics != nil {
		for _, leg := range legs {
			c.metrics.LegsEmitted.WithLabelValues(leg.Type.String(), strconv.FormatBool(leg.IsClose)).Inc()
		}
		c.metrics.PositionsTracked.Set(float64(len(c.positions.All())))
	}

	return Output{
		Instruments: []*state.Instrument{inst},
		Positions:   []*state.AccountPosition{pos},
		Legs:        legs,
		Candles:     candles,
	}, nil
}

// upsertCandles feeds all trade grids; each resolution is its own store
// and each store is updated once per event.
func (c *Core) upsertCandles(perpetual string, timestamp int64, price, amount decimal.Decimal) []*series.Candle {
	out := make([]*series.Candle, 0, len(c.candles))
	for _, s := range c.candles {
		out = append(out, s.Upsert(perpetual, timestamp, price, amount))
		if c.metrics != nil {
			c.metrics.CandleUpserts.WithLabelValues(resolutionLabel(s.Resolution())).Inc()
		}
	}
	return out
}

func (c *Core) handleUpdatePoolMargin(evt *event.UpdatePoolMargin) (Output, error) {
	price := c.quotes.QuotePrice(evt.Collateral)

	buckets := make([]*series.CarryBucket, 0, len(c.carries))
	for _, s := range c.carries {
		buckets = append(buckets, s.Upsert(evt.Pool, evt.Prov.Timestamp, evt.PoolMargin, price, evt.TotalSupply))
		if c.metrics != nil {
			c.metrics.CarryUpserts.WithLabelValues(resolutionLabel(s.Resolution())).Inc()
		}
	}

	return Output{CarryBuckets: buckets}, nil
}

func (c *Core) handleUpdateUnitAccumulativeFunding(evt *event.UpdateUnitAccumulativeFunding) (Output, error) {
	inst, err := c.instruments.Get(evt.Perpetual)
	if err != nil {
		return Output{}, err
	}

	inst.UnitAccumulativeFunding = evt.UnitAccumulativeFunding
	return Output{Instruments: []*state.Instrument{inst}}, nil
}

func (c *Core) handleUpdateFundingRate(evt *event.UpdateFundingRate) (Output, error) {
	if _, err := c.instruments.Get(evt.Perpetual); err != nil {
		return Output{}, err
	}

	buckets := make([]*series.FundingBucket, 0, len(c.fundings))
	for _, s := range c.fundings {
		buckets = append(buckets, s.Upsert(evt.Perpetual, evt.Prov.Timestamp, evt.FundingRate))
		if c.metrics != nil {
			c.metrics.FundingUpserts.WithLabelValues(resolutionLabel(s.Resolution())).Inc()
		}
	}

	return Output{FundingBuckets: buckets}, nil
}

func resolutionLabel(r series.Resolution) string {
	return strconv.FormatInt(int64(r), 10)
}

// --- Read-side accessors ---

// LastApplied reports how far the fold has progressed: the provenance of the
// most recently applied event, and false before the first event.
func (c *Core) LastApplied() (event.Provenance, bool) { return c.ordering.Last() }

// Instruments exposes the instrument store to the query side.
func (c *Core) Instruments() *state.InstrumentStore { return c.instruments }

// Positions exposes the position store to the query side.
func (c *Core) Positions() *state.PositionStore { return c.positions }

// Legs exposes the leg store to the query side.
func (c *Core) Legs() *state.LegStore { return c.legs }

// Candles returns the candle store for one resolution, if configured.
func (c *Core) Candles(r series.Resolution) (*series.CandleStore, bool) {
	for _, s := range c.candles {
		if s.Resolution() == r {
			return s, true
		}
	}
	return nil, false
}

// CarrySeries returns the carry store for one resolution, if configured.
func (c *Core) CarrySeries(r series.Resolution) (*series.CarryStore, bool) {
	for _, s := range c.carries {
		if s.Resolution() == r {
			return s, true
		}
	}
	return nil, false
}

// FundingSeries returns the funding store for one resolution, if configured.
func (c *Core) FundingSeries(r series.Resolution) (*series.FundingStore, bool) {
	for _, s := range c.fundings {
		if s.Resolution() == r {
			return s, true
		}
	}
	return nil, false
}
