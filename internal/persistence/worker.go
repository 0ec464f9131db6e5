package persistence

import (
	"PerpIndexer/internal/core"
	"PerpIndexer/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Worker drains the core output channel and batch-writes to Postgres.
// It runs independently from the deterministic core; the output channel
// uses BLOCKING sends from the core, so if this worker falls behind, the
// core stalls rather than dropping an output.
type Worker struct {
	writer       *Writer
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// batch accumulates rows between flushes. State rows are deduplicated on
// their natural key with last write winning; Postgres rejects a multi-row
// upsert that touches the same key twice, and within one batch only the
// final value matters anyway. Legs are append-only and keep arrival order.
type batch struct {
	instruments map[string]InstrumentRow
	positions   map[string]PositionRow
	legs        []LegRow
	candles     map[string]BucketRow
	carries     map[string]BucketRow
	fundings    map[string]BucketRow

	outputs   int
	lastBlock int64
}

func newBatch() *batch {
	return &batch{
		instruments: make(map[string]InstrumentRow),
		positions:   make(map[string]PositionRow),
		candles:     make(map[string]BucketRow),
		carries:     make(map[string]BucketRow),
		fundings:    make(map[string]BucketRow),
	}
}

func bucketKey(series string, resolution, index int64) string {
	return fmt.Sprintf("%s/%d/%d", series, resolution, index)
}

func (b *batch) add(output core.Output, writeBatchID string) {
	for _, inst := range output.Instruments {
		b.instruments[inst.ID] = InstrumentRow{
			ID:         inst.ID,
			Pool:       inst.Pool,
			Collateral: inst.Collateral,
			Underlying: inst.Underlying,
			Symbol:     inst.Symbol,

			Position:     inst.Position,
			EntryValue:   inst.EntryValue,
			EntryFunding: inst.EntryFunding,

			OpenInterest:            inst.OpenInterest,
			TotalVolume:             inst.TotalVolume,
			TotalVolumeUSD:          inst.TotalVolumeUSD,
			TotalFee:                inst.TotalFee,
			TxCount:                 inst.TxCount,
			UnitAccumulativeFunding: inst.UnitAccumulativeFunding,
			LastPrice:               inst.LastPrice,
			LastMarkPrice:           inst.LastMarkPrice,
			PrevMarkPrice:           inst.PrevMarkPrice,

			LpFunding:  inst.LpFunding,
			LpTotalPnL: inst.LpTotalPnL,
			LpPenalty:  inst.LpPenalty,

			BlockNumber: output.Prov.BlockNumber,
		}
	}

	for _, pos := range output.Positions {
		b.positions[pos.Perpetual+"/"+pos.Trader] = PositionRow{
			Perpetual:    pos.Perpetual,
			Trader:       pos.Trader,
			Position:     pos.Position,
			EntryValue:   pos.EntryValue,
			EntryFunding: pos.EntryFunding,
			BlockNumber:  output.Prov.BlockNumber,
		}
	}

	for _, leg := range output.Legs {
		b.legs = append(b.legs, LegRow{
			ID:            leg.ID(),
			TransactionID: leg.TransactionID,
			LogIndex:      leg.LogIndex,
			LegIndex:      int(leg.LegIndex),
			Perpetual:     leg.Perpetual,
			Trader:        leg.Trader,
			Amount:        leg.Amount,
			Price:         leg.Price,
			MarkPrice:     leg.MarkPrice,
			Fee:           leg.Fee,
			RealizedPnL:   leg.RealizedPnL,
			IsClose:       leg.IsClose,
			LegType:       leg.Type.String(),
			BlockNumber:   leg.BlockNumber,
			Timestamp:     leg.Timestamp,
			WriteBatchID:  writeBatchID,
		})
	}

	for _, c := range output.Candles {
		b.candles[bucketKey(c.Series, int64(c.Resolution), c.Index)] = BucketRow{
			Series:     c.Series,
			Resolution: int64(c.Resolution),
			Index:      c.Index,
			Timestamp:  c.Timestamp,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volume:     c.Volume,
		}
	}

	for _, cb := range output.CarryBuckets {
		b.carries[bucketKey(cb.Series, int64(cb.Resolution), cb.Index)] = BucketRow{
			Series:        cb.Series,
			Resolution:    int64(cb.Resolution),
			Index:         cb.Index,
			Timestamp:     cb.Timestamp,
			PoolMargin:    cb.PoolMargin,
			PoolMarginUSD: cb.PoolMarginUSD,
			NetAssetValue: cb.NetAssetValue,
		}
	}

	for _, fb := range output.FundingBuckets {
		b.fundings[bucketKey(fb.Series, int64(fb.Resolution), fb.Index)] = BucketRow{
			Series:      fb.Series,
			Resolution:  int64(fb.Resolution),
			Index:       fb.Index,
			Timestamp:   fb.Timestamp,
			FundingRate: fb.FundingRate,
		}
	}

	b.outputs++
	if output.Prov.BlockNumber > b.lastBlock {
		b.lastBlock = output.Prov.BlockNumber
	}
}

func (b *batch) empty() bool { return b.outputs == 0 }

// Run starts the worker loop. It batches incoming outputs and flushes either
// when the batch is full or the flush timeout expires. The producer owns the
// channel close; Run returns only once the channel is closed and the final
// batch is flushed, even after ctx is cancelled.
func (pw *Worker) Run(ctx context.Context) error {
	current := newBatch()
	writeBatchID := uuid.NewString()

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: keep draining until the producer closes the
			// channel, so the core is never left blocked in a send, then
			// flush the remainder with a background context.
			for output := range pw.inputChan {
				current.add(output, writeBatchID)
				if current.outputs >= pw.batchSize {
					if err := pw.flush(context.Background(), current); err != nil {
						pw.log.Error().Err(err).Msg("drain flush failed")
					}
					current = newBatch()
					writeBatchID = uuid.NewString()
				}
			}
			if !current.empty() {
				if err := pw.flush(context.Background(), current); err != nil {
					pw.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if !current.empty() {
					if err := pw.flush(context.Background(), current); err != nil {
						pw.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			current.add(output, writeBatchID)

			if current.outputs >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, current); err != nil {
					pw.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				current = newBatch()
				writeBatchID = uuid.NewString()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if !current.empty() {
				if err := pw.flushWithRetry(ctx, current); err != nil {
					pw.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				current = newBatch()
				writeBatchID = uuid.NewString()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker never
// drops a batch; it retries until the write succeeds or the context is
// cancelled, in which case it makes one final attempt with a background
// context before giving up.
func (pw *Worker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("outputs", b.outputs).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), b); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				pw.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (pw *Worker) flush(ctx context.Context, b *batch) error {
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	instruments := make([]InstrumentRow, 0, len(b.instruments))
	for _, r := range b.instruments {
		instruments = append(instruments, r)
	}
	positions := make([]PositionRow, 0, len(b.positions))
	for _, r := range b.positions {
		positions = append(positions, r)
	}
	candles := make([]BucketRow, 0, len(b.candles))
	for _, r := range b.candles {
		candles = append(candles, r)
	}
	carries := make([]BucketRow, 0, len(b.carries))
	for _, r := range b.carries {
		carries = append(carries, r)
	}
	fundings := make([]BucketRow, 0, len(b.fundings))
	for _, r := range b.fundings {
		fundings = append(fundings, r)
	}

	steps := []struct {
		entity string
		rows   int
		write  func() error
	}{
		{"instruments", len(instruments), func() error { return pw.writer.UpsertInstruments(ctx, tx, instruments) }},
		{"positions", len(positions), func() error { return pw.writer.UpsertPositions(ctx, tx, positions) }},
		{"trade_legs", len(b.legs), func() error { return pw.writer.InsertLegs(ctx, tx, b.legs) }},
		{"candles", len(candles), func() error { return pw.writer.UpsertCandles(ctx, tx, candles) }},
		{"carry_buckets", len(carries), func() error { return pw.writer.UpsertCarryBuckets(ctx, tx, carries) }},
		{"funding_buckets", len(fundings), func() error { return pw.writer.UpsertFundingBuckets(ctx, tx, fundings) }},
	}

	for _, step := range steps {
		if err := step.write(); err != nil {
			if pw.metrics != nil {
				pw.metrics.PersistErrors.WithLabelValues(step.entity).Inc()
			}
			return fmt.Errorf("write %s: %w", step.entity, err)
		}
	}

	// Advance the read watermark in the same transaction so queries never
	// observe a block as durable before all its rows are.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO perp_indexer.watermark (worker_id, last_block, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET
			last_block = GREATEST(perp_indexer.watermark.last_block, EXCLUDED.last_block),
			updated_at = NOW()
	`, b.lastBlock); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("watermark").Inc()
		}
		return fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchSize.Observe(float64(b.outputs))
		for _, step := range steps {
			pw.metrics.PersistRowsWritten.WithLabelValues(step.entity).Add(float64(step.rows))
		}
		pw.metrics.PersistLastBlock.Set(float64(b.lastBlock))
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *Worker) GetWriter() *Writer {
	return pw.writer
}
