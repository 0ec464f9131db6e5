package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Writer persists indexer state to Postgres using batched multi-row INSERTs.
// State tables (instruments, positions, buckets) are upserts keyed on their
// natural keys; trade legs are append-only.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) DB() *sql.DB { return w.db }

// InstrumentRow is a row in perp_indexer.instruments.
type InstrumentRow struct {
	ID         string
	Pool       string
	Collateral string
	Underlying string
	Symbol     string

	Position     decimal.Decimal
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal

	OpenInterest            decimal.Decimal
	TotalVolume             decimal.Decimal
	TotalVolumeUSD          decimal.Decimal
	TotalFee                decimal.Decimal
	TxCount                 int64
	UnitAccumulativeFunding decimal.Decimal
	LastPrice               decimal.Decimal
	LastMarkPrice           decimal.Decimal
	PrevMarkPrice           decimal.Decimal

	LpFunding  decimal.Decimal
	LpTotalPnL decimal.Decimal
	LpPenalty  decimal.Decimal

	BlockNumber int64
}

// PositionRow is a row in perp_indexer.account_positions.
type PositionRow struct {
	Perpetual    string
	Trader       string
	Position     decimal.Decimal
	EntryValue   decimal.Decimal
	EntryFunding decimal.Decimal
	BlockNumber  int64
}

// LegRow is a row in perp_indexer.trade_legs.
type LegRow struct {
	ID            string
	TransactionID string
	LogIndex      int64
	LegIndex      int
	Perpetual     string
	Trader        string
	Amount        decimal.Decimal
	Price         decimal.Decimal
	MarkPrice     decimal.Decimal
	Fee           decimal.Decimal
	RealizedPnL   decimal.Decimal
	IsClose       bool
	LegType       string
	BlockNumber   int64
	Timestamp     int64
	WriteBatchID  string
}

// BucketRow is a row in one of the three time-series tables. The three tables
// share the (series, resolution, bucket_index) key; only the value columns
// differ, so the writer keeps one row type and three insert statements.
type BucketRow struct {
	Series     string
	Resolution int64
	Index      int64
	Timestamp  int64

	// candles
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal

	// carry buckets
	PoolMargin    decimal.Decimal
	PoolMarginUSD decimal.Decimal
	NetAssetValue decimal.Decimal

	// funding buckets
	FundingRate decimal.Decimal
}

// UpsertInstruments writes instrument rows, last write wins per id.
func (w *Writer) UpsertInstruments(ctx context.Context, tx *sql.Tx, rows []InstrumentRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.instruments
		(id, pool_id, collateral, underlying, symbol,
		 position, entry_value, entry_funding,
		 open_interest, total_volume, total_volume_usd, total_fee, tx_count,
		 unit_accumulative_funding, last_price, last_mark_price, prev_mark_price,
		 lp_funding, lp_total_pnl, lp_penalty, block_number)
		VALUES `

	const cols = 21
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.ID, r.Pool, r.Collateral, r.Underlying, r.Symbol,
			r.Position, r.EntryValue, r.EntryFunding,
			r.OpenInterest, r.TotalVolume, r.TotalVolumeUSD, r.TotalFee, r.TxCount,
			r.UnitAccumulativeFunding, r.LastPrice, r.LastMarkPrice, r.PrevMarkPrice,
			r.LpFunding, r.LpTotalPnL, r.LpPenalty, r.BlockNumber,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (id) DO UPDATE SET
		position = EXCLUDED.position,
		entry_value = EXCLUDED.entry_value,
		entry_funding = EXCLUDED.entry_funding,
		open_interest = EXCLUDED.open_interest,
		total_volume = EXCLUDED.total_volume,
		total_volume_usd = EXCLUDED.total_volume_usd,
		total_fee = EXCLUDED.total_fee,
		tx_count = EXCLUDED.tx_count,
		unit_accumulative_funding = EXCLUDED.unit_accumulative_funding,
		last_price = EXCLUDED.last_price,
		last_mark_price = EXCLUDED.last_mark_price,
		prev_mark_price = EXCLUDED.prev_mark_price,
		lp_funding = EXCLUDED.lp_funding,
		lp_total_pnl = EXCLUDED.lp_total_pnl,
		lp_penalty = EXCLUDED.lp_penalty,
		block_number = EXCLUDED.block_number`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPositions writes account position rows, last write wins per
// (perpetual, trader).
func (w *Writer) UpsertPositions(ctx context.Context, tx *sql.Tx, rows []PositionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.account_positions
		(perpetual_id, trader, position, entry_value, entry_funding, block_number)
		VALUES `

	const cols = 6
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, r.Perpetual, r.Trader, r.Position, r.EntryValue, r.EntryFunding, r.BlockNumber)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (perpetual_id, trader) DO UPDATE SET
		position = EXCLUDED.position,
		entry_value = EXCLUDED.entry_value,
		entry_funding = EXCLUDED.entry_funding,
		block_number = EXCLUDED.block_number`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// InsertLegs appends trade legs. Legs are immutable, so replays hit
// DO NOTHING.
func (w *Writer) InsertLegs(ctx context.Context, tx *sql.Tx, rows []LegRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.trade_legs
		(id, transaction_id, log_index, leg_index, perpetual_id, trader,
		 amount, price, mark_price, fee, realized_pnl, is_close, leg_type,
		 block_number, ts, write_batch_id)
		VALUES `

	const cols = 16
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.ID, r.TransactionID, r.LogIndex, r.LegIndex, r.Perpetual, r.Trader,
			r.Amount, r.Price, r.MarkPrice, r.Fee, r.RealizedPnL, r.IsClose, r.LegType,
			r.BlockNumber, r.Timestamp, r.WriteBatchID,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertCandles writes OHLCV rows keyed on (series, resolution, bucket_index).
func (w *Writer) UpsertCandles(ctx context.Context, tx *sql.Tx, rows []BucketRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.candles
		(series, resolution, bucket_index, ts, open, high, low, close, volume)
		VALUES `

	const cols = 9
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, r.Series, r.Resolution, r.Index, r.Timestamp, r.Open, r.High, r.Low, r.Close, r.Volume)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (series, resolution, bucket_index) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertCarryBuckets writes pool margin snapshot rows.
func (w *Writer) UpsertCarryBuckets(ctx context.Context, tx *sql.Tx, rows []BucketRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.carry_buckets
		(series, resolution, bucket_index, ts, pool_margin, pool_margin_usd, net_asset_value)
		VALUES `

	const cols = 7
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, r.Series, r.Resolution, r.Index, r.Timestamp, r.PoolMargin, r.PoolMarginUSD, r.NetAssetValue)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (series, resolution, bucket_index) DO UPDATE SET
		pool_margin = EXCLUDED.pool_margin,
		pool_margin_usd = EXCLUDED.pool_margin_usd,
		net_asset_value = EXCLUDED.net_asset_value`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertFundingBuckets writes funding rate snapshot rows.
func (w *Writer) UpsertFundingBuckets(ctx context.Context, tx *sql.Tx, rows []BucketRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO perp_indexer.funding_buckets
		(series, resolution, bucket_index, ts, funding_rate)
		VALUES `

	const cols = 5
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, r.Series, r.Resolution, r.Index, r.Timestamp, r.FundingRate)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (series, resolution, bucket_index) DO UPDATE SET
		funding_rate = EXCLUDED.funding_rate`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($n+1, $n+2, ...)" for one row.
func placeholders(base, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
