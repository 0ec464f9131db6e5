package query

import (
	"context"
	"database/sql"
	"fmt"
)

// Service provides read-only access to the indexed tables. Queries are
// served from Postgres rather than the in-memory core so reads never
// contend with event processing; every response carries as_of_block for
// freshness semantics.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const instrumentColumns = `
	id, pool_id, collateral, underlying, symbol,
	position, entry_value, entry_funding,
	open_interest, total_volume, total_volume_usd, total_fee, tx_count,
	unit_accumulative_funding, last_price, last_mark_price,
	lp_funding, lp_total_pnl, lp_penalty`

func scanInstrument(row interface{ Scan(...interface{}) error }, r *InstrumentResponse) error {
	return row.Scan(
		&r.ID, &r.Pool, &r.Collateral, &r.Underlying, &r.Symbol,
		&r.Position, &r.EntryValue, &r.EntryFunding,
		&r.OpenInterest, &r.TotalVolume, &r.TotalVolumeUSD, &r.TotalFee, &r.TxCount,
		&r.UnitAccumulativeFunding, &r.LastPrice, &r.LastMarkPrice,
		&r.LpFunding, &r.LpTotalPnL, &r.LpPenalty,
	)
}

// ListInstruments returns all known perpetual markets ordered by id.
func (s *Service) ListInstruments(ctx context.Context) ([]InstrumentResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instrumentColumns+` FROM perp_indexer.instruments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InstrumentResponse
	for rows.Next() {
		var r InstrumentResponse
		if err := scanInstrument(rows, &r); err != nil {
			return nil, err
		}
		r.AsOfBlock = asOf
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetInstrument returns one market, or (nil, nil) when unknown.
func (s *Service) GetInstrument(ctx context.Context, id string) (*InstrumentResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var r InstrumentResponse
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM perp_indexer.instruments WHERE id = $1`, id)
	if err := scanInstrument(row, &r); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	r.AsOfBlock = asOf
	return &r, nil
}

// GetPositions returns all open books for a trader.
func (s *Service) GetPositions(ctx context.Context, trader string) ([]PositionResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT perpetual_id, trader, position, entry_value, entry_funding
		FROM perp_indexer.account_positions
		WHERE trader = $1
		ORDER BY perpetual_id
	`, trader)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionResponse
	for rows.Next() {
		var p PositionResponse
		if err := rows.Scan(&p.Perpetual, &p.Trader, &p.Position, &p.EntryValue, &p.EntryFunding); err != nil {
			return nil, err
		}
		p.AsOfBlock = asOf
		out = append(out, p)
	}
	return out, rows.Err()
}

// LegCursor addresses one leg in the global ordering. Pagination keys on the
// full (block, logIndex, legIndex) triple so that a page boundary falling
// inside a block does not skip the block's remaining legs.
type LegCursor struct {
	Block    int64
	LogIndex int64
	LegIndex int64
}

// GetTradeLegs returns a trader's leg history newest-first with cursor-based
// pagination. before, when set, restricts results to legs strictly earlier
// than the cursor; pass the last leg of the previous page to continue.
func (s *Service) GetTradeLegs(
	ctx context.Context,
	trader string,
	perpetual *string,
	limit int,
	before *LegCursor,
) ([]LegResponse, error) {
	query := `
		SELECT id, transaction_id, perpetual_id, trader, amount, price, mark_price,
		       fee, realized_pnl, is_close, leg_type, block_number, log_index,
		       leg_index, ts
		FROM perp_indexer.trade_legs
		WHERE trader = $1
	`
	args := []interface{}{trader}
	argIdx := 2

	if perpetual != nil {
		query += fmt.Sprintf(" AND perpetual_id = $%d", argIdx)
		args = append(args, *perpetual)
		argIdx++
	}

	if before != nil {
		query += fmt.Sprintf(" AND (block_number, log_index, leg_index) < ($%d, $%d, $%d)",
			argIdx, argIdx+1, argIdx+2)
		args = append(args, before.Block, before.LogIndex, before.LegIndex)
		argIdx += 3
	}

	query += " ORDER BY block_number DESC, log_index DESC, leg_index DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LegResponse
	for rows.Next() {
		var l LegResponse
		if err := rows.Scan(
			&l.ID, &l.TransactionID, &l.Perpetual, &l.Trader, &l.Amount, &l.Price,
			&l.MarkPrice, &l.Fee, &l.RealizedPnL, &l.IsClose, &l.LegType,
			&l.BlockNumber, &l.LogIndex, &l.LegIndex, &l.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetCandles returns OHLCV buckets for one market and resolution over
// [from, to] in unix seconds, oldest first.
func (s *Service) GetCandles(ctx context.Context, seriesID string, resolution, from, to int64) ([]CandleResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series, resolution, ts, open, high, low, close, volume
		FROM perp_indexer.candles
		WHERE series = $1 AND resolution = $2 AND ts >= $3 AND ts <= $4
		ORDER BY bucket_index
	`, seriesID, resolution, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandleResponse
	for rows.Next() {
		var c CandleResponse
		if err := rows.Scan(&c.Series, &c.Resolution, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCarrySeries returns pool margin snapshots for one pool and resolution
// over [from, to] in unix seconds, oldest first.
func (s *Service) GetCarrySeries(ctx context.Context, seriesID string, resolution, from, to int64) ([]CarryResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series, resolution, ts, pool_margin, pool_margin_usd, net_asset_value
		FROM perp_indexer.carry_buckets
		WHERE series = $1 AND resolution = $2 AND ts >= $3 AND ts <= $4
		ORDER BY bucket_index
	`, seriesID, resolution, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CarryResponse
	for rows.Next() {
		var c CarryResponse
		if err := rows.Scan(&c.Series, &c.Resolution, &c.Timestamp, &c.PoolMargin, &c.PoolMarginUSD, &c.NetAssetValue); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetFundingSeries returns funding rate snapshots for one market and
// resolution over [from, to] in unix seconds, oldest first.
func (s *Service) GetFundingSeries(ctx context.Context, seriesID string, resolution, from, to int64) ([]FundingResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series, resolution, ts, funding_rate
		FROM perp_indexer.funding_buckets
		WHERE series = $1 AND resolution = $2 AND ts >= $3 AND ts <= $4
		ORDER BY bucket_index
	`, seriesID, resolution, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FundingResponse
	for rows.Next() {
		var f FundingResponse
		if err := rows.Scan(&f.Series, &f.Resolution, &f.Timestamp, &f.FundingRate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_block, 0) FROM perp_indexer.watermark WHERE worker_id = 'main'
	`).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return block, err
}
