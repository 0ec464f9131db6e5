package query

import "github.com/shopspring/decimal"

// InstrumentResponse represents a perpetual market for API queries.
type InstrumentResponse struct {
	ID         string `json:"id"`
	Pool       string `json:"pool_id"`
	Collateral string `json:"collateral"`
	Underlying string `json:"underlying"`
	Symbol     string `json:"symbol"`

	Position     decimal.Decimal `json:"amm_position"`
	EntryValue   decimal.Decimal `json:"amm_entry_value"`
	EntryFunding decimal.Decimal `json:"amm_entry_funding"`

	OpenInterest            decimal.Decimal `json:"open_interest"`
	TotalVolume             decimal.Decimal `json:"total_volume"`
	TotalVolumeUSD          decimal.Decimal `json:"total_volume_usd"`
	TotalFee                decimal.Decimal `json:"total_fee"`
	TxCount                 int64           `json:"tx_count"`
	UnitAccumulativeFunding decimal.Decimal `json:"unit_accumulative_funding"`
	LastPrice               decimal.Decimal `json:"last_price"`
	LastMarkPrice           decimal.Decimal `json:"last_mark_price"`

	LpFunding  decimal.Decimal `json:"lp_funding"`
	LpTotalPnL decimal.Decimal `json:"lp_total_pnl"`
	LpPenalty  decimal.Decimal `json:"lp_penalty"`

	AsOfBlock int64 `json:"as_of_block"`
}

// PositionResponse represents one trader's book in one market.
type PositionResponse struct {
	Perpetual    string          `json:"perpetual_id"`
	Trader       string          `json:"trader"`
	Position     decimal.Decimal `json:"position"`
	EntryValue   decimal.Decimal `json:"entry_value"`
	EntryFunding decimal.Decimal `json:"entry_funding"`
	AsOfBlock    int64           `json:"as_of_block"`
}

// LegResponse represents one settled trade leg.
type LegResponse struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Perpetual     string          `json:"perpetual_id"`
	Trader        string          `json:"trader"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	Fee           decimal.Decimal `json:"fee"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	IsClose       bool            `json:"is_close"`
	LegType       string          `json:"leg_type"`
	BlockNumber   int64           `json:"block_number"`
	LogIndex      int64           `json:"log_index"`
	LegIndex      int64           `json:"leg_index"`
	Timestamp     int64           `json:"timestamp"`
}

// CandleResponse represents one OHLCV bucket.
type CandleResponse struct {
	Series     string          `json:"series"`
	Resolution int64           `json:"resolution"`
	Timestamp  int64           `json:"timestamp"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
}

// CarryResponse represents one pool margin snapshot bucket.
type CarryResponse struct {
	Series        string          `json:"series"`
	Resolution    int64           `json:"resolution"`
	Timestamp     int64           `json:"timestamp"`
	PoolMargin    decimal.Decimal `json:"pool_margin"`
	PoolMarginUSD decimal.Decimal `json:"pool_margin_usd"`
	NetAssetValue decimal.Decimal `json:"net_asset_value"`
}

// FundingResponse represents one funding rate snapshot bucket.
type FundingResponse struct {
	Series      string          `json:"series"`
	Resolution  int64           `json:"resolution"`
	Timestamp   int64           `json:"timestamp"`
	FundingRate decimal.Decimal `json:"funding_rate"`
}
