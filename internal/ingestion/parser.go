package ingestion

import (
	"PerpIndexer/internal/event"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The shell validates and parses raw events before sending
// them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "CreatePerpetual":
		return parseCreatePerpetual(raw.Data)
	case "Trade":
		return parseTrade(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	case "UpdatePoolMargin":
		return parseUpdatePoolMargin(raw.Data)
	case "UpdateUnitAccumulativeFunding":
		return parseUpdateUnitAccumulativeFunding(raw.Data)
	case "UpdateFundingRate":
		return parseUpdateFundingRate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers; fixed-point
// quantities travel as decimal strings.

type provenanceJSON struct {
	TransactionID string `json:"transaction_id"`
	LogIndex      int64  `json:"log_index"`
	BlockNumber   int64  `json:"block_number"`
	Timestamp     int64  `json:"timestamp"`
}

func (p provenanceJSON) provenance() event.Provenance {
	return event.Provenance{
		TransactionID: p.TransactionID,
		LogIndex:      p.LogIndex,
		BlockNumber:   p.BlockNumber,
		Timestamp:     p.Timestamp,
	}
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

type createPerpetualJSON struct {
	Perpetual  string `json:"perpetual_id"`
	Pool       string `json:"pool_id"`
	Collateral string `json:"collateral"`
	Underlying string `json:"underlying"`
	Symbol     string `json:"symbol"`
	provenanceJSON
}

func parseCreatePerpetual(data []byte) (*event.CreatePerpetual, error) {
	var j createPerpetualJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreatePerpetual: %w", err)
	}
	if j.Perpetual == "" {
		return nil, fmt.Errorf("parse CreatePerpetual: empty perpetual_id")
	}
	return &event.CreatePerpetual{
		Perpetual:  j.Perpetual,
		Pool:       j.Pool,
		Collateral: j.Collateral,
		Underlying: j.Underlying,
		Symbol:     j.Symbol,
		Prov:       j.provenance(),
	}, nil
}

type tradeJSON struct {
	Perpetual string `json:"perpetual_id"`
	Trader    string `json:"trader"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	MarkPrice string `json:"mark_price"`
	Fee       string `json:"fee"`
	provenanceJSON
}

func parseTrade(data []byte) (*event.Trade, error) {
	var j tradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Trade: %w", err)
	}

	amount, err := parseDecimal("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal("price", j.Price)
	if err != nil {
		return nil, err
	}
	markPrice, err := parseDecimal("mark_price", j.MarkPrice)
	if err != nil {
		return nil, err
	}
	fee, err := parseDecimal("fee", j.Fee)
	if err != nil {
		return nil, err
	}

	return &event.Trade{
		Perpetual: j.Perpetual,
		Trader:    j.Trader,
		Amount:    amount,
		Price:     price,
		MarkPrice: markPrice,
		Fee:       fee,
		Prov:      j.provenance(),
	}, nil
}

type liquidateJSON struct {
	Perpetual string `json:"perpetual_id"`
	Trader    string `json:"trader"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	MarkPrice string `json:"mark_price"`
	Fee       string `json:"fee"`
	Penalty   string `json:"penalty"`
	ByAMM     bool   `json:"by_amm"`
	provenanceJSON
}

func parseLiquidate(data []byte) (*event.Liquidate, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}

	amount, err := parseDecimal("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal("price", j.Price)
	if err != nil {
		return nil, err
	}
	markPrice, err := parseDecimal("mark_price", j.MarkPrice)
	if err != nil {
		return nil, err
	}
	fee, err := parseDecimal("fee", j.Fee)
	if err != nil {
		return nil, err
	}
	penalty, err := parseDecimal("penalty", j.Penalty)
	if err != nil {
		return nil, err
	}

	liquidation := event.LiquidationByTrader
	if j.ByAMM {
		liquidation = event.LiquidationByAMM
	}

	return &event.Liquidate{
		Perpetual:   j.Perpetual,
		Trader:      j.Trader,
		Amount:      amount,
		Price:       price,
		MarkPrice:   markPrice,
		Fee:         fee,
		Penalty:     penalty,
		Liquidation: liquidation,
		Prov:        j.provenance(),
	}, nil
}

type updatePoolMarginJSON struct {
	Pool        string `json:"pool_id"`
	Collateral  string `json:"collateral"`
	PoolMargin  string `json:"pool_margin"`
	TotalSupply string `json:"total_supply"`
	provenanceJSON
}

func parseUpdatePoolMargin(data []byte) (*event.UpdatePoolMargin, error) {
	var j updatePoolMarginJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdatePoolMargin: %w", err)
	}

	poolMargin, err := parseDecimal("pool_margin", j.PoolMargin)
	if err != nil {
		return nil, err
	}
	totalSupply, err := parseDecimal("total_supply", j.TotalSupply)
	if err != nil {
		return nil, err
	}

	return &event.UpdatePoolMargin{
		Pool:        j.Pool,
		Collateral:  j.Collateral,
		PoolMargin:  poolMargin,
		TotalSupply: totalSupply,
		Prov:        j.provenance(),
	}, nil
}

type updateUnitAccFundingJSON struct {
	Perpetual               string `json:"perpetual_id"`
	UnitAccumulativeFunding string `json:"unit_accumulative_funding"`
	provenanceJSON
}

func parseUpdateUnitAccumulativeFunding(data []byte) (*event.UpdateUnitAccumulativeFunding, error) {
	var j updateUnitAccFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdateUnitAccumulativeFunding: %w", err)
	}

	acc, err := parseDecimal("unit_accumulative_funding", j.UnitAccumulativeFunding)
	if err != nil {
		return nil, err
	}

	return &event.UpdateUnitAccumulativeFunding{
		Perpetual:               j.Perpetual,
		UnitAccumulativeFunding: acc,
		Prov:                    j.provenance(),
	}, nil
}

type updateFundingRateJSON struct {
	Perpetual   string `json:"perpetual_id"`
	FundingRate string `json:"funding_rate"`
	provenanceJSON
}

func parseUpdateFundingRate(data []byte) (*event.UpdateFundingRate, error) {
	var j updateFundingRateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdateFundingRate: %w", err)
	}

	rate, err := parseDecimal("funding_rate", j.FundingRate)
	if err != nil {
		return nil, err
	}

	return &event.UpdateFundingRate{
		Perpetual:   j.Perpetual,
		FundingRate: rate,
		Prov:        j.provenance(),
	}, nil
}
