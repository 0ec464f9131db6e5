package ingestion_test

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func provPayload() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": "0xdeadbeef",
		"log_index":      int64(3),
		"block_number":   int64(18_000_000),
		"timestamp":      int64(1700000000),
	}
}

func TestParseTrade(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["trader"] = "0xabc"
	payload["amount"] = "-2.5"
	payload["price"] = "1850.25"
	payload["mark_price"] = "1849.9"
	payload["fee"] = "0.75"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Trade")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tr, ok := evt.(*event.Trade)
	if !ok {
		t.Fatalf("expected *event.Trade, got %T", evt)
	}

	if tr.Perpetual != "pool-0-perp-0" {
		t.Errorf("perpetual: got %s, want pool-0-perp-0", tr.Perpetual)
	}
	if tr.Trader != "0xabc" {
		t.Errorf("trader: got %s, want 0xabc", tr.Trader)
	}
	if tr.Amount.String() != "-2.5" {
		t.Errorf("amount: got %s, want -2.5", tr.Amount)
	}
	if tr.Price.String() != "1850.25" {
		t.Errorf("price: got %s, want 1850.25", tr.Price)
	}
	if tr.Fee.String() != "0.75" {
		t.Errorf("fee: got %s, want 0.75", tr.Fee)
	}
	if tr.Kind() != event.KindTrade {
		t.Errorf("kind: got %v, want Trade", tr.Kind())
	}

	prov := tr.Provenance()
	if prov.TransactionID != "0xdeadbeef" || prov.LogIndex != 3 || prov.BlockNumber != 18_000_000 {
		t.Errorf("provenance: got %+v", prov)
	}
}

func TestParseTrade_MalformedDecimal(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["trader"] = "0xabc"
	payload["amount"] = "not-a-number"
	payload["price"] = "1850.25"
	payload["mark_price"] = "1849.9"
	payload["fee"] = "0"

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "Trade"); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestParseCreatePerpetual(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-1"
	payload["pool_id"] = "pool-0"
	payload["collateral"] = "USDC"
	payload["underlying"] = "ETH"
	payload["symbol"] = "ETH-USDC"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CreatePerpetual")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := evt.(*event.CreatePerpetual)
	if !ok {
		t.Fatalf("expected *event.CreatePerpetual, got %T", evt)
	}
	if cp.Pool != "pool-0" || cp.Underlying != "ETH" || cp.Symbol != "ETH-USDC" {
		t.Errorf("got %+v", cp)
	}
}

func TestParseCreatePerpetual_EmptyID(t *testing.T) {
	payload := provPayload()
	payload["pool_id"] = "pool-0"

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "CreatePerpetual"); err == nil {
		t.Fatal("expected error for empty perpetual_id")
	}
}

func TestParseLiquidate(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["trader"] = "0xdef"
	payload["amount"] = "-10"
	payload["price"] = "1700"
	payload["mark_price"] = "1700"
	payload["fee"] = "0"
	payload["penalty"] = "17"
	payload["by_amm"] = true

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lq, ok := evt.(*event.Liquidate)
	if !ok {
		t.Fatalf("expected *event.Liquidate, got %T", evt)
	}
	if lq.Liquidation != event.LiquidationByAMM {
		t.Errorf("liquidation kind: got %v, want by-AMM", lq.Liquidation)
	}
	if lq.Penalty.String() != "17" {
		t.Errorf("penalty: got %s, want 17", lq.Penalty)
	}
}

func TestParseLiquidate_DefaultsToByTrader(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["trader"] = "0xdef"
	payload["amount"] = "1"
	payload["price"] = "1700"
	payload["mark_price"] = "1700"
	payload["fee"] = "0"
	payload["penalty"] = "0"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if evt.(*event.Liquidate).Liquidation != event.LiquidationByTrader {
		t.Error("expected by-trader liquidation when by_amm is absent")
	}
}

func TestParseUpdatePoolMargin(t *testing.T) {
	payload := provPayload()
	payload["pool_id"] = "pool-0"
	payload["collateral"] = "USDC"
	payload["pool_margin"] = "123456.789"
	payload["total_supply"] = "1000"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "UpdatePoolMargin")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pm, ok := evt.(*event.UpdatePoolMargin)
	if !ok {
		t.Fatalf("expected *event.UpdatePoolMargin, got %T", evt)
	}
	if pm.PoolMargin.String() != "123456.789" {
		t.Errorf("pool_margin: got %s", pm.PoolMargin)
	}
	if pm.PerpetualID() != "" {
		t.Errorf("pool events carry no perpetual id, got %q", pm.PerpetualID())
	}
}

func TestParseUpdateUnitAccumulativeFunding(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["unit_accumulative_funding"] = "-0.00042"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "UpdateUnitAccumulativeFunding")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if evt.(*event.UpdateUnitAccumulativeFunding).UnitAccumulativeFunding.String() != "-0.00042" {
		t.Error("unit accumulative funding mismatch")
	}
}

func TestParseUpdateFundingRate(t *testing.T) {
	payload := provPayload()
	payload["perpetual_id"] = "pool-0-perp-0"
	payload["funding_rate"] = "0.0001"

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "UpdateFundingRate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if evt.(*event.UpdateFundingRate).FundingRate.String() != "0.0001" {
		t.Error("funding rate mismatch")
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "Bogus"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
