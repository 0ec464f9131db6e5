package ingestion_test

import (
	"PerpIndexer/internal/event"
	"PerpIndexer/internal/ingestion"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type ackRecorder struct {
	acked bool
	naked bool
}

func (a *ackRecorder) raw(t *testing.T, subject string, payload map[string]interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { a.acked = true },
		NakFunc:   func() { a.naked = true },
	}
}

func tradePayload(block, logIndex int64) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": "0xaa",
		"log_index":      logIndex,
		"block_number":   block,
		"timestamp":      int64(1700000000),
		"perpetual_id":   "pool-0-perp-0",
		"trader":         "0xabc",
		"amount":         "1",
		"price":          "1800",
		"mark_price":     "1800",
		"fee":            "0.1",
	}
}

func runLoop(t *testing.T, raws []ingestion.RawEvent, apply func(event.Event) error) error {
	t.Helper()
	ch := make(chan ingestion.RawEvent, len(raws))
	for _, r := range raws {
		ch <- r
	}
	close(ch)
	return ingestion.Run(context.Background(), ch, apply, nil, zerolog.Nop())
}

// ============================================================
// Ack discipline
// ============================================================

func TestRun_AcksAfterApply(t *testing.T) {
	rec := &ackRecorder{}
	raw := rec.raw(t, "perp.trades.pool-0-perp-0", tradePayload(100, 0))

	var applied []event.Event
	err := runLoop(t, []ingestion.RawEvent{raw}, func(e event.Event) error {
		if rec.acked {
			t.Error("message acked before apply")
		}
		applied = append(applied, e)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(applied) != 1 {
		t.Fatalf("applied %d events, want 1", len(applied))
	}
	if !rec.acked {
		t.Error("message not acked after successful apply")
	}
	if rec.naked {
		t.Error("message unexpectedly naked")
	}
}

// A halting apply error must leave the message un-acked so the durable
// consumer redelivers it after restart.
func TestRun_ApplyErrorNaksAndStops(t *testing.T) {
	first := &ackRecorder{}
	second := &ackRecorder{}
	raws := []ingestion.RawEvent{
		first.raw(t, "perp.funding.rate.pool-0-perp-0", map[string]interface{}{
			"transaction_id": "0xbb",
			"log_index":      int64(1),
			"block_number":   int64(100),
			"timestamp":      int64(1700000000),
			"perpetual_id":   "pool-0-perp-0",
			"funding_rate":   "0.0001",
		}),
		second.raw(t, "perp.trades.pool-0-perp-0", tradePayload(100, 0)),
	}

	halt := errors.New("out-of-order event")
	calls := 0
	err := runLoop(t, raws, func(event.Event) error {
		calls++
		if calls == 2 {
			return halt
		}
		return nil
	})
	if !errors.Is(err, halt) {
		t.Fatalf("run error: got %v, want %v", err, halt)
	}

	if !first.acked {
		t.Error("first message should be acked")
	}
	if second.acked {
		t.Error("halting message must not be acked")
	}
	if !second.naked {
		t.Error("halting message should be naked for redelivery")
	}
}

func TestRun_ParseFailureAcksAndContinues(t *testing.T) {
	bad := &ackRecorder{}
	good := &ackRecorder{}

	badPayload := tradePayload(99, 0)
	badPayload["amount"] = "not-a-number"
	raws := []ingestion.RawEvent{
		bad.raw(t, "perp.trades.pool-0-perp-0", badPayload),
		good.raw(t, "perp.trades.pool-0-perp-0", tradePayload(100, 0)),
	}

	applied := 0
	err := runLoop(t, raws, func(event.Event) error {
		applied++
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !bad.acked {
		t.Error("malformed message should be acked to avoid a redelivery loop")
	}
	if applied != 1 {
		t.Errorf("applied %d events, want 1", applied)
	}
	if !good.acked {
		t.Error("good message should be acked")
	}
}

func TestRun_UnknownSubjectAcked(t *testing.T) {
	rec := &ackRecorder{}
	raw := rec.raw(t, "orders.filled", tradePayload(100, 0))

	err := runLoop(t, []ingestion.RawEvent{raw}, func(event.Event) error {
		t.Error("apply called for unknown subject")
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !rec.acked {
		t.Error("unknown-subject message should be acked")
	}
}

// ============================================================
// Stream layout
// ============================================================

// Every subject must land in the one stream the single durable consumer
// reads, otherwise cross-kind delivery order is not stream order.
func TestEventStreamConfig_CoversAllSubjects(t *testing.T) {
	cfg := ingestion.EventStreamConfig()
	if len(cfg.Subjects) != 1 {
		t.Fatalf("stream subjects: got %v, want a single wildcard", cfg.Subjects)
	}

	prefix := strings.TrimSuffix(cfg.Subjects[0], ">")
	for _, sc := range ingestion.DefaultSubjects() {
		if !strings.HasPrefix(sc.Subject, prefix) {
			t.Errorf("subject %s not covered by stream wildcard %s", sc.Subject, cfg.Subjects[0])
		}
	}
}
