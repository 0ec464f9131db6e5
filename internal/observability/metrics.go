package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PerpIndexer.
type Metrics struct {
	// --- Core processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreBlockHeight    prometheus.Gauge

	// --- Ledger ---
	LegsEmitted      *prometheus.CounterVec
	PositionsTracked prometheus.Gauge

	// --- Series ---
	CandleUpserts  *prometheus.CounterVec
	CarryUpserts   *prometheus.CounterVec
	FundingUpserts *prometheus.CounterVec

	// --- Ingestion ---
	IngestMessages *prometheus.CounterVec
	IngestParseErr *prometheus.CounterVec

	// --- Persistence ---
	PersistRowsWritten *prometheus.CounterVec
	PersistBatchSize   prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistLastBlock   prometheus.Gauge

	// --- Channels ---
	ChannelSize     *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	durationBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_events_applied_total",
			Help: "Events successfully applied by the core",
		}, []string{"kind"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_core_events_rejected_total",
			Help: "Events rejected by the core",
		}, []string{"kind", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_core_event_duration_seconds",
			Help:    "Per-event processing latency",
			Buckets: durationBuckets,
		}, []string{"kind"}),

		CoreBlockHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_core_block_height",
			Help: "Block number of the last applied event",
		}),

		LegsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_ledger_legs_emitted_total",
			Help: "Trade legs emitted by the account ledger",
		}, []string{"type", "close"}),

		PositionsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_ledger_positions_tracked",
			Help: "Account position records held in the store",
		}),

		CandleUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_series_candle_upserts_total",
			Help: "Candle bucket upserts",
		}, []string{"resolution"}),

		CarryUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_series_carry_upserts_total",
			Help: "Carry-forward bucket upserts",
		}, []string{"resolution"}),

		FundingUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_series_funding_upserts_total",
			Help: "Funding-rate bucket upserts",
		}, []string{"resolution"}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_ingest_messages_total",
			Help: "Messages received from NATS by subject",
		}, []string{"subject"}),

		IngestParseErr: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_ingest_parse_errors_total",
			Help: "Messages that failed event parsing",
		}, []string{"subject"}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_persist_rows_written_total",
			Help: "Rows written to Postgres by entity",
		}, []string{"entity"}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_persist_batch_size",
			Help:    "Outputs per persistence flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_persist_errors_total",
			Help: "Persistence write errors by entity",
		}, []string{"entity"}),

		PersistLastBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perp_persist_last_block",
			Help: "Block number of the last durably written output",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_channel_size",
			Help: "Current channel occupancy",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_channel_capacity",
			Help: "Channel capacity",
		}, []string{"channel"}),
	}
}
