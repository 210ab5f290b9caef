package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SynthLedger.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Oracle ---
	OracleReadFailures *prometheus.CounterVec
	OraclePriceAge     *prometheus.GaugeVec

	// --- Liquidation ---
	LiquidationsCompleted *prometheus.CounterVec
	LiquidationsRejected  *prometheus.CounterVec

	// --- Persistence ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchDuration  prometheus.Histogram
	PersistErrors         prometheus.Counter

	// --- Outbound events ---
	EventsPublished *prometheus.CounterVec
	PublishDrops    prometheus.Counter
}

// NewMetrics registers all metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OpsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_applied_total",
			Help: "Operations applied successfully, by operation.",
		}, []string{"op"}),
		OpsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_rejected_total",
			Help: "Operations rejected, by operation and reason.",
		}, []string{"op", "reason"}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_engine_op_duration_seconds",
			Help:    "End-to-end duration of engine operations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),

		OracleReadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_oracle_read_failures_total",
			Help: "Failed oracle reads, by feed and reason (stale, invalid, unknown).",
		}, []string{"feed", "reason"}),
		OraclePriceAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_oracle_price_age_seconds",
			Help: "Age of the latest accepted price round, by feed.",
		}, []string{"feed"}),

		LiquidationsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_completed_total",
			Help: "Completed liquidations, by seized asset.",
		}, []string{"asset"}),
		LiquidationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_rejected_total",
			Help: "Rejected liquidations, by reason (healthy, not_improved, other).",
		}, []string{"reason"}),

		PersistRecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_records_written_total",
			Help: "Operation-log records written to Postgres.",
		}),
		PersistBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_duration_seconds",
			Help:    "Duration of operation-log batch writes.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		PersistErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Failed operation-log writes.",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_events_published_total",
			Help: "Operation events published to NATS, by event type.",
		}, []string{"event_type"}),
		PublishDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "synth_events_publish_drops_total",
			Help: "Events dropped because the publish channel was full.",
		}),
	}
}

// NewDefaultMetrics registers on the default Prometheus registry.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
