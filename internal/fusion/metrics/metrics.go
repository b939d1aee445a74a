package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the fusion module.
// Tracks fusion throughput, failures, scoring distribution, and the
// hot/cold split observed at statistics time.
type Metrics struct {
	FusionsTotal       prometheus.Counter
	FusionFailures     *prometheus.CounterVec
	FuseDuration       prometheus.Histogram
	VerificationLevels *prometheus.CounterVec
	HotRecords         prometheus.Gauge
	ColdRecords        prometheus.Gauge
}

// New creates a new Metrics instance with all fusion module metrics registered.
func New() *Metrics {
	return &Metrics{
		FusionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fusionledger_fusions_total",
			Help: "Total number of records fused",
		}),
		FusionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionledger_fusion_failures_total",
			Help: "Fusion attempts rejected at validation, by reason",
		}, []string{"reason"}),
		FuseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusionledger_fuse_duration_seconds",
			Help:    "Duration of fuse operations (scoring, merge, store append)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		VerificationLevels: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionledger_verification_levels_total",
			Help: "Fused records by assigned verification level",
		}, []string{"level"}),
		HotRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fusionledger_hot_records",
			Help: "Records inside the retention window at the last statistics read",
		}),
		ColdRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fusionledger_cold_records",
			Help: "Records past the retention window at the last statistics read",
		}),
	}
}

// ObserveFusion records a successful fusion with its scoring outcome.
func (m *Metrics) ObserveFusion(level string, start time.Time) {
	m.FusionsTotal.Inc()
	m.VerificationLevels.WithLabelValues(level).Inc()
	m.FuseDuration.Observe(time.Since(start).Seconds())
}

// ObserveFusionFailure records a rejected fusion attempt.
func (m *Metrics) ObserveFusionFailure(reason string) {
	m.FusionFailures.WithLabelValues(reason).Inc()
}

// SetRetentionSplit publishes the hot/cold split from a statistics read.
func (m *Metrics) SetRetentionSplit(hot, cold int) {
	m.HotRecords.Set(float64(hot))
	m.ColdRecords.Set(float64(cold))
}
