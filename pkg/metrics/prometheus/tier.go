package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tierkeeper/pkg/metrics"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// tierMetrics is the Prometheus implementation of tier.Metrics.
type tierMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewTierMetrics creates a Prometheus-backed tier.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTierMetrics() tier.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &tierMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_tier_operations_total",
				Help: "Total number of tier operations by tier, operation and status",
			},
			[]string{"tier", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tierkeeper_tier_operation_duration_milliseconds",
				Help: "Duration of tier operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms - local stat
					10,    // 10ms
					50,    // 50ms - remote HEAD
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - small objects
					5000,  // 5s
					30000, // 30s - large pulls
				},
			},
			[]string{"tier", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_tier_bytes_total",
				Help: "Total bytes moved by tier operations",
			},
			[]string{"tier", "operation"},
		),
	}
}

func (m *tierMetrics) ObserveOperation(tierName, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(tierName, operation, status).Inc()
	m.operationDuration.WithLabelValues(tierName, operation).Observe(duration.Seconds() * 1000)
}

func (m *tierMetrics) RecordBytes(tierName, operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(tierName, operation).Add(float64(bytes))
}
