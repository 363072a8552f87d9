package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/metrics"
)

// LocationMetrics exports the number and size of objects per location.
type LocationMetrics struct {
	objects *prometheus.GaugeVec
	bytes   *prometheus.GaugeVec
}

// NewLocationMetrics creates the per-location gauges.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLocationMetrics() *LocationMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &LocationMetrics{
		objects: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tierkeeper_objects",
				Help: "Number of object records by location",
			},
			[]string{"location"},
		),
		bytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tierkeeper_object_bytes",
				Help: "Total size of object records by location",
			},
			[]string{"location"},
		),
	}
}

// Set replaces the gauges with counts. Locations missing from counts are
// reported as zero.
func (m *LocationMetrics) Set(counts map[location.Location]location.LocationSummary) {
	if m == nil {
		return
	}
	for _, loc := range location.All {
		s := counts[loc]
		m.objects.WithLabelValues(loc.String()).Set(float64(s.Objects))
		m.bytes.WithLabelValues(loc.String()).Set(float64(s.Bytes))
	}
}
