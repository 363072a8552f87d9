package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/metrics"
)

// manipulatorMetrics is the Prometheus implementation of manipulator.Metrics.
type manipulatorMetrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	candidates      *prometheus.GaugeVec
	objectsTotal    *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	conflictsTotal  *prometheus.CounterVec
	unresolved      *prometheus.GaugeVec
	deadlineReached *prometheus.CounterVec
	lastRun         *prometheus.GaugeVec
}

// NewManipulatorMetrics creates a Prometheus-backed manipulator.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewManipulatorMetrics() manipulator.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &manipulatorMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_runs_total",
				Help: "Total number of manipulator runs by manipulator and status",
			},
			[]string{"manipulator", "status"}, // status: ok, deadline, canceled, error
		),
		runDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tierkeeper_run_duration_seconds",
				Help: "Duration of the transition loop of a run in seconds",
				Buckets: []float64{
					0.1,  // empty runs
					1,    // 1s
					10,   // 10s
					60,   // 1m
					300,  // 5m - default run budget
					900,  // 15m
					3600, // 1h
				},
			},
			[]string{"manipulator"},
		),
		candidates: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tierkeeper_run_candidates",
				Help: "Candidates selected by the last run",
			},
			[]string{"manipulator"},
		),
		objectsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_objects_processed_total",
				Help: "Total number of objects processed by manipulator",
			},
			[]string{"manipulator"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_bytes_processed_total",
				Help: "Total size of the objects processed by manipulator",
			},
			[]string{"manipulator"},
		),
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_location_transitions_total",
				Help: "Total number of location records written, by manipulator and new location",
			},
			[]string{"manipulator", "location"},
		),
		failuresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_transition_failures_total",
				Help: "Total number of failed tier transitions reconciled by probing",
			},
			[]string{"manipulator"},
		),
		conflictsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_update_conflicts_total",
				Help: "Total number of location updates skipped because the record changed concurrently",
			},
			[]string{"manipulator"},
		),
		unresolved: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tierkeeper_run_unresolved_objects",
				Help: "Objects left in ERROR by the last run",
			},
			[]string{"manipulator"},
		),
		deadlineReached: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tierkeeper_run_deadline_reached_total",
				Help: "Total number of runs that stopped at their deadline with candidates left",
			},
			[]string{"manipulator"},
		),
		lastRun: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tierkeeper_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
			[]string{"manipulator"},
		),
	}
}

func (m *manipulatorMetrics) ObserveRun(action manipulator.Action, candidates int, stats manipulator.RunStats, err error) {
	if m == nil {
		return
	}

	kind := action.Kind()
	m.runsTotal.WithLabelValues(kind, runStatus(stats, err)).Inc()
	m.candidates.WithLabelValues(kind).Set(float64(candidates))
	m.runDuration.WithLabelValues(kind).Observe(stats.Duration.Seconds())

	if stats.Processed > 0 {
		m.objectsTotal.WithLabelValues(kind).Add(float64(stats.Processed))
	}
	if stats.TotalBytes > 0 {
		m.bytesTotal.WithLabelValues(kind).Add(float64(stats.TotalBytes))
	}
	for loc, n := range stats.Transitions {
		m.transitions.WithLabelValues(kind, loc.String()).Add(float64(n))
	}
	if stats.Failures > 0 {
		m.failuresTotal.WithLabelValues(kind).Add(float64(stats.Failures))
	}
	if stats.Conflicts > 0 {
		m.conflictsTotal.WithLabelValues(kind).Add(float64(stats.Conflicts))
	}
	if stats.DeadlineReached {
		m.deadlineReached.WithLabelValues(kind).Inc()
	}
	m.unresolved.WithLabelValues(kind).Set(float64(stats.Unresolved))
	m.lastRun.WithLabelValues(kind).SetToCurrentTime()
}

func runStatus(stats manipulator.RunStats, err error) string {
	switch {
	case err != nil:
		return "error"
	case stats.Canceled:
		return "canceled"
	case stats.DeadlineReached:
		return "deadline"
	default:
		return "ok"
	}
}
