package tracker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the tracker counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingested       *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	rotations      prometheus.Counter
	safetyRejects  prometheus.Counter
	races          prometheus.Counter
	visitsClosed   prometheus.Counter
	waterLiters    prometheus.Counter
	publishErrors  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pivot_ingest_total",
			Help: "Telemetry records processed by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pivot_ingest_duration_seconds",
			Help:    "Histogram of ingest durations.",
			Buckets: prometheus.DefBuckets,
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_rotations_completed_total",
			Help: "Rotations closed by completion detection.",
		}),
		safetyRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_rotation_safety_rejects_total",
			Help: "Completions rejected by the minimum duration floor.",
		}),
		races: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_rotation_create_races_total",
			Help: "Rotation creations that lost to a concurrent creator.",
		}),
		visitsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_sector_visits_closed_total",
			Help: "Sector visits closed.",
		}),
		waterLiters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_applied_water_liters_total",
			Help: "Water applied across closed visits.",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivot_publish_errors_total",
			Help: "Notifications that could not be published.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ingested,
			m.ingestDuration,
			m.rotations,
			m.safetyRejects,
			m.races,
			m.visitsClosed,
			m.waterLiters,
			m.publishErrors,
		)
	}
	return m
}

func (m *Metrics) Ingest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

func (m *Metrics) RotationCompleted() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

func (m *Metrics) SafetyReject() {
	if m == nil {
		return
	}
	m.safetyRejects.Inc()
}

func (m *Metrics) RotationRace() {
	if m == nil {
		return
	}
	m.races.Inc()
}

func (m *Metrics) VisitClosed(volumeL float64) {
	if m == nil {
		return
	}
	m.visitsClosed.Inc()
	m.waterLiters.Add(volumeL)
}

func (m *Metrics) PublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}
