// Package metrics collects counting-run metrics in a private Prometheus
// registry. The CLI has no HTTP surface, so the registry is written to a
// node_exporter textfile at the end of a run.
package metrics

import (
	"time"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	ballotsTotal     *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	ballotDuration   prometheus.Histogram
	selectionsTotal  prometheus.Counter
	estimatedCorners *prometheus.CounterVec
	inFlight         prometheus.Gauge
	templateFallback prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ballotsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ballotcount_ballots_total",
				Help: "Ballots finished, by outcome and invalid reason",
			},
			[]string{"outcome", "reason"}, // outcome: valid, invalid
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ballotcount_stage_duration_seconds",
				Help:    "Time spent in each ballot stage",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		ballotDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ballotcount_ballot_duration_seconds",
				Help:    "End-to-end time per ballot",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50},
			},
		),
		selectionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ballotcount_selections_total",
				Help: "Candidate selections committed to the tally",
			},
		),
		estimatedCorners: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ballotcount_estimated_markers_total",
				Help: "Fiducial markers estimated from the other three",
			},
			[]string{"corner"},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ballotcount_ballots_in_flight",
				Help: "Ballots currently being processed",
			},
		),
		templateFallback: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ballotcount_template_fallback_total",
				Help: "Ballots counted with the default template because auto-selection found none",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// StageTimer starts timing a stage; call ObserveDuration when it ends.
func (m *Metrics) StageTimer(s ballot.Stage) *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.stageDuration.WithLabelValues(s.String()))
}

// BallotStarted marks a ballot in flight.
func (m *Metrics) BallotStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// BallotFinished records the final state of rec.
func (m *Metrics) BallotFinished(rec *ballot.Record, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.ballotDuration.Observe(elapsed.Seconds())
	if rec.Valid {
		m.ballotsTotal.WithLabelValues("valid", "").Inc()
		m.selectionsTotal.Add(float64(len(rec.Selections)))
	} else {
		m.ballotsTotal.WithLabelValues("invalid", string(rec.Reason)).Inc()
	}
	if rec.EstimatedCorner != "" {
		m.estimatedCorners.WithLabelValues(rec.EstimatedCorner).Inc()
	}
	if rec.TemplateFallback {
		m.templateFallback.Inc()
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
