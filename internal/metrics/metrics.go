// Package metrics holds the Prometheus collectors for searches, oracle
// fallbacks and pipeline units.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricSearchesTotal       = "eventminer_searches_total"
	MetricOracleFallbacks     = "eventminer_oracle_fallbacks_total"
	MetricEventsSaved         = "eventminer_events_saved_total"
	MetricEventsRanked        = "eventminer_events_ranked_total"
	MetricPipelineUnitsTotal  = "eventminer_pipeline_units_total"
	MetricPipelineUnitSeconds = "eventminer_pipeline_unit_duration_seconds"
)

// Label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeEmpty   = "empty"

	OracleJudge  = "judge"
	OracleRanker = "ranker"

	PipelineSourcing = "sourcing"
	PipelineRanking  = "ranking"
)

// Metrics contains the collectors. All operations are thread-safe.
type Metrics struct {
	searches     *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	eventsSaved  prometheus.Counter
	eventsRanked prometheus.Counter
	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchesTotal,
				Help: "Search gateway calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOracleFallbacks,
				Help: "Oracle failures that were replaced by a fallback result",
			},
			[]string{"oracle"},
		),
		eventsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsSaved,
			Help: "Events inserted by the sourcing pipeline",
		}),
		eventsRanked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsRanked,
			Help: "Events whose rank was written by the ranking pipeline",
		}),
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPipelineUnitsTotal,
				Help: "Pipeline units (one date or one query) by outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPipelineUnitSeconds,
				Help:    "Duration of a pipeline unit in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"pipeline"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.searches,
		m.fallbacks,
		m.eventsSaved,
		m.eventsRanked,
		m.units,
		m.unitDuration,
	}
}

// IncSearch counts a gateway call.
func (m *Metrics) IncSearch(provider, outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(provider, outcome).Inc()
}

// IncFallback counts an oracle failure absorbed by a fallback.
func (m *Metrics) IncFallback(oracle string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(oracle).Inc()
}

func (m *Metrics) AddEventsSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsSaved.Add(float64(n))
}

func (m *Metrics) AddEventsRanked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsRanked.Add(float64(n))
}

// ObserveUnit records one finished unit of a batch run.
func (m *Metrics) ObserveUnit(pipeline, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(pipeline, outcome).Inc()
	m.unitDuration.WithLabelValues(pipeline).Observe(seconds)
}
