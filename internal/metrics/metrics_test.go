package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegister(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	m.IncSearch("exa", OutcomeSuccess)
	m.IncFallback(OracleJudge)
	m.AddEventsSaved(3)
	m.AddEventsRanked(2)
	m.ObserveUnit(PipelineSourcing, OutcomeSuccess, 1.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		MetricSearchesTotal, MetricOracleFallbacks, MetricEventsSaved,
		MetricEventsRanked, MetricPipelineUnitsTotal, MetricPipelineUnitSeconds,
	} {
		if !found[name] {
			t.Errorf("metric %s not found in gathered metrics", name)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("second Register() should have returned an error")
	}
}

func TestCounters(t *testing.T) {
	m := NewMetrics()
	m.IncSearch("tavily", OutcomeFailure)
	m.IncSearch("tavily", OutcomeFailure)
	m.IncFallback(OracleRanker)
	m.AddEventsSaved(4)
	m.AddEventsSaved(0)
	m.ObserveUnit(PipelineRanking, OutcomeFailure, 0.2)

	if v := counterVecValue(m.searches, "tavily", OutcomeFailure); v != 2 {
		t.Errorf("expected 2 failed searches, got %v", v)
	}
	if v := counterVecValue(m.fallbacks, OracleRanker); v != 1 {
		t.Errorf("expected 1 ranker fallback, got %v", v)
	}
	if v := counterValue(m.eventsSaved); v != 4 {
		t.Errorf("expected 4 saved events, got %v", v)
	}
	if v := counterVecValue(m.units, PipelineRanking, OutcomeFailure); v != 1 {
		t.Errorf("expected 1 failed ranking unit, got %v", v)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncSearch("exa", OutcomeSuccess)
	m.IncFallback(OracleJudge)
	m.AddEventsSaved(1)
	m.AddEventsRanked(1)
	m.ObserveUnit(PipelineSourcing, OutcomeSuccess, 1)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func counterVecValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	return counterValue(c)
}
