package pipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// runMetrics are the counters of one run, kept in a private registry.
type runMetrics struct {
	registry *prometheus.Registry

	views        *prometheus.CounterVec
	nodes        *prometheus.CounterVec
	resources    *prometheus.CounterVec
	measures     *prometheus.CounterVec
	findings     *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	duplications prometheus.Counter
	dropped      prometheus.Counter
	duration     prometheus.Gauge
}

func newRunMetrics() *runMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &runMetrics{
		registry: reg,
		views: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_views_total",
			Help: "Views processed, by outcome",
		}, []string{"view", "status"}),
		nodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_nodes_visited_total",
			Help: "Graph nodes in the walked subtrees",
		}, []string{"view"}),
		resources: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_resources_saved_total",
			Help: "Resources sent to the sink",
		}, []string{"view"}),
		measures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_measures_saved_total",
			Help: "Measures sent to the sink",
		}, []string{"view"}),
		findings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_findings_saved_total",
			Help: "Findings sent to the sink",
		}, []string{"view"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metrigraph_nodes_skipped_total",
			Help: "Nodes left out of a view",
		}, []string{"view"}),
		duplications: factory.NewCounter(prometheus.CounterOpts{
			Name: "metrigraph_duplications_saved_total",
			Help: "Files with a duplications data measure",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "metrigraph_measures_dropped_total",
			Help: "Repeated measures that were not forwarded",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "metrigraph_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

func (m *runMetrics) observeView(vr ViewReport) {
	view := string(vr.View)
	m.views.WithLabelValues(view, string(vr.Status)).Inc()
	m.nodes.WithLabelValues(view).Add(float64(vr.Nodes))
	m.resources.WithLabelValues(view).Add(float64(vr.Resources))
	m.measures.WithLabelValues(view).Add(float64(vr.Measures))
	m.findings.WithLabelValues(view).Add(float64(vr.Findings))
	m.skipped.WithLabelValues(view).Add(float64(vr.Skipped))
	m.duplications.Add(float64(vr.Duplications))
}

func (m *runMetrics) observeRun(r *Report) {
	m.dropped.Add(float64(r.DroppedMeasures))
	m.duration.Set(r.Duration.Seconds())
}

func (m *runMetrics) writeTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
