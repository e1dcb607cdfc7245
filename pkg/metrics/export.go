package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// percentileLabel/value pairs every RECORD metric's MetricResult carries,
// exported as a label so PromQL can select across them with one matcher
// instead of needing a separate metric name per percentile.
var resultPercentiles = []struct {
	label string
	value func(types.MetricResult) float64
}{
	{"avg", func(r types.MetricResult) float64 { return r.Avg }},
	{"p1", func(r types.MetricResult) float64 { return r.P1 }},
	{"p5", func(r types.MetricResult) float64 { return r.P5 }},
	{"p25", func(r types.MetricResult) float64 { return r.P25 }},
	{"p50", func(r types.MetricResult) float64 { return r.P50 }},
	{"p75", func(r types.MetricResult) float64 { return r.P75 }},
	{"p90", func(r types.MetricResult) float64 { return r.P90 }},
	{"p95", func(r types.MetricResult) float64 { return r.P95 }},
	{"p99", func(r types.MetricResult) float64 { return r.P99 }},
}

var recordValueDesc = prometheus.NewDesc(
	"aiperf_metric_value",
	"Current value of an AIPerf metric, by tag, unit and percentile.",
	[]string{"tag", "unit", "percentile"}, nil,
)

var recordCountDesc = prometheus.NewDesc(
	"aiperf_metric_sample_count",
	"Number of samples behind an AIPerf metric's current value (1 for scalar metrics).",
	[]string{"tag"}, nil,
)

// Snapshotter is anything that can summarize its currently known metric
// results on demand; *ResultsProcessor and *ResultsProcessorService both
// satisfy it with no adapter code.
type Snapshotter interface {
	Summarize() (map[string]types.MetricResult, error)
}

// Exporter is a prometheus.Collector that mirrors a Snapshotter's
// MetricResults as gauges, computed fresh on every scrape rather than
// cached between scrapes, since a load-test run's metrics change
// continuously while PROFILING is in flight.
type Exporter struct {
	source Snapshotter
}

// NewExporter wraps source for Prometheus collection.
func NewExporter(source Snapshotter) *Exporter {
	return &Exporter{source: source}
}

// Describe implements prometheus.Collector. The metric set is dynamic
// (driven by whichever metrics are registered), so only the fixed Desc
// values are advertised; Prometheus tolerates a Collector whose Collect
// emits a superset of labels for a Desc it already announced.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- recordValueDesc
	ch <- recordCountDesc
}

// Collect implements prometheus.Collector, calling Summarize on every
// scrape. A Summarize error is not reported anywhere: Collect emits
// nothing for that scrape rather than panicking.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	results, err := e.source.Summarize()
	if err != nil {
		return
	}
	for tag, r := range results {
		for _, p := range resultPercentiles {
			ch <- prometheus.MustNewConstMetric(recordValueDesc, prometheus.GaugeValue, p.value(r), tag, r.Unit, p.label)
		}
		if r.Count > 0 {
			ch <- prometheus.MustNewConstMetric(recordCountDesc, prometheus.GaugeValue, float64(r.Count), tag)
		}
	}
}

// Handler returns an http.Handler serving source's metrics in the
// Prometheus exposition format at /metrics, registered against its own
// private prometheus.Registry rather than the global default so multiple
// Exporters (e.g. one per OS process) never collide on metric names.
func Handler(source Snapshotter) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(source))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
