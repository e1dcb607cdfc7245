package metrics

import (
	"sync"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// sumAggregator folds successive values by addition, the Go analogue of
// original_source/src/aiperf/metrics/base_aggregate_counter_metric.py's
// `_aggregate_value`, generalized from "always add 1" to "add whatever
// ParseRecord returned" so it also serves SUM_AGGREGATE token-total
// metrics, not just counters.
type sumAggregator struct {
	mu    sync.Mutex
	value float64
}

func (a *sumAggregator) AggregateValue(v any) error {
	f, ok := v.(float64)
	if !ok {
		return aierrors.NewInvalidStateError("sum aggregator received a non-numeric value")
	}
	a.mu.Lock()
	a.value += f
	a.mu.Unlock()
	return nil
}

func (a *sumAggregator) CurrentValue() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

func (a *sumAggregator) Reset() {
	a.mu.Lock()
	a.value = 0
	a.mu.Unlock()
}

// minAggregator tracks the minimum value seen.
type minAggregator struct {
	mu  sync.Mutex
	set bool
	val float64
}

func (a *minAggregator) AggregateValue(v any) error {
	f, ok := v.(float64)
	if !ok {
		return aierrors.NewInvalidStateError("min aggregator received a non-numeric value")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set || f < a.val {
		a.val, a.set = f, true
	}
	return nil
}

func (a *minAggregator) CurrentValue() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}

func (a *minAggregator) Reset() {
	a.mu.Lock()
	a.val, a.set = 0, false
	a.mu.Unlock()
}

// maxAggregator tracks the maximum value seen.
type maxAggregator struct {
	mu  sync.Mutex
	set bool
	val float64
}

func (a *maxAggregator) AggregateValue(v any) error {
	f, ok := v.(float64)
	if !ok {
		return aierrors.NewInvalidStateError("max aggregator received a non-numeric value")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set || f > a.val {
		a.val, a.set = f, true
	}
	return nil
}

func (a *maxAggregator) CurrentValue() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.val
}

func (a *maxAggregator) Reset() {
	a.mu.Lock()
	a.val, a.set = 0, false
	a.mu.Unlock()
}

// requestCountMetric counts valid requests. Grounded on
// original_source/src/aiperf/metrics/types/request_count_metric.py; the
// record processor only invokes non-ERROR_ONLY metrics for valid records,
// so ParseRecord unconditionally contributes 1.
type requestCountMetric struct {
	*sumAggregator
}

func (m requestCountMetric) ParseRecord(_ types.ParsedResponseRecord, _ RecordValues) (any, error) {
	return 1.0, nil
}

// errorRequestCountMetric counts error requests, grounded on
// original_source/aiperf/metrics/types/error_request_count.py. The
// ERROR_ONLY flag routes it to the error-record parse list only.
type errorRequestCountMetric struct {
	*sumAggregator
}

func (m errorRequestCountMetric) ParseRecord(_ types.ParsedResponseRecord, _ RecordValues) (any, error) {
	return 1.0, nil
}

// minRequestTimestampMetric tracks the earliest request start timestamp
// seen across the run, used by BenchmarkDurationMetric.
type minRequestTimestampMetric struct {
	*minAggregator
}

func (m minRequestTimestampMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	return float64(record.Request.TimestampNS), nil
}

// maxResponseTimestampMetric tracks the latest response completion
// timestamp seen across the run: the request's wall-clock timestamp plus
// its request latency.
type maxResponseTimestampMetric struct {
	*maxAggregator
}

func (m maxResponseTimestampMetric) ParseRecord(record types.ParsedResponseRecord, soFar RecordValues) (any, error) {
	latency, ok := soFar[TagRequestLatency].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagMaxResponseTimestamp)
	}
	return float64(record.Request.TimestampNS) + latency, nil
}

// benchmarkTokenCountMetric sums OutputSequenceLength across every valid
// record, feeding OutputTokenThroughputMetric. Grounded on
// original_source/aiperf/metrics/types/benchmark_token_count.py.
type benchmarkTokenCountMetric struct {
	*sumAggregator
}

func (m benchmarkTokenCountMetric) ParseRecord(_ types.ParsedResponseRecord, soFar RecordValues) (any, error) {
	osl, ok := soFar[TagOutputSequenceLen].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagBenchmarkTokenCount)
	}
	return osl, nil
}

func init() {
	Default.MustRegisterAggregate(Definition{
		Tag:    TagRequestCount,
		Header: "Request Count",
		Unit:   UnitRequests,
		Flags:  FlagLargerIsBetter | FlagNoIndividualRecords,
		Kind:   KindSumAggregate,
	}, requestCountMetric{sumAggregator: &sumAggregator{}})

	Default.MustRegisterAggregate(Definition{
		Tag:    TagErrorRequestCount,
		Header: "Error Request Count",
		Unit:   UnitRequests,
		Flags:  FlagErrorOnly | FlagNoIndividualRecords,
		Kind:   KindSumAggregate,
	}, errorRequestCountMetric{sumAggregator: &sumAggregator{}})

	Default.MustRegisterAggregate(Definition{
		Tag:             TagMinRequestTimestamp,
		Header:          "Min Request Timestamp",
		Unit:            UnitNanoseconds,
		Flags:           FlagNoConsole | FlagNoIndividualRecords | FlagHidden,
		RequiredMetrics: nil,
		Kind:            KindAggregate,
	}, minRequestTimestampMetric{minAggregator: &minAggregator{}})

	Default.MustRegisterAggregate(Definition{
		Tag:             TagMaxResponseTimestamp,
		Header:          "Max Response Timestamp",
		Unit:            UnitNanoseconds,
		Flags:           FlagNoConsole | FlagNoIndividualRecords | FlagHidden,
		RequiredMetrics: []string{TagRequestLatency},
		Kind:            KindAggregate,
	}, maxResponseTimestampMetric{maxAggregator: &maxAggregator{}})

	Default.MustRegisterAggregate(Definition{
		Tag:             TagBenchmarkTokenCount,
		Header:          "Benchmark Token Count",
		Unit:            UnitTokens,
		Flags:           FlagProducesTokensOnly | FlagLargerIsBetter | FlagHidden | FlagNoIndividualRecords,
		RequiredMetrics: []string{TagOutputSequenceLen},
		Kind:            KindSumAggregate,
	}, benchmarkTokenCountMetric{sumAggregator: &sumAggregator{}})
}
