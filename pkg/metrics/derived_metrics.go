package metrics

import "github.com/aiperf-project/aiperf-core/pkg/aierrors"

// benchmarkDurationMetric is the wall-clock span of the run: the latest
// response timestamp minus the earliest request timestamp. Grounded on
// original_source/src/aiperf/metrics/types/benchmark_duration_metric.py.
// Flagged NO_CONSOLE: a building block for the throughput/goodput
// metrics below, not itself shown in console output.
type benchmarkDurationMetric struct{}

func (m benchmarkDurationMetric) Derive(results ResultValues) (any, error) {
	minTS, ok := results[TagMinRequestTimestamp].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagBenchmarkDuration)
	}
	maxTS, ok := results[TagMaxResponseTimestamp].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagBenchmarkDuration)
	}
	if minTS >= maxTS {
		return nil, aierrors.NewInvalidStateError("min request timestamp must precede max response timestamp")
	}
	return maxTS - minTS, nil
}

// requestThroughputMetric is valid request count divided by benchmark
// duration in seconds. Grounded on
// original_source/src/aiperf/metrics/types/request_throughput_metric.py.
type requestThroughputMetric struct{}

func (m requestThroughputMetric) Derive(results ResultValues) (any, error) {
	count, ok := results[TagRequestCount].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagRequestThroughput)
	}
	durationNS, ok := results[TagBenchmarkDuration].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagRequestThroughput)
	}
	return count / nanosToSeconds(durationNS), nil
}

// outputTokenThroughputMetric is total output tokens divided by benchmark
// duration in seconds, grounded on
// original_source/aiperf/metrics/types/output_token_throughput_metric.py.
type outputTokenThroughputMetric struct{}

func (m outputTokenThroughputMetric) Derive(results ResultValues) (any, error) {
	tokens, ok := results[TagBenchmarkTokenCount].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagOutputTokenThroughput)
	}
	durationNS, ok := results[TagBenchmarkDuration].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagOutputTokenThroughput)
	}
	return tokens / nanosToSeconds(durationNS), nil
}

func nanosToSeconds(ns float64) float64 { return ns / 1e9 }

func init() {
	Default.MustRegisterDerived(Definition{
		Tag:             TagBenchmarkDuration,
		Header:          "Benchmark Duration",
		Unit:            UnitNanoseconds,
		DisplayUnit:     UnitSeconds,
		Flags:           FlagNoConsole,
		RequiredMetrics: []string{TagMinRequestTimestamp, TagMaxResponseTimestamp},
		Kind:            KindDerived,
	}, benchmarkDurationMetric{})

	Default.MustRegisterDerived(Definition{
		Tag:             TagRequestThroughput,
		Header:          "Request Throughput",
		Unit:            UnitRequestsPerSec,
		Flags:           FlagLargerIsBetter,
		RequiredMetrics: []string{TagRequestCount, TagBenchmarkDuration},
		Kind:            KindDerived,
	}, requestThroughputMetric{})

	Default.MustRegisterDerived(Definition{
		Tag:             TagOutputTokenThroughput,
		Header:          "Output Token Throughput",
		Unit:            UnitTokensPerSecond,
		Flags:           FlagProducesTokensOnly | FlagLargerIsBetter,
		RequiredMetrics: []string{TagBenchmarkTokenCount, TagBenchmarkDuration},
		Kind:            KindDerived,
	}, outputTokenThroughputMetric{})
}
