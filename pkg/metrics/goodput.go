package metrics

import (
	"sort"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// convertUnit converts value between the time units this catalog uses.
// Grounded on the unit-conversion step
// original_source/aiperf/metrics/types/good_request_count_metric.py performs
// when a user's --goodput SLO is given in a metric's DisplayUnit rather
// than its native Unit; only the ns/ms/s triple appears in this catalog, so
// a small table suffices in place of a general units library.
func convertUnit(value float64, from, to Unit) (float64, error) {
	if from == to {
		return value, nil
	}
	toNanos := map[Unit]float64{UnitNanoseconds: 1, UnitMilliseconds: 1e6, UnitSeconds: 1e9}
	fromFactor, ok := toNanos[from]
	if !ok {
		return 0, aierrors.NewValidationError("unit", "cannot convert from unit "+string(from))
	}
	toFactorVal, ok := toNanos[to]
	if !ok {
		return 0, aierrors.NewValidationError("unit", "cannot convert to unit "+string(to))
	}
	return value * fromFactor / toFactorVal, nil
}

// goodRequestCountMetric counts requests that satisfy every configured SLO
// threshold, grounded on
// original_source/aiperf/metrics/types/good_request_count_metric.py.
// Unlike the Python class-level `_thresholds`, thresholds live on the
// instance: each run builds its own registry, so there is no cross-run
// leakage to guard against.
type goodRequestCountMetric struct {
	def        Definition
	thresholds map[string]float64 // already normalized to each metric's native Unit
	registry   *Registry
	*sumAggregator
}

func (m *goodRequestCountMetric) ParseRecord(_ types.ParsedResponseRecord, soFar RecordValues) (any, error) {
	if len(m.thresholds) == 0 {
		return 0.0, nil
	}
	for tag, threshold := range m.thresholds {
		def, ok := m.registry.Definition(tag)
		if !ok {
			return nil, aierrors.NewMetricTypeError(tag, "is not registered")
		}
		value, ok := soFar[tag].(float64)
		if !ok {
			return 0.0, nil
		}
		if !passesSLO(def.Flags, value, threshold) {
			return 0.0, nil
		}
	}
	return 1.0, nil
}

func passesSLO(flags Flags, value, threshold float64) bool {
	if flags.Has(FlagLargerIsBetter) {
		return value >= threshold
	}
	return value <= threshold
}

// goodputMetric is good request count divided by benchmark duration in
// seconds, grounded on
// original_source/src/aiperf/metrics/types/goodput_metric.py.
type goodputMetric struct{}

func (m goodputMetric) Derive(results ResultValues) (any, error) {
	good, ok := results[TagGoodRequestCount].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagGoodput)
	}
	durationNS, ok := results[TagBenchmarkDuration].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagGoodput)
	}
	return good / nanosToSeconds(durationNS), nil
}

// SetupGoodput registers the good_request_count and goodput metrics against
// reg, normalizing each SLO threshold (keyed by metric tag, valued in that
// metric's DisplayUnit) into the metric's native Unit. Returns
// aierrors.PostProcessorDisabled if slos is empty, since Goodput has no
// meaning without at least one configured threshold.
func SetupGoodput(reg *Registry, slos map[string]float64) error {
	if len(slos) == 0 {
		return aierrors.NewPostProcessorDisabled("goodput")
	}

	normalized := make(map[string]float64, len(slos))
	tags := make([]string, 0, len(slos))
	for tag, displayValue := range slos {
		def, ok := reg.Definition(tag)
		if !ok {
			return aierrors.NewMetricTypeError(tag, "unknown metric tag in goodput SLOs")
		}
		displayUnit := def.DisplayUnit
		if displayUnit == "" {
			displayUnit = def.Unit
		}
		nativeValue, err := convertUnit(displayValue, displayUnit, def.Unit)
		if err != nil {
			return err
		}
		normalized[tag] = nativeValue
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	goodCount := &goodRequestCountMetric{
		def: Definition{
			Tag:             TagGoodRequestCount,
			Header:          "Good Request Count",
			Unit:            UnitRequests,
			Flags:           FlagGoodput | FlagNoConsole | FlagNoIndividualRecords,
			RequiredMetrics: tags,
			Kind:            KindAggregate,
		},
		thresholds:    normalized,
		registry:      reg,
		sumAggregator: &sumAggregator{},
	}
	if err := reg.RegisterAggregate(goodCount.def, goodCount); err != nil {
		return err
	}

	return reg.RegisterDerived(Definition{
		Tag:             TagGoodput,
		Header:          "Goodput",
		Unit:            UnitRequestsPerSec,
		Flags:           FlagGoodput | FlagLargerIsBetter,
		DisplayOrder:    intPtr(1000),
		RequiredMetrics: []string{TagGoodRequestCount, TagBenchmarkDuration},
		Kind:            KindDerived,
	}, goodputMetric{})
}

func intPtr(v int) *int { return &v }
