package metrics

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// defaultArrayCapacity is the initial capacity every RECORD metric's backing
// MetricArray is allocated with; it simply needs to be > 0 to satisfy
// NewMetricArray's eager validation; MetricArray grows by doubling beyond
// this on its own.
const defaultArrayCapacity = 1024

// RecordSink durably persists per-request metric output for a RECORDS-mode
// export; satisfied by *storage.BoltRecordStore with no adapter code. Left
// as a narrow local interface rather than importing pkg/storage directly so
// ResultsProcessor has no durability concern when no sink is configured.
type RecordSink interface {
	Append(rec types.MetricRecordInfo) error
}

// ResultsProcessor is Stage 2 + Stage 3 of the metrics pipeline: a
// singleton that folds every RecordProcessor's MetricRecordsPayload into
// RECORD arrays and AGGREGATE running values, then, on Summarize, computes
// every DERIVED metric in dependency order. When a RecordSink is set, it
// also spills every non-empty record to durable storage as it arrives, for
// a RECORDS-level export.
type ResultsProcessor struct {
	registry *Registry
	sink     RecordSink
	logger   zerolog.Logger

	mu     sync.Mutex
	arrays map[string]*types.MetricArray
	stats  types.PhaseProcessingStats
}

// NewResultsProcessor builds a ResultsProcessor against reg, pre-allocating
// a MetricArray for every registered RECORD metric. streaming must match the
// endpoint configuration the run was launched with: when false, no array is
// allocated for a STREAMING_ONLY metric, so it never appears in Summarize's
// output even if a misbehaving RecordProcessor forwarded a value for it.
func NewResultsProcessor(reg *Registry, streaming bool) *ResultsProcessor {
	disallowed := FlagNone
	if !streaming {
		disallowed = FlagStreamingOnly
	}
	rp := &ResultsProcessor{
		registry: reg,
		arrays:   make(map[string]*types.MetricArray),
		logger:   log.WithComponent("results_processor"),
	}
	for _, tag := range reg.TagsApplicableTo(FlagNone, disallowed, KindRecord) {
		rp.arrays[tag] = types.NewMetricArray(defaultArrayCapacity)
	}
	return rp
}

// SetRecordSink enables RECORDS-mode durable spill: every record Ingest
// sees from this point forward is also appended to sink, skipping empty
// records (no metrics, no error) rather than writing a blank line.
func (rp *ResultsProcessor) SetRecordSink(sink RecordSink) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.sink = sink
}

// Ingest folds one RecordProcessor's MetricRecordsPayload into the running
// results: RECORD values append to their array, AGGREGATE/SUM_AGGREGATE
// values are folded via the metric's own Aggregator.
func (rp *ResultsProcessor) Ingest(payload types.MetricRecordsPayload) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if payload.Error != nil {
		rp.stats.Errors++
	} else {
		rp.stats.Processed++
	}

	if rp.sink != nil {
		if payload.Error == nil && len(payload.Metrics) == 0 {
			rp.stats.SkippedEmptyRecords++
		} else {
			rec := types.MetricRecordInfo{Metadata: payload.Metadata, Metrics: payload.Metrics, Error: payload.Error}
			if err := rp.sink.Append(rec); err != nil {
				rp.logger.Error().Err(err).Str("request_id", payload.Metadata.RequestID).Msg("failed to spill record")
			}
		}
	}

	for tag, mv := range payload.Metrics {
		def, ok := rp.registry.Definition(tag)
		if !ok {
			continue
		}
		switch def.Kind {
		case KindRecord:
			if arr, ok := rp.arrays[tag]; ok {
				arr.Append(mv.Value)
			}
		case KindAggregate, KindSumAggregate:
			if agg, ok := rp.registry.Aggregator(tag); ok {
				_ = agg.AggregateValue(mv.Value)
			}
		}
	}
}

// Stats returns the processed/error record counts observed so far.
func (rp *ResultsProcessor) Stats() types.PhaseProcessingStats {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.stats
}

// Summarize computes the final MetricResult for every registered metric:
// RECORD metrics summarize their array's full statistical breakdown,
// AGGREGATE/SUM_AGGREGATE metrics report their running scalar, and DERIVED
// metrics are computed in dependency order from the others' results. A
// DERIVED metric whose inputs are unavailable (aierrors.NoMetricValue) is
// omitted from the result rather than aborting the whole summary.
func (rp *ResultsProcessor) Summarize() (map[string]types.MetricResult, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	order, err := rp.registry.DependencyOrder(rp.registry.Tags())
	if err != nil {
		return nil, err
	}

	resultValues := make(ResultValues, len(order))
	results := make(map[string]types.MetricResult, len(order))

	for _, tag := range order {
		def, ok := rp.registry.Definition(tag)
		if !ok {
			continue
		}
		switch def.Kind {
		case KindRecord:
			arr, ok := rp.arrays[tag]
			if !ok || arr.Len() == 0 {
				continue
			}
			resultValues[tag] = arr
			results[tag] = arr.ToResult(tag, def.Header, string(def.Unit))

		case KindAggregate, KindSumAggregate:
			agg, ok := rp.registry.Aggregator(tag)
			if !ok {
				continue
			}
			v, ok := agg.CurrentValue().(float64)
			if !ok {
				continue
			}
			resultValues[tag] = v
			results[tag] = scalarResult(def, v)

		case KindDerived:
			deriver, ok := rp.registry.Deriver(tag)
			if !ok {
				continue
			}
			v, err := deriver.Derive(resultValues)
			if err != nil {
				if _, skip := err.(*aierrors.NoMetricValue); skip {
					continue
				}
				continue
			}
			f, ok := v.(float64)
			if !ok {
				continue
			}
			resultValues[tag] = f
			results[tag] = scalarResult(def, f)
		}
	}

	return results, nil
}

func scalarResult(def Definition, value float64) types.MetricResult {
	return types.MetricResult{
		Tag:    def.Tag,
		Header: def.Header,
		Unit:   string(def.Unit),
		Avg:    value,
		P1:     value, P5: value, P25: value, P50: value,
		P75: value, P90: value, P95: value, P99: value,
		Count: 1,
	}
}
