package metrics

import "github.com/aiperf-project/aiperf-core/pkg/types"

// RecordValues holds the per-record metric values computed so far within a
// single record's Stage-1 pass, keyed by tag, in the order a metric's
// RequiredMetrics lists them. Populated incrementally as the record
// processor walks its dependency-ordered parse list.
type RecordValues map[string]any

// ResultValues holds the final per-metric results available at summarize
// time: RECORD tags map to a types.MetricArray, AGGREGATE/SUM_AGGREGATE and
// already-computed DERIVED tags map to their scalar value.
type ResultValues map[string]any

// RecordParser computes a metric's contribution for a single record. RECORD
// metrics use the return value directly as their per-record value;
// AGGREGATE and SUM_AGGREGATE metrics feed it into AggregateValue.
//
// Returning (nil, *aierrors.NoMetricValue) (see aierrors.NewNoMetricValue)
// signals the record does not produce a value for this metric (e.g.
// inter_token_latency on a record with fewer than two output tokens);
// the record processor skips it rather than treating it as an error.
type RecordParser interface {
	ParseRecord(record types.ParsedResponseRecord, soFar RecordValues) (any, error)
}

// Aggregator folds successive per-record values into one running value.
// AggregateValue is called once per record (Stage 2); CurrentValue reads
// the running total; Reset clears it back to the metric's zero value.
type Aggregator interface {
	AggregateValue(v any) error
	CurrentValue() any
	Reset()
}

// AggregateMetric is the combination AGGREGATE/SUM_AGGREGATE tier metrics
// implement: a per-record parse step plus a running aggregation.
type AggregateMetric interface {
	RecordParser
	Aggregator
}

// Deriver computes a DERIVED metric's value once at summarize time from
// the final results of its dependencies.
type Deriver interface {
	Derive(results ResultValues) (any, error)
}
