package metrics

import (
	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// RecordProcessor is Stage 1 of the metrics pipeline: for each
// ParsedResponseRecord it walks the registry's per-record metrics in
// dependency order, building a MetricRecordsPayload ready to push to the
// Results Processor. The valid/error-record parse-function split is
// reworked from module-level lists into precomputed tag orders held on the
// processor instance.
type RecordProcessor struct {
	id        string
	registry  *Registry
	logger    zerolog.Logger
	validTags []string // dependency order, excludes ERROR_ONLY tags
	errorTags []string // dependency order, ERROR_ONLY tags only
}

// NewRecordProcessor builds a RecordProcessor against reg, precomputing the
// valid- and error-record parse orders once so every call to Process reuses
// them. streaming must match the endpoint configuration the run was launched
// with: when false, every STREAMING_ONLY metric (ttft, inter_token_latency)
// is excluded from both orders, since a non-streaming worker only ever
// produces a single ParsedResponse and those metrics would otherwise report
// a meaningless first-chunk-equals-last-chunk value.
func NewRecordProcessor(id string, reg *Registry, streaming bool) (*RecordProcessor, error) {
	disallowed := FlagNone
	if !streaming {
		disallowed = FlagStreamingOnly
	}
	recordTags := reg.TagsApplicableTo(FlagNone, disallowed, KindRecord, KindAggregate, KindSumAggregate)

	var valid, errOnly []string
	for _, tag := range recordTags {
		def, _ := reg.Definition(tag)
		if def.Flags.Has(FlagErrorOnly) {
			errOnly = append(errOnly, tag)
		} else {
			valid = append(valid, tag)
		}
	}

	validOrder, err := reg.DependencyOrder(valid)
	if err != nil {
		return nil, err
	}
	errorOrder, err := reg.DependencyOrder(errOnly)
	if err != nil {
		return nil, err
	}

	return &RecordProcessor{
		id:        id,
		registry:  reg,
		logger:    log.WithComponent("record_processor").With().Str("record_processor_id", id).Logger(),
		validTags: validOrder,
		errorTags: errorOrder,
	}, nil
}

// Process computes every applicable per-record metric value for record and
// returns the payload to forward to the Results Processor. A metric that
// returns aierrors.NoMetricValue for this record is silently skipped, since
// absence of a required input is not itself an error; any other error
// aborts processing of that single metric but still yields a payload with
// whatever values were computed first.
func (p *RecordProcessor) Process(record types.ParsedResponseRecord) types.MetricRecordsPayload {
	tags := p.validTags
	if record.IsError() {
		tags = p.errorTags
	}

	soFar := make(RecordValues, len(tags))
	metrics := make(map[string]types.MetricValueUnit, len(tags))

	for _, tag := range tags {
		fn, ok := p.registry.RecordParser(tag)
		if !ok {
			continue
		}
		value, err := fn.ParseRecord(record, soFar)
		if err != nil {
			if _, skip := err.(*aierrors.NoMetricValue); !skip {
				p.logger.Debug().Err(err).Str("metric", tag).Str("x_request_id", record.Request.RequestID).
					Msg("failed to compute metric for record")
			}
			continue
		}
		f, ok := value.(float64)
		if !ok {
			continue
		}
		soFar[tag] = f
		def, _ := p.registry.Definition(tag)
		metrics[tag] = types.MetricValueUnit{Value: f, Unit: string(def.Unit)}
	}

	payload := types.MetricRecordsPayload{
		Metadata: types.MetricRecordMetadata{
			RequestID:         record.Request.RequestID,
			ConversationID:    record.Request.ConversationID,
			TurnIndex:         record.Request.TurnIndex,
			RequestStartNS:    record.Request.StartPerfNS,
			WorkerID:          record.Request.WorkerID,
			RecordProcessorID: p.id,
			BenchmarkPhase:    record.Request.CreditPhase,
		},
		Metrics: metrics,
		Error:   record.Request.Error,
	}
	return payload
}
