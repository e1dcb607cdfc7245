package metrics

import (
	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// ttftMetric computes time-to-first-token for streaming records, grounded
// on original_source/src/aiperf/metrics/types/ttft_metric.py: the perf-clock
// timestamp of the first content-bearing response minus the request start.
type ttftMetric struct{}

func (m ttftMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	if len(record.Responses) == 0 {
		return nil, aierrors.NewNoMetricValue(TagTTFT)
	}
	first := record.Responses[0].PerfNS
	if first < record.Request.StartPerfNS {
		return nil, aierrors.NewInvalidStateError("first response timestamp precedes request start")
	}
	return float64(first - record.Request.StartPerfNS), nil
}

// requestLatencyMetric computes end-to-end request latency: the perf-clock
// timestamp of the final response minus the request start, grounded on
// original_source/src/aiperf/metrics/types/request_latency_metric.py.
type requestLatencyMetric struct{}

func (m requestLatencyMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	if len(record.Responses) == 0 {
		return nil, aierrors.NewNoMetricValue(TagRequestLatency)
	}
	last := record.Responses[len(record.Responses)-1].PerfNS
	if last < record.Request.StartPerfNS {
		return nil, aierrors.NewInvalidStateError("final response timestamp precedes request start")
	}
	return float64(last - record.Request.StartPerfNS), nil
}

// inputSequenceLengthMetric reports the number of input tokens the request
// consumed, as counted by the endpoint-specific ResponseParser.
type inputSequenceLengthMetric struct{}

func (m inputSequenceLengthMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	if record.InputTokenCount == nil {
		return nil, aierrors.NewNoMetricValue(TagInputSequenceLen)
	}
	return float64(*record.InputTokenCount), nil
}

// outputSequenceLengthMetric reports the number of output tokens the
// response produced, grounded on
// original_source/aiperf/metrics/types/output_sequence_length_metric.py.
type outputSequenceLengthMetric struct{}

func (m outputSequenceLengthMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	if record.OutputTokenCount == nil {
		return nil, aierrors.NewNoMetricValue(TagOutputSequenceLen)
	}
	return float64(*record.OutputTokenCount), nil
}

// interTokenLatencyMetric computes the average time between generated
// tokens after the first: (request_latency - ttft) / (output_tokens - 1).
// Grounded on
// original_source/aiperf/metrics/types/inter_token_latency_metric.py, which
// zips latency/ttft/output-length arrays per record; reading TTFT and
// RequestLatency back out of this record's own RecordValues achieves the
// same per-record pairing without a cross-record zip.
type interTokenLatencyMetric struct{}

func (m interTokenLatencyMetric) ParseRecord(record types.ParsedResponseRecord, soFar RecordValues) (any, error) {
	if record.OutputTokenCount == nil || *record.OutputTokenCount < 2 {
		return nil, aierrors.NewNoMetricValue(TagInterTokenLatency)
	}
	ttftVal, ok := soFar[TagTTFT].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagInterTokenLatency)
	}
	latencyVal, ok := soFar[TagRequestLatency].(float64)
	if !ok {
		return nil, aierrors.NewNoMetricValue(TagInterTokenLatency)
	}
	tokens := float64(*record.OutputTokenCount)
	return (latencyVal - ttftVal) / (tokens - 1), nil
}

// creditDropLatencyMetric reports how long a credit waited between being
// scheduled (credit_drop_ns) and actually being acted on by a worker,
// carried on RequestRecord by the Worker itself. Flagged INTERNAL: useful
// for diagnosing scheduler slippage, not meant for end-user reports.
type creditDropLatencyMetric struct{}

func (m creditDropLatencyMetric) ParseRecord(record types.ParsedResponseRecord, _ RecordValues) (any, error) {
	if record.Request.CreditDropLatencyNS == nil {
		return nil, aierrors.NewNoMetricValue(TagCreditDropLatency)
	}
	return float64(*record.Request.CreditDropLatencyNS), nil
}

func init() {
	Default.MustRegister(Definition{
		Tag:    TagTTFT,
		Header: "Time to First Token",
		Unit:   UnitNanoseconds,
		Flags:  FlagStreamingTokensOnly,
		Kind:   KindRecord,
	}, ttftMetric{})

	Default.MustRegister(Definition{
		Tag:         TagRequestLatency,
		Header:      "Request Latency",
		Unit:        UnitNanoseconds,
		DisplayUnit: UnitMilliseconds,
		Kind:        KindRecord,
	}, requestLatencyMetric{})

	Default.MustRegister(Definition{
		Tag:    TagInputSequenceLen,
		Header: "Input Sequence Length",
		Unit:   UnitTokens,
		Flags:  FlagProducesTokensOnly | FlagLargerIsBetter | FlagTokenizesInputOnly,
		Kind:   KindRecord,
	}, inputSequenceLengthMetric{})

	Default.MustRegister(Definition{
		Tag:    TagOutputSequenceLen,
		Header: "Output Sequence Length",
		Unit:   UnitTokens,
		Flags:  FlagProducesTokensOnly | FlagLargerIsBetter,
		Kind:   KindRecord,
	}, outputSequenceLengthMetric{})

	Default.MustRegister(Definition{
		Tag:             TagInterTokenLatency,
		Header:          "Inter Token Latency",
		Unit:            UnitNanoseconds,
		Flags:           FlagStreamingTokensOnly,
		RequiredMetrics: []string{TagTTFT, TagRequestLatency},
		Kind:            KindRecord,
	}, interTokenLatencyMetric{})

	Default.MustRegister(Definition{
		Tag:    TagCreditDropLatency,
		Header: "Credit Drop Latency",
		Unit:   UnitNanoseconds,
		Flags:  FlagInternal | FlagNoConsole,
		Kind:   KindRecord,
	}, creditDropLatencyMetric{})
}
