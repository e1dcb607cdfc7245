package metrics

import (
	"testing"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func newRecord(startNS, firstRespNS, lastRespNS int64, outputTokens int64) types.ParsedResponseRecord {
	tokens := outputTokens
	return types.ParsedResponseRecord{
		Request: types.RequestRecord{
			RequestID:   "req-1",
			StartPerfNS: startNS,
			TimestampNS: startNS,
		},
		Responses: []types.ParsedResponse{
			{PerfNS: firstRespNS},
			{PerfNS: lastRespNS},
		},
		OutputTokenCount: &tokens,
	}
}

func TestDependencyOrderPlacesRequiredMetricsFirst(t *testing.T) {
	order, err := Default.DependencyOrder([]string{TagOutputTokenThroughput})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, tag := range order {
		pos[tag] = i
	}
	if pos[TagBenchmarkTokenCount] >= pos[TagOutputTokenThroughput] {
		t.Fatalf("expected %s before %s, got order %v", TagBenchmarkTokenCount, TagOutputTokenThroughput, order)
	}
	if pos[TagBenchmarkDuration] >= pos[TagOutputTokenThroughput] {
		t.Fatalf("expected %s before %s, got order %v", TagBenchmarkDuration, TagOutputTokenThroughput, order)
	}
	if pos[TagOutputSequenceLen] >= pos[TagBenchmarkTokenCount] {
		t.Fatalf("expected %s before %s, got order %v", TagOutputSequenceLen, TagBenchmarkTokenCount, order)
	}
}

func TestRegisterRejectsDisallowedDependencyKind(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Tag: "a", Kind: KindRecord}, ttftMetric{})
	reg.MustRegisterDerived(Definition{Tag: "b", Kind: KindDerived, RequiredMetrics: []string{"a"}}, goodputMetric{})

	err := reg.Register(Definition{Tag: "c", Kind: KindRecord, RequiredMetrics: []string{"b"}}, ttftMetric{})
	if err == nil {
		t.Fatal("expected an error registering a RECORD metric depending on a DERIVED metric")
	}
}

func TestRegisterDetectsUnknownDependency(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Definition{Tag: "x", Kind: KindRecord, RequiredMetrics: []string{"does-not-exist"}}, ttftMetric{})
	if err == nil {
		t.Fatal("expected an error for an unregistered dependency")
	}
}

func TestTTFTAndRequestLatencyFormulas(t *testing.T) {
	record := newRecord(1000, 1500, 2500, 4)

	ttft, err := ttftMetric{}.ParseRecord(record, RecordValues{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttft.(float64) != 500 {
		t.Fatalf("expected ttft 500, got %v", ttft)
	}

	latency, err := requestLatencyMetric{}.ParseRecord(record, RecordValues{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latency.(float64) != 1500 {
		t.Fatalf("expected request_latency 1500, got %v", latency)
	}
}

func TestInterTokenLatencyFormula(t *testing.T) {
	record := newRecord(1000, 1500, 2500, 5)
	soFar := RecordValues{TagTTFT: 500.0, TagRequestLatency: 1500.0}

	itl, err := interTokenLatencyMetric{}.ParseRecord(record, soFar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (1500 - 500) / (5 - 1) == 250
	if itl.(float64) != 250 {
		t.Fatalf("expected itl 250, got %v", itl)
	}
}

func TestInterTokenLatencySkipsSingleTokenRecords(t *testing.T) {
	record := newRecord(1000, 1500, 1500, 1)
	_, err := interTokenLatencyMetric{}.ParseRecord(record, RecordValues{TagTTFT: 0.0, TagRequestLatency: 0.0})
	if err == nil {
		t.Fatal("expected a NoMetricValue error for a single-token record")
	}
}

func TestBenchmarkDurationFromMinMaxTimestamps(t *testing.T) {
	results := ResultValues{TagMinRequestTimestamp: 1000.0, TagMaxResponseTimestamp: 5000.0}
	v, err := benchmarkDurationMetric{}.Derive(results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(float64) != 4000 {
		t.Fatalf("expected duration 4000, got %v", v)
	}
}

func TestGoodRequestCountRespectsLargerIsBetterDirectionality(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Tag: TagRequestLatency, Kind: KindRecord}, requestLatencyMetric{})
	reg.MustRegister(Definition{
		Tag:   TagOutputSequenceLen,
		Kind:  KindRecord,
		Flags: FlagLargerIsBetter,
	}, outputSequenceLengthMetric{})

	good := &goodRequestCountMetric{
		def: Definition{
			Tag:             TagGoodRequestCount,
			RequiredMetrics: []string{TagRequestLatency, TagOutputSequenceLen},
		},
		thresholds: map[string]float64{TagRequestLatency: 1000, TagOutputSequenceLen: 10},
		registry:   reg,
	}

	// request_latency must be <= threshold (smaller is better), output
	// length must be >= threshold (LARGER_IS_BETTER) to count as good.
	passing := RecordValues{TagRequestLatency: 500.0, TagOutputSequenceLen: 20.0}
	v, err := good.ParseRecord(types.ParsedResponseRecord{}, passing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(float64) != 1 {
		t.Fatalf("expected the record to count as good, got %v", v)
	}

	failing := RecordValues{TagRequestLatency: 2000.0, TagOutputSequenceLen: 20.0}
	v, err = good.ParseRecord(types.ParsedResponseRecord{}, failing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(float64) != 0 {
		t.Fatalf("expected the record to fail the latency SLO, got %v", v)
	}
}

func TestNonStreamingRunExcludesStreamingOnlyMetrics(t *testing.T) {
	proc, err := NewRecordProcessor("rp-1", Default, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := newRecord(1000, 1500, 2500, 5)
	payload := proc.Process(record)

	if _, ok := payload.Metrics[TagTTFT]; ok {
		t.Fatalf("expected %s to be excluded from a non-streaming run, got %v", TagTTFT, payload.Metrics)
	}
	if _, ok := payload.Metrics[TagInterTokenLatency]; ok {
		t.Fatalf("expected %s to be excluded from a non-streaming run, got %v", TagInterTokenLatency, payload.Metrics)
	}
	if _, ok := payload.Metrics[TagRequestLatency]; !ok {
		t.Fatalf("expected %s to still be present for a non-streaming run", TagRequestLatency)
	}

	rp := NewResultsProcessor(Default, false)
	rp.Ingest(payload)
	results, err := rp.Summarize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := results[TagTTFT]; ok {
		t.Fatalf("expected %s absent from a non-streaming run's summary, got %+v", TagTTFT, results[TagTTFT])
	}
	if _, ok := results[TagInterTokenLatency]; ok {
		t.Fatalf("expected %s absent from a non-streaming run's summary, got %+v", TagInterTokenLatency, results[TagInterTokenLatency])
	}
}

func TestGoodputMonotonicityOnLooserThreshold(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Tag: TagRequestLatency, Kind: KindRecord}, requestLatencyMetric{})

	countGood := func(threshold float64) float64 {
		good := &goodRequestCountMetric{
			def:        Definition{Tag: TagGoodRequestCount, RequiredMetrics: []string{TagRequestLatency}},
			thresholds: map[string]float64{TagRequestLatency: threshold},
			registry:   reg,
		}
		records := []RecordValues{
			{TagRequestLatency: 100.0},
			{TagRequestLatency: 200.0},
			{TagRequestLatency: 300.0},
		}
		var total float64
		for _, soFar := range records {
			v, err := good.ParseRecord(types.ParsedResponseRecord{}, soFar)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			total += v.(float64)
		}
		return total
	}

	tighter := countGood(150)
	looser := countGood(250)
	if looser < tighter {
		t.Fatalf("loosening the SLO threshold decreased good_request_count: tighter=%v looser=%v", tighter, looser)
	}
}

func TestResultsProcessorPipelineEndToEnd(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Tag: TagOutputSequenceLen, Kind: KindRecord, Flags: FlagLargerIsBetter}, outputSequenceLengthMetric{})
	reg.MustRegisterAggregate(Definition{Tag: TagMinRequestTimestamp, Kind: KindSumAggregate}, minRequestTimestampMetric{minAggregator: &minAggregator{}})
	reg.MustRegisterAggregate(Definition{Tag: TagMaxResponseTimestamp, Kind: KindAggregate}, maxResponseTimestampMetric{maxAggregator: &maxAggregator{}})
	reg.MustRegisterAggregate(Definition{Tag: TagRequestCount, Kind: KindSumAggregate}, requestCountMetric{sumAggregator: &sumAggregator{}})
	reg.MustRegisterDerived(Definition{Tag: TagBenchmarkDuration, Kind: KindDerived, RequiredMetrics: []string{TagMinRequestTimestamp, TagMaxResponseTimestamp}}, benchmarkDurationMetric{})
	reg.MustRegisterDerived(Definition{Tag: TagRequestThroughput, Kind: KindDerived, RequiredMetrics: []string{TagRequestCount, TagBenchmarkDuration}}, requestThroughputMetric{})

	rp := NewResultsProcessor(reg, true)
	rp.Ingest(types.MetricRecordsPayload{Metrics: map[string]types.MetricValueUnit{
		TagOutputSequenceLen:   {Value: 10},
		TagMinRequestTimestamp: {Value: 0},
		TagMaxResponseTimestamp: {Value: 2_000_000_000}, // 2 seconds later
		TagRequestCount:        {Value: 1},
	}})
	rp.Ingest(types.MetricRecordsPayload{Metrics: map[string]types.MetricValueUnit{
		TagOutputSequenceLen:   {Value: 20},
		TagMinRequestTimestamp: {Value: 500_000_000},
		TagMaxResponseTimestamp: {Value: 2_000_000_000},
		TagRequestCount:        {Value: 1},
	}})

	results, err := rp.Summarize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	osl, ok := results[TagOutputSequenceLen]
	if !ok || osl.Count != 2 {
		t.Fatalf("expected 2 output_sequence_length records, got %+v", osl)
	}

	throughput, ok := results[TagRequestThroughput]
	if !ok {
		t.Fatal("expected a request_throughput result")
	}
	// request_count == 2, benchmark_duration == 2 seconds -> 1 req/sec.
	if throughput.Avg != 1 {
		t.Fatalf("expected request_throughput 1, got %v", throughput.Avg)
	}
}
