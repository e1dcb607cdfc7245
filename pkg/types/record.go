package types

// RequestRecord captures the timing and identity of a single HTTP exchange
// issued by a Worker, independent of the parsed response content.
type RequestRecord struct {
	RequestID          string      `json:"x_request_id"`
	WorkerID           string      `json:"worker_id,omitempty"`
	ConversationID     string      `json:"conversation_id"`
	TurnIndex          int         `json:"turn_index"`
	ModelName          string      `json:"model_name,omitempty"`
	StartPerfNS        int64       `json:"start_perf_ns"`
	TimestampNS        int64       `json:"timestamp_ns"`
	EndPerfNS          int64       `json:"end_perf_ns"`
	RecvStartPerfNS    *int64      `json:"recv_start_perf_ns,omitempty"`
	CreditDropLatencyNS *int64     `json:"credit_drop_latency_ns,omitempty"`
	CreditPhase        CreditPhase `json:"credit_phase"`
	Error              *string     `json:"error,omitempty"`
}

// ParsedResponse is one chunk of an endpoint's response, already run through
// the endpoint-specific parser.
type ParsedResponse struct {
	PerfNS int64          `json:"perf_ns"`
	Data   map[string]any `json:"data,omitempty"`
	Usage  map[string]any `json:"usage,omitempty"`
}

// ParsedResponseRecord is the Worker's distilled view of one HTTP exchange:
// the request timing plus every response chunk received, ready for the
// Record Processor to derive per-record metrics from.
type ParsedResponseRecord struct {
	Request             RequestRecord    `json:"request"`
	Responses           []ParsedResponse `json:"responses"`
	InputTokenCount     *int64           `json:"input_token_count,omitempty"`
	OutputTokenCount    *int64           `json:"output_token_count,omitempty"`
	ReasoningTokenCount *int64           `json:"reasoning_token_count,omitempty"`
}

// Valid reports whether this record represents a usable (non-error)
// response: no error was recorded and at least one response chunk exists.
func (r ParsedResponseRecord) Valid() bool {
	return r.Request.Error == nil && len(r.Responses) > 0
}

// IsError reports whether this record is an error record, i.e. only
// error-flagged metrics should apply to it.
func (r ParsedResponseRecord) IsError() bool {
	return r.Request.Error != nil
}

// MetricResult is a per-metric summary row produced by the Summarize stage:
// either a full statistical breakdown (for RECORD metrics backed by a
// MetricArray) or a single scalar repeated into Avg with Count == 1 (for
// AGGREGATE/DERIVED metrics).
type MetricResult struct {
	Tag    string   `json:"tag"`
	Header string   `json:"header"`
	Unit   string   `json:"unit"`
	Avg    float64  `json:"avg"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Std    *float64 `json:"std,omitempty"`
	P1     float64  `json:"p1"`
	P5     float64  `json:"p5"`
	P25    float64  `json:"p25"`
	P50    float64  `json:"p50"`
	P75    float64  `json:"p75"`
	P90    float64  `json:"p90"`
	P95    float64  `json:"p95"`
	P99    float64  `json:"p99"`
	Count  int64    `json:"count"`
}

// MetricRecordInfo is the per-line shape written to profile_export.jsonl in
// RECORDS mode: one JSON object per record, carrying both request metadata
// and the computed metric values for that record.
type MetricRecordInfo struct {
	Metadata MetricRecordMetadata       `json:"metadata"`
	Metrics  map[string]MetricValueUnit `json:"metrics"`
	Error    *string                    `json:"error,omitempty"`
}

// MetricRecordMetadata identifies the request a MetricRecordInfo line
// corresponds to, for offline correlation with logs or traces.
type MetricRecordMetadata struct {
	RequestID         string      `json:"x_request_id"`
	ConversationID    string      `json:"conversation_id"`
	TurnIndex         int         `json:"turn_index"`
	RequestStartNS    int64       `json:"request_start_ns"`
	WorkerID          string      `json:"worker_id"`
	RecordProcessorID string      `json:"record_processor_id"`
	BenchmarkPhase    CreditPhase `json:"benchmark_phase"`
}

// MetricValueUnit is a single metric's value paired with its unit, as
// written into a MetricRecordInfo's metrics map.
type MetricValueUnit struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}
