package types

// ServiceState is the lifecycle state a service reports in its
// Status/Heartbeat/Registration payloads.
type ServiceState string

const (
	ServiceStateCreated      ServiceState = "created"
	ServiceStateInitializing ServiceState = "initializing"
	ServiceStateReady        ServiceState = "ready"
	ServiceStateRunning      ServiceState = "running"
	ServiceStateStopping     ServiceState = "stopping"
	ServiceStateStopped      ServiceState = "stopped"
	ServiceStateFailed       ServiceState = "failed"
)

// ServiceType identifies which AIPerf service role a message originates
// from, used by the controller to group registrations and commands.
type ServiceType string

const (
	ServiceTypeController      ServiceType = "controller"
	ServiceTypeTimingManager   ServiceType = "timing_manager"
	ServiceTypeWorker          ServiceType = "worker"
	ServiceTypeRecordProcessor ServiceType = "record_processor"
	ServiceTypeResultsProcessor ServiceType = "results_processor"
	ServiceTypeStatsStreamer   ServiceType = "stats_streamer"
)

// CommandType identifies the action a CommandPayload requests of its
// target service(s).
type CommandType string

const (
	CommandTypeStartWarmup    CommandType = "start_warmup"
	CommandTypeStartProfiling CommandType = "start_profiling"
	CommandTypeStop           CommandType = "stop"
	CommandTypeShutdown       CommandType = "shutdown"
)

// ErrorPayload reports an error encountered by a service, carried in a
// Message of MessageTypeError.
type ErrorPayload struct {
	ErrorCode    string         `json:"error_code"`
	Error        string         `json:"error"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}

// StatusPayload reports a service's current lifecycle state.
type StatusPayload struct {
	State       ServiceState `json:"state"`
	ServiceType ServiceType  `json:"service_type"`
}

// HeartbeatPayload is a StatusPayload sent periodically while a service is
// healthy; State is always ServiceStateRunning.
type HeartbeatPayload struct {
	StatusPayload
}

// RegistrationPayload is a StatusPayload sent once at service startup to
// join the controller's service table; State is always ServiceStateReady.
type RegistrationPayload struct {
	StatusPayload
}

// CommandPayload requests an action of one or all services.
type CommandPayload struct {
	Command         CommandType `json:"command"`
	CommandID       string      `json:"command_id"`
	RequireResponse bool        `json:"require_response,omitempty"`
	TargetServiceID string      `json:"target_service_id,omitempty"`
}

// CommandResponsePayload reports the outcome of a CommandPayload that set
// RequireResponse.
type CommandResponsePayload struct {
	CommandID string  `json:"command_id"`
	Success   bool    `json:"success"`
	Error     *string `json:"error,omitempty"`
}

// CreditDropPayload authorizes a Worker to issue one request.
type CreditDropPayload struct {
	Credit      Credit `json:"credit"`
	TimestampNS int64  `json:"timestamp_ns"`
}

// CreditReturnPayload reports that a Worker has finished processing a
// credit, successfully or not.
type CreditReturnPayload struct {
	Phase       CreditPhase `json:"phase"`
	Cancelled   bool        `json:"cancelled,omitempty"`
	Error       *string     `json:"error,omitempty"`
	TimestampNS int64       `json:"timestamp_ns"`
}

// ConversationRequestPayload asks a Dataset Provider for a conversation by
// id.
type ConversationRequestPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationResponsePayload is the Dataset Provider's reply to a
// ConversationRequestPayload, carrying the conversation's full ordered
// turn list. The worker tracks which turn to send next locally (§4.3
// step 4) rather than requesting one turn at a time.
type ConversationResponsePayload struct {
	ConversationID string           `json:"conversation_id"`
	Turns          []map[string]any `json:"turns"`
}

// ParsedInferenceResultsPayload wraps a ParsedResponseRecord for transit
// from a Worker to the Record Processor.
type ParsedInferenceResultsPayload struct {
	Record ParsedResponseRecord `json:"record"`
}

// MetricRecordsPayload carries one Record Processor's per-record metric
// values to the Results Processor.
type MetricRecordsPayload struct {
	Metadata MetricRecordMetadata       `json:"metadata"`
	Metrics  map[string]MetricValueUnit `json:"metrics"`
	Error    *string                    `json:"error,omitempty"`
}

// ShutdownPayload requests a service terminate, optionally explaining why.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CreditPhaseStartPayload announces that the Timing Manager has begun
// issuing credits for a phase.
type CreditPhaseStartPayload struct {
	Phase  CreditPhase        `json:"phase"`
	Config *CreditPhaseConfig `json:"config,omitempty"`
}

// CreditPhaseSendingCompletePayload announces that the Timing Manager has
// issued every credit it intends to for a phase; credits already in flight
// may still be outstanding.
type CreditPhaseSendingCompletePayload struct {
	Phase     CreditPhase `json:"phase"`
	TotalSent int64       `json:"total_sent"`
}

// CreditPhaseCompletePayload announces that a phase has fully drained: every
// issued credit has been returned or force-completed by the grace period.
type CreditPhaseCompletePayload struct {
	Phase         CreditPhase `json:"phase"`
	TotalSent     int64       `json:"total_sent"`
	TotalReturned int64       `json:"total_returned"`
	ForceCompleted int64      `json:"force_completed"`
}

// CreditPhaseProgressPayload is a periodic progress update for a running
// phase.
type CreditPhaseProgressPayload struct {
	Phase           CreditPhase `json:"phase"`
	Sent            int64       `json:"sent"`
	Completed       int64       `json:"completed"`
	ProgressPercent *float64    `json:"progress_percent,omitempty"`
}

// CreditsCompletePayload announces that the PROFILING phase has fully
// drained; this is the sole trigger for run teardown (see DESIGN.md Open
// Question decisions).
type CreditsCompletePayload struct {
	TotalSent     int64 `json:"total_sent"`
	TotalReturned int64 `json:"total_returned"`
}

// RealtimeMetricsPayload is a snapshot published periodically by the
// Realtime Stats Streamer while profiling is in progress.
type RealtimeMetricsPayload struct {
	Phase       CreditPhase    `json:"phase"`
	TimestampNS int64          `json:"timestamp_ns"`
	Metrics     []MetricResult `json:"metrics"`
}
