// Package timing implements the Timing Manager: the credit-issuing
// authority that drives a benchmark run through its warmup and profiling
// phases, at a configurable rate, and waits for every issued credit to
// drain before declaring a phase (and ultimately the run) complete.
package timing

import "time"

// RequestRateMode selects how CreditIssuingStrategy paces credit drops
// within a phase.
type RequestRateMode string

const (
	RequestRateModeConstant        RequestRateMode = "constant"
	RequestRateModePoisson         RequestRateMode = "poisson"
	RequestRateModeConcurrencyBurst RequestRateMode = "concurrency_burst"
)

// TimingMode selects which CreditIssuingStrategy the Timing Manager runs.
type TimingMode string

const (
	TimingModeRequestRate    TimingMode = "request_rate"
	TimingModeFixedSchedule  TimingMode = "fixed_schedule"
)

// Config holds the Timing Manager's tunables.
type Config struct {
	WarmupRequestCount int64
	RequestCount       int64

	TimingMode      TimingMode
	RequestRateMode RequestRateMode
	RequestRate     *float64
	Concurrency     *int

	ProgressReportInterval time.Duration
	RandomSeed             *int64

	// Fixed-schedule-only fields.
	AutoOffsetTimestamps    bool
	FixedScheduleStartOffset *int64
	FixedScheduleEndOffset   *int64

	// Request-cancellation strategy: RequestCancellationRatePercent is a
	// percentage (0-100); RequestCancellationDelaySec is a fixed delay
	// applied to every cancelled request.
	RequestCancellationRatePercent float64
	RequestCancellationDelaySec    float64

	GracePeriod time.Duration
}
