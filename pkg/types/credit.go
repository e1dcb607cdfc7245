package types

import (
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
)

// CreditPhase identifies which phase of the benchmark a credit or phase
// belongs to.
type CreditPhase string

const (
	CreditPhaseWarmup    CreditPhase = "warmup"
	CreditPhaseProfiling CreditPhase = "profiling"
)

// Credit is a single unit of work authorizing one request, issued by the
// Timing Manager and consumed by a Worker.
type Credit struct {
	Phase          CreditPhase `json:"phase"`
	ConversationID string      `json:"conversation_id,omitempty"`
	CreditDropNS   *int64      `json:"credit_drop_ns,omitempty"`
	ShouldCancel   bool        `json:"should_cancel,omitempty"`
	CancelAfterNS  int64       `json:"cancel_after_ns,omitempty"`
}

// CreditPhaseConfig describes one phase of credit issuance: either a fixed
// request count or a wall-clock duration, never both.
type CreditPhaseConfig struct {
	Type                  CreditPhase
	TotalExpectedRequests *int64
	ExpectedDurationSec   *float64
}

// IsValid reports whether exactly one of the count/duration fields is set.
func (c CreditPhaseConfig) IsValid() bool {
	hasCount := c.TotalExpectedRequests != nil && *c.TotalExpectedRequests > 0
	hasDuration := c.ExpectedDurationSec != nil && *c.ExpectedDurationSec > 0
	return hasCount != hasDuration
}

// CreditPhaseStats tracks the mutable per-phase counters: how many credits
// were dropped and returned, and whether the phase has finished sending
// and/or completed entirely.
type CreditPhaseStats struct {
	Type                  CreditPhase
	StartNS               int64
	SentEndNS             *int64
	EndNS                 *int64
	TotalExpectedRequests *int64
	ExpectedDurationSec   *float64
	Sent                  int64
	Completed             int64
}

// NewCreditPhaseStats builds a CreditPhaseStats for the given phase config,
// stamping the start time as now.
func NewCreditPhaseStats(cfg CreditPhaseConfig) CreditPhaseStats {
	return CreditPhaseStats{
		Type:                  cfg.Type,
		StartNS:               NowNS(),
		TotalExpectedRequests: cfg.TotalExpectedRequests,
		ExpectedDurationSec:   cfg.ExpectedDurationSec,
	}
}

// IsSendingComplete reports whether all credits for this phase have been
// sent (SentEndNS has been stamped).
func (s *CreditPhaseStats) IsSendingComplete() bool {
	return s.SentEndNS != nil
}

// IsComplete reports whether the phase has finished sending and all sent
// credits have since been accounted for (returned or force-completed).
func (s *CreditPhaseStats) IsComplete() bool {
	return s.IsSendingComplete() && s.EndNS != nil
}

// InFlight returns the number of credits sent but not yet completed. This is
// always >= 0 by construction: Completed only increments on a matching
// CreditReturn for a credit that was counted in Sent.
func (s *CreditPhaseStats) InFlight() int64 {
	return s.Sent - s.Completed
}

// IsTimeBased reports whether this phase is governed by a wall-clock
// duration rather than a fixed request count.
func (s *CreditPhaseStats) IsTimeBased() bool {
	return s.ExpectedDurationSec != nil
}

// ShouldSend reports whether the strategy should issue another credit for
// this phase right now: for count-based phases, Sent < TotalExpectedRequests;
// for time-based phases, the expected duration has not yet elapsed.
func (s *CreditPhaseStats) ShouldSend() (bool, error) {
	switch {
	case s.ExpectedDurationSec != nil:
		elapsedSec := float64(NowNS()-s.StartNS) / float64(time.Second)
		return elapsedSec <= *s.ExpectedDurationSec, nil
	case s.TotalExpectedRequests != nil:
		return s.Sent < *s.TotalExpectedRequests, nil
	default:
		return false, aierrors.NewInvalidStateError("phase is not time or request count based")
	}
}

// ProgressPercent returns the phase's completion percentage, or nil if it
// cannot be determined (e.g. the phase has not started).
func (s *CreditPhaseStats) ProgressPercent() *float64 {
	if s.IsComplete() {
		v := 100.0
		return &v
	}
	if s.IsTimeBased() {
		elapsedSec := float64(NowNS()-s.StartNS) / float64(time.Second)
		v := (elapsedSec / *s.ExpectedDurationSec) * 100
		return &v
	}
	if s.TotalExpectedRequests != nil && *s.TotalExpectedRequests > 0 {
		v := (float64(s.Completed) / float64(*s.TotalExpectedRequests)) * 100
		return &v
	}
	return nil
}

// PhaseProcessingStats tracks how many records a processor has handled
// successfully versus in error. The results processor keeps one set of
// counts for the whole run, not one per phase.
type PhaseProcessingStats struct {
	Processed int64
	Errors    int64

	// SkippedEmptyRecords counts records that carried no computable metric
	// values and no error (e.g. a cancelled request with zero metrics
	// applicable) and were therefore left out of a RECORDS-mode export.
	SkippedEmptyRecords int64
}

// TotalRecords returns the sum of processed and errored records.
func (p PhaseProcessingStats) TotalRecords() int64 {
	return p.Processed + p.Errors
}
