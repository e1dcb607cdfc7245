// Package controller implements the AIPerf System Controller: the service
// that spawns every other service, waits for their registrations, drives
// the run through its lifecycle phases, and aggregates partial failures into
// a final exit report. Its Raft-backed FSM repurposes a cluster-state
// consensus design (nodes, services, volumes) for run-ledger consensus
// (lifecycle phase, registered services, exit errors).
package controller

import (
	"fmt"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
)

// Phase is a state in the System Controller's lifecycle state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseConfiguring  Phase = "configuring"
	PhaseReady        Phase = "ready"
	PhaseProfiling    Phase = "profiling"
	PhaseProcessing   Phase = "processing"
	PhaseStopping     Phase = "stopping"
	PhaseShutdown     Phase = "shutdown"
)

// validNextPhases enumerates the state machine's allowed transitions. Every
// phase may also transition directly to STOPPING on error, which is handled
// separately in CanTransition rather than duplicated into every entry below.
var validNextPhases = map[Phase][]Phase{
	PhaseInitializing: {PhaseConfiguring},
	PhaseConfiguring:  {PhaseReady},
	PhaseReady:        {PhaseProfiling},
	PhaseProfiling:    {PhaseProcessing},
	PhaseProcessing:   {PhaseStopping},
	PhaseStopping:     {PhaseShutdown},
	PhaseShutdown:     {},
}

// CanTransition reports whether moving from current to next is a legal
// lifecycle step. STOPPING is reachable from any non-terminal phase (the
// error path); SHUTDOWN is reachable only from STOPPING.
func CanTransition(current, next Phase) bool {
	if next == PhaseStopping && current != PhaseShutdown {
		return true
	}
	for _, allowed := range validNextPhases[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExitErrorInfo names one service's contribution to a failed or partially
// failed run, surfaced in the controller's final exit report.
type ExitErrorInfo struct {
	ServiceID   string `json:"service_id"`
	ServiceType string `json:"service_type"`
	Message     string `json:"message"`
}

func (e ExitErrorInfo) String() string {
	return fmt.Sprintf("%s (%s): %s", e.ServiceID, e.ServiceType, e.Message)
}

// exitErrorFromServiceError extracts an ExitErrorInfo from a
// *aierrors.ServiceError, falling back to a generic message for any other
// error type so the aggregation path never panics on an unexpected wrap.
func exitErrorFromServiceError(serviceType string, err error) ExitErrorInfo {
	if svcErr, ok := err.(*aierrors.ServiceError); ok {
		return ExitErrorInfo{ServiceID: svcErr.ServiceID, ServiceType: serviceType, Message: svcErr.Error()}
	}
	return ExitErrorInfo{ServiceType: serviceType, Message: err.Error()}
}
