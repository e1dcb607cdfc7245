package controller

import (
	"sync"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// RunLedger holds the System Controller's run-wide state: the current
// lifecycle phase, which services have registered, and any exit errors
// accumulated along the way. It is the state a LedgerFSM applies Raft log
// entries against — the same storage-backend shape used elsewhere in this
// codebase, but scoped to a single run's bookkeeping rather than a whole
// cluster's resource graph.
type RunLedger struct {
	mu                 sync.RWMutex
	phase              Phase
	registeredServices map[types.ServiceType]string // service type -> service id
	exitErrors         []ExitErrorInfo
}

// NewRunLedger returns a ledger initialized to PhaseInitializing.
func NewRunLedger() *RunLedger {
	return &RunLedger{
		phase:              PhaseInitializing,
		registeredServices: make(map[types.ServiceType]string),
	}
}

// Phase returns the ledger's current lifecycle phase.
func (l *RunLedger) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// registerService records that serviceID of serviceType has registered.
// Re-registration by the same service type overwrites the previous id,
// matching a worker or processor restarting under the same role.
func (l *RunLedger) registerService(serviceType types.ServiceType, serviceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registeredServices[serviceType] = serviceID
}

// HasRegistered reports whether serviceType has a registered service.
func (l *RunLedger) HasRegistered(serviceType types.ServiceType) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.registeredServices[serviceType]
	return ok
}

// RegisteredServiceIDs returns a snapshot of the current registration table.
func (l *RunLedger) RegisteredServiceIDs() map[types.ServiceType]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[types.ServiceType]string, len(l.registeredServices))
	for k, v := range l.registeredServices {
		out[k] = v
	}
	return out
}

// ExitErrors returns a snapshot of every exit error recorded so far.
func (l *RunLedger) ExitErrors() []ExitErrorInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ExitErrorInfo, len(l.exitErrors))
	copy(out, l.exitErrors)
	return out
}

func (l *RunLedger) setPhase(phase Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = phase
}

func (l *RunLedger) recordExitError(info ExitErrorInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitErrors = append(l.exitErrors, info)
}

// snapshotState is the JSON-serializable view of a RunLedger persisted by
// ledgerSnapshot.Persist and restored by LedgerFSM.Restore.
type snapshotState struct {
	Phase              Phase                       `json:"phase"`
	RegisteredServices map[types.ServiceType]string `json:"registered_services"`
	ExitErrors         []ExitErrorInfo             `json:"exit_errors"`
}

func (l *RunLedger) toSnapshot() snapshotState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	services := make(map[types.ServiceType]string, len(l.registeredServices))
	for k, v := range l.registeredServices {
		services[k] = v
	}
	errs := make([]ExitErrorInfo, len(l.exitErrors))
	copy(errs, l.exitErrors)
	return snapshotState{Phase: l.phase, RegisteredServices: services, ExitErrors: errs}
}

func (l *RunLedger) restore(s snapshotState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = s.Phase
	l.registeredServices = s.RegisteredServices
	if l.registeredServices == nil {
		l.registeredServices = make(map[types.ServiceType]string)
	}
	l.exitErrors = s.ExitErrors
}
