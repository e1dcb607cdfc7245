package controller

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/hashicorp/raft"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func TestCanTransitionHappyPath(t *testing.T) {
	steps := []struct{ from, to Phase }{
		{PhaseInitializing, PhaseConfiguring},
		{PhaseConfiguring, PhaseReady},
		{PhaseReady, PhaseProfiling},
		{PhaseProfiling, PhaseProcessing},
		{PhaseProcessing, PhaseStopping},
		{PhaseStopping, PhaseShutdown},
	}
	for _, s := range steps {
		if !CanTransition(s.from, s.to) {
			t.Errorf("expected %s -> %s to be legal", s.from, s.to)
		}
	}
}

func TestCanTransitionRejectsSkippedPhases(t *testing.T) {
	if CanTransition(PhaseInitializing, PhaseReady) {
		t.Error("expected initializing -> ready to be rejected")
	}
	if CanTransition(PhaseReady, PhaseShutdown) {
		t.Error("expected ready -> shutdown to be rejected")
	}
}

func TestCanTransitionStoppingFromAnyNonTerminalPhase(t *testing.T) {
	for _, from := range []Phase{PhaseInitializing, PhaseConfiguring, PhaseReady, PhaseProfiling, PhaseProcessing} {
		if !CanTransition(from, PhaseStopping) {
			t.Errorf("expected %s -> stopping to be legal", from)
		}
	}
	if CanTransition(PhaseShutdown, PhaseStopping) {
		t.Error("expected shutdown -> stopping to be rejected, shutdown is terminal")
	}
}

func TestExitErrorInfoString(t *testing.T) {
	info := ExitErrorInfo{ServiceID: "svc-1", ServiceType: "worker", Message: "boom"}
	want := "svc-1 (worker): boom"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestExitErrorFromServiceErrorUnwrapsServiceError(t *testing.T) {
	svcErr := aierrors.NewServiceError("svc-1", "startup", errors.New("crashed"))
	info := exitErrorFromServiceError("worker", svcErr)
	if info.ServiceID != "svc-1" {
		t.Errorf("ServiceID = %q, want svc-1", info.ServiceID)
	}
	if info.ServiceType != "worker" {
		t.Errorf("ServiceType = %q, want worker", info.ServiceType)
	}
}

func TestExitErrorFromServiceErrorFallsBackOnPlainError(t *testing.T) {
	info := exitErrorFromServiceError("worker", errors.New("plain failure"))
	if info.ServiceID != "" {
		t.Errorf("ServiceID = %q, want empty for a non-ServiceError", info.ServiceID)
	}
	if info.Message != "plain failure" {
		t.Errorf("Message = %q, want %q", info.Message, "plain failure")
	}
}

func TestRunLedgerDefaultsToInitializing(t *testing.T) {
	ledger := NewRunLedger()
	if ledger.Phase() != PhaseInitializing {
		t.Errorf("Phase() = %s, want %s", ledger.Phase(), PhaseInitializing)
	}
	if ledger.HasRegistered(types.ServiceTypeWorker) {
		t.Error("fresh ledger should have no registered services")
	}
	if len(ledger.ExitErrors()) != 0 {
		t.Error("fresh ledger should have no exit errors")
	}
}

func TestRunLedgerSnapshotRoundTrip(t *testing.T) {
	ledger := NewRunLedger()
	ledger.setPhase(PhaseProfiling)
	ledger.registerService(types.ServiceTypeWorker, "worker-1")
	ledger.registerService(types.ServiceTypeTimingManager, "timing-1")
	ledger.recordExitError(ExitErrorInfo{ServiceID: "worker-1", ServiceType: "worker", Message: "crashed"})

	snap := ledger.toSnapshot()

	restored := NewRunLedger()
	restored.restore(snap)

	if restored.Phase() != PhaseProfiling {
		t.Errorf("restored Phase() = %s, want %s", restored.Phase(), PhaseProfiling)
	}
	if !restored.HasRegistered(types.ServiceTypeWorker) || !restored.HasRegistered(types.ServiceTypeTimingManager) {
		t.Error("restored ledger missing expected registrations")
	}
	errs := restored.ExitErrors()
	if len(errs) != 1 || errs[0].Message != "crashed" {
		t.Errorf("restored ExitErrors() = %+v, want one entry with message %q", errs, "crashed")
	}
}

func TestRunLedgerAccessorsReturnDefensiveCopies(t *testing.T) {
	ledger := NewRunLedger()
	ledger.registerService(types.ServiceTypeWorker, "worker-1")
	ledger.recordExitError(ExitErrorInfo{ServiceID: "worker-1"})

	ids := ledger.RegisteredServiceIDs()
	ids[types.ServiceTypeTimingManager] = "injected"
	if ledger.HasRegistered(types.ServiceTypeTimingManager) {
		t.Error("mutating the returned map must not affect the ledger")
	}

	errs := ledger.ExitErrors()
	errs[0].Message = "mutated"
	if ledger.ExitErrors()[0].Message == "mutated" {
		t.Error("mutating the returned slice must not affect the ledger")
	}
}

// fakeRaftLog constructs a *raft.Log carrying a marshaled Command, since
// LedgerFSM.Apply only reads the Data field.
func fakeRaftLog(t *testing.T, cmd Command) *raft.Log {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("failed to marshal command: %v", err)
	}
	return &raft.Log{Data: data}
}

func TestLedgerFSMApplySetPhase(t *testing.T) {
	ledger := NewRunLedger()
	fsm := NewLedgerFSM(ledger)

	data, _ := json.Marshal(setPhaseData{Phase: PhaseConfiguring})
	if res := fsm.Apply(fakeRaftLog(t, Command{Op: opSetPhase, Data: data})); res != nil {
		t.Fatalf("Apply() = %v, want nil", res)
	}
	if ledger.Phase() != PhaseConfiguring {
		t.Errorf("Phase() = %s, want %s", ledger.Phase(), PhaseConfiguring)
	}
}

func TestLedgerFSMApplyRegisterService(t *testing.T) {
	ledger := NewRunLedger()
	fsm := NewLedgerFSM(ledger)

	data, _ := json.Marshal(registerServiceData{ServiceType: types.ServiceTypeWorker, ServiceID: "worker-1"})
	if res := fsm.Apply(fakeRaftLog(t, Command{Op: opRegisterService, Data: data})); res != nil {
		t.Fatalf("Apply() = %v, want nil", res)
	}
	if !ledger.HasRegistered(types.ServiceTypeWorker) {
		t.Error("expected worker to be registered after Apply")
	}
}

func TestLedgerFSMApplyRecordExitError(t *testing.T) {
	ledger := NewRunLedger()
	fsm := NewLedgerFSM(ledger)

	data, _ := json.Marshal(ExitErrorInfo{ServiceID: "worker-1", ServiceType: "worker", Message: "boom"})
	if res := fsm.Apply(fakeRaftLog(t, Command{Op: opRecordExitError, Data: data})); res != nil {
		t.Fatalf("Apply() = %v, want nil", res)
	}
	errs := ledger.ExitErrors()
	if len(errs) != 1 || errs[0].Message != "boom" {
		t.Errorf("ExitErrors() = %+v, want one entry with message %q", errs, "boom")
	}
}

func TestLedgerFSMApplyUnknownOpReturnsError(t *testing.T) {
	fsm := NewLedgerFSM(NewRunLedger())
	res := fsm.Apply(fakeRaftLog(t, Command{Op: "not_a_real_op"}))
	if _, ok := res.(error); !ok {
		t.Fatalf("Apply() = %v (%T), want an error", res, res)
	}
}

func TestLedgerFSMSnapshotAndRestore(t *testing.T) {
	ledger := NewRunLedger()
	ledger.setPhase(PhaseProcessing)
	ledger.registerService(types.ServiceTypeWorker, "worker-1")
	fsm := NewLedgerFSM(ledger)

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	ls, ok := snap.(*ledgerSnapshot)
	if !ok {
		t.Fatalf("Snapshot() returned %T, want *ledgerSnapshot", snap)
	}

	restoredFSM := NewLedgerFSM(NewRunLedger())
	pr, pw := io.Pipe()
	go func() {
		_ = ls.Persist(&fakeSnapshotSink{PipeWriter: pw})
	}()
	if err := restoredFSM.Restore(pr); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restoredFSM.ledger.Phase() != PhaseProcessing {
		t.Errorf("restored Phase() = %s, want %s", restoredFSM.ledger.Phase(), PhaseProcessing)
	}
	if !restoredFSM.ledger.HasRegistered(types.ServiceTypeWorker) {
		t.Error("restored ledger missing expected registration")
	}
}

// fakeSnapshotSink adapts an io.PipeWriter to raft.SnapshotSink so
// ledgerSnapshot.Persist can be exercised without a real snapshot store.
type fakeSnapshotSink struct {
	*io.PipeWriter
}

func (s *fakeSnapshotSink) ID() string                    { return "test-snapshot" }
func (s *fakeSnapshotSink) Cancel() error                  { return s.PipeWriter.Close() }
func (s *fakeSnapshotSink) Close() error                   { return s.PipeWriter.Close() }
