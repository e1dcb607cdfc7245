package controller

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Command represents a state change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Raft command opcodes the ledger FSM understands.
const (
	opSetPhase        = "set_phase"
	opRegisterService = "register_service"
	opRecordExitError = "record_exit_error"
)

type setPhaseData struct {
	Phase Phase `json:"phase"`
}

type registerServiceData struct {
	ServiceType types.ServiceType `json:"service_type"`
	ServiceID   string            `json:"service_id"`
}

// LedgerFSM implements the Raft Finite State Machine over a RunLedger:
// every mutation to shared run state goes through Apply so every controller
// replica (today, just one) converges on the same view of
// phase/registrations/exit errors.
type LedgerFSM struct {
	ledger *RunLedger
}

// NewLedgerFSM wraps ledger as a Raft FSM.
func NewLedgerFSM(ledger *RunLedger) *LedgerFSM {
	return &LedgerFSM{ledger: ledger}
}

// Apply applies a single committed Raft log entry to the ledger.
func (f *LedgerFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("controller: failed to unmarshal command: %w", err)
	}

	switch cmd.Op {
	case opSetPhase:
		var data setPhaseData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		f.ledger.setPhase(data.Phase)
		return nil

	case opRegisterService:
		var data registerServiceData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		f.ledger.registerService(data.ServiceType, data.ServiceID)
		return nil

	case opRecordExitError:
		var data ExitErrorInfo
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		f.ledger.recordExitError(data)
		return nil

	default:
		return fmt.Errorf("controller: unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the ledger's full state for Raft log compaction.
func (f *LedgerFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &ledgerSnapshot{state: f.ledger.toSnapshot()}, nil
}

// Restore replaces the ledger's state from a previously persisted snapshot.
func (f *LedgerFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var state snapshotState
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("controller: failed to decode snapshot: %w", err)
	}
	f.ledger.restore(state)
	return nil
}

// ledgerSnapshot is the raft.FSMSnapshot implementation persisted by
// LedgerFSM.Snapshot.
type ledgerSnapshot struct {
	state snapshotState
}

func (s *ledgerSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.state); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *ledgerSnapshot) Release() {}
