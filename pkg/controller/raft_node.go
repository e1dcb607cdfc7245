package controller

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/aiperf-project/aiperf-core/pkg/log"
)

// RaftConfig holds the parameters needed to bootstrap the controller's
// single-node run ledger, trimmed to what a single run's ledger consensus
// needs: no Join, no voter management, since one run has exactly one
// controller.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// bootstrapRaft starts a single-node Raft cluster backed by BoltDB log and
// stable stores, applying fsm to every committed entry. The
// heartbeat/election/lease timeouts are kept tuned down since a single run
// benefits from a fast-failover profile if the controller ever restarts
// mid-run and replays its log.
func bootstrapRaft(cfg RaftConfig, fsm raft.FSM) (*raft.Raft, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("controller: failed to create raft data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to resolve raft bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("controller: failed to create raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("controller: failed to create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to create raft node: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("controller: failed to bootstrap raft cluster: %w", err)
	}

	log.WithComponent("controller").Info().Str("node_id", cfg.NodeID).Str("bind_addr", cfg.BindAddr).
		Msg("run ledger raft node bootstrapped")

	return r, nil
}
