package timing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

type fakeCreditReturner struct {
	mu            sync.Mutex
	started       bool
	stopped       bool
	returns       []types.CreditPhase
	graceComplete []types.CreditPhase
	startBlockCh  chan struct{}
}

func (f *fakeCreditReturner) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	if f.startBlockCh != nil {
		select {
		case <-f.startBlockCh:
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *fakeCreditReturner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeCreditReturner) OnCreditReturn(ctx context.Context, phase types.CreditPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returns = append(f.returns, phase)
}

func (f *fakeCreditReturner) GracePeriodComplete(ctx context.Context, phase types.CreditPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graceComplete = append(f.graceComplete, phase)
}

func TestServiceFeedsCreditReturnsToStrategy(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	strategy := &fakeCreditReturner{startBlockCh: make(chan struct{})}
	svc := NewService("timing-manager-1", strategy, bus, 0)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()

	deadline := time.After(time.Second)
	for {
		strategy.mu.Lock()
		started := strategy.started
		strategy.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("strategy never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	env, err := types.NewEnvelope(types.MessageTypeCreditReturn, "worker-1", types.CreditReturnPayload{
		Phase: types.CreditPhaseProfiling,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	bus.Publish(fabric.Topic(types.MessageTypeCreditReturn), env)

	deadline = time.After(time.Second)
	for {
		strategy.mu.Lock()
		n := len(strategy.returns)
		strategy.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("credit return was never delivered to the strategy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-runDone
}

func TestServiceArmsGracePeriodAndForceCompletesPhase(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	strategy := &fakeCreditReturner{startBlockCh: make(chan struct{})}
	svc := NewService("timing-manager-1", strategy, bus, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	sendingComplete, err := types.NewEnvelope(types.MessageTypeCreditPhaseSendingComplete, "timing-manager-1",
		types.CreditPhaseSendingCompletePayload{Phase: types.CreditPhaseProfiling, TotalSent: 5})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	bus.Publish(fabric.Topic(types.MessageTypeCreditPhaseSendingComplete), sendingComplete)

	deadline := time.After(time.Second)
	for {
		strategy.mu.Lock()
		n := len(strategy.graceComplete)
		strategy.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("grace period never force-completed the phase")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestServiceDisarmsGracePeriodOnPhaseComplete(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	strategy := &fakeCreditReturner{startBlockCh: make(chan struct{})}
	svc := NewService("timing-manager-1", strategy, bus, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	sendingComplete, _ := types.NewEnvelope(types.MessageTypeCreditPhaseSendingComplete, "timing-manager-1",
		types.CreditPhaseSendingCompletePayload{Phase: types.CreditPhaseProfiling, TotalSent: 5})
	bus.Publish(fabric.Topic(types.MessageTypeCreditPhaseSendingComplete), sendingComplete)

	time.Sleep(20 * time.Millisecond)

	phaseComplete, _ := types.NewEnvelope(types.MessageTypeCreditPhaseComplete, "timing-manager-1",
		types.CreditPhaseCompletePayload{Phase: types.CreditPhaseProfiling, TotalReturned: 5})
	bus.Publish(fabric.Topic(types.MessageTypeCreditPhaseComplete), phaseComplete)

	time.Sleep(20 * time.Millisecond)

	svc.mu.Lock()
	_, armed := svc.timers[types.CreditPhaseProfiling]
	svc.mu.Unlock()
	if armed {
		t.Fatal("expected grace timer to be disarmed after phase complete")
	}

	strategy.mu.Lock()
	graceFired := len(strategy.graceComplete)
	strategy.mu.Unlock()
	if graceFired != 0 {
		t.Fatalf("grace period should not have fired, got %d calls", graceFired)
	}
}
