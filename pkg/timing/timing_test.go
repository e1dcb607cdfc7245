package timing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

type fakeCreditManager struct {
	mu            sync.Mutex
	dropped       []types.Credit
	creditsComplete bool
}

func (f *fakeCreditManager) DropCredit(ctx context.Context, credit types.Credit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, credit)
	return nil
}
func (f *fakeCreditManager) PublishPhaseStart(ctx context.Context, phase types.CreditPhase, startNS int64, cfg types.CreditPhaseConfig) error {
	return nil
}
func (f *fakeCreditManager) PublishPhaseSendingComplete(ctx context.Context, phase types.CreditPhase, sentEndNS, sent int64) error {
	return nil
}
func (f *fakeCreditManager) PublishPhaseComplete(ctx context.Context, phase types.CreditPhase, completed, endNS int64) error {
	return nil
}
func (f *fakeCreditManager) PublishProgress(ctx context.Context, phase types.CreditPhase, sent, completed int64, progressPercent *float64) error {
	return nil
}
func (f *fakeCreditManager) PublishCreditsComplete(ctx context.Context, totalSent, totalReturned int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creditsComplete = true
	return nil
}

func TestConstantRateGeneratorFixedInterval(t *testing.T) {
	rate := 10.0
	gen, err := newConstantRateGenerator(Config{RequestRate: &rate})
	if err != nil {
		t.Fatalf("newConstantRateGenerator: %v", err)
	}
	if gen.NextInterval() != 100*time.Millisecond {
		t.Fatalf("expected 100ms interval, got %v", gen.NextInterval())
	}
}

func TestConcurrencyBurstGeneratorZeroInterval(t *testing.T) {
	concurrency := 4
	gen, err := newConcurrencyBurstRateGenerator(Config{Concurrency: &concurrency})
	if err != nil {
		t.Fatalf("newConcurrencyBurstRateGenerator: %v", err)
	}
	if gen.NextInterval() != 0 {
		t.Fatalf("expected zero interval, got %v", gen.NextInterval())
	}
}

func TestCancellationStrategyDeterministicWithSeed(t *testing.T) {
	seed := int64(42)
	cfg := Config{RandomSeed: &seed, RequestCancellationRatePercent: 50, RequestCancellationDelaySec: 1}
	a := NewCancellationStrategy(cfg)
	b := NewCancellationStrategy(cfg)

	for i := 0; i < 20; i++ {
		if a.ShouldCancelRequest() != b.ShouldCancelRequest() {
			t.Fatalf("two strategies with the same seed diverged at iteration %d", i)
		}
	}
}

func TestCancellationDisabledWhenRateZero(t *testing.T) {
	cfg := Config{RequestCancellationRatePercent: 0}
	c := NewCancellationStrategy(cfg)
	if c.IsCancellationEnabled() {
		t.Fatalf("expected cancellation disabled when rate is zero")
	}
	for i := 0; i < 50; i++ {
		if c.ShouldCancelRequest() {
			t.Fatalf("expected no cancellations when rate is zero")
		}
	}
}

func TestRequestRateStrategyRunsToCompletion(t *testing.T) {
	rate := 1000.0 // fast, so the test doesn't wait long
	cfg := Config{
		RequestCount:           3,
		TimingMode:             TimingModeRequestRate,
		RequestRateMode:        RequestRateModeConstant,
		RequestRate:            &rate,
		ProgressReportInterval: time.Hour,
	}
	cm := &fakeCreditManager{}
	strat, err := NewRequestRateStrategy(cfg, cm)
	if err != nil {
		t.Fatalf("NewRequestRateStrategy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- strat.Start(ctx) }()

	// Drain each dropped credit with an immediate return, simulating
	// workers completing requests as fast as they arrive.
	go func() {
		for {
			cm.mu.Lock()
			n := len(cm.dropped)
			cm.mu.Unlock()
			if n > 0 {
				cm.mu.Lock()
				toReturn := cm.dropped
				cm.dropped = nil
				cm.mu.Unlock()
				for range toReturn {
					strat.OnCreditReturn(ctx, types.CreditPhaseProfiling)
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("strategy did not complete before timeout")
	}

	if !cm.creditsComplete {
		t.Fatalf("expected PublishCreditsComplete to have been called")
	}
}
