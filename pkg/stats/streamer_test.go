package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

type fakeSnapshotter struct {
	results map[string]types.MetricResult
	stats   types.PhaseProcessingStats
	err     error
}

func (f *fakeSnapshotter) Summarize() (map[string]types.MetricResult, error) {
	return f.results, f.err
}

func (f *fakeSnapshotter) Stats() types.PhaseProcessingStats {
	return f.stats
}

func newTestEventBus() *fabric.Broker {
	return fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
}

func TestStreamerPublishesSnapshotOnStart(t *testing.T) {
	bus := newTestEventBus()
	defer bus.Stop()

	snap := &fakeSnapshotter{results: map[string]types.MetricResult{
		"ttft": {Tag: "ttft", Avg: 12.5},
	}}
	s := NewStreamer("stats-1", snap, bus, Config{Interval: time.Hour})

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeRealtimeMetrics))
	defer bus.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	select {
	case env := <-ch:
		var payload types.RealtimeMetricsPayload
		if err := env.DecodePayload(&payload); err != nil {
			t.Fatalf("failed to decode realtime metrics payload: %v", err)
		}
		if len(payload.Metrics) != 1 || payload.Metrics[0].Tag != "ttft" {
			t.Errorf("Metrics = %+v, want one entry tagged ttft", payload.Metrics)
		}
		if payload.Phase != types.CreditPhaseWarmup {
			t.Errorf("Phase = %s, want %s (default before any phase-start message)", payload.Phase, types.CreditPhaseWarmup)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot publish")
	}
}

func TestStreamerTracksPhaseFromPhaseStartMessages(t *testing.T) {
	bus := newTestEventBus()
	defer bus.Stop()

	snap := &fakeSnapshotter{results: map[string]types.MetricResult{}}
	s := NewStreamer("stats-1", snap, bus, Config{Interval: time.Hour})

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeRealtimeMetrics))
	defer bus.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	<-ch // drain the immediate on-start publish

	env, err := types.NewEnvelope(types.MessageTypeCreditPhaseStart, "timing-manager", types.CreditPhaseStartPayload{
		Phase: types.CreditPhaseProfiling,
	})
	if err != nil {
		t.Fatalf("failed to build phase start envelope: %v", err)
	}
	bus.Publish(fabric.Topic(types.MessageTypeCreditPhaseStart), env)

	deadline := time.After(time.Second)
	for {
		s.mu.RLock()
		phase := s.phase
		s.mu.RUnlock()
		if phase == types.CreditPhaseProfiling {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("phase = %s, want %s after phase-start message", phase, types.CreditPhaseProfiling)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStreamerSkipsPublishOnSummarizeError(t *testing.T) {
	bus := newTestEventBus()
	defer bus.Stop()

	snap := &fakeSnapshotter{err: errors.New("not ready")}
	s := NewStreamer("stats-1", snap, bus, Config{Interval: time.Hour})

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeRealtimeMetrics))
	defer bus.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	select {
	case env := <-ch:
		t.Fatalf("expected no publish when Summarize errors, got %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamerStopIsSafeToCallOnce(t *testing.T) {
	bus := newTestEventBus()
	defer bus.Stop()

	snap := &fakeSnapshotter{results: map[string]types.MetricResult{}}
	s := NewStreamer("stats-1", snap, bus, Config{Interval: time.Hour})

	ctx := context.Background()
	go s.Run(ctx)
	s.Stop()
}
