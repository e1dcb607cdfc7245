// Package stats implements the Realtime Stats Streamer: a periodic
// side-channel that publishes in-flight progress snapshots for UIs to
// consume while a run is profiling. A ticker-driven collect loop reworked
// from polling Prometheus gauges in-process into pulling a Snapshotter and
// broadcasting RealtimeMetrics fabric messages over the shared event bus.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Snapshotter is anything the streamer can poll for a point-in-time view of
// accumulated metric results, satisfied directly by
// *metrics.ResultsProcessorService.
type Snapshotter interface {
	Summarize() (map[string]types.MetricResult, error)
	Stats() types.PhaseProcessingStats
}

// DefaultInterval is how often the streamer publishes a snapshot absent an
// explicit Config.Interval.
const DefaultInterval = 15 * time.Second

// Config configures a Streamer.
type Config struct {
	Interval time.Duration
}

// Streamer periodically publishes a RealtimeMetricsPayload built from a
// Snapshotter's current state, and separately tracks which credit phase is
// active by listening for the Timing Manager's phase-lifecycle messages —
// the streamer has no other way to learn the phase, since it runs in a
// different process than the Timing Manager.
type Streamer struct {
	id          string
	snapshotter Snapshotter
	eventBus    *fabric.Broker
	interval    time.Duration
	logger      zerolog.Logger

	mu    sync.RWMutex
	phase types.CreditPhase

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStreamer builds a Streamer that will snapshot source and publish to
// eventBus once started.
func NewStreamer(id string, source Snapshotter, eventBus *fabric.Broker, cfg Config) *Streamer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Streamer{
		id:          id,
		snapshotter: source,
		eventBus:    eventBus,
		interval:    interval,
		logger:      log.WithComponent("stats_streamer").With().Str("stats_streamer_id", id).Logger(),
		phase:       types.CreditPhaseWarmup,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Run tracks phase transitions and publishes snapshots until ctx is
// cancelled or Stop is called. It blocks; call it from its own goroutine.
func (s *Streamer) Run(ctx context.Context) {
	defer close(s.doneCh)

	phaseStartCh := s.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditPhaseStart))
	defer s.eventBus.Unsubscribe(phaseStartCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.publish()

	for {
		select {
		case env := <-phaseStartCh:
			var payload types.CreditPhaseStartPayload
			if err := env.DecodePayload(&payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode credit phase start payload")
				continue
			}
			s.mu.Lock()
			s.phase = payload.Phase
			s.mu.Unlock()

		case <-ticker.C:
			s.publish()

		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals Run to return and blocks until it has. Safe to call once.
func (s *Streamer) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Streamer) publish() {
	results, err := s.snapshotter.Summarize()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to summarize metrics for realtime snapshot")
		return
	}

	metrics := make([]types.MetricResult, 0, len(results))
	for _, result := range results {
		metrics = append(metrics, result)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Tag < metrics[j].Tag })

	s.mu.RLock()
	phase := s.phase
	s.mu.RUnlock()

	payload := types.RealtimeMetricsPayload{
		Phase:       phase,
		TimestampNS: types.NowNS(),
		Metrics:     metrics,
	}
	env, err := types.NewEnvelope(types.MessageTypeRealtimeMetrics, s.id, payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode realtime metrics payload")
		return
	}
	s.eventBus.Publish(fabric.Topic(types.MessageTypeRealtimeMetrics), env)
}
