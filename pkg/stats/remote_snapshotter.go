package stats

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/metrics"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// RemoteSnapshotter gives a standalone Stats Streamer process its own
// Snapshotter without sharing the singleton Results Processor's memory: it
// folds the same MetricRecordsPayloads into an independent
// *metrics.ResultsProcessor, fed from the realtime broadcast the Record
// Processor publishes alongside (not instead of) its point-to-point push to
// the real Results Processor's queue. Its view can lag the authoritative
// one by whatever the broker drops under backpressure; that is an
// acceptable tradeoff for a progress side channel, never for the final
// report.
type RemoteSnapshotter struct {
	*metrics.ResultsProcessor

	eventBus *fabric.Broker
	logger   zerolog.Logger
	doneCh   chan struct{}
}

// NewRemoteSnapshotter builds a RemoteSnapshotter against reg, ready to Run.
// streaming must match the run's endpoint configuration; see
// metrics.NewResultsProcessor.
func NewRemoteSnapshotter(id string, reg *metrics.Registry, eventBus *fabric.Broker, streaming bool) *RemoteSnapshotter {
	return &RemoteSnapshotter{
		ResultsProcessor: metrics.NewResultsProcessor(reg, streaming),
		eventBus:         eventBus,
		logger:           log.WithComponent("stats_streamer").With().Str("stats_streamer_id", id).Logger(),
		doneCh:           make(chan struct{}),
	}
}

// Run ingests broadcast metric records until ctx is done.
func (s *RemoteSnapshotter) Run(ctx context.Context) {
	defer close(s.doneCh)

	ch := s.eventBus.Subscribe(fabric.Topic(types.MessageTypeMetricRecords))
	defer s.eventBus.Unsubscribe(ch)

	for {
		select {
		case env := <-ch:
			var payload types.MetricRecordsPayload
			if err := env.DecodePayload(&payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode broadcast metric records payload")
				continue
			}
			s.Ingest(payload)
		case <-ctx.Done():
			return
		}
	}
}

// Done returns a channel closed once Run has returned.
func (s *RemoteSnapshotter) Done() <-chan struct{} { return s.doneCh }
