package stats

import (
	"context"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/metrics"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func TestRemoteSnapshotterIngestsBroadcastRecords(t *testing.T) {
	reg := metrics.Default

	bus := newTestEventBus()
	defer bus.Stop()

	snap := NewRemoteSnapshotter("stats-1", reg, bus, true)
	ctx, cancel := context.WithCancel(context.Background())
	go snap.Run(ctx)
	defer func() {
		cancel()
		<-snap.Done()
	}()

	env, err := types.NewEnvelope(types.MessageTypeMetricRecords, "record-processor-1", types.MetricRecordsPayload{
		Metadata: types.MetricRecordMetadata{RequestID: "req-1"},
		Metrics: map[string]types.MetricValueUnit{
			"request_latency": {Value: 100.0},
		},
	})
	if err != nil {
		t.Fatalf("failed to build metric records envelope: %v", err)
	}
	bus.Publish(fabric.Topic(types.MessageTypeMetricRecords), env)

	deadline := time.After(time.Second)
	for {
		if snap.Stats().Processed == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Stats().Processed = %d, want 1 after ingesting one broadcast record", snap.Stats().Processed)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
