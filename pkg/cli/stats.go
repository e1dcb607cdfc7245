package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiperf-project/aiperf-core/pkg/controller"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/metrics"
	"github.com/aiperf-project/aiperf-core/pkg/stats"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func newStatsStreamerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats-streamer",
		Short: "Run the Realtime Stats Streamer: broadcast progress snapshots while a run is in flight",
		RunE:  runStatsStreamer,
	}
	addCommonFabricFlags(cmd)
	cmd.Flags().String("service-id", "stats-streamer-1", "Unique stats streamer service ID")
	cmd.Flags().Duration("snapshot-interval", stats.DefaultInterval, "How often to publish a realtime metrics snapshot")
	cmd.Flags().Bool("streaming", true, "Whether the run's endpoint streams responses; excludes STREAMING_ONLY metrics when false")
	return cmd
}

func runStatsStreamer(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	serviceID, _ := f.GetString("service-id")
	interval, _ := f.GetDuration("snapshot-interval")
	streaming, _ := f.GetBool("streaming")
	addrs := readCommonFabricFlags(f)

	ctx, cancel := signalContext()
	defer cancel()

	logger := log.WithComponent("cli_stats_streamer").With().Str("service_id", serviceID).Logger()

	eventBus, closeEventBus, err := remoteBroker(ctx, addrs.controller, fabric.AddressEventBusProxyFrontend)
	if err != nil {
		return fmt.Errorf("connect to controller event bus: %w", err)
	}
	defer closeEventBus()

	snapshotter := stats.NewRemoteSnapshotter(serviceID, metrics.Default, eventBus, streaming)
	streamer := stats.NewStreamer(serviceID, snapshotter, eventBus, stats.Config{Interval: interval})

	client := controller.NewServiceClient(serviceID, types.ServiceTypeStatsStreamer, eventBus)
	if err := client.Register(); err != nil {
		return fmt.Errorf("register with controller: %w", err)
	}
	go client.RunHeartbeats(ctx, 10*time.Second)

	go snapshotter.Run(ctx)
	logger.Info().Dur("interval", interval).Msg("stats streamer started")
	streamer.Run(ctx)
	return nil
}
