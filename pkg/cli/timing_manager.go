package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aiperf-project/aiperf-core/pkg/controller"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/timing"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func newTimingManagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timing-manager",
		Short: "Run the Timing Manager: issue credits at a configured rate or from a fixed schedule",
		RunE:  runTimingManager,
	}
	addCommonFabricFlags(cmd)
	cmd.Flags().String("service-id", "timing-manager-1", "Unique timing manager service ID")

	cmd.Flags().String("timing-mode", string(timing.TimingModeRequestRate), "request_rate or fixed_schedule")
	cmd.Flags().String("request-rate-mode", string(timing.RequestRateModeConstant), "constant, poisson, or concurrency_burst")
	cmd.Flags().Float64("request-rate", 10, "Requests per second for request_rate mode")
	cmd.Flags().Int("concurrency", 0, "Fixed number of in-flight requests for concurrency_burst mode (0 disables)")
	cmd.Flags().Int64("request-count", 100, "Number of profiling-phase requests to issue")
	cmd.Flags().Int64("warmup-request-count", 0, "Number of warmup-phase requests to issue")
	cmd.Flags().Int64("random-seed", 0, "Seed for the rate generator and cancellation strategy (0 picks a time-based seed)")

	cmd.Flags().Float64("request-cancellation-rate", 0, "Percentage (0-100) of requests issued with cancellation armed")
	cmd.Flags().Float64("request-cancellation-delay", 0, "Seconds to wait before cancelling an armed request")

	cmd.Flags().Duration("progress-report-interval", 5*time.Second, "How often to publish CreditPhaseProgress")
	cmd.Flags().Duration("grace-period", 30*time.Second, "How long to wait for a phase to fully drain after it finishes sending before force-completing it")

	cmd.Flags().String("schedule-file", "", "Path to a JSON array of {\"timestamp_ms\":N,\"conversation_id\":\"...\"} entries, required for fixed_schedule mode")
	cmd.Flags().Bool("fixed-schedule-auto-offset", true, "Shift the schedule so its first entry starts at run time")
	return cmd
}

func runTimingManager(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	serviceID, _ := f.GetString("service-id")
	addrs := readCommonFabricFlags(f)

	cfg, err := timingConfigFromFlags(f)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := log.WithComponent("cli_timing_manager").With().Str("service_id", serviceID).Logger()

	eventBus, closeEventBus, err := remoteBroker(ctx, addrs.controller, fabric.AddressEventBusProxyFrontend)
	if err != nil {
		return fmt.Errorf("connect to controller event bus: %w", err)
	}
	defer closeEventBus()

	creditQueue, closeCreditQueue, err := remoteQueue(ctx, addrs.creditDrop, fabric.AddressCreditDrop, true, false)
	if err != nil {
		return fmt.Errorf("connect to credit drop queue: %w", err)
	}
	defer closeCreditQueue()

	mgr := timing.NewFabricCreditManager(serviceID, creditQueue, eventBus)

	client := controller.NewServiceClient(serviceID, types.ServiceTypeTimingManager, eventBus)
	if err := client.Register(); err != nil {
		return fmt.Errorf("register with controller: %w", err)
	}
	go client.RunHeartbeats(ctx, 10*time.Second)

	logger.Info().Str("timing_mode", string(cfg.TimingMode)).Msg("timing manager starting")

	switch cfg.TimingMode {
	case timing.TimingModeFixedSchedule:
		scheduleFile, _ := f.GetString("schedule-file")
		schedule, err := loadSchedule(scheduleFile)
		if err != nil {
			return err
		}
		strategy, err := timing.NewFixedScheduleStrategy(cfg, mgr, schedule)
		if err != nil {
			return err
		}
		return timing.NewService(serviceID, strategy, eventBus, cfg.GracePeriod).Run(ctx)
	default:
		strategy, err := timing.NewRequestRateStrategy(cfg, mgr)
		if err != nil {
			return err
		}
		return timing.NewService(serviceID, strategy, eventBus, cfg.GracePeriod).Run(ctx)
	}
}

func loadSchedule(path string) ([]timing.ScheduleEntry, error) {
	if path == "" {
		return nil, fmt.Errorf("--schedule-file is required in fixed_schedule mode")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var raw []struct {
		TimestampMS    int64  `json:"timestamp_ms"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}
	entries := make([]timing.ScheduleEntry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, timing.ScheduleEntry{TimestampMS: r.TimestampMS, ConversationID: r.ConversationID})
	}
	return entries, nil
}

func timingConfigFromFlags(f *pflag.FlagSet) (timing.Config, error) {
	mode, _ := f.GetString("timing-mode")
	rateMode, _ := f.GetString("request-rate-mode")
	rate, _ := f.GetFloat64("request-rate")
	concurrency, _ := f.GetInt("concurrency")
	requestCount, _ := f.GetInt64("request-count")
	warmupCount, _ := f.GetInt64("warmup-request-count")
	seed, _ := f.GetInt64("random-seed")
	cancelRate, _ := f.GetFloat64("request-cancellation-rate")
	cancelDelay, _ := f.GetFloat64("request-cancellation-delay")
	progressInterval, _ := f.GetDuration("progress-report-interval")
	grace, _ := f.GetDuration("grace-period")
	autoOffset, _ := f.GetBool("fixed-schedule-auto-offset")

	cfg := timing.Config{
		WarmupRequestCount:             warmupCount,
		RequestCount:                   requestCount,
		TimingMode:                     timing.TimingMode(mode),
		RequestRateMode:                timing.RequestRateMode(rateMode),
		ProgressReportInterval:         progressInterval,
		AutoOffsetTimestamps:           autoOffset,
		RequestCancellationRatePercent: cancelRate,
		RequestCancellationDelaySec:    cancelDelay,
		GracePeriod:                    grace,
	}
	if rate > 0 {
		cfg.RequestRate = &rate
	}
	if concurrency > 0 {
		cfg.Concurrency = &concurrency
	}
	if seed != 0 {
		cfg.RandomSeed = &seed
	}
	return cfg, nil
}
