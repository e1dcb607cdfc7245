package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiperf-project/aiperf-core/pkg/controller"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/metrics"
	"github.com/aiperf-project/aiperf-core/pkg/storage"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func newRecordProcessorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record-processor",
		Short: "Run a Record Processor: compute per-record metrics off the raw inference queue",
		RunE:  runRecordProcessor,
	}
	addCommonFabricFlags(cmd)
	cmd.Flags().String("service-id", "record-processor-1", "Unique record processor service ID")
	cmd.Flags().Bool("streaming", true, "Whether the run's endpoint streams responses; excludes STREAMING_ONLY metrics when false")
	return cmd
}

func runRecordProcessor(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	serviceID, _ := f.GetString("service-id")
	streaming, _ := f.GetBool("streaming")
	addrs := readCommonFabricFlags(f)

	ctx, cancel := signalContext()
	defer cancel()

	eventBus, closeEventBus, err := remoteBroker(ctx, addrs.controller, fabric.AddressEventBusProxyFrontend)
	if err != nil {
		return fmt.Errorf("connect to controller event bus: %w", err)
	}
	defer closeEventBus()

	rawInference, closeRawInference, err := remoteQueue(ctx, addrs.rawInference, fabric.AddressRawInferenceProxyBackend, false, true)
	if err != nil {
		return fmt.Errorf("connect to raw inference queue: %w", err)
	}
	defer closeRawInference()

	recordsQueue, closeRecords, err := remoteQueue(ctx, addrs.records, fabric.AddressRecords, true, false)
	if err != nil {
		return fmt.Errorf("connect to records queue: %w", err)
	}
	defer closeRecords()

	svc, err := metrics.NewRecordProcessorService(serviceID, metrics.Default, rawInference, recordsQueue, eventBus, streaming)
	if err != nil {
		return fmt.Errorf("build record processor: %w", err)
	}

	client := controller.NewServiceClient(serviceID, types.ServiceTypeRecordProcessor, eventBus)
	if err := client.Register(); err != nil {
		return fmt.Errorf("register with controller: %w", err)
	}
	go client.RunHeartbeats(ctx, 10*time.Second)

	svc.Run(ctx)
	return nil
}

func newResultsProcessorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results-processor",
		Short: "Run the Results Processor: fold metric records into final run results",
		RunE:  runResultsProcessor,
	}
	addCommonFabricFlags(cmd)
	cmd.Flags().String("service-id", "results-processor-1", "Unique results processor service ID")
	cmd.Flags().String("results-file", "", "Optional path to write the final summarized results as JSON")
	cmd.Flags().String("metrics-addr", "", "Optional address (e.g. :9090) to serve a Prometheus /metrics endpoint on while the run is in flight")
	cmd.Flags().String("records-db", "", "Optional directory to durably spill every processed record to (RECORDS-mode export)")
	cmd.Flags().Bool("streaming", true, "Whether the run's endpoint streams responses; excludes STREAMING_ONLY metrics when false")
	return cmd
}

func runResultsProcessor(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	serviceID, _ := f.GetString("service-id")
	resultsFile, _ := f.GetString("results-file")
	metricsAddr, _ := f.GetString("metrics-addr")
	recordsDB, _ := f.GetString("records-db")
	streaming, _ := f.GetBool("streaming")
	addrs := readCommonFabricFlags(f)

	ctx, cancel := signalContext()
	defer cancel()

	logger := log.WithComponent("cli_results_processor").With().Str("service_id", serviceID).Logger()

	eventBus, closeEventBus, err := remoteBroker(ctx, addrs.controller, fabric.AddressEventBusProxyFrontend)
	if err != nil {
		return fmt.Errorf("connect to controller event bus: %w", err)
	}
	defer closeEventBus()

	recordsQueue, closeRecords, err := remoteQueue(ctx, addrs.records, fabric.AddressRecords, false, true)
	if err != nil {
		return fmt.Errorf("connect to records queue: %w", err)
	}
	defer closeRecords()

	svc := metrics.NewResultsProcessorService(serviceID, metrics.Default, recordsQueue, streaming)

	if recordsDB != "" {
		sink, err := storage.NewBoltRecordStore(recordsDB)
		if err != nil {
			return fmt.Errorf("open records store: %w", err)
		}
		defer sink.Close()
		svc.SetRecordSink(sink)
	}

	client := controller.NewServiceClient(serviceID, types.ServiceTypeResultsProcessor, eventBus)
	if err := client.Register(); err != nil {
		return fmt.Errorf("register with controller: %w", err)
	}
	go client.RunHeartbeats(ctx, 10*time.Second)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(svc))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", metricsAddr).Msg("serving prometheus metrics")
	}

	svc.Run(ctx)

	results, err := svc.Summarize()
	if err != nil {
		return fmt.Errorf("summarize results: %w", err)
	}
	stats := svc.Stats()
	logger.Info().
		Int64("processed", stats.Processed).
		Int64("errors", stats.Errors).
		Int64("skipped_empty_records", stats.SkippedEmptyRecords).
		Msg("run complete")

	if resultsFile != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
			return fmt.Errorf("write results file %s: %w", resultsFile, err)
		}
	}
	return nil
}
