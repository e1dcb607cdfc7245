package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiperf-project/aiperf-core/pkg/controller"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func newControllerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run the System Controller: spawn every other service and drive the run",
		RunE:  runController,
	}
	cmd.Flags().String("node-id", "controller-1", "Unique controller node ID")
	cmd.Flags().String("raft-bind-addr", "127.0.0.1:17000", "Address for the run ledger's Raft transport")
	cmd.Flags().String("raft-data-dir", "./aiperf-controller-data", "Data directory for the run ledger")
	cmd.Flags().String("controller-addr", "127.0.0.1:17010", "Base address this controller binds its fabric listeners on (event bus, credit drop, raw inference, records — consecutive ports)")
	cmd.Flags().String("binary", "", "Path to the aiperf binary to spawn for each service (defaults to the running executable)")
	cmd.Flags().Int("worker-count", 1, "Number of workers to run in the spawned worker process (passed as its --pool-size)")
	cmd.Flags().StringSlice("required-services", []string{"timing_manager", "worker", "record_processor", "results_processor"}, "Service types the controller must see register before starting a run")
	cmd.Flags().Duration("registration-timeout", 30*time.Second, "How long to wait for every required service to register")
	cmd.Flags().Duration("graceful-shutdown-timeout", 10*time.Second, "Grace period before escalating SIGTERM to SIGKILL when stopping a service")
	cmd.Flags().StringSlice("service-args", nil, "Extra arguments appended to the timing-manager and worker command lines, e.g. --endpoint-base-url=http://localhost:8000 (repeatable)")
	cmd.Flags().Bool("run-stats-streamer", true, "Also spawn a stats-streamer service")
	return cmd
}

func runController(cmd *cobra.Command, _ []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	raftBindAddr, _ := cmd.Flags().GetString("raft-bind-addr")
	raftDataDir, _ := cmd.Flags().GetString("raft-data-dir")
	controllerAddr, _ := cmd.Flags().GetString("controller-addr")
	binary, _ := cmd.Flags().GetString("binary")
	workerCount, _ := cmd.Flags().GetInt("worker-count")
	requiredRaw, _ := cmd.Flags().GetStringSlice("required-services")
	registrationTimeout, _ := cmd.Flags().GetDuration("registration-timeout")
	shutdownTimeout, _ := cmd.Flags().GetDuration("graceful-shutdown-timeout")
	serviceArgs, _ := cmd.Flags().GetStringSlice("service-args")
	runStats, _ := cmd.Flags().GetBool("run-stats-streamer")

	logger := log.WithComponent("cli_controller")

	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve controller binary path: %w", err)
		}
		binary = exe
	}

	addrs, err := deriveControllerAddrs(controllerAddr)
	if err != nil {
		return err
	}

	ctrl := controller.New(controller.Config{
		NodeID:                  nodeID,
		RaftBindAddr:            raftBindAddr,
		RaftDataDir:             raftDataDir,
		RequiredServices:        parseServiceTypes(requiredRaw),
		Specs:                   buildServiceSpecs(binary, addrs, workerCount, serviceArgs, runStats),
		RegistrationTimeout:     registrationTimeout,
		GracefulShutdownTimeout: shutdownTimeout,
	})

	bridges, err := bindControllerFabric(addrs, ctrl)
	if err != nil {
		return err
	}
	defer bridges.stop()

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info().Str("controller_addr", controllerAddr).Msg("controller fabric bound, spawning services")

	exitErrors, runErr := ctrl.Run(ctx)
	for _, info := range exitErrors {
		logger.Error().Str("service_id", info.ServiceID).Str("service_type", info.ServiceType).Msg(info.Message)
	}
	if runErr != nil {
		return runErr
	}
	if len(exitErrors) > 0 {
		return fmt.Errorf("run completed with %d service error(s)", len(exitErrors))
	}
	return nil
}

// controllerBridges holds every gRPC listener the controller process binds
// its shared fabric objects on.
type controllerBridges struct {
	eventBus     *fabric.BrokerBridge
	creditDrop   *fabric.QueueBridge
	rawInference *fabric.QueueBridge
	records      *fabric.QueueBridge

	listeners []net.Listener
}

func (b *controllerBridges) stop() {
	b.eventBus.Stop()
	b.creditDrop.Stop()
	b.rawInference.Stop()
	b.records.Stop()
}

func bindControllerFabric(addrs controllerAddrs, ctrl *controller.Controller) (*controllerBridges, error) {
	creditDrop := fabric.NewQueue(fabric.AddressCreditDrop, fabric.DefaultSocketConfig(), 0)
	rawInference := fabric.NewQueue(fabric.AddressRawInferenceProxyBackend, fabric.DefaultSocketConfig(), 0)
	records := fabric.NewQueue(fabric.AddressRecords, fabric.DefaultSocketConfig(), 0)

	listen := func(addr string) (net.Listener, error) { return net.Listen("tcp", addr) }

	eventBusLis, err := listen(addrs.EventBus)
	if err != nil {
		return nil, fmt.Errorf("bind event bus %s: %w", addrs.EventBus, err)
	}
	creditDropLis, err := listen(addrs.CreditDrop)
	if err != nil {
		return nil, fmt.Errorf("bind credit drop queue %s: %w", addrs.CreditDrop, err)
	}
	rawInferenceLis, err := listen(addrs.RawInference)
	if err != nil {
		return nil, fmt.Errorf("bind raw inference queue %s: %w", addrs.RawInference, err)
	}
	recordsLis, err := listen(addrs.Records)
	if err != nil {
		return nil, fmt.Errorf("bind records queue %s: %w", addrs.Records, err)
	}

	return &controllerBridges{
		eventBus:     fabric.BindBroker(eventBusLis, nil, ctrl.EventBus()),
		creditDrop:   fabric.BindQueue(creditDropLis, nil, creditDrop),
		rawInference: fabric.BindQueue(rawInferenceLis, nil, rawInference),
		records:      fabric.BindQueue(recordsLis, nil, records),
		listeners:    []net.Listener{eventBusLis, creditDropLis, rawInferenceLis, recordsLis},
	}, nil
}

func parseServiceTypes(raw []string) []types.ServiceType {
	out := make([]types.ServiceType, 0, len(raw))
	for _, s := range raw {
		out = append(out, types.ServiceType(strings.TrimSpace(s)))
	}
	return out
}

// buildServiceSpecs lays out one ServiceSpec per non-controller service
// type, each invoking the same binary this controller is running as with
// a subcommand naming its role.
func buildServiceSpecs(binary string, addrs controllerAddrs, workerCount int, extra []string, runStats bool) []controller.ServiceSpec {
	commonArgs := []string{
		"--controller-addr=" + addrs.EventBus,
		"--credit-drop-addr=" + addrs.CreditDrop,
		"--raw-inference-addr=" + addrs.RawInference,
		"--records-addr=" + addrs.Records,
	}

	specs := []controller.ServiceSpec{
		{
			ServiceType: string(types.ServiceTypeTimingManager),
			Binary:      binary,
			Args:        append([]string{"timing-manager"}, append(commonArgs, extra...)...),
		},
		{
			ServiceType: string(types.ServiceTypeWorker),
			Binary:      binary,
			Args: append([]string{"worker", fmt.Sprintf("--pool-size=%d", workerCount)},
				append(commonArgs, extra...)...),
		},
		{
			ServiceType: string(types.ServiceTypeRecordProcessor),
			Binary:      binary,
			Args:        append([]string{"record-processor"}, commonArgs...),
		},
		{
			ServiceType: string(types.ServiceTypeResultsProcessor),
			Binary:      binary,
			Args:        append([]string{"results-processor"}, commonArgs...),
		},
	}
	if runStats {
		specs = append(specs, controller.ServiceSpec{
			ServiceType: string(types.ServiceTypeStatsStreamer),
			Binary:      binary,
			Args:        append([]string{"stats-streamer"}, commonArgs...),
		})
	}
	return specs
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the signal
// handling cmd/warren/main.go uses for every long-running command.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
