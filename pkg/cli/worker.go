package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aiperf-project/aiperf-core/pkg/config"
	"github.com/aiperf-project/aiperf-core/pkg/contracts"
	"github.com/aiperf-project/aiperf-core/pkg/controller"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
	"github.com/aiperf-project/aiperf-core/pkg/worker"
)

func newWorkerCmd(reg *contracts.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Worker pool: pull credits, execute inference requests, report results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, reg)
		},
	}
	addCommonFabricFlags(cmd)
	cmd.Flags().String("service-id", "worker-1", "Unique worker service ID")
	cmd.Flags().Int("pool-size", 1, "Number of concurrent workers in this process")

	cmd.Flags().String("endpoint-type", string(contracts.EndpointChatCompletions), "Endpoint wire format (chat, completions, embeddings, rankings, huggingface_generate)")
	cmd.Flags().String("endpoint-base-url", "http://localhost:8000", "Base URL of the inference server")
	cmd.Flags().String("endpoint-custom-path", "", "Custom endpoint path override")
	cmd.Flags().Bool("streaming", false, "Request streamed responses")
	cmd.Flags().StringSlice("model", nil, "Model name(s) to request; repeatable")
	cmd.Flags().String("model-selection-strategy", string(config.ModelSelectionRoundRobin), "How to pick a model when more than one is given (round_robin, random, modality_aware)")
	cmd.Flags().StringToString("endpoint-param", nil, "Extra endpoint query parameters as key=value pairs")
	cmd.Flags().String("user-agent", "", "HTTP User-Agent header override")
	cmd.Flags().Duration("request-timeout", 30*time.Second, "Per-request HTTP timeout")

	cmd.Flags().String("dataset-provider", "", "Name of the DatasetProvider plugin registered with this binary")
	cmd.Flags().String("request-builder", "", "Name of the RequestBuilder plugin registered with this binary")
	cmd.Flags().String("response-parser", "", "Name of the ResponseParser plugin registered with this binary")
	return cmd
}

func runWorker(cmd *cobra.Command, reg *contracts.Registry) error {
	f := cmd.Flags()
	serviceID, _ := f.GetString("service-id")
	poolSize, _ := f.GetInt("pool-size")
	addrs := readCommonFabricFlags(f)

	datasetName, _ := f.GetString("dataset-provider")
	builderName, _ := f.GetString("request-builder")
	parserName, _ := f.GetString("response-parser")

	dataset, err := reg.DatasetProvider(datasetName)
	if err != nil {
		return err
	}
	builder, err := reg.RequestBuilder(builderName)
	if err != nil {
		return err
	}
	parser, err := reg.ResponseParser(parserName)
	if err != nil {
		return err
	}

	cfg, err := workerConfigFromFlags(f)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := log.WithComponent("cli_worker").With().Str("service_id", serviceID).Logger()

	eventBus, closeEventBus, err := remoteBroker(ctx, addrs.controller, fabric.AddressEventBusProxyFrontend)
	if err != nil {
		return fmt.Errorf("connect to controller event bus: %w", err)
	}
	defer closeEventBus()

	creditQueue, closeCreditQueue, err := remoteQueue(ctx, addrs.creditDrop, fabric.AddressCreditDrop, false, true)
	if err != nil {
		return fmt.Errorf("connect to credit drop queue: %w", err)
	}
	defer closeCreditQueue()

	rawInference, closeRawInference, err := remoteQueue(ctx, addrs.rawInference, fabric.AddressRawInferenceProxyBackend, true, false)
	if err != nil {
		return fmt.Errorf("connect to raw inference queue: %w", err)
	}
	defer closeRawInference()

	client := controller.NewServiceClient(serviceID, types.ServiceTypeWorker, eventBus)
	if err := client.Register(); err != nil {
		return fmt.Errorf("register with controller: %w", err)
	}
	go client.RunHeartbeats(ctx, 10*time.Second)

	pool := worker.NewPool(poolSize, cfg, creditQueue, rawInference, eventBus, dataset, builder, parser)
	pool.Start(ctx)
	logger.Info().Int("pool_size", poolSize).Msg("worker pool started")
	pool.Wait()
	return nil
}

func workerConfigFromFlags(f *pflag.FlagSet) (worker.Config, error) {
	endpointType, _ := f.GetString("endpoint-type")
	baseURL, _ := f.GetString("endpoint-base-url")
	customPath, _ := f.GetString("endpoint-custom-path")
	streaming, _ := f.GetBool("streaming")
	models, _ := f.GetStringSlice("model")
	strategy, _ := f.GetString("model-selection-strategy")
	params, _ := f.GetStringToString("endpoint-param")
	userAgent, _ := f.GetString("user-agent")
	timeout, _ := f.GetDuration("request-timeout")

	cfg := worker.Config{
		EndpointKind:           contracts.EndpointKind(endpointType),
		BaseURL:                baseURL,
		Streaming:              streaming,
		ModelNames:             models,
		ModelSelectionStrategy: config.ModelSelectionStrategy(strategy),
		EndpointParams:         params,
		UserAgent:              userAgent,
		RequestTimeout:         timeout,
	}
	if customPath != "" {
		cfg.CustomEndpoint = &customPath
	}
	return cfg, nil
}
