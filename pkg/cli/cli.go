// Package cli wires AIPerf's services into a spf13/cobra command tree, one
// subcommand per service type, mirroring cmd/warren/main.go's single binary
// serving every node role. It is deliberately importable (not internal/):
// cmd/aiperf is a thin shim over Execute, so an embedding Go program can
// build its own *contracts.Registry — registering a DatasetProvider,
// RequestBuilder, and ResponseParser for its own endpoint and dataset — and
// call Execute itself without forking this module.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiperf-project/aiperf-core/pkg/contracts"
	"github.com/aiperf-project/aiperf-core/pkg/log"
)

// Version information, set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Execute builds the root command against reg and runs it. reg supplies
// every DatasetProvider/RequestBuilder/ResponseParser plugin the worker
// subcommand may be asked to resolve by name.
func Execute(reg *contracts.Registry) error {
	root := newRootCmd(reg)
	return root.Execute()
}

func newRootCmd(reg *contracts.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:     "aiperf",
		Short:   "AIPerf - distributed load generator and measurement harness for inference endpoints",
		Version: Version,
	}
	root.SetVersionTemplate(fmt.Sprintf("aiperf version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime))

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(func() { initLogging(root) })

	root.AddCommand(newControllerCmd())
	root.AddCommand(newWorkerCmd(reg))
	root.AddCommand(newTimingManagerCmd())
	root.AddCommand(newRecordProcessorCmd())
	root.AddCommand(newResultsProcessorCmd())
	root.AddCommand(newStatsStreamerCmd())

	return root
}

func initLogging(root *cobra.Command) {
	level, _ := root.PersistentFlags().GetString("log-level")
	jsonOutput, _ := root.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput, Output: os.Stderr})
}
