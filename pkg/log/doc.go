/*
Package log provides structured logging for AIPerf using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity for production debugging.

# Usage

	import "github.com/aiperf-project/aiperf-core/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("controller starting")

	workerLog := log.WithWorkerID("worker-3")
	workerLog.Info().Msg("registered with controller")

	phaseLog := log.WithPhase("profiling")
	phaseLog.Debug().Int64("sent", 120).Msg("credits issued")

# Context loggers

  - WithComponent: tag logs with a package/subsystem name
  - WithServiceID: tag logs with the emitting service's ID
  - WithWorkerID: tag logs with a worker's ID
  - WithPhase: tag logs with the active credit phase
  - WithNodeID, WithTaskID: retained for parity with components that still
    think in terms of cluster nodes and scheduled tasks (e.g. the
    controller's Raft-backed run ledger)

Child loggers compose: a worker processing the profiling phase typically
logs through log.WithWorkerID(id).With().Str("phase", "profiling").Logger().

# Integration points

  - pkg/controller: Raft run-ledger transitions, service registration
  - pkg/timing: phase start/sending-complete/complete events
  - pkg/worker: per-request execution and cancellation
  - pkg/metrics: record/aggregate/derive failures
  - pkg/fabric: dial/listen and retry-with-backoff events

Never log secrets (API keys, bearer tokens) or full request/response
bodies; log identifiers and sizes instead.
*/
package log
