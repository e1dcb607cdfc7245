package metrics

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// RecordProcessorService runs Stage 1 as a standalone pull loop: it reads
// ParsedResponseRecords off the raw-inference queue, computes per-record
// metric values via an embedded RecordProcessor, and forwards the result to
// the shared records queue for the Results Processor to fold in. Shaped
// after pkg/worker.Worker's pull-process-forward Run loop, generalized to a
// different payload pair.
type RecordProcessorService struct {
	id           string
	processor    *RecordProcessor
	rawInference *fabric.Queue
	recordsQueue *fabric.Queue
	realtimeBus  *fabric.Broker
	logger       zerolog.Logger
}

// NewRecordProcessorService builds a RecordProcessorService bound to reg's
// metric catalog. realtimeBus is optional (nil is fine): when set, every
// processed record is also broadcast there, so a Realtime Stats Streamer
// running in its own process can observe the same records the singleton
// Results Processor consumes off recordsQueue without competing with it for
// the point-to-point queue's exactly-once delivery. streaming must match the
// run's endpoint configuration; see NewRecordProcessor.
func NewRecordProcessorService(id string, reg *Registry, rawInference, recordsQueue *fabric.Queue, realtimeBus *fabric.Broker, streaming bool) (*RecordProcessorService, error) {
	proc, err := NewRecordProcessor(id, reg, streaming)
	if err != nil {
		return nil, err
	}
	return &RecordProcessorService{
		id:           id,
		processor:    proc,
		rawInference: rawInference,
		recordsQueue: recordsQueue,
		realtimeBus:  realtimeBus,
		logger:       log.WithComponent("record_processor").With().Str("record_processor_id", id).Logger(),
	}, nil
}

// Run pulls records until ctx is done, forwarding one MetricRecordsPayload
// per input record.
func (s *RecordProcessorService) Run(ctx context.Context) {
	for {
		env, release, err := s.rawInference.Pull(ctx)
		if err != nil {
			return
		}
		var payload types.ParsedInferenceResultsPayload
		if err := env.DecodePayload(&payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to decode parsed inference result")
			release()
			continue
		}

		metricsPayload := s.processor.Process(payload.Record)
		release()

		outEnv, err := types.NewEnvelope(types.MessageTypeMetricRecords, s.id, metricsPayload)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to encode metric records payload")
			continue
		}
		if err := s.recordsQueue.Push(ctx, outEnv); err != nil {
			s.logger.Error().Err(err).Str("x_request_id", metricsPayload.Metadata.RequestID).
				Msg("permanently failed to push metric records after retries")
		}
		if s.realtimeBus != nil {
			s.realtimeBus.Publish(fabric.Topic(types.MessageTypeMetricRecords), outEnv)
		}
	}
}

// ResultsProcessorService runs Stage 2 as a standalone pull loop: the
// singleton that folds every RecordProcessorService's output into the final
// run results, exposed via Summarize for the stats streamer and the final
// report writer to read once profiling completes.
type ResultsProcessorService struct {
	id           string
	processor    *ResultsProcessor
	recordsQueue *fabric.Queue
	logger       zerolog.Logger
}

// NewResultsProcessorService builds a ResultsProcessorService against reg.
// streaming must match the run's endpoint configuration; see
// NewResultsProcessor.
func NewResultsProcessorService(id string, reg *Registry, recordsQueue *fabric.Queue, streaming bool) *ResultsProcessorService {
	return &ResultsProcessorService{
		id:           id,
		processor:    NewResultsProcessor(reg, streaming),
		recordsQueue: recordsQueue,
		logger:       log.WithComponent("results_processor").With().Str("results_processor_id", id).Logger(),
	}
}

// Run pulls MetricRecordsPayloads and folds each into the running results
// until ctx is done.
func (s *ResultsProcessorService) Run(ctx context.Context) {
	for {
		env, release, err := s.recordsQueue.Pull(ctx)
		if err != nil {
			return
		}
		var payload types.MetricRecordsPayload
		if err := env.DecodePayload(&payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to decode metric records payload")
			release()
			continue
		}
		s.processor.Ingest(payload)
		release()
	}
}

// Summarize computes the final per-metric results from everything ingested
// so far; safe to call concurrently with Run.
func (s *ResultsProcessorService) Summarize() (map[string]types.MetricResult, error) {
	return s.processor.Summarize()
}

// Stats returns the processed/error record counts observed so far.
func (s *ResultsProcessorService) Stats() types.PhaseProcessingStats {
	return s.processor.Stats()
}

// SetRecordSink enables RECORDS-mode durable spill for every record this
// service ingests from this point forward; see ResultsProcessor.SetRecordSink.
func (s *ResultsProcessorService) SetRecordSink(sink RecordSink) {
	s.processor.SetRecordSink(sink)
}
