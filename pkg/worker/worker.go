// Package worker implements the Worker pool: it PULLs CreditDrop messages,
// resolves a conversation turn, issues the HTTP request an
// Endpoint-specific builder describes, parses the response, and PUSHes a
// ParsedResponseRecord downstream before PUBLISHing the credit's return.
//
// Generalized from a container-lifecycle worker (struct owns a client, a
// per-unit-of-work map, a stop channel, and a background health-monitor
// ticker) to HTTP-request lifecycle: the containers map becomes a
// conversation_id → next_turn_index map, the container runtime client
// becomes an *http.Client, and the health monitor's ticker pattern grounds
// the pool's periodic heartbeat log (see pool.go).
package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/config"
	"github.com/aiperf-project/aiperf-core/pkg/contracts"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Worker pulls credits from a shared queue and converts each into one HTTP
// exchange against the configured endpoint.
type Worker struct {
	id     string
	cfg    Config
	logger zerolog.Logger

	creditQueue  *fabric.Queue
	rawInference *fabric.Queue
	creditEvents *fabric.Broker
	dataset      contracts.DatasetProvider
	builder      contracts.RequestBuilder
	parser       contracts.ResponseParser
	httpClient   *http.Client

	turnMu    sync.Mutex
	turnIndex map[string]int

	modelCounter uint64
	rng          *rand.Rand
}

// NewWorker builds a Worker identified by id, sharing creditQueue and
// rawInference with every other worker in its Pool.
func NewWorker(
	id string,
	cfg Config,
	creditQueue *fabric.Queue,
	rawInference *fabric.Queue,
	creditEvents *fabric.Broker,
	dataset contracts.DatasetProvider,
	builder contracts.RequestBuilder,
	parser contracts.ResponseParser,
) *Worker {
	return &Worker{
		id:           id,
		cfg:          cfg,
		logger:       log.WithWorkerID(id),
		creditQueue:  creditQueue,
		rawInference: rawInference,
		creditEvents: creditEvents,
		dataset:      dataset,
		builder:      builder,
		parser:       parser,
		httpClient:   &http.Client{Timeout: cfg.requestTimeout()},
		turnIndex:    make(map[string]int),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run pulls credits until ctx is done, processing each to completion before
// pulling the next. Use a Pool to run several Workers concurrently.
func (w *Worker) Run(ctx context.Context) {
	for {
		env, release, err := w.creditQueue.Pull(ctx)
		if err != nil {
			return
		}
		var payload types.CreditDropPayload
		if err := env.DecodePayload(&payload); err != nil {
			w.logger.Error().Err(err).Msg("failed to decode credit drop payload")
			release()
			continue
		}
		w.processCredit(ctx, payload.Credit)
		release()
	}
}

// processCredit runs the full per-credit lifecycle — dataset lookup,
// request build, dispatch, parse, push, return — and always publishes
// exactly one CreditReturn, however the request went.
func (w *Worker) processCredit(ctx context.Context, credit types.Credit) {
	requestID := uuid.NewString()

	conversation, err := w.dataset.GetConversation(ctx, credit.ConversationID)
	if err != nil {
		w.returnCredit(ctx, credit.Phase, false, fmt.Sprintf("dataset lookup failed: %v", err))
		return
	}
	if len(conversation.Turns) == 0 {
		w.returnCredit(ctx, credit.Phase, false, "conversation has no turns")
		return
	}

	turnIdx := w.nextTurnIndex(conversation.ConversationID, len(conversation.Turns))
	turn := conversation.Turns[turnIdx]

	model := w.selectModel(turn)

	spec, err := w.builder.BuildRequest(w.cfg.EndpointKind, model, turn, w.cfg.Streaming)
	if err != nil {
		w.returnCredit(ctx, credit.Phase, false, fmt.Sprintf("request build failed: %v", err))
		return
	}
	spec.URL = w.mergeQueryParams(spec.URL)

	if credit.CreditDropNS != nil {
		sleepUntilNS(ctx, *credit.CreditDropNS)
	}

	record, cancelled := w.execute(ctx, requestID, conversation.ConversationID, turnIdx, model, credit, spec)

	pushEnv, err := types.NewEnvelope(types.MessageTypeParsedInferenceResults, w.id,
		types.ParsedInferenceResultsPayload{Record: record})
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to encode parsed inference result")
	} else if err := w.rawInference.Push(ctx, pushEnv); err != nil {
		w.logger.Error().Err(err).Str("x_request_id", requestID).
			Msg("permanently failed to push parsed inference result after retries")
	}

	var errMsg *string
	if record.Request.Error != nil {
		errMsg = record.Request.Error
	}
	w.returnCredit(ctx, credit.Phase, cancelled, derefOr(errMsg, ""))
}

// nextTurnIndex returns and advances the worker-local turn cursor for
// conversationID, clamped to the last available turn once exhausted rather
// than wrapping or erroring.
func (w *Worker) nextTurnIndex(conversationID string, turnCount int) int {
	w.turnMu.Lock()
	defer w.turnMu.Unlock()
	idx := w.turnIndex[conversationID]
	if idx >= turnCount {
		idx = turnCount - 1
	}
	next := idx + 1
	if next > turnCount-1 {
		next = turnCount - 1
	}
	w.turnIndex[conversationID] = next
	return idx
}

// selectModel applies the configured model-selection strategy, unless the
// turn itself pins a model (e.g. modality-specific datasets).
func (w *Worker) selectModel(turn contracts.Turn) string {
	if turn.Model != "" {
		return turn.Model
	}
	names := w.cfg.ModelNames
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	switch w.cfg.ModelSelectionStrategy {
	case config.ModelSelectionRandom:
		return names[w.rng.Intn(len(names))]
	case config.ModelSelectionModalityAware:
		if len(turn.Images) > 0 || len(turn.Audios) > 0 {
			return names[len(names)-1]
		}
		return names[0]
	default: // round_robin
		idx := atomic.AddUint64(&w.modelCounter, 1) - 1
		return names[int(idx)%len(names)]
	}
}

// mergeQueryParams merges cfg.EndpointParams into rawURL's query string,
// overriding any pre-existing keys with the same name.
func (w *Worker) mergeQueryParams(rawURL string) string {
	if len(w.cfg.EndpointParams) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range w.cfg.EndpointParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// execute performs the HTTP exchange, records timing, and assembles the
// ParsedResponseRecord. It never returns an error: any failure is encoded
// into the record's Request.Error field instead, so the caller always has a
// record to push and a credit to return.
func (w *Worker) execute(
	ctx context.Context,
	requestID, conversationID string,
	turnIndex int,
	model string,
	credit types.Credit,
	spec contracts.RequestSpec,
) (types.ParsedResponseRecord, bool) {
	reqCtx := ctx
	var cancel context.CancelFunc
	cancelled := false

	startPerfNS := perfNowNS()
	timestampNS := types.NowNS()

	if credit.ShouldCancel {
		reqCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		time.AfterFunc(time.Duration(credit.CancelAfterNS), cancel)
	}

	record := types.RequestRecord{
		RequestID:      requestID,
		WorkerID:       w.id,
		ConversationID: conversationID,
		TurnIndex:      turnIndex,
		ModelName:      model,
		StartPerfNS:    startPerfNS,
		TimestampNS:    timestampNS,
		CreditPhase:    credit.Phase,
	}
	if credit.CreditDropNS != nil {
		latency := timestampNS - *credit.CreditDropNS
		record.CreditDropLatencyNS = &latency
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, spec.Method, spec.URL, bytes.NewReader(spec.Body))
	if err != nil {
		record.EndPerfNS = perfNowNS()
		errStr := err.Error()
		record.Error = &errStr
		return types.ParsedResponseRecord{Request: record}, false
	}
	for k, vs := range spec.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", w.cfg.userAgent())
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		record.EndPerfNS = perfNowNS()
		if errors.Is(reqCtx.Err(), context.Canceled) && credit.ShouldCancel {
			cancelled = true
			errStr := "cancelled"
			record.Error = &errStr
		} else {
			errStr := err.Error()
			record.Error = &errStr
		}
		return types.ParsedResponseRecord{Request: record}, cancelled
	}
	defer resp.Body.Close()

	recvStart := perfNowNS()
	record.RecvStartPerfNS = &recvStart

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		record.EndPerfNS = perfNowNS()
		errStr := fmt.Sprintf("http %d: %s", resp.StatusCode, string(body))
		record.Error = &errStr
		return types.ParsedResponseRecord{Request: record}, false
	}

	chunks, readErr := w.readChunks(resp.Body, spec.Streaming)
	record.EndPerfNS = perfNowNS()

	if readErr != nil {
		if errors.Is(reqCtx.Err(), context.Canceled) && credit.ShouldCancel {
			cancelled = true
			errStr := "cancelled"
			record.Error = &errStr
			return types.ParsedResponseRecord{Request: record}, cancelled
		}
		errStr := readErr.Error()
		record.Error = &errStr
		return types.ParsedResponseRecord{Request: record}, false
	}

	parsed, err := w.parser.ParseResponse(w.cfg.EndpointKind, chunks)
	if err != nil {
		errStr := err.Error()
		record.Error = &errStr
		return types.ParsedResponseRecord{Request: record}, false
	}

	return types.ParsedResponseRecord{
		Request:             record,
		Responses:           parsed.Responses,
		InputTokenCount:     parsed.InputTokenCount,
		OutputTokenCount:    parsed.OutputTokenCount,
		ReasoningTokenCount: parsed.ReasoningTokenCount,
	}, cancelled
}

// readChunks reads the response body into ResponseChunks, one per line for
// a streaming response (each tagged with the perf-clock time it arrived)
// or a single chunk for a non-streaming response.
func (w *Worker) readChunks(body io.Reader, streaming bool) ([]contracts.ResponseChunk, error) {
	if !streaming {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		return []contracts.ResponseChunk{{PerfNS: perfNowNS(), Data: data, ContentOnly: true}}, nil
	}

	var chunks []contracts.ResponseChunk
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		chunks = append(chunks, contracts.ResponseChunk{
			PerfNS:      perfNowNS(),
			Data:        append([]byte(nil), line...),
			ContentOnly: true,
		})
	}
	if err := scanner.Err(); err != nil {
		return chunks, err
	}
	return chunks, nil
}

// returnCredit publishes a CreditReturn event for phase, best-effort.
func (w *Worker) returnCredit(ctx context.Context, phase types.CreditPhase, cancelled bool, errMsg string) {
	payload := types.CreditReturnPayload{
		Phase:       phase,
		Cancelled:   cancelled,
		TimestampNS: types.NowNS(),
	}
	if errMsg != "" {
		payload.Error = &errMsg
	}
	env, err := types.NewEnvelope(types.MessageTypeCreditReturn, w.id, payload)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to encode credit return")
		return
	}
	w.creditEvents.Publish(fabric.Topic(types.MessageTypeCreditReturn), env)
}

func sleepUntilNS(ctx context.Context, deadlineNS int64) {
	d := time.Duration(deadlineNS - types.NowNS())
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
