package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/contracts"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

type fakeDataset struct {
	turns []contracts.Turn
}

func (f *fakeDataset) GetConversation(ctx context.Context, conversationID string) (contracts.Conversation, error) {
	return contracts.Conversation{ConversationID: "conv-1", Turns: f.turns}, nil
}

type echoBuilder struct{ url string }

func (b *echoBuilder) BuildRequest(kind contracts.EndpointKind, model string, turn contracts.Turn, streaming bool) (contracts.RequestSpec, error) {
	return contracts.RequestSpec{
		Method:  http.MethodPost,
		URL:     b.url,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    []byte(`{"model":"` + model + `"}`),
	}, nil
}

type echoParser struct{}

func (echoParser) ParseResponse(kind contracts.EndpointKind, chunks []contracts.ResponseChunk) (contracts.ParsedResult, error) {
	responses := make([]types.ParsedResponse, 0, len(chunks))
	for _, c := range chunks {
		responses = append(responses, types.ParsedResponse{PerfNS: c.PerfNS, Data: map[string]any{"raw": string(c.Data)}})
	}
	one := int64(len(chunks))
	return contracts.ParsedResult{Responses: responses, OutputTokenCount: &one}, nil
}

func newTestWorker(t *testing.T, url string) (*Worker, *fabric.Queue, *fabric.Broker) {
	t.Helper()
	cfg := fabric.DefaultSocketConfig()
	rawInference := fabric.NewQueue(fabric.AddressRawInferenceProxyBackend, cfg, 0)
	creditEvents := fabric.NewBroker(fabric.AddressCreditReturn, cfg)

	w := NewWorker(
		"worker-test",
		Config{EndpointKind: contracts.EndpointChatCompletions, BaseURL: url, ModelNames: []string{"model-a"}},
		fabric.NewQueue(fabric.AddressCreditDrop, cfg, 0),
		rawInference,
		creditEvents,
		&fakeDataset{turns: []contracts.Turn{{Role: "user", Texts: []string{"hi"}}}},
		&echoBuilder{url: url},
		echoParser{},
	)
	return w, rawInference, creditEvents
}

func TestProcessCreditSuccessPushesRecordAndReturnsCredit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	w, rawInference, creditEvents := newTestWorker(t, srv.URL)

	returns := creditEvents.Subscribe(fabric.Topic(types.MessageTypeCreditReturn))
	defer creditEvents.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w.processCredit(ctx, types.Credit{Phase: types.CreditPhaseProfiling})

	pullCtx, pullCancel := context.WithTimeout(ctx, time.Second)
	defer pullCancel()
	env, release, err := rawInference.Pull(pullCtx)
	if err != nil {
		t.Fatalf("expected a pushed record, got error: %v", err)
	}
	release()

	var payload types.ParsedInferenceResultsPayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Record.Request.Error != nil {
		t.Fatalf("expected no error on success path, got %v", *payload.Record.Request.Error)
	}
	if len(payload.Record.Responses) == 0 {
		t.Fatalf("expected at least one parsed response")
	}

	select {
	case env := <-returns:
		var ret types.CreditReturnPayload
		if err := env.DecodePayload(&ret); err != nil {
			t.Fatalf("decode credit return: %v", err)
		}
		if ret.Error != nil {
			t.Fatalf("expected no error on credit return, got %v", *ret.Error)
		}
	case <-ctx.Done():
		t.Fatal("expected a credit return to be published")
	}
}

func TestProcessCreditHTTPErrorStillReturnsCreditWithError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
		rw.Write([]byte("boom"))
	}))
	defer srv.Close()

	w, rawInference, creditEvents := newTestWorker(t, srv.URL)
	returns := creditEvents.Subscribe(fabric.Topic(types.MessageTypeCreditReturn))
	defer creditEvents.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w.processCredit(ctx, types.Credit{Phase: types.CreditPhaseProfiling})

	pullCtx, pullCancel := context.WithTimeout(ctx, time.Second)
	defer pullCancel()
	env, release, err := rawInference.Pull(pullCtx)
	if err != nil {
		t.Fatalf("expected a pushed error record, got error: %v", err)
	}
	release()

	var payload types.ParsedInferenceResultsPayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Record.Request.Error == nil {
		t.Fatalf("expected an error on the record for a 500 response")
	}

	select {
	case env := <-returns:
		var ret types.CreditReturnPayload
		_ = env.DecodePayload(&ret)
		if ret.Error == nil {
			t.Fatalf("expected credit return to carry the error")
		}
	case <-ctx.Done():
		t.Fatal("expected a credit return to be published despite the HTTP error")
	}
}

func TestNextTurnIndexClampsAtLastTurn(t *testing.T) {
	w, _, creditEvents := newTestWorker(t, "http://example.invalid")
	defer creditEvents.Stop()

	idx0 := w.nextTurnIndex("conv-x", 2)
	idx1 := w.nextTurnIndex("conv-x", 2)
	idx2 := w.nextTurnIndex("conv-x", 2)
	if idx0 != 0 || idx1 != 1 || idx2 != 1 {
		t.Fatalf("expected indexes 0,1,1 (clamped), got %d,%d,%d", idx0, idx1, idx2)
	}
}

func TestSelectModelRoundRobinCyclesThroughAllNames(t *testing.T) {
	w, _, creditEvents := newTestWorker(t, "http://example.invalid")
	defer creditEvents.Stop()
	w.cfg.ModelNames = []string{"a", "b", "c"}

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		seen[w.selectModel(contracts.Turn{})] = true
	}
	for _, name := range w.cfg.ModelNames {
		if !seen[name] {
			t.Fatalf("round robin never selected %q", name)
		}
	}
}
