package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func testEnvelope(t *testing.T, msgType types.MessageType) types.Envelope {
	t.Helper()
	env, err := types.NewEnvelope(msgType, "svc-1", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestBrokerPublishSubscribeTopicPrefix(t *testing.T) {
	b := NewBroker(AddressEventBusProxyFrontend, DefaultSocketConfig())
	defer b.Stop()

	ch := b.Subscribe(Topic("credit_return"))
	other := b.Subscribe(Topic("unrelated"))

	env := testEnvelope(t, types.MessageTypeCreditReturn)
	b.Publish(Topic("credit_return.profiling"), env)

	select {
	case got := <-ch:
		if got.MessageType != types.MessageTypeCreditReturn {
			t.Fatalf("unexpected message type %v", got.MessageType)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber delivery")
	}

	select {
	case <-other:
		t.Fatal("unrelated subscriber should not have received the message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueuePushPull(t *testing.T) {
	q := NewQueue(AddressCreditDrop, DefaultSocketConfig(), 1)
	env := testEnvelope(t, types.MessageTypeCreditDrop)

	ctx := context.Background()
	if err := q.Push(ctx, env); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, release, err := q.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	defer release()
	if got.MessageType != types.MessageTypeCreditDrop {
		t.Fatalf("unexpected message type %v", got.MessageType)
	}
}

func TestQueuePushRetriesThenFailsWhenFull(t *testing.T) {
	cfg := DefaultSocketConfig()
	cfg.SendHWM = 1
	q := NewQueue(AddressRecords, cfg, 0)

	ctx := context.Background()
	if err := q.Push(ctx, testEnvelope(t, types.MessageTypeMetricRecords)); err != nil {
		t.Fatalf("first push: %v", err)
	}
	// Queue is now full; a second push should retry and ultimately fail as
	// a CommunicationError since nothing is draining it.
	err := q.Push(ctx, testEnvelope(t, types.MessageTypeMetricRecords))
	if err == nil {
		t.Fatal("expected push to a full, undrained queue to fail")
	}
}

func TestRequestClientRequestReply(t *testing.T) {
	sink := make(chan types.Envelope, 1)
	client := NewRequestClient(AddressDatasetManagerProxyFrontend, sink)

	server := NewReplyServer(AddressDatasetManagerProxyBackend, func(ctx context.Context, req types.Envelope) (types.Envelope, error) {
		return types.NewEnvelope(types.MessageTypeConversationResponse, "dataset-provider", types.ConversationResponsePayload{
			ConversationID: "conv-1",
		})
	}, client)

	go func() {
		req := <-sink
		server.Serve(context.Background(), req)
	}()

	req := testEnvelope(t, types.MessageTypeConversationRequest)
	req.RequestID = types.NewID()

	reply, err := client.Request(context.Background(), req, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if reply.MessageType != types.MessageTypeConversationResponse {
		t.Fatalf("unexpected reply type %v", reply.MessageType)
	}
}

func TestRequestClientTimesOut(t *testing.T) {
	sink := make(chan types.Envelope, 1)
	client := NewRequestClient(AddressDatasetManagerProxyFrontend, sink)

	req := testEnvelope(t, types.MessageTypeConversationRequest)
	req.RequestID = types.NewID()

	go func() { <-sink }() // drain so Request's send doesn't block

	_, err := client.Request(context.Background(), req, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error when no reply is delivered")
	}
}
