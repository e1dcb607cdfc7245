package timing

import (
	"context"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func TestFabricCreditManagerDropCreditPushesToQueue(t *testing.T) {
	queue := fabric.NewQueue(fabric.AddressCreditDrop, fabric.DefaultSocketConfig(), 0)
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	mgr := NewFabricCreditManager("timing-manager-1", queue, bus)

	ctx := context.Background()
	if err := mgr.DropCredit(ctx, types.Credit{Phase: types.CreditPhaseWarmup}); err != nil {
		t.Fatalf("DropCredit: %v", err)
	}

	env, release, err := queue.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	defer release()

	var payload types.CreditDropPayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Credit.Phase != types.CreditPhaseWarmup {
		t.Fatalf("expected phase warmup, got %v", payload.Credit.Phase)
	}
	if payload.Credit.CreditDropNS == nil {
		t.Fatal("expected CreditDropNS to be stamped")
	}
}

func TestFabricCreditManagerPublishesPhaseLifecycleEvents(t *testing.T) {
	queue := fabric.NewQueue(fabric.AddressCreditDrop, fabric.DefaultSocketConfig(), 0)
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	mgr := NewFabricCreditManager("timing-manager-1", queue, bus)
	ch := bus.Subscribe(fabric.Topic(types.MessageTypeCreditsComplete))
	defer bus.Unsubscribe(ch)

	if err := mgr.PublishCreditsComplete(context.Background(), 10, 10); err != nil {
		t.Fatalf("PublishCreditsComplete: %v", err)
	}

	select {
	case env := <-ch:
		var payload types.CreditsCompletePayload
		if err := env.DecodePayload(&payload); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if payload.TotalSent != 10 || payload.TotalReturned != 10 {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for credits complete broadcast")
	}
}
