package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

func TestServiceClientRegisterPublishesRegistration(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeRegistration))
	defer bus.Unsubscribe(ch)

	client := NewServiceClient("worker-1", types.ServiceTypeWorker, bus)
	if err := client.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	select {
	case env := <-ch:
		var payload types.RegistrationPayload
		if err := env.DecodePayload(&payload); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if payload.ServiceType != types.ServiceTypeWorker {
			t.Fatalf("expected worker, got %v", payload.ServiceType)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registration")
	}
}

func TestServiceClientReportFatalPublishesError(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeError))
	defer bus.Unsubscribe(ch)

	client := NewServiceClient("worker-1", types.ServiceTypeWorker, bus)
	client.ReportFatal("startup", errors.New("boom"))

	select {
	case env := <-ch:
		var payload types.ErrorPayload
		if err := env.DecodePayload(&payload); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if payload.ErrorCode != "startup" || payload.Error != "boom" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestServiceClientCommandsDecodesBroadcasts(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	client := NewServiceClient("worker-1", types.ServiceTypeWorker, bus)
	cmds, unsubscribe := client.Commands()
	defer unsubscribe()

	env, err := types.NewEnvelope(types.MessageTypeCommand, "controller-1", types.CommandPayload{
		Command: types.CommandTypeStartWarmup,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	bus.Publish(fabric.Topic(types.MessageTypeCommand), env)

	select {
	case cmd := <-cmds:
		if cmd.Command != types.CommandTypeStartWarmup {
			t.Fatalf("expected start_warmup, got %v", cmd.Command)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestServiceClientRunHeartbeatsStopsOnContextCancel(t *testing.T) {
	bus := fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig())
	defer bus.Stop()

	ch := bus.Subscribe(fabric.Topic(types.MessageTypeHeartbeat))
	defer bus.Unsubscribe(ch)

	client := NewServiceClient("worker-1", types.ServiceTypeWorker, bus)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		client.RunHeartbeats(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first heartbeat")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHeartbeats did not stop after context cancel")
	}
}
