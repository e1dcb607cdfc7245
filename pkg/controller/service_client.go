package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// ServiceClient is the client-side counterpart to Controller's
// awaitRegistrations/publishCommand/errCh handling: every non-controller
// service built by cmd/aiperf uses one to join a run, without depending on
// the Controller type itself (a spawned process only ever sees the shared
// event bus, dialed or bridged, never its Controller).
type ServiceClient struct {
	id          string
	serviceType types.ServiceType
	eventBus    *fabric.Broker
	logger      zerolog.Logger
}

// NewServiceClient builds a ServiceClient identified by id, speaking for
// serviceType on eventBus.
func NewServiceClient(id string, serviceType types.ServiceType, eventBus *fabric.Broker) *ServiceClient {
	return &ServiceClient{
		id:          id,
		serviceType: serviceType,
		eventBus:    eventBus,
		logger:      log.WithComponent("service_client").With().Str("service_id", id).Str("service_type", string(serviceType)).Logger(),
	}
}

// Register publishes this service's RegistrationPayload, the message
// Controller.awaitRegistrations waits for.
func (c *ServiceClient) Register() error {
	env, err := types.NewEnvelope(types.MessageTypeRegistration, c.id, types.RegistrationPayload{
		StatusPayload: types.StatusPayload{State: types.ServiceStateReady, ServiceType: c.serviceType},
	})
	if err != nil {
		return err
	}
	c.eventBus.Publish(fabric.Topic(types.MessageTypeRegistration), env)
	c.logger.Info().Msg("registered with controller")
	return nil
}

// ReportFatal publishes an ErrorPayload, the message Controller's run loop
// treats as cause to abort the run and tear every service down.
func (c *ServiceClient) ReportFatal(code string, cause error) {
	env, err := types.NewEnvelope(types.MessageTypeError, c.id, types.ErrorPayload{
		ErrorCode: code,
		Error:     cause.Error(),
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to build error envelope")
		return
	}
	c.eventBus.Publish(fabric.Topic(types.MessageTypeError), env)
}

// Heartbeat publishes a HeartbeatPayload announcing this service is still
// running.
func (c *ServiceClient) Heartbeat() {
	env, err := types.NewEnvelope(types.MessageTypeHeartbeat, c.id, types.HeartbeatPayload{
		StatusPayload: types.StatusPayload{State: types.ServiceStateRunning, ServiceType: c.serviceType},
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to build heartbeat envelope")
		return
	}
	c.eventBus.Publish(fabric.Topic(types.MessageTypeHeartbeat), env)
}

// Commands subscribes to the controller's command broadcasts, decoding
// each into a CommandPayload on the returned channel. unsubscribe must be
// called once the caller is done reading.
func (c *ServiceClient) Commands() (<-chan types.CommandPayload, func()) {
	raw := c.eventBus.Subscribe(fabric.Topic(types.MessageTypeCommand))
	out := make(chan types.CommandPayload)
	stop := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case env, ok := <-raw:
				if !ok {
					return
				}
				var payload types.CommandPayload
				if err := env.DecodePayload(&payload); err != nil {
					c.logger.Warn().Err(err).Msg("failed to decode command payload")
					continue
				}
				select {
				case out <- payload:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return out, func() {
		close(stop)
		c.eventBus.Unsubscribe(raw)
	}
}

// RunHeartbeats publishes a heartbeat every interval until ctx is done.
// Intended to run in its own goroutine alongside the service's main loop.
func (c *ServiceClient) RunHeartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Heartbeat()
		case <-ctx.Done():
			return
		}
	}
}
