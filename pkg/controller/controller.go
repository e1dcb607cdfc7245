package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Config configures a Controller instance.
type Config struct {
	NodeID                  string
	RaftBindAddr            string
	RaftDataDir             string
	RequiredServices        []types.ServiceType
	Specs                   []ServiceSpec
	RegistrationTimeout     time.Duration
	GracefulShutdownTimeout time.Duration
}

// Controller is the System Controller: it spawns every required service,
// waits for their registrations, drives the run through PROFILE_CONFIGURE →
// PROFILE_START → PROFILE_STOP → PROCESS_RECORDS → SHUTDOWN, and aggregates
// partial failures into an exit report. Its Raft bootstrap/Apply pattern is
// reused for the run ledger; the DNS/ingress/ACME/CA responsibilities that
// occupy most of a general-purpose cluster manager have no analogue in a
// single benchmark run and are not carried over.
type Controller struct {
	id     string
	cfg    Config
	logger zerolog.Logger

	ledger *RunLedger
	fsm    *LedgerFSM
	raft   raftApplier

	eventBus  *fabric.Broker
	processes map[types.ServiceType]*serviceProcess
}

// raftApplier is the subset of *raft.Raft the controller depends on,
// narrowed so tests can substitute a fake without standing up a real
// single-node cluster.
type raftApplier interface {
	Apply(cmd []byte, timeout time.Duration) raftFuture
}

type raftFuture interface {
	Error() error
}

// New builds a Controller. The caller is responsible for calling Run, which
// bootstraps the Raft-backed ledger and blocks until the run reaches
// SHUTDOWN or ctx is cancelled.
func New(cfg Config) *Controller {
	id := cfg.NodeID
	if id == "" {
		id = uuid.NewString()
	}
	ledger := NewRunLedger()
	return &Controller{
		id:        id,
		cfg:       cfg,
		logger:    log.WithComponent("controller").With().Str("node_id", id).Logger(),
		ledger:    ledger,
		fsm:       NewLedgerFSM(ledger),
		eventBus:  fabric.NewBroker(fabric.AddressEventBusProxyBackend, fabric.DefaultSocketConfig()),
		processes: make(map[types.ServiceType]*serviceProcess),
	}
}

// Ledger exposes the controller's run ledger for read-only inspection
// (e.g. by a CLI printing current phase).
func (c *Controller) Ledger() *RunLedger { return c.ledger }

// EventBus exposes the controller's event bus so the process hosting the
// Controller can bridge it to remote peers (pkg/fabric.BindBroker). The
// Controller itself only ever talks to it in-process.
func (c *Controller) EventBus() *fabric.Broker { return c.eventBus }

// Run drives the full lifecycle: CONFIGURING → READY → PROFILING →
// PROCESSING → STOPPING → SHUTDOWN, or STOPPING directly on a fatal error.
// It returns the accumulated ExitErrorInfo list; an empty list means a
// clean run.
func (c *Controller) Run(ctx context.Context) ([]ExitErrorInfo, error) {
	r, err := bootstrapRaft(RaftConfig{NodeID: c.cfg.NodeID, BindAddr: c.cfg.RaftBindAddr, DataDir: c.cfg.RaftDataDir}, c.fsm)
	if err != nil {
		return nil, err
	}
	c.raft = raftRaft{r}
	defer func() { _ = r.Shutdown().Error() }()

	if err := c.transition(PhaseConfiguring); err != nil {
		return c.ledger.ExitErrors(), err
	}

	errCh := c.eventBus.Subscribe(fabric.Topic(types.MessageTypeError))
	defer c.eventBus.Unsubscribe(errCh)

	if err := c.spawnServices(ctx); err != nil {
		c.recordFatal("spawn", err)
		c.shutdownAll()
		return c.ledger.ExitErrors(), err
	}

	if err := c.awaitRegistrations(ctx, errCh); err != nil {
		c.recordFatal("registration", err)
		c.shutdownAll()
		return c.ledger.ExitErrors(), err
	}

	if err := c.transition(PhaseReady); err != nil {
		return c.ledger.ExitErrors(), err
	}

	if err := c.runProfilingCycle(ctx, errCh); err != nil {
		c.recordFatal("profiling", err)
	}

	c.shutdownAll()
	return c.ledger.ExitErrors(), nil
}

// runProfilingCycle issues the warmup and profiling commands in order,
// waiting for each phase's completion signal before advancing: PROFILE_CONFIGURE →
// PROFILE_START → await CreditsCompleteMessage → PROFILE_STOP →
// PROCESS_RECORDS.
func (c *Controller) runProfilingCycle(ctx context.Context, errCh <-chan types.Envelope) error {
	phaseCh := c.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditPhaseComplete))
	defer c.eventBus.Unsubscribe(phaseCh)
	creditsCh := c.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditsComplete))
	defer c.eventBus.Unsubscribe(creditsCh)

	if err := c.publishCommand(types.CommandTypeStartWarmup); err != nil {
		return err
	}
	if err := c.awaitPhaseComplete(ctx, phaseCh, errCh, types.CreditPhaseWarmup); err != nil {
		return err
	}

	if err := c.transition(PhaseProfiling); err != nil {
		return err
	}
	if err := c.publishCommand(types.CommandTypeStartProfiling); err != nil {
		return err
	}
	if err := c.awaitCreditsComplete(ctx, creditsCh, errCh); err != nil {
		return err
	}

	if err := c.transition(PhaseProcessing); err != nil {
		return err
	}
	if err := c.publishCommand(types.CommandTypeStop); err != nil {
		return err
	}

	return c.transition(PhaseStopping)
}

func (c *Controller) awaitPhaseComplete(ctx context.Context, phaseCh, errCh <-chan types.Envelope, want types.CreditPhase) error {
	for {
		select {
		case env := <-phaseCh:
			var payload types.CreditPhaseCompletePayload
			if err := env.DecodePayload(&payload); err != nil {
				continue
			}
			if payload.Phase == want {
				return nil
			}
		case env := <-errCh:
			return c.errorFromEnvelope(env)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) awaitCreditsComplete(ctx context.Context, creditsCh, errCh <-chan types.Envelope) error {
	select {
	case <-creditsCh:
		return nil
	case env := <-errCh:
		return c.errorFromEnvelope(env)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) errorFromEnvelope(env types.Envelope) error {
	var payload types.ErrorPayload
	if err := env.DecodePayload(&payload); err != nil {
		return aierrors.NewServiceError(env.ServiceID, "unknown", fmt.Errorf("malformed error payload: %w", err))
	}
	return aierrors.NewServiceError(env.ServiceID, payload.ErrorCode, fmt.Errorf("%s", payload.Error))
}

// spawnServices launches one OS process per ServiceSpec.
func (c *Controller) spawnServices(ctx context.Context) error {
	for _, spec := range c.cfg.Specs {
		proc := newServiceProcess(spec, c.logger)
		if err := proc.Start(ctx); err != nil {
			return fmt.Errorf("failed to spawn %s: %w", spec.ServiceType, err)
		}
		c.processes[types.ServiceType(spec.ServiceType)] = proc
	}
	return nil
}

// awaitRegistrations blocks until every required service type has
// registered, or fails fast if a spawned process exits before registering.
func (c *Controller) awaitRegistrations(ctx context.Context, errCh <-chan types.Envelope) error {
	regCh := c.eventBus.Subscribe(fabric.Topic(types.MessageTypeRegistration))
	defer c.eventBus.Unsubscribe(regCh)

	timeout := c.cfg.RegistrationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.After(timeout)
	exitedCh := c.anyProcessExited()

	for !c.allRequiredRegistered() {
		select {
		case env := <-regCh:
			var payload types.RegistrationPayload
			if err := env.DecodePayload(&payload); err != nil {
				c.logger.Warn().Err(err).Msg("failed to decode registration payload")
				continue
			}
			if err := c.applyRegisterService(payload.ServiceType, env.ServiceID); err != nil {
				return err
			}
			c.logger.Info().Str("service_type", string(payload.ServiceType)).Str("service_id", env.ServiceID).
				Msg("service registered")

		case env := <-errCh:
			return c.errorFromEnvelope(env)

		case err := <-exitedCh:
			return err

		case <-deadline:
			return aierrors.NewServiceError("", "registration", fmt.Errorf("timed out waiting for required services to register"))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) allRequiredRegistered() bool {
	for _, svc := range c.cfg.RequiredServices {
		if !c.ledger.HasRegistered(svc) {
			return false
		}
	}
	return true
}

// anyProcessExited returns a channel that fires with a descriptive
// ServiceError the first time any spawned, not-yet-registered process dies.
func (c *Controller) anyProcessExited() <-chan error {
	out := make(chan error, len(c.processes))
	for svcType, proc := range c.processes {
		svcType, proc := svcType, proc
		go func() {
			err := <-proc.Exited()
			if c.ledger.HasRegistered(svcType) {
				return
			}
			select {
			case out <- aierrors.NewServiceError(string(svcType), "startup", fmt.Errorf("process exited before registering: %w", orNil(err))):
			default:
			}
		}()
	}
	return out
}

func orNil(err error) error {
	if err == nil {
		return fmt.Errorf("exit status 0")
	}
	return err
}

// publishCommand broadcasts a CommandPayload of the given type to every
// subscribed service.
func (c *Controller) publishCommand(cmdType types.CommandType) error {
	env, err := types.NewEnvelope(types.MessageTypeCommand, c.id, types.CommandPayload{
		Command:   cmdType,
		CommandID: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	c.eventBus.Publish(fabric.Topic(types.MessageTypeCommand), env)
	c.logger.Info().Str("command", string(cmdType)).Msg("command issued")
	return nil
}

// transition validates and applies a lifecycle phase change through Raft.
func (c *Controller) transition(next Phase) error {
	current := c.ledger.Phase()
	if !CanTransition(current, next) {
		return aierrors.NewInvalidStateError(fmt.Sprintf("illegal lifecycle transition %s -> %s", current, next))
	}
	data, err := json.Marshal(setPhaseData{Phase: next})
	if err != nil {
		return err
	}
	return c.apply(Command{Op: opSetPhase, Data: data})
}

func (c *Controller) applyRegisterService(serviceType types.ServiceType, serviceID string) error {
	data, err := json.Marshal(registerServiceData{ServiceType: serviceType, ServiceID: serviceID})
	if err != nil {
		return err
	}
	return c.apply(Command{Op: opRegisterService, Data: data})
}

func (c *Controller) recordFatal(op string, cause error) {
	info := exitErrorFromServiceError(op, aierrors.NewServiceError(c.id, op, cause))
	data, err := json.Marshal(info)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal exit error")
		return
	}
	if err := c.apply(Command{Op: opRecordExitError, Data: data}); err != nil {
		c.logger.Error().Err(err).Msg("failed to record exit error")
	}
}

func (c *Controller) apply(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	future := c.raft.Apply(data, 5*time.Second)
	return future.Error()
}

// shutdownAll moves the run to STOPPING if it is not there already, issues
// the shutdown command, then stops every spawned process in turn, honoring
// the configured graceful shutdown timeout.
func (c *Controller) shutdownAll() {
	if c.ledger.Phase() != PhaseStopping {
		_ = c.transition(PhaseStopping)
	}
	_ = c.publishCommand(types.CommandTypeShutdown)

	timeout := c.cfg.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for svcType, proc := range c.processes {
		if err := proc.Stop(timeout); err != nil {
			c.logger.Warn().Err(err).Str("service_type", string(svcType)).Msg("error stopping service")
		}
	}
	_ = c.transition(PhaseShutdown)
	c.eventBus.Stop()
}

// raftRaft adapts *raft.Raft to the raftApplier interface; raft.ApplyFuture
// already satisfies raftFuture, so this is a thin type-level wrapper.
type raftRaft struct{ r *raft.Raft }

func (a raftRaft) Apply(cmd []byte, timeout time.Duration) raftFuture {
	return a.r.Apply(cmd, timeout)
}
