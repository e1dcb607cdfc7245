package timing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// creditReturner is the subset of a running strategy's API Service drives
// off the event bus. RequestRateStrategy and FixedScheduleStrategy both
// satisfy it through their embedded *CreditIssuingStrategy.
type creditReturner interface {
	Start(ctx context.Context) error
	Stop()
	OnCreditReturn(ctx context.Context, phase types.CreditPhase)
	GracePeriodComplete(ctx context.Context, phase types.CreditPhase)
}

// Service runs a CreditIssuingStrategy against the live fabric: it feeds
// every CreditReturn a Worker publishes back into the strategy, and
// force-completes a phase that finished sending but has not fully drained
// within its configured grace period, so a run can still terminate under
// worker failure or backpressure.
type Service struct {
	strategy creditReturner
	eventBus *fabric.Broker
	grace    time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	timers map[types.CreditPhase]*time.Timer
}

// NewService builds a Service driving strategy over eventBus, arming a
// gracePeriod timer (if positive) once a phase finishes sending.
func NewService(id string, strategy creditReturner, eventBus *fabric.Broker, gracePeriod time.Duration) *Service {
	return &Service{
		strategy: strategy,
		eventBus: eventBus,
		grace:    gracePeriod,
		logger:   log.WithComponent("timing_manager").With().Str("timing_manager_id", id).Logger(),
		timers:   make(map[types.CreditPhase]*time.Timer),
	}
}

// Run starts the strategy and blocks until it completes or ctx is done,
// concurrently watching the event bus for credit returns and phase
// transitions.
func (s *Service) Run(ctx context.Context) error {
	returnCh := s.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditReturn))
	defer s.eventBus.Unsubscribe(returnCh)
	sendingCompleteCh := s.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditPhaseSendingComplete))
	defer s.eventBus.Unsubscribe(sendingCompleteCh)
	phaseCompleteCh := s.eventBus.Subscribe(fabric.Topic(types.MessageTypeCreditPhaseComplete))
	defer s.eventBus.Unsubscribe(phaseCompleteCh)

	done := make(chan error, 1)
	go func() { done <- s.strategy.Start(ctx) }()

	for {
		select {
		case env := <-returnCh:
			var payload types.CreditReturnPayload
			if err := env.DecodePayload(&payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode credit return payload")
				continue
			}
			s.strategy.OnCreditReturn(ctx, payload.Phase)

		case env := <-sendingCompleteCh:
			var payload types.CreditPhaseSendingCompletePayload
			if err := env.DecodePayload(&payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode phase sending complete payload")
				continue
			}
			if s.grace > 0 {
				s.armGracePeriod(ctx, payload.Phase)
			}

		case env := <-phaseCompleteCh:
			var payload types.CreditPhaseCompletePayload
			if err := env.DecodePayload(&payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode phase complete payload")
				continue
			}
			s.disarmGracePeriod(payload.Phase)

		case err := <-done:
			s.strategy.Stop()
			return err

		case <-ctx.Done():
			s.strategy.Stop()
			return ctx.Err()
		}
	}
}

func (s *Service) armGracePeriod(ctx context.Context, phase types.CreditPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.timers[phase]; exists {
		return
	}
	s.timers[phase] = time.AfterFunc(s.grace, func() {
		s.strategy.GracePeriodComplete(ctx, phase)
		s.mu.Lock()
		delete(s.timers, phase)
		s.mu.Unlock()
	})
}

func (s *Service) disarmGracePeriod(phase types.CreditPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[phase]; ok {
		t.Stop()
		delete(s.timers, phase)
	}
}
