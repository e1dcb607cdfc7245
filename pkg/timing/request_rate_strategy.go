package timing

import (
	"context"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// RequestRateStrategy issues credits at a rate governed by a
// RequestRateGenerator (constant, Poisson, or concurrency-burst), optionally
// bounded by a concurrency semaphore so no more than N credits are ever
// in flight at once.
type RequestRateStrategy struct {
	*CreditIssuingStrategy

	generator  RequestRateGenerator
	semaphore  chan struct{}
	cancelStrat *CancellationStrategy
}

// NewRequestRateStrategy builds a RequestRateStrategy from cfg.
func NewRequestRateStrategy(cfg Config, cm CreditManager) (*RequestRateStrategy, error) {
	generator, err := NewRequestRateGenerator(cfg)
	if err != nil {
		return nil, err
	}

	s := &RequestRateStrategy{
		generator:   generator,
		cancelStrat: NewCancellationStrategy(cfg),
	}
	if cfg.Concurrency != nil && *cfg.Concurrency > 0 {
		s.semaphore = make(chan struct{}, *cfg.Concurrency)
	}

	base, err := newBaseStrategy(cfg, cm, s.executeSinglePhase, defaultPhaseConfigs(cfg))
	if err != nil {
		return nil, err
	}
	s.CreditIssuingStrategy = base
	return s, nil
}

// OnCreditReturn releases a concurrency slot (if concurrency is bounded)
// before delegating to the base phase-completion bookkeeping, mirroring the
// original's override that releases the semaphore ahead of calling super().
func (s *RequestRateStrategy) OnCreditReturn(ctx context.Context, phase types.CreditPhase) {
	if s.semaphore != nil {
		<-s.semaphore
	}
	s.CreditIssuingStrategy.OnCreditReturn(ctx, phase)
}

func (s *RequestRateStrategy) executeSinglePhase(ctx context.Context, stats *types.CreditPhaseStats) error {
	for {
		should, err := stats.ShouldSend()
		if err != nil {
			return err
		}
		if !should {
			return nil
		}

		if s.semaphore != nil {
			select {
			case s.semaphore <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			should, err = stats.ShouldSend()
			if err != nil {
				<-s.semaphore
				return err
			}
			if !should {
				<-s.semaphore
				return nil
			}
		}

		credit := types.Credit{Phase: stats.Type}
		if s.cancelStrat.IsCancellationEnabled() && s.cancelStrat.ShouldCancelRequest() {
			credit.ShouldCancel = true
			credit.CancelAfterNS = s.cancelStrat.CancellationDelayNS()
		}

		if err := s.creditManager.DropCredit(ctx, credit); err != nil {
			return err
		}
		stats.Sent++

		if should, err = stats.ShouldSend(); err != nil {
			return err
		} else if !should {
			return nil
		}

		if interval := s.generator.NextInterval(); interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
