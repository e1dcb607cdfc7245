package timing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/log"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// phaseExecutor runs the credit-drop loop for a single phase; it must not
// return until every credit it intends to send for the phase has been sent.
// RequestRateStrategy and FixedScheduleStrategy each supply their own.
type phaseExecutor func(ctx context.Context, stats *types.CreditPhaseStats) error

// CreditIssuingStrategy drives a benchmark run through its configured
// phases in order: for each phase, it publishes phase-start, runs the
// phase's executor to completion of sending, publishes sending-complete,
// then blocks until every sent credit has been returned (via OnCreditReturn)
// before moving to the next phase. CreditsComplete fires only once, when
// the PROFILING phase fully drains.
//
// Generalized from a logger + mutex + stopCh ticker-loop shape into a
// phase-sequenced state machine instead of a fixed-interval poll loop.
type CreditIssuingStrategy struct {
	config        Config
	creditManager CreditManager
	logger        zerolog.Logger
	executeSingle phaseExecutor

	phaseConfigs []types.CreditPhaseConfig

	mu         sync.Mutex
	phaseStats map[types.CreditPhase]*types.CreditPhaseStats

	phaseCompleteCh chan struct{}
	allCompleteCh   chan struct{}
	allCompleteOnce sync.Once
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// newBaseStrategy builds the shared state every CreditIssuingStrategy
// needs, validating that every configured phase has exactly one of a
// request count or a duration set.
func newBaseStrategy(cfg Config, cm CreditManager, executeSingle phaseExecutor, phaseConfigs []types.CreditPhaseConfig) (*CreditIssuingStrategy, error) {
	for _, pc := range phaseConfigs {
		if !pc.IsValid() {
			return nil, aierrors.NewConfigurationError(string(pc.Type), nil)
		}
	}
	return &CreditIssuingStrategy{
		config:          cfg,
		creditManager:   cm,
		logger:          log.WithComponent("timing"),
		executeSingle:   executeSingle,
		phaseConfigs:    phaseConfigs,
		phaseStats:      make(map[types.CreditPhase]*types.CreditPhaseStats),
		phaseCompleteCh: make(chan struct{}),
		allCompleteCh:   make(chan struct{}),
		stopCh:          make(chan struct{}),
	}, nil
}

// defaultPhaseConfigs builds the standard warmup+profiling phase list from
// cfg, used by every strategy unless it overrides phase setup (as
// FixedScheduleStrategy does for the profiling phase).
func defaultPhaseConfigs(cfg Config) []types.CreditPhaseConfig {
	var phases []types.CreditPhaseConfig
	if cfg.WarmupRequestCount > 0 {
		count := cfg.WarmupRequestCount
		phases = append(phases, types.CreditPhaseConfig{
			Type:                  types.CreditPhaseWarmup,
			TotalExpectedRequests: &count,
		})
	}
	count := cfg.RequestCount
	phases = append(phases, types.CreditPhaseConfig{
		Type:                  types.CreditPhaseProfiling,
		TotalExpectedRequests: &count,
	})
	return phases
}

// Start runs every configured phase to completion in order, reporting
// progress periodically, and blocks until the PROFILING phase has fully
// drained. Call from a goroutine if the caller needs to do other work
// concurrently.
func (s *CreditIssuingStrategy) Start(ctx context.Context) error {
	go s.progressReportLoop(ctx)

	for _, phaseConfig := range s.phaseConfigs {
		if err := s.executePhase(ctx, phaseConfig); err != nil {
			return err
		}
	}

	<-s.allCompleteCh
	return nil
}

// Stop signals the progress-reporting loop to exit.
func (s *CreditIssuingStrategy) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *CreditIssuingStrategy) executePhase(ctx context.Context, phaseConfig types.CreditPhaseConfig) error {
	phaseComplete := make(chan struct{})
	s.mu.Lock()
	s.phaseCompleteCh = phaseComplete
	s.mu.Unlock()

	stats := types.NewCreditPhaseStats(phaseConfig)

	s.mu.Lock()
	s.phaseStats[phaseConfig.Type] = &stats
	s.mu.Unlock()

	go func() {
		if err := s.creditManager.PublishPhaseStart(ctx, phaseConfig.Type, stats.StartNS, phaseConfig); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish phase start")
		}
	}()

	if err := s.executeSingle(ctx, &stats); err != nil {
		return err
	}

	sentEndNS := types.NowNS()
	s.mu.Lock()
	ps := s.phaseStats[phaseConfig.Type]
	ps.SentEndNS = &sentEndNS
	sent := ps.Sent
	s.mu.Unlock()

	go func() {
		if err := s.creditManager.PublishPhaseSendingComplete(ctx, phaseConfig.Type, sentEndNS, sent); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish phase sending complete")
		}
	}()

	select {
	case <-phaseComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnCreditReturn records that one credit for phase has been returned,
// completing the phase (and, for PROFILING, the whole run) once every sent
// credit has come back.
func (s *CreditIssuingStrategy) OnCreditReturn(ctx context.Context, phase types.CreditPhase) {
	s.mu.Lock()
	stats, ok := s.phaseStats[phase]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn().Str("phase", string(phase)).Msg("credit return received for unknown phase")
		return
	}
	stats.Completed++

	done := stats.IsSendingComplete() && stats.TotalExpectedRequests != nil && stats.Completed >= *stats.TotalExpectedRequests
	var endNS int64
	var completed, sent int64
	var phaseComplete chan struct{}
	if done {
		endNS = types.NowNS()
		stats.EndNS = &endNS
		completed = stats.Completed
		sent = stats.Sent
		phaseComplete = s.phaseCompleteCh
		delete(s.phaseStats, phase)
	}
	s.mu.Unlock()

	if !done {
		return
	}

	go func() {
		if err := s.creditManager.PublishPhaseComplete(ctx, phase, completed, endNS); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish phase complete")
		}
	}()
	close(phaseComplete)

	if phase == types.CreditPhaseProfiling {
		go func() {
			if err := s.creditManager.PublishCreditsComplete(ctx, sent, completed); err != nil {
				s.logger.Error().Err(err).Msg("failed to publish credits complete")
			}
		}()
		s.allCompleteOnce.Do(func() { close(s.allCompleteCh) })
	}
}

// GracePeriodComplete force-completes phase after the grace period elapses
// with credits still in flight, publishing phase-complete with whatever was
// actually returned so the run can still terminate under backpressure or
// worker failure.
func (s *CreditIssuingStrategy) GracePeriodComplete(ctx context.Context, phase types.CreditPhase) {
	s.mu.Lock()
	stats, ok := s.phaseStats[phase]
	if !ok {
		s.mu.Unlock()
		return
	}
	endNS := types.NowNS()
	stats.EndNS = &endNS
	completed := stats.Completed
	sent := stats.Sent
	phaseComplete := s.phaseCompleteCh
	delete(s.phaseStats, phase)
	s.mu.Unlock()

	s.logger.Warn().Str("phase", string(phase)).Int64("in_flight_at_force_complete", sent-completed).
		Msg("grace period elapsed with credits still in flight; force-completing phase")

	if err := s.creditManager.PublishPhaseComplete(ctx, phase, completed, endNS); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish phase complete after grace period")
	}
	close(phaseComplete)

	if phase == types.CreditPhaseProfiling {
		if err := s.creditManager.PublishCreditsComplete(ctx, sent, completed); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish credits complete after grace period")
		}
		s.allCompleteOnce.Do(func() { close(s.allCompleteCh) })
	}
}

func (s *CreditIssuingStrategy) progressReportLoop(ctx context.Context) {
	interval := s.config.ProgressReportInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportProgress(ctx)
		case <-s.allCompleteCh:
			return
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *CreditIssuingStrategy) reportProgress(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[types.CreditPhase]types.CreditPhaseStats, len(s.phaseStats))
	for phase, stats := range s.phaseStats {
		snapshot[phase] = *stats
	}
	s.mu.Unlock()

	for phase, stats := range snapshot {
		if err := s.creditManager.PublishProgress(ctx, phase, stats.Sent, stats.Completed, stats.ProgressPercent()); err != nil {
			s.logger.Error().Err(err).Msg("error publishing credit progress")
		}
	}
}
