package timing

import (
	"context"

	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// FabricCreditManager is the CreditManager a running Timing Manager uses in
// production: it PUSHes CreditDrop messages onto the shared credit queue and
// PUBLISHes every phase-lifecycle event onto the shared event bus. A
// CreditIssuingStrategy is handed one of these rather than talking to
// fabric directly, keeping the pacing/bookkeeping logic testable against
// the fakeCreditManager in timing_test.go.
type FabricCreditManager struct {
	serviceID   string
	creditQueue *fabric.Queue
	eventBus    *fabric.Broker
}

// NewFabricCreditManager builds a FabricCreditManager identified by
// serviceID, pushing credits onto creditQueue and publishing lifecycle
// events onto eventBus.
func NewFabricCreditManager(serviceID string, creditQueue *fabric.Queue, eventBus *fabric.Broker) *FabricCreditManager {
	return &FabricCreditManager{serviceID: serviceID, creditQueue: creditQueue, eventBus: eventBus}
}

// DropCredit stamps credit with the current time and pushes it to the
// shared credit queue for a Worker to pull.
func (m *FabricCreditManager) DropCredit(ctx context.Context, credit types.Credit) error {
	now := types.NowNS()
	credit.CreditDropNS = &now
	env, err := types.NewEnvelope(types.MessageTypeCreditDrop, m.serviceID, types.CreditDropPayload{
		Credit:      credit,
		TimestampNS: now,
	})
	if err != nil {
		return err
	}
	return m.creditQueue.Push(ctx, env)
}

func (m *FabricCreditManager) publish(msgType types.MessageType, payload any) error {
	env, err := types.NewEnvelope(msgType, m.serviceID, payload)
	if err != nil {
		return err
	}
	m.eventBus.Publish(fabric.Topic(msgType), env)
	return nil
}

// PublishPhaseStart announces that phase has begun issuing credits.
func (m *FabricCreditManager) PublishPhaseStart(_ context.Context, phase types.CreditPhase, _ int64, cfg types.CreditPhaseConfig) error {
	return m.publish(types.MessageTypeCreditPhaseStart, types.CreditPhaseStartPayload{Phase: phase, Config: &cfg})
}

// PublishPhaseSendingComplete announces that every credit intended for
// phase has been issued.
func (m *FabricCreditManager) PublishPhaseSendingComplete(_ context.Context, phase types.CreditPhase, _, sent int64) error {
	return m.publish(types.MessageTypeCreditPhaseSendingComplete, types.CreditPhaseSendingCompletePayload{Phase: phase, TotalSent: sent})
}

// PublishPhaseComplete announces that phase has fully drained.
func (m *FabricCreditManager) PublishPhaseComplete(_ context.Context, phase types.CreditPhase, completed, _ int64) error {
	return m.publish(types.MessageTypeCreditPhaseComplete, types.CreditPhaseCompletePayload{Phase: phase, TotalReturned: completed})
}

// PublishProgress announces phase's current sent/completed counters.
func (m *FabricCreditManager) PublishProgress(_ context.Context, phase types.CreditPhase, sent, completed int64, progressPercent *float64) error {
	return m.publish(types.MessageTypeCreditPhaseProgress, types.CreditPhaseProgressPayload{
		Phase: phase, Sent: sent, Completed: completed, ProgressPercent: progressPercent,
	})
}

// PublishCreditsComplete announces that the PROFILING phase has fully
// drained, the sole trigger for run teardown.
func (m *FabricCreditManager) PublishCreditsComplete(_ context.Context, totalSent, totalReturned int64) error {
	return m.publish(types.MessageTypeCreditsComplete, types.CreditsCompletePayload{TotalSent: totalSent, TotalReturned: totalReturned})
}
