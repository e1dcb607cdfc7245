package timing

import (
	"context"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// CreditManager is the fabric-facing collaborator a CreditIssuingStrategy
// drives: it owns the actual PUSH of CreditDrop messages and the PUB of
// phase-lifecycle events, while the strategy owns only the pacing and
// completion bookkeeping.
type CreditManager interface {
	DropCredit(ctx context.Context, credit types.Credit) error
	PublishPhaseStart(ctx context.Context, phase types.CreditPhase, startNS int64, cfg types.CreditPhaseConfig) error
	PublishPhaseSendingComplete(ctx context.Context, phase types.CreditPhase, sentEndNS, sent int64) error
	PublishPhaseComplete(ctx context.Context, phase types.CreditPhase, completed, endNS int64) error
	PublishProgress(ctx context.Context, phase types.CreditPhase, sent, completed int64, progressPercent *float64) error
	PublishCreditsComplete(ctx context.Context, totalSent, totalReturned int64) error
}
