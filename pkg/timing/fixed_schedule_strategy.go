package timing

import (
	"context"
	"sort"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// ScheduleEntry pairs a schedule timestamp (milliseconds, as loaded from
// the dataset) with the conversation it should drop a credit for.
type ScheduleEntry struct {
	TimestampMS    int64
	ConversationID string
}

// FixedScheduleStrategy replays a pre-recorded request schedule, dropping
// credits at the wall-clock offsets recorded in the schedule rather than at
// a synthetic rate.
type FixedScheduleStrategy struct {
	*CreditIssuingStrategy

	cancelStrat *CancellationStrategy

	timestampGroups map[int64][]string
	sortedKeys      []int64
	scheduleZeroMS  int64
}

// NewFixedScheduleStrategy builds a FixedScheduleStrategy from schedule,
// grouping entries by timestamp and honoring cfg.FixedScheduleEndOffset by
// truncating the sorted key list (see DESIGN.md Open Question decisions).
func NewFixedScheduleStrategy(cfg Config, cm CreditManager, schedule []ScheduleEntry) (*FixedScheduleStrategy, error) {
	if len(schedule) == 0 {
		return nil, aierrors.NewValidationError("schedule", "no schedule loaded, unable to setup fixed schedule strategy")
	}

	groups := make(map[int64][]string)
	for _, e := range schedule {
		groups[e.TimestampMS] = append(groups[e.TimestampMS], e.ConversationID)
	}

	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if cfg.FixedScheduleEndOffset != nil {
		cutoff := *cfg.FixedScheduleEndOffset
		truncated := keys[:0:0]
		for _, k := range keys {
			if k <= cutoff {
				truncated = append(truncated, k)
			}
		}
		keys = truncated
	}

	var zero int64
	switch {
	case cfg.AutoOffsetTimestamps:
		zero = keys[0]
	case cfg.FixedScheduleStartOffset != nil:
		zero = *cfg.FixedScheduleStartOffset
	default:
		zero = 0
	}

	total := int64(0)
	for _, k := range keys {
		total += int64(len(groups[k]))
	}

	s := &FixedScheduleStrategy{
		cancelStrat:     NewCancellationStrategy(cfg),
		timestampGroups: groups,
		sortedKeys:      keys,
		scheduleZeroMS:  zero,
	}

	phaseConfigs := []types.CreditPhaseConfig{{
		Type:                  types.CreditPhaseProfiling,
		TotalExpectedRequests: &total,
	}}

	base, err := newBaseStrategy(cfg, cm, s.executeSinglePhase, phaseConfigs)
	if err != nil {
		return nil, err
	}
	s.CreditIssuingStrategy = base
	return s, nil
}

func (s *FixedScheduleStrategy) executeSinglePhase(ctx context.Context, stats *types.CreditPhaseStats) error {
	start := time.Now()

	for _, ts := range s.sortedKeys {
		conversationIDs := s.timestampGroups[ts]

		offsetMS := ts - s.scheduleZeroMS
		elapsedMS := time.Since(start).Milliseconds()
		waitMS := offsetMS - elapsedMS
		if waitMS > 0 {
			select {
			case <-time.After(time.Duration(waitMS) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, conversationID := range conversationIDs {
			credit := types.Credit{
				Phase:          types.CreditPhaseProfiling,
				ConversationID: conversationID,
			}
			if s.cancelStrat.IsCancellationEnabled() && s.cancelStrat.ShouldCancelRequest() {
				credit.ShouldCancel = true
				credit.CancelAfterNS = s.cancelStrat.CancellationDelayNS()
			}
			if err := s.creditManager.DropCredit(ctx, credit); err != nil {
				return err
			}
			stats.Sent++
		}
	}
	return nil
}
