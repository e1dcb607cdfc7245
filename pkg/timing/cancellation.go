package timing

import (
	"math/rand"
	"time"
)

// CancellationStrategy decides, per credit, whether the worker handling it
// should cancel the in-flight request and after how long. It owns its own
// seeded PRNG, independent of the rate generator's, so enabling
// cancellation never perturbs the inter-arrival timing sequence for a given
// seed.
type CancellationStrategy struct {
	rng            *rand.Rand
	rate           float64
	delayNS        int64
}

// NewCancellationStrategy builds a CancellationStrategy from cfg. A nil
// RandomSeed produces a strategy seeded from the current time, matching
// Python's random.Random(None) fallback.
func NewCancellationStrategy(cfg Config) *CancellationStrategy {
	var seed int64
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	} else {
		seed = time.Now().UnixNano()
	}
	return &CancellationStrategy{
		rng:     rand.New(rand.NewSource(seed)),
		rate:    cfg.RequestCancellationRatePercent / 100.0,
		delayNS: int64(cfg.RequestCancellationDelaySec * float64(time.Second)),
	}
}

// ShouldCancelRequest reports whether the next credit should be issued with
// cancellation armed.
func (c *CancellationStrategy) ShouldCancelRequest() bool {
	if c.rate == 0 {
		return false
	}
	return c.rng.Float64() < c.rate
}

// CancellationDelayNS returns the fixed delay, in nanoseconds, after which a
// cancelled request should be aborted.
func (c *CancellationStrategy) CancellationDelayNS() int64 {
	return c.delayNS
}

// IsCancellationEnabled reports whether the cancellation rate is positive;
// the delay is not checked.
func (c *CancellationStrategy) IsCancellationEnabled() bool {
	return c.rate > 0
}
