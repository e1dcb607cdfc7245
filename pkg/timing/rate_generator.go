package timing

import (
	"math/rand"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
)

// RequestRateGenerator produces the inter-arrival delay before the next
// credit drop within a phase.
type RequestRateGenerator interface {
	NextInterval() time.Duration
}

// NewRequestRateGenerator builds the RequestRateGenerator matching cfg's
// RequestRateMode.
func NewRequestRateGenerator(cfg Config) (RequestRateGenerator, error) {
	switch cfg.RequestRateMode {
	case RequestRateModePoisson:
		return newPoissonRateGenerator(cfg)
	case RequestRateModeConstant:
		return newConstantRateGenerator(cfg)
	case RequestRateModeConcurrencyBurst:
		return newConcurrencyBurstRateGenerator(cfg)
	default:
		return nil, aierrors.NewConfigurationError("request_rate_mode", nil)
	}
}

// poissonRateGenerator draws exponentially distributed inter-arrival times,
// modeling a Poisson arrival process at a target rate (requests/sec).
type poissonRateGenerator struct {
	rng  *rand.Rand
	rate float64
}

func newPoissonRateGenerator(cfg Config) (*poissonRateGenerator, error) {
	if cfg.RequestRate == nil || *cfg.RequestRate <= 0 {
		return nil, aierrors.NewValidationError("request_rate", "must be set and greater than 0 for poisson mode")
	}
	var seed int64
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	} else {
		seed = time.Now().UnixNano()
	}
	return &poissonRateGenerator{rng: rand.New(rand.NewSource(seed)), rate: *cfg.RequestRate}, nil
}

// NextInterval draws from an exponential distribution with parameter rate,
// equivalent to Python's random.expovariate(lambd).
func (g *poissonRateGenerator) NextInterval() time.Duration {
	seconds := g.rng.ExpFloat64() / g.rate
	return time.Duration(seconds * float64(time.Second))
}

// constantRateGenerator always returns the same fixed period.
type constantRateGenerator struct {
	period time.Duration
}

func newConstantRateGenerator(cfg Config) (*constantRateGenerator, error) {
	if cfg.RequestRate == nil || *cfg.RequestRate <= 0 {
		return nil, aierrors.NewValidationError("request_rate", "must be set and greater than 0 for constant mode")
	}
	return &constantRateGenerator{period: time.Duration(float64(time.Second) / *cfg.RequestRate)}, nil
}

func (g *constantRateGenerator) NextInterval() time.Duration { return g.period }

// concurrencyBurstRateGenerator issues credits as fast as the concurrency
// semaphore allows, with no delay between drops.
type concurrencyBurstRateGenerator struct{}

func newConcurrencyBurstRateGenerator(cfg Config) (*concurrencyBurstRateGenerator, error) {
	if cfg.Concurrency == nil || *cfg.Concurrency < 1 {
		return nil, aierrors.NewValidationError("concurrency", "must be set and greater than 0 for concurrency_burst mode")
	}
	if cfg.RequestRate != nil {
		return nil, aierrors.NewValidationError("request_rate", "must be unset for concurrency_burst mode")
	}
	return &concurrencyBurstRateGenerator{}, nil
}

func (g *concurrencyBurstRateGenerator) NextInterval() time.Duration { return 0 }
