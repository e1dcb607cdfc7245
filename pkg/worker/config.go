package worker

import (
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/config"
	"github.com/aiperf-project/aiperf-core/pkg/contracts"
)

// Config configures one Worker (or every Worker in a Pool, which shares a
// single Config across its members). The endpoint fields follow
// config.EndpointConfig (EndpointKind in place of its Type string), plus
// UserAgent and RequestTimeout; the worker package does not depend on config.UserConfig
// directly so it can be unit-tested without a full config tree.
type Config struct {
	EndpointKind           contracts.EndpointKind
	BaseURL                string
	CustomEndpoint         *string
	Streaming              bool
	ModelNames             []string
	ModelSelectionStrategy config.ModelSelectionStrategy
	EndpointParams         map[string]string

	UserAgent      string
	RequestTimeout time.Duration
}

func (c Config) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return "aiperf/dev"
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return 30 * time.Second
}
