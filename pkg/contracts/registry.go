package contracts

import "fmt"

// Registry resolves named plugin implementations of DatasetProvider,
// RequestBuilder, and ResponseParser by name, so cmd/aiperf can wire a
// Worker without the core depending on any concrete
// dataset or endpoint implementation (both are out of scope; see the
// package doc comment). The same map[string]Driver + RegisterDriver,
// register-by-name resolve-by-name shape used for volume drivers
// elsewhere in this codebase, applied here to three interfaces instead of
// one.
type Registry struct {
	datasetProviders map[string]DatasetProvider
	requestBuilders  map[string]RequestBuilder
	responseParsers  map[string]ResponseParser
}

// NewRegistry returns an empty Registry; an embedding application is
// expected to call RegisterDatasetProvider/RegisterRequestBuilder/
// RegisterResponseParser with its own implementations before resolving.
func NewRegistry() *Registry {
	return &Registry{
		datasetProviders: make(map[string]DatasetProvider),
		requestBuilders:  make(map[string]RequestBuilder),
		responseParsers:  make(map[string]ResponseParser),
	}
}

// RegisterDatasetProvider makes provider resolvable under name.
func (r *Registry) RegisterDatasetProvider(name string, provider DatasetProvider) {
	r.datasetProviders[name] = provider
}

// RegisterRequestBuilder makes builder resolvable under name.
func (r *Registry) RegisterRequestBuilder(name string, builder RequestBuilder) {
	r.requestBuilders[name] = builder
}

// RegisterResponseParser makes parser resolvable under name.
func (r *Registry) RegisterResponseParser(name string, parser ResponseParser) {
	r.responseParsers[name] = parser
}

// DatasetProvider resolves name, or an error naming every registered
// alternative if it is unknown.
func (r *Registry) DatasetProvider(name string) (DatasetProvider, error) {
	p, ok := r.datasetProviders[name]
	if !ok {
		return nil, fmt.Errorf("contracts: no dataset provider registered under %q (have: %v)", name, keys(r.datasetProviders))
	}
	return p, nil
}

// RequestBuilder resolves name, or an error naming every registered
// alternative if it is unknown.
func (r *Registry) RequestBuilder(name string) (RequestBuilder, error) {
	b, ok := r.requestBuilders[name]
	if !ok {
		return nil, fmt.Errorf("contracts: no request builder registered under %q (have: %v)", name, keys(r.requestBuilders))
	}
	return b, nil
}

// ResponseParser resolves name, or an error naming every registered
// alternative if it is unknown.
func (r *Registry) ResponseParser(name string) (ResponseParser, error) {
	p, ok := r.responseParsers[name]
	if !ok {
		return nil, fmt.Errorf("contracts: no response parser registered under %q (have: %v)", name, keys(r.responseParsers))
	}
	return p, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
