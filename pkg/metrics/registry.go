package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
)

// Registry holds every metric known to a run, indexed by tag, along with
// the dependency-ordering logic that determines a valid evaluation order.
// Grounded on the MustRegister idiom used for Prometheus collectors
// elsewhere in this codebase.
type Registry struct {
	mu         sync.RWMutex
	defs       map[string]Definition
	recordFns  map[string]RecordParser
	aggregates map[string]Aggregator
	derivers   map[string]Deriver
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:       make(map[string]Definition),
		recordFns:  make(map[string]RecordParser),
		aggregates: make(map[string]Aggregator),
		derivers:   make(map[string]Deriver),
	}
}

// Default is the process-wide registry built-in metrics self-register
// into via init().
var Default = NewRegistry()

// allowedDependencies is the dependency-rule table: a metric of the key
// Kind may only list RequiredMetrics of the listed Kinds.
var allowedDependencies = map[Kind][]Kind{
	KindRecord:       {KindRecord},
	KindAggregate:    {KindRecord, KindAggregate, KindSumAggregate},
	KindSumAggregate: {KindRecord},
	KindDerived:      {KindRecord, KindAggregate, KindSumAggregate, KindDerived},
}

// Register validates def against the dependency rule table and adds fn
// (record-tier parsing) to the registry under def.Tag. Returns an error on a
// duplicate tag or a rule violation; MustRegister below is the panicking
// form.
func (r *Registry) Register(def Definition, fn RecordParser) error {
	return r.register(def, fn, nil, nil)
}

// RegisterAggregate adds an AGGREGATE or SUM_AGGREGATE metric, which
// implements both the per-record parse step and the running aggregation.
func (r *Registry) RegisterAggregate(def Definition, m AggregateMetric) error {
	return r.register(def, m, m, nil)
}

// RegisterDerived adds a DERIVED metric, computed only at summarize time.
func (r *Registry) RegisterDerived(def Definition, d Deriver) error {
	return r.register(def, nil, nil, d)
}

func (r *Registry) register(def Definition, fn RecordParser, agg Aggregator, deriver Deriver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Tag == "" {
		return aierrors.NewValidationError("tag", "metric tag must not be empty")
	}
	if _, exists := r.defs[def.Tag]; exists {
		return aierrors.NewValidationError("tag", fmt.Sprintf("metric %q already registered", def.Tag))
	}

	allowed := allowedDependencies[def.Kind]
	for _, dep := range def.RequiredMetrics {
		depDef, ok := r.defs[dep]
		if !ok {
			return aierrors.NewMetricTypeError(def.Tag, fmt.Sprintf("required metric %q is not registered", dep))
		}
		if !kindAllowed(depDef.Kind, allowed) {
			return aierrors.NewMetricTypeError(def.Tag, fmt.Sprintf("%s metric cannot depend on %s metric %q", def.Kind, depDef.Kind, dep))
		}
	}

	r.defs[def.Tag] = def
	if fn != nil {
		r.recordFns[def.Tag] = fn
	}
	if agg != nil {
		r.aggregates[def.Tag] = agg
	}
	if deriver != nil {
		r.derivers[def.Tag] = deriver
	}
	return nil
}

func kindAllowed(k Kind, allowed []Kind) bool {
	for _, a := range allowed {
		if a == k {
			return true
		}
	}
	return false
}

// MustRegister is Register's panicking form, used from init() the same
// way Prometheus collectors call prometheus.MustRegister.
func (r *Registry) MustRegister(def Definition, fn RecordParser) {
	if err := r.Register(def, fn); err != nil {
		panic(err)
	}
}

// MustRegisterAggregate is RegisterAggregate's panicking form.
func (r *Registry) MustRegisterAggregate(def Definition, m AggregateMetric) {
	if err := r.RegisterAggregate(def, m); err != nil {
		panic(err)
	}
}

// MustRegisterDerived is RegisterDerived's panicking form.
func (r *Registry) MustRegisterDerived(def Definition, d Deriver) {
	if err := r.RegisterDerived(def, d); err != nil {
		panic(err)
	}
}

// Definition looks up a registered metric's Definition by tag.
func (r *Registry) Definition(tag string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[tag]
	return d, ok
}

// RecordParser returns the per-record parse function for tag, if any
// (present for RECORD, AGGREGATE, and SUM_AGGREGATE metrics).
func (r *Registry) RecordParser(tag string) (RecordParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.recordFns[tag]
	return fn, ok
}

// Aggregator returns the running aggregator for tag, if it is an
// AGGREGATE or SUM_AGGREGATE metric.
func (r *Registry) Aggregator(tag string) (Aggregator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.aggregates[tag]
	return a, ok
}

// Deriver returns the summarize-time computation for tag, if it is a
// DERIVED metric.
func (r *Registry) Deriver(tag string) (Deriver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.derivers[tag]
	return d, ok
}

// Tags returns every registered tag, unordered.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.defs))
	for tag := range r.defs {
		tags = append(tags, tag)
	}
	return tags
}

// TagsApplicableTo returns every registered tag, restricted to kinds (if
// non-empty), whose flags include every bit in required and none of the
// bits in disallowed.
func (r *Registry) TagsApplicableTo(required, disallowed Flags, kinds ...Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for tag, def := range r.defs {
		if len(kinds) > 0 && !kindAllowed(def.Kind, kinds) {
			continue
		}
		if !def.Flags.Has(required) {
			continue
		}
		if !def.Flags.Missing(disallowed) {
			continue
		}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// DependencyOrder returns tags (plus every tag they transitively require)
// sorted so that each tag appears after all of its RequiredMetrics, using
// Kahn's algorithm — the Go equivalent of Python's
// `graphlib.TopologicalSorter.static_order()`. Returns an error if tags
// reference an unregistered metric or the dependency graph contains a
// cycle.
func (r *Registry) DependencyOrder(tags []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Collect the closure of tags and everything they require.
	closure := make(map[string]bool)
	var visit func(tag string) error
	visit = func(tag string) error {
		if closure[tag] {
			return nil
		}
		def, ok := r.defs[tag]
		if !ok {
			return aierrors.NewMetricTypeError(tag, "is not registered")
		}
		closure[tag] = true
		for _, dep := range def.RequiredMetrics {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, tag := range tags {
		if err := visit(tag); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm: indegree = number of unresolved dependencies.
	indegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))
	for tag := range closure {
		def := r.defs[tag]
		indegree[tag] = len(def.RequiredMetrics)
		for _, dep := range def.RequiredMetrics {
			dependents[dep] = append(dependents[dep], tag)
		}
	}

	var ready []string
	for tag := range closure {
		if indegree[tag] == 0 {
			ready = append(ready, tag)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		tag := ready[0]
		ready = ready[1:]
		order = append(order, tag)

		for _, dependent := range dependents[tag] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(closure) {
		return nil, aierrors.NewValidationError("metrics", "dependency graph contains a cycle")
	}
	return order, nil
}
