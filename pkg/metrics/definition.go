package metrics

// Definition is a metric's static identity and display metadata, grounded
// on the fields `original_source/aiperf/metrics/base_metric.py` attaches as
// class attributes (tag, header, unit, flags, required_metrics) and
// re-expressed as plain struct fields since Go has no subclass-level
// metadata mechanism.
type Definition struct {
	// Tag is the stable machine-readable identifier (e.g. "ttft"),
	// used as the key throughout the registry, RecordValues, and
	// ResultValues maps.
	Tag string
	// Header is the human-readable column/label name shown in reports.
	Header string
	// ShortHeader is an abbreviated form for narrow displays; empty
	// means "use Header".
	ShortHeader string
	// ShortHeaderHideUnit suppresses the unit suffix in narrow displays
	// (e.g. console tables that already have a unit column).
	ShortHeaderHideUnit bool
	// Unit is the native unit values are stored and computed in.
	Unit Unit
	// DisplayUnit overrides Unit for presentation only; empty means
	// "display in Unit". Conversion is a presentation concern left to
	// callers outside this package.
	DisplayUnit Unit
	// DisplayOrder is an optional sort key for report ordering; nil
	// means "no preference".
	DisplayOrder *int
	// Flags is the OR of the behavior/visibility flags that apply to
	// this metric.
	Flags Flags
	// RequiredMetrics lists the tags this metric's computation reads
	// from, validated against Kind's allowed-dependency rule at
	// registration time and used to produce a topological evaluation
	// order.
	RequiredMetrics []string
	// Kind is the computation tier this metric belongs to.
	Kind Kind
}

// HasFlag reports whether the definition carries every flag in want.
func (d Definition) HasFlag(want Flags) bool { return d.Flags.Has(want) }
