// Package metrics implements a three-stage metrics pipeline: a Stage-1
// Record Processor that derives per-record metric values, a Stage-2 Results
// Processor that folds RECORD values into arrays and AGGREGATE values into a
// running accumulator, and a Stage-3 Summarize pass that computes every
// DERIVED metric in dependency order.
//
// Metric definitions self-register at init() time into the dependency-graph
// registry, the same auto-registration pattern used for Prometheus
// collectors elsewhere in this codebase.
package metrics

// Kind identifies which of the three computation tiers a metric belongs to,
// governing Stage-2's dispatch and its dependency rules.
type Kind int

const (
	// KindRecord metrics are computed independently per record; their
	// Stage-2 result is the full array of per-record values.
	KindRecord Kind = iota
	// KindAggregate metrics fold each record's contribution into a single
	// running value via a declared aggregation (sum/min/max); they may
	// depend on RECORD or other AGGREGATE metrics.
	KindAggregate
	// KindSumAggregate is an AGGREGATE restricted to depend only on RECORD
	// metrics and sum-reduce its per-record contributions — the common
	// case (counters, token totals).
	KindSumAggregate
	// KindDerived metrics are computed once at summarize time from other
	// metrics' final results; they may depend on any tier.
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "RECORD"
	case KindAggregate:
		return "AGGREGATE"
	case KindSumAggregate:
		return "SUM_AGGREGATE"
	case KindDerived:
		return "DERIVED"
	default:
		return "UNKNOWN"
	}
}

// Unit is the internal numeric representation a metric's values are stored
// in (conversion to a DisplayUnit, when set, happens at presentation time,
// outside core scope).
type Unit string

const (
	UnitNanoseconds     Unit = "ns"
	UnitMilliseconds    Unit = "ms"
	UnitSeconds         Unit = "s"
	UnitTokens          Unit = "tokens"
	UnitTokensPerSecond Unit = "tokens/s"
	UnitRequests        Unit = "requests"
	UnitRequestsPerSec  Unit = "requests/s"
	UnitNone            Unit = ""
)

// Flags is a bitset of metric behavior/display flags.
type Flags uint32

const (
	FlagNone Flags = 0

	FlagErrorOnly Flags = 1 << iota
	FlagStreamingOnly
	FlagProducesTokensOnly
	FlagSupportsAudioOnly
	FlagSupportsImageOnly
	FlagSupportsReasoning
	FlagNoConsole
	FlagHidden
	FlagInternal
	FlagExperimental
	FlagLargerIsBetter
	FlagGoodput
	FlagNoIndividualRecords
	FlagTokenizesInputOnly
)

// FlagStreamingTokensOnly composes the two flags that always travel
// together for token-rate metrics that only make sense when streaming is
// enabled.
const FlagStreamingTokensOnly = FlagStreamingOnly | FlagProducesTokensOnly

// Has reports whether every bit in want is set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// HasAny reports whether any bit in want is set.
func (f Flags) HasAny(want Flags) bool { return f&want != 0 }

// Missing reports whether none of the bits in avoid are set.
func (f Flags) Missing(avoid Flags) bool { return f&avoid == 0 }
