package fabric

import (
	"sync"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// envelopeKey approximates an envelope's identity well enough to recognize
// "the same message, seen again" within one bridged connection. The wire
// format carries no dedicated message ID for normal delivery, so
// (publisher, type, timestamp) is the best available substitute; a
// same-nanosecond collision from the same publisher is not a correctness
// concern this bridge needs to guard against.
type envelopeKey struct {
	serviceID string
	msgType   types.MessageType
	ts        int64
}

func keyOf(env types.Envelope) envelopeKey {
	return envelopeKey{serviceID: env.ServiceID, msgType: env.MessageType, ts: env.TimestampNS}
}

// RelayGuard prevents a bridged Broker connection from ping-ponging a
// single publish forever: both BrokerBridge (server side) and a dialed
// mirror broker (client side, see pkg/cli) republish inbound envelopes
// onto a local Broker so in-process subscribers see them, but that same
// local Broker is also what the outbound relay half of the bridge
// subscribes to in order to forward locally-published envelopes to the
// remote peer. Without a guard, an envelope relayed in would immediately
// be picked up by the outbound relay and sent straight back out.
//
// Mark records that env was just delivered from the remote side; ShouldSkip
// reports (and consumes) whether env is one the outbound relay should
// therefore not forward back onto the same connection.
type RelayGuard struct {
	mu   sync.Mutex
	seen map[envelopeKey]struct{}
}

// NewRelayGuard builds an empty RelayGuard.
func NewRelayGuard() *RelayGuard {
	return &RelayGuard{seen: make(map[envelopeKey]struct{})}
}

// Mark records env as having just arrived from the remote peer.
func (g *RelayGuard) Mark(env types.Envelope) {
	g.mu.Lock()
	g.seen[keyOf(env)] = struct{}{}
	g.mu.Unlock()
}

// ShouldSkip reports whether env was just marked, consuming the mark if
// so (each inbound delivery suppresses at most one matching outbound echo).
func (g *RelayGuard) ShouldSkip(env types.Envelope) bool {
	k := keyOf(env)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[k]; ok {
		delete(g.seen, k)
		return true
	}
	return false
}
