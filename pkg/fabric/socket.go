package fabric

import "time"

// SocketConfig holds the per-socket tuning parameters every fabric socket
// sets: high-water marks, keepalive, linger, and receive timeouts. There is
// no raw-socket layer underneath (the fabric
// runs over Go channels and, for cross-process transport, gRPC streams).
// Only SendHWM and RecvHWM take effect, as channel buffer sizes; Keepalive,
// Linger, RecvTimeout and Immediate are carried in the struct but no
// fabric socket reads them.
type SocketConfig struct {
	// SendHWM bounds the number of messages buffered before Send blocks
	// (PUSH/PUB) or returns a transient EAGAIN-equivalent error.
	SendHWM int
	// RecvHWM bounds the number of messages buffered for a single Broker
	// subscriber; once it is full, newly published messages are dropped for
	// that subscriber.
	RecvHWM int
	// Keepalive is the interval at which idle connections are pinged.
	Keepalive time.Duration
	// Linger is the maximum time Close waits for queued sends to flush.
	// A Linger of 0 discards unsent messages immediately on Close.
	Linger time.Duration
	// RecvTimeout bounds how long a blocking receive waits before
	// returning context.DeadlineExceeded. Zero means no timeout.
	RecvTimeout time.Duration
	// Immediate, when true, only routes messages to peers with an
	// established connection rather than queueing for not-yet-connected
	// peers.
	Immediate bool
}

// DefaultSocketConfig returns the fabric's baseline socket tuning: a
// generous send/recv high-water mark, a 30s keepalive, zero linger (drop
// queued sends on shutdown rather than block it), and immediate delivery.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		SendHWM:     1000,
		RecvHWM:     1000,
		Keepalive:   30 * time.Second,
		Linger:      0,
		RecvTimeout: 0,
		Immediate:   true,
	}
}
