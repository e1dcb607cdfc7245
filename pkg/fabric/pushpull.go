package fabric

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Queue is the fabric's PUSH/PULL implementation: many PUSH producers load
// balance work across many PULL consumers pulling from one shared channel.
// Order is preserved from a single PUSH producer; with multiple producers,
// only per-producer order is preserved.
type Queue struct {
	addr Address
	ch   chan types.Envelope
	sem  chan struct{}
}

// NewQueue creates a PUSH/PULL queue bound to addr. maxInFlight bounds the
// number of concurrent Pull handlers via a counting semaphore on the PULL
// side; zero means unbounded.
func NewQueue(addr Address, cfg SocketConfig, maxInFlight int) *Queue {
	q := &Queue{
		addr: addr,
		ch:   make(chan types.Envelope, cfg.SendHWM),
	}
	if maxInFlight > 0 {
		q.sem = make(chan struct{}, maxInFlight)
	}
	return q
}

// Push enqueues env, retrying up to 5 times at a fixed 50ms interval if the
// queue is momentarily full (the fabric's EAGAIN equivalent), and returning
// a *aierrors.CommunicationError if every retry is exhausted. The delay
// between retries does not grow.
func (q *Queue) Push(ctx context.Context, env types.Envelope) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 5),
		ctx,
	)
	op := func() error {
		select {
		case q.ch <- env:
			return nil
		default:
			return errQueueFull
		}
	}
	if err := backoff.Retry(op, policy); err != nil {
		return aierrors.NewCommunicationError("push to "+string(q.addr), err)
	}
	return nil
}

// errQueueFull marks a transient, retryable Push failure.
var errQueueFull = &transientError{"fabric: queue full"}

type transientError struct{ msg string }

func (e *transientError) Error() string { return e.msg }

// Pull blocks until a message is available or ctx is done. If the queue was
// constructed with a bounded maxInFlight, Pull acquires a semaphore slot
// before returning and the caller must call the returned release function
// once it has finished handling the message.
func (q *Queue) Pull(ctx context.Context) (types.Envelope, func(), error) {
	if q.sem != nil {
		select {
		case q.sem <- struct{}{}:
		case <-ctx.Done():
			return types.Envelope{}, func() {}, ctx.Err()
		}
	}
	release := func() {
		if q.sem != nil {
			<-q.sem
		}
	}
	select {
	case env := <-q.ch:
		return env, release, nil
	case <-ctx.Done():
		release()
		return types.Envelope{}, func() {}, ctx.Err()
	}
}

// PushPullProxy bridges a frontend queue (where producers push) to a
// backend queue (where consumers pull), acting as the load-balancing
// work-queue broker for the dataset-manager and raw-inference proxies.
type PushPullProxy struct {
	Frontend *Queue
	Backend  *Queue
	stopCh   chan struct{}
}

// NewPushPullProxy creates a proxy relaying from frontend to backend.
func NewPushPullProxy(frontend, backend *Queue) *PushPullProxy {
	return &PushPullProxy{Frontend: frontend, Backend: backend, stopCh: make(chan struct{})}
}

// Run relays messages from Frontend to Backend until ctx is done.
func (p *PushPullProxy) Run(ctx context.Context) {
	for {
		env, release, err := p.Frontend.Pull(ctx)
		if err != nil {
			return
		}
		_ = p.Backend.Push(ctx, env)
		release()
	}
}

// Stop signals Run to exit, though Run already honors ctx cancellation;
// Stop is provided for symmetry with the PUB/SUB proxy lifecycle.
func (p *PushPullProxy) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}
