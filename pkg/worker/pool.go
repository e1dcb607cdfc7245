package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiperf-project/aiperf-core/pkg/contracts"
	"github.com/aiperf-project/aiperf-core/pkg/fabric"
	"github.com/aiperf-project/aiperf-core/pkg/log"
)

// Pool runs N Workers concurrently pulling from the same shared credit
// queue. N is set by the caller; Pool applies no default of its own. Generalized from a
// process manager that spawns grandchild worker processes; here all N run
// as goroutines within one process since there is no container runtime to
// isolate.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool builds a Pool of size workers, each sharing creditQueue,
// rawInference, and creditEvents.
func NewPool(
	size int,
	cfg Config,
	creditQueue *fabric.Queue,
	rawInference *fabric.Queue,
	creditEvents *fabric.Broker,
	dataset contracts.DatasetProvider,
	builder contracts.RequestBuilder,
	parser contracts.ResponseParser,
) *Pool {
	p := &Pool{}
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.workers = append(p.workers, NewWorker(id, cfg, creditQueue, rawInference, creditEvents, dataset, builder, parser))
	}
	return p
}

// Start launches every worker's Run loop in its own goroutine and returns
// immediately; call Wait to block until they all exit (i.e. ctx is done).
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
	go p.stallWatcher(ctx)
}

// Wait blocks until every worker goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// stallWatcher logs a debug-level heartbeat with the pool size every 30s,
// a background ticker loop adapted to a pool-wide liveness signal instead
// of per-container health checks. It does not track worker progress.
func (p *Pool) stallWatcher(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	logger := log.WithComponent("worker_pool")

	for {
		select {
		case <-ticker.C:
			logger.Debug().Int("pool_size", p.Size()).Msg("worker pool heartbeat")
		case <-ctx.Done():
			return
		}
	}
}
