// Package dispatcher runs a fixed pool of workers over one frontier.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/worker"
)

// Runner is one pool member. *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context) (worker.Stats, error)
}

// Dispatcher fans a run out to a fixed set of workers.
type Dispatcher struct {
	workers []Runner
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(workers []Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: workers,
		logger:  logger,
	}
}

// Size reports the number of workers in the pool.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts every worker and blocks until all of them have returned. The
// first worker error cancels the others; they stop before their next fetch.
// Stats from every worker are summed, including those that stopped early.
func (d *Dispatcher) Run(ctx context.Context) (worker.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    worker.Stats
		firstErr error
	)
	for i, w := range d.workers {
		wg.Add(1)
		go func(index int, wk Runner) {
			defer wg.Done()
			stats, err := wk.Run(ctx)

			mu.Lock()
			defer mu.Unlock()
			total.Add(stats)
			if err != nil && firstErr == nil {
				firstErr = err
				d.logger.Warn("worker failed; canceling run", zap.Int("worker", index), zap.Error(err))
				cancel()
			}
		}(i, w)
	}
	wg.Wait()
	return total, firstErr
}
