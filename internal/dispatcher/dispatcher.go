// Package dispatcher fans a batch of article URLs out to a bounded worker pool.
package dispatcher

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

// Acquirer processes one URL to completion. *worker.Worker satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, url string) crawler.AcquireResult
}

// Pool runs batches of acquisitions with at most Size in flight.
type Pool struct {
	acquirer Acquirer
	size     int
	logger   *zap.Logger
}

// New creates a Pool. A size of zero or less means one worker per CPU.
func New(acquirer Acquirer, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{acquirer: acquirer, size: size, logger: logger}
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.size
}

type job struct {
	index int
	url   string
}

// RunBatch acquires every url and blocks until the whole batch has finished.
// Results are returned in input order. Workers are never interrupted mid-item.
func (p *Pool) RunBatch(ctx context.Context, urls []string) []crawler.AcquireResult {
	results := make([]crawler.AcquireResult, len(urls))
	if len(urls) == 0 {
		return results
	}
	workers := min(p.size, len(urls))

	jobs := make(chan job)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for j := range jobs {
				results[j.index] = p.acquirer.Acquire(ctx, j.url)
			}
		}()
	}
	for i, u := range urls {
		jobs <- job{index: i, url: u}
	}
	close(jobs)
	wg.Wait()

	p.logger.Debug("batch complete", zap.Int("size", len(urls)), zap.Int("workers", workers))
	return results
}
