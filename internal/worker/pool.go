// Package worker provides the bounded fan-out primitives the funnel runs
// on: a job pool for draining feed batches and a per-host rate limiter for
// page fetches.
package worker

import (
	"context"
	"sync"
)

// Job is one unit of funnel work, typically a single candidate item.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produces. Err reports an infrastructure fault; a
// finalized rejection is a normal result, not an error.
type Result interface {
	Err() error
}

// Pool fans a batch of jobs out over a bounded number of workers.
type Pool struct {
	workers int
}

// NewPool creates a pool. workers below 1 is treated as 1.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes the jobs and returns their results in completion order.
// Dispatch and collection run concurrently, so the batch size is not bound
// by any channel capacity. When ctx is cancelled mid-batch, jobs not yet
// dispatched are skipped and ctx.Err() is returned; in-flight jobs still
// finish and their results are included. A non-nil error therefore means
// the returned results may cover only part of the batch.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	queue := make(chan Job)
	sink := newCollector(len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				sink.add(job.Execute(ctx))
			}
		}()
	}

	var dispatchErr error
dispatch:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()

	return sink.all(), dispatchErr
}

// collector accumulates results from concurrently finishing workers.
type collector struct {
	mu      sync.Mutex
	results []Result
}

func newCollector(capacity int) *collector {
	return &collector{results: make([]Result, 0, capacity)}
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *collector) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}
