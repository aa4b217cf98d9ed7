package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	mu      sync.Mutex
	batches map[string]*batchCounter
}

type batchCounter struct {
	Runs      uint64 `json:"runs"`
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
}

func New() *Collector {
	return &Collector{batches: map[string]*batchCounter{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// ObserveBatch counts one run of a batch operation such as approve or reconcile.
func (c *Collector) ObserveBatch(operation string, processed, skipped int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	counter, ok := c.batches[operation]
	if !ok {
		counter = &batchCounter{}
		c.batches[operation] = counter
	}
	counter.Runs++
	counter.Processed += uint64(max(processed, 0))
	counter.Skipped += uint64(max(skipped, 0))
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	batches := make(map[string]batchCounter, len(c.batches))
	for op, counter := range c.batches {
		batches[op] = *counter
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":    total,
		"errorsTotal":      errs,
		"rateLimitedTotal": limited,
		"avgDurationMs":    avg,
		"totalDurationMs":  totalMs,
		"batches":          batches,
	}
}
