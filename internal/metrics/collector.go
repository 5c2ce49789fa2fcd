// Package metrics aggregates pipeline counters and fans them out to recorders.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

const latencyAlpha = 0.2

// Snapshot is a point-in-time view of pipeline health.
type Snapshot struct {
	ThroughputPerSecond float64   `json:"throughputPerSecond"`
	AvgProcessingTimeMs float64   `json:"avgProcessingTimeMs"`
	ErrorRate           float64   `json:"errorRate"`
	QueueDepth          int       `json:"queueDepth"`
	TotalProcessed      int64     `json:"totalProcessed"`
	TotalErrors         int64     `json:"totalErrors"`
	SampledAt           time.Time `json:"sampledAt"`
}

// ErrorRate is errors / (processed + errors), zero when nothing finished.
func ErrorRate(processed, errors int64) float64 {
	total := processed + errors
	if total <= 0 {
		return 0
	}
	return float64(errors) / float64(total)
}

// Healthy reports error rate and queue depth under the policy thresholds.
func Healthy(s Snapshot, policy decision.HealthPolicy, maxConcurrent int) bool {
	return s.ErrorRate < policy.MaxErrorRate &&
		float64(s.QueueDepth) < float64(maxConcurrent)*policy.MaxQueueRatio
}

// Collector holds the running totals and samples them on an interval.
type Collector struct {
	processed atomic.Int64
	errors    atomic.Int64

	mu            sync.Mutex
	avgMs         float64
	seeded        bool
	throughput    float64
	prevProcessed int64
	prevAt        time.Time
	last          Snapshot

	depth    func() int
	interval time.Duration
	onSample func(Snapshot)
	now      func() time.Time
	logger   logr.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
}

type CollectorOption func(*Collector)

// WithSampleHook is called with every periodic snapshot.
func WithSampleHook(fn func(Snapshot)) CollectorOption {
	return func(c *Collector) { c.onSample = fn }
}

func WithCollectorLogger(l logr.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

func WithCollectorClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCollector(depth func() int, interval time.Duration, opts ...CollectorOption) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if depth == nil {
		depth = func() int { return 0 }
	}
	c := &Collector{
		depth:    depth,
		interval: interval,
		now:      time.Now,
		logger:   logr.Discard(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithName("metrics")
	c.prevAt = c.now()
	return c
}

// RecordSuccess counts a resolved decision.
func (c *Collector) RecordSuccess() {
	c.processed.Add(1)
}

// RecordError counts a decision that terminated without a result.
func (c *Collector) RecordError() {
	c.errors.Add(1)
}

// ObserveLatency folds one processing time into the moving average.
func (c *Collector) ObserveLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		c.avgMs = ms
		c.seeded = true
		return
	}
	c.avgMs = latencyAlpha*ms + (1-latencyAlpha)*c.avgMs
}

// Snapshot reads the current totals. Throughput is the rate of the last window.
func (c *Collector) Snapshot() Snapshot {
	processed := c.processed.Load()
	errs := c.errors.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ThroughputPerSecond: c.throughput,
		AvgProcessingTimeMs: c.avgMs,
		ErrorRate:           ErrorRate(processed, errs),
		QueueDepth:          c.depth(),
		TotalProcessed:      processed,
		TotalErrors:         errs,
		SampledAt:           c.last.SampledAt,
	}
}

// Sample closes the current window and recomputes throughput.
func (c *Collector) Sample() Snapshot {
	now := c.now()
	processed := c.processed.Load()
	errs := c.errors.Load()

	c.mu.Lock()
	elapsed := now.Sub(c.prevAt).Seconds()
	if elapsed > 0 {
		c.throughput = float64(processed-c.prevProcessed) / elapsed
	}
	c.prevProcessed = processed
	c.prevAt = now
	c.last = Snapshot{
		ThroughputPerSecond: c.throughput,
		AvgProcessingTimeMs: c.avgMs,
		ErrorRate:           ErrorRate(processed, errs),
		QueueDepth:          c.depth(),
		TotalProcessed:      processed,
		TotalErrors:         errs,
		SampledAt:           now,
	}
	s := c.last
	c.mu.Unlock()
	return s
}

// Start samples every interval until Stop or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.tick()
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Collector) tick() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("%v", r), "metrics sample panicked")
		}
	}()
	s := c.Sample()
	c.logger.V(logging.VERBOSE).Info("metrics sampled",
		"throughput", s.ThroughputPerSecond,
		"avgMs", s.AvgProcessingTimeMs,
		"errorRate", s.ErrorRate,
		"queueDepth", s.QueueDepth,
	)
	if c.onSample != nil {
		c.onSample(s)
	}
}

func (c *Collector) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	close(c.stopChan)
	c.wg.Wait()
}
