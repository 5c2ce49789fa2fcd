package decision

import (
	"runtime"
	"time"
)

// DefaultConfig returns the baseline pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentDecisions: 10000,
		BatchSize:              1000,
		ProcessingTimeout:      30 * time.Second,
		BackpressureThreshold:  0.8,
		BatchInterval:          100 * time.Millisecond,
		MetricsInterval:        5 * time.Second,
		WorkerPoolSize:         runtime.NumCPU(),
		ShutdownTimeout:        30 * time.Second,
		ResultCacheSize:        50000,
		ResultCacheTTL:         30 * time.Minute,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			Backoff:     BackoffLinear,
			BaseDelay:   time.Second,
		},
		Health: HealthPolicy{
			MaxErrorRate:  0.05,
			MaxQueueRatio: 0.9,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrentDecisions <= 0 {
		c.MaxConcurrentDecisions = def.MaxConcurrentDecisions
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = def.ProcessingTimeout
	}
	if c.BackpressureThreshold <= 0 || c.BackpressureThreshold > 1 {
		c.BackpressureThreshold = def.BackpressureThreshold
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = def.BatchInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = def.WorkerPoolSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.ResultCacheSize <= 0 {
		c.ResultCacheSize = def.ResultCacheSize
	}
	if c.ResultCacheTTL <= 0 {
		c.ResultCacheTTL = def.ResultCacheTTL
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.Backoff == "" {
		c.Retry.Backoff = def.Retry.Backoff
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if c.Health.MaxErrorRate <= 0 {
		c.Health.MaxErrorRate = def.Health.MaxErrorRate
	}
	if c.Health.MaxQueueRatio <= 0 {
		c.Health.MaxQueueRatio = def.Health.MaxQueueRatio
	}
	if c.RequiredMarkers != nil {
		c.RequiredMarkers = append([]string(nil), c.RequiredMarkers...)
	}
	return c
}
