// Package worker dispatches due account deletion jobs to the deletion executor.
package worker

import (
	"time"
)

// DispatchConfig holds configuration for the dispatch job.
type DispatchConfig struct {
	// BatchSize is the maximum number of jobs claimed per run.
	// Default: 100
	BatchSize int

	// Concurrency is the number of concurrent publish operations.
	// Default: 4
	Concurrency int

	// PublishTimeout bounds each publish attempt.
	// Default: 10 seconds
	PublishTimeout time.Duration

	// PublishRetries is the number of retries after a failed publish to the
	// executor target, before falling back to the dead-letter target.
	// Default: 3
	PublishRetries uint64

	// RetryInterval is the initial backoff between publish retries.
	// Default: 200ms
	RetryInterval time.Duration
}

// DefaultDispatchConfig returns the default dispatch configuration.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:      100,
		Concurrency:    4,
		PublishTimeout: 10 * time.Second,
		PublishRetries: 3,
		RetryInterval:  200 * time.Millisecond,
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	def := DefaultDispatchConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	if c.PublishRetries == 0 {
		c.PublishRetries = def.PublishRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	return c
}
