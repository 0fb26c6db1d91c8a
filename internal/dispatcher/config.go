package dispatcher

import "time"

// Config tunes delivery.
type Config struct {
	// MaxConcurrent bounds handler calls in flight across all partitions.
	// Default: 10
	MaxConcurrent int
	// FailFast cancels the remaining handlers of an envelope on its first
	// handler failure. Default: false
	FailFast bool
	// RetryCount is the number of retries after a failed call. Default: 3
	RetryCount int
	// RetryDelay separates retries. Default: 100ms
	RetryDelay time.Duration
	// MaxQueueDepth bounds queued envelopes, split evenly across partitions.
	// Default: 1000
	MaxQueueDepth int
	// HandlerTimeout bounds one handler call. Default: 30s
	HandlerTimeout time.Duration
	// Partitions is the number of sequential tenant workers. Default: 4
	Partitions int
}

var DefaultConfig = Config{
	MaxConcurrent:  10,
	RetryCount:     3,
	RetryDelay:     100 * time.Millisecond,
	MaxQueueDepth:  1000,
	HandlerTimeout: 30 * time.Second,
	Partitions:     4,
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultConfig.MaxConcurrent
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultConfig.MaxQueueDepth
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultConfig.HandlerTimeout
	}
	if c.Partitions <= 0 {
		c.Partitions = DefaultConfig.Partitions
	}
	return c
}

// queueCapacity is the per-partition share of MaxQueueDepth, at least one.
func (c Config) queueCapacity() int {
	n := c.MaxQueueDepth / c.Partitions
	if n < 1 {
		return 1
	}
	return n
}
