package mockkafka

import "time"

type Option func(*Consumer)

// WithMaxPollRecords caps how many records a single Poll returns.
func WithMaxPollRecords(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithPollDelay makes every Poll wait before returning, simulating broker
// latency.
func WithPollDelay(d time.Duration) Option {
	return func(c *Consumer) {
		c.pollDelay = d
	}
}

// WithPollError injects an error source for Poll; return nil to succeed.
func WithPollError(f func() error) Option {
	return func(c *Consumer) {
		c.pollErr = f
	}
}

// WithCommitError injects an error source for CommitOffsets.
func WithCommitError(f func() error) Option {
	return func(c *Consumer) {
		c.commitErr = f
	}
}
