package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-lanes/logger"
)

type Config struct {
	// PollErrorBackoff paces retries after a failed Poll.
	PollErrorBackoff backoff.Backoff

	// RejectedBackoff paces resubmission of records the strategy rejected
	// while shutting down.
	RejectedBackoff backoff.Backoff

	// PauseAbove is the total queued-item count at which all assigned
	// partitions are paused. Consumption resumes once the queues drain to
	// half of it.
	PauseAbove int

	// DrainTimeout bounds the final flush during shutdown.
	DrainTimeout time.Duration

	// CommitTimeout bounds each offset commit issued by the checkpoint
	// driver's commit function.
	CommitTimeout time.Duration

	Logger logger.Logger
}

type Option func(*Config)

func WithPollErrorBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.PollErrorBackoff = b
		}
	}
}

func WithRejectedBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.RejectedBackoff = b
		}
	}
}

func WithPauseAbove(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PauseAbove = n
		}
	}
}

func WithDrainTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DrainTimeout = d
		}
	}
}

func WithCommitTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommitTimeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func defaultConfig() Config {
	return Config{
		PollErrorBackoff: backoff.NewFixed(time.Second),
		RejectedBackoff:  backoff.NewFixed(100 * time.Millisecond),
		PauseAbove:       10000,
		DrainTimeout:     30 * time.Second,
		CommitTimeout:    10 * time.Second,
		Logger:           logger.NewNoopLogger(),
	}
}
