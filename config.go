package lanes

import (
	"time"

	"github.com/hugolhafner/go-lanes/logger"
	lanesotel "github.com/hugolhafner/go-lanes/otel"
)

type Config struct {
	// Lanes is the number of ordered queues and worker goroutines. Fixed for
	// the lifetime of the pool: changing it would remap group keys and break
	// per-group ordering.
	Lanes int

	// CommitInterval is how often the checkpoint driver looks for
	// committable offsets.
	CommitInterval time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for each worker to
	// finish its current item.
	ShutdownTimeout time.Duration

	Logger    logger.Logger
	Telemetry *lanesotel.Telemetry
}

type Option func(*Config)

func WithLanes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Lanes = n
		}
	}
}

func WithCommitInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommitInterval = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ShutdownTimeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithTelemetry(t *lanesotel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

func defaultConfig() Config {
	return Config{
		Lanes:           20,
		CommitInterval:  time.Second,
		ShutdownTimeout: 5 * time.Second,
		Logger:          logger.NewNoopLogger(),
		Telemetry:       lanesotel.NewNoopTelemetry(),
	}
}
