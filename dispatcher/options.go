package dispatcher

import (
	"time"

	"github.com/coderxlab/featurestream/deadletter"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	streamsotel "github.com/coderxlab/featurestream/otel"
	"github.com/hugolhafner/dskit/backoff"
)

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

func WithTelemetry(t *streamsotel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// WithPolicy sets the handler consulted for records that fail to decode.
func WithPolicy(h errorhandler.Handler) Option {
	return func(c *Config) {
		if h != nil {
			c.Policy = h
		}
	}
}

func WithDeadLetter(s deadletter.Sink) Option {
	return func(c *Config) {
		if s != nil {
			c.DeadLetter = s
		}
	}
}

func WithPollErrorBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.PollErrorBackoff = b
		}
	}
}

// WithQueueSize sets the buffer size for partition record channels
func WithQueueSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.QueueSize = size
		}
	}
}

func WithPartitionConcurrency(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PartitionConcurrency = n
		}
	}
}

// WithCommitInterval sets the longest time resolved offsets wait before
// being committed.
func WithCommitInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommitInterval = d
		}
	}
}

// WithCommitCount sets how many resolved records trigger a commit.
func WithCommitCount(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CommitCount = n
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

func WithShutdownGrace(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ShutdownGrace = d
		}
	}
}

func WithFailFast(failFast bool) Option {
	return func(c *Config) {
		c.FailFast = failFast
	}
}

// WithBackpressure replaces the backpressure settings. Zero fields keep
// their defaults.
func WithBackpressure(bp BackpressureConfig) Option {
	return func(c *Config) {
		if bp.Window > 0 {
			c.Backpressure.Window = bp.Window
		}
		if bp.Threshold > 0 {
			c.Backpressure.Threshold = bp.Threshold
		}
		if bp.MinSamples > 0 {
			c.Backpressure.MinSamples = bp.MinSamples
		}
		if bp.PauseBase > 0 {
			c.Backpressure.PauseBase = bp.PauseBase
		}
		if bp.PauseMax > 0 {
			c.Backpressure.PauseMax = bp.PauseMax
		}
	}
}

// WithAssignmentListener registers fn to be told how many partitions this
// member owns after every rebalance.
func WithAssignmentListener(fn func(owned int)) Option {
	return func(c *Config) {
		c.OnAssignmentChange = fn
	}
}
