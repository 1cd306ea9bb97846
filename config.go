package featurestream

import (
	"context"

	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
)

// Closer releases a resource once the dispatcher has stopped.
type Closer func(ctx context.Context) error

type Config struct {
	Logger logger.Logger

	// Server, when set, serves metrics and health probes for the lifetime
	// of Run and turns ready once partitions are assigned.
	Server *metrics.Server

	// Lag, when set, reports consumer lag for the lifetime of Run.
	Lag *kafka.LagReporter

	// Closers run in reverse order after the dispatcher has stopped.
	Closers []Closer
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithServer(s *metrics.Server) ConfigOption {
	return func(c *Config) {
		c.Server = s
	}
}

func WithLagReporter(r *kafka.LagReporter) ConfigOption {
	return func(c *Config) {
		c.Lag = r
	}
}

func WithCloser(fn Closer) ConfigOption {
	return func(c *Config) {
		c.Closers = append(c.Closers, fn)
	}
}

func defaultConfig() Config {
	return Config{
		Logger: logger.NewNoopLogger(),
	}
}
