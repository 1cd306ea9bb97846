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

// BackpressureConfig controls when a partition stops being fetched because
// the sink is failing.
type BackpressureConfig struct {
	// Window is how far back sink attempt outcomes are considered.
	Window time.Duration
	// Threshold is the failed attempt ratio above which the partition pauses.
	Threshold float64
	// MinSamples is the number of attempts in the window below which the
	// ratio is not trusted.
	MinSamples int
	// PauseBase and PauseMax bound the exponential pause length.
	PauseBase time.Duration
	PauseMax  time.Duration
}

func defaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		Window:     10 * time.Second,
		Threshold:  0.5,
		MinSamples: 10,
		PauseBase:  500 * time.Millisecond,
		PauseMax:   30 * time.Second,
	}
}

type Config struct {
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Telemetry *streamsotel.Telemetry

	// Policy decides what happens to records that fail to decode. When nil
	// the default policy logging to Logger is used.
	Policy     errorhandler.Handler
	DeadLetter deadletter.Sink

	PollErrorBackoff backoff.Backoff

	// QueueSize is the number of fetched records buffered per partition
	// before the partition is paused.
	QueueSize int
	// PartitionConcurrency caps the records of one partition that are
	// decoded or delivered at the same time.
	PartitionConcurrency int

	CommitInterval time.Duration
	CommitCount    int
	CommitTimeout  time.Duration

	// ShutdownGrace is how long in-flight deliveries may run after a revoke
	// or shutdown before they are abandoned.
	ShutdownGrace time.Duration

	// FailFast makes Run return the first halted partition's error instead
	// of carrying on with the other partitions.
	FailFast bool

	Backpressure BackpressureConfig

	// OnAssignmentChange receives the number of owned partitions after
	// every rebalance.
	OnAssignmentChange func(owned int)
}

func defaultConfig() Config {
	return Config{
		Logger:               logger.NewNoopLogger(),
		Telemetry:            streamsotel.Noop(),
		DeadLetter:           deadletter.Noop(),
		PollErrorBackoff:     backoff.NewFixed(time.Second),
		QueueSize:            100,
		PartitionConcurrency: 16,
		CommitInterval:       5 * time.Second,
		CommitCount:          100,
		CommitTimeout:        10 * time.Second,
		ShutdownGrace:        30 * time.Second,
		Backpressure:         defaultBackpressureConfig(),
	}
}
