package featurestream

import (
	"context"
	"fmt"

	"github.com/coderxlab/featurestream/config"
	"github.com/coderxlab/featurestream/deadletter"
	"github.com/coderxlab/featurestream/dispatcher"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	streamsotel "github.com/coderxlab/featurestream/otel"
	"github.com/coderxlab/featurestream/record"
	"github.com/coderxlab/featurestream/sink"
	"github.com/coderxlab/featurestream/sink/firestorestore"
	"github.com/coderxlab/featurestream/sink/redisstore"
	"github.com/hugolhafner/dskit/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "featurestream"

// Build wires an Application from cfg: the kafka client, the feature store,
// the sink client, the dead-letter sink, tracing, metrics and the dispatcher.
// Resources created before a failure are released.
func Build(ctx context.Context, cfg config.Config, l logger.Logger) (app *Application, err error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	var closers []Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i](context.Background())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)
	server := metrics.NewServer(cfg.Observability.MetricsAddr, reg)

	tel, shutdownTracing, err := streamsotel.SetupTracing(ctx, streamsotel.TracingConfig{
		Endpoint:    cfg.Observability.TracingEndpoint,
		ServiceName: serviceName,
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	closers = append(closers, shutdownTracing)

	client, err := kafka.NewKgoClient(
		kafka.WithBootstrapServers(cfg.Kafka.Brokers),
		kafka.WithGroupID(cfg.Kafka.GroupID),
		kafka.WithClientID(cfg.Kafka.ClientID),
		kafka.WithStartOffset(kafka.StartOffset(cfg.Kafka.StartOffset)),
		kafka.WithMaxPollRecords(cfg.Kafka.BatchSize),
		kafka.WithPollTimeout(cfg.Kafka.PollTimeout),
		kafka.WithSessionTimeout(cfg.Kafka.SessionTimeout),
		kafka.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	closers = append(closers, func(ctx context.Context) error {
		// dead letters may still be buffered
		if err := client.Flush(ctx); err != nil {
			l.Warn("Failed to flush producer", "error", err)
		}
		client.Close()
		return nil
	})

	store, err := openStore(ctx, cfg.Sink, l)
	if err != nil {
		return nil, err
	}

	policy := errorhandler.NewPolicy(errorhandler.PolicyConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: backoff.NewExponential(
			backoff.WithInitialInterval(cfg.Retry.BackoffBase),
			backoff.WithMaxInterval(cfg.Retry.BackoffMax),
			backoff.WithJitter(cfg.Retry.Jitter),
		),
	}, l)

	sinkOpts := []sink.Option{
		sink.WithTarget(cfg.Sink.Target),
		sink.WithMaxInFlight(cfg.Sink.MaxInFlight),
		sink.WithPolicy(policy),
		sink.WithKeyFunc(sink.KeyFuncFor(sink.DedupStrategy(cfg.Sink.Dedup), cfg.Sink.DedupFields...)),
		sink.WithLogger(l),
		sink.WithMetrics(m),
		sink.WithTelemetry(tel),
	}
	if cfg.Sink.RateLimit > 0 {
		sinkOpts = append(sinkOpts, sink.WithRateLimit(cfg.Sink.RateLimit, cfg.Sink.RateBurst))
	}
	sinkClient := sink.NewClient(store, sinkOpts...)
	closers = append(closers, func(context.Context) error { return sinkClient.Close() })

	decoderOpts := []record.DecoderOption{record.WithEventTimeField(cfg.Record.EventTimeField)}
	if len(cfg.Record.RequiredFields) > 0 {
		decoderOpts = append(decoderOpts, record.WithRequiredFields(cfg.Record.RequiredFields...))
	}

	d := dispatcher.New(
		client,
		record.NewDecoder(decoderOpts...),
		sinkClient,
		dispatcher.WithLogger(l),
		dispatcher.WithMetrics(m),
		dispatcher.WithTelemetry(tel),
		dispatcher.WithPolicy(policy),
		dispatcher.WithDeadLetter(newDeadLetter(client, cfg.DeadLetter, l, m, tel)),
		dispatcher.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatcher.WithPartitionConcurrency(cfg.Dispatch.PartitionConcurrency),
		dispatcher.WithCommitInterval(cfg.Dispatch.CommitInterval),
		dispatcher.WithCommitCount(cfg.Dispatch.CommitCount),
		dispatcher.WithShutdownGrace(cfg.Dispatch.ShutdownGrace),
		dispatcher.WithFailFast(cfg.Dispatch.FailFast),
		dispatcher.WithBackpressure(dispatcher.BackpressureConfig{
			Window:     cfg.Backpressure.Window,
			Threshold:  cfg.Backpressure.Threshold,
			MinSamples: cfg.Backpressure.MinSamples,
			PauseBase:  cfg.Backpressure.PauseBase,
			PauseMax:   cfg.Backpressure.PauseMax,
		}),
		dispatcher.WithAssignmentListener(func(owned int) {
			if owned > 0 {
				server.SetReady(true)
			}
		}),
	)

	lag := kafka.NewLagReporter(
		client.Underlying(),
		cfg.Kafka.GroupID,
		cfg.Observability.LagInterval,
		func(tp kafka.TopicPartition, n int64) { m.Lag(tp.Topic, tp.Partition, n) },
		l,
	)

	return NewApplicationWithConfig(d, []string{cfg.Kafka.Topic}, Config{
		Logger:  l,
		Server:  server,
		Lag:     lag,
		Closers: closers,
	}), nil
}

func openStore(ctx context.Context, cfg config.SinkConfig, l logger.Logger) (sink.Store, error) {
	switch cfg.Kind {
	case "firestore":
		store, err := firestorestore.New(ctx, firestorestore.Config{
			ProjectID:        cfg.Firestore.ProjectID,
			CollectionPrefix: cfg.Firestore.CollectionPrefix,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return store, nil

	default:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, l)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	}
}

func newDeadLetter(
	p kafka.Producer, cfg config.DeadLetterConfig, l logger.Logger, m *metrics.Metrics, tel *streamsotel.Telemetry,
) deadletter.Sink {
	if cfg.Topic == "" {
		return deadletter.Log(l)
	}
	return deadletter.NewKafkaSink(
		p,
		cfg.Topic,
		deadletter.WithEncoding(deadletter.Encoding(cfg.Encoding)),
		deadletter.WithSource(cfg.Source),
		deadletter.WithLogger(l),
		deadletter.WithMetrics(m),
		deadletter.WithTelemetry(tel),
	)
}
