package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	streamsotel "github.com/coderxlab/featurestream/otel"
	"github.com/coderxlab/featurestream/record"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrAbandoned is returned when the caller's context ends before the record
// reaches a terminal outcome. The record is not delivered and must not be
// counted as resolved.
var ErrAbandoned = errors.New("delivery abandoned")

// Ack confirms a delivered record.
type Ack struct {
	DedupKey string
	Attempts int
}

type Config struct {
	Target      string
	MaxInFlight int
	// RateLimit is puts per second across all callers; zero disables it.
	RateLimit float64
	RateBurst int

	Policy  errorhandler.Handler
	KeyFunc KeyFunc

	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Telemetry *streamsotel.Telemetry
}

func defaultConfig() Config {
	return Config{
		Target:      "orders",
		MaxInFlight: 16,
		KeyFunc:     FieldsKey(),
		Logger:      logger.NewNoopLogger(),
		Telemetry:   streamsotel.Noop(),
	}
}

type Option func(*Config)

// WithTarget sets the feature group the records are written to.
func WithTarget(target string) Option {
	return func(c *Config) {
		c.Target = target
	}
}

func WithMaxInFlight(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxInFlight = n
		}
	}
}

func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = rps
		c.RateBurst = burst
	}
}

// WithPolicy sets the handler deciding what to do with a failed attempt.
// Defaults to errorhandler.NewPolicy with errorhandler.DefaultPolicyConfig.
func WithPolicy(h errorhandler.Handler) Option {
	return func(c *Config) {
		c.Policy = h
	}
}

func WithKeyFunc(fn KeyFunc) Option {
	return func(c *Config) {
		if fn != nil {
			c.KeyFunc = fn
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
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

// Client delivers FeatureRecords to a Store. One Client is shared by every
// partition worker: its in-flight cap is process wide.
type Client struct {
	store   Store
	target  string
	policy  errorhandler.Handler
	keyFunc KeyFunc
	limiter *rate.Limiter
	slots   chan struct{}

	logger  logger.Logger
	metrics *metrics.Metrics
	tel     *streamsotel.Telemetry
}

func NewClient(store Store, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Policy == nil {
		cfg.Policy = errorhandler.NewPolicy(errorhandler.DefaultPolicyConfig(), cfg.Logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = max(int(cfg.RateLimit), 1)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		store:   store,
		target:  cfg.Target,
		policy:  cfg.Policy,
		keyFunc: cfg.KeyFunc,
		limiter: limiter,
		slots:   make(chan struct{}, cfg.MaxInFlight),
		logger:  cfg.Logger.With("component", "sink-client", "target", cfg.Target),
		metrics: cfg.Metrics,
		tel:     cfg.Telemetry,
	}
}

// DedupKey returns the key Put would attach to r.
func (c *Client) DedupKey(r record.FeatureRecord) string {
	return c.keyFunc(r)
}

// InFlight is the number of puts currently holding a slot.
func (c *Client) InFlight() int {
	return len(c.slots)
}

func (c *Client) Capacity() int {
	return cap(c.slots)
}

// Saturated reports whether every in-flight slot is taken.
func (c *Client) Saturated() bool {
	return len(c.slots) >= cap(c.slots)
}

// Put delivers r, retrying as the policy decides. The same dedup key is
// sent on every attempt. Errors are *DeliveryError, or wrap ErrAbandoned
// when ctx ends first.
func (c *Client) Put(ctx context.Context, r record.FeatureRecord) (Ack, error) {
	key := c.keyFunc(r)

	ctx, span := c.tel.Tracer.Start(
		ctx, c.target+" put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			streamsotel.AttrSinkTarget.String(c.target),
			streamsotel.AttrDedupKey.String(key),
		),
	)
	defer span.End()

	ec := errorhandler.NewErrorContext(originRecord(r), nil).WithPhase(errorhandler.PhaseDelivery)

	for {
		err := c.attempt(ctx, key, r.Fields)
		if err == nil {
			span.SetAttributes(streamsotel.AttrSinkAttempt.Int(ec.Attempt))
			return Ack{DedupKey: key, Attempts: ec.Attempt}, nil
		}

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "abandoned")
			return Ack{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
		}

		ec = ec.WithError(err)
		span.RecordError(err)
		c.metrics.SinkError(c.target, ec.Kind.String())

		action := c.policy.Handle(ctx, ec)

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "abandoned")
			return Ack{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
		}

		if action.Type() == errorhandler.ActionTypeRetry {
			c.logger.Debug("Retrying put", "dedup_key", key, "attempt", ec.Attempt, "kind", ec.Kind.String())
			ec = ec.IncrementAttempt()
			continue
		}

		span.SetAttributes(
			streamsotel.AttrSinkAttempt.Int(ec.Attempt),
			streamsotel.AttrErrorKind.String(ec.Kind.String()),
			streamsotel.AttrErrorAction.String(action.Type().String()),
		)
		span.SetStatus(codes.Error, err.Error())

		return Ack{}, &DeliveryError{
			DedupKey: key,
			Attempts: ec.Attempt,
			Action:   action.Type(),
			Err:      err,
		}
	}
}

// attempt performs exactly one write. The rate limit is waited on before a
// slot is taken so waiting callers do not hold capacity.
func (c *Client) attempt(ctx context.Context, key string, fields map[string]string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.metrics.InFlight(1)
	defer func() {
		<-c.slots
		c.metrics.InFlight(-1)
	}()

	start := time.Now()
	err := c.store.PutRecord(ctx, c.target, key, fields)
	c.metrics.SinkAttempt(c.target, time.Since(start))

	return err
}

func (c *Client) Close() error {
	return c.store.Close()
}

func originRecord(r record.FeatureRecord) kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Topic:     r.Origin.Topic,
		Partition: r.Origin.Partition,
		Offset:    r.Origin.Offset,
		Timestamp: r.Origin.Timestamp,
		Key:       []byte(r.Get(record.FieldCustomerID)),
	}
}
