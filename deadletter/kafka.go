package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	streamsotel "github.com/coderxlab/featurestream/otel"
)

const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorTimestamp    = "x-error-timestamp"
	HeaderErrorAttempt      = "x-error-attempt"
	HeaderErrorPhase        = "x-error-phase"
	HeaderErrorKind         = "x-error-kind"
	HeaderErrorMessage      = "x-error-message"
)

// EventType is the CloudEvents type of dead-letter envelopes.
const EventType = "io.featurestream.deadletter.v1"

type Encoding string

const (
	// EncodingHeaders forwards the original bytes with x-original-* and
	// x-error-* headers.
	EncodingHeaders Encoding = "headers"
	// EncodingCloudEvents wraps the original bytes in a structured
	// CloudEvents JSON envelope.
	EncodingCloudEvents Encoding = "cloudevents"
)

type KafkaConfig struct {
	Topic    string
	Encoding Encoding
	Source   string
	Timeout  time.Duration
	Logger   logger.Logger
	Metrics  *metrics.Metrics

	// Telemetry stamps the trace context of the failed record's span onto
	// the dead letter.
	Telemetry *streamsotel.Telemetry

	now func() time.Time
}

type KafkaOption func(*KafkaConfig)

func WithEncoding(e Encoding) KafkaOption {
	return func(c *KafkaConfig) {
		if e != "" {
			c.Encoding = e
		}
	}
}

// WithSource sets the CloudEvents source attribute.
func WithSource(s string) KafkaOption {
	return func(c *KafkaConfig) {
		c.Source = s
	}
}

func WithTimeout(d time.Duration) KafkaOption {
	return func(c *KafkaConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithLogger(l logger.Logger) KafkaOption {
	return func(c *KafkaConfig) {
		c.Logger = l
	}
}

func WithMetrics(m *metrics.Metrics) KafkaOption {
	return func(c *KafkaConfig) {
		c.Metrics = m
	}
}

func WithTelemetry(t *streamsotel.Telemetry) KafkaOption {
	return func(c *KafkaConfig) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// KafkaSink produces dead letters to a topic.
type KafkaSink struct {
	producer kafka.Producer
	cfg      KafkaConfig
	logger   logger.Logger
}

func NewKafkaSink(producer kafka.Producer, topic string, opts ...KafkaOption) *KafkaSink {
	cfg := KafkaConfig{
		Topic:     topic,
		Encoding:  EncodingHeaders,
		Source:    "featurestream",
		Timeout:   10 * time.Second,
		Logger:    logger.NewNoopLogger(),
		Telemetry: streamsotel.Noop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &KafkaSink{
		producer: producer,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "dead-letter", "dlq_topic", topic),
	}
}

// Emit sends ec.Record to the dead-letter topic. It is not cut short by
// cancellation of ctx so a revoke still lets the dead letter go out.
func (s *KafkaSink) Emit(ctx context.Context, ec errorhandler.ErrorContext) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	key, value, headers, err := s.encode(ec)
	if err == nil {
		headers = s.cfg.Telemetry.Inject(ctx, headers)
		err = s.producer.Send(ctx, s.cfg.Topic, key, value, headers)
	}

	if err != nil {
		s.cfg.Metrics.DeadLetterFailed(ec.Record.Topic)
		s.logger.Error(
			"Failed to send record to DLQ",
			"error", err,
			"original_error", ec.Error,
			"original_topic", ec.Record.Topic,
			"original_partition", ec.Record.Partition,
			"original_offset", ec.Record.Offset,
		)
		return
	}

	s.logger.Debug(
		"Record sent to DLQ",
		"original_topic", ec.Record.Topic,
		"original_partition", ec.Record.Partition,
		"original_offset", ec.Record.Offset,
	)
}

func (s *KafkaSink) encode(ec errorhandler.ErrorContext) ([]byte, []byte, []kafka.Header, error) {
	rec := ec.Record.Copy()
	headers := append(rec.Headers, s.failureHeaders(ec)...)

	if s.cfg.Encoding != EncodingCloudEvents {
		return rec.Key, rec.Value, headers, nil
	}

	value, err := s.envelope(ec)
	if err != nil {
		return nil, nil, nil, err
	}
	headers = append(headers, kafka.Header{Key: "content-type", Value: []byte(cloudevents.ApplicationCloudEventsJSON)})
	return rec.Key, value, headers, nil
}

func (s *KafkaSink) failureHeaders(ec errorhandler.ErrorContext) []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderOriginalTopic, Value: []byte(ec.Record.Topic)},
		{Key: HeaderOriginalPartition, Value: []byte(strconv.FormatInt(int64(ec.Record.Partition), 10))},
		{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(ec.Record.Offset, 10))},
		{Key: HeaderErrorTimestamp, Value: []byte(s.cfg.now().UTC().Format(time.RFC3339))},
		{Key: HeaderErrorAttempt, Value: []byte(strconv.Itoa(ec.Attempt))},
		{Key: HeaderErrorPhase, Value: []byte(ec.Phase.String())},
		{Key: HeaderErrorKind, Value: []byte(ec.Kind.String())},
	}
	if ec.Error != nil {
		headers = append(headers, kafka.Header{Key: HeaderErrorMessage, Value: []byte(ec.Error.Error())})
	}
	return headers
}

func (s *KafkaSink) envelope(ec errorhandler.ErrorContext) ([]byte, error) {
	event := cloudevents.NewEvent()
	event.SetID(fmt.Sprintf("%s-%d-%d", ec.Record.Topic, ec.Record.Partition, ec.Record.Offset))
	event.SetSource(s.cfg.Source)
	event.SetType(EventType)
	event.SetSubject(ec.Record.Topic)
	event.SetTime(s.cfg.now().UTC())
	event.SetExtension("partition", strconv.FormatInt(int64(ec.Record.Partition), 10))
	event.SetExtension("offset", strconv.FormatInt(ec.Record.Offset, 10))
	event.SetExtension("errorkind", ec.Kind.String())
	event.SetExtension("errorphase", ec.Phase.String())
	event.SetExtension("attempt", strconv.Itoa(ec.Attempt))
	if ec.Error != nil {
		event.SetExtension("errormessage", ec.Error.Error())
	}

	// raw bytes are written as data_base64, a JSON payload is embedded as is
	contentType := "application/octet-stream"
	var data any = ec.Record.Value
	if json.Valid(ec.Record.Value) {
		contentType = cloudevents.ApplicationJSON
		data = json.RawMessage(ec.Record.Value)
	}
	if err := event.SetData(contentType, data); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dead-letter event: %w", err)
	}

	return json.Marshal(event)
}
