package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: FEATURESTREAM_KAFKA__GROUP_ID sets kafka.group_id.
const EnvPrefix = "FEATURESTREAM_"

const SchemaVersion = "v1"

type KafkaConfig struct {
	Brokers        []string      `koanf:"brokers"`
	Topic          string        `koanf:"topic"`
	GroupID        string        `koanf:"group_id"`
	ClientID       string        `koanf:"client_id"`
	StartOffset    string        `koanf:"start_offset"` // earliest|latest
	BatchSize      int           `koanf:"batch_size"`
	PollTimeout    time.Duration `koanf:"poll_timeout"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
}

type RecordConfig struct {
	RequiredFields []string `koanf:"required_fields"`
	EventTimeField string   `koanf:"event_time_field"`
}

type RedisConfig struct {
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`
}

type FirestoreConfig struct {
	ProjectID        string `koanf:"project_id"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

type SinkConfig struct {
	Kind        string   `koanf:"kind"`   // redis|firestore
	Target      string   `koanf:"target"` // feature group
	MaxInFlight int      `koanf:"max_in_flight"`
	RateLimit   float64  `koanf:"rate_limit"`
	RateBurst   int      `koanf:"rate_burst"`
	Dedup       string   `koanf:"dedup"` // fields|offset
	DedupFields []string `koanf:"dedup_fields"`

	Redis     RedisConfig     `koanf:"redis"`
	Firestore FirestoreConfig `koanf:"firestore"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffMax  time.Duration `koanf:"backoff_max"`
	Jitter      float64       `koanf:"jitter"`
}

type DispatchConfig struct {
	QueueSize            int           `koanf:"queue_size"`
	PartitionConcurrency int           `koanf:"partition_concurrency"`
	CommitInterval       time.Duration `koanf:"commit_interval"`
	CommitCount          int           `koanf:"commit_count"`
	ShutdownGrace        time.Duration `koanf:"shutdown_grace"`
	FailFast             bool          `koanf:"fail_fast"`
}

type BackpressureConfig struct {
	Window     time.Duration `koanf:"window"`
	Threshold  float64       `koanf:"threshold"`
	MinSamples int           `koanf:"min_samples"`
	PauseBase  time.Duration `koanf:"pause_base"`
	PauseMax   time.Duration `koanf:"pause_max"`
}

type DeadLetterConfig struct {
	// Topic receives dead letters; empty logs them instead.
	Topic    string `koanf:"topic"`
	Encoding string `koanf:"encoding"` // headers|cloudevents
	Source   string `koanf:"source"`
}

type ObservabilityConfig struct {
	MetricsAddr     string        `koanf:"metrics_addr"`
	LagInterval     time.Duration `koanf:"lag_interval"`
	TracingEndpoint string        `koanf:"tracing_endpoint"`
	TracingInsecure bool          `koanf:"tracing_insecure"`
	SampleRatio     float64       `koanf:"sample_ratio"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`  // json|console
	Backend string `koanf:"backend"` // zap|zerolog
}

type Config struct {
	Kafka         KafkaConfig         `koanf:"kafka"`
	Record        RecordConfig        `koanf:"record"`
	Sink          SinkConfig          `koanf:"sink"`
	Retry         RetryConfig         `koanf:"retry"`
	Dispatch      DispatchConfig      `koanf:"dispatch"`
	Backpressure  BackpressureConfig  `koanf:"backpressure"`
	DeadLetter    DeadLetterConfig    `koanf:"dead_letter"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
}

// Load merges YAML (if present) with env vars and applies defaults. The
// result is validated.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if sv := k.String("schema_version"); sv != "" && sv != SchemaVersion {
		return Config{}, fmt.Errorf("schema_version %q not supported (want %s)", sv, SchemaVersion)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Default returns a Config with every default applied.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(c *Config) {
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ml-features"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "featurestream"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "featurestream"
	}
	if c.Kafka.StartOffset == "" {
		c.Kafka.StartOffset = "earliest"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 500
	}
	if c.Kafka.PollTimeout == 0 {
		c.Kafka.PollTimeout = 3 * time.Second
	}
	if c.Kafka.SessionTimeout == 0 {
		c.Kafka.SessionTimeout = 45 * time.Second
	}

	if c.Record.EventTimeField == "" {
		c.Record.EventTimeField = "event_time"
	}

	if c.Sink.Kind == "" {
		c.Sink.Kind = "redis"
	}
	if c.Sink.Target == "" {
		c.Sink.Target = "orders"
	}
	if c.Sink.MaxInFlight == 0 {
		c.Sink.MaxInFlight = 16
	}
	if c.Sink.Dedup == "" {
		c.Sink.Dedup = "fields"
	}
	if c.Sink.Redis.Addr == "" {
		c.Sink.Redis.Addr = "localhost:6379"
	}
	if c.Sink.Redis.KeyPrefix == "" {
		c.Sink.Redis.KeyPrefix = "fs:"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BackoffBase == 0 {
		c.Retry.BackoffBase = 100 * time.Millisecond
	}
	if c.Retry.BackoffMax == 0 {
		c.Retry.BackoffMax = 10 * time.Second
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = 0.2
	}

	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 100
	}
	if c.Dispatch.PartitionConcurrency == 0 {
		c.Dispatch.PartitionConcurrency = c.Sink.MaxInFlight
	}
	if c.Dispatch.CommitInterval == 0 {
		c.Dispatch.CommitInterval = 5 * time.Second
	}
	if c.Dispatch.CommitCount == 0 {
		c.Dispatch.CommitCount = 100
	}
	if c.Dispatch.ShutdownGrace == 0 {
		c.Dispatch.ShutdownGrace = 30 * time.Second
	}

	if c.Backpressure.Window == 0 {
		c.Backpressure.Window = 10 * time.Second
	}
	if c.Backpressure.Threshold == 0 {
		c.Backpressure.Threshold = 0.5
	}
	if c.Backpressure.MinSamples == 0 {
		c.Backpressure.MinSamples = 10
	}
	if c.Backpressure.PauseBase == 0 {
		c.Backpressure.PauseBase = 500 * time.Millisecond
	}
	if c.Backpressure.PauseMax == 0 {
		c.Backpressure.PauseMax = 30 * time.Second
	}

	if c.DeadLetter.Encoding == "" {
		c.DeadLetter.Encoding = "headers"
	}
	if c.DeadLetter.Source == "" {
		c.DeadLetter.Source = "featurestream"
	}

	if c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = ":9090"
	}
	if c.Observability.LagInterval == 0 {
		c.Observability.LagInterval = 30 * time.Second
	}
	if c.Observability.SampleRatio == 0 {
		c.Observability.SampleRatio = 1
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Backend == "" {
		c.Log.Backend = "zap"
	}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: %q must be one of %s", field, value, strings.Join(allowed, ", "))
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(c.Kafka.Brokers) == 0 {
		add(errors.New("kafka.brokers: at least one broker is required"))
	}
	if c.Kafka.Topic == "" {
		add(errors.New("kafka.topic: required"))
	}
	if c.Kafka.GroupID == "" {
		add(errors.New("kafka.group_id: required"))
	}
	add(oneOf("kafka.start_offset", c.Kafka.StartOffset, "earliest", "latest"))
	if c.Kafka.BatchSize < 1 {
		add(errors.New("kafka.batch_size: must be positive"))
	}

	add(oneOf("sink.kind", c.Sink.Kind, "redis", "firestore"))
	if c.Sink.Target == "" {
		add(errors.New("sink.target: required"))
	}
	if c.Sink.MaxInFlight < 1 {
		add(errors.New("sink.max_in_flight: must be positive"))
	}
	if c.Sink.RateLimit < 0 {
		add(errors.New("sink.rate_limit: must not be negative"))
	}
	add(oneOf("sink.dedup", c.Sink.Dedup, "fields", "offset"))
	if c.Sink.Kind == "firestore" && c.Sink.Firestore.ProjectID == "" {
		add(errors.New("sink.firestore.project_id: required for the firestore sink"))
	}

	if c.Retry.MaxAttempts < 1 {
		add(errors.New("retry.max_attempts: must be at least 1"))
	}
	if c.Retry.BackoffMax < c.Retry.BackoffBase {
		add(errors.New("retry.backoff_max: must not be below retry.backoff_base"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		add(errors.New("retry.jitter: must be within [0, 1]"))
	}

	if c.Dispatch.QueueSize < 1 {
		add(errors.New("dispatch.queue_size: must be positive"))
	}
	if c.Dispatch.PartitionConcurrency < 1 {
		add(errors.New("dispatch.partition_concurrency: must be positive"))
	}

	if c.Backpressure.Threshold <= 0 || c.Backpressure.Threshold > 1 {
		add(errors.New("backpressure.threshold: must be within (0, 1]"))
	}
	if c.Backpressure.PauseMax < c.Backpressure.PauseBase {
		add(errors.New("backpressure.pause_max: must not be below backpressure.pause_base"))
	}

	add(oneOf("dead_letter.encoding", c.DeadLetter.Encoding, "headers", "cloudevents"))

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		add(errors.New("observability.sample_ratio: must be within [0, 1]"))
	}

	add(oneOf("log.format", c.Log.Format, "json", "console"))
	add(oneOf("log.backend", c.Log.Backend, "zap", "zerolog"))

	return errors.Join(errs...)
}
