//go:build unit

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coderxlab/featurestream/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "featurestream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "earliest", cfg.Kafka.StartOffset)
	assert.Equal(t, "redis", cfg.Sink.Kind)
	assert.Equal(t, 16, cfg.Sink.MaxInFlight)
	assert.Equal(t, 16, cfg.Dispatch.PartitionConcurrency)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Backpressure.Window)
	assert.Equal(t, "headers", cfg.DeadLetter.Encoding)
	assert.Equal(t, "zap", cfg.Log.Backend)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeYAML(t, `
schema_version: v1
kafka:
  brokers: [broker-1:9092, broker-2:9092]
  topic: orders
  group_id: orders-ingest
  poll_timeout: 500ms
sink:
  kind: firestore
  target: order-features
  max_in_flight: 4
  firestore:
    project_id: ml-prod
retry:
  max_attempts: 3
  backoff_base: 50ms
  backoff_max: 2s
dead_letter:
  topic: orders-dlq
  encoding: cloudevents
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders", cfg.Kafka.Topic)
	assert.Equal(t, "orders-ingest", cfg.Kafka.GroupID)
	assert.Equal(t, 500*time.Millisecond, cfg.Kafka.PollTimeout)
	assert.Equal(t, "firestore", cfg.Sink.Kind)
	assert.Equal(t, "ml-prod", cfg.Sink.Firestore.ProjectID)
	assert.Equal(t, 4, cfg.Sink.MaxInFlight)
	assert.Equal(t, 4, cfg.Dispatch.PartitionConcurrency, "partition concurrency follows the sink cap")
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.BackoffBase)
	assert.Equal(t, "orders-dlq", cfg.DeadLetter.Topic)
	assert.Equal(t, "cloudevents", cfg.DeadLetter.Encoding)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
kafka:
  group_id: from-file
sink:
  redis:
    addr: redis-file:6379
`)
	t.Setenv("FEATURESTREAM_KAFKA__GROUP_ID", "from-env")
	t.Setenv("FEATURESTREAM_SINK__REDIS__ADDR", "redis-env:6379")
	t.Setenv("FEATURESTREAM_DISPATCH__SHUTDOWN_GRACE", "2s")
	t.Setenv("FEATURESTREAM_DISPATCH__FAIL_FAST", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Kafka.GroupID)
	assert.Equal(t, "redis-env:6379", cfg.Sink.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.ShutdownGrace)
	assert.True(t, cfg.Dispatch.FailFast)
}

func TestLoad_UnsupportedSchemaVersion(t *testing.T) {
	path := writeYAML(t, "schema_version: v2\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_version")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeYAML(t, "kafka: [unterminated\n")

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Kafka.StartOffset = "middle"
	cfg.Sink.Kind = "cassandra"
	cfg.Retry.MaxAttempts = 0
	cfg.Backpressure.Threshold = 1.5
	cfg.Log.Backend = "logrus"

	err := cfg.Validate()
	require.Error(t, err)

	for _, field := range []string{
		"kafka.start_offset",
		"sink.kind",
		"retry.max_attempts",
		"backpressure.threshold",
		"log.backend",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidate_FirestoreNeedsProject(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Sink.Kind = "firestore"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink.firestore.project_id")

	cfg.Sink.Firestore.ProjectID = "ml-prod"
	require.NoError(t, cfg.Validate())
}

func TestValidate_Default(t *testing.T) {
	t.Parallel()
	require.NoError(t, config.Default().Validate())
}
