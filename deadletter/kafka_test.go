//go:build unit

package deadletter_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/coderxlab/featurestream/deadletter"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	mockkafka "github.com/coderxlab/featurestream/kafka/mock"
	"github.com/coderxlab/featurestream/logger"
	mocklogger "github.com/coderxlab/featurestream/logger/mock"
	"github.com/coderxlab/featurestream/sink"
	"github.com/stretchr/testify/require"
)

func failed(value string) errorhandler.ErrorContext {
	rec := kafka.ConsumerRecord{
		Topic:     "ml-features",
		Partition: 3,
		Offset:    17,
		Key:       []byte("C1000"),
		Value:     []byte(value),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("00-abc-def-01")}},
	}
	return errorhandler.NewErrorContext(rec, sink.SchemaRejected(errors.New("unknown feature"))).
		WithPhase(errorhandler.PhaseDelivery).
		WithAttempt(2)
}

func TestKafkaSink_Headers(t *testing.T) {
	t.Parallel()

	producer := mockkafka.NewClient()
	s := deadletter.NewKafkaSink(producer, "ml-features.dlq")

	s.Emit(context.Background(), failed(`{"customer_id":"C1000"}`))

	producer.AssertProducedCountForTopic(t, "ml-features.dlq", 1)
	producer.AssertProduced(t, "ml-features.dlq", []byte("C1000"), []byte(`{"customer_id":"C1000"}`))

	key := []byte("C1000")
	producer.AssertHeader(t, "ml-features.dlq", key, "traceparent", []byte("00-abc-def-01"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderOriginalTopic, []byte("ml-features"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderOriginalPartition, []byte("3"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderOriginalOffset, []byte("17"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderErrorAttempt, []byte("2"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderErrorPhase, []byte("delivery"))
	producer.AssertHeader(t, "ml-features.dlq", key, deadletter.HeaderErrorKind, []byte("schema_rejected"))
}

func TestKafkaSink_CloudEvents(t *testing.T) {
	t.Parallel()

	producer := mockkafka.NewClient()
	s := deadletter.NewKafkaSink(
		producer, "ml-features.dlq",
		deadletter.WithEncoding(deadletter.EncodingCloudEvents),
		deadletter.WithSource("featurestream/test"),
	)

	s.Emit(context.Background(), failed(`{"customer_id":"C1000"}`))

	records := producer.ProducedRecordsForTopic("ml-features.dlq")
	require.Len(t, records, 1)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &envelope))
	require.Equal(t, "1.0", envelope["specversion"])
	require.Equal(t, deadletter.EventType, envelope["type"])
	require.Equal(t, "featurestream/test", envelope["source"])
	require.Equal(t, "ml-features-3-17", envelope["id"])
	require.Equal(t, "schema_rejected", envelope["errorkind"])
	require.Equal(t, "application/json", envelope["datacontenttype"])
	require.Equal(t, map[string]any{"customer_id": "C1000"}, envelope["data"])
	require.NotContains(t, envelope, "data_base64")
}

func TestKafkaSink_CloudEventsBinaryPayload(t *testing.T) {
	t.Parallel()

	producer := mockkafka.NewClient()
	s := deadletter.NewKafkaSink(producer, "dlq", deadletter.WithEncoding(deadletter.EncodingCloudEvents))

	s.Emit(context.Background(), failed("not json"))

	records := producer.ProducedRecordsForTopic("dlq")
	require.Len(t, records, 1)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &envelope))
	require.Equal(t, "application/octet-stream", envelope["datacontenttype"])
	require.Contains(t, envelope, "data_base64")
	require.NotContains(t, envelope, "data")
}

func TestKafkaSink_SendFailureIsLogged(t *testing.T) {
	t.Parallel()

	producer := mockkafka.NewClient(mockkafka.WithSendError(errors.New("broker down")))
	l := mocklogger.New()
	s := deadletter.NewKafkaSink(producer, "dlq", deadletter.WithLogger(l))

	require.NotPanics(t, func() { s.Emit(context.Background(), failed("{}")) })
	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Failed to send record to DLQ")
}

func TestKafkaSink_EmitsAfterCancellation(t *testing.T) {
	t.Parallel()

	producer := mockkafka.NewClient()
	s := deadletter.NewKafkaSink(producer, "dlq")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Emit(ctx, failed("{}"))
	producer.AssertProducedCount(t, 1)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	deadletter.Log(l).Emit(context.Background(), failed("{}"))
	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Dead-lettered record")
}
