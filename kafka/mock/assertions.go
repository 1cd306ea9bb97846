package mockkafka

import (
	"bytes"
	"testing"

	"github.com/coderxlab/featurestream/kafka"
	"github.com/stretchr/testify/require"
)

// AssertProducedCount verifies that exactly n records were produced.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProducedCountForTopic verifies that exactly n records were produced to a topic.
func (c *Client) AssertProducedCountForTopic(tb testing.TB, topic string, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecordsForTopic(topic))
	require.Equal(tb, expected, actual, "expected %d records produced to topic %q, got %d", expected, topic, actual)
}

// AssertProduced verifies that a record with the given key and value was produced to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertCommittedOffset verifies that a specific offset was committed.
func (c *Client) AssertCommittedOffset(tb testing.TB, tp kafka.TopicPartition, expectedOffset int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(
		tb, ok,
		"expected offset %d to be committed for %s-%d, but none found",
		expectedOffset, tp.Topic, tp.Partition,
	)

	require.Equal(
		tb, expectedOffset, actual.Offset, "expected offset %d to be committed for %s-%d, got %d", expectedOffset,
		tp.Topic, tp.Partition, actual.Offset,
	)
}

// AssertAssigned verifies that the given partitions are currently assigned.
func (c *Client) AssertAssigned(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	assigned := c.AssignedPartitions()
	assignedMap := make(map[kafka.TopicPartition]bool)
	for _, p := range assigned {
		assignedMap[p] = true
	}

	for _, p := range partitions {
		if !assignedMap[p] {
			tb.Errorf(
				"expected partition %s-%d to be assigned, but it is not",
				p.Topic, p.Partition,
			)
		}
	}
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}

// AssertHeader verifies that a produced record has a specific header.
func (c *Client) AssertHeader(tb testing.TB, topic string, key []byte, headerKey string, headerValue []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) {
			actual, ok := kafka.HeaderValue(r.Headers, headerKey)
			require.True(tb, ok, "record with key=%q missing header %q", string(key), headerKey)
			require.True(
				tb, bytes.Equal(actual, headerValue), "record with key=%q has header %q=%q, expected %q", string(key),
				headerKey, string(headerValue), string(actual),
			)
			return
		}
	}

	tb.Errorf("no record with key=%q found in topic %q", string(key), topic)
}

// AssertPaused verifies that fetching is paused for the partition.
func (c *Client) AssertPaused(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	require.True(tb, c.IsPaused(tp), "expected partition %s to be paused", tp)
}
