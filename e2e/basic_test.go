//go:build e2e

package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TestE2E_Pipeline_WritesFeatureRecords verifies that orders produced to the
// topic land in redis as feature records and that their offsets are committed.
func TestE2E_Pipeline_WritesFeatureRecords(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "pipeline")
	groupID := testGroupID(t, "pipeline")
	createTopics(t, env.broker, 1, topic)

	app := startApp(t, testConfig(env, topic, groupID))
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	produceOrderedRecords(t, env.broker, topic, orderRecords(0, 3))

	rdb := newRedisClient(t, env)
	eventually(t, func() bool { return storedCount(t, rdb, topic) == 3 }, consumeWait, "3 feature records stored")

	fields := storedRecord(t, rdb, topic, 1)
	require.Equal(t, "C1001", fields["customer_id"])
	require.Equal(t, "P2001", fields["product_id"])
	require.Equal(t, "completed", fields["order_status"])
	require.Equal(t, "2024-05-01T10:00:01Z", fields["event_time"])

	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 3 }, eventualWait, "offset 3 committed")

	app.stop(t)
}

// TestE2E_Pipeline_SkipsInvalidRecords verifies that malformed payloads and
// records missing a required field are dropped without blocking the
// partition: valid records around them are stored and the commit moves past
// them.
func TestE2E_Pipeline_SkipsInvalidRecords(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "invalid")
	groupID := testGroupID(t, "invalid")
	createTopics(t, env.broker, 1, topic)

	app := startApp(t, testConfig(env, topic, groupID))
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	records := []kgo.Record{
		{Value: []byte(orderValue(0, "completed"))},
		{Value: []byte(`not json`)},
		{Value: []byte(`{"customer_id":"C1001","product_id":"P2001","order_amount":1,"event_time":"2024-05-01T10:00:01Z"}`)},
		{Value: []byte(orderValue(2, "pending"))},
	}
	produceOrderedRecords(t, env.broker, topic, records)

	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 4 }, consumeWait, "offset 4 committed")

	rdb := newRedisClient(t, env)
	require.Equal(t, 2, storedCount(t, rdb, topic))
	require.Equal(t, "pending", storedRecord(t, rdb, topic, 2)["order_status"])

	app.stop(t)
}

// TestE2E_Pipeline_RedeliveryIsIdempotent verifies that the same order seen
// twice, here produced twice, results in a single feature record.
func TestE2E_Pipeline_RedeliveryIsIdempotent(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "idempotent")
	groupID := testGroupID(t, "idempotent")
	createTopics(t, env.broker, 1, topic)

	app := startApp(t, testConfig(env, topic, groupID))
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	records := append(orderRecords(0, 5), orderRecords(0, 5)...)
	produceOrderedRecords(t, env.broker, topic, records)

	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 10 }, consumeWait, "offset 10 committed")

	rdb := newRedisClient(t, env)
	require.Equal(t, 5, storedCount(t, rdb, topic))

	app.stop(t)
}

// TestE2E_Pipeline_EmptyTopic verifies that an idle pipeline starts, stores
// nothing and shuts down cleanly.
func TestE2E_Pipeline_EmptyTopic(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "empty")
	groupID := testGroupID(t, "empty")
	createTopics(t, env.broker, 1, topic)

	app := startApp(t, testConfig(env, topic, groupID))
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	time.Sleep(2 * time.Second)

	rdb := newRedisClient(t, env)
	require.Zero(t, storedCount(t, rdb, topic))
	require.Zero(t, totalCommitted(t, env.broker, groupID, topic))

	app.stop(t)
}
