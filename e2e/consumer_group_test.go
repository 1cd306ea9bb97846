//go:build e2e

package e2e

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestE2E_ConsumerGroup_RebalanceOnJoin verifies that a second member joining
// the group takes over partitions without losing records.
func TestE2E_ConsumerGroup_RebalanceOnJoin(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "group-join")
	groupID := testGroupID(t, "group-join")
	createTopics(t, env.broker, 4, topic)

	rdb := newRedisClient(t, env)

	first := startApp(t, testConfig(env, topic, groupID))
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	produceOrderedRecords(t, env.broker, topic, orderRecords(0, 20))
	eventually(t, func() bool { return storedCount(t, rdb, topic) == 20 }, consumeWait, "first batch stored")

	cfg := testConfig(env, topic, groupID)
	cfg.Kafka.ClientID = groupID + "-2"
	second := startApp(t, cfg)
	waitForGroupMembers(t, env.broker, groupID, 2, eventualWait)

	owned := func(r *runningApp) int { return r.app.Dispatcher().WorkerCount() }
	eventually(t, func() bool {
		return owned(first) > 0 && owned(second) > 0 && owned(first)+owned(second) == 4
	}, eventualWait, "both members own partitions")

	produceOrderedRecords(t, env.broker, topic, orderRecords(20, 40))
	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 40 }, consumeWait, "40 offsets committed")
	require.Equal(t, 40, storedCount(t, rdb, topic))

	second.stop(t)
	first.stop(t)
}

// TestE2E_ConsumerGroup_RebalanceOnLeave verifies that the remaining member
// picks up the partitions of a member that left.
func TestE2E_ConsumerGroup_RebalanceOnLeave(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "group-leave")
	groupID := testGroupID(t, "group-leave")
	createTopics(t, env.broker, 4, topic)

	rdb := newRedisClient(t, env)

	first := startApp(t, testConfig(env, topic, groupID))
	cfg := testConfig(env, topic, groupID)
	cfg.Kafka.ClientID = groupID + "-2"
	second := startApp(t, cfg)
	waitForGroupMembers(t, env.broker, groupID, 2, eventualWait)

	produceOrderedRecords(t, env.broker, topic, orderRecords(0, 20))
	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 20 }, consumeWait, "first batch committed")

	second.stop(t)
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)
	eventually(t, func() bool { return first.app.Dispatcher().WorkerCount() == 4 }, eventualWait, "remaining member owns every partition")

	produceOrderedRecords(t, env.broker, topic, orderRecords(20, 40))
	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == 40 }, consumeWait, "40 offsets committed")
	require.Equal(t, 40, storedCount(t, rdb, topic))

	first.stop(t)
}
