//go:build e2e

package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestE2E_Chaos_Burst_1000Records verifies that a burst larger than the
// dispatch queues is fully stored and committed across 4 partitions, with the
// queue-full pause and resume cycle on the way.
func TestE2E_Chaos_Burst_1000Records(t *testing.T) {
	env := ensureContainers(t)

	topic := testTopicName(t, "chaos-burst")
	groupID := testGroupID(t, "chaos-burst")
	createTopics(t, env.broker, 4, topic)

	cfg := testConfig(env, topic, groupID)
	cfg.Dispatch.QueueSize = 10
	cfg.Dispatch.PartitionConcurrency = 4
	cfg.Sink.MaxInFlight = 8

	app := startApp(t, cfg)
	waitForGroupMembers(t, env.broker, groupID, 1, eventualWait)

	const total = 1000
	produceOrderedRecords(t, env.broker, topic, orderRecords(0, total))
	t.Logf("Produced %d records", total)

	rdb := newRedisClient(t, env)
	eventually(t, func() bool { return totalCommitted(t, env.broker, groupID, topic) == total }, 120*time.Second, "all offsets committed")
	require.Equal(t, total, storedCount(t, rdb, topic))

	for _, seq := range []int{0, 499, 999} {
		require.Equal(t, "completed", storedRecord(t, rdb, topic, seq)["order_status"])
	}

	app.stop(t)
}
