//go:build unit

package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/coderxlab/featurestream/kafka"
	mockkafka "github.com/coderxlab/featurestream/kafka/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	event    string
	pullable bool
	paused   bool
}

type recordingHandler struct {
	mu    sync.Mutex
	coord *Coordinator
	pause *mockkafka.Client
	tp    kafka.TopicPartition
	seen  []observation
}

func (h *recordingHandler) observe(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(
		h.seen, observation{
			event:    event,
			pullable: h.coord.Pullable(h.tp),
			paused:   h.pause.IsPaused(h.tp),
		},
	)
}

func (h *recordingHandler) OnPartitionsAssigned(context.Context, []kafka.TopicPartition) {
	h.observe("assigned")
}

func (h *recordingHandler) OnPartitionsRevoked(context.Context, []kafka.TopicPartition) {
	h.observe("revoked")
}

func TestCoordinator_AssignMakesPartitionsPullable(t *testing.T) {
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client := mockkafka.NewClient()
	h := &recordingHandler{pause: client, tp: tp}
	c := New(h, client)
	h.coord = c

	require.False(t, c.Pullable(tp))

	c.OnAssigned(context.Background(), []kafka.TopicPartition{tp})

	assert.True(t, c.Pullable(tp))
	assert.Equal(t, StateAssigned, c.State(tp))
	assert.Equal(t, []kafka.TopicPartition{tp}, c.Assigned())

	require.Len(t, h.seen, 1)
	assert.False(t, h.seen[0].pullable, "records must not be routed before the handler has set up")
}

func TestCoordinator_NoPullsBetweenRevokeAndNextAssign(t *testing.T) {
	tp := kafka.TopicPartition{Topic: "orders", Partition: 3}
	client := mockkafka.NewClient()
	h := &recordingHandler{pause: client, tp: tp}
	c := New(h, client)
	h.coord = c

	c.OnAssigned(context.Background(), []kafka.TopicPartition{tp})
	c.OnRevoked(context.Background(), []kafka.TopicPartition{tp})

	require.Len(t, h.seen, 2)
	revoke := h.seen[1]
	assert.Equal(t, "revoked", revoke.event)
	assert.False(t, revoke.pullable, "partition must stop being pullable before the handler runs")
	assert.True(t, revoke.paused, "fetching must be paused while cleanup runs")

	assert.False(t, c.Pullable(tp))
	assert.Equal(t, StateUnassigned, c.State(tp))
	assert.Empty(t, c.Assigned())

	c.OnAssigned(context.Background(), []kafka.TopicPartition{tp})
	assert.True(t, c.Pullable(tp))
	assert.False(t, client.IsPaused(tp), "reassigned partition must be resumed")
}

func TestCoordinator_OnChangeReportsOwnedCount(t *testing.T) {
	var counts []int
	c := New(
		noopHandler{}, nil,
		WithOnChange(func(owned int) { counts = append(counts, owned) }),
	)

	a := kafka.TopicPartition{Topic: "orders", Partition: 0}
	b := kafka.TopicPartition{Topic: "orders", Partition: 1}

	c.OnAssigned(context.Background(), []kafka.TopicPartition{a, b})
	c.OnRevoked(context.Background(), []kafka.TopicPartition{a})
	c.OnRevoked(context.Background(), nil)

	assert.Equal(t, []int{2, 1}, counts)
	assert.Equal(t, []kafka.TopicPartition{b}, c.Assigned())
}

func TestCoordinator_AssignedIsSorted(t *testing.T) {
	c := New(noopHandler{}, nil)
	c.OnAssigned(
		context.Background(), []kafka.TopicPartition{
			{Topic: "payments", Partition: 0},
			{Topic: "orders", Partition: 2},
			{Topic: "orders", Partition: 0},
		},
	)

	assert.Equal(
		t, []kafka.TopicPartition{
			{Topic: "orders", Partition: 0},
			{Topic: "orders", Partition: 2},
			{Topic: "payments", Partition: 0},
		}, c.Assigned(),
	)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unassigned", StateUnassigned.String())
	assert.Equal(t, "assigned", StateAssigned.String())
	assert.Equal(t, "revoking", StateRevoking.String())
}

type noopHandler struct{}

func (noopHandler) OnPartitionsAssigned(context.Context, []kafka.TopicPartition) {}
func (noopHandler) OnPartitionsRevoked(context.Context, []kafka.TopicPartition)  {}
