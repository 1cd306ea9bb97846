package offset

import (
	"github.com/coderxlab/featurestream/kafka"
)

// None marks a position that has not been reached yet.
const None int64 = -1

// PartitionState is a snapshot of a tracker.
// LastCommitted <= LastDelivered always holds.
type PartitionState struct {
	Partition     kafka.TopicPartition
	LastCommitted int64
	LastDelivered int64
}

// Tracker holds the delivered and committed positions of one partition.
// Offsets here are record offsets, not commit positions: a delivered offset
// of 41 means every record up to and including 41 has a terminal outcome.
//
// A Tracker is owned by a single partition worker and is not safe for
// concurrent use.
type Tracker struct {
	tp          kafka.TopicPartition
	leaderEpoch int32
	delivered   int64
	committed   int64
}

func NewTracker(tp kafka.TopicPartition) *Tracker {
	return &Tracker{
		tp:          tp,
		leaderEpoch: -1,
		delivered:   None,
		committed:   None,
	}
}

// Advance records that every offset up to and including offset is resolved.
// Offsets must be non-decreasing.
func (t *Tracker) Advance(offset int64, leaderEpoch int32) error {
	if offset < t.delivered || offset < t.committed {
		return &ContractViolationError{
			Partition: t.tp,
			Offset:    offset,
			Current:   max(t.delivered, t.committed),
			Op:        "advance",
		}
	}

	t.delivered = offset
	if leaderEpoch > t.leaderEpoch {
		t.leaderEpoch = leaderEpoch
	}
	return nil
}

// MarkCommitted records that offset was acknowledged by the broker. It may
// not pass the delivered offset or move backwards.
func (t *Tracker) MarkCommitted(offset int64) error {
	if offset > t.delivered || offset < t.committed {
		return &ContractViolationError{
			Partition: t.tp,
			Offset:    offset,
			Current:   t.committed,
			Op:        "mark-committed",
		}
	}

	t.committed = offset
	return nil
}

func (t *Tracker) Committed() int64 {
	return t.committed
}

func (t *Tracker) Delivered() int64 {
	return t.delivered
}

// Dirty reports whether there is a delivered offset not yet committed.
func (t *Tracker) Dirty() bool {
	return t.delivered > t.committed
}

// CommitPosition returns the broker commit position for the delivered
// offset, which is the next offset to consume. ok is false when nothing
// new needs committing.
func (t *Tracker) CommitPosition() (kafka.Offset, bool) {
	if !t.Dirty() {
		return kafka.Offset{}, false
	}
	return kafka.Offset{LeaderEpoch: t.leaderEpoch, Offset: t.delivered + 1}, true
}

func (t *Tracker) State() PartitionState {
	return PartitionState{
		Partition:     t.tp,
		LastCommitted: t.committed,
		LastDelivered: t.delivered,
	}
}
