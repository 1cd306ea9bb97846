package mockkafka

import (
	"context"
	"sync"
	"time"

	"github.com/coderxlab/featurestream/kafka"
)

var _ kafka.Client = (*Client)(nil)

// ProducedRecord represents a record that was sent via the mock producer.
type ProducedRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []kafka.Header
}

// Client is an in-memory kafka.Client. Partitions are fetched round robin,
// paused partitions are skipped and an assigned partition resumes from its
// committed position, as a broker would.
type Client struct {
	mu sync.RWMutex

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	producedRecords  []ProducedRecord
	committedOffsets map[kafka.TopicPartition]kafka.Offset
	commitHistory    []map[kafka.TopicPartition]kafka.Offset

	subscriptions      []string
	rebalanceCb        kafka.RebalanceCallback
	assignedPartitions []kafka.TopicPartition
	paused             map[kafka.TopicPartition]bool
	pauseCalls         int

	groupID        string
	maxPollRecords int
	pollDelay      time.Duration
	idleWait       time.Duration
	pollCount      int

	sendErr   func(topic string, key, value []byte) error
	pollErr   func() error
	commitErr func() error
	pingErr   error

	closed     bool
	subscribed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		producedRecords:  make([]ProducedRecord, 0),
		committedOffsets: make(map[kafka.TopicPartition]kafka.Offset),
		paused:           make(map[kafka.TopicPartition]bool),
		groupID:          "mock-group",
		maxPollRecords:   10,
		idleWait:         5 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Subscribe registers the client to consume from the specified topics.
// Every partition that already has records is assigned immediately.
func (c *Client) Subscribe(topics []string, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()

	if c.subscribed {
		c.mu.Unlock()
		return nil
	}

	c.subscriptions = topics
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	var partitions []kafka.TopicPartition
	for tp := range c.recordQueues {
		for _, topic := range topics {
			if tp.Topic == topic {
				partitions = append(partitions, tp)
				break
			}
		}
	}
	c.mu.Unlock()

	if len(partitions) > 0 {
		c.TriggerAssign(partitions)
	}

	return nil
}

// Poll returns up to maxPollRecords from assigned, unpaused partitions.
// With nothing to return it waits briefly so callers do not spin.
func (c *Client) Poll(ctx context.Context) ([]kafka.ConsumerRecord, error) {
	c.mu.RLock()
	delay, pollErr, closed := c.pollDelay, c.pollErr, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, kafka.ErrClientClosed
	}

	if delay > 0 {
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if pollErr != nil {
		if err := pollErr(); err != nil {
			return nil, err
		}
	}

	records := c.fetch()
	if len(records) == 0 {
		c.mu.RLock()
		idle := c.idleWait
		c.mu.RUnlock()
		if err := sleep(ctx, idle); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (c *Client) fetch() []kafka.ConsumerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollCount++

	var records []kafka.ConsumerRecord
	for len(records) < c.maxPollRecords {
		progressMade := false

		for _, tp := range c.assignedPartitions {
			if c.paused[tp] {
				continue
			}

			queue := c.recordQueues[tp]
			pos := c.queuePositions[tp]
			if pos >= len(queue) {
				continue
			}

			records = append(records, queue[pos].Copy())
			c.queuePositions[tp]++
			progressMade = true

			if len(records) >= c.maxPollRecords {
				break
			}
		}

		if !progressMade {
			break
		}
	}

	return records
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Commit stores the given positions.
func (c *Client) Commit(ctx context.Context, offsets map[kafka.TopicPartition]kafka.Offset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commitErr != nil {
		if err := c.commitErr(); err != nil {
			return err
		}
	}

	snapshot := make(map[kafka.TopicPartition]kafka.Offset, len(offsets))
	for tp, o := range offsets {
		c.committedOffsets[tp] = o
		snapshot[tp] = o
	}
	c.commitHistory = append(c.commitHistory, snapshot)

	return nil
}

func (c *Client) PausePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pauseCalls++
	for _, tp := range partitions {
		c.paused[tp] = true
	}
}

func (c *Client) ResumePartitions(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range partitions {
		delete(c.paused, tp)
	}
}

func (c *Client) GroupID() string {
	return c.groupID
}

// Send produces a record to the specified topic.
// The record is stored internally and can be verified using ProducedRecords().
func (c *Client) Send(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		if err := c.sendErr(topic, key, value); err != nil {
			return err
		}
	}

	copied := kafka.ConsumerRecord{Key: key, Value: value, Headers: headers}.Copy()

	c.producedRecords = append(
		c.producedRecords, ProducedRecord{
			Topic:   topic,
			Key:     copied.Key,
			Value:   copied.Value,
			Headers: copied.Headers,
		},
	)

	return nil
}

// Flush is a no-op for the mock client since Send is synchronous.
func (c *Client) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pingErr
}

// Close marks the client as closed. Like the real client it revokes
// the current assignment first.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	assigned := append([]kafka.TopicPartition(nil), c.assignedPartitions...)
	c.mu.Unlock()

	if len(assigned) > 0 {
		c.TriggerRevoke(assigned)
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// AddRecords adds records to be returned by Poll for a specific topic-partition.
// Records without an offset are numbered after the existing ones.
func (c *Client) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}

	existing := len(c.recordQueues[tp])
	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
		if records[i].Offset == 0 {
			records[i].Offset = int64(existing + i)
		}
	}

	c.recordQueues[tp] = append(c.recordQueues[tp], records...)
}

// TriggerAssign simulates a partition assignment event. Fetching resumes
// from the committed position of each partition.
func (c *Client) TriggerAssign(partitions []kafka.TopicPartition) {
	c.mu.Lock()
	cb := c.rebalanceCb
	for _, tp := range partitions {
		c.assignedPartitions = append(c.assignedPartitions, tp)
		c.queuePositions[tp] = c.resumeIndex(tp)
		delete(c.paused, tp)
	}
	c.mu.Unlock()

	if cb != nil {
		cb.OnAssigned(context.Background(), partitions)
	}
}

func (c *Client) resumeIndex(tp kafka.TopicPartition) int {
	committed, ok := c.committedOffsets[tp]
	if !ok {
		return 0
	}
	for i, r := range c.recordQueues[tp] {
		if r.Offset >= committed.Offset {
			return i
		}
	}
	return len(c.recordQueues[tp])
}

// TriggerRevoke simulates a partition revocation event. The callback runs
// before the partitions stop being fetchable, as in the group protocol.
func (c *Client) TriggerRevoke(partitions []kafka.TopicPartition) {
	c.mu.RLock()
	cb := c.rebalanceCb
	c.mu.RUnlock()

	if cb != nil {
		cb.OnRevoked(context.Background(), partitions)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := make([]kafka.TopicPartition, 0, len(c.assignedPartitions))
	for _, assigned := range c.assignedPartitions {
		revoked := false
		for _, p := range partitions {
			if assigned == p {
				revoked = true
				break
			}
		}
		if !revoked {
			remaining = append(remaining, assigned)
		}
	}
	c.assignedPartitions = remaining
	for _, p := range partitions {
		delete(c.paused, p)
	}
}

// ProducedRecords returns a copy of all records that have been sent via Send.
func (c *Client) ProducedRecords() []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]ProducedRecord, len(c.producedRecords))
	copy(result, c.producedRecords)
	return result
}

// ProducedRecordsForTopic returns all records produced to a specific topic.
func (c *Client) ProducedRecordsForTopic(topic string) []ProducedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []ProducedRecord
	for _, r := range c.producedRecords {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}

// CommittedOffsets returns a copy of all committed offsets.
func (c *Client) CommittedOffsets() map[kafka.TopicPartition]kafka.Offset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[kafka.TopicPartition]kafka.Offset, len(c.committedOffsets))
	for k, v := range c.committedOffsets {
		result[k] = v
	}
	return result
}

// CommittedOffset returns the committed position for a specific topic-partition.
func (c *Client) CommittedOffset(tp kafka.TopicPartition) (kafka.Offset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

// CommitHistory returns every successful Commit call in order.
func (c *Client) CommitHistory() []map[kafka.TopicPartition]kafka.Offset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]map[kafka.TopicPartition]kafka.Offset, len(c.commitHistory))
	copy(result, c.commitHistory)
	return result
}

// Subscriptions returns the topics the client is subscribed to.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.subscriptions))
	copy(result, c.subscriptions)
	return result
}

// AssignedPartitions returns the currently assigned partitions.
func (c *Client) AssignedPartitions() []kafka.TopicPartition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]kafka.TopicPartition, len(c.assignedPartitions))
	copy(result, c.assignedPartitions)
	return result
}

func (c *Client) IsPaused(tp kafka.TopicPartition) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.paused[tp]
}

// PauseCalls counts PausePartitions invocations.
func (c *Client) PauseCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pauseCalls
}

func (c *Client) PollCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pollCount
}

// IsClosed returns whether Close has been called.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// SetSendError configures an error to be returned on all Send calls.
// Pass nil to clear the error.
func (c *Client) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.sendErr = nil
	} else {
		c.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// SetPollError configures an error to be returned on all Poll calls.
func (c *Client) SetPollError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pollErr = nil
	} else {
		c.pollErr = func() error { return err }
	}
}

// SetPollErrorFunc configures a function to determine Poll errors.
func (c *Client) SetPollErrorFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollErr = fn
}

// SetCommitError configures an error to be returned on all Commit calls.
func (c *Client) SetCommitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.commitErr = nil
	} else {
		c.commitErr = func() error { return err }
	}
}

// SetPingError configures an error to be returned by Ping.
func (c *Client) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pingErr = err
}
