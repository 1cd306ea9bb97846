package kafka

import (
	"context"
	"errors"
)

var ErrClientClosed = errors.New("kafka client closed")

type Client interface {
	Producer
	Consumer

	Ping(ctx context.Context) error
}

type Producer interface {
	Send(ctx context.Context, topic string, key, value []byte, headers []Header) error
	Flush(ctx context.Context) error
	Close()
}

type Consumer interface {
	Subscribe(topics []string, rebalanceCb RebalanceCallback) error
	// Poll returns at most the configured max poll records, waiting no longer than the poll timeout.
	Poll(ctx context.Context) ([]ConsumerRecord, error)
	// Commit synchronously commits the given positions. Each Offset is the next offset to consume.
	Commit(ctx context.Context, offsets map[TopicPartition]Offset) error
	PausePartitions(partitions ...TopicPartition)
	ResumePartitions(partitions ...TopicPartition)
	GroupID() string
	Close()
}

// RebalanceCallback is invoked synchronously from the group protocol. The
// broker does not complete the rebalance until the callback returns.
type RebalanceCallback interface {
	OnAssigned(ctx context.Context, partitions []TopicPartition)
	OnRevoked(ctx context.Context, partitions []TopicPartition)
}
