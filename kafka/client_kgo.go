package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Client = (*KgoClient)(nil)

type StartOffset string

const (
	StartEarliest StartOffset = "earliest"
	StartLatest   StartOffset = "latest"
)

type KgoClientConfig struct {
	BootstrapServers  []string
	GroupID           string
	ClientID          string
	SessionTimeout    time.Duration
	RebalanceTimeout  time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	PollTimeout       time.Duration
	StartOffset       StartOffset

	// ExtraOpts are appended last, typically SASL and TLS dialer options.
	ExtraOpts []kgo.Opt

	Logger logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers:  []string{"localhost:9092"},
		GroupID:           "featurestream",
		ClientID:          "featurestream",
		SessionTimeout:    45 * time.Second,
		RebalanceTimeout:  60 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		PollTimeout:       3 * time.Second,
		MaxPollRecords:    500,
		StartOffset:       StartEarliest,
		Logger:            logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.GroupID = id
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		if id != "" {
			cfg.ClientID = id
		}
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoClientConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithPollTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		if d > 0 {
			cfg.PollTimeout = d
		}
	}
}

func WithSessionTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		if d > 0 {
			cfg.SessionTimeout = d
		}
	}
}

func WithStartOffset(o StartOffset) KgoOption {
	return func(cfg *KgoClientConfig) {
		if o != "" {
			cfg.StartOffset = o
		}
	}
}

func WithKgoOptions(opts ...kgo.Opt) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ExtraOpts = append(cfg.ExtraOpts, opts...)
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// KgoClient adapts a franz-go group client to Client. Auto commit is
// disabled: offsets are only committed through Commit.
type KgoClient struct {
	client *kgo.Client
	config KgoClientConfig

	mu          sync.RWMutex
	subscribed  bool
	rebalanceCb RebalanceCallback
	topics      []string

	commitMu sync.Mutex

	logger logger.Logger
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{config: cfg, logger: cfg.Logger}

	resetOffset := kgo.NewOffset().AtStart()
	if cfg.StartOffset == StartLatest {
		resetOffset = kgo.NewOffset().AtEnd()
	}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeResetOffset(resetOffset),
		kgo.OnPartitionsAssigned(kc.onAssigned),
		kgo.OnPartitionsRevoked(kc.onRevoked),
		kgo.OnPartitionsLost(kc.onLost),
		kgo.WithLogger(newKgoLogger(kc.logger)),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.RebalanceTimeout(cfg.RebalanceTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.DisableAutoCommit(),
	}
	kgoOpts = append(kgoOpts, cfg.ExtraOpts...)

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client

	return kc, nil
}

func (k *KgoClient) callback() RebalanceCallback {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.rebalanceCb
}

func (k *KgoClient) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	if cb := k.callback(); cb != nil {
		cb.OnAssigned(ctx, mapToTopicPartitions(assigned))
	}
}

func (k *KgoClient) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	if cb := k.callback(); cb != nil {
		cb.OnRevoked(ctx, mapToTopicPartitions(revoked))
	}
}

// onLost is handled like a revoke. Commits will fail since the group
// generation is gone; that is logged by the callback and the next owner
// redelivers from the last committed offset.
func (k *KgoClient) onLost(ctx context.Context, c *kgo.Client, lost map[string][]int32) {
	k.logger.Warn("Partitions lost", "partitions", lost)
	k.onRevoked(ctx, c, lost)
}

func (k *KgoClient) Subscribe(topics []string, rebalanceCb RebalanceCallback) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	k.rebalanceCb = rebalanceCb
	k.topics = topics
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

func (k *KgoClient) Poll(ctx context.Context) ([]ConsumerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, k.config.PollTimeout)
	defer cancel()

	fetches := k.client.PollRecords(ctx, k.config.MaxPollRecords)
	if fetches.IsClientClosed() {
		return nil, ErrClientClosed
	}

	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("poll %s-%d: %w", err.Topic, err.Partition, err.Err)
			}
		}
	}

	return convertRecords(fetches.Records()), nil
}

func (k *KgoClient) Commit(ctx context.Context, offsets map[TopicPartition]Offset) error {
	if len(offsets) == 0 {
		return nil
	}

	uncommitted := make(map[string]map[int32]kgo.EpochOffset)
	for tp, o := range offsets {
		if uncommitted[tp.Topic] == nil {
			uncommitted[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		uncommitted[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: o.LeaderEpoch, Offset: o.Offset}
	}

	k.commitMu.Lock()
	defer k.commitMu.Unlock()

	var commitErr error
	k.client.CommitOffsetsSync(
		ctx, uncommitted,
		func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
			if err != nil {
				commitErr = err
				return
			}
			for _, t := range resp.Topics {
				for _, p := range t.Partitions {
					if pErr := kerr.ErrorForCode(p.ErrorCode); pErr != nil {
						commitErr = errors.Join(commitErr, fmt.Errorf("%s-%d: %w", t.Topic, p.Partition, pErr))
					}
				}
			}
		},
	)

	if commitErr != nil {
		return fmt.Errorf("commit offsets: %w", commitErr)
	}
	return nil
}

func (k *KgoClient) Send(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	k.logger.Debug("Sending record", "topic", topic, "key", string(key))

	results := k.client.ProduceSync(ctx, record)
	return results.FirstErr()
}

func (k *KgoClient) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *KgoClient) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoClient) GroupID() string {
	return k.config.GroupID
}

func (k *KgoClient) PausePartitions(partitions ...TopicPartition) {
	k.client.PauseFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoClient) ResumePartitions(partitions ...TopicPartition) {
	k.client.ResumeFetchPartitions(topicPartitionsToMap(partitions))
}

// Close leaves the group, running the revoke callback so the last safe
// offsets are committed before the member goes away.
func (k *KgoClient) Close() {
	k.client.CloseAllowingRebalance()
}

// Underlying exposes the franz-go client for admin use, see LagReporter.
func (k *KgoClient) Underlying() *kgo.Client {
	return k.client
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
