package kafka

import (
	"context"
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// LagFunc receives the lag of one partition of the consumer group.
type LagFunc func(tp TopicPartition, lag int64)

// LagReporter periodically describes the consumer group and reports how far
// committed offsets trail the end of each partition.
type LagReporter struct {
	adm      *kadm.Client
	group    string
	interval time.Duration
	report   LagFunc
	logger   logger.Logger
}

func NewLagReporter(client *kgo.Client, group string, interval time.Duration, report LagFunc, l logger.Logger) *LagReporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &LagReporter{
		adm:      kadm.NewClient(client),
		group:    group,
		interval: interval,
		report:   report,
		logger:   l.With("component", "lag-reporter", "group", group),
	}
}

// Run blocks until ctx is cancelled.
func (r *LagReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.collect(ctx)
		}
	}
}

func (r *LagReporter) collect(ctx context.Context) {
	lags, err := r.adm.Lag(ctx, r.group)
	if err != nil {
		r.logger.Warn("Failed to describe group lag", "error", err)
		return
	}

	for _, described := range lags {
		for topic, partitions := range described.Lag {
			for partition, ml := range partitions {
				if ml.Err != nil {
					r.logger.Debug("Lag unavailable", "topic", topic, "partition", partition, "error", ml.Err)
					continue
				}
				r.report(TopicPartition{Topic: topic, Partition: partition}, ml.Lag)
			}
		}
	}
}
