package mockkafka

import (
	"time"

	"github.com/coderxlab/featurestream/kafka"
)

// RecordBuilder provides a fluent interface for building ConsumerRecords.
type RecordBuilder struct {
	record kafka.ConsumerRecord
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.ConsumerRecord{
			Key:       []byte(key),
			Value:     []byte(value),
			Timestamp: time.Now(),
		},
	}
}

// WithOffset sets the record's offset.
func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

// WithHeader adds a header to the record.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// WithLeaderEpoch sets the leader epoch.
func (b *RecordBuilder) WithLeaderEpoch(epoch int32) *RecordBuilder {
	b.record.LeaderEpoch = epoch
	return b
}

// Build returns the constructed ConsumerRecord.
func (b *RecordBuilder) Build() kafka.ConsumerRecord {
	return b.record
}

// Values creates one record per JSON payload, keyed by position.
func Values(values ...string) []kafka.ConsumerRecord {
	records := make([]kafka.ConsumerRecord, 0, len(values))
	for _, v := range values {
		records = append(records, Record("", v).Build())
	}
	return records
}
