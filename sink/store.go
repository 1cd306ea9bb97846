package sink

import (
	"context"
)

// Store is the feature store put API. PutRecord must upsert by dedupKey:
// writing the same key twice leaves one logical record.
type Store interface {
	PutRecord(ctx context.Context, target, dedupKey string, fields map[string]string) error
	Close() error
}
