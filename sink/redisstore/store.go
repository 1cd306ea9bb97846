package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/sink"
	"github.com/redis/go-redis/v9"
)

var _ sink.Store = (*Store)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires stored records; zero keeps them forever.
	TTL time.Duration
}

// Store writes each record as a hash at KeyPrefix+target+":"+dedupKey.
// The hash is replaced in a MULTI/EXEC so a retried put leaves exactly
// the last written fields.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

// New connects to Redis and pings it before returning.
func New(ctx context.Context, cfg Config, l logger.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	l.Info("Connected to redis", "address", cfg.Addr, "db", cfg.DB)

	return NewFromClient(rdb, cfg, l), nil
}

func NewFromClient(rdb redis.UniversalClient, cfg Config, l logger.Logger) *Store {
	return &Store{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: l.With("component", "redis-store"),
	}
}

func (s *Store) Key(target, dedupKey string) string {
	return s.prefix + target + ":" + dedupKey
}

func (s *Store) PutRecord(ctx context.Context, target, dedupKey string, fields map[string]string) error {
	key := s.Key(target, dedupKey)

	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("Redis put failed", "key", key, "error", err)
		return classify(err)
	}

	return nil
}

// Fetch reads back a stored record.
func (s *Store) Fetch(ctx context.Context, target, dedupKey string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, s.Key(target, dedupKey)).Result()
	if err != nil {
		return nil, classify(err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	return fields, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func classify(err error) error {
	var rErr redis.Error
	if errors.As(err, &rErr) {
		msg := strings.TrimPrefix(rErr.Error(), "ERR ")
		switch {
		case hasAnyPrefix(msg, "NOAUTH", "WRONGPASS", "NOPERM"):
			return sink.Unauthorized(err)
		case hasAnyPrefix(msg, "WRONGTYPE"):
			return sink.SchemaRejected(err)
		case hasAnyPrefix(msg, "OOM", "BUSY", "TRYAGAIN"):
			return sink.Throttled(err)
		}
	}

	// Network failures, timeouts and everything else are worth retrying.
	return sink.Transient(err)
}

func hasAnyPrefix(msg string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}
