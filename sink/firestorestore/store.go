package firestorestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/sink"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ sink.Store = (*Store)(nil)

type Config struct {
	ProjectID string
	// CollectionPrefix is prepended to the target to name the collection.
	CollectionPrefix string
}

// Store writes each record as the document dedupKey in the collection
// named after the target. Set replaces the document, making puts upserts.
type Store struct {
	client *firestore.Client
	prefix string
	owned  bool
	logger logger.Logger
}

// New creates a Firestore client using application default credentials.
func New(ctx context.Context, cfg Config, l logger.Logger) (*Store, error) {
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	l.Info("Firestore store initialised", "project_id", cfg.ProjectID)

	s := NewFromClient(client, cfg, l)
	s.owned = true
	return s, nil
}

// NewFromClient wraps a client whose lifecycle is managed by the caller.
func NewFromClient(client *firestore.Client, cfg Config, l logger.Logger) *Store {
	return &Store{
		client: client,
		prefix: cfg.CollectionPrefix,
		logger: l.With("component", "firestore-store"),
	}
}

func (s *Store) PutRecord(ctx context.Context, target, dedupKey string, fields map[string]string) error {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
	}

	_, err := s.client.Collection(s.prefix+target).Doc(dedupKey).Set(ctx, data)
	if err != nil {
		s.logger.Debug("Firestore set failed", "collection", s.prefix+target, "doc", dedupKey, "error", err)
		return classify(err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return sink.Throttled(err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return sink.Unauthorized(err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return sink.SchemaRejected(err)
	default:
		return sink.Transient(err)
	}
}
