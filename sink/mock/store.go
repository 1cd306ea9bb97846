package mocksink

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/coderxlab/featurestream/sink"
)

var _ sink.Store = (*Store)(nil)

// Call is one PutRecord invocation.
type Call struct {
	Target   string
	DedupKey string
	Fields   map[string]string
}

// Store is an in-memory upsert-by-key feature store.
type Store struct {
	mu sync.Mutex

	records map[string]map[string]string
	calls   []Call

	script  []error
	errFn   func(Call) error
	delay   time.Duration
	gate    chan struct{}
	current int
	peak    int

	closed bool
}

type Option func(*Store)

// WithErrors makes the next len(errs) calls fail in order. A nil entry succeeds.
func WithErrors(errs ...error) Option {
	return func(s *Store) {
		s.script = append(s.script, errs...)
	}
}

// WithErrorFunc decides the result of every call after the scripted ones.
func WithErrorFunc(fn func(Call) error) Option {
	return func(s *Store) {
		s.errFn = fn
	}
}

func WithDelay(d time.Duration) Option {
	return func(s *Store) {
		s.delay = d
	}
}

// WithGate blocks every call until gate is closed or the call's context ends.
func WithGate(gate chan struct{}) Option {
	return func(s *Store) {
		s.gate = gate
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{records: make(map[string]map[string]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) PutRecord(ctx context.Context, target, dedupKey string, fields map[string]string) error {
	call := Call{Target: target, DedupKey: dedupKey, Fields: maps.Clone(fields)}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.current++
	if s.current > s.peak {
		s.peak = s.current
	}
	var err error
	scripted := false
	if len(s.script) > 0 {
		err, s.script = s.script[0], s.script[1:]
		scripted = true
	}
	errFn, gate, delay := s.errFn, s.gate, s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !scripted && errFn != nil {
		err = errFn(call)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[target+"/"+dedupKey] = call.Fields
	s.mu.Unlock()

	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count is the number of distinct logical records stored.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) Get(target, dedupKey string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.records[target+"/"+dedupKey]
	return maps.Clone(f), ok
}

// PeakConcurrency is the most calls observed running at once.
func (s *Store) PeakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func (s *Store) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
