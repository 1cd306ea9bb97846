//go:build unit

package sink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/record"
	"github.com/coderxlab/featurestream/sink"
	mocksink "github.com/coderxlab/featurestream/sink/mock"
	"github.com/hugolhafner/dskit/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackoff struct {
	mu    sync.Mutex
	calls []uint
}

func (b *recordingBackoff) Next(attempt uint) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, attempt)
	return time.Millisecond
}

func (b *recordingBackoff) Calls() []uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint(nil), b.calls...)
}

func order(customer, eventTime string) record.FeatureRecord {
	return record.FeatureRecord{
		Names: record.DefaultRequiredFields,
		Fields: map[string]string{
			record.FieldCustomerID:  customer,
			record.FieldProductID:   "P1000",
			record.FieldOrderAmount: "12.50",
			record.FieldOrderStatus: "completed",
			record.FieldEventTime:   eventTime,
		},
		Origin: record.Origin{Topic: "ml-features", Partition: 0, Offset: 7},
	}
}

func newClient(store sink.Store, b backoff.Backoff, opts ...sink.Option) *sink.Client {
	policy := errorhandler.NewPolicy(errorhandler.PolicyConfig{MaxAttempts: 5, Backoff: b}, logger.NewNoopLogger())
	opts = append([]sink.Option{sink.WithTarget("orders-fg"), sink.WithPolicy(policy)}, opts...)
	return sink.NewClient(store, opts...)
}

func TestPut_Success(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore()
	c := newClient(store, &recordingBackoff{})

	r := order("C1000", "2024-01-01T00:00:00Z")
	ack, err := c.Put(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, 1, ack.Attempts)
	require.Equal(t, c.DedupKey(r), ack.DedupKey)

	fields, ok := store.Get("orders-fg", ack.DedupKey)
	require.True(t, ok)
	require.Equal(t, r.Fields, fields)
}

func TestPut_ThrottledTwiceThenSucceeds(t *testing.T) {
	t.Parallel()

	throttled := sink.Throttled(errors.New("rate exceeded"))
	store := mocksink.NewStore(mocksink.WithErrors(throttled, throttled))
	b := &recordingBackoff{}
	c := newClient(store, b)

	ack, err := c.Put(context.Background(), order("C1000", "2024-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.Equal(t, 3, ack.Attempts)

	require.Equal(t, []uint{1, 2}, b.Calls(), "two backoff delays")
	require.Equal(t, 1, store.Count(), "one logical record")

	calls := store.Calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		require.Equal(t, ack.DedupKey, call.DedupKey, "same dedup key on every attempt")
	}
}

func TestPut_SchemaRejectedIsNotRetried(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore(mocksink.WithErrors(sink.SchemaRejected(errors.New("unknown feature"))))
	b := &recordingBackoff{}
	c := newClient(store, b)

	_, err := c.Put(context.Background(), order("C1000", "t"))
	require.Error(t, err)

	de, ok := sink.AsDeliveryError(err)
	require.True(t, ok)
	require.Equal(t, errorhandler.ActionTypeSendToDLQ, de.Action)
	require.Equal(t, 1, de.Attempts)
	require.Equal(t, errorhandler.KindSchemaRejected, errorhandler.Classify(err))
	require.Empty(t, b.Calls())
	require.Len(t, store.Calls(), 1)
}

func TestPut_UnauthorizedFails(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore(mocksink.WithErrors(sink.Unauthorized(errors.New("denied"))))
	c := newClient(store, &recordingBackoff{})

	_, err := c.Put(context.Background(), order("C1000", "t"))
	de, ok := sink.AsDeliveryError(err)
	require.True(t, ok)
	require.Equal(t, errorhandler.ActionTypeFail, de.Action)
	require.Len(t, store.Calls(), 1)
}

func TestPut_ExhaustedRetriesDeadLetter(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore(mocksink.WithErrorFunc(func(mocksink.Call) error {
		return sink.Transient(errors.New("timeout"))
	}))
	b := &recordingBackoff{}
	c := newClient(store, b)

	_, err := c.Put(context.Background(), order("C1000", "t"))
	de, ok := sink.AsDeliveryError(err)
	require.True(t, ok)
	require.Equal(t, errorhandler.ActionTypeSendToDLQ, de.Action)
	require.Equal(t, 5, de.Attempts)
	require.Len(t, store.Calls(), 5)
	require.Equal(t, []uint{1, 2, 3, 4}, b.Calls())
}

func TestPut_UnclassifiedErrorIsTransient(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore(mocksink.WithErrors(errors.New("connection reset")))
	c := newClient(store, &recordingBackoff{})

	ack, err := c.Put(context.Background(), order("C1000", "t"))
	require.NoError(t, err)
	require.Equal(t, 2, ack.Attempts)
}

func TestPut_RepeatedPutsAreIdempotent(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore()
	c := newClient(store, &recordingBackoff{})

	r := order("C1000", "2024-01-01T00:00:00Z")
	for i := 0; i < 5; i++ {
		_, err := c.Put(context.Background(), r)
		require.NoError(t, err)
	}

	require.Equal(t, 1, store.Count())
	require.Len(t, store.Calls(), 5)
}

func TestPut_InFlightCap(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	store := mocksink.NewStore(mocksink.WithGate(gate))
	c := newClient(store, &recordingBackoff{}, sink.WithMaxInFlight(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Put(context.Background(), order("C"+string(rune('A'+i)), "t"))
			assert.NoError(t, err)
		}(i)
	}

	require.Eventually(t, func() bool { return store.Current() == 2 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Saturated())
	require.Equal(t, 2, c.InFlight())

	time.Sleep(20 * time.Millisecond)
	require.Len(t, store.Calls(), 2, "callers beyond the cap wait for a slot")

	close(gate)
	wg.Wait()

	require.Equal(t, 2, store.PeakConcurrency())
	require.Equal(t, 6, store.Count())
	require.Equal(t, 0, c.InFlight())
}

func TestPut_CancelledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	defer close(gate)
	store := mocksink.NewStore(mocksink.WithGate(gate))
	c := newClient(store, &recordingBackoff{}, sink.WithMaxInFlight(1))

	go func() { _, _ = c.Put(context.Background(), order("C1", "t")) }()
	require.Eventually(t, c.Saturated, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Put(ctx, order("C2", "t"))
	require.ErrorIs(t, err, sink.ErrAbandoned)
	_, ok := sink.AsDeliveryError(err)
	require.False(t, ok)
}

func TestPut_RateLimit(t *testing.T) {
	t.Parallel()

	store := mocksink.NewStore()
	c := newClient(store, &recordingBackoff{}, sink.WithRateLimit(50, 1))

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.Put(context.Background(), order("C"+string(rune('A'+i)), "t"))
		require.NoError(t, err)
	}

	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
