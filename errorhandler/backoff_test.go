//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyConfig_BackoffStaysWithinJitter(t *testing.T) {
	t.Parallel()

	b := errorhandler.DefaultPolicyConfig().Backoff

	for attempt := uint(1); attempt <= 10; attempt++ {
		nominal := float64(100*time.Millisecond) * float64(uint(1)<<(attempt-1))
		lo := time.Duration(nominal * 0.8)
		hi := min(time.Duration(nominal*1.2), 10*time.Second)

		for i := 0; i < 50; i++ {
			d := b.Next(attempt)
			require.GreaterOrEqual(t, d, min(lo, 10*time.Second), "attempt %d", attempt)
			require.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func TestWithMaxAttempts_WaitsBackoffDelay(t *testing.T) {
	t.Parallel()

	b := &countingBackoff{delay: 30 * time.Millisecond}
	h := errorhandler.WithMaxAttempts(5, b, errorhandler.SilentFail())

	start := time.Now()
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("x")).WithAttempt(4)
	require.Equal(t, errorhandler.ActionRetry{}, h.Handle(context.Background(), ec))

	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, []uint{4}, b.calls)
}
