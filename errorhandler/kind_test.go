//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want errorhandler.Kind
	}{
		{"nil", nil, errorhandler.KindUnknown},
		{"classified", kindErr{errorhandler.KindThrottled}, errorhandler.KindThrottled},
		{"wrapped classified", fmt.Errorf("put: %w", kindErr{errorhandler.KindSchemaRejected}), errorhandler.KindSchemaRejected},
		{"plain error", errors.New("connection reset"), errorhandler.KindTransient},
		{"deadline", context.DeadlineExceeded, errorhandler.KindTransient},
		{"cancelled", context.Canceled, errorhandler.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				require.Equal(t, tt.want, errorhandler.Classify(tt.err))
			},
		)
	}
}

func TestKind_Retryable(t *testing.T) {
	t.Parallel()

	retryable := map[errorhandler.Kind]bool{
		errorhandler.KindThrottled:         true,
		errorhandler.KindTransient:         true,
		errorhandler.KindSchemaRejected:    false,
		errorhandler.KindUnauthorized:      false,
		errorhandler.KindMissingField:      false,
		errorhandler.KindMalformedPayload:  false,
		errorhandler.KindContractViolation: false,
	}

	for k, want := range retryable {
		require.Equal(t, want, k.Retryable(), k.String())
	}
}
