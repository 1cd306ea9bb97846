//go:build unit

package errorhandler_test

import (
	"context"
	"testing"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/stretchr/testify/require"
)

func TestNewPolicy(t *testing.T) {
	t.Parallel()

	b := &countingBackoff{}
	policy := errorhandler.NewPolicy(errorhandler.PolicyConfig{MaxAttempts: 3, Backoff: b}, logger.NewNoopLogger())

	tests := []struct {
		kind    errorhandler.Kind
		attempt int
		want    errorhandler.Action
	}{
		{errorhandler.KindMalformedPayload, 1, errorhandler.ActionContinue{}},
		{errorhandler.KindMissingField, 1, errorhandler.ActionContinue{}},
		{errorhandler.KindThrottled, 1, errorhandler.ActionRetry{}},
		{errorhandler.KindTransient, 2, errorhandler.ActionRetry{}},
		{errorhandler.KindThrottled, 3, errorhandler.ActionSendToDLQ{}},
		{errorhandler.KindTransient, 3, errorhandler.ActionSendToDLQ{}},
		{errorhandler.KindSchemaRejected, 1, errorhandler.ActionSendToDLQ{}},
		{errorhandler.KindUnauthorized, 1, errorhandler.ActionFail{}},
		{errorhandler.KindContractViolation, 1, errorhandler.ActionFail{}},
		{errorhandler.KindUnknown, 1, errorhandler.ActionFail{}},
	}

	for _, tt := range tests {
		t.Run(
			tt.kind.String(), func(t *testing.T) {
				ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, kindErr{tt.kind}).WithAttempt(tt.attempt)
				require.Equal(t, tt.want, policy.Handle(context.Background(), ec))
			},
		)
	}
}
