//go:build unit

package firestorestore

import (
	"errors"
	"testing"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want errorhandler.Kind
	}{
		{status.Error(codes.ResourceExhausted, "quota"), errorhandler.KindThrottled},
		{status.Error(codes.Unavailable, "down"), errorhandler.KindTransient},
		{status.Error(codes.DeadlineExceeded, "slow"), errorhandler.KindTransient},
		{status.Error(codes.Aborted, "contention"), errorhandler.KindTransient},
		{status.Error(codes.PermissionDenied, "no"), errorhandler.KindUnauthorized},
		{status.Error(codes.Unauthenticated, "who"), errorhandler.KindUnauthorized},
		{status.Error(codes.InvalidArgument, "bad field"), errorhandler.KindSchemaRejected},
		{status.Error(codes.FailedPrecondition, "index"), errorhandler.KindSchemaRejected},
		{errors.New("plain"), errorhandler.KindTransient},
	}

	for _, tt := range tests {
		t.Run(
			status.Code(tt.err).String(), func(t *testing.T) {
				t.Parallel()
				require.Equal(t, tt.want, errorhandler.Classify(classify(tt.err)))
			},
		)
	}
}
