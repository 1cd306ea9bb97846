//go:build unit

package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/stretchr/testify/require"
)

type fakeRedisErr string

func (e fakeRedisErr) Error() string { return string(e) }
func (e fakeRedisErr) RedisError()   {}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want errorhandler.Kind
	}{
		{"noauth", fakeRedisErr("NOAUTH Authentication required."), errorhandler.KindUnauthorized},
		{"wrongpass", fakeRedisErr("WRONGPASS invalid username-password pair"), errorhandler.KindUnauthorized},
		{"noperm", fakeRedisErr("NOPERM this user has no permissions"), errorhandler.KindUnauthorized},
		{"wrongtype", fakeRedisErr("WRONGTYPE Operation against a key holding the wrong kind of value"), errorhandler.KindSchemaRejected},
		{"oom", fakeRedisErr("OOM command not allowed when used memory > 'maxmemory'."), errorhandler.KindThrottled},
		{"busy", fakeRedisErr("BUSY Redis is busy running a script."), errorhandler.KindThrottled},
		{"kvrocks prefix", fakeRedisErr("ERR NOAUTH Authentication required."), errorhandler.KindUnauthorized},
		{"loading", fakeRedisErr("LOADING Redis is loading the dataset in memory"), errorhandler.KindTransient},
		{"deadline", context.DeadlineExceeded, errorhandler.KindTransient},
		{"plain", errors.New("dial tcp: connection refused"), errorhandler.KindTransient},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				err := classify(tt.err)
				require.Equal(t, tt.want, errorhandler.Classify(err))
				require.ErrorIs(t, err, tt.err)
			},
		)
	}
}
