//go:build unit

package sink_test

import (
	"testing"

	"github.com/coderxlab/featurestream/record"
	"github.com/coderxlab/featurestream/sink"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFieldsKey(t *testing.T) {
	t.Parallel()

	key := sink.FieldsKey()

	a := order("C1000", "2024-01-01T00:00:00Z")
	b := order("C1000", "2024-01-01T00:00:00Z")
	b.Fields[record.FieldOrderAmount] = "99.00"
	b.Origin.Offset = 99

	require.Equal(t, key(a), key(b), "same customer and event time")
	require.NotEqual(t, key(a), key(order("C1001", "2024-01-01T00:00:00Z")))
	require.NotEqual(t, key(a), key(order("C1000", "2024-01-01T00:00:01Z")))

	parsed, err := uuid.Parse(key(a))
	require.NoError(t, err)
	require.Equal(t, uuid.Version(5), parsed.Version())
}

func TestFieldsKey_NoConcatenationCollision(t *testing.T) {
	t.Parallel()

	key := sink.FieldsKey("a", "b")
	x := record.FeatureRecord{Fields: map[string]string{"a": "ab", "b": "c"}}
	y := record.FeatureRecord{Fields: map[string]string{"a": "a", "b": "bc"}}

	require.NotEqual(t, key(x), key(y))
}

func TestOffsetKey(t *testing.T) {
	t.Parallel()

	key := sink.KeyFuncFor(sink.DedupByOffset)

	a := order("C1000", "t")
	b := order("C2000", "u")
	require.Equal(t, key(a), key(b), "same origin")

	b.Origin.Offset++
	require.NotEqual(t, key(a), key(b))
}
