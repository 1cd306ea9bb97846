//go:build unit

package offset_test

import (
	"math/rand/v2"
	"testing"

	"github.com/coderxlab/featurestream/offset"
	"github.com/stretchr/testify/require"
)

func TestWindow_InOrder(t *testing.T) {
	t.Parallel()

	w := offset.NewWindow(tp)
	r0, err := w.Track(0)
	require.NoError(t, err)
	r1, err := w.Track(1)
	require.NoError(t, err)

	h, ok := r0()
	require.True(t, ok)
	require.Equal(t, int64(0), h)

	h, ok = r1()
	require.True(t, ok)
	require.Equal(t, int64(1), h)
	require.Equal(t, 0, w.Pending())
}

func TestWindow_OutOfOrderWaitsForPrefix(t *testing.T) {
	t.Parallel()

	w := offset.NewWindow(tp)
	r5, _ := w.Track(5)
	r6, _ := w.Track(6)
	r9, _ := w.Track(9)

	_, ok := r9()
	require.False(t, ok)
	_, ok = r6()
	require.False(t, ok)
	require.Equal(t, offset.None, w.Highest())
	require.Equal(t, 1, w.Pending())

	h, ok := r5()
	require.True(t, ok)
	require.Equal(t, int64(9), h)
}

func TestWindow_ResolveTwice(t *testing.T) {
	t.Parallel()

	w := offset.NewWindow(tp)
	r, _ := w.Track(1)
	_, ok := r()
	require.True(t, ok)

	h, ok := r()
	require.False(t, ok)
	require.Equal(t, int64(1), h)
	require.Equal(t, 0, w.Pending())
}

func TestWindow_RejectsNonIncreasingTrack(t *testing.T) {
	t.Parallel()

	w := offset.NewWindow(tp)
	_, err := w.Track(3)
	require.NoError(t, err)

	_, err = w.Track(3)
	_, ok := offset.AsContractViolation(err)
	require.True(t, ok)
}

func TestWindow_NeverPassesUnresolved(t *testing.T) {
	t.Parallel()

	for round := 0; round < 20; round++ {
		w := offset.NewWindow(tp)

		const n = 50
		resolvers := make([]offset.Resolver, n)
		for i := range resolvers {
			r, err := w.Track(int64(i))
			require.NoError(t, err)
			resolvers[i] = r
		}

		resolved := make([]bool, n)
		for _, i := range rand.Perm(n) {
			resolved[i] = true
			h, _ := resolvers[i]()

			prefix := int64(-1)
			for j := 0; j < n && resolved[j]; j++ {
				prefix = int64(j)
			}
			require.Equal(t, prefix, h)
		}
		require.Equal(t, int64(n-1), w.Highest())
	}
}

func TestWindow_Last(t *testing.T) {
	t.Parallel()

	w := offset.NewWindow(tp)
	require.Equal(t, offset.None, w.Last())

	r, _ := w.Track(4)
	_, _ = w.Track(7)
	r()
	require.Equal(t, int64(7), w.Last())
}
