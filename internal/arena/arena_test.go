package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/smoftools/smof/internal/errs"
)

func TestAllocBasic(t *testing.T) {
	a := New(64)
	b, err := a.Alloc(10, 1)
	require.NoError(t, err)
	require.Len(t, b, 10)
	require.Equal(t, 10, a.Stats().Used)
}

func TestAllocAlignment(t *testing.T) {
	a := New(64)
	_, err := a.Alloc(1, 1)
	require.NoError(t, err)
	b, err := a.Alloc(4, 8)
	require.NoError(t, err)
	require.Len(t, b, 4)
	require.Equal(t, 8, a.Stats().Used-4)
}

func TestAllocOutOfMemory(t *testing.T) {
	a := New(8)
	_, err := a.Alloc(16, 1)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.OutOfMemory))
}

func TestResetInvalidatesUsage(t *testing.T) {
	a := New(64)
	_, err := a.Alloc(32, 1)
	require.NoError(t, err)
	require.Equal(t, 32, a.Stats().Used)

	a.Reset()
	require.Equal(t, 0, a.Stats().Used)

	_, err = a.Alloc(64, 1)
	require.NoError(t, err)
}

func TestAllocCopyIndependentOfSource(t *testing.T) {
	a := New(64)
	src := []byte("hello")
	dst, err := a.AllocCopy(src)
	require.NoError(t, err)
	require.Equal(t, src, dst)

	src[0] = 'X'
	require.Equal(t, byte('h'), dst[0])
}

func TestStatsTracksPeakAndCount(t *testing.T) {
	a := New(64)
	_, _ = a.Alloc(10, 1)
	_, _ = a.Alloc(10, 1)
	stats := a.Stats()
	require.Equal(t, 2, stats.Count)
	require.Equal(t, 20, stats.Peak)

	a.Reset()
	require.Equal(t, 0, a.Stats().Used)
	require.Equal(t, 0, a.Stats().Peak)
}
