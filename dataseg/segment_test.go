package dataseg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heapcraft/memmgr/dataseg"
)

func TestSegmentExtend(t *testing.T) {
	seg := dataseg.NewSegment(0)

	start, brk := seg.Stat()
	require.Equal(t, 0, start)
	require.Equal(t, 0, brk)

	old, err := seg.Extend(4096)
	require.NoError(t, err)
	require.Equal(t, 0, old)

	old, err = seg.Extend(8192)
	require.NoError(t, err)
	require.Equal(t, 4096, old)

	_, brk = seg.Stat()
	require.Equal(t, 12288, brk)
	require.Len(t, seg.Bytes(), 12288)
}

func TestSegmentExtendRejectsBadSize(t *testing.T) {
	seg := dataseg.NewSegment(0)

	_, err := seg.Extend(0)
	require.Error(t, err)
	_, err = seg.Extend(-1)
	require.Error(t, err)
}

func TestSegmentLimit(t *testing.T) {
	seg := dataseg.NewSegment(4096)

	_, err := seg.Extend(4096)
	require.NoError(t, err)

	_, err = seg.Extend(1)
	require.ErrorIs(t, err, dataseg.ErrOutOfMemory)

	// A failed extension must not move the break
	_, brk := seg.Stat()
	require.Equal(t, 4096, brk)
}

func TestSegmentTrim(t *testing.T) {
	seg := dataseg.NewSegment(0)

	_, err := seg.Extend(8192)
	require.NoError(t, err)

	require.NoError(t, seg.Trim(4096))
	_, brk := seg.Stat()
	require.Equal(t, 4096, brk)

	require.Error(t, seg.Trim(8192))
	require.Error(t, seg.Trim(-1))
}

func TestSegmentExtendZeroFills(t *testing.T) {
	seg := dataseg.NewSegment(0)

	_, err := seg.Extend(4096)
	require.NoError(t, err)

	buf := seg.Bytes()
	for i := range buf {
		buf[i] = 0xFF
	}

	// Trimmed-then-regrown bytes come back zeroed
	require.NoError(t, seg.Trim(4096))
	_, err = seg.Extend(4096)
	require.NoError(t, err)
	for i, b := range seg.Bytes() {
		require.Zerof(t, b, "byte %d is not zeroed", i)
	}
}
