package rangebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

func samples(n int, start core.Sample) []core.Sample {
	out := make([]core.Sample, n)
	for i := range out {
		out[i] = start + core.Sample(i)
	}
	return out
}

func TestWriteMergesAdjacentRanges(t *testing.T) {
	b := New()
	b.Write(0, samples(4, 0))
	b.Write(4, samples(4, 4))

	require.Equal(t, 1, b.Len())
	ranges := b.Ranges()
	assert.Equal(t, 0, ranges[0].Offset)
	assert.Len(t, ranges[0].Data, 8)
}

func TestWriteKeepsDisjointRangesSeparate(t *testing.T) {
	b := New()
	b.Write(0, samples(4, 0))
	b.Write(100, samples(4, 100))

	assert.Equal(t, 2, b.Len())
}

func TestWriteMergesOverlappingRanges(t *testing.T) {
	b := New()
	b.Write(0, samples(8, 0))
	b.Write(4, samples(8, 100)) // overlaps [4,8), extends to 12

	require.Equal(t, 1, b.Len())
	ranges := b.Ranges()
	assert.Len(t, ranges[0].Data, 12)
}

func TestReadReturnsGapBeforeAnyWrite(t *testing.T) {
	b := New()
	buf := make([]core.Sample, 4)
	n, end := b.Read(0, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, Gap, end)
}

func TestReadReturnsMoreWhenBufferFullyFilled(t *testing.T) {
	b := New()
	b.Write(0, samples(10, 0))

	buf := make([]core.Sample, 4)
	n, end := b.Read(0, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, More, end)
}

func TestReadReturnsGapWhenDataRunsOutWithinBuf(t *testing.T) {
	b := New()
	b.Write(0, samples(4, 0))

	buf := make([]core.Sample, 10)
	n, end := b.Read(0, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, Gap, end)
}

func TestReadReturnsEndAtExpectedLength(t *testing.T) {
	b := New()
	b.SetExpectedLength(4)
	b.Write(0, samples(4, 0))

	buf := make([]core.Sample, 10)
	n, end := b.Read(0, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, End, end)

	n, end = b.Read(4, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, End, end)
}

func TestDistanceFromVoid(t *testing.T) {
	b := New()
	b.Write(0, samples(10, 0))

	dist, isEnd := b.DistanceFromVoid(3)
	assert.Equal(t, 7, dist)
	assert.True(t, isEnd)

	dist, isEnd = b.DistanceFromVoid(20)
	assert.Equal(t, 0, dist)
	assert.True(t, isEnd) // nothing written at or after 20
}

func TestRetainWindowDropsOutsideRangeSnappedToChunks(t *testing.T) {
	b := New()
	b.Write(0, samples(100, 0))

	b.RetainWindow(50, 10, 4)

	ranges := b.Ranges()
	require.Len(t, ranges, 1)
	assert.LessOrEqual(t, ranges[0].Offset, 40)
	assert.GreaterOrEqual(t, ranges[0].end(), 60)
}

func TestRetainWindowSnapsNonMultipleHiToItsOwnChunk(t *testing.T) {
	b := New()
	b.Write(0, samples(20, 0))

	b.RetainWindow(10, 3, 2)

	ranges := b.Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, 6, ranges[0].Offset)
	assert.Len(t, ranges[0].Data, 8)
}

func TestRetainWindowRemovesRangesEntirelyOutside(t *testing.T) {
	b := New()
	b.Write(0, samples(4, 0))
	b.Write(1000, samples(4, 0))

	b.RetainWindow(1000, 5, 1)

	assert.Equal(t, 1, b.Len())
	ranges := b.Ranges()
	assert.Equal(t, 1000, ranges[0].Offset)
}
