package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func TestPlan_ExactMultiple(t *testing.T) {
	ranges, err := Plan(100*mib, 10*mib)
	require.NoError(t, err)
	require.Len(t, ranges, 10)

	assert.Equal(t, Range{Part: 1, From: 0, To: 10*mib - 1}, ranges[0])
	assert.Equal(t, Range{Part: 10, From: 90 * mib, To: 100*mib - 1}, ranges[9])
	assert.NoError(t, CheckCapacity(100*mib, 10*mib, MaxParts))
}

func TestPlan_ShortLastChunk(t *testing.T) {
	ranges, err := Plan(25, 10)
	require.NoError(t, err)
	assert.Equal(t, []Range{
		{Part: 1, From: 0, To: 9},
		{Part: 2, From: 10, To: 19},
		{Part: 3, From: 20, To: 24},
	}, ranges)
	assert.Equal(t, int64(5), ranges[2].Len())
	assert.Equal(t, "bytes=20-24", ranges[2].Header())
}

func TestPlan_CoversWholeFile(t *testing.T) {
	sizes := []int64{1, 9, 10, 11, 99, 100, 101, 12345}
	for _, size := range sizes {
		ranges, err := Plan(size, 10)
		require.NoError(t, err)

		assert.EqualValues(t, PartCount(size, 10), len(ranges), "size %d", size)
		assert.Equal(t, int64(0), ranges[0].From)
		assert.Equal(t, size-1, ranges[len(ranges)-1].To)

		var total int64
		for i, r := range ranges {
			assert.Equal(t, i+1, r.Part)
			assert.LessOrEqual(t, r.Len(), int64(10))
			assert.Positive(t, r.Len())
			if i > 0 {
				assert.Equal(t, ranges[i-1].To+1, r.From, "gap or overlap at part %d", r.Part)
			}
			total += r.Len()
		}
		assert.Equal(t, size, total)
	}
}

func TestPlan_ZeroSize(t *testing.T) {
	_, err := Plan(0, 10*mib)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPlan_InvalidChunkSize(t *testing.T) {
	_, err := Plan(10, 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
	assert.ErrorIs(t, CheckCapacity(10, -1, MaxParts), ErrInvalidChunkSize)
}

func TestCheckCapacity_TooManyParts(t *testing.T) {
	size := int64(MaxParts)*10 + 1
	assert.ErrorIs(t, CheckCapacity(size, 10, MaxParts), ErrTooManyParts)
	assert.NoError(t, CheckCapacity(size-1, 10, MaxParts))
}

func TestRanges_StopsEarly(t *testing.T) {
	var seen []int
	for r := range Ranges(100, 10) {
		seen = append(seen, r.Part)
		if r.Part == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRanges_EmptyForInvalidInput(t *testing.T) {
	count := 0
	for range Ranges(0, 10) {
		count++
	}
	assert.Zero(t, count)
}
