package shards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanges(t *testing.T) {
	assert.Empty(t, Ranges(0, 4))
	assert.Equal(t, []Range{{Lo: 0, Hi: 5}}, Ranges(5, 1))
	assert.Equal(t, []Range{{Lo: 0, Hi: 1}, {Lo: 1, Hi: 2}, {Lo: 2, Hi: 3}}, Ranges(3, 8))
	assert.Equal(t, []Range{{Lo: 0, Hi: 7}}, Ranges(7, 0))
}

func TestRangesCoverContiguously(t *testing.T) {
	ranges := Ranges(10, 3)
	require.Len(t, ranges, 3)
	assert.Equal(t, 0, ranges[0].Lo)
	assert.Equal(t, 10, ranges[2].Hi)
	for i := 1; i < len(ranges); i++ {
		assert.Equal(t, ranges[i-1].Hi, ranges[i].Lo)
	}
}
