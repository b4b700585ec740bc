package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndCompare(t *testing.T) {
	a, err := Parse("0.2.1")
	require.NoError(t, err)
	b, err := Parse("0.3.0")
	require.NoError(t, err)
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestInRange(t *testing.T) {
	min, _ := Parse("0.1.0")
	max, _ := Parse("0.2.99")
	v, _ := Parse("0.2.1")
	assert.True(t, InRange(v, min, max))

	outOfRange, _ := Parse("0.3.0")
	assert.False(t, InRange(outOfRange, min, max))
}

func TestRangesOverlap(t *testing.T) {
	min1, _ := Parse("1.0.0")
	max1, _ := Parse("1.2.0")
	min2, _ := Parse("1.1.0")
	max2, _ := Parse("1.3.0")
	assert.True(t, RangesOverlap(min1, max1, min2, max2))

	min3, _ := Parse("2.0.0")
	max3, _ := Parse("2.1.0")
	assert.False(t, RangesOverlap(min1, max1, min3, max3))
}
