package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func TestSineRange(t *testing.T) {
	haps := Sine().Query(arc.New(rational.Zero, rational.FromInt(4)))
	for _, h := range haps {
		v := h.Value.(float64)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSawMonotonicWithinCycle(t *testing.T) {
	a := Saw().Query(arc.New(rational.New(1, 4), rational.New(1, 4)))
	b := Saw().Query(arc.New(rational.New(3, 4), rational.New(3, 4)))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Less(t, a[0].Value.(float64), b[0].Value.(float64))
}

func TestTriPeaksAtHalfCycle(t *testing.T) {
	mid := Tri().Query(arc.New(rational.OneHalf, rational.OneHalf))
	start := Tri().Query(arc.New(rational.Zero, rational.Zero))
	require.Len(t, mid, 1)
	require.Len(t, start, 1)
	assert.InDelta(t, 1.0, mid[0].Value.(float64), 1e-9)
	assert.InDelta(t, 0.0, start[0].Value.(float64), 1e-9)
}

func TestSquareStepsAtMidCycle(t *testing.T) {
	before := Square().Query(arc.New(rational.New(1, 4), rational.New(1, 4)))
	after := Square().Query(arc.New(rational.New(3, 4), rational.New(3, 4)))
	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Equal(t, 0.0, before[0].Value.(float64))
	assert.Equal(t, 1.0, after[0].Value.(float64))
}

func TestSegmentProducesNDiscreteOnsets(t *testing.T) {
	got := Segment(4, Saw()).Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, 4)
	for _, h := range got {
		assert.True(t, h.HasOnset())
	}
	assert.InDelta(t, 0.0, got[0].Value.(float64), 1e-9)
	assert.InDelta(t, 0.5, got[2].Value.(float64), 1e-9)
}

func TestRangeRescales(t *testing.T) {
	got := Range(100, 200, Steady(0.5)).Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, 1)
	assert.Equal(t, 150.0, got[0].Value)
}
