package hap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func r(num, den int64) rational.Rational { return rational.New(num, den) }

func TestHasOnset(t *testing.T) {
	whole := arc.New(r(0, 1), r(1, 1))
	onset := New(&whole, arc.New(r(0, 1), r(1, 1)), "a")
	assert.True(t, onset.HasOnset())

	// queried mid-event: Part begins after Whole, no onset in this fragment.
	trailing := New(&whole, arc.New(r(1, 4), r(1, 1)), "a")
	assert.False(t, trailing.HasOnset())

	continuous := New(nil, arc.New(r(0, 1), r(0, 1)), 0.5)
	assert.False(t, continuous.HasOnset())
}

func TestWholeOrPart(t *testing.T) {
	part := arc.New(r(0, 1), r(1, 2))
	h := New(nil, part, "x")
	assert.True(t, h.WholeOrPart().Begin.Equal(part.Begin))
	assert.True(t, h.WholeOrPart().End.Equal(part.End))

	whole := arc.New(r(0, 1), r(1, 1))
	h2 := New(&whole, part, "x")
	assert.True(t, h2.WholeOrPart().End.Equal(whole.End))
}

func TestWithSpanValue(t *testing.T) {
	whole := arc.New(r(0, 1), r(1, 1))
	h := New(&whole, arc.New(r(0, 1), r(1, 1)), "a")

	shifted := h.WithSpan(func(a arc.Arc) arc.Arc {
		return arc.New(a.Begin.Add(r(1, 1)), a.End.Add(r(1, 1)))
	})
	assert.True(t, shifted.Whole.Begin.Equal(r(1, 1)))
	assert.True(t, shifted.Part.Begin.Equal(r(1, 1)))

	upper := h.WithValue(func(v any) any { return v.(string) + "!" })
	assert.Equal(t, "a!", upper.Value)
	assert.Equal(t, "a", h.Value, "original unmodified")
}

func TestSplitQueries(t *testing.T) {
	q := arc.New(r(0, 1), r(2, 1))
	calls := 0
	out := SplitQueries(q, func(f arc.Arc) []Hap {
		calls++
		return []Hap{New(nil, f, calls)}
	})
	assert.Equal(t, 2, calls)
	assert.Len(t, out, 2)
}

func TestCloneWhole(t *testing.T) {
	a := arc.New(r(0, 1), r(1, 1))
	cloned := CloneWhole(a)
	assert.True(t, cloned.Begin.Equal(a.Begin))
	assert.NotSame(t, &a, cloned)
}
