package join

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func sortedOnsets(p pattern.Pattern) []hap.Hap {
	haps := p.FilterOnsets().Query(arc.New(rational.Zero, rational.One))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	return haps
}

// S6: pickmodOut(["bd hh", "sd oh"], seq("0 1 2")).queryArc(0, 1) filtered to
// onsets -> three events with the exact (value, part, whole) triples below.
func TestPickModOutScenario(t *testing.T) {
	xs := []pattern.Pattern{
		pattern.Fastcat([]pattern.Pattern{pattern.Atom("bd"), pattern.Atom("hh")}),
		pattern.Fastcat([]pattern.Pattern{pattern.Atom("sd"), pattern.Atom("oh")}),
	}
	selector := pattern.Fastcat([]pattern.Pattern{pattern.Atom(0), pattern.Atom(1), pattern.Atom(2)})

	got := sortedOnsets(PickModOut(xs, selector))
	require.Len(t, got, 3)

	type want struct {
		value      string
		begin, end rational.Rational
		wBegin, wEnd rational.Rational
	}
	wants := []want{
		{"bd", rational.Zero, rational.New(1, 3), rational.Zero, rational.New(1, 3)},
		{"sd", rational.New(1, 3), rational.New(1, 2), rational.New(1, 3), rational.New(2, 3)},
		{"hh", rational.New(2, 3), rational.One, rational.New(2, 3), rational.One},
	}
	for i, w := range wants {
		h := got[i]
		assert.Equal(t, w.value, h.Value, "event %d", i)
		assert.True(t, h.Part.Begin.Equal(w.begin), "event %d part.begin", i)
		assert.True(t, h.Part.End.Equal(w.end), "event %d part.end", i)
		require.NotNil(t, h.Whole)
		assert.True(t, h.Whole.Begin.Equal(w.wBegin), "event %d whole.begin", i)
		assert.True(t, h.Whole.End.Equal(w.wEnd), "event %d whole.end", i)
	}
}

func TestPickModOutOneOnsetPerSelectorStep(t *testing.T) {
	xs := []pattern.Pattern{pattern.Atom("a"), pattern.Atom("b"), pattern.Atom("c")}
	selector := pattern.Fastcat([]pattern.Pattern{
		pattern.Atom(0), pattern.Atom(1), pattern.Atom(2), pattern.Atom(3), pattern.Atom(4),
	})
	got := PickModOut(xs, selector).FilterOnsets().Query(arc.New(rational.Zero, rational.One))
	assert.Len(t, got, 5)
}

func TestInnerJoinUsesInnerStructure(t *testing.T) {
	inner := pattern.Fastcat([]pattern.Pattern{pattern.Atom("x"), pattern.Atom("y")})
	outer := pattern.Atom(inner)
	got := InnerJoin(outer).Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, 2)
}

func TestMixJoinMergesValues(t *testing.T) {
	inner := pattern.Atom(10)
	outer := pattern.Atom(inner)
	merged := MixJoin(outer, func(o, i any) any { return i.(int) * 2 })
	got := merged.Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].Value)
}
