package prand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func TestRDeterministic(t *testing.T) {
	a := R(42, 3, 1, "rand")
	b := R(42, 3, 1, "rand")
	assert.Equal(t, a, b)
}

func TestRDiffersByTag(t *testing.T) {
	a := R(42, 3, 1, "rand")
	b := R(42, 3, 1, "degradeBy")
	assert.NotEqual(t, a, b)
}

func TestRInUnitInterval(t *testing.T) {
	for cycle := 0; cycle < 20; cycle++ {
		v := R(7, cycle, 0, "rand")
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

// Seed determinism (spec property 7): repeat queries of the same seeded
// pattern return pointwise-equal values.
func TestSeedDeterminism(t *testing.T) {
	p := Rand(99)
	q := arc.New(rational.Zero, rational.FromInt(4))
	first := p.Query(q)
	second := p.Query(q)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Value, second[i].Value)
	}
}

func TestBRandThresholds(t *testing.T) {
	haps := BRand(1).Query(arc.New(rational.Zero, rational.FromInt(50)))
	for _, h := range haps {
		v := h.Value.(int)
		assert.True(t, v == 0 || v == 1)
	}
}

func TestChooseIndexesWithinBounds(t *testing.T) {
	xs := []string{"a", "b", "c"}
	haps := Choose(5, xs).Query(arc.New(rational.Zero, rational.FromInt(50)))
	for _, h := range haps {
		s := h.Value.(string)
		assert.Contains(t, xs, s)
	}
}

func TestWChooseRespectsWeights(t *testing.T) {
	xs := []Weighted[string]{{Value: "only", Weight: 1}}
	haps := WChoose(3, xs).Query(arc.New(rational.Zero, rational.FromInt(5)))
	for _, h := range haps {
		assert.Equal(t, "only", h.Value)
	}
}

// Property 8: degradeByWith on a pattern with m events per cycle returns
// either 0 or m events per cycle, never in between.
func TestDegradeByWithAllOrNothingPerCycle(t *testing.T) {
	base := pattern.Fastcat([]pattern.Pattern{
		pattern.Atom("a"), pattern.Atom("b"), pattern.Atom("c"), pattern.Atom("d"),
	})
	m := 4
	degraded := DegradeByWith(RandCycle(11), 0.5, base)
	for cycle := 0; cycle < 30; cycle++ {
		got := degraded.Query(arc.New(rational.FromInt(cycle), rational.FromInt(cycle+1)))
		assert.True(t, len(got) == 0 || len(got) == m, "cycle %d: got %d events, want 0 or %d", cycle, len(got), m)
	}
}

func TestDegradeByDropsRoughlyXFraction(t *testing.T) {
	atoms := make([]pattern.Pattern, 200)
	for i := range atoms {
		atoms[i] = pattern.Atom(i)
	}
	p := pattern.Fastcat(atoms)
	degraded := DegradeBy(5, 0.5, p)
	got := degraded.Query(arc.New(rational.Zero, rational.One))
	assert.Greater(t, len(got), 0)
	assert.Less(t, len(got), 200)
}

func TestSomeCyclesByAllOrNothing(t *testing.T) {
	p := pattern.Fastcat([]pattern.Pattern{pattern.Atom(1), pattern.Atom(2), pattern.Atom(3)})
	transformed := SomeCyclesBy(13, 0.5, func(p pattern.Pattern) pattern.Pattern {
		return p.Fmap(func(v any) any { return v.(int) * 100 })
	}, p)
	for cycle := 0; cycle < 20; cycle++ {
		got := transformed.Query(arc.New(rational.FromInt(cycle), rational.FromInt(cycle+1)))
		allOriginal, allTransformed := true, true
		for _, h := range got {
			if h.Value.(int) >= 100 {
				allOriginal = false
			} else {
				allTransformed = false
			}
		}
		assert.True(t, allOriginal || allTransformed, "cycle %d mixed original and transformed events", cycle)
	}
}
