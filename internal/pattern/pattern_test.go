package pattern

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func queryCycle(p Pattern, cycle int) []any {
	haps := p.Query(arc.New(rational.FromInt(cycle), rational.FromInt(cycle+1)))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	out := make([]any, len(haps))
	for i, h := range haps {
		out[i] = h.Value
	}
	return out
}

func TestPureOneEventPerCycle(t *testing.T) {
	haps := Pure("a").Query(arc.New(rational.Zero, rational.FromInt(2)))
	require.Len(t, haps, 2)
	assert.True(t, haps[0].HasOnset())
	assert.True(t, haps[0].Whole.Begin.Equal(rational.Zero))
	assert.True(t, haps[1].Whole.Begin.Equal(rational.One))
}

func TestFastSlowInverse(t *testing.T) {
	p := Fastcat([]Pattern{Atom("a"), Atom("b")})
	fast, err := Fast(rational.FromInt(2), p)
	require.NoError(t, err)
	slow, err := Slow(rational.New(1, 2), p)
	require.NoError(t, err)

	assert.Len(t, fast.Query(arc.New(rational.Zero, rational.One)), 4)
	assert.Len(t, slow.Query(arc.New(rational.Zero, rational.One)), 4)
}

func TestFastZeroIsArgumentError(t *testing.T) {
	_, err := Fast(rational.Zero, Atom("a"))
	assert.Error(t, err)
	_, err = Slow(rational.Zero, Atom("a"))
	assert.Error(t, err)
}

func TestRevInvolution(t *testing.T) {
	p := Fastcat([]Pattern{Atom("a"), Atom("b"), Atom("c")})
	twice := Rev(Rev(p))
	assert.Equal(t, queryCycle(p, 0), queryCycle(twice, 0))
}

// S2: note("c d").rev().queryArc(0, 1) sorted by part.begin -> [d, c].
func TestRevScenario(t *testing.T) {
	p := Fastcat([]Pattern{Atom("c"), Atom("d")})
	got := queryCycle(Rev(p), 0)
	assert.Equal(t, []any{"d", "c"}, got)
}

func TestStackWithSilenceIsIdentity(t *testing.T) {
	p := Fastcat([]Pattern{Atom("a"), Atom("b")})
	got := Stack([]Pattern{p, Silence})
	assert.Equal(t, queryCycle(p, 0), queryCycle(got, 0))
}

func TestFastcatEventCount(t *testing.T) {
	ps := []Pattern{Atom("a"), Atom("b"), Atom("c")}
	got := Fastcat(ps).Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, len(ps))
	assert.True(t, got[0].Part.Begin.Equal(rational.Zero))
	assert.True(t, got[0].Part.End.Equal(rational.New(1, 3)))
	assert.True(t, got[2].Part.End.Equal(rational.One))
}

// S1: note("a").euclid(3, 5).queryArc(0, 1) -> onsets at [0,1/5), [2/5,3/5), [4/5,1).
func TestEuclidScenario(t *testing.T) {
	got := Euclid(3, 5, Atom("a")).Query(arc.New(rational.Zero, rational.One))
	sort.Slice(got, func(i, j int) bool { return got[i].Part.Begin.Less(got[j].Part.Begin) })
	require.Len(t, got, 3)
	wantBegins := []rational.Rational{rational.Zero, rational.New(2, 5), rational.New(4, 5)}
	for i, h := range got {
		assert.True(t, h.HasOnset())
		assert.True(t, h.Whole.Begin.Equal(h.Part.Begin))
		assert.True(t, h.Whole.End.Equal(h.Part.End))
		assert.True(t, h.Part.Begin.Equal(wantBegins[i]), "onset %d: got %s want %s", i, h.Part.Begin, wantBegins[i])
	}
}

func TestEuclidOnsetCount(t *testing.T) {
	for _, c := range []struct{ k, n int }{{3, 8}, {5, 8}, {2, 7}} {
		got := Euclid(c.k, c.n, Atom(true)).FilterOnsets().Query(arc.New(rational.Zero, rational.One))
		assert.Len(t, got, c.k, "euclid(%d,%d)", c.k, c.n)
	}
}

// S5: seq("0 1 2 3").chunk(4, x -> x+12) transforms a different quarter each cycle.
func TestChunkScenario(t *testing.T) {
	base := Fastcat([]Pattern{Atom(0), Atom(1), Atom(2), Atom(3)})
	plus12 := func(p Pattern) Pattern {
		return p.Fmap(func(v any) any { return v.(int) + 12 })
	}
	chunked := Chunk(4, plus12, base)

	want := [][]any{
		{12, 1, 2, 3},
		{0, 1, 2, 15},
		{0, 1, 14, 3},
		{0, 13, 2, 3},
		{12, 1, 2, 3},
	}
	for cycle, w := range want {
		assert.Equal(t, w, queryCycle(chunked, cycle), "cycle %d", cycle)
	}
}

// S4: s("bd sd ht lt").slow(4).ribbon(2, 1).queryArc(k, k+1) always selects "ht".
func TestRibbonScenario(t *testing.T) {
	base := Fastcat([]Pattern{Atom("bd"), Atom("sd"), Atom("ht"), Atom("lt")})
	slowed, err := Slow(rational.FromInt(4), base)
	require.NoError(t, err)
	ribboned := Ribbon(rational.FromInt(2), rational.One, slowed)

	for k := 0; k < 4; k++ {
		got := ribboned.Query(arc.New(rational.FromInt(k), rational.FromInt(k+1)))
		require.Len(t, got, 1, "cycle %d", k)
		h := got[0]
		assert.Equal(t, "ht", h.Value)
		assert.True(t, h.HasOnset())
		assert.True(t, h.Part.Begin.Equal(rational.FromInt(k)))
		assert.True(t, h.Part.End.Equal(rational.FromInt(k+1)))
		assert.True(t, h.Whole.Begin.Equal(rational.FromInt(k)))
	}
}

func TestEveryAppliesOnNthCycle(t *testing.T) {
	p := Atom("a")
	transformed := Every(3, func(p Pattern) Pattern { return p.Fmap(func(any) any { return "x" }) }, p)
	assert.Equal(t, []any{"a"}, queryCycle(transformed, 0))
	assert.Equal(t, []any{"a"}, queryCycle(transformed, 1))
	assert.Equal(t, []any{"x"}, queryCycle(transformed, 2))
	assert.Equal(t, []any{"x"}, queryCycle(transformed, 5))
}

func TestIterRotatesAcrossCycles(t *testing.T) {
	base := Fastcat([]Pattern{Atom("a"), Atom("b"), Atom("c")})
	it := Iter(3, base)
	assert.Equal(t, []any{"a", "b", "c"}, queryCycle(it, 0))
	assert.Equal(t, []any{"b", "c", "a"}, queryCycle(it, 1))
	assert.Equal(t, []any{"c", "a", "b"}, queryCycle(it, 2))
	assert.Equal(t, []any{"a", "b", "c"}, queryCycle(it, 3))
}

func TestZoomRejectsInvertedRange(t *testing.T) {
	_, err := Zoom(rational.One, rational.Zero, Atom("a"))
	assert.Error(t, err)
}

func TestStructKeepsLatestValueAtOnset(t *testing.T) {
	mask := Fastcat([]Pattern{Atom(true), Atom(false), Atom(true)})
	vals := Fastcat([]Pattern{Atom("x"), Atom("y"), Atom("z")})
	got := Struct(mask, vals).Query(arc.New(rational.Zero, rational.One))
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Value)
	assert.Equal(t, "z", got[1].Value)
}

func TestSuperimposeStacks(t *testing.T) {
	p := Atom("a")
	got := Superimpose(func(p Pattern) Pattern { return p.Fmap(func(any) any { return "b" }) }, p)
	assert.Len(t, got.Query(arc.New(rational.Zero, rational.One)), 2)
}

func TestWithSeedPropagates(t *testing.T) {
	p := Atom("a").WithSeed(42)
	fasted, err := Fast(rational.FromInt(2), p)
	require.NoError(t, err)
	assert.Equal(t, int64(42), fasted.Seed())
}
