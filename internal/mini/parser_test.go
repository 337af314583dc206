package mini

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func valuesAt(t *testing.T, src string, cycle int) []any {
	t.Helper()
	p, err := Parse(src)
	require.NoError(t, err, "parsing %q", src)
	haps := p.Query(arc.New(rational.FromInt(cycle), rational.FromInt(cycle+1)))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	out := make([]any, len(haps))
	for i, h := range haps {
		out[i] = h.Value
	}
	return out
}

func TestParseBasicSequence(t *testing.T) {
	assert.Equal(t, []any{"bd", "sd"}, valuesAt(t, "bd sd", 0))
}

func TestParseRest(t *testing.T) {
	assert.Equal(t, []any{"bd"}, valuesAt(t, "bd ~", 0))
}

func TestParseGroup(t *testing.T) {
	assert.Equal(t, []any{"bd", "sd", "hh"}, valuesAt(t, "bd [sd hh]", 0))
}

func TestParseAngleBracketsCyclesThroughAlternatives(t *testing.T) {
	assert.Equal(t, []any{"c3"}, valuesAt(t, "<c3 e3>", 0))
	assert.Equal(t, []any{"e3"}, valuesAt(t, "<c3 e3>", 1))
	assert.Equal(t, []any{"c3"}, valuesAt(t, "<c3 e3>", 2))
}

func TestParseReplicate(t *testing.T) {
	assert.Equal(t, []any{"bd", "bd", "bd"}, valuesAt(t, "bd!3", 0))
}

func TestParseWeight(t *testing.T) {
	p, err := Parse("bd@3 sd")
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	require.Len(t, haps, 2)
	assert.True(t, haps[0].Part.End.Equal(rational.New(3, 4)))
	assert.True(t, haps[1].Part.Begin.Equal(rational.New(3, 4)))
}

func TestParseFastAndSlowModifiers(t *testing.T) {
	got := valuesAt(t, "bd*2 sd", 0)
	assert.Equal(t, []any{"bd", "bd", "sd"}, got)
	// "/2" stretches the two-step group over two cycles.
	assert.Equal(t, []any{"bd"}, valuesAt(t, "[bd sd]/2", 0))
	assert.Equal(t, []any{"sd"}, valuesAt(t, "[bd sd]/2", 1))
}

func TestParseEuclid(t *testing.T) {
	p, err := Parse("bd(3,8)")
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	assert.Len(t, haps, 3)
}

func TestParsePolymeterStep(t *testing.T) {
	p, err := Parse("{bd sd, hh hh hh}%4")
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	assert.NotEmpty(t, haps)
}

func TestParseIndexedAtom(t *testing.T) {
	got := valuesAt(t, "bd:3", 0)
	require.Len(t, got, 1)
	idx, ok := got[0].(IndexedAtom)
	require.True(t, ok)
	assert.Equal(t, "bd", idx.Name)
	assert.Equal(t, "3", idx.Index)
}

func TestParseIsMemoized(t *testing.T) {
	p1, err := Parse("bd sd hh")
	require.NoError(t, err)
	p2, err := Parse("bd sd hh")
	require.NoError(t, err)
	assert.Equal(t, p1.Query(arc.New(rational.Zero, rational.One)), p2.Query(arc.New(rational.Zero, rational.One)))
}

func TestParseUnmatchedBracketErrors(t *testing.T) {
	_, err := Parse("[bd sd")
	assert.Error(t, err)
}

func TestParseTrailingGarbageErrors(t *testing.T) {
	_, err := Parse("bd sd]")
	assert.Error(t, err)
}
