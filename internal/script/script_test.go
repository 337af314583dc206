package script

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/rational"
	"github.com/cbegin/patterncycle-go/internal/voice"
)

func TestCompileSoundConstructor(t *testing.T) {
	p, err := Compile(`s("bd sd")`)
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	require.Len(t, haps, 2)
	vd, ok := haps[0].Value.(voice.VoiceData)
	require.True(t, ok)
	require.NotNil(t, vd.Sound)
	assert.Equal(t, "bd", *vd.Sound)
}

func TestCompileFastMethod(t *testing.T) {
	p, err := Compile(`s("bd").fast(2)`)
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	assert.Len(t, haps, 2)
}

func TestCompileEuclidChain(t *testing.T) {
	p, err := Compile(`s("bd").euclid(3, 8)`)
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	assert.Len(t, haps, 3)
}

func TestCompileRevChain(t *testing.T) {
	p, err := Compile(`seq("0", "1").rev()`)
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	require.Len(t, haps, 2)
	assert.Equal(t, "1", haps[0].Value)
	assert.Equal(t, "0", haps[1].Value)
}

func TestCompileEveryWithArrowFunction(t *testing.T) {
	p, err := Compile(`s("bd").every(2, x => x.fast(2))`)
	require.NoError(t, err)
	cycle0 := p.Query(arc.New(rational.Zero, rational.One))
	cycle1 := p.Query(arc.New(rational.One, rational.FromInt(2)))
	assert.Len(t, cycle0, 1)
	assert.Len(t, cycle1, 2)
}

func TestCompileStackConstructor(t *testing.T) {
	p, err := Compile(`stack(s("bd"), s("hh"))`)
	require.NoError(t, err)
	haps := p.Query(arc.New(rational.Zero, rational.One))
	assert.Len(t, haps, 2)
}

func TestCompileUnknownFunctionErrors(t *testing.T) {
	_, err := Compile(`bogus("x")`)
	assert.Error(t, err)
}

func TestCompileSyntaxErrorReturnsError(t *testing.T) {
	_, err := Compile(`s("bd"`)
	assert.Error(t, err)
}

func TestCompileDivisionByZeroErrors(t *testing.T) {
	_, err := Compile(`1 / 0`)
	assert.Error(t, err)
}
