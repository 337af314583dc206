package voice

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// S3: sound("bd hh sn").delay("0.2 0.5 0.8").queryArc(0, 1) -> three
// (sound, delay) pairs in order.
func TestDelayScenario(t *testing.T) {
	sounds := Sound(pattern.Fastcat([]pattern.Pattern{
		pattern.Atom("bd"), pattern.Atom("hh"), pattern.Atom("sn"),
	}))
	delays := Delay(pattern.Fastcat([]pattern.Pattern{
		pattern.Atom(0.2), pattern.Atom(0.5), pattern.Atom(0.8),
	}))
	merged := Apply(sounds, delays)

	haps := merged.Query(arc.New(rational.Zero, rational.One))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	require.Len(t, haps, 3)

	wantSound := []string{"bd", "hh", "sn"}
	wantDelay := []float64{0.2, 0.5, 0.8}
	for i, h := range haps {
		vd, ok := h.Value.(VoiceData)
		require.True(t, ok)
		require.NotNil(t, vd.Sound)
		require.NotNil(t, vd.DelayAmt)
		assert.Equal(t, wantSound[i], *vd.Sound)
		assert.InDelta(t, wantDelay[i], *vd.DelayAmt, 1e-9)
	}
}

func TestMergeRightPreservesUnsetBaseFields(t *testing.T) {
	n := 60.0
	base := VoiceData{Note: &n}
	p := 0.75
	ctrl := VoiceData{Pan: &p}

	merged := MergeRight(base, ctrl)
	require.NotNil(t, merged.Note)
	require.NotNil(t, merged.Pan)
	assert.Equal(t, 60.0, *merged.Note)
	assert.Equal(t, 0.75, *merged.Pan)
}

func TestMergeRightCtrlOverridesBase(t *testing.T) {
	a, b := 1.0, 2.0
	base := VoiceData{Gain: &a}
	ctrl := VoiceData{Gain: &b}
	merged := MergeRight(base, ctrl)
	assert.Equal(t, 2.0, *merged.Gain)
}

func TestMergeRightVowelAppendsFormantFilter(t *testing.T) {
	vowel := "a"
	ctrl := VoiceData{Vowel: &vowel}
	merged := MergeRight(VoiceData{}, ctrl)
	require.Len(t, merged.Filters, 1)
	assert.Equal(t, Formant, merged.Filters[0].Kind)
	assert.Equal(t, "a", merged.Filters[0].FormantLabel)
	assert.Equal(t, 800.0, merged.Filters[0].Cutoff)
}

func TestMergeRightResonanceRewritesExistingFilterQ(t *testing.T) {
	cutoff := 1000.0
	base := MergeRight(VoiceData{}, VoiceData{LowPassCutoff: &cutoff})
	require.Len(t, base.Filters, 1)
	assert.Nil(t, base.Filters[0].Q)

	q := 5.0
	merged := MergeRight(base, VoiceData{Resonance: &q})
	require.Len(t, merged.Filters, 1)
	require.NotNil(t, merged.Filters[0].Q)
	assert.Equal(t, 5.0, *merged.Filters[0].Q)
}

func TestApplyClipsToIntersection(t *testing.T) {
	base := Sound(pattern.Atom("bd"))
	ctrl := Pan(pattern.Fastcat([]pattern.Pattern{pattern.Atom(0.0), pattern.Atom(1.0)}))
	merged := Apply(base, ctrl)

	haps := merged.Query(arc.New(rational.Zero, rational.One))
	sort.Slice(haps, func(i, j int) bool { return haps[i].Part.Begin.Less(haps[j].Part.Begin) })
	require.Len(t, haps, 2)
	assert.True(t, haps[0].Part.End.Equal(rational.New(1, 2)))
	assert.True(t, haps[1].Part.Begin.Equal(rational.New(1, 2)))
}
