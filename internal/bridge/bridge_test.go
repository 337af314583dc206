package bridge

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patterncycle-go/internal/mml"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/voice"
)

func TestScoreFromPatternExactResolutionForEuclid(t *testing.T) {
	p := pattern.Euclid(3, 7, pattern.Atom("a"))
	opts := DefaultOptions()
	score := ScoreFromPattern(p, opts)

	assert.Equal(t, 0, score.Resolution%7, "resolution %d must be a multiple of the euclid(3,7) denominator", score.Resolution)
	require.Len(t, score.Tracks, 1)
	assert.Len(t, score.Tracks[0].Events, 3)

	for _, ev := range score.Tracks[0].Events {
		assert.GreaterOrEqual(t, ev.Duration, 1)
	}
}

func TestScoreFromPatternHonoursPinnedResolution(t *testing.T) {
	p := pattern.Euclid(3, 7, pattern.Atom("a"))
	opts := Options{Cycles: 1, Resolution: 96, BPM: 120}
	score := ScoreFromPattern(p, opts)
	assert.Equal(t, 96, score.Resolution)
}

func TestScoreFromPatternMapsVoiceDataFields(t *testing.T) {
	note := 60.0
	pan := 0.25
	velocity := 0.5
	orbit := 2
	sound := "bd"
	vd := voice.VoiceData{Note: &note, Pan: &pan, Velocity: &velocity, Orbit: &orbit, Sound: &sound}
	p := pattern.Atom(vd)

	score := ScoreFromPattern(p, DefaultOptions())
	require.Len(t, score.Tracks[0].Events, 1)
	ev := score.Tracks[0].Events[0]
	assert.Equal(t, mml.EventNote, ev.Type)
	assert.Equal(t, 60, ev.Note)
	assert.Equal(t, "bd", ev.Text)
	assert.Equal(t, 2, ev.Channel)
	assert.InDelta(t, 0.25*63, float64(ev.Pan), 1.0)
	assert.InDelta(t, 0.5*127, float64(ev.Value), 1.0)
}

func TestScoreFromPatternFallsBackForRawNumericValue(t *testing.T) {
	p := pattern.Atom(5.0)
	score := ScoreFromPattern(p, DefaultOptions())
	require.Len(t, score.Tracks[0].Events, 1)
	assert.Equal(t, 5, score.Tracks[0].Events[0].Note)
}

func TestScoreFromPatternOrdersEventsByTick(t *testing.T) {
	p := pattern.Fastcat([]pattern.Pattern{pattern.Atom("a"), pattern.Atom("b"), pattern.Atom("c")})
	score := ScoreFromPattern(p, DefaultOptions())
	events := score.Tracks[0].Events
	require.Len(t, events, 3)
	sorted := append([]mml.Event{}, events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })
	assert.Equal(t, sorted, events)
}

func TestScoreFromPatternMultipleCyclesExtendsEndTick(t *testing.T) {
	p := pattern.Atom("a")
	opts := DefaultOptions()
	opts.Cycles = 3
	score := ScoreFromPattern(p, opts)
	assert.Equal(t, 3*score.Resolution, score.Tracks[0].EndTick)
}
