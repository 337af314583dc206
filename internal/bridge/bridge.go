// Package bridge turns a queried pattern.Pattern into an internal/mml.Score
// so the existing sequencer/engines — built to consume mml.Score, not
// Pattern — can render it unmodified. Grounded on mml.Track's EndTick/
// LoopTick tick bookkeeping (the same cycle-indexed windowing a Pattern
// query arc already does in rational units, here just rescaled to integer
// ticks).
package bridge

import (
	"math"
	"sort"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/mml"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
	"github.com/cbegin/patterncycle-go/internal/voice"
)

// Options controls how pattern cycles map onto mml ticks.
type Options struct {
	// Cycles is how many cycles to render into one looping track.
	Cycles int
	// Resolution pins mml ticks per cycle; 0 sizes the grid from the queried
	// haps (see ScoreFromPattern), starting from mml.DefaultParserConfig's.
	Resolution int
	// BPM is the score's initial tempo; 0 uses mml.DefaultParserConfig's.
	BPM float64
	// BaseOctave shifts every VoiceData.Note (and raw numeric atom) by
	// BaseOctave*12 semitones before it becomes an mml.Event.Note.
	BaseOctave int
}

// DefaultOptions returns one cycle at the mml package's default resolution
// and tempo.
func DefaultOptions() Options {
	cfg := mml.DefaultParserConfig()
	return Options{Cycles: 1, Resolution: cfg.Resolution, BPM: cfg.DefaultBPM}
}

// maxExactResolution bounds how far ScoreFromPattern will grow the tick
// grid chasing exactness; a pattern combining many large, coprime
// denominators (e.g. euclid(5,11) stacked with euclid(7,13) over many
// cycles) could otherwise demand an impractically fine grid. Past this
// bound the grid falls back to the nearest multiple of the floor
// resolution and individual onsets round instead of landing exactly.
const maxExactResolution = 1 << 20

// ScoreFromPattern queries p over [0, opts.Cycles) and assembles the onset
// haps into a single looping mml.Track — the spec section 6 "query surface"
// reinterpreted as the sequencer's input shape instead of a live event
// stream. Unless the caller pins opts.Resolution, the tick grid is sized to
// the exact least-common-denominator of the queried haps' rational
// boundaries (internal/rational.Rational.Denom), so e.g. a euclid(3,7)
// pulse lands on its own tick rather than being snapped to the nearest of
// 1920 — the sequencer's integer-tick engine inherits the pattern's exact
// time instead of a lossy rescale of it.
func ScoreFromPattern(p pattern.Pattern, opts Options) *mml.Score {
	floorResolution := opts.Resolution
	if floorResolution <= 0 {
		floorResolution = mml.DefaultParserConfig().Resolution
	}
	if opts.BPM <= 0 {
		opts.BPM = mml.DefaultParserConfig().DefaultBPM
	}
	cycles := opts.Cycles
	if cycles <= 0 {
		cycles = 1
	}

	haps := p.Query(arc.Arc{Begin: rational.Zero, End: rational.FromInt(cycles)})
	onsets := make([]hap.Hap, 0, len(haps))
	for _, h := range haps {
		if h.HasOnset() {
			onsets = append(onsets, h)
		}
	}
	sort.Slice(onsets, func(i, j int) bool {
		return onsets[i].Part.Begin.Less(onsets[j].Part.Begin)
	})

	resolution := floorResolution
	if opts.Resolution <= 0 {
		resolution = exactResolution(onsets, floorResolution)
	}

	endTick := cycles * resolution
	track := mml.Track{EndTick: endTick, LoopTick: 0}
	for _, h := range onsets {
		tick := tickOf(h.Part.Begin, resolution)
		dur := tickOf(h.WholeOrPart().Duration(), resolution)
		if dur <= 0 {
			dur = 1
		}
		track.Events = append(track.Events, eventFromHap(tick, dur, h, opts))
	}

	return &mml.Score{
		Resolution: resolution,
		InitialBPM: opts.BPM,
		Tracks:     []mml.Track{track},
	}
}

// exactResolution returns the smallest multiple of floorResolution that is
// also divisible by every onset boundary's denominator, so tickOf rounds
// nothing away. A denominator whose LCM with the grid so far would exceed
// maxExactResolution is skipped, leaving the grid as the others grew it.
func exactResolution(onsets []hap.Hap, floorResolution int) int {
	res := int64(floorResolution)
	grow := func(r rational.Rational) {
		d := r.Denom()
		if d <= 1 {
			return
		}
		next := lcm64(res, d)
		if next > 0 && next <= maxExactResolution {
			res = next
		}
	}
	for _, h := range onsets {
		grow(h.Part.Begin)
		grow(h.Part.End)
		if h.Whole != nil {
			grow(h.Whole.Begin)
			grow(h.Whole.End)
		}
	}
	return int(res)
}

func lcm64(a, b int64) int64 {
	return a / gcd64(a, b) * b
}

func gcd64(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func tickOf(r rational.Rational, resolution int) int {
	return int(math.Round(r.Float64() * float64(resolution)))
}

// eventFromHap builds one mml.EventNote from a hap's value: a VoiceData
// payload (from voice.Apply / control-pattern chains) maps field-by-field
// onto the event; any other raw value (a bare mini-notation atom) is
// coerced through noteFromRaw instead.
func eventFromHap(tick, dur int, h hap.Hap, opts Options) mml.Event {
	vd, ok := h.Value.(voice.VoiceData)
	if !ok {
		return mml.Event{Type: mml.EventNote, Tick: tick, Duration: dur, Note: noteFromRaw(h.Value, opts.BaseOctave)}
	}
	note := opts.BaseOctave * 12
	if vd.Note != nil {
		note += int(math.Round(*vd.Note))
	}
	ev := mml.Event{Type: mml.EventNote, Tick: tick, Duration: dur, Note: note}
	if vd.Sound != nil {
		ev.Text = *vd.Sound
	}
	if vd.Pan != nil {
		ev.Pan = int(math.Round(*vd.Pan * 63))
	}
	if vd.Velocity != nil {
		ev.Value = int(math.Round(*vd.Velocity * 127))
	}
	if vd.Orbit != nil {
		ev.Channel = *vd.Orbit
	}
	return ev
}

func noteFromRaw(v any, baseOctave int) int {
	switch t := v.(type) {
	case float64:
		return baseOctave*12 + int(math.Round(t))
	case int:
		return baseOctave*12 + t
	case rational.Rational:
		return baseOctave*12 + int(math.Round(t.Float64()))
	default:
		return baseOctave * 12
	}
}
