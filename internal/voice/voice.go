// Package voice implements the control-payload record and merge rule (spec
// section 4.8 / 3): VoiceData generalises mml.Event's flat struct-of-fields
// shape to the pattern engine's optional payload (33 fields), using pointer
// fields for "set or absent" the way a nullable JSON field would be
// modelled, since mml.Event's plain zero-value ints can't distinguish
// "pan 0" from "pan unset".
package voice

// FilterKind names a declarative filter shape appended to VoiceData.Filters.
type FilterKind int

const (
	LowPass FilterKind = iota
	HighPass
	BandPass
	Notch
	Formant
)

// FilterDef is a declarative filter description; it carries no DSP state —
// real-time synthesis of it is the renderer's job (spec section 1's
// external collaborator), out of scope here.
type FilterDef struct {
	Kind         FilterKind
	Cutoff       float64
	Q            *float64
	Env          *float64
	Attack       *float64
	Decay        *float64
	Sustain      *float64
	Release      *float64
	FormantLabel string
}

// VoiceData is the control-payload record: every field is optional (nil ==
// "not set by this event"), merged field-wise by MergeRight.
type VoiceData struct {
	Note       *float64
	Sound      *string
	SoundIndex *int
	Value      any

	FreqHz *float64
	Pan    *float64
	Gain   *float64

	Attack  *float64
	Decay   *float64
	Sustain *float64
	Release *float64

	LowPassCutoff  *float64
	HighPassCutoff *float64
	BandPassCutoff *float64
	NotchCutoff    *float64
	Resonance      *float64
	Vowel          *string

	Room       *float64
	DelayAmt   *float64
	Distort    *float64
	Shape      *float64
	Crush      *float64
	Vibrato    *float64
	Ducking    *float64

	Scale      *string
	Chord      *string
	Voicing    *string
	Legato     *float64
	Velocity   *float64
	Orbit      *int
	Bank       *string
	Accelerate *float64

	Filters []FilterDef
}

// formantTable is a 5-band center-frequency table indexed by vowel letter,
// the minimal data a Formant FilterDef needs (spec section 4.8).
var formantTable = map[string][5]float64{
	"a": {800, 1150, 2800, 3500, 4950},
	"e": {400, 1600, 2700, 3300, 4950},
	"i": {250, 1750, 2600, 3050, 4950},
	"o": {400, 750, 2400, 2600, 2900},
	"u": {350, 600, 2400, 2675, 2950},
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }
func strPtr(s string) *string     { return &s }

func rewriteFilterQ(filters []FilterDef, q float64) []FilterDef {
	if len(filters) == 0 {
		return filters
	}
	out := make([]FilterDef, len(filters))
	copy(out, filters)
	for i := range out {
		out[i].Q = floatPtr(q)
	}
	return out
}

func filterEnvFrom(v VoiceData) (attack, decay, sustain, release *float64) {
	return v.Attack, v.Decay, v.Sustain, v.Release
}

// MergeRight copies every non-absent field of ctrl onto base (base fields
// that ctrl leaves absent are preserved), plus the explicit composite
// cases: resonance rewrites the Q of every existing filter definition;
// lpf/hpf/bpf/notchf set the raw cutoff field and append a declarative
// FilterDef carrying the merged envelope; vowel appends a Formant filter.
func MergeRight(base, ctrl VoiceData) VoiceData {
	out := base

	if ctrl.Note != nil {
		out.Note = ctrl.Note
	}
	if ctrl.Sound != nil {
		out.Sound = ctrl.Sound
	}
	if ctrl.SoundIndex != nil {
		out.SoundIndex = ctrl.SoundIndex
	}
	if ctrl.Value != nil {
		out.Value = ctrl.Value
	}
	if ctrl.FreqHz != nil {
		out.FreqHz = ctrl.FreqHz
	}
	if ctrl.Pan != nil {
		out.Pan = ctrl.Pan
	}
	if ctrl.Gain != nil {
		out.Gain = ctrl.Gain
	}
	if ctrl.Attack != nil {
		out.Attack = ctrl.Attack
	}
	if ctrl.Decay != nil {
		out.Decay = ctrl.Decay
	}
	if ctrl.Sustain != nil {
		out.Sustain = ctrl.Sustain
	}
	if ctrl.Release != nil {
		out.Release = ctrl.Release
	}
	if ctrl.Room != nil {
		out.Room = ctrl.Room
	}
	if ctrl.DelayAmt != nil {
		out.DelayAmt = ctrl.DelayAmt
	}
	if ctrl.Distort != nil {
		out.Distort = ctrl.Distort
	}
	if ctrl.Shape != nil {
		out.Shape = ctrl.Shape
	}
	if ctrl.Crush != nil {
		out.Crush = ctrl.Crush
	}
	if ctrl.Vibrato != nil {
		out.Vibrato = ctrl.Vibrato
	}
	if ctrl.Ducking != nil {
		out.Ducking = ctrl.Ducking
	}
	if ctrl.Scale != nil {
		out.Scale = ctrl.Scale
	}
	if ctrl.Chord != nil {
		out.Chord = ctrl.Chord
	}
	if ctrl.Voicing != nil {
		out.Voicing = ctrl.Voicing
	}
	if ctrl.Legato != nil {
		out.Legato = ctrl.Legato
	}
	if ctrl.Velocity != nil {
		out.Velocity = ctrl.Velocity
	}
	if ctrl.Orbit != nil {
		out.Orbit = ctrl.Orbit
	}
	if ctrl.Bank != nil {
		out.Bank = ctrl.Bank
	}
	if ctrl.Accelerate != nil {
		out.Accelerate = ctrl.Accelerate
	}
	if len(ctrl.Filters) > 0 {
		out.Filters = append(append([]FilterDef{}, out.Filters...), ctrl.Filters...)
	}

	if ctrl.Resonance != nil {
		out.Resonance = ctrl.Resonance
		out.Filters = rewriteFilterQ(out.Filters, *ctrl.Resonance)
	}

	if ctrl.LowPassCutoff != nil {
		out.LowPassCutoff = ctrl.LowPassCutoff
		a, d, s, r := filterEnvFrom(out)
		out.Filters = append(out.Filters, FilterDef{Kind: LowPass, Cutoff: *ctrl.LowPassCutoff, Q: out.Resonance, Attack: a, Decay: d, Sustain: s, Release: r})
	}
	if ctrl.HighPassCutoff != nil {
		out.HighPassCutoff = ctrl.HighPassCutoff
		a, d, s, r := filterEnvFrom(out)
		out.Filters = append(out.Filters, FilterDef{Kind: HighPass, Cutoff: *ctrl.HighPassCutoff, Q: out.Resonance, Attack: a, Decay: d, Sustain: s, Release: r})
	}
	if ctrl.BandPassCutoff != nil {
		out.BandPassCutoff = ctrl.BandPassCutoff
		a, d, s, r := filterEnvFrom(out)
		out.Filters = append(out.Filters, FilterDef{Kind: BandPass, Cutoff: *ctrl.BandPassCutoff, Q: out.Resonance, Attack: a, Decay: d, Sustain: s, Release: r})
	}
	if ctrl.NotchCutoff != nil {
		out.NotchCutoff = ctrl.NotchCutoff
		a, d, s, r := filterEnvFrom(out)
		out.Filters = append(out.Filters, FilterDef{Kind: Notch, Cutoff: *ctrl.NotchCutoff, Q: out.Resonance, Attack: a, Decay: d, Sustain: s, Release: r})
	}
	if ctrl.Vowel != nil {
		out.Vowel = ctrl.Vowel
		bands, ok := formantTable[*ctrl.Vowel]
		center := 0.0
		if ok {
			center = bands[0]
		}
		out.Filters = append(out.Filters, FilterDef{Kind: Formant, Cutoff: center, FormantLabel: *ctrl.Vowel})
	}

	return out
}
