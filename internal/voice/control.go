package voice

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case rational.Rational:
		return t.Float64()
	default:
		return 0
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// numericField builds a control pattern that sets a single float field of
// VoiceData from p's raw event values — the shape both "base.pan(ctrl)"
// (p = ctrl) and the zero-argument "reinterpret value" form (p = base
// itself) use identically (spec section 4.8).
func numericField(set func(*VoiceData, float64), p pattern.Pattern) pattern.Pattern {
	return p.Fmap(func(v any) any {
		vd := VoiceData{}
		set(&vd, toFloat(v))
		return vd
	})
}

func stringField(set func(*VoiceData, string), p pattern.Pattern) pattern.Pattern {
	return p.Fmap(func(v any) any {
		vd := VoiceData{}
		set(&vd, toString(v))
		return vd
	})
}

func intField(set func(*VoiceData, int), p pattern.Pattern) pattern.Pattern {
	return p.Fmap(func(v any) any {
		vd := VoiceData{}
		set(&vd, int(toFloat(v)))
		return vd
	})
}

// Field-setting control-pattern constructors (spec section 4.8's "field
// setters"). Each wraps a raw-valued pattern into one carrying a VoiceData
// with exactly that field set.
func Note(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Note = floatPtr(f) }, p)
}
func Sound(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Sound = strPtr(s) }, p)
}
func SoundIndex(p pattern.Pattern) pattern.Pattern {
	return intField(func(v *VoiceData, n int) { v.SoundIndex = intPtr(n) }, p)
}
func FreqHz(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.FreqHz = floatPtr(f) }, p)
}
func Pan(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Pan = floatPtr(f) }, p)
}
func Gain(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Gain = floatPtr(f) }, p)
}
func Attack(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Attack = floatPtr(f) }, p)
}
func Decay(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Decay = floatPtr(f) }, p)
}
func Sustain(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Sustain = floatPtr(f) }, p)
}
func Release(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Release = floatPtr(f) }, p)
}
func Lpf(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.LowPassCutoff = floatPtr(f) }, p)
}
func Hpf(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.HighPassCutoff = floatPtr(f) }, p)
}
func Bpf(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.BandPassCutoff = floatPtr(f) }, p)
}
func Notchf(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.NotchCutoff = floatPtr(f) }, p)
}
func Resonance(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Resonance = floatPtr(f) }, p)
}
func VowelField(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Vowel = strPtr(s) }, p)
}
func Room(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Room = floatPtr(f) }, p)
}
func Delay(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.DelayAmt = floatPtr(f) }, p)
}
func Distort(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Distort = floatPtr(f) }, p)
}
func Shape(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Shape = floatPtr(f) }, p)
}
func Crush(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Crush = floatPtr(f) }, p)
}
func Vibrato(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Vibrato = floatPtr(f) }, p)
}
func Ducking(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Ducking = floatPtr(f) }, p)
}
func Scale(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Scale = strPtr(s) }, p)
}
func Chord(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Chord = strPtr(s) }, p)
}
func Voicing(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Voicing = strPtr(s) }, p)
}
func Legato(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Legato = floatPtr(f) }, p)
}
func Velocity(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Velocity = floatPtr(f) }, p)
}
func Orbit(p pattern.Pattern) pattern.Pattern {
	return intField(func(v *VoiceData, n int) { v.Orbit = intPtr(n) }, p)
}
func Bank(p pattern.Pattern) pattern.Pattern {
	return stringField(func(v *VoiceData, s string) { v.Bank = strPtr(s) }, p)
}
func Accelerate(p pattern.Pattern) pattern.Pattern {
	return numericField(func(v *VoiceData, f float64) { v.Accelerate = floatPtr(f) }, p)
}

func asVoiceData(v any) VoiceData {
	if vd, ok := v.(VoiceData); ok {
		return vd
	}
	return VoiceData{}
}

// Apply is the control-payload merge combinator (spec section 4.8): for
// each intersecting (base, ctrl) event pair it emits part = base.part ∩
// ctrl.part, whole = base.whole, value = MergeRight(base.value, ctrl.value).
func Apply(base, ctrl pattern.Pattern) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		baseHaps := base.Query(q)
		ctrlHaps := ctrl.Query(q)
		out := []hap.Hap{}
		for _, b := range baseHaps {
			for _, c := range ctrlHaps {
				part, ok := b.Part.Intersect(c.Part)
				if !ok {
					continue
				}
				merged := MergeRight(asVoiceData(b.Value), asVoiceData(c.Value))
				out = append(out, hap.Hap{Whole: b.Whole, Part: part, Value: merged})
			}
		}
		return out
	})
}
