// Package signal implements the continuous-pattern family (spec section
// 4.9): sine/saw/tri/square/steady and the segment(n) discretiser, built
// the way internal/lfo drives a waveform from a phase instead of a
// per-audio-frame increment — here the "phase" is the query arc's position
// instead of a sample counter.
package signal

import (
	"math"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func makeSignal(wave func(t rational.Rational) float64) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			return []hap.Hap{hap.New(nil, frag, wave(frag.Begin))}
		})
	})
}

// Sine is 0.5 + 0.5*sin(2*pi*t), range [0,1].
func Sine() pattern.Pattern {
	return makeSignal(func(t rational.Rational) float64 {
		return 0.5 + 0.5*math.Sin(2*math.Pi*t.Float64())
	})
}

// Saw ramps from 0 to 1 across each cycle.
func Saw() pattern.Pattern {
	return makeSignal(func(t rational.Rational) float64 { return t.Fract().Float64() })
}

// Tri ramps 0->1->0 across each cycle.
func Tri() pattern.Pattern {
	return makeSignal(func(t rational.Rational) float64 {
		f := t.Fract().Float64()
		if f < 0.5 {
			return 2 * f
		}
		return 2 * (1 - f)
	})
}

// Square is 0 for the first half of the cycle, 1 for the second.
func Square() pattern.Pattern {
	return makeSignal(func(t rational.Rational) float64 {
		if t.Fract().Float64() < 0.5 {
			return 0
		}
		return 1
	})
}

// Steady is a constant-valued continuous pattern.
func Steady(v any) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			return []hap.Hap{hap.New(nil, frag, v)}
		})
	})
}

// Segment discretises a continuous pattern into n equal onset-bearing steps
// per cycle, sampling the signal at each step's begin.
func Segment(n int, p pattern.Pattern) pattern.Pattern {
	if n <= 0 {
		return pattern.Silence
	}
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.Floor()
			out := []hap.Hap{}
			for i := 0; i < n; i++ {
				start := k.Add(rational.New(int64(i), int64(n)))
				end := k.Add(rational.New(int64(i+1), int64(n)))
				whole := arc.New(start, end)
				part, ok := whole.Intersect(frag)
				if !ok {
					continue
				}
				sampled := p.Query(arc.New(start, start))
				if len(sampled) == 0 {
					continue
				}
				w := whole
				out = append(out, hap.New(&w, part, sampled[0].Value))
			}
			return out
		})
	})
}

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

// Range rescales a [0,1]-valued continuous pattern to [a, b].
func Range(a, b float64, p pattern.Pattern) pattern.Pattern {
	return p.Fmap(func(v any) any { return a + toFloat(v)*(b-a) })
}
