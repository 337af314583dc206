// Package prand implements the deterministic, seed-driven sampler behind
// the random-pattern family (spec section 4.6): a pure integer hash of
// (seed, cycle, within-cycle index, tag) substitutes for any host RNG, so
// two queries of the same pattern with the same seed always agree.
package prand

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// splitmix64 is the standard public-domain SplitMix64 output mixer.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// fnv1a64 hashes tag into a 64-bit seed component so independent sampling
// sites (rand, choose, degradeBy, ...) never correlate under the same seed.
func fnv1a64(s string) uint64 {
	var h uint64 = 0xcbf29ce484222325
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 0x100000001b3
	}
	return h
}

// R is the single pure sampler every random combinator consults: a double
// in [0,1), deterministic in (seed, cycle, index, tag).
func R(seed int64, cycle, index int, tag string) float64 {
	h := splitmix64(uint64(seed))
	h = splitmix64(h ^ uint64(int64(cycle)))
	h = splitmix64(h ^ uint64(int64(index)))
	h = splitmix64(h ^ fnv1a64(tag))
	return float64(h>>11) / float64(uint64(1)<<53)
}

// Rand is a continuous pattern yielding R(seed, cycle, 0, "rand") once per
// cycle by default; chain .segment(n) (internal/signal) for finer steps.
func Rand(seed int64) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			return []hap.Hap{hap.New(nil, frag, R(seed, k, 0, "rand"))}
		})
	})
}

// RandCycle is constant over each whole integer cycle.
func RandCycle(seed int64) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			v := R(seed, k, 0, "randCycle")
			whole := arc.CycleArc(frag.Begin)
			w := whole
			return []hap.Hap{hap.New(&w, frag, v)}
		})
	})
}

// BRand thresholds Rand at 0.5 into 0/1.
func BRand(seed int64) pattern.Pattern {
	return Rand(seed).Fmap(func(v any) any {
		if v.(float64) >= 0.5 {
			return 1
		}
		return 0
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

// Choose indexes xs by floor(Rand()*len(xs)) at each sample time.
func Choose[T any](seed int64, xs []T) pattern.Pattern {
	n := len(xs)
	return Rand(seed).Fmap(func(v any) any {
		idx := int(toFloat(v) * float64(n))
		if idx >= n {
			idx = n - 1
		}
		return xs[idx]
	})
}

// ChooseCycles is Choose driven by RandCycle instead of Rand: one pick per
// whole cycle.
func ChooseCycles[T any](seed int64, xs []T) pattern.Pattern {
	n := len(xs)
	return RandCycle(seed).Fmap(func(v any) any {
		idx := int(toFloat(v) * float64(n))
		if idx >= n {
			idx = n - 1
		}
		return xs[idx]
	})
}

// ChooseWith maps pat's values through xs[i mod len(xs)]; pat typically
// carries an integer-valued selector.
func ChooseWith[T any](pat pattern.Pattern, xs []T) pattern.Pattern {
	n := len(xs)
	return pat.Fmap(func(v any) any {
		idx := int(toFloat(v))
		idx = ((idx % n) + n) % n
		return xs[idx]
	})
}

// Weighted is one (value, weight) pair for WChoose.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// WChoose picks from a weighted set: R()*totalWeight lands in one weight's
// CDF bucket.
func WChoose[T any](seed int64, xs []Weighted[T]) pattern.Pattern {
	total := 0.0
	for _, w := range xs {
		total += w.Weight
	}
	return Rand(seed).Fmap(func(v any) any {
		target := toFloat(v) * total
		acc := 0.0
		for _, w := range xs {
			acc += w.Weight
			if target < acc {
				return w.Value
			}
		}
		return xs[len(xs)-1].Value
	})
}

// DegradeBy drops each event of p whose R sample at its onset cycle/index
// is below x, keeping 1-x of events on average.
func DegradeBy(seed int64, x float64, p pattern.Pattern) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		haps := p.Query(q)
		out := haps[:0:0]
		for i, h := range haps {
			k := h.Part.Begin.FloorInt()
			if R(seed, k, i, "degradeBy") >= x {
				out = append(out, h)
			}
		}
		return out
	})
}

// DegradeByWith drops events of p according to source's sampled value at
// the event's onset rather than the internal hash directly; with randCycle
// as source the decision is per-cycle (all-or-nothing within the cycle),
// with rand it is per-event.
func DegradeByWith(source pattern.Pattern, x float64, p pattern.Pattern) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		haps := p.Query(q)
		out := haps[:0:0]
		for _, h := range haps {
			t := h.WholeOrPart().Begin
			srcHaps := source.Query(arc.New(t, t))
			if len(srcHaps) == 0 {
				continue
			}
			if toFloat(srcHaps[0].Value) >= x {
				out = append(out, h)
			}
		}
		return out
	})
}

// SometimesBy passes each event of p through f with probability x (gated by
// DegradeBy's complement), leaving the rest untouched.
func SometimesBy(seed int64, x float64, f func(pattern.Pattern) pattern.Pattern, p pattern.Pattern) pattern.Pattern {
	kept := func(h hap.Hap, i int) bool {
		k := h.Part.Begin.FloorInt()
		return R(seed, k, i, "sometimesBy") < x
	}
	transformed := f(p)
	return pattern.New(func(q arc.Arc) []hap.Hap {
		haps := p.Query(q)
		out := haps[:0:0]
		tHaps := transformed.Query(q)
		for i, h := range haps {
			if kept(h, i) {
				// Find the matching transformed event by part; if absent,
				// fall back to the original so event count is preserved.
				matched := false
				for _, th := range tHaps {
					if th.Part.Begin.Equal(h.Part.Begin) && th.Part.End.Equal(h.Part.End) {
						out = append(out, th)
						matched = true
						break
					}
				}
				if !matched {
					out = append(out, h)
				}
			} else {
				out = append(out, h)
			}
		}
		return out
	})
}

// SomeCyclesBy is SometimesBy but the gate decision is made once per cycle:
// the whole cycle is either passed through f or left untouched, never
// mixed.
func SomeCyclesBy(seed int64, x float64, f func(pattern.Pattern) pattern.Pattern, p pattern.Pattern) pattern.Pattern {
	transformed := f(p)
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			if R(seed, k, 0, "someCyclesBy") < x {
				return transformed.Query(frag)
			}
			return p.Query(frag)
		})
	})
}

// Fixed-probability aliases (spec section 4.6).
const (
	Sometimes    = 0.5
	Often        = 0.75
	Rarely       = 0.25
	AlmostAlways = 0.9
	AlmostNever  = 0.1
	Always       = 1.0
	Never        = 0.0
)
