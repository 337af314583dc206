package pattern

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// fastUnchecked rescales time by r with no zero-rate guard; callers that
// accept a raw scalar (Fast, Slow) validate first.
func fastUnchecked(r rational.Rational, p Pattern) Pattern {
	return p.
		WithQueryArc(func(a arc.Arc) arc.Arc { return a.MapAffine(func(t rational.Rational) rational.Rational { return t.Mul(r) }) }).
		WithEventArc(func(a arc.Arc) arc.Arc { return a.MapAffine(func(t rational.Rational) rational.Rational { return t.Div(r) }) })
}

// Fast compresses p by r cycles-per-cycle. fast(0) is undefined (spec 4.4).
func Fast(r rational.Rational, p Pattern) (Pattern, error) {
	if r.Sign() == 0 {
		return Pattern{}, ArgumentErrorf("fast: rate must be nonzero")
	}
	return fastUnchecked(r, p), nil
}

// Slow stretches p by r cycles-per-cycle. slow(0) is undefined (spec 4.4).
func Slow(r rational.Rational, p Pattern) (Pattern, error) {
	if r.Sign() == 0 {
		return Pattern{}, ArgumentErrorf("slow: rate must be nonzero")
	}
	return fastUnchecked(rational.One.Div(r), p), nil
}

// RotL shifts p to appear t cycles earlier: the content that would play at
// time t now plays at time 0.
func RotL(t rational.Rational, p Pattern) Pattern {
	return p.
		WithQueryArc(func(a arc.Arc) arc.Arc { return arc.New(a.Begin.Add(t), a.End.Add(t)) }).
		WithEventArc(func(a arc.Arc) arc.Arc { return arc.New(a.Begin.Sub(t), a.End.Sub(t)) })
}

// RotR shifts p to appear t cycles later.
func RotR(t rational.Rational, p Pattern) Pattern {
	return RotL(t.Neg(), p)
}

// Rev reflects every cycle of p in time: the last event of the cycle plays
// first and vice versa.
func Rev(p Pattern) Pattern {
	return carryMeta(p, func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.Floor()
			reflect := func(t rational.Rational) rational.Rational {
				return k.Mul(rational.FromInt(2)).Add(rational.One).Sub(t)
			}
			haps := p.Query(frag.MapAffine(reflect))
			out := make([]hap.Hap, len(haps))
			for i, h := range haps {
				out[i] = h.WithSpan(func(a arc.Arc) arc.Arc { return a.MapAffine(reflect) })
			}
			return out
		})
	})
}

// Zoom focuses on the sub-arc [a, b) of p and stretches it to fill a whole
// cycle, the inverse of the usual query/event mapping. Requires a < b.
func Zoom(a, b rational.Rational, p Pattern) (Pattern, error) {
	if !a.Less(b) {
		return Pattern{}, ArgumentErrorf("zoom: begin must be less than end")
	}
	width := b.Sub(a)
	toInner := func(t rational.Rational) rational.Rational { return a.Add(t.Mul(width)) }
	toOuter := func(t rational.Rational) rational.Rational { return t.Sub(a).Div(width) }
	return p.
		WithQueryArc(func(ar arc.Arc) arc.Arc { return ar.MapAffine(toInner) }).
		WithEventArc(func(ar arc.Arc) arc.Arc { return ar.MapAffine(toOuter) }), nil
}

// Off stacks p with a copy shifted dt cycles later and transformed by f.
func Off(dt rational.Rational, f func(Pattern) Pattern, p Pattern) Pattern {
	return Stack([]Pattern{p, RotR(dt, f(p))})
}

// Ribbon loops the window [offset, offset+cycles) of p forever, one window
// per period of length cycles.
func Ribbon(offset, cycles rational.Rational, p Pattern) Pattern {
	if cycles.Sign() <= 0 {
		return Silence
	}
	return carryMeta(p, func(q arc.Arc) []hap.Hap {
		out := []hap.Hap{}
		for _, frag := range q.SplitAtMultiples(cycles) {
			n := frag.Begin.Div(cycles).Floor()
			shift := offset.Sub(cycles.Mul(n))
			toInner := func(t rational.Rational) rational.Rational { return t.Add(shift) }
			toOuter := func(t rational.Rational) rational.Rational { return t.Sub(shift) }
			haps := p.Query(frag.MapAffine(toInner))
			for _, h := range haps {
				out = append(out, h.WithSpan(func(a arc.Arc) arc.Arc { return a.MapAffine(toOuter) }))
			}
		}
		return out
	})
}

// withinWindow applies f to p but keeps only the events of f(p) whose onset
// falls in [begin, end) of the cycle, stacked with the complementary events
// of the untransformed p.
func withinWindow(begin, end rational.Rational, f func(Pattern) Pattern, p Pattern) Pattern {
	inWindow := func(h hap.Hap) bool {
		pos := h.Part.Begin.Fract()
		return !pos.Less(begin) && pos.Less(end)
	}
	outWindow := func(h hap.Hap) bool { return !inWindow(h) }
	return Stack([]Pattern{
		f(p).FilterEvents(inWindow),
		p.FilterEvents(outWindow),
	})
}

// Chunk applies f to one of n equal slices of p's cycle, advancing the
// slice backward by one position each successive cycle (cycle 0 touches
// slice 0, cycle 1 touches the last slice, cycle 2 the second-to-last, and
// so on, wrapping every n cycles) — the wrap order fixed by the concrete
// worked scenario this combinator must reproduce. The untouched slices pass
// through unchanged.
func Chunk(n int, f func(Pattern) Pattern, p Pattern) Pattern {
	if n <= 0 {
		return p
	}
	return carryMeta(p, func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			idx := ((-k % n) + n) % n
			begin := rational.New(int64(idx), int64(n))
			end := rational.New(int64(idx+1), int64(n))
			return withinWindow(begin, end, f, p).Query(frag)
		})
	})
}

// SlowChunk is an alias for Chunk.
func SlowChunk(n int, f func(Pattern) Pattern, p Pattern) Pattern { return Chunk(n, f, p) }

// Inside slows p by n, applies f, then speeds back up by n — useful for
// applying a cycle-granular transform (like rev) within a finer grid.
func Inside(n rational.Rational, f func(Pattern) Pattern, p Pattern) (Pattern, error) {
	slowed, err := Slow(n, p)
	if err != nil {
		return Pattern{}, err
	}
	return Fast(n, f(slowed))
}

// Outside is the dual of Inside: fast, then f, then slow.
func Outside(n rational.Rational, f func(Pattern) Pattern, p Pattern) (Pattern, error) {
	fasted, err := Fast(n, p)
	if err != nil {
		return Pattern{}, err
	}
	return Slow(n, f(fasted))
}

// Every applies f on every n-th cycle, specifically where cycle mod n ==
// n-1, and passes p through unchanged otherwise.
func Every(n int, f func(Pattern) Pattern, p Pattern) Pattern {
	if n <= 0 {
		return p
	}
	return whenCycle(func(k int) bool {
		m := ((k % n) + n) % n
		return m == n-1
	}, f, p)
}

func whenCycle(pred func(int) bool, f func(Pattern) Pattern, p Pattern) Pattern {
	transformed := f(p)
	return carryMeta(p, func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			if pred(k) {
				return transformed.Query(frag)
			}
			return p.Query(frag)
		})
	})
}

// Iter rotates p forward by 1/n of a cycle on every successive cycle,
// cycling back to the original after n cycles.
func Iter(n int, p Pattern) Pattern {
	if n <= 0 {
		return p
	}
	variants := make([]Pattern, n)
	for i := 0; i < n; i++ {
		variants[i] = RotL(rational.New(int64(i), int64(n)), p)
	}
	return Slowcat(variants)
}

// IterBack is Iter in the opposite rotational direction.
func IterBack(n int, p Pattern) Pattern {
	if n <= 0 {
		return p
	}
	variants := make([]Pattern, n)
	for i := 0; i < n; i++ {
		variants[i] = RotR(rational.New(int64(i), int64(n)), p)
	}
	return Slowcat(variants)
}

// Slowcat plays one whole pattern per cycle, selecting ps[cycle mod n].
func Slowcat(ps []Pattern) Pattern {
	n := len(ps)
	if n == 0 {
		return Silence
	}
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			idx := ((k % n) + n) % n
			return ps[idx].Query(frag)
		})
	})
}

// Cat is an alias for Slowcat.
func Cat(ps []Pattern) Pattern { return Slowcat(ps) }

// Fastcat squashes n patterns into a single cycle, p[i] occupying
// [i/n, (i+1)/n).
func Fastcat(ps []Pattern) Pattern {
	n := len(ps)
	if n == 0 {
		return Silence
	}
	out, _ := Fast(rational.FromInt(n), Slowcat(ps))
	return out.WithSteps(rational.FromInt(n))
}

// Seq is an alias for Fastcat.
func Seq(ps []Pattern) Pattern { return Fastcat(ps) }

// FastcatWeighted is Fastcat generalised to unequal step widths: item i
// occupies a sub-arc of the cycle proportional to weights[i] / Σweights,
// the mini-notation's `@w` step-weight modifier (spec section 4.7).
func FastcatWeighted(items []Pattern, weights []rational.Rational) Pattern {
	n := len(items)
	if n == 0 {
		return Silence
	}
	total := rational.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	cum := make([]rational.Rational, n+1)
	for i, w := range weights {
		cum[i+1] = cum[i].Add(w)
	}
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.Floor()
			out := []hap.Hap{}
			for i, item := range items {
				start := k.Add(cum[i].Div(total))
				end := k.Add(cum[i+1].Div(total))
				width := end.Sub(start)
				if width.Sign() == 0 {
					continue
				}
				whole := arc.New(start, end)
				part, ok := whole.Intersect(frag)
				if !ok {
					continue
				}
				toInner := func(t rational.Rational) rational.Rational { return t.Sub(start).Div(width).Add(k) }
				toOuter := func(t rational.Rational) rational.Rational { return t.Sub(k).Mul(width).Add(start) }
				haps := item.Query(part.MapAffine(toInner))
				for _, h := range haps {
					out = append(out, h.WithSpan(func(a arc.Arc) arc.Arc { return a.MapAffine(toOuter) }))
				}
			}
			return out
		})
	}).WithSteps(rational.FromInt(n))
}

// Stack plays every pattern in ps simultaneously.
func Stack(ps []Pattern) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		out := []hap.Hap{}
		for _, p := range ps {
			out = append(out, p.Query(q)...)
		}
		return out
	})
}

// PolymeterSteps rescales p so its declared steps equal n, preserving its
// note sequence but changing its cycle-relative speed.
func PolymeterSteps(n rational.Rational, p Pattern) Pattern {
	cur := stepsOrOne(p)
	if cur.Sign() == 0 {
		return Silence
	}
	out := fastUnchecked(n.Div(cur), p)
	return out.WithSteps(n)
}

// Polymeter stacks patterns of differing step counts, each rescaled to the
// LCM of every pattern's declared steps so they share a common cycle grid.
func Polymeter(ps []Pattern) Pattern {
	if len(ps) == 0 {
		return Silence
	}
	lcm := 1
	for _, p := range ps {
		s := stepsOrOne(p)
		if s.IsInt() {
			n := int(s.Float64())
			if n > 0 {
				lcm = intLCM(lcm, n)
			}
		}
	}
	rescaled := make([]Pattern, len(ps))
	for i, p := range ps {
		rescaled[i] = PolymeterSteps(rational.FromInt(lcm), p)
	}
	return Stack(rescaled)
}

// Polyrhythm is an alias for Stack: patterns keep their own cycle length and
// simply play concurrently.
func Polyrhythm(ps []Pattern) Pattern { return Stack(ps) }

// ArrangeItem is one (cycles, pattern) run of an Arrange sequence.
type ArrangeItem struct {
	Cycles  int
	Pattern Pattern
}

// Arrange plays each item for its declared number of cycles, in order, then
// loops the whole sequence. Each item replays from its own cycle zero on
// every pass through the loop.
func Arrange(items []ArrangeItem) Pattern {
	total := 0
	for _, it := range items {
		if it.Cycles > 0 {
			total += it.Cycles
		}
	}
	if total <= 0 {
		return Silence
	}
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.FloorInt()
			kMod := ((k % total) + total) % total
			acc := 0
			for _, item := range items {
				if item.Cycles <= 0 {
					continue
				}
				if kMod < acc+item.Cycles {
					localCycle := kMod - acc
					shift := rational.FromInt(k - localCycle)
					qShifted := frag.MapAffine(func(t rational.Rational) rational.Rational { return t.Sub(shift) })
					haps := item.Pattern.Query(qShifted)
					out := make([]hap.Hap, len(haps))
					for i, h := range haps {
						out[i] = h.WithSpan(func(a arc.Arc) arc.Arc {
							return a.MapAffine(func(t rational.Rational) rational.Rational { return t.Add(shift) })
						})
					}
					return out
				}
				acc += item.Cycles
			}
			return nil
		})
	})
}

func patternDuration(p Pattern) rational.Rational {
	if s, ok := p.Steps(); ok {
		return s
	}
	return rational.One
}

// StackBy aligns patterns of differing declared duration within the frame of
// the longest, shifting shorter ones later by (maxDur-dur)*bias cycles.
// bias 0 aligns every pattern's start (left); 1 aligns every pattern's end
// (right); 1/2 centers them.
func StackBy(bias rational.Rational, ps []Pattern) Pattern {
	if len(ps) == 0 {
		return Silence
	}
	maxDur := patternDuration(ps[0])
	for _, p := range ps[1:] {
		maxDur = rational.Max(maxDur, patternDuration(p))
	}
	shifted := make([]Pattern, len(ps))
	for i, p := range ps {
		d := patternDuration(p)
		shift := maxDur.Sub(d).Mul(bias)
		shifted[i] = RotR(shift, p)
	}
	return Stack(shifted)
}

// StackLeft aligns every pattern's start.
func StackLeft(ps []Pattern) Pattern { return StackBy(rational.Zero, ps) }

// StackCentre aligns every pattern's midpoint.
func StackCentre(ps []Pattern) Pattern { return StackBy(rational.OneHalf, ps) }

// StackRight aligns every pattern's end.
func StackRight(ps []Pattern) Pattern { return StackBy(rational.One, ps) }

// Superimpose stacks p with f(p).
func Superimpose(f func(Pattern) Pattern, p Pattern) Pattern {
	return Stack([]Pattern{p, f(p)})
}

// Layer stacks f(p) for every f in fs.
func Layer(fs []func(Pattern) Pattern, p Pattern) Pattern {
	out := make([]Pattern, len(fs))
	for i, f := range fs {
		out[i] = f(p)
	}
	return Stack(out)
}

// Pace rescales p so its declared steps equal n, same operation as
// PolymeterSteps but named for direct use outside a polymeter stack.
func Pace(n rational.Rational, p Pattern) Pattern { return PolymeterSteps(n, p) }

// StepsOp is an alias for Pace.
func StepsOp(n rational.Rational, p Pattern) Pattern { return Pace(n, p) }
