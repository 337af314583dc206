// Package pattern implements the core Pattern abstraction (spec section
// 4.3) and the combinator library built on top of it (spec section 4.4).
//
// A Pattern is, at heart, a pure function from a query Arc to a slice of
// Haps. Every combinator in this package is a closure transformer over that
// query function, the same "deep, lazily composed closures" shape spec
// section 9 calls out — acceptable here because Go has first-class closures
// and the engine is small enough that unbounded capture never becomes a
// problem in practice.
package pattern

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/perr"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// QueryFunc answers which events are active within an arc.
type QueryFunc func(arc.Arc) []hap.Hap

// Pattern is a pure, queryable, ambient-seeded value (spec section 3).
type Pattern struct {
	query QueryFunc
	steps *rational.Rational
	seed  int64
}

// New wraps a query function as a Pattern with no declared steps and seed 0.
func New(q QueryFunc) Pattern {
	return Pattern{query: q}
}

// Query runs the pattern's query function over the arc.
func (p Pattern) Query(a arc.Arc) []hap.Hap {
	if p.query == nil {
		return nil
	}
	return p.query(a)
}

// QueryArc is the host-facing entry point (spec section 6): query by raw
// float64 endpoints, converting to exact rationals at the boundary only.
func (p Pattern) QueryArc(begin, end float64) []hap.Hap {
	return p.Query(arc.FromFloat(begin, end))
}

// Steps returns the pattern's declared step count, used by polymeter/pace.
func (p Pattern) Steps() (rational.Rational, bool) {
	if p.steps == nil {
		return rational.Rational{}, false
	}
	return *p.steps, true
}

// WithSteps returns a copy of p with the declared step count set.
func (p Pattern) WithSteps(n rational.Rational) Pattern {
	out := p
	out.steps = &n
	return out
}

// Seed returns the pattern's ambient random seed.
func (p Pattern) Seed() int64 { return p.seed }

// WithSeed returns a copy of p with the ambient seed set, threading through
// as part of the pattern value rather than thread-local state (spec 9).
func (p Pattern) WithSeed(seed int64) Pattern {
	out := p
	out.seed = seed
	return out
}

// WithQueryArc composes f on the query arc before delegating to p.
func (p Pattern) WithQueryArc(f func(arc.Arc) arc.Arc) Pattern {
	inner := p.query
	out := Pattern{query: func(a arc.Arc) []hap.Hap {
		return inner(f(a))
	}, steps: p.steps, seed: p.seed}
	return out
}

// WithEventArc applies f to every returned event's Part and Whole.
func (p Pattern) WithEventArc(f func(arc.Arc) arc.Arc) Pattern {
	inner := p.query
	return Pattern{query: func(a arc.Arc) []hap.Hap {
		haps := inner(a)
		out := make([]hap.Hap, len(haps))
		for i, h := range haps {
			out[i] = h.WithSpan(f)
		}
		return out
	}, steps: p.steps, seed: p.seed}
}

// Fmap applies f to every event's value.
func (p Pattern) Fmap(f func(any) any) Pattern {
	inner := p.query
	return Pattern{query: func(a arc.Arc) []hap.Hap {
		haps := inner(a)
		out := make([]hap.Hap, len(haps))
		for i, h := range haps {
			out[i] = h.WithValue(f)
		}
		return out
	}, steps: p.steps, seed: p.seed}
}

// FilterEvents drops events that fail pred.
func (p Pattern) FilterEvents(pred func(hap.Hap) bool) Pattern {
	inner := p.query
	return Pattern{query: func(a arc.Arc) []hap.Hap {
		haps := inner(a)
		out := haps[:0:0]
		for _, h := range haps {
			if pred(h) {
				out = append(out, h)
			}
		}
		return out
	}, steps: p.steps, seed: p.seed}
}

// FilterWhen keeps events whose part.Begin satisfies pred.
func (p Pattern) FilterWhen(pred func(rational.Rational) bool) Pattern {
	return p.FilterEvents(func(h hap.Hap) bool { return pred(h.Part.Begin) })
}

// FilterOnsets keeps only events that have an onset in the queried arc.
func (p Pattern) FilterOnsets() Pattern {
	return p.FilterEvents(hap.Hap.HasOnset)
}

// Silence is the pattern with no events for any arc.
var Silence = Pattern{query: func(arc.Arc) []hap.Hap { return nil }}

// Pure builds one event per cycle: whole = [k, k+1), part = whole ∩ query.
func Pure(v any) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			whole := arc.CycleArc(frag.Begin)
			part, ok := whole.Intersect(frag)
			if !ok {
				return nil
			}
			w := whole
			return []hap.Hap{hap.New(&w, part, v)}
		})
	})
}

// Steady builds one event per cycle like Pure, but with Whole left nil so it
// carries no onset semantics in contexts that distinguish continuous values
// from discrete ones (spec section 4.3).
func Steady(v any) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			whole := arc.CycleArc(frag.Begin)
			part, ok := whole.Intersect(frag)
			if !ok {
				return nil
			}
			return []hap.Hap{hap.New(nil, part, v)}
		})
	})
}

// Atom is the mini-notation parser's leaf pattern: one event per cycle like
// Pure, plus a declared step count of 1.
func Atom(v any) Pattern {
	return Pure(v).WithSteps(rational.FromInt(1))
}

// ArgumentErrorf is a convenience constructor used throughout the combinator
// library for the "fast(0)" family of illegal-scalar-argument failures.
func ArgumentErrorf(format string, args ...any) error {
	return perr.New(perr.Argument, format, args...)
}
