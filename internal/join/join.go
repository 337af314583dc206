// Package join implements the pattern-of-patterns flattening operators
// (spec section 4.5): innerJoin, outerJoin, mixJoin, and the pickmod family
// built on top of them.
package join

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

func asPattern(v any) (pattern.Pattern, bool) {
	p, ok := v.(pattern.Pattern)
	return p, ok
}

// InnerJoin queries each outer event's inner pattern over the outer event's
// part; the result's structure (part/whole) is driven by the inner events,
// clipped to the outer's part.
func InnerJoin(outer pattern.Pattern) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		outerHaps := outer.Query(q)
		out := []hap.Hap{}
		for _, o := range outerHaps {
			inner, ok := asPattern(o.Value)
			if !ok {
				continue
			}
			for _, ih := range inner.Query(o.Part) {
				part, ok := ih.Part.Intersect(o.Part)
				if !ok {
					continue
				}
				var whole *arc.Arc
				if ih.Whole != nil {
					if w, ok := ih.Whole.Intersect(o.Part); ok {
						whole = &w
					}
				}
				out = append(out, hap.Hap{Whole: whole, Part: part, Value: ih.Value})
			}
		}
		return out
	})
}

// pickActive returns the Hap whose Part contains t, breaking ties toward the
// latest onset — the inner event "active at" a sampling instant.
func pickActive(haps []hap.Hap, t rational.Rational) (hap.Hap, bool) {
	var best *hap.Hap
	for i := range haps {
		h := &haps[i]
		if h.Part.Contains(t) {
			if best == nil || h.Part.Begin.Cmp(best.Part.Begin) >= 0 {
				best = h
			}
		}
	}
	if best == nil {
		return hap.Hap{}, false
	}
	return *best, true
}

// OuterJoin emits exactly one event per outer event: the inner pattern is
// point-sampled at the outer event's whole.begin, and the picked inner
// event's own (native, unclipped) whole is intersected with the outer
// event's part to produce the result's part. The outer event's whole is
// kept untouched — this is what guarantees an onset at every outer step
// even when the picked inner event's native span started earlier (spec
// section 4.5 / section 8 property 10).
func OuterJoin(outer pattern.Pattern) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		outerHaps := outer.Query(q)
		out := []hap.Hap{}
		for _, o := range outerHaps {
			inner, ok := asPattern(o.Value)
			if !ok {
				continue
			}
			t := o.WholeOrPart().Begin
			picked, ok := pickActive(inner.Query(arc.New(t, t)), t)
			if !ok {
				continue
			}
			part := o.Part
			if picked.Whole != nil {
				p, ok := picked.Whole.Intersect(o.Part)
				if !ok {
					continue
				}
				part = p
			}
			out = append(out, hap.Hap{Whole: o.Whole, Part: part, Value: picked.Value})
		}
		return out
	})
}

// MixJoin is InnerJoin's structure, but the emitted value is merge(outer
// event value, inner event value) — used where both sides contribute
// payload fields (e.g. sound("bd hh").orbit("0 2")).
func MixJoin(outer pattern.Pattern, merge func(outerVal, innerVal any) any) pattern.Pattern {
	return pattern.New(func(q arc.Arc) []hap.Hap {
		outerHaps := outer.Query(q)
		out := []hap.Hap{}
		for _, o := range outerHaps {
			inner, ok := asPattern(o.Value)
			if !ok {
				continue
			}
			for _, ih := range inner.Query(o.Part) {
				part, ok := ih.Part.Intersect(o.Part)
				if !ok {
					continue
				}
				var whole *arc.Arc
				if ih.Whole != nil {
					if w, ok := ih.Whole.Intersect(o.Part); ok {
						whole = &w
					}
				}
				out = append(out, hap.Hap{Whole: whole, Part: part, Value: merge(o.Value, ih.Value)})
			}
		}
		return out
	})
}

func floorToInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		f := t
		n := int(f)
		if f < 0 && float64(n) != f {
			n--
		}
		return n, true
	case rational.Rational:
		return t.FloorInt(), true
	default:
		return 0, false
	}
}

func selectorOf(xs []pattern.Pattern, selector pattern.Pattern) pattern.Pattern {
	n := len(xs)
	return selector.Fmap(func(v any) any {
		idx, ok := floorToInt(v)
		if !ok {
			idx = 0
		}
		idx = ((idx % n) + n) % n
		return xs[idx]
	})
}

// PickMod uses selector's (floored, modulo-wrapped) integer value to choose
// one of xs at each selector onset, then innerJoins the choice.
func PickMod(xs []pattern.Pattern, selector pattern.Pattern) pattern.Pattern {
	if len(xs) == 0 {
		return pattern.Silence
	}
	return InnerJoin(selectorOf(xs, selector))
}

// PickModOut is PickMod with outerJoin semantics: one onset per selector
// step, matching the "every selector step has an onset" property tests
// rely on (spec section 4.5).
func PickModOut(xs []pattern.Pattern, selector pattern.Pattern) pattern.Pattern {
	if len(xs) == 0 {
		return pattern.Silence
	}
	return OuterJoin(selectorOf(xs, selector))
}
