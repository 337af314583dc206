// Package arc implements half-open rational-time intervals, the query and
// event spans of the pattern engine (spec section 4.1).
package arc

import (
	"fmt"

	"github.com/cbegin/patterncycle-go/internal/rational"
)

// Arc is the half-open interval [Begin, End). Empty when Begin == End.
type Arc struct {
	Begin rational.Rational
	End   rational.Rational
}

// New builds an Arc. The caller is responsible for Begin <= End; combinators
// never need to construct an inverted arc.
func New(begin, end rational.Rational) Arc {
	return Arc{Begin: begin, End: end}
}

// FromFloat builds an Arc from float64 endpoints, for the queryArc(double,
// double) boundary described in spec section 6.
func FromFloat(begin, end float64) Arc {
	return Arc{Begin: rational.FromFloat(begin), End: rational.FromFloat(end)}
}

// Duration returns End - Begin.
func (a Arc) Duration() rational.Rational {
	return a.End.Sub(a.Begin)
}

// IsEmpty reports whether Begin == End.
func (a Arc) IsEmpty() bool {
	return a.Begin.Equal(a.End)
}

// Intersect returns the overlap of a and b, or false if they do not overlap.
// Two arcs that merely touch (a.End == b.Begin) do not intersect, matching
// half-open semantics.
func (a Arc) Intersect(b Arc) (Arc, bool) {
	begin := rational.Max(a.Begin, b.Begin)
	end := rational.Min(a.End, b.End)
	if begin.Less(end) {
		return Arc{Begin: begin, End: end}, true
	}
	// Zero-width arcs (continuous-signal sample points) still intersect at a
	// single instant if that instant is contained in both arcs.
	if begin.Equal(end) && a.Contains(begin) && b.Contains(begin) {
		return Arc{Begin: begin, End: end}, true
	}
	return Arc{}, false
}

// Contains reports whether t falls in [Begin, End), or equals Begin for a
// zero-width arc.
func (a Arc) Contains(t rational.Rational) bool {
	if a.IsEmpty() {
		return t.Equal(a.Begin)
	}
	return !t.Less(a.Begin) && t.Less(a.End)
}

// SplitAtCycles cuts the arc at every integer boundary it spans, returning
// one fragment per cycle. This is the discipline spec section 5 requires of
// every cycle-indexed combinator: split first, then recurse per cycle.
func (a Arc) SplitAtCycles() []Arc {
	if a.Begin.Less(a.End) {
		out := make([]Arc, 0, 2)
		begin := a.Begin
		for begin.Less(a.End) {
			nextBoundary := begin.Floor().Add(rational.One)
			end := rational.Min(nextBoundary, a.End)
			out = append(out, Arc{Begin: begin, End: end})
			begin = end
		}
		return out
	}
	// Zero-width arcs are their own single fragment (continuous signals).
	return []Arc{a}
}

// SplitAtMultiples cuts the arc at every boundary that is an integer
// multiple of period, returning one fragment per period window. Ribbon uses
// this to loop a sub-cycle-length window on its own period rather than on
// whole cycles.
func (a Arc) SplitAtMultiples(period rational.Rational) []Arc {
	if period.Sign() <= 0 {
		return []Arc{a}
	}
	if a.Begin.Less(a.End) {
		out := make([]Arc, 0, 2)
		begin := a.Begin
		for begin.Less(a.End) {
			n := begin.Div(period).Floor()
			nextBoundary := n.Add(rational.One).Mul(period)
			end := rational.Min(nextBoundary, a.End)
			out = append(out, Arc{Begin: begin, End: end})
			begin = end
		}
		return out
	}
	return []Arc{a}
}

// CycleArc returns the whole cycle [floor(t), floor(t)+1) containing t.
func CycleArc(t rational.Rational) Arc {
	f := t.Floor()
	return Arc{Begin: f, End: f.Add(rational.One)}
}

// MapAffine applies f to both endpoints, producing a new Arc. Combinators
// like fast/slow/rev/zoom build f as an affine Rational->Rational map.
func (a Arc) MapAffine(f func(rational.Rational) rational.Rational) Arc {
	b1, b2 := f(a.Begin), f(a.End)
	if b2.Less(b1) {
		b1, b2 = b2, b1
	}
	return Arc{Begin: b1, End: b2}
}

func (a Arc) String() string {
	return fmt.Sprintf("[%s, %s)", a.Begin, a.End)
}
