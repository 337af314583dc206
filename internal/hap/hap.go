// Package hap implements the event triple (whole, part, value) queried from
// a pattern (spec section 3, "Event (Hap)").
package hap

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
)

// Hap is one event returned from a pattern query. Whole is nil for events
// with no intrinsic onset (continuous signals); Part is always the
// intersection of the event's activity with the query arc.
type Hap struct {
	Whole *arc.Arc
	Part  arc.Arc
	Value any
}

// New builds a Hap from its whole (nil for a continuous event), part and
// value, stored as given.
func New(whole *arc.Arc, part arc.Arc, value any) Hap {
	return Hap{Whole: whole, Part: part, Value: value}
}

// HasOnset reports whether Whole is present and begins where Part begins —
// the moment the event "fires" (spec GLOSSARY).
func (h Hap) HasOnset() bool {
	if h.Whole == nil {
		return false
	}
	return h.Whole.Begin.Equal(h.Part.Begin)
}

// WholeOrPart returns Whole if present, otherwise Part — used by combinators
// that need a span to sample against even for continuous events.
func (h Hap) WholeOrPart() arc.Arc {
	if h.Whole != nil {
		return *h.Whole
	}
	return h.Part
}

// WithWhole returns a copy of h with f applied to Whole, if present.
func (h Hap) WithWhole(f func(arc.Arc) arc.Arc) Hap {
	out := h
	if h.Whole != nil {
		w := f(*h.Whole)
		out.Whole = &w
	}
	return out
}

// WithPart returns a copy of h with f applied to Part.
func (h Hap) WithPart(f func(arc.Arc) arc.Arc) Hap {
	out := h
	out.Part = f(h.Part)
	return out
}

// WithValue returns a copy of h with f applied to Value.
func (h Hap) WithValue(f func(any) any) Hap {
	out := h
	out.Value = f(h.Value)
	return out
}

// WithSpan applies f to both Whole and Part, the shape fast/slow/rev/zoom
// need when remapping event arcs on the way back up from a query.
func (h Hap) WithSpan(f func(arc.Arc) arc.Arc) Hap {
	return h.WithWhole(f).WithPart(f)
}

// CloneWhole returns a pointer to a copy of a, for building a fresh Whole.
func CloneWhole(a arc.Arc) *arc.Arc {
	out := a
	return &out
}

// SplitQueries runs query once per integer-cycle fragment of q and
// concatenates the results, the helper every cycle-indexed combinator in
// spec section 5 is required to use before applying per-cycle logic.
func SplitQueries(q arc.Arc, query func(arc.Arc) []Hap) []Hap {
	fragments := q.SplitAtCycles()
	out := make([]Hap, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, query(f)...)
	}
	return out
}
