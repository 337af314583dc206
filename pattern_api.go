package patterncycle

import (
	"github.com/cbegin/patterncycle-go/internal/bridge"
	"github.com/cbegin/patterncycle-go/internal/mini"
	corepattern "github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/script"
	"github.com/cbegin/patterncycle-go/internal/voice"
)

// Pattern is the root-level gateway onto the query-closure pattern value
// (spec section 3 "Pattern") the rest of this file's combinators build on.
type Pattern = corepattern.Pattern

// IntoPattern coerces a string (parsed as mini-notation), an already-built
// Pattern, or a plain scalar into a Pattern — spec section 6: "strings are
// implicitly converted to patterns wherever a pattern is expected".
func IntoPattern(v any) (Pattern, error) {
	switch t := v.(type) {
	case Pattern:
		return t, nil
	case string:
		return mini.Parse(t)
	default:
		return corepattern.Atom(t), nil
	}
}

// CompilePattern parses mini-notation source directly (spec section 6's
// "Mini-notation surface").
func CompilePattern(source string) (Pattern, error) { return mini.Parse(source) }

// CompileScript evaluates the embedded expression language (spec section
// 6's "Embedded script entry"), returning an error instead of a nullable
// pattern on parse/evaluation failure.
func CompileScript(source string) (Pattern, error) { return script.Compile(source) }

// Jux splits p across a stereo field: the original pans hard left, f(p)
// pans hard right. Needs voice.Pan, so it lives at the root facade rather
// than internal/pattern, which stays domain-value-agnostic (operates on
// `any`, never on VoiceData).
func Jux(f func(Pattern) Pattern, p Pattern) Pattern {
	return JuxBy(1.0, f, p)
}

// JuxBy is Jux with a configurable pan spread: 0 leaves both copies
// centred, 1 is hard left/right.
func JuxBy(amount float64, f func(Pattern) Pattern, p Pattern) Pattern {
	left := voice.Apply(p, voice.Pan(corepattern.Atom(0.5-amount/2)))
	right := voice.Apply(f(p), voice.Pan(corepattern.Atom(0.5+amount/2)))
	return corepattern.Stack([]Pattern{left, right})
}

// PlayPattern renders pat through the bridge into an mml.Score and plays it
// the same way PlayMML plays parsed MML text.
func (p *Player) PlayPattern(pat Pattern, opts bridge.Options) error {
	return p.Play(bridge.ScoreFromPattern(pat, opts))
}
