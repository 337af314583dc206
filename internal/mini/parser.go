// Package mini implements the mini-notation tokeniser and recursive-descent
// parser (spec section 4.7), compiling strings like "[bd sd]*2" or
// "<c3 e3> g3" into pattern.Pattern trees. Written in the same
// character-at-a-time scan style as internal/mml/parser.go's
// parseNumberOptional/expandLoops, repurposed from MML tokens to
// `[]<>{}|` / `*/!?@:()` mini-notation tokens.
package mini

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/pattern"
	"github.com/cbegin/patterncycle-go/internal/perr"
	"github.com/cbegin/patterncycle-go/internal/prand"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// IndexedAtom is the value produced by the `:token` modifier — an atom
// paired with a secondary selector (e.g. "bd:3"), left for the caller
// (sound/soundIndex field setters) to interpret.
type IndexedAtom struct {
	Name  string
	Index string
}

var (
	memoMu sync.Mutex
	memo   = map[string]pattern.Pattern{}
)

// Parse compiles src into a Pattern, memoising by source string (spec
// section 4.7: "every such call parses the string once").
func Parse(src string) (pattern.Pattern, error) {
	memoMu.Lock()
	if p, ok := memo[src]; ok {
		memoMu.Unlock()
		return p, nil
	}
	memoMu.Unlock()

	p := &parser{s: []rune(src)}
	pat, err := p.parseCat("")
	if err != nil {
		return pattern.Pattern{}, err
	}
	p.skipSpace()
	if p.i < len(p.s) {
		return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "unexpected %q", string(p.s[p.i]))
	}

	memoMu.Lock()
	memo[src] = pat
	memoMu.Unlock()
	return pat, nil
}

type step struct {
	pat    pattern.Pattern
	weight rational.Rational
	reps   int
}

type parser struct {
	s []rune
	i int
}

func (p *parser) peek() rune {
	if p.i >= len(p.s) {
		return 0
	}
	return p.s[p.i]
}

func (p *parser) skipSpace() {
	for p.i < len(p.s) && isSpace(p.s[p.i]) {
		p.i++
	}
}

func (p *parser) atStop(stop string) bool {
	if p.i >= len(p.s) {
		return true
	}
	return strings.ContainsRune(stop, p.s[p.i])
}

// parseCat parses whitespace-separated steps until EOF or a rune in stop,
// assembling them via fastcat (optionally weighted).
func (p *parser) parseCat(stop string) (pattern.Pattern, error) {
	var steps []step
	for {
		p.skipSpace()
		if p.atStop(stop) {
			break
		}
		st, err := p.parseStep()
		if err != nil {
			return pattern.Pattern{}, err
		}
		for i := 0; i < st.reps; i++ {
			steps = append(steps, step{pat: st.pat, weight: st.weight})
		}
	}
	return assembleCat(steps), nil
}

func assembleCat(steps []step) pattern.Pattern {
	if len(steps) == 0 {
		return pattern.Silence
	}
	if len(steps) == 1 && steps[0].weight.Equal(rational.One) {
		return steps[0].pat.WithSteps(rational.One)
	}
	pats := make([]pattern.Pattern, len(steps))
	weights := make([]rational.Rational, len(steps))
	uniform := true
	for i, st := range steps {
		pats[i] = st.pat
		weights[i] = st.weight
		if !st.weight.Equal(rational.One) {
			uniform = false
		}
	}
	if uniform {
		return pattern.Fastcat(pats)
	}
	return pattern.FastcatWeighted(pats, weights)
}

// parseStep parses one elem followed by zero or more postfix modifiers.
func (p *parser) parseStep() (step, error) {
	pat, err := p.parseElem()
	if err != nil {
		return step{}, err
	}
	st := step{pat: pat, weight: rational.One, reps: 1}
	for {
		switch p.peek() {
		case '*':
			p.i++
			n, err := p.parseRational()
			if err != nil {
				return step{}, err
			}
			fp, err := pattern.Fast(n, st.pat)
			if err != nil {
				return step{}, perr.NewAt(perr.Parse, p.i, "%v", err)
			}
			st.pat = fp
		case '/':
			p.i++
			n, err := p.parseRational()
			if err != nil {
				return step{}, err
			}
			sp, err := pattern.Slow(n, st.pat)
			if err != nil {
				return step{}, perr.NewAt(perr.Parse, p.i, "%v", err)
			}
			st.pat = sp
		case '!':
			p.i++
			if isDigit(p.peek()) {
				n, err := p.parseInt()
				if err != nil {
					return step{}, err
				}
				st.reps = n
			} else {
				st.reps = 2
			}
		case '?':
			p.i++
			st.pat = prand.DegradeBy(0, 0.5, st.pat)
		case '@':
			p.i++
			w, err := p.parseRational()
			if err != nil {
				return step{}, err
			}
			st.weight = w
		case ':':
			p.i++
			start := p.i
			for p.i < len(p.s) && isAtomRune(p.s[p.i]) {
				p.i++
			}
			idx := string(p.s[start:p.i])
			st.pat = st.pat.Fmap(func(v any) any {
				name, _ := v.(string)
				return IndexedAtom{Name: name, Index: idx}
			})
		case '(':
			p.i++
			pat, err := p.parseEuclidArgs(st.pat)
			if err != nil {
				return step{}, err
			}
			st.pat = pat
		default:
			return st, nil
		}
	}
}

func (p *parser) parseEuclidArgs(base pattern.Pattern) (pattern.Pattern, error) {
	k, err := p.parseInt()
	if err != nil {
		return pattern.Pattern{}, err
	}
	p.skipSpace()
	if p.peek() != ',' {
		return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected ',' in euclid args")
	}
	p.i++
	p.skipSpace()
	n, err := p.parseInt()
	if err != nil {
		return pattern.Pattern{}, err
	}
	p.skipSpace()
	r := 0
	if p.peek() == ',' {
		p.i++
		p.skipSpace()
		r, err = p.parseInt()
		if err != nil {
			return pattern.Pattern{}, err
		}
		p.skipSpace()
	}
	if p.peek() != ')' {
		return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected ')' to close euclid args")
	}
	p.i++
	if r != 0 {
		return pattern.EuclidRot(k, n, r, base), nil
	}
	return pattern.Euclid(k, n, base), nil
}

func (p *parser) parseElem() (pattern.Pattern, error) {
	switch p.peek() {
	case '~':
		p.i++
		return pattern.Silence, nil
	case '[':
		p.i++
		pat, err := p.parseGroup()
		if err != nil {
			return pattern.Pattern{}, err
		}
		if p.peek() != ']' {
			return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected ']'")
		}
		p.i++
		return pat, nil
	case '<':
		p.i++
		var steps []step
		for {
			p.skipSpace()
			if p.atStop(">") {
				break
			}
			st, err := p.parseStep()
			if err != nil {
				return pattern.Pattern{}, err
			}
			for i := 0; i < st.reps; i++ {
				steps = append(steps, st)
			}
		}
		if p.peek() != '>' {
			return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected '>'")
		}
		p.i++
		pats := make([]pattern.Pattern, len(steps))
		for i, st := range steps {
			pats[i] = st.pat
		}
		return pattern.Slowcat(pats), nil
	case '{':
		p.i++
		inner, err := p.parseCat("}%")
		if err != nil {
			return pattern.Pattern{}, err
		}
		if p.peek() == '%' {
			p.i++
			n, err := p.parseInt()
			if err != nil {
				return pattern.Pattern{}, err
			}
			inner = pattern.PolymeterSteps(rational.FromInt(n), inner)
		}
		if p.peek() != '}' {
			return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected '}'")
		}
		p.i++
		return inner, nil
	default:
		return p.parseAtom()
	}
}

// parseGroup parses the contents of '[...]': one or more '|'-separated
// alternatives, each a full cat. A single alternative is just that cat;
// multiple alternatives form a per-cycle random choice (spec section 4.7).
func (p *parser) parseGroup() (pattern.Pattern, error) {
	var alts []pattern.Pattern
	for {
		alt, err := p.parseCat("]|")
		if err != nil {
			return pattern.Pattern{}, err
		}
		alts = append(alts, alt)
		if p.peek() == '|' {
			p.i++
			continue
		}
		break
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return randomChoice(alts), nil
}

// randomChoice picks one alternative per cycle, deterministically, via the
// shared seed-0 sampler (spec section 4.6's tag-distinguished sampling).
func randomChoice(alts []pattern.Pattern) pattern.Pattern {
	n := len(alts)
	return pattern.New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			cycle := frag.Begin.FloorInt()
			pick := int(prand.R(0, cycle, 0, "altgroup") * float64(n))
			if pick >= n {
				pick = n - 1
			}
			return alts[pick].Query(frag)
		})
	})
}

func (p *parser) parseAtom() (pattern.Pattern, error) {
	start := p.i
	for p.i < len(p.s) && isAtomRune(p.s[p.i]) {
		p.i++
	}
	if p.i == start {
		return pattern.Pattern{}, perr.NewAt(perr.Parse, p.i, "expected an atom")
	}
	text := string(p.s[start:p.i])
	return pattern.Atom(text), nil
}

func (p *parser) parseInt() (int, error) {
	start := p.i
	if p.peek() == '-' {
		p.i++
	}
	for p.i < len(p.s) && isDigit(p.s[p.i]) {
		p.i++
	}
	if p.i == start {
		return 0, perr.NewAt(perr.Parse, p.i, "expected a number")
	}
	n, err := strconv.Atoi(string(p.s[start:p.i]))
	if err != nil {
		return 0, perr.NewAt(perr.Parse, start, "invalid number: %v", err)
	}
	return n, nil
}

func (p *parser) parseRational() (rational.Rational, error) {
	start := p.i
	if p.peek() == '-' {
		p.i++
	}
	for p.i < len(p.s) && isDigit(p.s[p.i]) {
		p.i++
	}
	if p.peek() == '.' {
		p.i++
		for p.i < len(p.s) && isDigit(p.s[p.i]) {
			p.i++
		}
	}
	if p.i == start {
		return rational.Rational{}, perr.NewAt(perr.Parse, p.i, "expected a number")
	}
	text := string(p.s[start:p.i])
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return rational.Rational{}, perr.NewAt(perr.Parse, start, "invalid number: %v", err)
	}
	return rational.FromFloat(f), nil
}
