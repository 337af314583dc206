package pattern

import (
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// carryMeta wraps q as a Pattern inheriting p's declared steps and seed, the
// metadata every combinator must propagate (spec section 3: "a pattern's
// output depends only on the query arc and its ambient seed").
func carryMeta(p Pattern, q QueryFunc) Pattern {
	return Pattern{query: q, steps: p.steps, seed: p.seed}
}

// isTruthy is the mini-notation's notion of "this step counts as an onset":
// bool true, nonzero numbers, and non-empty, non-rest strings.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != "" && t != "~"
	case nil:
		return false
	default:
		return true
	}
}

// sampleLatestAt picks the value of the Hap whose Part contains t, breaking
// ties toward the latest onset — "the latest value of p at that onset"
// (spec section 4.4, struct).
func sampleLatestAt(haps []hap.Hap, t rational.Rational) (any, bool) {
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
		return nil, false
	}
	return best.Value, true
}

func intLCM(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	g := intGCD(a, b)
	return a / g * b
}

func intGCD(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func stepsOrOne(p Pattern) rational.Rational {
	if s, ok := p.Steps(); ok {
		return s
	}
	return rational.One
}
