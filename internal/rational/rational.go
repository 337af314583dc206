// Package rational implements exact rational-number time arithmetic for the
// pattern engine. Cycle positions like 1/3, 2/5, 3/7 arise from Euclidean
// rhythms and joins and must compare exactly to establish event adjacency,
// so all interior arc arithmetic stays rational; doubles only enter at the
// query-surface boundary (spec section 4.1).
package rational

import (
	"fmt"
	"math/big"
)

// Rational is an exact, normalised fraction p/q with q > 0.
type Rational struct {
	r big.Rat
}

// Zero, One and OneHalf are commonly reused constants.
var (
	Zero    = FromInt(0)
	One     = FromInt(1)
	OneHalf = New(1, 2)
)

// New builds a normalised Rational num/den. Panics if den is zero, mirroring
// the teacher's convention of failing fast on malformed scalar arguments
// (e.g. octave range checks in internal/mml/parser.go).
func New(num, den int64) Rational {
	if den == 0 {
		panic("rational: zero denominator")
	}
	var r Rational
	r.r.SetFrac64(num, den)
	return r
}

// FromInt builds a Rational equal to the given integer.
func FromInt(n int) Rational {
	var r Rational
	r.r.SetInt64(int64(n))
	return r
}

// FromFloat converts x to the Rational equal to its exact binary value
// (big.Rat.SetFloat64), used only when a float64 enters from outside the
// core (spec 4.1). Decimal fractions such as 0.1 keep their binary error.
func FromFloat(x float64) Rational {
	var r Rational
	r.r.SetFloat64(x)
	return r
}

// Float64 converts to a float64, losing exactness; only for interface boundaries.
func (a Rational) Float64() float64 {
	f, _ := a.r.Float64()
	return f
}

// Add returns a+b.
func (a Rational) Add(b Rational) Rational {
	var out Rational
	out.r.Add(&a.r, &b.r)
	return out
}

// Sub returns a-b.
func (a Rational) Sub(b Rational) Rational {
	var out Rational
	out.r.Sub(&a.r, &b.r)
	return out
}

// Mul returns a*b.
func (a Rational) Mul(b Rational) Rational {
	var out Rational
	out.r.Mul(&a.r, &b.r)
	return out
}

// Div returns a/b. Panics if b is zero, matching fast(0)/slow(0) being
// undefined Argument errors raised by the caller before reaching here.
func (a Rational) Div(b Rational) Rational {
	if b.Sign() == 0 {
		panic("rational: division by zero")
	}
	var out Rational
	out.r.Quo(&a.r, &b.r)
	return out
}

// Neg returns -a.
func (a Rational) Neg() Rational {
	var out Rational
	out.r.Neg(&a.r)
	return out
}

// Sign returns -1, 0, or 1.
func (a Rational) Sign() int { return a.r.Sign() }

// Cmp returns -1, 0, or 1 if a is less than, equal to, or greater than b.
func (a Rational) Cmp(b Rational) int { return a.r.Cmp(&b.r) }

// Less reports whether a < b.
func (a Rational) Less(b Rational) bool { return a.Cmp(b) < 0 }

// LessEq reports whether a <= b.
func (a Rational) LessEq(b Rational) bool { return a.Cmp(b) <= 0 }

// Equal reports whether a == b.
func (a Rational) Equal(b Rational) bool { return a.Cmp(b) == 0 }

// Min returns the smaller of a, b.
func Min(a, b Rational) Rational {
	if a.Less(b) {
		return a
	}
	return b
}

// Max returns the larger of a, b.
func Max(a, b Rational) Rational {
	if a.Less(b) {
		return b
	}
	return a
}

// Floor returns the greatest integer <= a, as a Rational.
func (a Rational) Floor() Rational {
	num := new(big.Int).Set(a.r.Num())
	den := a.r.Denom()
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(num, den, m) // Euclidean division, m >= 0
	var out Rational
	out.r.SetInt(q)
	return out
}

// FloorInt returns Floor as a plain int, for cycle-index bookkeeping.
func (a Rational) FloorInt() int {
	f := a.Floor()
	return int(f.r.Num().Int64())
}

// Fract returns a - a.Floor(), always in [0, 1).
func (a Rational) Fract() Rational {
	return a.Sub(a.Floor())
}

// IsInt reports whether a has denominator 1.
func (a Rational) IsInt() bool {
	return a.r.IsInt()
}

// Denom returns the normalised (always positive) denominator, the
// granularity a caller must quantise to in order to represent a exactly —
// used by internal/bridge to size an integer tick grid without rounding
// loss instead of assuming a fixed subdivision.
func (a Rational) Denom() int64 {
	return a.r.Denom().Int64()
}

// String renders as "num/den" (or the integer when den == 1).
func (a Rational) String() string {
	if a.r.IsInt() {
		return a.r.Num().String()
	}
	return fmt.Sprintf("%s/%s", a.r.Num().String(), a.r.Denom().String())
}
