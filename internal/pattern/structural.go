package pattern

import (
	"github.com/cbegin/patterncycle-go/internal/arc"
	"github.com/cbegin/patterncycle-go/internal/hap"
	"github.com/cbegin/patterncycle-go/internal/rational"
)

// Struct keeps, for every truthy onset of mask, the latest value of p active
// at that instant; falsy or absent mask events emit nothing.
func Struct(mask, p Pattern) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		maskHaps := mask.Query(q)
		out := []hap.Hap{}
		for _, mh := range maskHaps {
			if !mh.HasOnset() || !isTruthy(mh.Value) {
				continue
			}
			window := mh.WholeOrPart()
			pHaps := p.Query(window)
			val, ok := sampleLatestAt(pHaps, mh.Part.Begin)
			if !ok {
				continue
			}
			w := window
			out = append(out, hap.New(&w, mh.Part, val))
		}
		return out
	})
}

// StructAll is like Struct, but keeps every event of p active within a
// truthy mask window (clipped to it), not only the latest.
func StructAll(mask, p Pattern) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		maskHaps := mask.Query(q)
		out := []hap.Hap{}
		for _, mh := range maskHaps {
			if !mh.HasOnset() || !isTruthy(mh.Value) {
				continue
			}
			window := mh.WholeOrPart()
			pHaps := p.Query(window)
			for _, ph := range pHaps {
				clipped, ok := ph.Part.Intersect(window)
				if !ok {
					continue
				}
				out = append(out, hap.Hap{Whole: ph.Whole, Part: clipped, Value: ph.Value})
			}
		}
		return out
	})
}

// Mask keeps events of p whose span intersects a truthy onset of pm.
func Mask(pm, p Pattern) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		pHaps := p.Query(q)
		pmHaps := pm.Query(q)
		out := []hap.Hap{}
		for _, ph := range pHaps {
			for _, mh := range pmHaps {
				if !mh.HasOnset() || !isTruthy(mh.Value) {
					continue
				}
				if _, ok := ph.Part.Intersect(mh.Part); ok {
					out = append(out, ph)
					break
				}
			}
		}
		return out
	})
}

// MaskAll keeps events of p whose span intersects any truthy event of pm,
// onset or not.
func MaskAll(pm, p Pattern) Pattern {
	return New(func(q arc.Arc) []hap.Hap {
		pHaps := p.Query(q)
		pmHaps := pm.Query(q)
		out := []hap.Hap{}
		for _, ph := range pHaps {
			for _, mh := range pmHaps {
				if !isTruthy(mh.Value) {
					continue
				}
				if _, ok := ph.Part.Intersect(mh.Part); ok {
					out = append(out, ph)
					break
				}
			}
		}
		return out
	})
}

// bjorklund computes the Euclidean rhythm distributing k pulses evenly
// across n steps, via the standard continued-fraction onset-grouping
// algorithm (Toussaint's construction, as widely ported in the generative
// music community).
func bjorklund(k, n int) []bool {
	bits := make([]bool, n)
	if n <= 0 || k <= 0 {
		return bits
	}
	if k >= n {
		for i := range bits {
			bits[i] = true
		}
		return bits
	}

	var counts []int
	remainders := []int{k}
	divisor := n - k
	level := 0
	for {
		counts = append(counts, divisor/remainders[level])
		remainders = append(remainders, divisor%remainders[level])
		divisor = remainders[level]
		level++
		if remainders[level] <= 1 {
			break
		}
	}
	counts = append(counts, divisor)

	var seq []bool
	var build func(lvl int)
	build = func(lvl int) {
		switch {
		case lvl == -1:
			seq = append(seq, false)
		case lvl == -2:
			seq = append(seq, true)
		default:
			for i := 0; i < counts[lvl]; i++ {
				build(lvl - 1)
			}
			if remainders[lvl] != 0 {
				build(lvl - 2)
			}
		}
	}
	build(level)

	idx := 0
	for idx < len(seq) && !seq[idx] {
		idx++
	}
	if idx == len(seq) {
		idx = 0
	}
	copy(bits, append(append([]bool{}, seq[idx:]...), seq[:idx]...))
	return bits
}

func rotateBits(bits []bool, r int) []bool {
	n := len(bits)
	if n == 0 {
		return bits
	}
	r = ((r % n) + n) % n
	out := make([]bool, n)
	for i := range bits {
		out[i] = bits[(i+r)%n]
	}
	return out
}

func gridMaskPattern(bits []bool) Pattern {
	atoms := make([]Pattern, len(bits))
	for i, b := range bits {
		atoms[i] = Pure(b)
	}
	return Fastcat(atoms)
}

// Euclid distributes k pulses over n steps per cycle (Bjorklund's
// algorithm) and structures p's value onto them.
func Euclid(k, n int, p Pattern) Pattern {
	return Struct(gridMaskPattern(bjorklund(k, n)), p)
}

// Bjork is an alias for Euclid.
func Bjork(k, n int, p Pattern) Pattern { return Euclid(k, n, p) }

// EuclidRot is Euclid with the pulse sequence rotated by r steps before use.
func EuclidRot(k, n, r int, p Pattern) Pattern {
	return Struct(gridMaskPattern(rotateBits(bjorklund(k, n), r)), p)
}

func onsetPositions(bits []bool) []rational.Rational {
	n := len(bits)
	var out []rational.Rational
	for i, b := range bits {
		if b {
			out = append(out, rational.New(int64(i), int64(n)))
		}
	}
	return out
}

// buildLegatoPattern emits one true-valued event per onset position, each
// extended until the next onset. When wrap is true the final onset's
// sustain continues into the next cycle, producing a fragment at the head
// of that cycle rather than being clipped at the cycle boundary.
func buildLegatoPattern(positions []rational.Rational, wrap bool) Pattern {
	n := len(positions)
	if n == 0 {
		return Silence
	}
	return New(func(q arc.Arc) []hap.Hap {
		return hap.SplitQueries(q, func(frag arc.Arc) []hap.Hap {
			k := frag.Begin.Floor()
			out := []hap.Hap{}
			emit := func(start, end rational.Rational) {
				whole := arc.New(start, end)
				part, ok := whole.Intersect(frag)
				if !ok {
					return
				}
				w := whole
				out = append(out, hap.New(&w, part, true))
			}
			for i := 0; i < n; i++ {
				start := positions[i].Add(k)
				var end rational.Rational
				switch {
				case i+1 < n:
					end = positions[i+1].Add(k)
				case wrap:
					end = positions[0].Add(k).Add(rational.One)
				default:
					end = rational.One.Add(k)
				}
				emit(start, end)
			}
			if wrap {
				prevK := k.Sub(rational.One)
				start := positions[n-1].Add(prevK)
				end := positions[0].Add(k)
				whole := arc.New(start, end)
				if part, ok := whole.Intersect(frag); ok {
					w := whole
					out = append(out, hap.New(&w, part, true))
				}
			}
			return out
		})
	})
}

// EuclidLegato is Euclid's pulse positions, but each event's duration is
// extended to the start of the next pulse instead of a fixed grid slot. The
// final pulse of the cycle sustains to the cycle boundary.
func EuclidLegato(k, n int) Pattern {
	return buildLegatoPattern(onsetPositions(bjorklund(k, n)), false)
}

// EuclidLegatoRot is EuclidLegato with rotation applied first; the final
// pulse's sustain wraps across the cycle boundary rather than being cut
// short, so a fragment of it appears at the head of the next cycle.
func EuclidLegatoRot(k, n, r int) Pattern {
	return buildLegatoPattern(onsetPositions(rotateBits(bjorklund(k, n), r)), true)
}

// Euclidish interpolates the pulse positions of Euclid(k,n) (g=0) toward k
// evenly-spaced pulses (g=1), then structures p's value onto the result.
func Euclidish(k, n int, g rational.Rational, p Pattern) Pattern {
	euclidPos := onsetPositions(bjorklund(k, n))
	if len(euclidPos) == 0 {
		return Silence
	}
	positions := make([]rational.Rational, len(euclidPos))
	for i := range euclidPos {
		even := rational.New(int64(i), int64(k))
		positions[i] = euclidPos[i].Mul(rational.One.Sub(g)).Add(even.Mul(g))
	}
	mask := buildLegatoPattern(positions, false)
	return Struct(mask, p)
}
