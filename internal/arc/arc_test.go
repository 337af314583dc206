package arc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cbegin/patterncycle-go/internal/rational"
)

func r(num, den int64) rational.Rational { return rational.New(num, den) }

func TestIntersect(t *testing.T) {
	cases := []struct {
		name     string
		a, b     Arc
		wantOK   bool
		wantArc  Arc
	}{
		{"overlap", New(r(0, 1), r(1, 1)), New(r(0, 2), r(3, 2)), true, New(r(0, 1), r(1, 1))},
		{"touching is empty", New(r(0, 1), r(1, 1)), New(r(1, 1), r(2, 1)), false, Arc{}},
		{"disjoint", New(r(0, 1), r(1, 1)), New(r(2, 1), r(3, 1)), false, Arc{}},
		{"zero-width inside", New(r(1, 2), r(1, 2)), New(r(0, 1), r(1, 1)), true, New(r(1, 2), r(1, 2))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := c.a.Intersect(c.b)
			assert.Equal(t, c.wantOK, ok)
			if ok {
				assert.True(t, got.Begin.Equal(c.wantArc.Begin))
				assert.True(t, got.End.Equal(c.wantArc.End))
			}
		})
	}
}

func TestContains(t *testing.T) {
	a := New(r(0, 1), r(1, 1))
	assert.True(t, a.Contains(r(0, 1)))
	assert.True(t, a.Contains(r(1, 2)))
	assert.False(t, a.Contains(r(1, 1)))

	zw := New(r(1, 2), r(1, 2))
	assert.True(t, zw.Contains(r(1, 2)))
	assert.False(t, zw.Contains(r(1, 3)))
}

func TestSplitAtCycles(t *testing.T) {
	got := New(r(1, 2), r(5, 2)).SplitAtCycles()
	assert.Len(t, got, 3)
	assert.True(t, got[0].Begin.Equal(r(1, 2)))
	assert.True(t, got[0].End.Equal(r(1, 1)))
	assert.True(t, got[1].Begin.Equal(r(1, 1)))
	assert.True(t, got[1].End.Equal(r(2, 1)))
	assert.True(t, got[2].Begin.Equal(r(2, 1)))
	assert.True(t, got[2].End.Equal(r(5, 2)))
}

func TestSplitAtMultiples(t *testing.T) {
	got := New(r(1, 4), r(3, 4)).SplitAtMultiples(r(1, 2))
	assert.Len(t, got, 2)
	assert.True(t, got[0].End.Equal(r(1, 2)))
	assert.True(t, got[1].Begin.Equal(r(1, 2)))
}

func TestCycleArc(t *testing.T) {
	a := CycleArc(r(5, 2))
	assert.True(t, a.Begin.Equal(r(2, 1)))
	assert.True(t, a.End.Equal(r(3, 1)))
}

func TestMapAffine(t *testing.T) {
	a := New(r(0, 1), r(1, 1))
	got := a.MapAffine(func(x rational.Rational) rational.Rational { return x.Neg() })
	assert.True(t, got.Begin.Equal(r(-1, 1)))
	assert.True(t, got.End.Equal(r(0, 1)))
}

func TestDurationAndEmpty(t *testing.T) {
	a := New(r(1, 4), r(3, 4))
	assert.True(t, a.Duration().Equal(r(1, 2)))
	assert.False(t, a.IsEmpty())
	assert.True(t, New(r(1, 2), r(1, 2)).IsEmpty())
}
