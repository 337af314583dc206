package rational

import "testing"

import "github.com/stretchr/testify/assert"

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name string
		got  Rational
		want Rational
	}{
		{"add", New(1, 3).Add(New(1, 6)), New(1, 2)},
		{"sub", New(1, 2).Sub(New(1, 3)), New(1, 6)},
		{"mul", New(2, 3).Mul(New(3, 4)), New(1, 2)},
		{"div", New(1, 2).Div(New(1, 4)), New(2, 1)},
		{"neg", New(1, 2).Neg(), New(-1, 2)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.True(t, c.got.Equal(c.want), "%s: got %s want %s", c.name, c.got, c.want)
		})
	}
}

func TestDivByZeroPanics(t *testing.T) {
	assert.Panics(t, func() { One.Div(Zero) })
}

func TestCompare(t *testing.T) {
	assert.True(t, New(1, 3).Less(New(1, 2)))
	assert.False(t, New(1, 2).Less(New(1, 3)))
	assert.True(t, New(2, 4).Equal(New(1, 2)))
	assert.True(t, New(1, 2).LessEq(New(1, 2)))
}

func TestFloorAndFract(t *testing.T) {
	cases := []struct {
		in        Rational
		wantFloor int
		wantFract Rational
	}{
		{New(7, 2), 3, New(1, 2)},
		{New(-7, 2), -4, New(1, 2)},
		{FromInt(5), 5, Zero},
	}
	for _, c := range cases {
		assert.Equal(t, c.wantFloor, c.in.FloorInt())
		assert.True(t, c.in.Fract().Equal(c.wantFract), "fract of %s: got %s want %s", c.in, c.in.Fract(), c.wantFract)
	}
}

func TestIsInt(t *testing.T) {
	assert.True(t, FromInt(4).IsInt())
	assert.False(t, New(1, 2).IsInt())
}

func TestDenom(t *testing.T) {
	assert.Equal(t, int64(7), New(3, 7).Denom())
	assert.Equal(t, int64(1), FromInt(4).Denom())
	assert.Equal(t, int64(2), New(2, 4).Denom()) // normalised to 1/2
}

func TestFromFloatRoundTrips(t *testing.T) {
	r := FromFloat(0.25)
	assert.InDelta(t, 0.25, r.Float64(), 1e-9)
}

func TestMinMax(t *testing.T) {
	a, b := New(1, 3), New(1, 2)
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
}

func TestString(t *testing.T) {
	assert.Equal(t, "1/2", New(1, 2).String())
	assert.Equal(t, "3", FromInt(3).String())
}
