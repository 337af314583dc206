package perr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{Argument, "Argument"},
		{Parse, "Parse"},
		{Lookup, "Lookup"},
		{TypeMismatch, "TypeMismatch"},
		{Kind(99), "Unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.k.String())
	}
}

func TestErrorFormatting(t *testing.T) {
	noPos := New(Argument, "fast(%d) is invalid", 0)
	assert.Equal(t, "Argument error: fast(0) is invalid", noPos.Error())

	withPos := NewAt(Parse, 7, "unexpected token %q", "]")
	assert.Equal(t, `Parse error at 7: unexpected token "]"`, withPos.Error())
}

func TestErrorIsError(t *testing.T) {
	var err error = New(Lookup, "unknown scale %q", "majr")
	assert.EqualError(t, err, `Lookup error: unknown scale "majr"`)
}
