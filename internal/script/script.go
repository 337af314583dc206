package script

import "github.com/cbegin/patterncycle-go/internal/pattern"

// Compile evaluates source in the embedded expression language and returns
// the resulting pattern, or an error on parse/evaluation failure — spec
// section 6 calls for a nullable return; Go's idiom for "result or reason
// it failed" is the (value, error) pair instead of a bare nil.
func Compile(source string) (pattern.Pattern, error) {
	lexer := NewLexer(source)
	tokens, err := lexer.Tokens()
	if err != nil {
		return pattern.Pattern{}, err
	}
	parser := NewParser(tokens)
	expr, err := parser.ParseExpr()
	if err != nil {
		return pattern.Pattern{}, err
	}
	v, err := Eval(expr, Env{})
	if err != nil {
		return pattern.Pattern{}, err
	}
	return v.ToPattern()
}
