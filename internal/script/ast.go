package script

// Expr is any node of the expression grammar: number/string literals,
// identifier references (bound against the operator table), call
// expressions, method-chain calls (`recv.name(args)`), and the four
// arithmetic binary operators (used for numeric arguments like `1/4`).
type Expr interface{ exprNode() }

type NumberExpr struct{ Value float64 }
type StringExpr struct{ Value string }
type IdentExpr struct{ Name string }

type CallExpr struct {
	Callee Expr
	Args   []Expr
}

type MethodCallExpr struct {
	Receiver Expr
	Name     string
	Args     []Expr
}

type ListExpr struct{ Items []Expr }

// ArrowExpr is a one-parameter lambda (`x => x.fast(2)`), the only function
// shape the transform-taking operators (every, superimpose, sometimesBy, jux)
// need — spec section 6 describes a "JavaScript-like expression language"
// and this is its arrow-function subset.
type ArrowExpr struct {
	Param string
	Body  Expr
}

type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (NumberExpr) exprNode()     {}
func (StringExpr) exprNode()     {}
func (IdentExpr) exprNode()      {}
func (CallExpr) exprNode()       {}
func (MethodCallExpr) exprNode() {}
func (ListExpr) exprNode()       {}
func (BinaryExpr) exprNode()     {}
func (ArrowExpr) exprNode()      {}
