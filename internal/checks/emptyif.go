package checks

import (
	"go/ast"
	"go/token"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/tree"
)

var EmptyIf = check.MustDefine(check.Info{
	Name:     "EmptyIf",
	Summary:  "If statement with an empty body",
	Severity: diag.SevWarning,
	Tags:     []string{"style"},
}, check.OnNode(matchEmptyIf))

func matchEmptyIf(s *check.State, n *ast.IfStmt) check.Result {
	if len(n.Body.List) != 0 || n.Else != nil {
		return check.NoMatch()
	}
	d := s.Describe(n)
	if n.Init == nil && isPure(s.Unit, n.Cond) {
		d.AddFixFrom(s.Fix().WithTitle("Remove the if statement").Delete(n))
	}
	return d.Result()
}

// isPure reports whether evaluating e cannot have side effects. Only
// conversions and len or cap are accepted as calls.
func isPure(u *tree.Unit, e ast.Expr) bool {
	pure := true
	ast.Inspect(e, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.CallExpr:
			if isBuiltin(u, n.Fun, "len", "cap") {
				return true
			}
			if u.Typed() && u.Info.Types[n.Fun].IsType() {
				return true
			}
			pure = false
		case *ast.UnaryExpr:
			if n.Op == token.ARROW {
				pure = false
			}
		case *ast.FuncLit:
			return false
		}
		return pure
	})
	return pure
}
