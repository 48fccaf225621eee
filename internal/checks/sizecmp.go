package checks

import (
	"go/ast"
	"go/token"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

var SizeGreaterThanOrEqualsZero = check.MustDefine(check.Info{
	Name:     "SizeGreaterThanOrEqualsZero",
	AltNames: []string{"LenGreaterThanOrEqualsZero"},
	Summary:  "Comparison of a size against zero is always true",
	Explanation: "len and cap never return a negative number, so len(x) >= 0 holds for every x. " +
		"A non-empty test was probably intended.",
	Severity: diag.SevError,
	Tags:     []string{"likely-bug"},
}, check.OnNode(matchSizeComparison))

func matchSizeComparison(s *check.State, n *ast.BinaryExpr) check.Result {
	var size ast.Expr
	var strict token.Token
	switch {
	case n.Op == token.GEQ && isZero(n.Y):
		size, strict = n.X, token.GTR
	case n.Op == token.LEQ && isZero(n.X):
		size, strict = n.Y, token.LSS
	default:
		return check.NoMatch()
	}
	call, ok := ast.Unparen(size).(*ast.CallExpr)
	if !ok || len(call.Args) != 1 || !isBuiltin(s.Unit, call.Fun, "len", "cap") {
		return check.NoMatch()
	}

	fb := s.Fix().WithTitle("Compare with " + strict.String()).Preferred()
	fb.ReplaceRange(n.OpPos, n.OpPos+token.Pos(len(n.Op.String())), strict.String())
	return s.Describe(n).
		Messagef("%s is never negative, so this comparison is always true", s.Text(call)).
		AddFixFrom(fb).
		Result()
}

func isZero(e ast.Expr) bool {
	lit, ok := ast.Unparen(e).(*ast.BasicLit)
	return ok && lit.Kind == token.INT && lit.Value == "0"
}
