package checks

import (
	"go/ast"
	"go/token"
	"slices"
	"strings"

	"github.com/go-toolsmith/astequal"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/tree"
)

var SelfAssignment = check.MustDefine(check.Info{
	Name:     "SelfAssignment",
	AltNames: []string{"SelfAssign"},
	Summary:  "Variable assigned to itself",
	Explanation: "An assignment whose left and right sides are the same variable has no effect. " +
		"It usually means the wrong name was used on one side.",
	Severity: diag.SevError,
	Tags:     []string{"likely-bug"},
}, check.OnNode(matchSelfAssignment))

func matchSelfAssignment(s *check.State, n *ast.AssignStmt) check.Result {
	if n.Tok != token.ASSIGN || len(n.Lhs) != len(n.Rhs) {
		return check.NoMatch()
	}
	var self []int
	for i := range n.Lhs {
		if isSelfAssigned(s.Unit, n.Lhs[i], n.Rhs[i]) {
			self = append(self, i)
		}
	}
	if len(self) == 0 {
		return check.NoMatch()
	}

	fb := s.Fix().WithTitle("Remove the self-assignment").Preferred()
	if len(self) == len(n.Lhs) {
		fb.Delete(n)
	} else {
		fb.Replace(n, withoutPairs(s.Unit, n, self))
	}
	return s.Describe(n.Lhs[self[0]]).
		Messagef("%s is assigned to itself", s.Text(n.Lhs[self[0]])).
		AddFixFrom(fb).
		Result()
}

// isSelfAssigned compares both sides, which must be free of side effects.
func isSelfAssigned(u *tree.Unit, lhs, rhs ast.Expr) bool {
	if !isPlainOperand(lhs) || !isPlainOperand(rhs) {
		return false
	}
	if l, ok := lhs.(*ast.Ident); ok {
		if l.Name == "_" {
			return false
		}
		if r, ok := rhs.(*ast.Ident); ok {
			if ol, or := u.ObjectOf(l), u.ObjectOf(r); ol != nil && or != nil {
				return ol == or
			}
		}
	}
	return astequal.Expr(lhs, rhs)
}

func isPlainOperand(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.Ident, *ast.BasicLit:
		return true
	case *ast.ParenExpr:
		return isPlainOperand(e.X)
	case *ast.SelectorExpr:
		return isPlainOperand(e.X)
	case *ast.StarExpr:
		return isPlainOperand(e.X)
	case *ast.IndexExpr:
		return isPlainOperand(e.X) && isPlainOperand(e.Index)
	}
	return false
}

func withoutPairs(u *tree.Unit, n *ast.AssignStmt, drop []int) string {
	var lhs, rhs []string
	for i := range n.Lhs {
		if slices.Contains(drop, i) {
			continue
		}
		lhs = append(lhs, u.Text(n.Lhs[i]))
		rhs = append(rhs, u.Text(n.Rhs[i]))
	}
	return strings.Join(lhs, ", ") + " = " + strings.Join(rhs, ", ")
}
