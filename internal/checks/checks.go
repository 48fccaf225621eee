// Package checks holds the built-in checks.
package checks

import (
	"go/ast"
	"go/types"
	"slices"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/scanner"
	"bugcheck/internal/tree"
)

// All lists every built-in check, disabled-by-default ones included.
func All() []*check.Check {
	return []*check.Check{
		SelfAssignment,
		SizeGreaterThanOrEqualsZero,
		MisusedDateLayout,
		ShouldHaveEvenArgs,
		DotImport,
		EmptyIf,
	}
}

// disabledByDefault names the checks that run only when enabled explicitly.
var disabledByDefault = []string{
	EmptyIf.Name(),
}

// EnabledErrors are the checks on by default that report errors.
func EnabledErrors() []*check.Check {
	return pick(func(c *check.Check) bool {
		return !isDisabledByDefault(c) && c.Info().Severity == diag.SevError
	})
}

// EnabledWarnings are the checks on by default that report below error.
func EnabledWarnings() []*check.Check {
	return pick(func(c *check.Check) bool {
		return !isDisabledByDefault(c) && c.Info().Severity < diag.SevError
	})
}

// DisabledChecks are known but off unless an override enables them.
func DisabledChecks() []*check.Check {
	return pick(isDisabledByDefault)
}

func isDisabledByDefault(c *check.Check) bool {
	return slices.Contains(disabledByDefault, c.Name())
}

func pick(keep func(*check.Check) bool) []*check.Check {
	var out []*check.Check
	for _, c := range All() {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Defaults is the supplier of all built-in checks with the
// disabled-by-default ones switched off.
func Defaults() *scanner.Supplier {
	s, err := scanner.FromChecks(All()...)
	if err != nil {
		panic(err)
	}
	return s.Filter(func(i check.Info) bool {
		return !slices.Contains(disabledByDefault, i.Name)
	})
}

// ErrorChecks is the supplier of the enabled error checks only.
func ErrorChecks() *scanner.Supplier {
	s, err := scanner.FromChecks(EnabledErrors()...)
	if err != nil {
		panic(err)
	}
	return s
}

// isBuiltin reports whether fun names one of the predeclared functions.
// Untyped units trust the name.
func isBuiltin(u *tree.Unit, fun ast.Expr, names ...string) bool {
	id, ok := ast.Unparen(fun).(*ast.Ident)
	if !ok || !slices.Contains(names, id.Name) {
		return false
	}
	if !u.Typed() {
		return true
	}
	_, ok = u.ObjectOf(id).(*types.Builtin)
	return ok
}

// isNamed reports whether t, or the type it points to, is path.name.
func isNamed(t types.Type, path, name string) bool {
	if t == nil {
		return false
	}
	if p, ok := types.Unalias(t).(*types.Pointer); ok {
		t = p.Elem()
	}
	n, ok := types.Unalias(t).(*types.Named)
	if !ok {
		return false
	}
	obj := n.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == path && obj.Name() == name
}

// packageFunc resolves a call like pkg.F to its import path and name.
func packageFunc(u *tree.Unit, call *ast.CallExpr) (path, name string, ok bool) {
	sel, ok := ast.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok {
		return "", "", false
	}
	path, ok = u.PackagePath(sel.X)
	return path, sel.Sel.Name, ok
}

// method resolves a call like x.M on a value of type path.typ.
func method(u *tree.Unit, call *ast.CallExpr, path, typ string) (string, bool) {
	sel, ok := ast.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok || !u.Typed() {
		return "", false
	}
	if s := u.Info.Selections[sel]; s == nil || s.Kind() != types.MethodVal {
		return "", false
	}
	if !isNamed(u.TypeOf(sel.X), path, typ) {
		return "", false
	}
	return sel.Sel.Name, true
}
