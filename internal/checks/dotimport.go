package checks

import (
	"go/ast"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

var DotImport = check.MustDefine(check.Info{
	Name:               "DotImport",
	Summary:            "Dot import hides where names come from",
	Severity:           diag.SevWarning,
	CustomSuppressions: []string{"bugcheck:allow-dot-import"},
	Tags:               []string{"style"},
}, check.OnNode(func(s *check.State, n *ast.ImportSpec) check.Result {
	if n.Name == nil || n.Name.Name != "." {
		return check.NoMatch()
	}
	return s.Describe(n).Messagef("dot import of %s", n.Path.Value).Result()
}))
