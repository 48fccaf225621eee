package checks

import (
	"go/ast"
	"go/types"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

var ShouldHaveEvenArgs = check.MustDefine(check.Info{
	Name:     "ShouldHaveEvenArgs",
	Summary:  "Structured log call has a key without a value",
	Explanation: "log/slog reads its trailing arguments as key-value pairs. " +
		"A key with no value is logged as !BADKEY and the pairs after it shift.",
	Link:     "https://pkg.go.dev/log/slog#hdr-Attrs_and_Values",
	Severity: diag.SevError,
	Suppress: check.Unsuppressible,
	Tags:     []string{"likely-bug"},
}, check.OnNode(matchSlogArgs))

const slogPath = "log/slog"

// slogPairsFrom is the index of the first key-value argument per function.
var slogPairsFrom = map[string]int{
	"Debug":        1,
	"Info":         1,
	"Warn":         1,
	"Error":        1,
	"DebugContext": 2,
	"InfoContext":  2,
	"WarnContext":  2,
	"ErrorContext": 2,
	"Log":          3,
	"With":         0,
	"Group":        1,
}

func matchSlogArgs(s *check.State, n *ast.CallExpr) check.Result {
	if !s.Unit.Typed() || n.Ellipsis.IsValid() {
		return check.NoMatch()
	}
	var name string
	if path, fn, ok := packageFunc(s.Unit, n); ok {
		if path != slogPath {
			return check.NoMatch()
		}
		name = fn
	} else if m, ok := method(s.Unit, n, slogPath, "Logger"); ok {
		name = m
	} else {
		return check.NoMatch()
	}
	from, ok := slogPairsFrom[name]
	if !ok || from > len(n.Args) {
		return check.NoMatch()
	}

	args := n.Args[from:]
	for i := 0; i < len(args); {
		t := s.TypeOf(args[i])
		if isNamed(t, slogPath, "Attr") {
			i++
			continue
		}
		if i == len(args)-1 && isString(t) {
			return s.Describe(args[i]).
				Messagef("key %s has no value", s.Text(args[i])).
				Result()
		}
		i += 2
	}
	return check.NoMatch()
}

func isString(t types.Type) bool {
	if t == nil {
		return false
	}
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsString != 0
}
