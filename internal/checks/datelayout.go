package checks

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

var MisusedDateLayout = check.MustDefine(check.Info{
	Name:    "MisusedDateLayout",
	Summary: "Date layout uses pattern letters instead of the reference time",
	Explanation: "Layouts in package time are written with the reference time Mon Jan 2 15:04:05 MST 2006. " +
		"Letters such as yyyy or MM are copied verbatim instead of being replaced.",
	Link:     "https://pkg.go.dev/time#pkg-constants",
	Severity: diag.SevError,
	Tags:     []string{"likely-bug"},
}, check.OnNode(matchDateLayout))

// layoutRuns maps pattern-letter runs to the reference-time element.
var layoutRuns = map[string]string{
	"yyyy": "2006",
	"yy":   "06",
	"MMMM": "January",
	"MMM":  "Jan",
	"MM":   "01",
	"dd":   "02",
	"EEEE": "Monday",
	"EEE":  "Mon",
	"HH":   "15",
	"hh":   "03",
	"mm":   "04",
	"ss":   "05",
	"SSS":  "000",
}

func matchDateLayout(s *check.State, n *ast.CallExpr) check.Result {
	arg := layoutArg(s, n)
	if arg < 0 || arg >= len(n.Args) {
		return check.NoMatch()
	}
	lit, ok := ast.Unparen(n.Args[arg]).(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return check.NoMatch()
	}
	layout, err := strconv.Unquote(lit.Value)
	if err != nil {
		return check.NoMatch()
	}
	fixed, ok := translateLayout(layout, minRuns(s))
	if !ok {
		return check.NoMatch()
	}

	fb := s.Fix().WithTitle("Use the reference time").Preferred()
	fb.Replace(lit, strconv.Quote(fixed))
	return s.Describe(lit).
		Messagef("layout %s is not written with the reference time; did you mean %q?", lit.Value, fixed).
		AddFixFrom(fb).
		Result()
}

// MinRunsFlag overrides how many pattern-letter runs a layout needs before
// it is reported.
const MinRunsFlag = "MisusedDateLayout:MinRuns"

func minRuns(s *check.State) int {
	if v, ok := s.Flag(MinRunsFlag); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 2
}

// layoutArg returns the index of the layout argument, or -1.
func layoutArg(s *check.State, n *ast.CallExpr) int {
	if path, name, ok := packageFunc(s.Unit, n); ok && path == "time" {
		switch name {
		case "Parse", "ParseInLocation":
			return 0
		}
		return -1
	}
	if name, ok := method(s.Unit, n, "time", "Time"); ok {
		switch name {
		case "Format":
			return 0
		case "AppendFormat":
			return 1
		}
	}
	return -1
}

// translateLayout rewrites the known letter runs of layout. It reports false
// unless at least min runs were recognised, which keeps words inside valid
// layouts alone.
func translateLayout(layout string, min int) (string, bool) {
	var b strings.Builder
	found := 0
	for i := 0; i < len(layout); {
		j := i + 1
		for j < len(layout) && layout[j] == layout[i] {
			j++
		}
		run := layout[i:j]
		if to, ok := layoutRuns[run]; ok {
			b.WriteString(to)
			found++
		} else {
			b.WriteString(run)
		}
		i = j
	}
	return b.String(), found >= min
}
