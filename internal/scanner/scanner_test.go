package scanner

import (
	"context"
	"errors"
	"go/ast"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

const scanSrc = `package p

func f(x int) {
	x = x
	if x > 0 {
	}
	//bugcheck:ignore SelfAssign
	x = x
}

//bugcheck:ignore all
func g(y int) {
	y = y
	if y > 0 {
	}
}

//bugcheck:custom-quiet
func h(z int) {
	z = z
}
`

func parse(t *testing.T, text string) *tree.Unit {
	t.Helper()
	files := source.NewFileSet()
	u, err := tree.Parse(files, files.AddVirtual("p.go", []byte(text)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return u
}

func selfAssignCheck(info check.Info) *check.Check {
	return check.MustDefine(info, check.OnNode(func(s *check.State, n *ast.AssignStmt) check.Result {
		if n.Tok != token.ASSIGN || len(n.Lhs) != 1 || s.Text(n.Lhs[0]) != s.Text(n.Rhs[0]) {
			return check.NoMatch()
		}
		return s.Describe(n).Messagef("%s assigned to itself", s.Text(n.Lhs[0])).Result()
	}))
}

func emptyIfCheck(info check.Info) *check.Check {
	return check.MustDefine(info, check.OnNode(func(s *check.State, n *ast.IfStmt) check.Result {
		if len(n.Body.List) != 0 || n.Else != nil {
			return check.NoMatch()
		}
		return s.Describe(n).Result()
	}))
}

type collected struct {
	Check    string
	Severity string
	Line     int
	Internal bool
}

func scan(t *testing.T, s *Supplier, u *tree.Unit, opts ...Option) ([]collected, ScanStats) {
	t.Helper()
	var out []collected
	stats, err := s.Scanner(opts...).Scan(context.Background(), u, diag.ReporterFunc(func(d *diag.Diagnostic) {
		start, _ := u.Files.Resolve(d.Primary)
		out = append(out, collected{Check: d.Check, Severity: d.Severity.String(), Line: int(start.Line), Internal: d.Internal})
	}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return out, stats
}

func TestScanDispatchAndSuppression(t *testing.T) {
	custom := check.Info{
		Name:               "CustomSelfAssign",
		Severity:           diag.SevWarning,
		Suppress:           check.CustomSuppressionOnly,
		CustomSuppressions: []string{"bugcheck:custom-quiet"},
	}
	s, err := FromChecks(
		selfAssignCheck(selfAssignment),
		emptyIfCheck(emptyIf),
		selfAssignCheck(custom),
	)
	if err != nil {
		t.Fatal(err)
	}
	got, stats := scan(t, s, parse(t, scanSrc))

	want := []collected{
		{Check: "CustomSelfAssign", Severity: "WARNING", Line: 4},
		{Check: "SelfAssignment", Severity: "ERROR", Line: 4},
		{Check: "EmptyIf", Severity: "WARNING", Line: 5},
		{Check: "CustomSelfAssign", Severity: "WARNING", Line: 8},
		// ignore-all does not reach a custom-only check
		{Check: "CustomSelfAssign", Severity: "WARNING", Line: 13},
		{Check: "SelfAssignment", Severity: "ERROR", Line: 20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
	if stats.Matches != len(want) || stats.Failures != 0 || stats.Suppressed == 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestScanUsesEffectiveSeverity(t *testing.T) {
	s, err := FromChecks(selfAssignCheck(selfAssignment), emptyIfCheck(emptyIf))
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.ApplyOverrides(overrides(t, "--check=SelfAssignment:WARN", "--check=EmptyIf:OFF"))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := scan(t, s, parse(t, "package p\nfunc f(x int) {\n\tx = x\n\tif x > 0 {\n\t}\n}\n"))
	want := []collected{{Check: "SelfAssignment", Severity: "WARNING", Line: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
}

func TestUnsuppressibleIgnoresDirectives(t *testing.T) {
	strict := selfAssignCheck(check.Info{Name: "Strict", Severity: diag.SevError, Suppress: check.Unsuppressible})
	s, err := FromChecks(strict)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := scan(t, s, parse(t, "//bugcheck:ignore all\npackage p\n\n//bugcheck:ignore Strict\nfunc f(x int) {\n\tx = x\n}\n"))
	if len(got) != 1 || got[0].Check != "Strict" {
		t.Fatalf("got %+v", got)
	}
}

func TestFailingCheckIsIsolated(t *testing.T) {
	boom := check.MustDefine(check.Info{Name: "Boom", Severity: diag.SevWarning},
		check.OnNode(func(s *check.State, n *ast.AssignStmt) check.Result {
			panic("nil map")
		}))
	broken := check.MustDefine(check.Info{Name: "Broken", Severity: diag.SevWarning},
		check.OnNode(func(s *check.State, n *ast.IfStmt) check.Result {
			return check.Failed(errors.New("no type information"))
		}))
	s, err := FromChecks(boom, broken, emptyIfCheck(emptyIf), selfAssignCheck(selfAssignment))
	if err != nil {
		t.Fatal(err)
	}

	var ds []*diag.Diagnostic
	stats, err := s.Scanner().Scan(context.Background(), parse(t, "package p\nfunc f(x int) {\n\tx = x\n\tif x > 0 {\n\t}\n}\n"),
		diag.ReporterFunc(func(d *diag.Diagnostic) { ds = append(ds, d) }))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failures != 2 || stats.Matches != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	var internal []string
	for _, d := range ds {
		if d.Internal {
			if d.Severity != diag.SevError {
				t.Fatalf("internal diagnostic at %v", d.Severity)
			}
			internal = append(internal, d.Check)
			if !strings.Contains(d.Message, "internal error") {
				t.Fatalf("message %q", d.Message)
			}
		}
	}
	if diff := cmp.Diff([]string{"Boom", "Broken"}, internal); diff != "" {
		t.Fatalf("internal (-want +got):\n%s", diff)
	}
}

func TestGeneratedCodeWarningsDropped(t *testing.T) {
	src := "// Code generated by gen. DO NOT EDIT.\n\npackage p\nfunc f(x int) {\n\tx = x\n\tif x > 0 {\n\t}\n}\n"
	s, err := FromChecks(selfAssignCheck(selfAssignment), emptyIfCheck(emptyIf))
	if err != nil {
		t.Fatal(err)
	}
	got, stats := scan(t, s, parse(t, src), SkipWarningsInGeneratedCode(true))
	if len(got) != 1 || got[0].Check != "SelfAssignment" || stats.Dropped != 1 {
		t.Fatalf("got %+v, stats %+v", got, stats)
	}
	got, _ = scan(t, s, parse(t, src))
	if len(got) != 2 {
		t.Fatalf("without the option got %+v", got)
	}
}

func TestScanCancelled(t *testing.T) {
	s, err := FromChecks(selfAssignCheck(selfAssignment))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := 0
	_, err = s.Scanner().Scan(ctx, parse(t, scanSrc), diag.ReporterFunc(func(*diag.Diagnostic) { n++ }))
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("err = %v, reported %d", err, n)
	}
}

func TestScannerSkipsDisabledChecks(t *testing.T) {
	s, err := FromChecks(selfAssignCheck(selfAssignment), emptyIfCheck(emptyIf))
	if err != nil {
		t.Fatal(err)
	}
	sc := s.Filter(func(i check.Info) bool { return i.Name == "EmptyIf" }).Scanner()
	if cs := sc.Checks(); len(cs) != 1 || cs[0].Name() != "EmptyIf" {
		t.Fatalf("checks = %v", cs)
	}
}
