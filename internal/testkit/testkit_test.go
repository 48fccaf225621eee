package testkit

import (
	"fmt"
	"go/ast"
	"runtime"
	"strings"
	"testing"

	"bugcheck/internal/check"
	"bugcheck/internal/checks"
	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

// recorder captures failures of a helper under test instead of failing the
// real test.
type recorder struct {
	testing.TB
	errs []string
}

func (r *recorder) Helper() {}

func (r *recorder) Errorf(format string, args ...any) {
	r.errs = append(r.errs, fmt.Sprintf(format, args...))
}

func (r *recorder) Fatalf(format string, args ...any) {
	r.Errorf(format, args...)
	runtime.Goexit()
}

func record(t *testing.T, fn func(tb testing.TB)) []string {
	r := &recorder{TB: t}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(r)
	}()
	<-done
	return r.errs
}

func expectFailure(t *testing.T, errs []string, want string) {
	t.Helper()
	for _, e := range errs {
		if strings.Contains(e, want) {
			return
		}
	}
	t.Fatalf("expected a failure containing %q, got %q", want, errs)
}

var twoWays = check.MustDefine(check.Info{
	Name:     "MagicNumber",
	Summary:  "Unnamed constant",
	Severity: diag.SevWarning,
}, check.OnNode(func(s *check.State, n *ast.BasicLit) check.Result {
	if n.Value != "42" {
		return check.NoMatch()
	}
	return s.Describe(n).
		Messagef("magic number %s", n.Value).
		AddFixFrom(s.Fix().WithTitle("name it").Replace(n, "answer")).
		AddFixFrom(s.Fix().WithTitle("zero it").Replace(n, "0")).
		Result()
}))

func TestCompilationHelperMarkers(t *testing.T) {
	NewCompilationHelper(t, checks.SelfAssignment).
		AddSourceLines("a.go",
			"package p",
			"",
			"func f(x, y int) {",
			"	// BUG: Diagnostic contains: x is assigned to itself",
			"	x = x",
			"	x = y",
			"	// BUG: Diagnostic contains: SelfAssignment",
			"	y = y",
			"}",
		).
		DoTest()
}

func TestCompilationHelperFailures(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name: "missing",
			lines: []string{
				"package p",
				"// BUG: Diagnostic contains: assigned",
				"var x = 1",
			},
			want: "a.go:3: expected a diagnostic containing \"assigned\"",
		},
		{
			name: "unexpected",
			lines: []string{
				"package p",
				"func f(x int) {",
				"	// BUG: Diagnostic contains: itself",
				"	x = x",
				"	x = x",
				"}",
			},
			want: "a.go:5: unexpected diagnostic SelfAssignment",
		},
		{
			name:  "no markers",
			lines: []string{"package p"},
			want:  "no diagnostic markers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := record(t, func(tb testing.TB) {
				NewCompilationHelper(tb, checks.SelfAssignment).AddSourceLines("a.go", tt.lines...).DoTest()
			})
			expectFailure(t, errs, tt.want)
		})
	}
}

func TestCompilationHelperArgs(t *testing.T) {
	NewCompilationHelper(t, checks.SelfAssignment).
		SetArgs("--check=SelfAssignment:OFF").
		AddSourceLines("a.go", "package p", "func f(x int) { x = x }").
		ExpectNoDiagnostics().
		DoTest()

	NewCompilationHelper(t, twoWays, checks.SelfAssignment).
		MatchAllDiagnostics(false).
		AddSourceLines("a.go",
			"package p",
			"func f(x int) {",
			"	// BUG: Diagnostic contains: magic number 42",
			"	x = 42; x = x",
			"}",
		).
		DoTest()
}

func TestCompilationHelperTyped(t *testing.T) {
	NewCompilationHelper(t, checks.ShouldHaveEvenArgs).
		WithTypes().
		AddSourceLines("a.go",
			"package p",
			"",
			`import "log/slog"`,
			"",
			"func f() {",
			`	slog.Info("ok", "k", 1)`,
			"	// BUG: Diagnostic contains: has no value",
			`	slog.Info("bad", "k")`,
			"}",
		).
		DoTest()
}

func TestRefactoringHelperTextMatch(t *testing.T) {
	NewRefactoringHelper(t, checks.SelfAssignment).
		AddInputLines("a.go",
			"package p",
			"",
			"func f(x, y int) {",
			"	x = x",
			"	x, y = x, 2",
			"	_ = y",
			"}",
		).
		AddOutputLines(
			"package p",
			"",
			"func f(x, y int) {",
			"	y = 2",
			"	_ = y",
			"}",
		).
		DoTest(TextMatch)
}

func TestRefactoringHelperASTMatchIgnoresLayout(t *testing.T) {
	NewRefactoringHelper(t, checks.SizeGreaterThanOrEqualsZero).
		AddInputLines("a.go",
			"package p",
			"",
			"func f(s []int) bool { return len(s) >= 0 }",
		).
		AddOutputLines(
			"package p",
			"",
			"// the fix keeps the single-line body",
			"func f(s []int) bool {",
			"	return len(s) > 0",
			"}",
		).
		DoTest(ASTMatch)
}

func TestRefactoringHelperFixChooser(t *testing.T) {
	in := []string{"package p", "", "var answer, v = 1, 42"}
	NewRefactoringHelper(t, twoWays).
		AddInputLines("a.go", in...).
		AddOutputLines("package p", "", "var answer, v = 1, answer").
		DoTest(TextMatch)
	NewRefactoringHelper(t, twoWays).
		SetFixChooser(SecondFix).
		AddInputLines("a.go", in...).
		AddOutputLines("package p", "", "var answer, v = 1, 0").
		DoTest(TextMatch)
	NewRefactoringHelper(t, twoWays).
		SetFixChooser(ThirdFix).
		AddInputLines("a.go", in...).
		ExpectUnchanged().
		DoTest(TextMatch)
}

func TestRefactoringHelperMismatch(t *testing.T) {
	errs := record(t, func(tb testing.TB) {
		NewRefactoringHelper(tb, checks.SelfAssignment).
			AddInputLines("a.go", "package p", "func f(x int) {", "	x = x", "}").
			ExpectUnchanged().
			DoTest(ASTMatch)
	})
	expectFailure(t, errs, "output does not parse as expected")
}

func TestCheckSpanInvariants(t *testing.T) {
	files := source.NewFileSet()
	src := "package p\n\n// f does things.\nfunc f[T any](x T) (r T) {\n\tif x := 1; x > 0 {\n\t}\n\treturn\n}\n"
	u, err := tree.Parse(files, files.AddVirtual("a.go", []byte(src)))
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckSpanInvariants(u); err != nil {
		t.Fatalf("CheckSpanInvariants: %v", err)
	}
}

func TestCheckDiagnosticInvariants(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("a.go", []byte("package p\n"))
	ok := diag.New("X", diag.SevError, source.Span{File: id, Start: 0, End: 7}, "m")
	ok.Fixes = []diag.Fix{{Replacements: []diag.Replacement{
		{Span: source.Span{File: id, Start: 8, End: 9}},
		{Span: source.Span{File: id, Start: 0, End: 7}},
	}}}
	if err := CheckDiagnosticInvariants(files, ok); err != nil {
		t.Fatalf("valid diagnostic rejected: %v", err)
	}

	tests := []struct {
		name string
		d    *diag.Diagnostic
	}{
		{"primary past end", diag.New("X", diag.SevError, source.Span{File: id, Start: 0, End: 99}, "m")},
		{"unknown file", diag.New("X", diag.SevError, source.Span{File: id + 1}, "m")},
		{"ascending replacements", &diag.Diagnostic{Primary: source.Span{File: id}, Fixes: []diag.Fix{{Replacements: []diag.Replacement{
			{Span: source.Span{File: id, Start: 0, End: 7}},
			{Span: source.Span{File: id, Start: 8, End: 9}},
		}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckDiagnosticInvariants(files, tt.d); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
