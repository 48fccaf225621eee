package testkit

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/go-toolsmith/astequal"
	"github.com/google/go-cmp/cmp"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/fix"
	"bugcheck/internal/tree"
)

// TestMode selects how a refactored file is compared with the expected one.
type TestMode uint8

const (
	// ASTMatch compares syntax trees, ignoring layout and comments.
	ASTMatch TestMode = iota
	// TextMatch compares the exact bytes.
	TextMatch
)

// Choosers pick one alternative per diagnostic by position.
var (
	FirstFix  = fix.ChooseNth(0)
	SecondFix = fix.ChooseNth(1)
	ThirdFix  = fix.ChooseNth(2)
	FourthFix = fix.ChooseNth(3)
)

// RefactoringHelper applies the fixes of checks to input files and compares
// the result with expected output files.
type RefactoringHelper struct {
	t             testing.TB
	checks        []*check.Check
	args          []string
	pairs         []pair
	chooser       fix.FixChooser
	order         fix.ImportOrder
	typed         bool
	allowBreaking bool
}

type pair struct {
	in, out input
}

func NewRefactoringHelper(t testing.TB, checks ...*check.Check) *RefactoringHelper {
	return &RefactoringHelper{t: t, checks: checks, chooser: FirstFix}
}

// ExpectOutput completes an input added with AddInputLines.
type ExpectOutput struct {
	h  *RefactoringHelper
	in input
}

func (h *RefactoringHelper) AddInputLines(name string, lines ...string) *ExpectOutput {
	return &ExpectOutput{h: h, in: input{name: name, text: joinLines(lines)}}
}

// AddOutputLines sets the expected content of the input after fixing.
func (e *ExpectOutput) AddOutputLines(lines ...string) *RefactoringHelper {
	e.h.pairs = append(e.h.pairs, pair{in: e.in, out: input{name: e.in.name, text: joinLines(lines)}})
	return e.h
}

// ExpectUnchanged asserts no fix touches the input.
func (e *ExpectOutput) ExpectUnchanged() *RefactoringHelper {
	e.h.pairs = append(e.h.pairs, pair{in: e.in, out: e.in})
	return e.h
}

func (h *RefactoringHelper) SetFixChooser(c fix.FixChooser) *RefactoringHelper {
	h.chooser = c
	return h
}

func (h *RefactoringHelper) SetArgs(args ...string) *RefactoringHelper {
	h.args = args
	return h
}

func (h *RefactoringHelper) SetImportOrder(order fix.ImportOrder) *RefactoringHelper {
	h.order = order
	return h
}

// WithTypes type-checks inputs before scanning and outputs after fixing.
func (h *RefactoringHelper) WithTypes() *RefactoringHelper {
	h.typed = true
	return h
}

// AllowBreakingChanges accepts outputs that no longer compile.
func (h *RefactoringHelper) AllowBreakingChanges() *RefactoringHelper {
	h.allowBreaking = true
	return h
}

// DoTest runs every input through the checks and compares the outputs.
func (h *RefactoringHelper) DoTest(mode TestMode) {
	t := h.t
	t.Helper()
	if len(h.pairs) == 0 {
		t.Fatalf("no inputs added")
	}
	sc := supplier(t, h.checks, h.args).Scanner()
	l := newLoader(h.typed)
	for _, p := range h.pairs {
		u, err := l.load(p.in)
		if err != nil {
			t.Fatalf("%s: %v", p.in.name, err)
		}
		var fixes []diag.Fix
		_, err = sc.Scan(context.Background(), u, diag.ReporterFunc(func(d *diag.Diagnostic) {
			if d.Internal {
				t.Errorf("%s: check failed: %s", p.in.name, d.Message)
				return
			}
			if len(d.Fixes) == 0 {
				return
			}
			if i := h.chooser(d.Fixes); i >= 0 && i < len(d.Fixes) {
				fixes = append(fixes, d.Fixes[i])
			}
		}))
		if err != nil {
			t.Fatalf("%s: scan: %v", p.in.name, err)
		}
		res, err := fix.ApplyToSource(p.in.name, u.Source().Content, fixes, h.order)
		if err != nil {
			t.Fatalf("%s: apply fixes: %v", p.in.name, err)
		}
		got := string(res.Text)
		if !h.allowBreaking {
			if err := compiles(p.in.name, got, h.typed, l); err != nil {
				t.Errorf("%s: refactored output does not compile: %v\n%s", p.in.name, err, got)
				continue
			}
		}
		h.verify(mode, p.out, got)
	}
}

func (h *RefactoringHelper) verify(mode TestMode, want input, got string) {
	t := h.t
	t.Helper()
	if mode == TextMatch {
		if diff := cmp.Diff(want.text, got); diff != "" {
			t.Errorf("%s: output mismatch (-want +got):\n%s", want.name, diff)
		}
		return
	}
	fset := token.NewFileSet()
	wf, err := parser.ParseFile(fset, want.name, want.text, parser.SkipObjectResolution)
	if err != nil {
		t.Fatalf("%s: expected output does not parse: %v", want.name, err)
	}
	gf, err := parser.ParseFile(fset, want.name, got, parser.SkipObjectResolution)
	if err != nil {
		t.Errorf("%s: output does not parse: %v\n%s", want.name, err, got)
		return
	}
	if !sameFile(wf, gf) {
		if diff := cmp.Diff(want.text, got); diff != "" {
			t.Errorf("%s: output does not parse as expected (-want +got):\n%s", want.name, diff)
		}
	}
}

func sameFile(a, b *ast.File) bool {
	if a.Name.Name != b.Name.Name || len(a.Decls) != len(b.Decls) {
		return false
	}
	for i := range a.Decls {
		if !astequal.Decl(a.Decls[i], b.Decls[i]) {
			return false
		}
	}
	return true
}

// compiles parses text and, for typed runs, type-checks it with the
// loader's importer.
func compiles(name, text string, typed bool, l *loader) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, name, text, parser.ParseComments)
	if err != nil || !typed {
		return err
	}
	conf := types.Config{Importer: l.imp}
	_, err = conf.Check(f.Name.Name, fset, []*ast.File{f}, tree.NewInfo())
	return err
}
