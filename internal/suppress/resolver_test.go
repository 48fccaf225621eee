package suppress

import (
	"go/ast"
	"go/importer"
	"testing"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

const src = `//bugcheck:ignore FileWide
package p

//bugcheck:ignore SelfAssignment,EmptyIf -- legacy code
func quiet() {
	x := 1
	x = x
}

func loud() {
	y := 2
	y = y //bugcheck:ignore SA
	//bugcheck:allow-dot-import
	z := 3
	_ = z
	// bugcheck:ignore Prose
	w := 4
	_ = w
}

//bugcheck:ignore all
var everything = 1
`

var (
	selfAssign = check.Info{Name: "SelfAssignment", AltNames: []string{"SA"}, Severity: diag.SevError}
	emptyIf    = check.Info{Name: "EmptyIf", Severity: diag.SevWarning}
	dotImport  = check.Info{Name: "DotImport", CustomSuppressions: []string{"bugcheck:allow-dot-import"}}
	customOnly = check.Info{Name: "Custom", Suppress: check.CustomSuppressionOnly, CustomSuppressions: []string{"bugcheck:allow-dot-import"}}
	fatal      = check.Info{Name: "ShouldHaveEvenArgs", Suppress: check.Unsuppressible}
	fileWide   = check.Info{Name: "FileWide"}
	prose      = check.Info{Name: "Prose"}
)

func setup(t *testing.T, text string) (*tree.Unit, *Resolver) {
	t.Helper()
	files := source.NewFileSet()
	u, err := tree.Parse(files, files.AddVirtual("p.go", []byte(text)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return u, NewResolver(u)
}

func funcStmts(u *tree.Unit, name string) []ast.Stmt {
	for _, d := range u.File.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Name.Name == name {
			return fd.Body.List
		}
	}
	return nil
}

func TestIsSuppressed(t *testing.T) {
	u, r := setup(t, src)
	quiet := funcStmts(u, "quiet")
	loud := funcStmts(u, "loud")
	everything := u.File.Decls[len(u.File.Decls)-1]

	tests := []struct {
		name string
		node ast.Node
		info check.Info
		want bool
	}{
		{"declaration directive covers body", quiet[1], selfAssign, true},
		{"second name in list", quiet[0], emptyIf, true},
		{"not listed", quiet[1], dotImport, false},
		{"trailing comment by alternate name", loud[1], selfAssign, true},
		{"trailing comment does not leak", loud[0], selfAssign, false},
		{"custom directive", loud[2], dotImport, true},
		{"custom only honours custom directive", loud[2], customOnly, true},
		{"custom only ignores ignore all", everything, customOnly, false},
		{"prose comment is not a directive", loud[4], prose, false},
		{"ignore all", everything, emptyIf, true},
		{"file level directive", loud[4], fileWide, true},
		{"unsuppressible", everything, fatal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsSuppressed(u.PathTo(tt.node), tt.info); got != tt.want {
				t.Fatalf("IsSuppressed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolverWithoutDirectives(t *testing.T) {
	u, r := setup(t, "package p\n\n// just prose\nfunc f() {}\n")
	if r.Active() {
		t.Fatalf("resolver active without directives")
	}
	if r.Directives(u.File.Decls[0]) != nil || r.cache != nil {
		t.Fatalf("inactive resolver computed comment map")
	}
}

func TestIsSymbolSuppressed(t *testing.T) {
	files := source.NewFileSet()
	u, err := tree.Check(files, files.AddVirtual("p.go", []byte(src)), importer.Default())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	r := NewResolver(u)
	obj := u.Pkg.Scope().Lookup("quiet")
	if obj == nil {
		t.Fatalf("quiet not declared")
	}
	if !r.IsSymbolSuppressed(obj, selfAssign) {
		t.Fatalf("symbol declared under directive not suppressed")
	}
	if r.IsSymbolSuppressed(u.Pkg.Scope().Lookup("loud"), selfAssign) {
		t.Fatalf("loud must not be suppressed for SelfAssignment")
	}
}

func TestSetNames(t *testing.T) {
	var s Set
	s.parseDirective("//bugcheck:ignore b, A all -- why")
	got := s.Names()
	want := []string{"A", "all", "b"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names = %v, want %v", got, want)
		}
	}
}
