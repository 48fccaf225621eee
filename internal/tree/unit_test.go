package tree

import (
	"errors"
	"go/ast"
	"go/importer"
	"go/token"
	"testing"

	"bugcheck/internal/source"
)

const unitSrc = `package p

import (
	"strings"
	str "strconv"
)

func f(s string) int {
	n, _ := str.Atoi(s)
	if strings.HasPrefix(s, "x") {
		return n
	}
	return 0
}
`

func parseSrc(t *testing.T, src string) *Unit {
	t.Helper()
	files := source.NewFileSet()
	u, err := Parse(files, files.AddVirtual("p.go", []byte(src)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return u
}

func TestKindOfCoversAllNames(t *testing.T) {
	for k := Kind(1); k < numKinds; k++ {
		if got, ok := ParseKind(k.String()); !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if KindOf(&ast.BinaryExpr{}) != KindBinaryExpr || !KindBinaryExpr.IsExpr() {
		t.Fatalf("BinaryExpr kind mismatch")
	}
	if !KindIfStmt.IsStmt() || KindIfStmt.IsExpr() || !KindFuncDecl.IsDecl() {
		t.Fatalf("kind classes mismatch")
	}
	if KindOf(nil) != KindInvalid {
		t.Fatalf("nil node must be invalid")
	}
}

func TestUnitSpanAndText(t *testing.T) {
	u := parseSrc(t, unitSrc)
	fn := u.File.Decls[1].(*ast.FuncDecl)
	ifs := fn.Body.List[1].(*ast.IfStmt)

	if got := u.Text(ifs.Cond); got != `strings.HasPrefix(s, "x")` {
		t.Fatalf("Text = %q", got)
	}
	sp, err := u.Span(ifs.Cond)
	if err != nil {
		t.Fatalf("Span: %v", err)
	}
	if sp.Len() != uint32(len(`strings.HasPrefix(s, "x")`)) {
		t.Fatalf("span length %d", sp.Len())
	}
	if u.Pos(sp.Start) != ifs.Cond.Pos() {
		t.Fatalf("Pos does not invert Offset")
	}
}

func TestUnitSyntheticNodes(t *testing.T) {
	u := parseSrc(t, unitSrc)
	fake := &ast.Ident{Name: "init"}
	if !u.IsSynthetic(fake) {
		t.Fatalf("node without position must be synthetic")
	}
	if _, err := u.Span(fake); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("Span err = %v", err)
	}

	fn := u.File.Decls[1].(*ast.FuncDecl)
	if u.IsSynthetic(fn) {
		t.Fatalf("parsed decl reported synthetic")
	}
	u.MarkSynthetic(fn)
	if !u.IsSynthetic(fn) {
		t.Fatalf("marked decl not synthetic")
	}

	broken := &ast.BlockStmt{Lbrace: fn.Body.Rbrace, Rbrace: token.Pos(1 << 30)}
	if _, err := u.Span(broken); !errors.Is(err, ErrNoEndPosition) {
		t.Fatalf("Span err = %v, want ErrNoEndPosition", err)
	}
}

func TestUnitImports(t *testing.T) {
	u := parseSrc(t, unitSrc)
	if p, ok := u.ImportPath("str"); !ok || p != "strconv" {
		t.Fatalf("ImportPath(str) = %q, %v", p, ok)
	}
	if n, ok := u.ImportName("strings"); !ok || n != "strings" {
		t.Fatalf("ImportName(strings) = %q, %v", n, ok)
	}
	if _, ok := u.ImportName("os"); ok {
		t.Fatalf("os is not imported")
	}
}

func TestDefaultImportName(t *testing.T) {
	tests := map[string]string{
		"strings":                          "strings",
		"github.com/pmezard/go-difflib":    "difflib",
		"github.com/bmatcuk/doublestar/v4": "doublestar",
		"gopkg.in/yaml.v3":                 "yaml",
	}
	for in, want := range tests {
		if got := DefaultImportName(in); got != want {
			t.Errorf("DefaultImportName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckRecordsTypes(t *testing.T) {
	files := source.NewFileSet()
	u, err := Check(files, files.AddVirtual("p.go", []byte(unitSrc)), importer.Default())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	fn := u.File.Decls[1].(*ast.FuncDecl)
	ret := fn.Body.List[2].(*ast.ReturnStmt)
	if typ := u.TypeOf(ret.Results[0]); typ == nil || typ.String() != "untyped int" && typ.String() != "int" {
		t.Fatalf("TypeOf(0) = %v", typ)
	}
	call := fn.Body.List[0].(*ast.AssignStmt).Rhs[0].(*ast.CallExpr)
	sel := call.Fun.(*ast.SelectorExpr)
	if p, ok := u.PackagePath(sel.X); !ok || p != "strconv" {
		t.Fatalf("PackagePath = %q, %v", p, ok)
	}
}

func TestPathTo(t *testing.T) {
	u := parseSrc(t, unitSrc)
	fn := u.File.Decls[1].(*ast.FuncDecl)
	ifs := fn.Body.List[1].(*ast.IfStmt)
	p := u.PathTo(ifs.Cond)
	if p.Leaf() != ifs.Cond {
		t.Fatalf("leaf = %T", p.Leaf())
	}
	if p.Parent() != ifs {
		t.Fatalf("parent = %T", p.Parent())
	}
	if p.Enclosing(KindFuncDecl) != fn {
		t.Fatalf("enclosing func mismatch")
	}
	if _, ok := p[0].(*ast.File); !ok {
		t.Fatalf("root = %T", p[0])
	}
}
