package tree

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"

	"bugcheck/internal/source"
)

var (
	// ErrNoPosition is returned for nodes that carry no source position.
	ErrNoPosition = errors.New("node has no source position")
	// ErrNoEndPosition is returned when a node's end offset is unknown or
	// lies outside its file. Edits against such nodes are refused.
	ErrNoEndPosition = errors.New("node has no end position")
)

// Unit is one compilation unit: a parsed file, its bytes, and the optional
// type information the front end produced for it.
type Unit struct {
	Files  *source.FileSet
	FileID source.FileID
	Fset   *token.FileSet
	File   *ast.File
	Pkg    *types.Package
	Info   *types.Info

	tok       *token.File
	generated bool
	synthetic map[ast.Node]struct{}
	byName    map[string]string // local import name -> path
	byPath    map[string]string // path -> local import name
}

// NewUnit wraps an already parsed file. The file must have been parsed from
// the content stored under id so that offsets agree.
func NewUnit(files *source.FileSet, id source.FileID, fset *token.FileSet, f *ast.File, pkg *types.Package, info *types.Info) (*Unit, error) {
	tok := fset.File(f.FileStart)
	if tok == nil {
		tok = fset.File(f.Package)
	}
	if tok == nil {
		return nil, fmt.Errorf("%s: %w", files.Get(id).Path, ErrNoPosition)
	}
	if tok.Size() != len(files.Get(id).Content) {
		return nil, fmt.Errorf("%s: parsed size %d does not match source size %d",
			files.Get(id).Path, tok.Size(), len(files.Get(id).Content))
	}
	u := &Unit{
		Files:     files,
		FileID:    id,
		Fset:      fset,
		File:      f,
		Pkg:       pkg,
		Info:      info,
		tok:       tok,
		generated: ast.IsGenerated(f),
	}
	u.indexImports()
	return u, nil
}

// Parse parses the stored file id into an untyped Unit.
func Parse(files *source.FileSet, id source.FileID) (*Unit, error) {
	src := files.Get(id)
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, src.Path, src.Content, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	return NewUnit(files, id, fset, f, nil, nil)
}

// Check parses and type-checks a single-file package. Type errors are
// tolerated: whatever the checker managed to record is kept.
func Check(files *source.FileSet, id source.FileID, imp types.Importer) (*Unit, error) {
	src := files.Get(id)
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, src.Path, src.Content, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	info := NewInfo()
	conf := types.Config{Importer: imp, Error: func(error) {}}
	pkg, _ := conf.Check(f.Name.Name, fset, []*ast.File{f}, info)
	return NewUnit(files, id, fset, f, pkg, info)
}

// NewInfo allocates a types.Info with every map the analysis reads.
func NewInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
}

func (u *Unit) indexImports() {
	u.byName = make(map[string]string, len(u.File.Imports))
	u.byPath = make(map[string]string, len(u.File.Imports))
	for _, spec := range u.File.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		name := DefaultImportName(p)
		if spec.Name != nil {
			name = spec.Name.Name
		} else if u.Info != nil {
			if pn, ok := u.Info.Implicits[spec].(*types.PkgName); ok {
				name = pn.Name()
			}
		}
		u.byName[name] = p
		if _, dup := u.byPath[p]; !dup {
			u.byPath[p] = name
		}
	}
}

// DefaultImportName guesses the package name of an import path the way
// goimports does for paths without a local name.
func DefaultImportName(importPath string) string {
	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' {
		if _, err := strconv.Atoi(base[1:]); err == nil {
			if dir := path.Dir(importPath); dir != "." {
				base = path.Base(dir)
			}
		}
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.IndexFunc(base, notIdentifier); i >= 0 {
		base = base[:i]
	}
	return base
}

func notIdentifier(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r >= utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// Source returns the file record the unit was parsed from.
func (u *Unit) Source() *source.File {
	return u.Files.Get(u.FileID)
}

// Name is the file path used in messages.
func (u *Unit) Name() string {
	return u.Source().Path
}

// IsGenerated reports whether the file carries a "Code generated ... DO NOT EDIT." header.
func (u *Unit) IsGenerated() bool {
	return u.generated
}

// MarkSynthetic records a node the front end produced without source text.
func (u *Unit) MarkSynthetic(n ast.Node) {
	if u.synthetic == nil {
		u.synthetic = make(map[ast.Node]struct{})
	}
	u.synthetic[n] = struct{}{}
}

// IsSynthetic reports whether n has no text of its own in this unit.
func (u *Unit) IsSynthetic(n ast.Node) bool {
	if n == nil {
		return true
	}
	if _, ok := u.synthetic[n]; ok {
		return true
	}
	return !u.contains(n.Pos())
}

func (u *Unit) contains(p token.Pos) bool {
	return p.IsValid() && int(p) >= u.tok.Base() && int(p) <= u.tok.Base()+u.tok.Size()
}

// Offset converts a position of this unit into a byte offset.
func (u *Unit) Offset(p token.Pos) (uint32, error) {
	if !u.contains(p) {
		return 0, ErrNoPosition
	}
	return safecast.Conv[uint32](int(p) - u.tok.Base())
}

// Pos converts a byte offset back into a position.
func (u *Unit) Pos(off uint32) token.Pos {
	return u.tok.Pos(int(off))
}

// Span returns the byte range covered by n.
func (u *Unit) Span(n ast.Node) (source.Span, error) {
	start, err := u.Offset(n.Pos())
	if err != nil {
		return source.Span{}, err
	}
	end, err := u.Offset(n.End())
	if err != nil || end < start {
		return source.Span{}, ErrNoEndPosition
	}
	return source.Span{File: u.FileID, Start: start, End: end}, nil
}

// Text returns the original source text of n, or "" for synthetic nodes.
func (u *Unit) Text(n ast.Node) string {
	sp, err := u.Span(n)
	if err != nil {
		return ""
	}
	return string(u.Source().Text(sp))
}

// Position resolves a token position for diagnostics.
func (u *Unit) Position(p token.Pos) token.Position {
	return u.Fset.Position(p)
}

// TypeOf returns the type of e, or nil when the unit is untyped.
func (u *Unit) TypeOf(e ast.Expr) types.Type {
	if u.Info == nil {
		return nil
	}
	return u.Info.TypeOf(e)
}

// ObjectOf returns the object id denotes, or nil when unknown.
func (u *Unit) ObjectOf(id *ast.Ident) types.Object {
	if u.Info == nil {
		return nil
	}
	return u.Info.ObjectOf(id)
}

// Typed reports whether type information is available.
func (u *Unit) Typed() bool {
	return u.Info != nil
}

// ImportPath returns the path imported under the local name.
func (u *Unit) ImportPath(name string) (string, bool) {
	p, ok := u.byName[name]
	return p, ok
}

// ImportName returns the local name under which importPath is imported.
func (u *Unit) ImportName(importPath string) (string, bool) {
	n, ok := u.byPath[importPath]
	return n, ok
}

// PackagePath resolves the import path of a package-qualified selector base
// like the "strings" in strings.Index. Local variables shadowing an import
// are recognised only in typed units.
func (u *Unit) PackagePath(x ast.Expr) (string, bool) {
	id, ok := x.(*ast.Ident)
	if !ok {
		return "", false
	}
	if u.Info != nil {
		if pn, ok := u.Info.Uses[id].(*types.PkgName); ok {
			return pn.Imported().Path(), true
		}
		if u.Info.Uses[id] != nil {
			return "", false
		}
	}
	return u.ImportPath(id.Name)
}
