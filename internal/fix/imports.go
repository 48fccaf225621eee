package fix

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"slices"
	"strconv"
	"strings"

	"bugcheck/internal/tree"
)

// ImportOrder selects how a rewritten import block is laid out.
type ImportOrder uint8

const (
	// ImportOrderStdlibFirst puts standard library imports in a first group
	// and everything else in a second one.
	ImportOrderStdlibFirst ImportOrder = iota
	// ImportOrderAlphabetical puts all imports in a single sorted group.
	ImportOrderAlphabetical
)

func (o ImportOrder) String() string {
	switch o {
	case ImportOrderStdlibFirst:
		return "stdlib-first"
	case ImportOrderAlphabetical:
		return "alphabetical"
	}
	return "unknown"
}

// ParseImportOrder accepts "stdlib-first" and "alphabetical".
func ParseImportOrder(s string) (ImportOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stdlib-first", "static-first":
		return ImportOrderStdlibFirst, nil
	case "alphabetical":
		return ImportOrderAlphabetical, nil
	}
	return 0, fmt.Errorf("unknown import order %q (want stdlib-first or alphabetical)", s)
}

// importSpecPath extracts the path from "path" or "name path".
func importSpecPath(spec string) string {
	if i := strings.LastIndexByte(spec, ' '); i >= 0 {
		return spec[i+1:]
	}
	return spec
}

func importSpecName(spec string) string {
	if i := strings.LastIndexByte(spec, ' '); i >= 0 {
		return spec[:i]
	}
	return ""
}

type importLine struct {
	name string
	path string
	raw  string // original text including doc and line comments
}

func (l importLine) localName() string {
	if l.name != "" {
		return l.name
	}
	return tree.DefaultImportName(l.path)
}

func (l importLine) render() string {
	if l.raw != "" {
		return l.raw
	}
	if l.name != "" {
		return l.name + " " + strconv.Quote(l.path)
	}
	return strconv.Quote(l.path)
}

func isStdlib(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

// ImportDelta is the net import change performed on a file.
type ImportDelta struct {
	Added   []string
	Removed []string
}

// OrganizeImports adds the requested imports, drops the requested ones that
// the code no longer uses, and rewrites the import block in the given order.
// Files whose imports do not change are returned untouched.
func OrganizeImports(filename string, src []byte, adds, removes []string, order ImportOrder) ([]byte, ImportDelta, error) {
	var delta ImportDelta
	if len(adds) == 0 && len(removes) == 0 {
		return src, delta, nil
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, delta, fmt.Errorf("%w: %w", ErrUnparsable, err)
	}
	tok := fset.File(f.FileStart)
	off := func(p token.Pos) int { return tok.Offset(p) }

	lines := make([]importLine, 0, len(f.Imports)+len(adds))
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		start, end := spec.Pos(), spec.End()
		if spec.Doc != nil {
			start = spec.Doc.Pos()
		}
		if spec.Comment != nil {
			end = spec.Comment.End()
		}
		l := importLine{path: p, raw: string(src[off(start):off(end)])}
		if spec.Name != nil {
			l.name = spec.Name.Name
		}
		lines = append(lines, l)
	}

	changed := false
	for _, spec := range adds {
		want := importLine{name: importSpecName(spec), path: importSpecPath(spec)}
		if slices.ContainsFunc(lines, func(l importLine) bool { return l.path == want.path }) {
			continue
		}
		for _, l := range lines {
			if l.localName() == want.localName() && l.name != "_" && l.name != "." {
				return nil, delta, fmt.Errorf("%w: %s is already imported as %s", ErrAmbiguousImport, l.path, want.localName())
			}
		}
		lines = append(lines, want)
		delta.Added = append(delta.Added, want.path)
		changed = true
	}
	for _, p := range removes {
		if p == "C" || slices.ContainsFunc(adds, func(a string) bool { return importSpecPath(a) == p }) {
			continue
		}
		i := slices.IndexFunc(lines, func(l importLine) bool { return l.path == p })
		if i < 0 || lines[i].name == "_" || lines[i].name == "." || usesName(f, lines[i].localName()) {
			continue
		}
		lines = slices.Delete(lines, i, i+1)
		delta.Removed = append(delta.Removed, p)
		changed = true
	}
	if !changed {
		return src, delta, nil
	}

	block := renderImports(lines, order)
	var decls []*ast.GenDecl
	for _, d := range f.Decls {
		if gd, ok := d.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			decls = append(decls, gd)
		}
	}
	var out []byte
	if len(decls) == 0 {
		at := off(f.Name.End())
		out = append(out, src[:at]...)
		out = append(out, "\n\n"+block...)
		out = append(out, src[at:]...)
		return out, delta, nil
	}
	start, end := off(decls[0].Pos()), off(decls[len(decls)-1].End())
	out = append(out, src[:start]...)
	if block == "" {
		// drop blank lines left behind by the block
		for end < len(src) && (src[end] == '\n' || src[end] == '\r') {
			end++
		}
	}
	out = append(out, block...)
	out = append(out, src[end:]...)
	return out, delta, nil
}

// usesName reports whether f refers to name as a package qualifier. Files
// are parsed without object resolution, so a local variable with the same
// name also counts as a use and keeps the import.
func usesName(f *ast.File, name string) bool {
	used := false
	ast.Inspect(f, func(n ast.Node) bool {
		if used {
			return false
		}
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok && id.Name == name {
				used = true
			}
		}
		return true
	})
	return used
}

func renderImports(lines []importLine, order ImportOrder) string {
	if len(lines) == 0 {
		return ""
	}
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b importLine) int {
		if order == ImportOrderStdlibFirst {
			if sa, sb := isStdlib(a.path), isStdlib(b.path); sa != sb {
				if sa {
					return -1
				}
				return 1
			}
		}
		if c := strings.Compare(a.path, b.path); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	if len(sorted) == 1 && !strings.Contains(sorted[0].render(), "\n") && !strings.Contains(sorted[0].render(), "//") {
		return "import " + sorted[0].render()
	}
	var b strings.Builder
	b.WriteString("import (\n")
	for i, l := range sorted {
		if i > 0 && order == ImportOrderStdlibFirst && isStdlib(sorted[i-1].path) != isStdlib(l.path) {
			b.WriteByte('\n')
		}
		b.WriteByte('\t')
		b.WriteString(l.render())
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String()
}
