package fix

import (
	"fmt"
	"go/ast"
	"go/token"
	"slices"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

// Builder accumulates the edits of one fix against one unit. Errors are
// sticky: the first failed edit is returned by Build and nothing is produced.
type Builder struct {
	unit      *tree.Unit
	title     string
	id        string
	app       diag.Applicability
	preferred bool
	reps      []diag.Replacement
	adds      []string
	removes   []string
	err       error
}

// NewBuilder starts an empty fix for u.
func NewBuilder(u *tree.Unit) *Builder {
	return &Builder{unit: u}
}

func (b *Builder) WithTitle(title string) *Builder {
	b.title = title
	return b
}

func (b *Builder) WithID(id string) *Builder {
	b.id = id
	return b
}

func (b *Builder) WithApplicability(app diag.Applicability) *Builder {
	b.app = app
	return b
}

// Preferred marks fix as preferred suggestion.
func (b *Builder) Preferred() *Builder {
	b.preferred = true
	return b
}

// Err returns the first recorded error.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) span(n ast.Node) (source.Span, bool) {
	if b.err != nil {
		return source.Span{}, false
	}
	if n == nil || b.unit.IsSynthetic(n) {
		b.fail(fmt.Errorf("%w: %s", ErrSyntheticNode, describeNode(b.unit, n)))
		return source.Span{}, false
	}
	sp, err := b.unit.Span(n)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", describeNode(b.unit, n), err))
		return source.Span{}, false
	}
	return sp, true
}

func describeNode(u *tree.Unit, n ast.Node) string {
	if n == nil {
		return "nil node"
	}
	if n.Pos().IsValid() {
		return fmt.Sprintf("%s at %s", tree.KindOf(n), u.Position(n.Pos()))
	}
	return tree.KindOf(n).String()
}

func (b *Builder) push(sp source.Span, text string) *Builder {
	b.reps = append(b.reps, diag.Replacement{Span: sp, NewText: text})
	return b
}

// Replace substitutes the text of n.
func (b *Builder) Replace(n ast.Node, text string) *Builder {
	if sp, ok := b.span(n); ok {
		b.push(sp, text)
	}
	return b
}

// ReplaceRange substitutes [start, end) given as positions of the unit.
func (b *Builder) ReplaceRange(start, end token.Pos, text string) *Builder {
	if b.err != nil {
		return b
	}
	s, err := b.unit.Offset(start)
	if err != nil {
		b.fail(fmt.Errorf("%w: range start", ErrSyntheticNode))
		return b
	}
	e, err := b.unit.Offset(end)
	if err != nil || e < s {
		b.fail(fmt.Errorf("range end: %w", tree.ErrNoEndPosition))
		return b
	}
	return b.push(source.Span{File: b.unit.FileID, Start: s, End: e}, text)
}

// ReplaceAdjusted replaces n's range widened or narrowed by the byte offsets.
func (b *Builder) ReplaceAdjusted(n ast.Node, text string, startAdj, endAdj int) *Builder {
	sp, ok := b.span(n)
	if !ok {
		return b
	}
	start, end := int(sp.Start)+startAdj, int(sp.End)+endAdj
	size := len(b.unit.Source().Content)
	if start < 0 || end < start || end > size {
		b.fail(fmt.Errorf("adjusted range [%d,%d) of %s is invalid", start, end, describeNode(b.unit, n)))
		return b
	}
	sp.Start, sp.End = uint32(start), uint32(end) // #nosec G115 -- bounded by size
	return b.push(sp, text)
}

// PrefixWith inserts text right before n.
func (b *Builder) PrefixWith(n ast.Node, text string) *Builder {
	if sp, ok := b.span(n); ok {
		b.push(source.Span{File: sp.File, Start: sp.Start, End: sp.Start}, text)
	}
	return b
}

// PostfixWith inserts text right after n.
func (b *Builder) PostfixWith(n ast.Node, text string) *Builder {
	if sp, ok := b.span(n); ok {
		b.push(source.Span{File: sp.File, Start: sp.End, End: sp.End}, text)
	}
	return b
}

// Delete removes n. Statements, declarations and specs that sit alone on
// their lines are removed together with the line.
func (b *Builder) Delete(n ast.Node) *Builder {
	sp, ok := b.span(n)
	if !ok {
		return b
	}
	switch n.(type) {
	case ast.Stmt, ast.Decl, ast.Spec:
		sp = wholeLines(b.unit.Source().Content, sp)
	}
	return b.push(sp, "")
}

func wholeLines(src []byte, sp source.Span) source.Span {
	start := int(sp.Start)
	for start > 0 && (src[start-1] == ' ' || src[start-1] == '\t') {
		start--
	}
	if start > 0 && src[start-1] != '\n' {
		return sp
	}
	end := int(sp.End)
	for end < len(src) && (src[end] == ' ' || src[end] == '\t' || src[end] == '\r') {
		end++
	}
	if end < len(src) && src[end] != '\n' {
		return sp
	}
	if end < len(src) {
		end++
	}
	sp.Start, sp.End = uint32(start), uint32(end) // #nosec G115
	return sp
}

// Swap exchanges the source text of a and b.
func (b *Builder) Swap(x, y ast.Node) *Builder {
	xt, yt := b.unit.Text(x), b.unit.Text(y)
	return b.Replace(x, yt).Replace(y, xt)
}

// AddImport requests an import of path under its default name.
func (b *Builder) AddImport(path string) *Builder {
	return b.addImport(path)
}

// AddNamedImport requests an import of path under name.
func (b *Builder) AddNamedImport(name, path string) *Builder {
	if name == "" || name == tree.DefaultImportName(path) {
		return b.addImport(path)
	}
	return b.addImport(name + " " + path)
}

func (b *Builder) addImport(spec string) *Builder {
	if !slices.Contains(b.adds, spec) {
		b.adds = append(b.adds, spec)
	}
	return b
}

// RemoveImport requests removal of path once nothing uses it any more.
func (b *Builder) RemoveImport(path string) *Builder {
	if !slices.Contains(b.removes, path) {
		b.removes = append(b.removes, path)
	}
	return b
}

// Merge appends the edits and imports of other. Its error, if any, carries over.
func (b *Builder) Merge(other *Builder) *Builder {
	if other == nil {
		return b
	}
	b.fail(other.err)
	if other.err != nil {
		return b
	}
	b.reps = append(b.reps, other.reps...)
	for _, a := range other.adds {
		b.addImport(a)
	}
	for _, r := range other.removes {
		b.RemoveImport(r)
	}
	return b
}

// IsEmpty reports whether nothing has been recorded.
func (b *Builder) IsEmpty() bool {
	return len(b.reps) == 0 && len(b.adds) == 0 && len(b.removes) == 0
}

// Build validates the edits and returns the fix.
func (b *Builder) Build() (diag.Fix, error) {
	if b.err != nil {
		return diag.Fix{}, b.err
	}
	var set Replacements
	for _, rep := range b.reps {
		if err := set.Add(rep); err != nil {
			return diag.Fix{}, err
		}
	}
	removes := make([]string, 0, len(b.removes))
	for _, r := range b.removes {
		if !slices.ContainsFunc(b.adds, func(a string) bool { return importSpecPath(a) == r }) {
			removes = append(removes, r)
		}
	}
	return diag.Fix{
		ID:              b.id,
		Title:           b.title,
		Applicability:   b.app,
		IsPreferred:     b.preferred,
		Replacements:    set.Descending(),
		ImportsToAdd:    slices.Clone(b.adds),
		ImportsToRemove: removes,
	}, nil
}
