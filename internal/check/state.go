package check

import (
	"fmt"
	"go/ast"
	"go/types"

	"bugcheck/internal/diag"
	"bugcheck/internal/fix"
	"bugcheck/internal/tree"
)

// SymbolSuppressor answers suppression questions about declarations that may
// live away from the node being matched.
type SymbolSuppressor interface {
	IsSymbolSuppressed(obj types.Object, info Info) bool
}

// State is what a match function sees: the unit, the path to the current
// node and the check's effective configuration. The scanner reuses one State
// per (unit, check) and moves it from node to node.
type State struct {
	Unit *tree.Unit
	Path tree.Path

	check    *Check
	severity diag.Severity
	flags    map[string]string
	symbols  SymbolSuppressor
}

// NewState creates a state for running c over u.
func NewState(u *tree.Unit, c *Check, sev diag.Severity, flags map[string]string, symbols SymbolSuppressor) *State {
	return &State{
		Unit:     u,
		check:    c,
		severity: sev,
		flags:    flags,
		symbols:  symbols,
	}
}

// SetPath moves the state to a new node.
func (s *State) SetPath(p tree.Path) {
	s.Path = p
}

func (s *State) Check() *Check           { return s.check }
func (s *State) Severity() diag.Severity { return s.severity }

// Flag reads an opaque configuration flag (set with --opt=key=value).
func (s *State) Flag(key string) (string, bool) {
	v, ok := s.flags[key]
	return v, ok
}

func (s *State) Text(n ast.Node) string              { return s.Unit.Text(n) }
func (s *State) TypeOf(e ast.Expr) types.Type        { return s.Unit.TypeOf(e) }
func (s *State) ObjectOf(id *ast.Ident) types.Object { return s.Unit.ObjectOf(id) }

// IsSymbolSuppressed reports whether the declaration of obj is covered by a
// directive that silences this check.
func (s *State) IsSymbolSuppressed(obj types.Object) bool {
	if s.symbols == nil || obj == nil {
		return false
	}
	return s.symbols.IsSymbolSuppressed(obj, s.check.info)
}

// Fix starts an edit builder bound to the unit.
func (s *State) Fix() *fix.Builder {
	return fix.NewBuilder(s.Unit)
}

// Describe starts a diagnostic for n with the check's summary as message.
func (s *State) Describe(n ast.Node) *DescriptionBuilder {
	b := &DescriptionBuilder{s: s}
	sp, err := s.Unit.Span(n)
	if err != nil {
		b.err = fmt.Errorf("describe %s: %w", tree.KindOf(n), err)
	}
	b.d = diag.New(s.check.info.Name, s.severity, sp, s.check.info.Summary)
	b.d.Link = s.check.info.Link
	return b
}

// DescriptionBuilder collects the parts of one diagnostic. The first error
// sticks and turns the result into a failure.
type DescriptionBuilder struct {
	s   *State
	d   *diag.Diagnostic
	err error
}

func (b *DescriptionBuilder) Message(msg string) *DescriptionBuilder {
	b.d.Message = msg
	return b
}

func (b *DescriptionBuilder) Messagef(format string, args ...any) *DescriptionBuilder {
	b.d.Message = fmt.Sprintf(format, args...)
	return b
}

// Note attaches a secondary location. Nodes without text are skipped.
func (b *DescriptionBuilder) Note(n ast.Node, msg string) *DescriptionBuilder {
	if sp, err := b.s.Unit.Span(n); err == nil {
		b.d.WithNote(sp, msg)
	}
	return b
}

// AddFix appends a finished fix alternative.
func (b *DescriptionBuilder) AddFix(f diag.Fix) *DescriptionBuilder {
	if !f.IsEmpty() {
		b.d.WithFix(f)
	}
	return b
}

// AddFixFrom builds fb and appends the result. A build error, such as an
// edit of a synthetic node, fails the whole description.
func (b *DescriptionBuilder) AddFixFrom(fb *fix.Builder) *DescriptionBuilder {
	f, err := fb.Build()
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.AddFix(f)
}

// Result finalises the description.
func (b *DescriptionBuilder) Result() Result {
	if b.err != nil {
		return Failed(b.err)
	}
	return Match(b.d)
}
