package refaster

import (
	"fmt"
	"go/ast"
	"maps"
	"slices"
	"strings"

	"bugcheck/internal/check"
	"bugcheck/internal/tree"
)

// Check turns the rule into a check that reports every match and offers the
// after template as fix.
func (r *Rule) Check() (*check.Check, error) {
	var kinds []tree.Kind
	for _, b := range r.Befores {
		for _, k := range b.RootKinds() {
			if !slices.Contains(kinds, k) {
				kinds = append(kinds, k)
			}
		}
	}
	bindings := make([]check.Binding, 0, len(kinds))
	for _, k := range kinds {
		bindings = append(bindings, check.On(k, r.match))
	}
	return check.Define(r.Info(), bindings...)
}

// Checks converts rules in order.
func Checks(rules []*Rule) ([]*check.Check, error) {
	out := make([]*check.Check, 0, len(rules))
	for _, r := range rules {
		c, err := r.Check()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.File, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Rule) match(s *check.State, n ast.Node) check.Result {
	u := NewUnifier(s.Unit)
	for _, before := range r.Befores {
		env, at, ok := r.unifyAt(u, before, s.Path, n)
		if !ok {
			continue
		}
		in, err := NewInliner(s.Unit, r, env, at).Inline(r.After)
		if err != nil {
			return check.Failed(fmt.Errorf("rule %s: %w", r.Name, err))
		}

		fb := s.Fix().WithTitle(r.Summary).Preferred()
		if len(at) == 1 {
			fb.Replace(at[0], in.Text)
		} else {
			fb.ReplaceRange(at[0].Pos(), at[len(at)-1].End(), in.Text)
		}
		for _, spec := range in.Imports {
			name, path, named := strings.Cut(spec, " ")
			if named {
				fb.AddNamedImport(name, path)
			} else {
				fb.AddImport(spec)
			}
		}
		for _, path := range r.droppedImports(before) {
			fb.RemoveImport(path)
		}
		return s.Describe(at[0]).
			Messagef("%s: %s", r.Name, r.Summary).
			AddFixFrom(fb).
			Result()
	}
	return check.NoMatch()
}

// unifyAt tries one before template at n: directly for expressions, and as
// a run starting at n in its statement list otherwise.
func (r *Rule) unifyAt(u *Unifier, t *Template, path tree.Path, n ast.Node) (*Env, []ast.Node, bool) {
	if t.Expr != nil {
		e, ok := n.(ast.Expr)
		if !ok {
			return nil, nil, false
		}
		env, ok := u.Unify(t, e, nil).First()
		return env, []ast.Node{n}, ok
	}
	stmt, ok := n.(ast.Stmt)
	if !ok {
		return nil, nil, false
	}
	list := stmtList(path.Parent())
	i := slices.Index(list, stmt)
	if i < 0 {
		return nil, nil, false
	}
	m, ok := u.UnifyRun(t, list[i:], nil).First()
	if !ok || len(m.Stmts) == 0 {
		return nil, nil, false
	}
	at := make([]ast.Node, len(m.Stmts))
	for j, s := range m.Stmts {
		at[j] = s
	}
	return m.Env, at, true
}

func stmtList(parent ast.Node) []ast.Stmt {
	switch p := parent.(type) {
	case *ast.BlockStmt:
		return p.List
	case *ast.CaseClause:
		return p.Body
	case *ast.CommClause:
		return p.Body
	}
	return nil
}

// droppedImports lists packages the before template refers to and the
// after template does not. The fix engine keeps those still in use.
func (r *Rule) droppedImports(before *Template) []string {
	after := make(map[string]bool, len(r.After.imports))
	for _, p := range r.After.imports {
		after[p] = true
	}
	var out []string
	for _, name := range slices.Sorted(maps.Keys(before.imports)) {
		if p := before.imports[name]; !after[p] {
			out = append(out, p)
		}
	}
	return out
}

// Info is the registry record of the rule's check.
func (r *Rule) Info() check.Info {
	return check.Info{
		Name:     r.Name,
		Summary:  r.Summary,
		Severity: r.Severity,
		Link:     r.File,
		Tags:     []string{"refaster"},
	}
}
