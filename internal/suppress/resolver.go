package suppress

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"

	"bugcheck/internal/check"
	"bugcheck/internal/tree"
)

// Resolver answers suppression questions for one unit. Comment association
// is computed on first use and cached; units without directive comments never
// pay for it.
type Resolver struct {
	unit   *tree.Unit
	active bool
	cmap   ast.CommentMap
	cache  map[ast.Node]*Set
	file   *Set
}

// NewResolver prepares a resolver for u.
func NewResolver(u *tree.Unit) *Resolver {
	r := &Resolver{unit: u}
	for _, g := range u.File.Comments {
		for _, c := range g.List {
			if isDirective(c.Text) {
				r.active = true
				return r
			}
		}
	}
	return r
}

func isDirective(text string) bool {
	return len(text) > 2 && text[1] == '/' && text[2] != ' ' && text[2] != '\t'
}

// Active reports whether the unit contains any directive comment.
func (r *Resolver) Active() bool {
	return r.active
}

func (r *Resolver) init() {
	if r.cache != nil {
		return
	}
	r.cmap = ast.NewCommentMap(r.unit.Fset, r.unit.File, r.unit.File.Comments)
	r.cache = make(map[ast.Node]*Set)

	// directives above the package clause cover the whole file
	var fileSet Set
	for _, g := range r.unit.File.Comments {
		if g.Pos() >= r.unit.File.Package {
			break
		}
		for _, c := range g.List {
			fileSet.parseDirective(c.Text)
		}
	}
	if !fileSet.empty() {
		r.file = &fileSet
	}
}

// Directives returns the directives attached to n, or nil.
func (r *Resolver) Directives(n ast.Node) *Set {
	if !r.active || n == nil {
		return nil
	}
	r.init()
	if f, ok := n.(*ast.File); ok && f == r.unit.File {
		return r.file
	}
	if s, ok := r.cache[n]; ok {
		return s
	}
	var set *Set
	for _, g := range r.cmap[n] {
		for _, c := range g.List {
			if !isDirective(c.Text) {
				continue
			}
			if set == nil {
				set = &Set{}
			}
			set.parseDirective(c.Text)
		}
	}
	if set != nil && set.empty() {
		set = nil
	}
	r.cache[n] = set
	return set
}

// IsSuppressed walks from the leaf of path to the file and reports whether
// any level silences the check.
func (r *Resolver) IsSuppressed(path tree.Path, info check.Info) bool {
	if !r.active || info.Suppress == check.Unsuppressible {
		return false
	}
	for i := len(path) - 1; i >= 0; i-- {
		if r.Directives(path[i]).Suppresses(info) {
			return true
		}
	}
	return false
}

// IsSymbolSuppressed reports whether the declaration of obj, when it lives in
// this unit, is covered by a directive silencing the check.
func (r *Resolver) IsSymbolSuppressed(obj types.Object, info check.Info) bool {
	if !r.active || obj == nil || !obj.Pos().IsValid() {
		return false
	}
	if _, err := r.unit.Offset(obj.Pos()); err != nil {
		return false
	}
	inner, _ := astutil.PathEnclosingInterval(r.unit.File, obj.Pos(), obj.Pos())
	for _, n := range inner {
		if r.Directives(n).Suppresses(info) {
			return true
		}
	}
	return false
}
