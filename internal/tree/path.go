package tree

import (
	"go/ast"

	"golang.org/x/tools/go/ast/astutil"
)

// Path is the chain of nodes from the file root down to a node, inclusive.
type Path []ast.Node

// Leaf returns the innermost node.
func (p Path) Leaf() ast.Node {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

// Parent returns the direct parent of the leaf.
func (p Path) Parent() ast.Node {
	if len(p) < 2 {
		return nil
	}
	return p[len(p)-2]
}

// Enclosing returns the innermost ancestor (leaf excluded) with one of the kinds.
func (p Path) Enclosing(kinds ...Kind) ast.Node {
	for i := len(p) - 2; i >= 0; i-- {
		k := KindOf(p[i])
		for _, want := range kinds {
			if k == want {
				return p[i]
			}
		}
	}
	return nil
}

// PathTo computes the root-first path to the innermost node enclosing [n.Pos(), n.End()).
func (u *Unit) PathTo(n ast.Node) Path {
	inner, _ := astutil.PathEnclosingInterval(u.File, n.Pos(), n.End())
	p := make(Path, len(inner))
	for i, node := range inner {
		p[len(inner)-1-i] = node
	}
	return p
}
