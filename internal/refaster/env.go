package refaster

import (
	"fmt"
	"go/ast"
	"go/types"
	"slices"
)

// KeyKind says what sort of template name a key refers to.
type KeyKind uint8

const (
	// KeyVar is a free identifier: a parameter of the template function.
	KeyVar KeyKind = iota
	// KeyType is a type parameter of the template function.
	KeyType
	// KeyLocal is a variable declared inside the template body.
	KeyLocal
	// KeyPlaceholder is a placeholder function.
	KeyPlaceholder
)

func (k KeyKind) String() string {
	switch k {
	case KeyVar:
		return "var"
	case KeyType:
		return "type"
	case KeyLocal:
		return "local"
	case KeyPlaceholder:
		return "placeholder"
	}
	return "unknown"
}

// Key names a binding.
type Key struct {
	Kind KeyKind
	Name string
}

func (k Key) String() string { return k.Kind.String() + ":" + k.Name }

// Binding is what a key is bound to.
type Binding interface {
	binding()
}

// ExprBinding binds a free identifier to a candidate expression (parentheses
// removed).
type ExprBinding struct {
	Expr ast.Expr
}

// TypeBinding binds a type parameter. Type is nil in untyped units, where
// only the candidate's type expression is known.
type TypeBinding struct {
	Type types.Type
	Expr ast.Expr
}

// LocalBinding binds a template local to the name the candidate uses.
type LocalBinding struct {
	Name string
}

// Hole is an occurrence of a placeholder argument inside a captured body.
type Hole struct {
	Expr  ast.Expr
	Param int
}

// PlaceholderBinding is the code a placeholder stands for: one expression,
// or a run of statements, with its argument occurrences marked as holes.
type PlaceholderBinding struct {
	Nodes []ast.Node
	Stmts bool
	Holes []Hole
	// shape is the captured text with holes abstracted; two captures of
	// the same placeholder must agree on it
	shape string
}

func (ExprBinding) binding()        {}
func (TypeBinding) binding()        {}
func (LocalBinding) binding()       {}
func (PlaceholderBinding) binding() {}

// Env is a persistent binding environment. Bind never modifies the receiver,
// so an environment can be shared by every branch that extends it. The nil
// *Env is the empty environment.
type Env struct {
	parent *Env
	key    Key
	val    Binding
	size   int
}

// Bind returns an environment that also maps k to b.
func (e *Env) Bind(k Key, b Binding) *Env {
	n := 1
	if e != nil {
		n = e.size + 1
	}
	return &Env{parent: e, key: k, val: b, size: n}
}

// Lookup finds the binding of k.
func (e *Env) Lookup(k Key) (Binding, bool) {
	for ; e != nil; e = e.parent {
		if e.key == k {
			return e.val, true
		}
	}
	return nil, false
}

// Len is the number of bindings.
func (e *Env) Len() int {
	if e == nil {
		return 0
	}
	return e.size
}

// Keys lists the bound keys in binding order.
func (e *Env) Keys() []Key {
	keys := make([]Key, 0, e.Len())
	for ; e != nil; e = e.parent {
		keys = append(keys, e.key)
	}
	slices.Reverse(keys)
	return keys
}

// Expr returns the expression bound to the free identifier name.
func (e *Env) Expr(name string) (ast.Expr, bool) {
	b, ok := e.Lookup(Key{KeyVar, name})
	if !ok {
		return nil, false
	}
	return b.(ExprBinding).Expr, true
}

// localFor reports the template local already bound to the candidate name.
func (e *Env) localFor(name string) (string, bool) {
	for ; e != nil; e = e.parent {
		if lb, ok := e.val.(LocalBinding); ok && e.key.Kind == KeyLocal && lb.Name == name {
			return e.key.Name, true
		}
	}
	return "", false
}

func (e *Env) String() string {
	return fmt.Sprintf("Env%v", e.Keys())
}
