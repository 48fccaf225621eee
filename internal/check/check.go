package check

import (
	"fmt"
	"go/ast"
	"slices"

	"bugcheck/internal/tree"
)

// MatchFunc inspects one node on behalf of a check.
type MatchFunc func(s *State, n ast.Node) Result

// Binding attaches a match function to a node kind.
type Binding struct {
	Kind tree.Kind
	Fn   MatchFunc
}

// On binds fn to nodes of kind k.
func On(k tree.Kind, fn MatchFunc) Binding {
	return Binding{Kind: k, Fn: fn}
}

// OnNode binds a typed handler; the kind is taken from N, which must be a
// concrete node pointer type such as *ast.IfStmt.
func OnNode[N ast.Node](fn func(s *State, n N) Result) Binding {
	var zero N
	return Binding{
		Kind: tree.KindOf(zero),
		Fn: func(s *State, n ast.Node) Result {
			return fn(s, n.(N))
		},
	}
}

// Check is an immutable named rule with its kind handlers.
type Check struct {
	info     Info
	handlers map[tree.Kind]MatchFunc
	kinds    []tree.Kind
}

// Define validates info and builds a check. A kind may be bound once.
func Define(info Info, bindings ...Binding) (*Check, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	c := &Check{
		info:     cloneInfo(info),
		handlers: make(map[tree.Kind]MatchFunc, len(bindings)),
	}
	for _, b := range bindings {
		if b.Kind == tree.KindInvalid || int(b.Kind) >= tree.NumKinds {
			return nil, fmt.Errorf("%s: binding for invalid node kind", info.Name)
		}
		if b.Fn == nil {
			return nil, fmt.Errorf("%s: nil handler for %s", info.Name, b.Kind)
		}
		if _, dup := c.handlers[b.Kind]; dup {
			return nil, fmt.Errorf("%s: duplicate handler for %s", info.Name, b.Kind)
		}
		c.handlers[b.Kind] = b.Fn
		c.kinds = append(c.kinds, b.Kind)
	}
	slices.Sort(c.kinds)
	return c, nil
}

// MustDefine is Define for package-level check variables.
func MustDefine(info Info, bindings ...Binding) *Check {
	c, err := Define(info, bindings...)
	if err != nil {
		panic(err)
	}
	return c
}

// FromInfo builds a check with no handlers. It takes part in configuration
// and listing but never fires.
func FromInfo(info Info) (*Check, error) {
	return Define(info)
}

func cloneInfo(info Info) Info {
	info.AltNames = slices.Clone(info.AltNames)
	info.CustomSuppressions = slices.Clone(info.CustomSuppressions)
	info.Tags = slices.Clone(info.Tags)
	return info
}

func (c *Check) Name() string { return c.info.Name }

// Info returns a copy of the registry record.
func (c *Check) Info() Info { return cloneInfo(c.info) }

// Kinds lists the node kinds the check handles, in Kind order.
func (c *Check) Kinds() []tree.Kind { return slices.Clone(c.kinds) }

// Matcher returns the handler for k, or nil.
func (c *Check) Matcher(k tree.Kind) MatchFunc { return c.handlers[k] }

func (c *Check) String() string { return c.info.Name }
