package refaster

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"slices"
	"strconv"
	"strings"

	"github.com/go-toolsmith/astequal"

	"bugcheck/internal/tree"
)

// Unifier matches templates against the code of one unit.
type Unifier struct {
	unit *tree.Unit
}

func NewUnifier(u *tree.Unit) *Unifier {
	return &Unifier{unit: u}
}

// Unify matches the expression template t against candidate. Every
// alternative is a complete, consistent binding environment extending env.
func (u *Unifier) Unify(t *Template, candidate ast.Expr, env *Env) Choice[*Env] {
	if t.Expr == nil {
		return None[*Env]()
	}
	m := &matcher{unit: u.unit, t: t}
	return m.expr(t.Expr, candidate, env)
}

// RunMatch is one way a statement template matched a prefix of a
// statement list.
type RunMatch struct {
	Env   *Env
	Stmts []ast.Stmt
}

// UnifyRun matches the statement template t against a prefix of list.
func (u *Unifier) UnifyRun(t *Template, list []ast.Stmt, env *Env) Choice[RunMatch] {
	if t.Stmts == nil {
		return None[RunMatch]()
	}
	m := &matcher{unit: u.unit, t: t}
	return Map(m.run(t.Stmts, list, 0, env, false), func(r runMatch) RunMatch {
		return RunMatch{Env: r.env, Stmts: list[:r.n]}
	})
}

type matcher struct {
	unit *tree.Unit
	t    *Template
}

type step func(*Env) Choice[*Env]

// chain runs the steps in order; every step sees the bindings of the ones
// before it.
func chain(env *Env, steps ...step) Choice[*Env] {
	if len(steps) == 0 {
		return Of(env)
	}
	return FlatMap(steps[0](env), func(e *Env) Choice[*Env] {
		return chain(e, steps[1:]...)
	})
}

func (m *matcher) e(t, c ast.Expr) step {
	return func(env *Env) Choice[*Env] { return m.expr(t, c, env) }
}

func (m *matcher) s(t, c ast.Stmt) step {
	return func(env *Env) Choice[*Env] { return m.stmt(t, c, env) }
}

func (m *matcher) es(ts, cs []ast.Expr) step {
	return func(env *Env) Choice[*Env] {
		if len(ts) != len(cs) {
			return None[*Env]()
		}
		steps := make([]step, len(ts))
		for i := range ts {
			steps[i] = m.e(ts[i], cs[i])
		}
		return chain(env, steps...)
	}
}

func (m *matcher) b(t, c *ast.BlockStmt) step {
	return func(env *Env) Choice[*Env] {
		if t == nil || c == nil {
			return Condition(t == nil && c == nil, env)
		}
		return m.body(t.List, c.List)(env)
	}
}

func (m *matcher) body(ts, cs []ast.Stmt) step {
	return func(env *Env) Choice[*Env] {
		return Map(m.run(ts, cs, 0, env, true), func(r runMatch) *Env { return r.env })
	}
}

func (m *matcher) expr(t, c ast.Expr, env *Env) Choice[*Env] {
	t, c = unparen(t), unparen(c)
	if t == nil || c == nil {
		return Condition(t == nil && c == nil, env)
	}

	switch tn := t.(type) {
	case *ast.Ident:
		return m.ident(tn, c, env)
	case *ast.BasicLit:
		cn, ok := c.(*ast.BasicLit)
		return Condition(ok && sameLiteral(tn, cn), env)
	case *ast.SelectorExpr:
		if path, ok := m.t.packageOf(tn.X); ok {
			return Condition(m.isPackageMember(path, tn.Sel.Name, c), env)
		}
		cn, ok := c.(*ast.SelectorExpr)
		if !ok || cn.Sel.Name != tn.Sel.Name {
			return None[*Env]()
		}
		if _, isPkg := m.unit.PackagePath(cn.X); isPkg {
			return None[*Env]()
		}
		return m.expr(tn.X, cn.X, env)
	case *ast.CallExpr:
		if m.t.isAnyOf(tn) {
			alts := make([]Choice[*Env], len(tn.Args))
			for i, alt := range tn.Args {
				alts[i] = Lazily(func() Choice[*Env] { return m.expr(alt, c, env) })
			}
			return Concat(alts...)
		}
		if ph, call := m.t.placeholderCall(tn); ph != nil && ph.Result != nil {
			return m.captureExpr(ph, call, c, env)
		}
		cn, ok := c.(*ast.CallExpr)
		if !ok || tn.Ellipsis.IsValid() != cn.Ellipsis.IsValid() {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Fun, cn.Fun), m.es(tn.Args, cn.Args))
	case *ast.BinaryExpr:
		cn, ok := c.(*ast.BinaryExpr)
		if !ok || cn.Op != tn.Op {
			return None[*Env]()
		}
		return chain(env, m.e(tn.X, cn.X), m.e(tn.Y, cn.Y))
	case *ast.UnaryExpr:
		cn, ok := c.(*ast.UnaryExpr)
		if !ok || cn.Op != tn.Op {
			return None[*Env]()
		}
		return m.expr(tn.X, cn.X, env)
	case *ast.StarExpr:
		cn, ok := c.(*ast.StarExpr)
		if !ok {
			return None[*Env]()
		}
		return m.expr(tn.X, cn.X, env)
	case *ast.IndexExpr:
		cn, ok := c.(*ast.IndexExpr)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.X, cn.X), m.e(tn.Index, cn.Index))
	case *ast.IndexListExpr:
		cn, ok := c.(*ast.IndexListExpr)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.X, cn.X), m.es(tn.Indices, cn.Indices))
	case *ast.SliceExpr:
		cn, ok := c.(*ast.SliceExpr)
		if !ok || cn.Slice3 != tn.Slice3 {
			return None[*Env]()
		}
		return chain(env, m.e(tn.X, cn.X), m.e(tn.Low, cn.Low), m.e(tn.High, cn.High), m.e(tn.Max, cn.Max))
	case *ast.TypeAssertExpr:
		cn, ok := c.(*ast.TypeAssertExpr)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.X, cn.X), m.e(tn.Type, cn.Type))
	case *ast.CompositeLit:
		cn, ok := c.(*ast.CompositeLit)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Type, cn.Type), m.es(tn.Elts, cn.Elts))
	case *ast.KeyValueExpr:
		cn, ok := c.(*ast.KeyValueExpr)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Key, cn.Key), m.e(tn.Value, cn.Value))
	case *ast.FuncLit:
		cn, ok := c.(*ast.FuncLit)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Type, cn.Type), m.b(tn.Body, cn.Body))
	case *ast.FuncType:
		cn, ok := c.(*ast.FuncType)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.fields(tn.Params, cn.Params), m.fields(tn.Results, cn.Results))
	case *ast.ArrayType:
		cn, ok := c.(*ast.ArrayType)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Len, cn.Len), m.e(tn.Elt, cn.Elt))
	case *ast.MapType:
		cn, ok := c.(*ast.MapType)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Key, cn.Key), m.e(tn.Value, cn.Value))
	case *ast.ChanType:
		cn, ok := c.(*ast.ChanType)
		if !ok || cn.Dir != tn.Dir {
			return None[*Env]()
		}
		return m.expr(tn.Value, cn.Value, env)
	case *ast.Ellipsis:
		cn, ok := c.(*ast.Ellipsis)
		if !ok {
			return None[*Env]()
		}
		return m.expr(tn.Elt, cn.Elt, env)
	case *ast.StructType, *ast.InterfaceType:
		return Condition(astequal.Expr(tn, c), env)
	}
	return None[*Env]()
}

// fields matches parameter or result lists of function literals. Names
// declared there are template locals.
func (m *matcher) fields(t, c *ast.FieldList) step {
	return func(env *Env) Choice[*Env] {
		if t.NumFields() != c.NumFields() {
			return None[*Env]()
		}
		if t == nil || c == nil {
			return Of(env)
		}
		tn, cn := flatten(t), flatten(c)
		steps := make([]step, 0, 2*len(tn))
		for i := range tn {
			steps = append(steps, m.e(tn[i].typ, cn[i].typ))
			if tn[i].name != nil && cn[i].name != nil {
				steps = append(steps, m.e(tn[i].name, cn[i].name))
			} else if (tn[i].name == nil) != (cn[i].name == nil) {
				return None[*Env]()
			}
		}
		return chain(env, steps...)
	}
}

type field struct {
	name *ast.Ident
	typ  ast.Expr
}

func flatten(fl *ast.FieldList) []field {
	var out []field
	if fl == nil {
		return nil
	}
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			out = append(out, field{typ: f.Type})
			continue
		}
		for _, n := range f.Names {
			out = append(out, field{name: n, typ: f.Type})
		}
	}
	return out
}

func (m *matcher) ident(tn *ast.Ident, c ast.Expr, env *Env) Choice[*Env] {
	switch m.t.classify(tn.Name) {
	case classVar:
		return m.freeVar(tn.Name, c, env)
	case classType:
		return m.typeVar(tn.Name, c, env)
	case classLocal:
		cn, ok := c.(*ast.Ident)
		if !ok {
			return None[*Env]()
		}
		return m.local(tn.Name, cn, env)
	case classBlank:
		cn, ok := c.(*ast.Ident)
		return Condition(ok && cn.Name == "_", env)
	case classPlaceholder, classPackage:
		return None[*Env]()
	}
	cn, ok := c.(*ast.Ident)
	return Condition(ok && cn.Name == tn.Name && m.sameGlobal(tn.Name, cn), env)
}

// sameGlobal rejects a candidate identifier that shadows a predeclared one.
func (m *matcher) sameGlobal(name string, c *ast.Ident) bool {
	u := types.Universe.Lookup(name)
	if u == nil {
		return true
	}
	obj := m.unit.ObjectOf(c)
	return obj == nil || obj == u
}

func (m *matcher) freeVar(name string, c ast.Expr, env *Env) Choice[*Env] {
	key := Key{KeyVar, name}
	if b, ok := env.Lookup(key); ok {
		return Condition(m.sameExpr(b.(ExprBinding).Expr, c), env)
	}
	if !m.isValue(c) {
		return None[*Env]()
	}
	return Map(m.typeMatches(m.t.params[name], c, env), func(e *Env) *Env {
		return e.Bind(key, ExprBinding{Expr: c})
	})
}

// isValue reports whether c can stand for a value-typed parameter.
func (m *matcher) isValue(c ast.Expr) bool {
	switch c.(type) {
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType, *ast.StructType, *ast.InterfaceType, *ast.Ellipsis, *ast.KeyValueExpr:
		return false
	}
	if _, isPkg := m.unit.PackagePath(c); isPkg {
		return false
	}
	if m.unit.Typed() {
		if tv, ok := m.unit.Info.Types[c]; ok {
			return tv.IsValue()
		}
	}
	return true
}

// sameExpr compares a bound expression with a later occurrence.
func (m *matcher) sameExpr(a, b ast.Expr) bool {
	a, b = unparen(a), unparen(b)
	if ai, ok := a.(*ast.Ident); ok {
		if bi, ok := b.(*ast.Ident); ok {
			oa, ob := m.unit.ObjectOf(ai), m.unit.ObjectOf(bi)
			if oa != nil && ob != nil {
				return oa == ob
			}
			return ai.Name == bi.Name
		}
	}
	return astequal.Expr(a, b)
}

// typeMatches checks the type of c against a declared parameter type. In
// untyped units every candidate is accepted.
func (m *matcher) typeMatches(want ast.Expr, c ast.Expr, env *Env) Choice[*Env] {
	if want == nil {
		return Of(env)
	}
	got := m.unit.TypeOf(c)
	if got == nil {
		return Of(env)
	}
	return m.unifyType(want, got, env)
}

func (m *matcher) unifyType(te ast.Expr, t types.Type, env *Env) Choice[*Env] {
	t = types.Unalias(t)
	switch te := unparen(te).(type) {
	case *ast.Ident:
		switch m.t.classify(te.Name) {
		case classType:
			return m.bindType(te.Name, t, env)
		case classGlobal:
			if want := universeType(te.Name); want != nil {
				return Condition(typeFits(t, want), env)
			}
		}
		if n, ok := t.(*types.Named); ok {
			return Condition(n.Obj().Name() == te.Name, env)
		}
		return None[*Env]()
	case *ast.SelectorExpr:
		path, ok := m.t.packageOf(te.X)
		if !ok {
			return None[*Env]()
		}
		n, ok := t.(*types.Named)
		return Condition(ok && n.Obj().Pkg() != nil && n.Obj().Pkg().Path() == path && n.Obj().Name() == te.Sel.Name, env)
	case *ast.StarExpr:
		p, ok := t.(*types.Pointer)
		if !ok {
			return None[*Env]()
		}
		return m.unifyType(te.X, p.Elem(), env)
	case *ast.ArrayType:
		if te.Len == nil {
			s, ok := t.Underlying().(*types.Slice)
			if !ok {
				return None[*Env]()
			}
			return m.unifyType(te.Elt, s.Elem(), env)
		}
		a, ok := t.Underlying().(*types.Array)
		if !ok {
			return None[*Env]()
		}
		if lit, isLit := te.Len.(*ast.BasicLit); isLit && lit.Value != strconv.FormatInt(a.Len(), 10) {
			return None[*Env]()
		}
		return m.unifyType(te.Elt, a.Elem(), env)
	case *ast.MapType:
		mt, ok := t.Underlying().(*types.Map)
		if !ok {
			return None[*Env]()
		}
		return FlatMap(m.unifyType(te.Key, mt.Key(), env), func(e *Env) Choice[*Env] {
			return m.unifyType(te.Value, mt.Elem(), e)
		})
	case *ast.ChanType:
		ch, ok := t.Underlying().(*types.Chan)
		if !ok || chanDir(te.Dir) != ch.Dir() {
			return None[*Env]()
		}
		return m.unifyType(te.Value, ch.Elem(), env)
	case *ast.InterfaceType:
		if te.Methods.NumFields() == 0 {
			return Of(env)
		}
		_, ok := t.Underlying().(*types.Interface)
		return Condition(ok, env)
	case *ast.FuncType:
		sig, ok := t.Underlying().(*types.Signature)
		if !ok {
			return None[*Env]()
		}
		return m.unifyTuple(flatten(te.Params), sig.Params(), env, func(e *Env) Choice[*Env] {
			if te.Results == nil {
				return Condition(sig.Results().Len() == 0, e)
			}
			return m.unifyTuple(flatten(te.Results), sig.Results(), e, nil)
		})
	}
	// constraints written in forms the matcher does not model
	return Of(env)
}

func (m *matcher) unifyTuple(fs []field, tup *types.Tuple, env *Env, then func(*Env) Choice[*Env]) Choice[*Env] {
	if len(fs) != tup.Len() {
		return None[*Env]()
	}
	steps := make([]step, len(fs))
	for i, f := range fs {
		steps[i] = func(e *Env) Choice[*Env] { return m.unifyType(f.typ, tup.At(i).Type(), e) }
	}
	c := chain(env, steps...)
	if then == nil {
		return c
	}
	return FlatMap(c, then)
}

func chanDir(d ast.ChanDir) types.ChanDir {
	switch d {
	case ast.SEND:
		return types.SendOnly
	case ast.RECV:
		return types.RecvOnly
	}
	return types.SendRecv
}

// typeFits accepts identical types and untyped constants representable as
// the wanted type.
func typeFits(got, want types.Type) bool {
	if types.Identical(got, want) {
		return true
	}
	if b, ok := got.(*types.Basic); ok && b.Info()&types.IsUntyped != 0 {
		return types.AssignableTo(got, want)
	}
	return false
}

func (m *matcher) bindType(name string, t types.Type, env *Env) Choice[*Env] {
	key := Key{KeyType, name}
	if b, ok := env.Lookup(key); ok {
		tb := b.(TypeBinding)
		return Condition(tb.Type == nil || types.Identical(tb.Type, t), env)
	}
	if !m.satisfies(name, t) {
		return None[*Env]()
	}
	return Of(env.Bind(key, TypeBinding{Type: types.Default(t)}))
}

// satisfies checks the predeclared constraints any and comparable.
func (m *matcher) satisfies(name string, t types.Type) bool {
	id, ok := unparen(m.t.typeParams[name]).(*ast.Ident)
	if ok && id.Name == "comparable" {
		return types.Comparable(t)
	}
	return true
}

// typeVar matches a type parameter in type position of the candidate code.
func (m *matcher) typeVar(name string, c ast.Expr, env *Env) Choice[*Env] {
	t := m.unit.TypeOf(c)
	if m.unit.Typed() {
		if tv, ok := m.unit.Info.Types[c]; !ok || !tv.IsType() {
			return None[*Env]()
		}
	}
	key := Key{KeyType, name}
	if b, ok := env.Lookup(key); ok {
		tb := b.(TypeBinding)
		switch {
		case tb.Type != nil && t != nil:
			return Condition(types.Identical(tb.Type, t), env)
		case tb.Expr != nil:
			return Condition(astequal.Expr(tb.Expr, c), env)
		}
		return None[*Env]()
	}
	if t != nil && !m.satisfies(name, t) {
		return None[*Env]()
	}
	return Of(env.Bind(key, TypeBinding{Type: t, Expr: c}))
}

func (m *matcher) local(name string, c *ast.Ident, env *Env) Choice[*Env] {
	key := Key{KeyLocal, name}
	if b, ok := env.Lookup(key); ok {
		return Condition(b.(LocalBinding).Name == c.Name, env)
	}
	if other, taken := env.localFor(c.Name); taken && other != name {
		return None[*Env]()
	}
	return Of(env.Bind(key, LocalBinding{Name: c.Name}))
}

// isPackageMember matches a package-qualified template reference, either as
// a selector under whatever name the candidate imports the package, or as
// a dot-imported identifier.
func (m *matcher) isPackageMember(path, name string, c ast.Expr) bool {
	switch c := c.(type) {
	case *ast.SelectorExpr:
		p, ok := m.unit.PackagePath(c.X)
		return ok && p == path && c.Sel.Name == name
	case *ast.Ident:
		if c.Name != name {
			return false
		}
		obj := m.unit.ObjectOf(c)
		return obj != nil && obj.Pkg() != nil && obj.Pkg().Path() == path && obj.Pkg() != m.unit.Pkg
	}
	return false
}

func sameLiteral(a, b *ast.BasicLit) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Value == b.Value {
		return true
	}
	x := constant.MakeFromLiteral(a.Value, a.Kind, 0)
	y := constant.MakeFromLiteral(b.Value, b.Kind, 0)
	return x.Kind() != constant.Unknown && y.Kind() != constant.Unknown && constant.Compare(x, token.EQL, y)
}

type runMatch struct {
	env *Env
	n   int
}

// run matches the template statements ts against cs. With exact set all of
// cs must be consumed; otherwise a prefix is enough. A statement
// placeholder tries the longest run first.
func (m *matcher) run(ts, cs []ast.Stmt, used int, env *Env, exact bool) Choice[runMatch] {
	if len(ts) == 0 {
		return Condition(!exact || len(cs) == 0, runMatch{env, used})
	}
	if ph, call := m.t.stmtPlaceholder(ts[0]); ph != nil {
		return func(yield func(runMatch) bool) {
			for k := len(cs); k >= 0; k-- {
				for e := range m.captureStmts(ph, call, cs[:k], env) {
					for r := range m.run(ts[1:], cs[k:], used+k, e, exact) {
						if !yield(r) {
							return
						}
					}
				}
			}
		}
	}
	if len(cs) == 0 {
		return None[runMatch]()
	}
	return FlatMap(m.stmt(ts[0], cs[0], env), func(e *Env) Choice[runMatch] {
		return m.run(ts[1:], cs[1:], used+1, e, exact)
	})
}

func (m *matcher) stmt(t, c ast.Stmt, env *Env) Choice[*Env] {
	if t == nil || c == nil {
		return Condition(t == nil && c == nil, env)
	}
	switch tn := t.(type) {
	case *ast.ExprStmt:
		cn, ok := c.(*ast.ExprStmt)
		if !ok {
			return None[*Env]()
		}
		return m.expr(tn.X, cn.X, env)
	case *ast.AssignStmt:
		cn, ok := c.(*ast.AssignStmt)
		if !ok || cn.Tok != tn.Tok {
			return None[*Env]()
		}
		return chain(env, m.es(tn.Lhs, cn.Lhs), m.es(tn.Rhs, cn.Rhs))
	case *ast.IncDecStmt:
		cn, ok := c.(*ast.IncDecStmt)
		if !ok || cn.Tok != tn.Tok {
			return None[*Env]()
		}
		return m.expr(tn.X, cn.X, env)
	case *ast.ReturnStmt:
		cn, ok := c.(*ast.ReturnStmt)
		if !ok {
			return None[*Env]()
		}
		return m.es(tn.Results, cn.Results)(env)
	case *ast.IfStmt:
		cn, ok := c.(*ast.IfStmt)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.s(tn.Init, cn.Init), m.e(tn.Cond, cn.Cond), m.b(tn.Body, cn.Body), m.s(tn.Else, cn.Else))
	case *ast.ForStmt:
		cn, ok := c.(*ast.ForStmt)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.s(tn.Init, cn.Init), m.e(tn.Cond, cn.Cond), m.s(tn.Post, cn.Post), m.b(tn.Body, cn.Body))
	case *ast.RangeStmt:
		cn, ok := c.(*ast.RangeStmt)
		if !ok || cn.Tok != tn.Tok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Key, cn.Key), m.e(tn.Value, cn.Value), m.e(tn.X, cn.X), m.b(tn.Body, cn.Body))
	case *ast.BlockStmt:
		cn, ok := c.(*ast.BlockStmt)
		if !ok {
			return None[*Env]()
		}
		return m.b(tn, cn)(env)
	case *ast.DeclStmt:
		cn, ok := c.(*ast.DeclStmt)
		if !ok {
			return None[*Env]()
		}
		return m.decl(tn, cn, env)
	case *ast.BranchStmt:
		cn, ok := c.(*ast.BranchStmt)
		return Condition(ok && cn.Tok == tn.Tok && labelName(cn.Label) == labelName(tn.Label), env)
	case *ast.SwitchStmt:
		cn, ok := c.(*ast.SwitchStmt)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.s(tn.Init, cn.Init), m.e(tn.Tag, cn.Tag), m.b(tn.Body, cn.Body))
	case *ast.TypeSwitchStmt:
		cn, ok := c.(*ast.TypeSwitchStmt)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.s(tn.Init, cn.Init), m.s(tn.Assign, cn.Assign), m.b(tn.Body, cn.Body))
	case *ast.CaseClause:
		cn, ok := c.(*ast.CaseClause)
		if !ok || (tn.List == nil) != (cn.List == nil) {
			return None[*Env]()
		}
		return chain(env, m.es(tn.List, cn.List), m.body(tn.Body, cn.Body))
	case *ast.SelectStmt:
		cn, ok := c.(*ast.SelectStmt)
		if !ok {
			return None[*Env]()
		}
		return m.b(tn.Body, cn.Body)(env)
	case *ast.CommClause:
		cn, ok := c.(*ast.CommClause)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.s(tn.Comm, cn.Comm), m.body(tn.Body, cn.Body))
	case *ast.SendStmt:
		cn, ok := c.(*ast.SendStmt)
		if !ok {
			return None[*Env]()
		}
		return chain(env, m.e(tn.Chan, cn.Chan), m.e(tn.Value, cn.Value))
	case *ast.GoStmt:
		cn, ok := c.(*ast.GoStmt)
		if !ok {
			return None[*Env]()
		}
		return m.expr(tn.Call, cn.Call, env)
	case *ast.DeferStmt:
		cn, ok := c.(*ast.DeferStmt)
		if !ok {
			return None[*Env]()
		}
		return m.expr(tn.Call, cn.Call, env)
	case *ast.LabeledStmt:
		cn, ok := c.(*ast.LabeledStmt)
		if !ok || cn.Label.Name != tn.Label.Name {
			return None[*Env]()
		}
		return m.stmt(tn.Stmt, cn.Stmt, env)
	case *ast.EmptyStmt:
		_, ok := c.(*ast.EmptyStmt)
		return Condition(ok, env)
	}
	return None[*Env]()
}

func labelName(id *ast.Ident) string {
	if id == nil {
		return ""
	}
	return id.Name
}

// decl matches var and const declarations spec by spec.
func (m *matcher) decl(t, c *ast.DeclStmt, env *Env) Choice[*Env] {
	tg, ok1 := t.Decl.(*ast.GenDecl)
	cg, ok2 := c.Decl.(*ast.GenDecl)
	if !ok1 || !ok2 || tg.Tok != cg.Tok || len(tg.Specs) != len(cg.Specs) {
		return None[*Env]()
	}
	var steps []step
	for i := range tg.Specs {
		ts, ok1 := tg.Specs[i].(*ast.ValueSpec)
		cs, ok2 := cg.Specs[i].(*ast.ValueSpec)
		if !ok1 || !ok2 || len(ts.Names) != len(cs.Names) {
			return None[*Env]()
		}
		for j := range ts.Names {
			steps = append(steps, m.e(ts.Names[j], cs.Names[j]))
		}
		steps = append(steps, m.e(ts.Type, cs.Type), m.es(ts.Values, cs.Values))
	}
	return chain(env, steps...)
}

// captureExpr binds an expression placeholder to c. Every subexpression of
// c that the placeholder arguments unify with becomes a hole, searched
// outside in and left to right, first match wins.
func (m *matcher) captureExpr(ph *Placeholder, call *ast.CallExpr, c ast.Expr, env *Env) Choice[*Env] {
	return Lazily(func() Choice[*Env] {
		env, holes := m.abstract(call.Args, []ast.Node{c}, env)
		if !ph.AllowIdentity && slices.ContainsFunc(holes, func(h Hole) bool { return h.Expr == c }) {
			return None[*Env]()
		}
		pb := PlaceholderBinding{Nodes: []ast.Node{c}, Holes: holes}
		return FlatMap(m.typeMatches(ph.Result, c, env), func(e *Env) Choice[*Env] {
			return m.bindPlaceholder(ph, pb, e)
		})
	})
}

// captureStmts binds a statement placeholder to a run of statements, which
// may be empty.
func (m *matcher) captureStmts(ph *Placeholder, call *ast.CallExpr, run []ast.Stmt, env *Env) Choice[*Env] {
	return Lazily(func() Choice[*Env] {
		nodes := make([]ast.Node, len(run))
		for i, s := range run {
			nodes[i] = s
		}
		env, holes := m.abstract(call.Args, nodes, env)
		return m.bindPlaceholder(ph, PlaceholderBinding{Nodes: nodes, Stmts: true, Holes: holes}, env)
	})
}

func (m *matcher) bindPlaceholder(ph *Placeholder, pb PlaceholderBinding, env *Env) Choice[*Env] {
	if m.usesTemplateLocal(pb, env) {
		return None[*Env]()
	}
	pb.shape = m.shape(pb)
	key := Key{KeyPlaceholder, ph.Name}
	if prev, ok := env.Lookup(key); ok {
		return Condition(prev.(PlaceholderBinding).shape == pb.shape, env)
	}
	return Of(env.Bind(key, pb))
}

// abstract finds the holes of captured code.
func (m *matcher) abstract(args []ast.Expr, nodes []ast.Node, env *Env) (*Env, []Hole) {
	var holes []Hole
	for _, n := range nodes {
		walkValues(n, func(e ast.Expr) bool {
			for j, a := range args {
				if next, found := m.expr(a, e, env).First(); found {
					env = next
					holes = append(holes, Hole{Expr: unparen(e), Param: j})
					return false
				}
			}
			return true
		})
	}
	return env, holes
}

// walkValues visits the expressions under n that evaluate to something,
// skipping field and method names as well as declared names.
func walkValues(n ast.Node, f func(ast.Expr) bool) {
	ast.Inspect(n, func(x ast.Node) bool {
		switch x := x.(type) {
		case *ast.SelectorExpr:
			if f(x) {
				walkValues(x.X, f)
			}
			return false
		case *ast.Field:
			if x.Type != nil {
				walkValues(x.Type, f)
			}
			return false
		case *ast.KeyValueExpr:
			if _, isName := x.Key.(*ast.Ident); !isName {
				walkValues(x.Key, f)
			}
			walkValues(x.Value, f)
			return false
		case *ast.BranchStmt, *ast.LabeledStmt:
			if ls, ok := x.(*ast.LabeledStmt); ok {
				walkValues(ls.Stmt, f)
			}
			return false
		case ast.Expr:
			return f(x)
		}
		return true
	})
}

// usesTemplateLocal reports captured code, holes excluded, that refers to
// a candidate variable bound to a template local. Such code would escape
// its scope when moved.
func (m *matcher) usesTemplateLocal(pb PlaceholderBinding, env *Env) bool {
	holes := make(map[ast.Expr]bool, len(pb.Holes))
	for _, h := range pb.Holes {
		holes[h.Expr] = true
	}
	found := false
	for _, n := range pb.Nodes {
		walkValues(n, func(e ast.Expr) bool {
			if found || holes[e] {
				return false
			}
			if id, ok := e.(*ast.Ident); ok {
				if _, bound := env.localFor(id.Name); bound {
					found = true
				}
			}
			return !found
		})
	}
	return found
}

// shape renders the captured code with holes as $n and whitespace
// collapsed.
func (m *matcher) shape(pb PlaceholderBinding) string {
	parts := make([]string, 0, len(pb.Nodes))
	for _, n := range pb.Nodes {
		parts = append(parts, spanText(m.unit, n.Pos(), n.End(), pb.Holes, func(h Hole) string {
			return "$" + strconv.Itoa(h.Param)
		}))
	}
	return strings.Join(strings.Fields(strings.Join(parts, "\n")), " ")
}
