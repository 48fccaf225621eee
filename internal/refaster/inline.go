package refaster

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"go/types"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-toolsmith/astcopy"
	"golang.org/x/tools/go/ast/astutil"

	"bugcheck/internal/fix"
	"bugcheck/internal/tree"
)

// Inliner renders a template of a rule as source text at the place of a
// match. Bound expressions keep the candidate's original text.
type Inliner struct {
	unit *tree.Unit
	rule *Rule
	env  *Env
	at   []ast.Node // the matched candidate nodes

	splices []string
	adds    map[string]string // import path -> local name to add
	fresh   map[string]string // after-only local -> chosen name
	taken   map[string]bool
	err     error
}

// Inlined is a rendered replacement together with the imports it needs.
type Inlined struct {
	Text    string
	Imports []string // "path" or "name path"
}

func NewInliner(u *tree.Unit, r *Rule, env *Env, at []ast.Node) *Inliner {
	return &Inliner{
		unit:  u,
		rule:  r,
		env:   env,
		at:    at,
		adds:  make(map[string]string),
		fresh: make(map[string]string),
	}
}

var printConfig = printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}

// Inline renders t. Rendering fails when a name the template needs is
// bound in the candidate file to something else.
func (in *Inliner) Inline(t *Template) (*Inlined, error) {
	var text string
	if t.Expr != nil {
		e := in.rewrite(t, astcopy.Expr(t.Expr))
		text = in.print(e)
		if in.needsOuterParens(t) {
			text = "(" + text + ")"
		}
	} else {
		lines := make([]string, 0, len(t.Stmts))
		for _, s := range t.Stmts {
			lines = append(lines, in.print(in.rewrite(t, astcopy.Stmt(s))))
		}
		text = strings.Join(lines, "\n")
	}
	if in.err != nil {
		return nil, in.err
	}
	text = in.splice(reindent(text, in.indent()))

	out := &Inlined{Text: text}
	for path, name := range in.adds {
		if name == tree.DefaultImportName(path) {
			out.Imports = append(out.Imports, path)
		} else {
			out.Imports = append(out.Imports, name+" "+path)
		}
	}
	return out, nil
}

func (in *Inliner) fail(err error) {
	if in.err == nil {
		in.err = err
	}
}

// rewrite substitutes bindings into a copy of template code.
func (in *Inliner) rewrite(t *Template, n ast.Node) ast.Node {
	zeroPos(n)
	return astutil.Apply(n, func(c *astutil.Cursor) bool {
		if in.err != nil {
			return false
		}
		switch x := c.Node().(type) {
		case *ast.ExprStmt:
			if ph, call := t.stmtPlaceholder(x); ph != nil {
				c.Replace(&ast.ExprStmt{X: in.marker(in.placeholderText(t, ph, call))})
				return false
			}
		case *ast.CallExpr:
			if ph, call := t.placeholderCall(x); ph != nil && ph.Result != nil {
				b, _ := in.env.Lookup(Key{KeyPlaceholder, ph.Name})
				pb, _ := b.(PlaceholderBinding)
				c.Replace(in.wrap(c, in.marker(in.placeholderText(t, ph, call)), boundPrecedence(pb)))
				return false
			}
		case *ast.SelectorExpr:
			path, ok := t.packageOf(x.X)
			if !ok {
				break
			}
			name := in.importName(path)
			if name == "." {
				c.Replace(ast.NewIdent(x.Sel.Name))
			} else {
				x.X = ast.NewIdent(name)
			}
			return false
		case *ast.Ident:
			if sel, ok := c.Parent().(*ast.SelectorExpr); ok && sel.Sel == x {
				break
			}
			switch t.classify(x.Name) {
			case classVar:
				e, ok := in.env.Expr(x.Name)
				if !ok {
					in.fail(fmt.Errorf("%s is not bound", x.Name))
					return false
				}
				c.Replace(in.wrap(c, in.marker(in.unit.Text(e)), precedence(e)))
			case classType:
				c.Replace(in.marker(in.typeText(x.Name)))
			case classLocal:
				x.Name = in.localName(x.Name)
			}
		}
		return true
	}, nil)
}

// wrap parenthesises a substituted expression where its new context binds
// tighter than it does.
func (in *Inliner) wrap(c *astutil.Cursor, e ast.Expr, prec int) ast.Expr {
	if needsParens(c.Parent(), c.Name(), prec) {
		return &ast.ParenExpr{X: e}
	}
	return e
}

func (in *Inliner) marker(text string) *ast.Ident {
	id := ast.NewIdent(fmt.Sprintf("__bugcheck%d__", len(in.splices)))
	in.splices = append(in.splices, text)
	return id
}

func (in *Inliner) print(n ast.Node) string {
	var buf bytes.Buffer
	if err := printConfig.Fprint(&buf, in.rule.fset, n); err != nil {
		in.fail(err)
	}
	return buf.String()
}

// splice replaces markers with their text. A marker for an empty statement
// run takes its line with it.
func (in *Inliner) splice(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if i, ok := in.markerLine(line); ok && in.splices[i] == "" {
			continue
		}
		out = append(out, line)
	}
	text = strings.Join(out, "\n")
	for i := len(in.splices) - 1; i >= 0; i-- {
		text = strings.ReplaceAll(text, fmt.Sprintf("__bugcheck%d__", i), in.splices[i])
	}
	return text
}

func (in *Inliner) markerLine(line string) (int, bool) {
	s := strings.TrimSpace(line)
	s, ok := strings.CutPrefix(s, "__bugcheck")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, "__")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	return i, err == nil && i < len(in.splices)
}

// placeholderText rebuilds the captured code with each hole replaced by the
// rendered argument of this invocation.
func (in *Inliner) placeholderText(t *Template, ph *Placeholder, call *ast.CallExpr) string {
	b, ok := in.env.Lookup(Key{KeyPlaceholder, ph.Name})
	if !ok {
		in.fail(fmt.Errorf("placeholder %s is not bound", ph.Name))
		return ""
	}
	pb := b.(PlaceholderBinding)
	if len(pb.Nodes) == 0 {
		return ""
	}

	args := make([]string, len(call.Args))
	precs := make([]int, len(call.Args))
	for i, arg := range call.Args {
		e := in.rewrite(t, astcopy.Expr(arg)).(ast.Expr)
		args[i] = in.splice(in.print(e))
		precs[i] = precedence(unparen(arg))
		if id, ok := unparen(arg).(*ast.Ident); ok && t.classify(id.Name) == classVar {
			if bound, ok := in.env.Expr(id.Name); ok {
				precs[i] = precedence(bound)
			}
		}
	}
	return spanText(in.unit, pb.Nodes[0].Pos(), pb.Nodes[len(pb.Nodes)-1].End(), pb.Holes, func(h Hole) string {
		text := args[h.Param]
		if parent := in.unit.PathTo(h.Expr).Parent(); needsParens(parent, fieldOf(parent, h.Expr), precs[h.Param]) {
			return "(" + text + ")"
		}
		return text
	})
}

func (in *Inliner) typeText(name string) string {
	b, ok := in.env.Lookup(Key{KeyType, name})
	if !ok {
		in.fail(fmt.Errorf("type parameter %s is not bound", name))
		return ""
	}
	tb := b.(TypeBinding)
	if tb.Expr != nil {
		return in.unit.Text(tb.Expr)
	}
	return types.TypeString(tb.Type, func(p *types.Package) string {
		if p == in.unit.Pkg {
			return ""
		}
		return in.importName(p.Path())
	})
}

// importName is the name under which the candidate file refers to path,
// adding an import when the file has none.
func (in *Inliner) importName(path string) string {
	if name, ok := in.unit.ImportName(path); ok && name != "_" {
		return name
	}
	if name, ok := in.adds[path]; ok {
		return name
	}
	want := tree.DefaultImportName(path)
	for name, p := range in.rule.imports {
		if p == path && name != "_" && name != "." {
			want = name
		}
	}
	if other, ok := in.unit.ImportPath(want); ok && other != path {
		in.fail(fmt.Errorf("%w: %s needs %q but %s is imported under that name", fix.ErrAmbiguousImport, in.rule.Name, want, other))
		return want
	}
	if in.unit.Pkg != nil && in.unit.Pkg.Scope().Lookup(want) != nil {
		in.fail(fmt.Errorf("%w: %s needs %q but the package declares it", fix.ErrAmbiguousImport, in.rule.Name, want))
		return want
	}
	in.adds[path] = want
	return want
}

// localName maps a template local to a candidate name: the one the match
// bound, or a fresh name that does not collide in the enclosing function.
func (in *Inliner) localName(name string) string {
	if b, ok := in.env.Lookup(Key{KeyLocal, name}); ok {
		return b.(LocalBinding).Name
	}
	if n, ok := in.fresh[name]; ok {
		return n
	}
	if in.taken == nil {
		in.taken = in.namesInScope()
	}
	candidate := name
	for i := 1; in.taken[candidate]; i++ {
		candidate = name + strconv.Itoa(i)
	}
	in.taken[candidate] = true
	in.fresh[name] = candidate
	return candidate
}

func (in *Inliner) namesInScope() map[string]bool {
	var root ast.Node = in.unit.File
	if len(in.at) > 0 {
		if fn := in.unit.PathTo(in.at[0]).Enclosing(tree.KindFuncDecl); fn != nil {
			root = fn
		}
	}
	names := make(map[string]bool)
	ast.Inspect(root, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			names[id.Name] = true
		}
		return true
	})
	for name := range in.rule.imports {
		names[name] = true
	}
	for _, spec := range in.unit.File.Imports {
		if spec.Name != nil {
			names[spec.Name.Name] = true
		}
	}
	return names
}

// needsOuterParens checks the rendered root against the context of the
// replaced expression.
func (in *Inliner) needsOuterParens(t *Template) bool {
	if len(in.at) != 1 {
		return false
	}
	root := unparen(t.Expr)
	if _, ok := t.Expr.(*ast.ParenExpr); ok {
		return false
	}
	prec := precedence(root)
	if id, ok := root.(*ast.Ident); ok && t.classify(id.Name) == classVar {
		if e, ok := in.env.Expr(id.Name); ok {
			prec = precedence(e)
		}
	}
	parent := in.unit.PathTo(in.at[0]).Parent()
	return needsParens(parent, fieldOf(parent, in.at[0]), prec)
}

// indent is the leading whitespace of the line the match starts on.
func (in *Inliner) indent() string {
	if len(in.at) == 0 {
		return ""
	}
	off, err := in.unit.Offset(in.at[0].Pos())
	if err != nil {
		return ""
	}
	src := in.unit.Source().Content
	start := bytes.LastIndexByte(src[:off], '\n') + 1
	end := start
	for end < int(off) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}

func reindent(text, indent string) string {
	if indent == "" {
		return text
	}
	return strings.ReplaceAll(text, "\n", "\n"+indent)
}

func boundPrecedence(pb PlaceholderBinding) int {
	if len(pb.Nodes) == 1 {
		if e, ok := pb.Nodes[0].(ast.Expr); ok {
			return precedence(e)
		}
	}
	return token.LowestPrec
}

func precedence(e ast.Expr) int {
	switch e := e.(type) {
	case *ast.BinaryExpr:
		return e.Op.Precedence()
	case *ast.UnaryExpr, *ast.StarExpr:
		return token.UnaryPrec
	case *ast.KeyValueExpr:
		return token.LowestPrec
	}
	return token.HighestPrec
}

// fieldOf names the field of parent that holds child, as astutil.Cursor
// would.
func fieldOf(parent, child ast.Node) string {
	switch p := parent.(type) {
	case *ast.BinaryExpr:
		if p.Y == child {
			return "Y"
		}
	case *ast.CallExpr:
		if p.Fun != child {
			return "Args"
		}
		return "Fun"
	case *ast.IndexExpr:
		if p.X != child {
			return "Index"
		}
	case *ast.IndexListExpr:
		if p.X != child {
			return "Indices"
		}
	case *ast.SliceExpr:
		if p.X != child {
			return "Low"
		}
	case *ast.TypeAssertExpr:
		if p.X != child {
			return "Type"
		}
	}
	return "X"
}

// needsParens reports whether an expression of precedence prec placed in
// field of parent must be parenthesised.
func needsParens(parent ast.Node, field string, prec int) bool {
	switch p := parent.(type) {
	case *ast.BinaryExpr:
		pp := p.Op.Precedence()
		return prec < pp || prec == pp && field == "Y"
	case *ast.UnaryExpr, *ast.StarExpr:
		return prec < token.UnaryPrec
	case *ast.SelectorExpr, *ast.TypeAssertExpr, *ast.IndexExpr, *ast.IndexListExpr, *ast.SliceExpr:
		return field == "X" && prec < token.HighestPrec
	case *ast.CallExpr:
		return field == "Fun" && prec < token.HighestPrec
	}
	return false
}

var posType = reflect.TypeFor[token.Pos]()

// zeroPos clears the positions of copied template code so the printer lays
// it out from scratch.
func zeroPos(n ast.Node) {
	ast.Inspect(n, func(x ast.Node) bool {
		if x == nil {
			return false
		}
		v := reflect.ValueOf(x)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return true
		}
		v = v.Elem()
		if v.Kind() != reflect.Struct {
			return true
		}
		for i := range v.NumField() {
			if f := v.Field(i); f.Type() == posType && f.CanSet() {
				f.SetInt(0)
			}
		}
		return true
	})
}

// spanText returns the source between start and end with every hole inside
// replaced.
func spanText(u *tree.Unit, start, end token.Pos, holes []Hole, repl func(Hole) string) string {
	s, err1 := u.Offset(start)
	e, err2 := u.Offset(end)
	if err1 != nil || err2 != nil || e < s {
		return ""
	}
	text := string(u.Source().Content[s:e])
	inside := make([]Hole, 0, len(holes))
	for _, h := range holes {
		if h.Expr.Pos() >= start && h.Expr.End() <= end {
			inside = append(inside, h)
		}
	}
	// right to left keeps the earlier offsets valid
	for i := len(inside) - 1; i >= 0; i-- {
		h := inside[i]
		hs, he := int(h.Expr.Pos()-start), int(h.Expr.End()-start)
		text = text[:hs] + repl(h) + text[he:]
	}
	return text
}
