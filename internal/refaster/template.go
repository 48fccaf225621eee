package refaster

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"bugcheck/internal/diag"
	"bugcheck/internal/tree"
)

const (
	beforeDirective      = "refaster:before"
	afterDirective       = "refaster:after"
	placeholderDirective = "refaster:placeholder"

	// pseudoPackage qualifies wildcards such as refaster.AnyOf. Rule files
	// do not import it.
	pseudoPackage = "refaster"
	anyOfFunc     = "AnyOf"
)

var (
	// ErrNoAfter is returned for a rule without an after template.
	ErrNoAfter = errors.New("rule has no after template")
	// ErrNoBefore is returned for a rule without before templates.
	ErrNoBefore = errors.New("rule has no before template")
)

// Rule is a rewrite: any of the before templates is replaced by the after
// template.
type Rule struct {
	Name     string
	File     string
	Summary  string
	Severity diag.Severity
	Befores  []*Template
	After    *Template

	fset         *token.FileSet
	placeholders map[string]*Placeholder
	imports      map[string]string // local name -> path, as the rule file imports them
}

// Placeholder is a body-less function standing for arbitrary code.
type Placeholder struct {
	Name   string
	Params []string
	// Result is the declared result type; nil for placeholders that stand
	// for a run of statements.
	Result        ast.Expr
	AllowIdentity bool
}

// Template is one before or after function of a rule.
type Template struct {
	Func string
	Decl *ast.FuncDecl
	// Exactly one of Expr and Stmts is set: a body of a single
	// "return <expr>" is an expression template.
	Expr  ast.Expr
	Stmts []ast.Stmt

	rule       *Rule
	params     map[string]ast.Expr // free identifiers and their type constraints
	typeParams map[string]ast.Expr
	locals     map[string]bool
	uses       map[string]bool   // params, type params and placeholders referenced
	imports    map[string]string // packages referenced: local name -> path
}

type identClass uint8

const (
	classGlobal identClass = iota
	classVar
	classType
	classLocal
	classPlaceholder
	classPackage
	classBlank
)

// ParseRules reads the rules declared in one Go source file.
func ParseRules(filename string, src []byte) ([]*Rule, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	imports := make(map[string]string)
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: bad import %s", filename, spec.Path.Value)
		}
		name := tree.DefaultImportName(p)
		if spec.Name != nil {
			name = spec.Name.Name
		}
		imports[name] = p
	}

	placeholders := make(map[string]*Placeholder)
	rules := make(map[string]*Rule)
	var order []string
	rule := func(name string) *Rule {
		r, ok := rules[name]
		if !ok {
			r = &Rule{
				Name:         name,
				File:         filename,
				Severity:     diag.SevWarning,
				fset:         fset,
				placeholders: placeholders,
				imports:      imports,
			}
			rules[name] = r
			order = append(order, name)
		}
		return r
	}

	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Doc == nil || fd.Recv != nil {
			continue
		}
		for _, c := range fd.Doc.List {
			kind, args, ok := directive(c.Text)
			if !ok {
				continue
			}
			pos := fset.Position(c.Pos())
			switch kind {
			case placeholderDirective:
				ph, err := newPlaceholder(fd, args)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", pos, err)
				}
				placeholders[ph.Name] = ph
			case beforeDirective, afterDirective:
				name, opts, err := parseDirectiveArgs(args)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", pos, err)
				}
				if name == "" {
					return nil, fmt.Errorf("%s: %s needs a rule name", pos, kind)
				}
				r := rule(name)
				t := &Template{Func: fd.Name.Name, Decl: fd, rule: r}
				if kind == beforeDirective {
					if len(opts) > 0 {
						return nil, fmt.Errorf("%s: options belong on the after template", pos)
					}
					r.Befores = append(r.Befores, t)
					break
				}
				if r.After != nil {
					return nil, fmt.Errorf("%s: rule %s has two after templates", pos, name)
				}
				r.After = t
				if err := r.setOptions(opts); err != nil {
					return nil, fmt.Errorf("%s: %w", pos, err)
				}
			}
		}
	}

	out := make([]*Rule, 0, len(order))
	for _, name := range order {
		r := rules[name]
		if err := r.init(); err != nil {
			return nil, fmt.Errorf("%s: rule %s: %w", filename, name, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// directive splits "//refaster:kind args".
func directive(text string) (kind, args string, ok bool) {
	body, ok := strings.CutPrefix(text, "//")
	if !ok {
		return "", "", false
	}
	kind, args, _ = strings.Cut(body, " ")
	switch kind {
	case beforeDirective, afterDirective, placeholderDirective:
		return kind, strings.TrimSpace(args), true
	}
	return "", "", false
}

// parseDirectiveArgs reads `Name key=value key="quoted value"`.
func parseDirectiveArgs(s string) (string, map[string]string, error) {
	var name string
	opts := make(map[string]string)
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			end = len(s)
		}
		key, value, isOpt := strings.Cut(s[:end], "=")
		if !isOpt {
			if name != "" {
				return "", nil, fmt.Errorf("unexpected %q after rule name", s[:end])
			}
			name = s[:end]
			s = s[end:]
			continue
		}
		if strings.HasPrefix(value, `"`) {
			rest := s[len(key)+1:]
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return "", nil, fmt.Errorf("option %s: %w", key, err)
			}
			value, _ = strconv.Unquote(quoted)
			s = rest[len(quoted):]
		} else {
			s = s[end:]
		}
		opts[key] = value
	}
	return name, opts, nil
}

func (r *Rule) setOptions(opts map[string]string) error {
	for key, value := range opts {
		switch key {
		case "severity":
			sev, err := diag.ParseSeverity(value)
			if err != nil {
				return err
			}
			r.Severity = sev
		case "summary":
			r.Summary = value
		default:
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return nil
}

func newPlaceholder(fd *ast.FuncDecl, args string) (*Placeholder, error) {
	if fd.Body != nil {
		return nil, fmt.Errorf("placeholder %s must not have a body", fd.Name.Name)
	}
	ph := &Placeholder{Name: fd.Name.Name}
	switch args {
	case "":
	case "allowIdentity":
		ph.AllowIdentity = true
	default:
		return nil, fmt.Errorf("placeholder %s: unknown option %q", fd.Name.Name, args)
	}
	for _, field := range fd.Type.Params.List {
		if len(field.Names) == 0 {
			return nil, fmt.Errorf("placeholder %s: parameters must be named", fd.Name.Name)
		}
		for _, n := range field.Names {
			ph.Params = append(ph.Params, n.Name)
		}
	}
	if res := fd.Type.Results; res != nil {
		if res.NumFields() != 1 {
			return nil, fmt.Errorf("placeholder %s: at most one result", fd.Name.Name)
		}
		ph.Result = res.List[0].Type
	}
	return ph, nil
}

// init analyses the templates and checks that the after template only uses
// what every before template binds.
func (r *Rule) init() error {
	if len(r.Befores) == 0 {
		return ErrNoBefore
	}
	if r.After == nil {
		return ErrNoAfter
	}
	if r.Summary == "" {
		r.Summary = fmt.Sprintf("Rewrite with %s", r.Name)
	}
	for _, t := range append(slices.Clone(r.Befores), r.After) {
		if err := t.init(); err != nil {
			return fmt.Errorf("%s: %w", t.Func, err)
		}
	}

	exprRule := r.After.Expr != nil
	for _, b := range r.Befores {
		if (b.Expr != nil) != exprRule {
			return fmt.Errorf("%s and %s mix expression and statement templates", b.Func, r.After.Func)
		}
		if err := b.checkRoot(); err != nil {
			return fmt.Errorf("%s: %w", b.Func, err)
		}
		for name := range r.After.uses {
			if !b.uses[name] && r.After.classify(name) != classType {
				return fmt.Errorf("%s uses %s, which %s does not bind", r.After.Func, name, b.Func)
			}
		}
	}
	var err error
	ast.Inspect(r.After.Decl.Body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpr); ok && r.After.isAnyOf(call) {
			err = fmt.Errorf("%s: %s.%s is only allowed in before templates", r.After.Func, pseudoPackage, anyOfFunc)
		}
		return err == nil
	})
	return err
}

func (t *Template) init() error {
	fd := t.Decl
	if fd.Body == nil {
		return errors.New("template has no body")
	}
	t.params = make(map[string]ast.Expr)
	t.typeParams = make(map[string]ast.Expr)
	t.locals = make(map[string]bool)
	t.uses = make(map[string]bool)
	t.imports = make(map[string]string)

	if tps := fd.Type.TypeParams; tps != nil {
		for _, field := range tps.List {
			for _, n := range field.Names {
				t.typeParams[n.Name] = field.Type
			}
		}
	}
	for _, field := range fd.Type.Params.List {
		for _, n := range field.Names {
			if n.Name != "_" {
				t.params[n.Name] = field.Type
			}
		}
	}

	body := fd.Body.List
	if len(body) == 1 {
		if ret, ok := body[0].(*ast.ReturnStmt); ok && len(ret.Results) == 1 {
			t.Expr = ret.Results[0]
		}
	}
	if t.Expr == nil {
		if len(body) == 0 {
			return errors.New("template body is empty")
		}
		t.Stmts = body
	}

	t.collectLocals()

	ast.Inspect(fd.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			if id, ok := n.X.(*ast.Ident); ok && t.classify(id.Name) == classPackage {
				t.imports[id.Name] = t.rule.imports[id.Name]
				return false
			}
		case *ast.Ident:
			switch t.classify(n.Name) {
			case classVar, classType, classPlaceholder:
				t.uses[n.Name] = true
			}
		}
		return true
	})
	// constraints of used parameters may name type parameters
	for name := range t.uses {
		if typ, ok := t.params[name]; ok {
			ast.Inspect(typ, func(n ast.Node) bool {
				if id, ok := n.(*ast.Ident); ok && t.typeParams[id.Name] != nil {
					t.uses[id.Name] = true
				}
				return true
			})
		}
	}
	return nil
}

// collectLocals records the names the body declares.
func (t *Template) collectLocals() {
	add := func(id *ast.Ident) {
		if id != nil && id.Name != "_" {
			t.locals[id.Name] = true
		}
	}
	ast.Inspect(t.Decl.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, lhs := range n.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						add(id)
					}
				}
			}
		case *ast.RangeStmt:
			if n.Tok == token.DEFINE {
				if id, ok := n.Key.(*ast.Ident); ok {
					add(id)
				}
				if id, ok := n.Value.(*ast.Ident); ok {
					add(id)
				}
			}
		case *ast.ValueSpec:
			for _, id := range n.Names {
				add(id)
			}
		case *ast.FuncLit:
			for _, fl := range []*ast.FieldList{n.Type.Params, n.Type.Results} {
				if fl == nil {
					continue
				}
				for _, field := range fl.List {
					for _, id := range field.Names {
						add(id)
					}
				}
			}
		}
		return true
	})
}

func (t *Template) classify(name string) identClass {
	switch {
	case name == "_":
		return classBlank
	case t.locals[name]:
		return classLocal
	case t.params[name] != nil:
		return classVar
	case t.typeParams[name] != nil:
		return classType
	case t.rule.placeholders[name] != nil:
		return classPlaceholder
	case t.rule.imports[name] != "":
		return classPackage
	}
	return classGlobal
}

// packageOf reports the import path when x names an imported package.
func (t *Template) packageOf(x ast.Expr) (string, bool) {
	id, ok := x.(*ast.Ident)
	if !ok || t.classify(id.Name) != classPackage {
		return "", false
	}
	return t.rule.imports[id.Name], true
}

func (t *Template) isAnyOf(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != anyOfFunc {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && id.Name == pseudoPackage && t.classify(id.Name) == classGlobal
}

// placeholderCall returns the placeholder a call invokes.
func (t *Template) placeholderCall(e ast.Expr) (*Placeholder, *ast.CallExpr) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return nil, nil
	}
	id, ok := call.Fun.(*ast.Ident)
	if !ok || t.classify(id.Name) != classPlaceholder {
		return nil, nil
	}
	ph := t.rule.placeholders[id.Name]
	if len(call.Args) != len(ph.Params) {
		return nil, nil
	}
	return ph, call
}

// stmtPlaceholder returns the placeholder a statement stands for.
func (t *Template) stmtPlaceholder(s ast.Stmt) (*Placeholder, *ast.CallExpr) {
	es, ok := s.(*ast.ExprStmt)
	if !ok {
		return nil, nil
	}
	ph, call := t.placeholderCall(es.X)
	if ph == nil || ph.Result != nil {
		return nil, nil
	}
	return ph, call
}

// checkRoot rejects before templates that would match everything.
func (t *Template) checkRoot() error {
	if t.Expr != nil {
		if len(t.RootKinds()) == 0 {
			return errors.New("expression template must not be a bare parameter or placeholder")
		}
		return nil
	}
	if ph, _ := t.stmtPlaceholder(t.Stmts[0]); ph != nil {
		return errors.New("statement template must not start with a placeholder")
	}
	return nil
}

// RootKinds lists the node kinds a candidate for t can have.
func (t *Template) RootKinds() []tree.Kind {
	var kinds []tree.Kind
	var visit func(e ast.Expr)
	visit = func(e ast.Expr) {
		e = unparen(e)
		if call, ok := e.(*ast.CallExpr); ok && t.isAnyOf(call) {
			for _, alt := range call.Args {
				visit(alt)
			}
			return
		}
		if ph, _ := t.placeholderCall(e); ph != nil {
			return
		}
		if id, ok := e.(*ast.Ident); ok && t.classify(id.Name) == classVar {
			return
		}
		if k := tree.KindOf(e); !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	if t.Expr != nil {
		visit(t.Expr)
	} else {
		kinds = append(kinds, tree.KindOf(t.Stmts[0]))
	}
	slices.Sort(kinds)
	return kinds
}

// universeType resolves a predeclared type name such as int or error.
func universeType(name string) types.Type {
	if tn, ok := types.Universe.Lookup(name).(*types.TypeName); ok {
		return tn.Type()
	}
	return nil
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
