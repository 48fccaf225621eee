package refaster

import (
	"bytes"
	"context"
	"errors"
	"go/ast"
	"go/parser"
	"strings"
	"testing"

	"github.com/go-toolsmith/astequal"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"bugcheck/internal/diag"
	"bugcheck/internal/fix"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

const containsRules = `package rules

import "strings"

//refaster:before StringsContains
func indexGE(s, sub string) bool {
	return strings.Index(s, sub) >= 0
}

//refaster:before StringsContains
func indexNE(s, sub string) bool {
	return strings.Index(s, sub) != -1
}

//refaster:after StringsContains severity=ERROR summary="Use strings.Contains"
func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
`

func parseUnit(t *testing.T, src string) *tree.Unit {
	t.Helper()
	files := source.NewFileSet()
	u, err := tree.Parse(files, files.AddVirtual("p.go", []byte(src)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return u
}

func mustRules(t *testing.T, src string) []*Rule {
	t.Helper()
	rules, err := ParseRules("rules.go", []byte(src))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	return rules
}

// refactor runs the rules over src and applies the first fix of every
// finding.
func refactor(t *testing.T, rulesSrc, src string) (string, []*diag.Diagnostic) {
	t.Helper()
	checks, err := Checks(mustRules(t, rulesSrc))
	if err != nil {
		t.Fatalf("Checks: %v", err)
	}
	sup, err := scanner.FromChecks(checks...)
	if err != nil {
		t.Fatal(err)
	}
	u := parseUnit(t, src)
	var (
		ds    []*diag.Diagnostic
		fixes []diag.Fix
	)
	_, err = sup.Scanner().Scan(context.Background(), u, diag.ReporterFunc(func(d *diag.Diagnostic) {
		ds = append(ds, d)
		if len(d.Fixes) > 0 {
			fixes = append(fixes, d.Fixes[0])
		}
	}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, d := range ds {
		if d.Internal {
			t.Fatalf("internal error: %s", d.Message)
		}
	}
	res, err := fix.ApplyToSource(u.Name(), []byte(src), fixes, fix.ImportOrderStdlibFirst)
	if err != nil {
		t.Fatalf("ApplyToSource: %v", err)
	}
	return string(res.Text), ds
}

func TestParseRules(t *testing.T) {
	rules := mustRules(t, containsRules)
	if len(rules) != 1 {
		t.Fatalf("got %d rules", len(rules))
	}
	r := rules[0]
	if r.Name != "StringsContains" || len(r.Befores) != 2 || r.After.Func != "contains" {
		t.Fatalf("rule = %+v", r)
	}
	if r.Severity != diag.SevError || r.Summary != "Use strings.Contains" {
		t.Fatalf("options: %v %q", r.Severity, r.Summary)
	}
	if got := r.Befores[0].RootKinds(); len(got) != 1 || got[0] != tree.KindBinaryExpr {
		t.Fatalf("root kinds = %v", got)
	}
}

func TestParseRulesErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no after",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n",
			want: "no after template",
		},
		{
			name: "no before",
			src:  "package r\n//refaster:after R\nfunc a(x int) int { return x + 1 }\n",
			want: "no before template",
		},
		{
			name: "unbound in after",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n//refaster:after R\nfunc a(x, y int) int { return y }\n",
			want: "does not bind",
		},
		{
			name: "bare parameter",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x }\n//refaster:after R\nfunc a(x int) int { return x }\n",
			want: "bare parameter",
		},
		{
			name: "mixed kinds",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n//refaster:after R\nfunc a(x int) { x++ }\n",
			want: "mix expression and statement",
		},
		{
			name: "leading placeholder",
			src:  "package r\n//refaster:placeholder\nfunc p()\n//refaster:before R\nfunc b() { p(); println() }\n//refaster:after R\nfunc a() { println(); p() }\n",
			want: "must not start with a placeholder",
		},
		{
			name: "AnyOf in after",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n//refaster:after R\nfunc a(x int) int { return refaster.AnyOf(x, 1) }\n",
			want: "only allowed in before",
		},
		{
			name: "unknown option",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n//refaster:after R colour=red\nfunc a(x int) int { return 1 + x }\n",
			want: "unknown option",
		},
		{
			name: "two afters",
			src:  "package r\n//refaster:before R\nfunc b(x int) int { return x + 1 }\n//refaster:after R\nfunc a(x int) int { return 1 + x }\n//refaster:after R\nfunc c(x int) int { return 1 + x }\n",
			want: "two after templates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules("rules.go", []byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRefactorStringsContains(t *testing.T) {
	src := `package p

import "strings"

func f(a, b string) bool {
	if strings.Index(a+"x", b) >= 0 {
		return true
	}
	return strings.Index(a, b) != -1
}
`
	want := `package p

import "strings"

func f(a, b string) bool {
	if strings.Contains(a+"x", b) {
		return true
	}
	return strings.Contains(a, b)
}
`
	got, ds := refactor(t, containsRules, src)
	if len(ds) != 2 || ds[0].Check != "StringsContains" || ds[0].Severity != diag.SevError {
		t.Fatalf("diagnostics = %+v", ds)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refactored (-want +got):\n%s", diff)
	}
}

func TestRefactorUsesLocalImportName(t *testing.T) {
	src := "package p\n\nimport str \"strings\"\n\nfunc f(a string) bool {\n\treturn str.Index(a, \"-\") >= 0\n}\n"
	want := "package p\n\nimport str \"strings\"\n\nfunc f(a string) bool {\n\treturn str.Contains(a, \"-\")\n}\n"
	got, _ := refactor(t, containsRules, src)
	if got != want {
		t.Fatalf("got:\n%s", got)
	}
}

func TestRefactorAddsAndDropsImports(t *testing.T) {
	rules := `package rules

import (
	"bytes"
	"strings"
)

//refaster:before BytesToStringCompare
func before(a, b []byte) bool {
	return strings.Compare(string(a), string(b)) == 0
}

//refaster:after BytesToStringCompare
func after(a, b []byte) bool {
	return bytes.Equal(a, b)
}
`
	src := "package p\n\nimport \"strings\"\n\nfunc f(x, y []byte) bool {\n\treturn strings.Compare(string(x), string(y)) == 0\n}\n"
	want := "package p\n\nimport \"bytes\"\n\nfunc f(x, y []byte) bool {\n\treturn bytes.Equal(x, y)\n}\n"
	got, _ := refactor(t, rules, src)
	if got != want {
		t.Fatalf("got:\n%s", got)
	}
}

func TestInlineParenthesizes(t *testing.T) {
	rules := `package rules

//refaster:before Double
func times(x int) int {
	return x * 2
}

//refaster:after Double
func plus(x int) int {
	return x + x
}
`
	src := "package p\n\nfunc f(a, b, m, k int) (int, int) {\n\treturn (a - b) * 2, m * 2 / k\n}\n"
	want := "package p\n\nfunc f(a, b, m, k int) (int, int) {\n\treturn a - b + (a - b), (m + m) / k\n}\n"
	got, _ := refactor(t, rules, src)
	if got != want {
		t.Fatalf("got:\n%s", got)
	}
}

const rangeRules = `package rules

//refaster:placeholder
func body(v int)

//refaster:before RangeValue
func loop(xs []int) {
	for i := 0; i < len(xs); i++ {
		body(xs[i])
	}
}

//refaster:after RangeValue
func ranged(xs []int) {
	for _, v := range xs {
		body(v)
	}
}
`

func TestRefactorPlaceholderBody(t *testing.T) {
	src := `package p

func sum(items []int) int {
	total := 0
	for j := 0; j < len(items); j++ {
		total += items[j]
		println(items[j])
	}
	return total
}
`
	want := `package p

func sum(items []int) int {
	total := 0
	for _, v := range items {
		total += v
		println(v)
	}
	return total
}
`
	got, _ := refactor(t, rangeRules, src)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refactored (-want +got):\n%s", diff)
	}
}

func TestPlaceholderRejectsEscapingLocal(t *testing.T) {
	src := `package p

func sum(items []int) int {
	total := 0
	for j := 0; j < len(items); j++ {
		total += items[j] * j
	}
	return total
}
`
	got, ds := refactor(t, rangeRules, src)
	if len(ds) != 0 || got != src {
		t.Fatalf("the body uses the index, expected no match; got %d findings", len(ds))
	}
}

func TestFreshLocalAvoidsCollision(t *testing.T) {
	src := `package p

func sum(items []int, v int) int {
	for j := 0; j < len(items); j++ {
		v += items[j]
	}
	return v
}
`
	got, _ := refactor(t, rangeRules, src)
	if !strings.Contains(got, "for _, v1 := range items {\n\t\tv += v1\n\t}") {
		t.Fatalf("got:\n%s", got)
	}
}

const lockRules = `package rules

import "sync"

//refaster:placeholder
func work()

//refaster:before DeferUnlock
func locked(mu *sync.Mutex) {
	mu.Lock()
	work()
	mu.Unlock()
}

//refaster:after DeferUnlock
func deferred(mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	work()
}
`

func TestStatementRun(t *testing.T) {
	src := `package p

func g() {
	m.Lock()
	a()
	b()
	m.Unlock()
	c()
}
`
	want := `package p

func g() {
	m.Lock()
	defer m.Unlock()
	a()
	b()
	c()
}
`
	got, ds := refactor(t, lockRules, src)
	if len(ds) != 1 {
		t.Fatalf("got %d findings", len(ds))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refactored (-want +got):\n%s", diff)
	}
}

func TestStatementRunEmptyPlaceholder(t *testing.T) {
	src := "package p\n\nfunc g() {\n\tm.Lock()\n\tm.Unlock()\n}\n"
	want := "package p\n\nfunc g() {\n\tm.Lock()\n\tdefer m.Unlock()\n}\n"
	got, _ := refactor(t, lockRules, src)
	if got != want {
		t.Fatalf("got:\n%s", got)
	}
}

func TestUnifyBacktracks(t *testing.T) {
	rules := mustRules(t, `package rules

//refaster:before Pick
func pick(x, y int) bool {
	return refaster.AnyOf(x+y, y+x) == x
}

//refaster:after Pick
func picked(x, y int) bool {
	return x+y == x
}
`)
	u := parseUnit(t, "package p\n\nvar v = a+b == b\n")
	cand := u.File.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec).Values[0]
	env, ok := NewUnifier(u).Unify(rules[0].Befores[0], cand, nil).First()
	if !ok {
		t.Fatal("no match")
	}
	x, _ := env.Expr("x")
	y, _ := env.Expr("y")
	if u.Text(x) != "b" || u.Text(y) != "a" {
		t.Fatalf("x = %s, y = %s", u.Text(x), u.Text(y))
	}
}

func TestUnifyRepeatedVariableMustAgree(t *testing.T) {
	rules := mustRules(t, `package rules

//refaster:before SelfSub
func self(x int) int {
	return x - x
}

//refaster:after SelfSub
func zero(x int) int {
	return 0
}
`)
	u := parseUnit(t, "package p\n\nvar a, b = f(1) - f(1), f(1) - f(2)\n")
	vals := u.File.Decls[0].(*ast.GenDecl).Specs[0].(*ast.ValueSpec).Values
	un := NewUnifier(u)
	if _, ok := un.Unify(rules[0].Befores[0], vals[0], nil).First(); !ok {
		t.Fatal("equal operands must unify")
	}
	if _, ok := un.Unify(rules[0].Befores[0], vals[1], nil).First(); ok {
		t.Fatal("different operands must not unify")
	}
}

const orZeroRules = `package rules

import "cmp"

//refaster:placeholder
func parsed() int

//refaster:before OrZero summary="cmp.Or with a zero fallback is its first operand"
func orZero() int {
	return cmp.Or(parsed(), 0)
}

//refaster:after OrZero
func value() int {
	return parsed()
}
`

// A parse-or-default call whose default is the zero value collapses to the
// parse, and the import only the before form needed goes away.
func TestRefactorParseOrZero(t *testing.T) {
	const atoi = `
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
`
	tests := []struct {
		name     string
		src      string
		want     string
		findings int
	}{
		{
			name:     "import dropped",
			src:      "package p\n\nimport (\n\t\"cmp\"\n\t\"strconv\"\n)\n\nfunc port(s string) int {\n\treturn cmp.Or(atoi(s), 0)\n}\n" + atoi,
			want:     "package p\n\nimport \"strconv\"\n\nfunc port(s string) int {\n\treturn atoi(s)\n}\n" + atoi,
			findings: 1,
		},
		{
			name: "import still used",
			src: "package p\n\nimport (\n\t\"cmp\"\n\t\"strconv\"\n)\n\nfunc port(s string) int {\n\treturn cmp.Or(atoi(s), 0)\n}\n\n" +
				"func portOr(s string) int {\n\treturn cmp.Or(atoi(s), 8080)\n}\n" + atoi,
			want: "package p\n\nimport (\n\t\"cmp\"\n\t\"strconv\"\n)\n\nfunc port(s string) int {\n\treturn atoi(s)\n}\n\n" +
				"func portOr(s string) int {\n\treturn cmp.Or(atoi(s), 8080)\n}\n" + atoi,
			findings: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ds := refactor(t, orZeroRules, tt.src)
			if len(ds) != tt.findings {
				t.Fatalf("got %d findings, want %d", len(ds), tt.findings)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("refactored (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaceholderIdentity(t *testing.T) {
	const tmpl = `package rules

//refaster:placeholder%s
func f(v int) int

//refaster:before Swap
func b(x int) int {
	return x + f(x)
}

//refaster:after Swap
func a(x int) int {
	return f(x) + x
}
`
	src := "package p\n\nfunc g(a int) (int, int) {\n\treturn a + a, a + a*2\n}\n"

	want := "package p\n\nfunc g(a int) (int, int) {\n\treturn a + a, a*2 + a\n}\n"
	got, ds := refactor(t, strings.Replace(tmpl, "%s", "", 1), src)
	if got != want || len(ds) != 1 {
		t.Fatalf("without allowIdentity: %d findings, got:\n%s", len(ds), got)
	}

	// a + a now matches too and rewrites to itself
	got, ds = refactor(t, strings.Replace(tmpl, "%s", " allowIdentity", 1), src)
	if got != want || len(ds) != 2 {
		t.Fatalf("with allowIdentity: %d findings, got:\n%s", len(ds), got)
	}
}

// Inlining the before template under a match reproduces the candidate.
func TestUnifierSoundness(t *testing.T) {
	rules := mustRules(t, containsRules)
	src := "package p\n\nimport \"strings\"\n\nvar (\n\tv1 = strings.Index(a+\"x\", b) >= 0\n\tv2 = strings.Index(s[1:], f(t)) != -1\n)\n"
	u := parseUnit(t, src)
	un := NewUnifier(u)
	for _, spec := range u.File.Decls[1].(*ast.GenDecl).Specs {
		cand := spec.(*ast.ValueSpec).Values[0]
		matched := false
		for _, before := range rules[0].Befores {
			env, ok := un.Unify(before, cand, nil).First()
			if !ok {
				continue
			}
			matched = true
			in, err := NewInliner(u, rules[0], env, []ast.Node{cand}).Inline(before)
			if err != nil {
				t.Fatalf("Inline: %v", err)
			}
			back, err := parser.ParseExpr(in.Text)
			if err != nil {
				t.Fatalf("ParseExpr(%q): %v", in.Text, err)
			}
			if !astequal.Expr(back, cand) {
				t.Fatalf("round trip %q != %q", in.Text, u.Text(cand))
			}
		}
		if !matched {
			t.Fatalf("%s did not match", u.Text(cand))
		}
	}
}

func TestChoiceIsLazy(t *testing.T) {
	pulled := 0
	c := FlatMap(Of(1, 2, 3), func(v int) Choice[int] {
		pulled++
		return Of(v*10, v*10+1)
	})
	if got, ok := c.First(); !ok || got != 10 || pulled != 1 {
		t.Fatalf("First = %d, pulled %d", got, pulled)
	}
	if got := c.Filter(func(v int) bool { return v > 20 }).Take(2); !cmp.Equal(got, []int{21, 30}) {
		t.Fatalf("Take = %v", got)
	}
	built := false
	lazy := Lazily(func() Choice[int] { built = true; return Of(1) })
	if built {
		t.Fatal("Lazily built eagerly")
	}
	if _, ok := Concat(Of(0), lazy).First(); !ok || built {
		t.Fatal("Concat pulled past the first alternative")
	}
}

func TestEnvIsPersistent(t *testing.T) {
	var empty *Env
	a := empty.Bind(Key{KeyVar, "x"}, LocalBinding{Name: "a"})
	b := a.Bind(Key{KeyVar, "y"}, LocalBinding{Name: "b"})
	c := a.Bind(Key{KeyVar, "y"}, LocalBinding{Name: "c"})
	if empty.Len() != 0 || a.Len() != 1 || b.Len() != 2 {
		t.Fatalf("lengths %d %d %d", empty.Len(), a.Len(), b.Len())
	}
	if _, ok := a.Lookup(Key{KeyVar, "y"}); ok {
		t.Fatal("extending leaked into the parent")
	}
	yb, _ := b.Lookup(Key{KeyVar, "y"})
	yc, _ := c.Lookup(Key{KeyVar, "y"})
	if yb.(LocalBinding).Name != "b" || yc.(LocalBinding).Name != "c" {
		t.Fatal("sibling environments interfere")
	}
}

func TestBundleRoundTrip(t *testing.T) {
	b, err := Compile(map[string][]byte{
		"contains.go": []byte(containsRules),
		"lock.go":     []byte(lockRules),
	}, []string{"contains.go", "lock.go"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadBundle(&buf)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	rules, err := back.Rules()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range rules {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"StringsContains", "DeferUnlock"}, names); diff != "" {
		t.Fatalf("rules (-want +got):\n%s", diff)
	}
}

func TestBundleRejectsDuplicatesAndOldSchema(t *testing.T) {
	_, err := Compile(map[string][]byte{"a.go": []byte(containsRules), "b.go": []byte(containsRules)}, []string{"a.go", "b.go"})
	if err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("err = %v", err)
	}

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&Bundle{Schema: bundleSchemaVersion + 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadBundle(&buf); !errors.Is(err, ErrBundleSchema) {
		t.Fatalf("err = %v", err)
	}
}
