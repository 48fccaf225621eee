package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bugcheck/internal/checks"
	"bugcheck/internal/scanner"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

type found struct {
	File  string
	Check string
}

func summarize(t *testing.T, res *Result, base string) []found {
	t.Helper()
	var out []found
	for _, d := range res.Diagnostics() {
		rel, err := filepath.Rel(base, res.Files.Get(d.Primary.File).Path)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, found{File: filepath.ToSlash(rel), Check: d.Check})
	}
	return out
}

const selfAssignSrc = "package p\n\nfunc f(x int) {\n\tx = x\n}\n"

var sampleTree = map[string]string{
	"a.go":          selfAssignSrc,
	"sub/b.go":      "package sub\n\nfunc g(s []int) bool { return len(s) >= 0 }\n",
	"sub/c.go":      "package sub\n\nfunc h(x int) {\n\tif x > 0 {\n\t}\n}\n",
	".hidden/d.go":  selfAssignSrc,
	"vendor/v/e.go": selfAssignSrc,
	"gen/f.go":      selfAssignSrc,
	"notes.txt":     "x = x",
}

func TestAnalyzeDir(t *testing.T) {
	dir := writeTree(t, sampleTree)
	res, err := AnalyzeDir(context.Background(), dir, Options{Jobs: 2, Excludes: []string{"gen/**"}})
	if err != nil {
		t.Fatalf("AnalyzeDir: %v", err)
	}
	want := []found{
		{File: "a.go", Check: "SelfAssignment"},
		{File: "sub/b.go", Check: "SizeGreaterThanOrEqualsZero"},
	}
	if diff := cmp.Diff(want, summarize(t, res, dir)); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
	if len(res.Units) != 3 || !res.HasErrors() {
		t.Fatalf("units %d, errors %v", len(res.Units), res.HasErrors())
	}
	if res.Stats().Matches != 2 {
		t.Fatalf("stats %+v", res.Stats())
	}
}

func TestAnalyzeDirRejectsBadExclude(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": selfAssignSrc})
	if _, err := AnalyzeDir(context.Background(), dir, Options{Excludes: []string{"[a-"}}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOverridesReachTheScan(t *testing.T) {
	dir := writeTree(t, sampleTree)
	o, _, err := scanner.ProcessArgs([]string{"--check=EmptyIf:ERROR", "--check=SelfAssignment:OFF"})
	if err != nil {
		t.Fatal(err)
	}
	sup, err := checks.Defaults().ApplyOverrides(o)
	if err != nil {
		t.Fatal(err)
	}
	res, err := AnalyzeDir(context.Background(), dir, Options{Supplier: sup, Excludes: []string{"gen/**"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []found{
		{File: "sub/b.go", Check: "SizeGreaterThanOrEqualsZero"},
		{File: "sub/c.go", Check: "EmptyIf"},
	}
	if diff := cmp.Diff(want, summarize(t, res, dir)); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
}

func TestSyntaxErrorsBecomeDiagnostics(t *testing.T) {
	dir := writeTree(t, map[string]string{"bad.go": "package p\n\nfunc f( {\n"})
	res, err := AnalyzeFile(context.Background(), filepath.Join(dir, "bad.go"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Units) != 1 || res.Units[0].Err == nil {
		t.Fatalf("units %+v", res.Units)
	}
	ds := res.Diagnostics()
	if len(ds) == 0 || ds[0].Check != SyntaxCheck {
		t.Fatalf("diagnostics %+v", ds)
	}
}

func TestAnalyzeSource(t *testing.T) {
	res, err := AnalyzeSource(context.Background(), "<stdin>", []byte(selfAssignSrc), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if ds := res.Diagnostics(); len(ds) != 1 || ds[0].Check != "SelfAssignment" {
		t.Fatalf("diagnostics %+v", ds)
	}
}

func TestRefactorWritesBelowBaseDir(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.go":     selfAssignSrc,
		"sub/b.go": "package sub\n\nfunc g(s []int) bool { return len(s) >= 0 }\n",
	})
	res, err := AnalyzeDir(context.Background(), dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	applied, err := Refactor(res, scanner.PatchOptions{Checks: []string{"SizeGreaterThanOrEqualsZero"}, BaseDir: out})
	if err != nil {
		t.Fatalf("Refactor: %v", err)
	}
	if len(applied.Applied) != 1 {
		t.Fatalf("applied %+v", applied.Applied)
	}
	got, err := os.ReadFile(filepath.Join(out, "sub", "b.go"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "package sub\n\nfunc g(s []int) bool { return len(s) > 0 }\n"; string(got) != want {
		t.Fatalf("got %q", got)
	}
	if _, err := os.Stat(filepath.Join(out, "a.go")); !os.IsNotExist(err) {
		t.Fatalf("a.go was written: %v", err)
	}
}

const containsRule = `package rules

import "strings"

//refaster:before StringsContains
func indexNotNegative(s, sub string) bool { return strings.Index(s, sub) >= 0 }

//refaster:after StringsContains
func contains(s, sub string) bool { return strings.Contains(s, sub) }
`

func TestRefactorAppliesRulesInPlace(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"rules/contains.go.rule": containsRule,
		"a.go":                   "package p\n\nimport \"strings\"\n\nfunc f(s string) bool {\n\treturn strings.Index(s, \"x\") >= 0\n}\n",
	})
	rules := filepath.Join(dir, "rules", "contains.go.rule")
	res, err := AnalyzeFile(context.Background(), filepath.Join(dir, "a.go"), Options{Rules: []string{rules}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Refactor(res, scanner.PatchOptions{Rules: []string{rules}, InPlace: true}); err != nil {
		t.Fatalf("Refactor: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.go"))
	if err != nil {
		t.Fatal(err)
	}
	want := "package p\n\nimport \"strings\"\n\nfunc f(s string) bool {\n\treturn strings.Contains(s, \"x\")\n}\n"
	if string(got) != want {
		t.Fatalf("got:\n%s", got)
	}
}

func TestResultCacheServesUnchangedFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": selfAssignSrc, "b.go": "package p\n"})
	cache, err := NewResultCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Cache: cache}
	first, err := AnalyzeDir(context.Background(), dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := AnalyzeDir(context.Background(), dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range second.Units {
		if !u.Cached {
			t.Fatalf("%s was not served from the cache", u.Path)
		}
	}
	if diff := cmp.Diff(summarize(t, first, dir), summarize(t, second, dir)); diff != "" {
		t.Fatalf("cached diagnostics differ (-first +second):\n%s", diff)
	}
	if second.Diagnostics()[0].Primary.File != second.Units[0].FileID {
		t.Fatal("cached spans were not rebound")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	third, err := AnalyzeDir(context.Background(), dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.Units[0].Cached {
		t.Fatal("cache survived DropAll")
	}
}

func TestProgressEvents(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": selfAssignSrc, "b.go": "package p\n"})
	ch := make(chan Event, 64)
	if _, err := AnalyzeDir(context.Background(), dir, Options{Progress: ChannelSink{Ch: ch}}); err != nil {
		t.Fatal(err)
	}
	close(ch)
	done := 0
	for ev := range ch {
		if ev.Stage == StageScan && ev.Status == StatusDone {
			done++
		}
	}
	if done != 2 {
		t.Fatalf("done events = %d", done)
	}
}

func TestCancelledRun(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.go": selfAssignSrc})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AnalyzeDir(ctx, dir, Options{}); err == nil {
		t.Fatal("expected cancellation")
	}
}

func TestAnalyzePackages(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	dir := writeTree(t, map[string]string{
		"go.mod": "module example.com/m\n\ngo 1.22\n",
		"m.go":   "package m\n\nimport \"log/slog\"\n\nfunc F() {\n\tslog.Info(\"msg\", \"key\")\n}\n",
	})
	res, err := AnalyzePackages(context.Background(), dir, []string{"./..."}, Options{Types: TypesPackages})
	if err != nil {
		t.Fatalf("AnalyzePackages: %v", err)
	}
	want := []found{{File: "m.go", Check: "ShouldHaveEvenArgs"}}
	if diff := cmp.Diff(want, summarize(t, res, dir)); diff != "" {
		t.Fatalf("diagnostics (-want +got):\n%s", diff)
	}
}

func TestParseTypeMode(t *testing.T) {
	for in, want := range map[string]TypeMode{"": TypesNone, "none": TypesNone, "Packages": TypesPackages} {
		got, err := ParseTypeMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseTypeMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseTypeMode("ssa"); err == nil {
		t.Fatal("expected an error")
	}
}
