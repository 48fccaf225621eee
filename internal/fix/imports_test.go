package fix

import (
	"errors"
	"strings"
	"testing"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

func TestOrganizeImports(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		adds    []string
		removes []string
		order   ImportOrder
		want    string
	}{
		{
			name:  "add to file without imports",
			src:   "package p\n\nfunc f() {}\n",
			adds:  []string{"strings"},
			order: ImportOrderStdlibFirst,
			want:  "package p\n\nimport \"strings\"\n\nfunc f() {}\n",
		},
		{
			name:  "stdlib first groups",
			src:   "package p\n\nimport \"os\"\n\nvar _ = os.Args\n",
			adds:  []string{"github.com/x/y", "bytes"},
			order: ImportOrderStdlibFirst,
			want:  "package p\n\nimport (\n\t\"bytes\"\n\t\"os\"\n\n\t\"github.com/x/y\"\n)\n\nvar _ = os.Args\n",
		},
		{
			name:  "alphabetical single group",
			src:   "package p\n\nimport \"os\"\n\nvar _ = os.Args\n",
			adds:  []string{"github.com/x/y", "bytes"},
			order: ImportOrderAlphabetical,
			want:  "package p\n\nimport (\n\t\"bytes\"\n\t\"github.com/x/y\"\n\t\"os\"\n)\n\nvar _ = os.Args\n",
		},
		{
			name:    "remove unused keeps used",
			src:     "package p\n\nimport (\n\t\"os\"\n\t\"strings\" // for Index\n)\n\nvar _ = os.Args\n",
			removes: []string{"strings", "os"},
			order:   ImportOrderStdlibFirst,
			want:    "package p\n\nimport \"os\"\n\nvar _ = os.Args\n",
		},
		{
			name:    "remove last import",
			src:     "package p\n\nimport \"strings\"\n\nvar x = 1\n",
			removes: []string{"strings"},
			order:   ImportOrderStdlibFirst,
			want:    "package p\n\nvar x = 1\n",
		},
		{
			name:    "versioned paths use their package name",
			src:     "package p\n\nimport (\n\t\"math/rand/v2\"\n\n\t\"gopkg.in/yaml.v3\"\n)\n\nvar _, _ = rand.IntN, yaml.Marshal\n",
			removes: []string{"math/rand/v2", "gopkg.in/yaml.v3"},
			order:   ImportOrderStdlibFirst,
			want:    "package p\n\nimport (\n\t\"math/rand/v2\"\n\n\t\"gopkg.in/yaml.v3\"\n)\n\nvar _, _ = rand.IntN, yaml.Marshal\n",
		},
		{
			name:    "unused named import removed",
			src:     "package p\n\nimport (\n\t\"os\"\n\tstr \"strings\"\n)\n\nvar _ = os.Args\nvar strings = 1\n",
			removes: []string{"strings"},
			order:   ImportOrderStdlibFirst,
			want:    "package p\n\nimport \"os\"\n\nvar _ = os.Args\nvar strings = 1\n",
		},
		{
			name:  "named import kept verbatim",
			src:   "package p\n\nimport str \"strconv\"\n\nvar _ = str.Itoa\n",
			adds:  []string{"errors"},
			order: ImportOrderStdlibFirst,
			want:  "package p\n\nimport (\n\t\"errors\"\n\tstr \"strconv\"\n)\n\nvar _ = str.Itoa\n",
		},
		{
			name:  "already imported is a no-op",
			src:   "package p\n\nimport \"os\"\n",
			adds:  []string{"os"},
			order: ImportOrderAlphabetical,
			want:  "package p\n\nimport \"os\"\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := OrganizeImports("p.go", []byte(tt.src), tt.adds, tt.removes, tt.order)
			if err != nil {
				t.Fatalf("OrganizeImports: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestOrganizeImportsAmbiguous(t *testing.T) {
	src := "package p\n\nimport \"math/rand\"\n\nvar _ = rand.Int\n"
	_, _, err := OrganizeImports("p.go", []byte(src), []string{"crypto/rand"}, nil, ImportOrderStdlibFirst)
	if !errors.Is(err, ErrAmbiguousImport) {
		t.Fatalf("err = %v, want ErrAmbiguousImport", err)
	}
}

func TestParseImportOrder(t *testing.T) {
	if o, err := ParseImportOrder("alphabetical"); err != nil || o != ImportOrderAlphabetical {
		t.Fatalf("alphabetical: %v %v", o, err)
	}
	if o, err := ParseImportOrder(""); err != nil || o != ImportOrderStdlibFirst {
		t.Fatalf("default: %v %v", o, err)
	}
	if _, err := ParseImportOrder("random"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyToSourceConflict(t *testing.T) {
	src := []byte("package p\n\nvar x = 1 + 2\n")
	first := diag.Fix{ID: "one", Replacements: []diag.Replacement{
		{Span: source.Span{Start: 19, End: 24}, NewText: "3"},
	}}
	second := diag.Fix{ID: "two", Replacements: []diag.Replacement{
		{Span: source.Span{Start: 23, End: 24}, NewText: "5"},
	}}
	_, err := ApplyToSource("p.go", src, []diag.Fix{first, second}, ImportOrderStdlibFirst)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if ce.FirstFix != "one" || ce.SecondFix != "two" || ce.First.Span.Start != 19 || ce.Second.Span.Start != 23 {
		t.Fatalf("conflict details: %+v", ce)
	}

	res, err := ApplyToSource("p.go", src, []diag.Fix{first}, ImportOrderStdlibFirst)
	if err != nil {
		t.Fatalf("single fix: %v", err)
	}
	if string(res.Text) != "package p\n\nvar x = 3\n" {
		t.Fatalf("single fix: %q", res.Text)
	}
}

func TestApplyToSourceDropsImport(t *testing.T) {
	src := []byte("package p\n\nimport \"strings\"\n\nvar ok = strings.Contains(s, \"x\")\n")
	f := diag.Fix{
		ID:              "drop",
		Replacements:    []diag.Replacement{{Span: source.Span{Start: 38, End: 62}, NewText: "true"}},
		ImportsToRemove: []string{"strings"},
	}
	res, err := ApplyToSource("p.go", src, []diag.Fix{f}, ImportOrderStdlibFirst)
	if err != nil {
		t.Fatalf("ApplyToSource: %v", err)
	}
	if want := "package p\n\nvar ok = true\n"; string(res.Text) != want {
		t.Fatalf("got:\n%s\nwant:\n%s", res.Text, want)
	}
	if len(res.Imports.Removed) != 1 || res.Imports.Removed[0] != "strings" {
		t.Fatalf("removed = %v", res.Imports.Removed)
	}
}

func TestUnifiedDiff(t *testing.T) {
	d, err := UnifiedDiff("p.go", []byte("a\nb\n"), []byte("a\nc\n"))
	if err != nil {
		t.Fatalf("UnifiedDiff: %v", err)
	}
	for _, want := range []string{"--- a/p.go", "+++ b/p.go", "\n-b\n", "\n+c\n"} {
		if !strings.Contains(d, want) {
			t.Fatalf("diff missing %q:\n%s", want, d)
		}
	}
	if d, _ := UnifiedDiff("p.go", []byte("x"), []byte("x")); d != "" {
		t.Fatalf("identical input produced %q", d)
	}
}
