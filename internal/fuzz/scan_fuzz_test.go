package fuzztests

import (
	"context"
	"testing"
	"time"

	"bugcheck/internal/checks"
	"bugcheck/internal/diag"
	"bugcheck/internal/fix"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/testkit"
	"bugcheck/internal/tree"
)

// scanTimeout bounds one scan; exceeding it points at a matcher that loops.
const scanTimeout = 5 * time.Second

func allChecksScanner(f *testing.F) *scanner.Scanner {
	f.Helper()
	sup, err := checks.Defaults().ApplyOverrides(&scanner.Options{EnableAllChecksAsWarnings: true})
	if err != nil {
		f.Fatalf("enable checks: %v", err)
	}
	return sup.Scanner()
}

func parseInput(t *testing.T, input []byte) (*source.FileSet, *tree.Unit) {
	t.Helper()
	files := source.NewFileSet()
	id := files.AddVirtual("fuzz.go", input)
	u, err := tree.Parse(files, id)
	if err != nil {
		t.Skip("not Go source")
	}
	return files, u
}

func FuzzScanKeepsInvariants(f *testing.F) {
	addCorpusSeeds(f)
	sc := allChecksScanner(f)

	f.Fuzz(func(t *testing.T, input []byte) {
		files, u := parseInput(t, clampInput(input))
		if err := testkit.CheckSpanInvariants(u); err != nil {
			t.Fatalf("syntax tree: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		var diags []*diag.Diagnostic
		_, err := sc.Scan(ctx, u, diag.ReporterFunc(func(d *diag.Diagnostic) {
			diags = append(diags, d)
		}))
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		for _, d := range diags {
			if d.Internal {
				t.Fatalf("check %s failed: %s", d.Check, d.Message)
			}
			if err := testkit.CheckDiagnosticInvariants(files, d); err != nil {
				t.Fatalf("diagnostic %s: %v", d.Check, err)
			}
		}
	})
}

// FuzzApplyFixes applies every suggested fix on its own. Errors are fine as
// long as nothing panics.
func FuzzApplyFixes(f *testing.F) {
	addCorpusSeeds(f)
	sc := allChecksScanner(f)

	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		_, u := parseInput(t, input)
		var diags []*diag.Diagnostic
		if _, err := sc.Scan(context.Background(), u, diag.ReporterFunc(func(d *diag.Diagnostic) {
			diags = append(diags, d)
		})); err != nil {
			t.Fatalf("scan: %v", err)
		}
		for _, d := range diags {
			for _, fx := range d.Fixes {
				_, _ = fix.ApplyToSource("fuzz.go", input, []diag.Fix{fx}, fix.ImportOrderStdlibFirst)
			}
		}
	})
}
