package diag

import (
	"testing"

	"bugcheck/internal/source"
)

func TestFormatGoldenDiagnostics(t *testing.T) {
	fs := source.NewFileSet()
	fs.SetBaseDir("/workspace")

	userFile := fs.Add("/workspace/testdata/golden/sample.go", []byte("a\nb\n"), 0)
	vendored := fs.Add("/workspace/vendor/x/helper.go", []byte("x\n"), 0)

	diags := []*Diagnostic{
		{
			Severity: SevError,
			Check:    "SelfAssignment",
			Message:  "first line\nsecond",
			Primary:  source.Span{File: userFile, Start: 0, End: 1},
			Notes: []Note{
				{Span: source.Span{File: vendored, Start: 0, End: 0}, Msg: "skip me"},
				{Span: source.Span{File: userFile, Start: 2, End: 3}, Msg: "note line"},
			},
		},
		{
			Severity: SevWarning,
			Check:    "EmptyIf",
			Message:  "another",
			Primary:  source.Span{File: userFile, Start: 2, End: 3},
		},
	}

	expected := "error [SelfAssignment] testdata/golden/sample.go:1:1 first line second\n" +
		"note [SelfAssignment] testdata/golden/sample.go:2:1 note line\n" +
		"warning [EmptyIf] testdata/golden/sample.go:2:1 another"

	if got := FormatGoldenDiagnostics(diags, fs, true); got != expected {
		t.Fatalf("unexpected golden diagnostics:\nwant:\n%s\n\ngot:\n%s", expected, got)
	}
}
