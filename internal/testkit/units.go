// Package testkit drives checks over in-memory sources for tests.
package testkit

import (
	"go/importer"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"bugcheck/internal/check"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

type input struct {
	name string
	text string
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

// loader turns sources into units, sharing one importer for typed runs.
type loader struct {
	files *source.FileSet
	typed bool
	imp   types.Importer
}

func newLoader(typed bool) *loader {
	return &loader{files: source.NewFileSet(), typed: typed}
}

func (l *loader) load(in input) (*tree.Unit, error) {
	id := l.files.AddVirtual(in.name, []byte(in.text))
	if !l.typed {
		return tree.Parse(l.files, id)
	}
	if l.imp == nil {
		l.imp = importer.ForCompiler(token.NewFileSet(), "source", nil)
	}
	return tree.Check(l.files, id, l.imp)
}

// supplier builds the registry of the checks under test with args applied
// the way the command line applies them.
func supplier(t testing.TB, checks []*check.Check, args []string) *scanner.Supplier {
	t.Helper()
	s, err := scanner.FromChecks(checks...)
	if err != nil {
		t.Fatalf("register checks: %v", err)
	}
	if len(args) == 0 {
		return s
	}
	o, rest, err := scanner.ProcessArgs(args)
	if err != nil {
		t.Fatalf("process args: %v", err)
	}
	if len(rest) > 0 {
		t.Fatalf("unrecognised args: %q", rest)
	}
	s, err = s.ApplyOverrides(o)
	if err != nil {
		t.Fatalf("apply args: %v", err)
	}
	return s
}
