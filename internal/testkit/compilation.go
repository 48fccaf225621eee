package testkit

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

// markerRE finds expectations. A marker applies to the line below it.
var markerRE = regexp.MustCompile(`//\s*BUG: Diagnostic contains:\s*(.*?)\s*$`)

// CompilationHelper runs checks over sources annotated with
//
//	// BUG: Diagnostic contains: <text>
//
// markers and verifies that a diagnostic containing text is reported on the
// line following each marker. By default every other diagnostic fails the
// test.
type CompilationHelper struct {
	t        testing.TB
	checks   []*check.Check
	args     []string
	sources  []input
	typed    bool
	expectNo bool
	matchAll bool
}

func NewCompilationHelper(t testing.TB, checks ...*check.Check) *CompilationHelper {
	return &CompilationHelper{t: t, checks: checks, matchAll: true}
}

// AddSourceLines adds a file made of lines.
func (h *CompilationHelper) AddSourceLines(name string, lines ...string) *CompilationHelper {
	h.sources = append(h.sources, input{name: name, text: joinLines(lines)})
	return h
}

// SetArgs sets command-line style options, e.g. "--check=Name:OFF".
func (h *CompilationHelper) SetArgs(args ...string) *CompilationHelper {
	h.args = args
	return h
}

// WithTypes type-checks every file before scanning.
func (h *CompilationHelper) WithTypes() *CompilationHelper {
	h.typed = true
	return h
}

// ExpectNoDiagnostics asserts the sources are clean. It cannot be combined
// with markers.
func (h *CompilationHelper) ExpectNoDiagnostics() *CompilationHelper {
	h.expectNo = true
	return h
}

// MatchAllDiagnostics controls whether diagnostics without a marker fail
// the test.
func (h *CompilationHelper) MatchAllDiagnostics(all bool) *CompilationHelper {
	h.matchAll = all
	return h
}

type marker struct {
	file string
	line int
	text string
	hit  bool
}

// DoTest scans the sources and reports every mismatch.
func (h *CompilationHelper) DoTest() {
	t := h.t
	t.Helper()
	if len(h.sources) == 0 {
		t.Fatalf("no sources added")
	}
	sc := supplier(t, h.checks, h.args).Scanner()
	l := newLoader(h.typed)

	var (
		markers []*marker
		found   []*finding
	)
	for _, src := range h.sources {
		markers = append(markers, parseMarkers(src)...)
		u, err := l.load(src)
		if err != nil {
			t.Fatalf("%s: %v", src.name, err)
		}
		if err := CheckSpanInvariants(u); err != nil {
			t.Fatalf("%s: %v", src.name, err)
		}
		_, err = sc.Scan(context.Background(), u, diag.ReporterFunc(func(d *diag.Diagnostic) {
			if err := CheckDiagnosticInvariants(l.files, d); err != nil {
				t.Errorf("%s: %s: %v", src.name, d.Check, err)
			}
			start, _ := l.files.Resolve(d.Primary)
			found = append(found, &finding{file: src.name, line: int(start.Line), d: d})
		}))
		if err != nil {
			t.Fatalf("%s: scan: %v", src.name, err)
		}
	}

	switch {
	case h.expectNo && len(markers) > 0:
		t.Fatalf("ExpectNoDiagnostics with %d diagnostic markers", len(markers))
	case !h.expectNo && len(markers) == 0:
		t.Fatalf("no diagnostic markers; use ExpectNoDiagnostics for clean sources")
	}

	for _, f := range found {
		if f.d.Internal {
			t.Errorf("%s: check failed: %s", f, f.d.Message)
			f.claimed = true
		}
	}
	for _, m := range markers {
		for _, f := range found {
			if f.claimed || f.file != m.file || f.line != m.line {
				continue
			}
			if strings.Contains(f.d.Check+": "+f.d.Message, m.text) {
				f.claimed, m.hit = true, true
				break
			}
		}
		if !m.hit {
			t.Errorf("%s:%d: expected a diagnostic containing %q; on that line: %s",
				m.file, m.line, m.text, onLine(found, m.file, m.line))
		}
	}
	if h.matchAll {
		for _, f := range found {
			if !f.claimed {
				t.Errorf("%s: unexpected diagnostic %s: %s", f, f.d.Check, f.d.Message)
			}
		}
	}
}

type finding struct {
	file    string
	line    int
	d       *diag.Diagnostic
	claimed bool
}

func (f *finding) String() string { return fmt.Sprintf("%s:%d", f.file, f.line) }

func parseMarkers(src input) []*marker {
	var out []*marker
	for i, line := range strings.Split(src.text, "\n") {
		if m := markerRE.FindStringSubmatch(line); m != nil {
			out = append(out, &marker{file: src.name, line: i + 2, text: m[1]})
		}
	}
	return out
}

func onLine(found []*finding, file string, line int) string {
	var msgs []string
	for _, f := range found {
		if f.file == file && f.line == line {
			msgs = append(msgs, fmt.Sprintf("%q", f.d.Check+": "+f.d.Message))
		}
	}
	if len(msgs) == 0 {
		return "none"
	}
	return strings.Join(msgs, ", ")
}
