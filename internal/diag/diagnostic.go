package diag

import (
	"bugcheck/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

// Replacement rewrites the half-open byte range Span with NewText.
// A zero-width span is an insertion.
type Replacement struct {
	Span    source.Span
	NewText string
}

// Applicability indicates how safe it is to apply a fix automatically.
type Applicability uint8

const (
	FixApplicabilityAlwaysSafe Applicability = iota
	FixApplicabilitySafeWithHeuristics
	FixApplicabilityManualReview
)

func (a Applicability) String() string {
	switch a {
	case FixApplicabilityAlwaysSafe:
		return "always-safe"
	case FixApplicabilitySafeWithHeuristics:
		return "safe-with-heuristics"
	case FixApplicabilityManualReview:
		return "manual-review"
	}
	return "unknown"
}

// Fix is one way to resolve a diagnostic. Replacements never overlap and are
// kept in descending start order.
type Fix struct {
	ID              string
	Title           string
	Applicability   Applicability
	IsPreferred     bool
	Replacements    []Replacement
	ImportsToAdd    []string // "path" or "name path"
	ImportsToRemove []string
}

// IsEmpty reports whether applying the fix would change nothing.
func (f *Fix) IsEmpty() bool {
	return f == nil || len(f.Replacements) == 0 && len(f.ImportsToAdd) == 0 && len(f.ImportsToRemove) == 0
}

// Diagnostic is the outcome of one check firing on one node.
type Diagnostic struct {
	Check    string
	Severity Severity
	Message  string
	Primary  source.Span
	Link     string
	Notes    []Note
	Fixes    []Fix
	// Internal marks diagnostics produced when a check failed instead of
	// reporting a finding about the code.
	Internal bool
}

func New(check string, sev Severity, primary source.Span, msg string) *Diagnostic {
	return &Diagnostic{
		Check:    check,
		Severity: sev,
		Primary:  primary,
		Message:  msg,
	}
}

func (d *Diagnostic) WithNote(sp source.Span, msg string) *Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}

func (d *Diagnostic) WithFix(fix Fix) *Diagnostic {
	d.Fixes = append(d.Fixes, fix)
	return d
}
