package check

import (
	"bugcheck/internal/diag"
)

type resultKind uint8

const (
	resultNoMatch resultKind = iota
	resultMatch
	resultFailed
)

// Result is what a match function returns for one node: nothing, exactly one
// diagnostic, or a failure that the scanner reports in place of a finding.
type Result struct {
	kind resultKind
	diag *diag.Diagnostic
	err  error
}

// NoMatch is the common outcome; it is not an error.
func NoMatch() Result {
	return Result{}
}

// Match wraps a diagnostic. A nil diagnostic is treated as NoMatch.
func Match(d *diag.Diagnostic) Result {
	if d == nil {
		return NoMatch()
	}
	return Result{kind: resultMatch, diag: d}
}

// Failed reports that the check could not analyse the node.
func Failed(err error) Result {
	if err == nil {
		return NoMatch()
	}
	return Result{kind: resultFailed, err: err}
}

func (r Result) IsMatch() bool  { return r.kind == resultMatch }
func (r Result) IsFailed() bool { return r.kind == resultFailed }

// Diagnostic returns the reported diagnostic, nil unless IsMatch.
func (r Result) Diagnostic() *diag.Diagnostic { return r.diag }

// Err returns the failure, nil unless IsFailed.
func (r Result) Err() error { return r.err }
