package fix

import (
	"errors"
	"fmt"

	"bugcheck/internal/diag"
)

var (
	// ErrNoFixes is returned when no fixes were applied.
	ErrNoFixes = errors.New("no applicable fixes found")
	// ErrSyntheticNode is returned when an edit targets a node without source text.
	ErrSyntheticNode = errors.New("cannot edit synthetic node")
	// ErrAmbiguousImport is returned when a required import name is already
	// taken by a different path.
	ErrAmbiguousImport = errors.New("ambiguous import")
	// ErrUnparsable is returned when edited text can no longer be parsed for
	// import organisation.
	ErrUnparsable = errors.New("edited source does not parse")
)

// OverlapError reports two replacements of one fix that cover the same text.
type OverlapError struct {
	First, Second diag.Replacement
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("replacement %s overlaps %s", describe(e.Second), describe(e.First))
}

// ConflictError reports replacements of two different fixes that collide.
type ConflictError struct {
	FirstFix, SecondFix string
	First, Second       diag.Replacement
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("fix %q: replacement %s conflicts with fix %q: replacement %s",
		e.SecondFix, describe(e.Second), e.FirstFix, describe(e.First))
}

func describe(r diag.Replacement) string {
	return fmt.Sprintf("[%d,%d) %q", r.Span.Start, r.Span.End, r.NewText)
}
