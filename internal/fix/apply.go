package fix

import (
	"errors"
	"fmt"
	"slices"

	"bugcheck/internal/diag"
)

// SourceResult is the outcome of applying a set of fixes to one file.
type SourceResult struct {
	Text    []byte
	Imports ImportDelta
}

// ApplyToSource merges the replacements of all fixes into one set, applies
// them back to front against src and then organises imports. All offsets
// refer to the unedited src. Replacements of two different fixes that
// overlap produce a *ConflictError; the caller is expected to have picked at
// most one fix per diagnostic.
func ApplyToSource(filename string, src []byte, fixes []diag.Fix, order ImportOrder) (*SourceResult, error) {
	var (
		set     Replacements
		adds    []string
		removes []string
	)
	for i, f := range fixes {
		for _, rep := range f.Replacements {
			owner, err := set.add(rep, i+1)
			if err == nil {
				continue
			}
			var oe *OverlapError
			if errors.As(err, &oe) && owner != i+1 && owner > 0 {
				return nil, &ConflictError{
					FirstFix:  fixName(fixes[owner-1], owner-1),
					SecondFix: fixName(f, i),
					First:     oe.First,
					Second:    oe.Second,
				}
			}
			return nil, fmt.Errorf("fix %q: %w", fixName(f, i), err)
		}
		adds = appendUnique(adds, f.ImportsToAdd...)
		removes = appendUnique(removes, f.ImportsToRemove...)
	}
	text, err := set.Apply(src)
	if err != nil {
		return nil, err
	}
	text, delta, err := OrganizeImports(filename, text, adds, removes, order)
	if err != nil {
		return nil, err
	}
	return &SourceResult{Text: text, Imports: delta}, nil
}

func fixName(f diag.Fix, idx int) string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Title != "":
		return f.Title
	}
	return fmt.Sprintf("#%d", idx)
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}
