package fix

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the change of one file as a unified diff with three
// lines of context. Identical inputs produce "".
func UnifiedDiff(path string, before, after []byte) (string, error) {
	if string(before) == string(after) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
}
