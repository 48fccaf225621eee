package diagfmt

import (
	"io"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

// Short writes one line per diagnostic in the golden format used by tests:
// "sev [Check] path:line:col message".
func Short(w io.Writer, bag *diag.Bag, fs *source.FileSet, includeNotes bool) error {
	out := diag.FormatShortDiagnostics(bag.Items(), fs, includeNotes)
	if out == "" {
		return nil
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
