package diagfmt

import (
	"cmp"
	"encoding/json"
	"io"
	"slices"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

// LocationJSON is a span rendered for JSON output.
type LocationJSON struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
}

type NoteJSON struct {
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// FixEditJSON is one replacement of a fix.
type FixEditJSON struct {
	Location    LocationJSON `json:"location"`
	NewText     string       `json:"new_text"`
	OldText     string       `json:"old_text,omitempty"`
	BeforeLines []string     `json:"before_lines,omitempty"`
	AfterLines  []string     `json:"after_lines,omitempty"`
}

type FixJSON struct {
	ID              string        `json:"id,omitempty"`
	Title           string        `json:"title"`
	Applicability   string        `json:"applicability"`
	IsPreferred     bool          `json:"is_preferred,omitempty"`
	Edits           []FixEditJSON `json:"edits,omitempty"`
	ImportsToAdd    []string      `json:"imports_to_add,omitempty"`
	ImportsToRemove []string      `json:"imports_to_remove,omitempty"`
}

type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Check    string       `json:"check"`
	Message  string       `json:"message"`
	Link     string       `json:"link,omitempty"`
	Internal bool         `json:"internal,omitempty"`
	Location LocationJSON `json:"location"`
	Notes    []NoteJSON   `json:"notes,omitempty"`
	Fixes    []FixJSON    `json:"fixes,omitempty"`
}

// DiagnosticsOutput is the root object of JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
}

func makeLocation(span source.Span, fs *source.FileSet, pathMode PathMode, includePositions bool) LocationJSON {
	loc := LocationJSON{StartByte: span.Start, EndByte: span.End}
	f, ok := fs.Lookup(span.File)
	if !ok {
		return loc
	}
	loc.File = f.FormatPath(pathMode.format(), fs.BaseDir())
	if includePositions {
		startPos, endPos := fs.Resolve(span)
		loc.StartLine = startPos.Line
		loc.StartCol = startPos.Col
		loc.EndLine = endPos.Line
		loc.EndCol = endPos.Col
	}
	return loc
}

// BuildDiagnosticsOutput assembles the JSON document without encoding it.
func BuildDiagnosticsOutput(bag *diag.Bag, fs *source.FileSet, opts JSONOpts) DiagnosticsOutput {
	items := bag.Items()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	diagnostics := make([]DiagnosticJSON, 0, len(items))
	for _, d := range items {
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Check:    d.Check,
			Message:  d.Message,
			Link:     d.Link,
			Internal: d.Internal,
			Location: makeLocation(d.Primary, fs, opts.PathMode, opts.IncludePositions),
		}
		if opts.IncludeNotes {
			for _, note := range d.Notes {
				dj.Notes = append(dj.Notes, NoteJSON{
					Message:  note.Msg,
					Location: makeLocation(note.Span, fs, opts.PathMode, opts.IncludePositions),
				})
			}
		}
		if opts.IncludeFixes {
			for _, fx := range orderedFixes(d.Fixes) {
				dj.Fixes = append(dj.Fixes, fixJSON(fx, fs, opts))
			}
		}
		diagnostics = append(diagnostics, dj)
	}
	return DiagnosticsOutput{Diagnostics: diagnostics, Count: len(diagnostics)}
}

// orderedFixes puts preferred and safer fixes first. Fix order on the
// diagnostic is left alone since fix ids depend on it.
func orderedFixes(fixes []diag.Fix) []*diag.Fix {
	out := make([]*diag.Fix, len(fixes))
	for i := range fixes {
		out[i] = &fixes[i]
	}
	slices.SortStableFunc(out, func(a, b *diag.Fix) int {
		if a.IsPreferred != b.IsPreferred {
			if a.IsPreferred {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Applicability, b.Applicability)
	})
	return out
}

func fixJSON(fx *diag.Fix, fs *source.FileSet, opts JSONOpts) FixJSON {
	out := FixJSON{
		ID:              fx.ID,
		Title:           fx.Title,
		Applicability:   fx.Applicability.String(),
		IsPreferred:     fx.IsPreferred,
		ImportsToAdd:    fx.ImportsToAdd,
		ImportsToRemove: fx.ImportsToRemove,
	}
	for _, rep := range fx.Replacements {
		edit := FixEditJSON{
			Location: makeLocation(rep.Span, fs, opts.PathMode, opts.IncludePositions),
			NewText:  rep.NewText,
		}
		if f, ok := fs.Lookup(rep.Span.File); ok {
			edit.OldText = string(f.Text(rep.Span))
		}
		if opts.IncludePreviews {
			if preview, err := buildFixEditPreview(fs, rep); err == nil {
				edit.BeforeLines = preview.before
				edit.AfterLines = preview.after
			}
		}
		out.Edits = append(out.Edits, edit)
	}
	return out
}

// JSON writes diagnostics as an indented JSON document.
func JSON(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(bag, fs, opts))
}
