package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

type palette struct {
	err, warn, info *color.Color
	check, path     *color.Color
	gutter, caret   *color.Color
	note, fix       *color.Color
	added, removed  *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		info:    color.New(color.FgCyan, color.Bold),
		check:   color.New(color.Bold),
		path:    color.New(color.FgWhite, color.Bold),
		gutter:  color.New(color.FgBlue),
		caret:   color.New(color.FgGreen, color.Bold),
		note:    color.New(color.FgCyan),
		fix:     color.New(color.FgGreen),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.check, p.path, p.gutter, p.caret, p.note, p.fix, p.added, p.removed} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty renders diagnostics for humans, in bag order (sort the bag first).
// Each diagnostic is printed as
//
//	<path>:<line>:<col>: <SEV> <CHECK>: <Message>
//
// followed by the source line underlined with ^~~~ under the primary span,
// then notes and fixes when enabled.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		prettyOne(w, d, fs, opts, p)
	}
}

func prettyOne(w io.Writer, d *diag.Diagnostic, fs *source.FileSet, opts PrettyOpts, p palette) {
	f, ok := fs.Lookup(d.Primary.File)
	if !ok {
		fmt.Fprintf(w, "%s %s: %s\n", p.severity(d.Severity).Sprint(d.Severity), p.check.Sprint(d.Check), d.Message)
		return
	}
	start, end := fs.Resolve(d.Primary)
	fmt.Fprintf(w, "%s: %s %s: %s\n",
		p.path.Sprint(position(f, fs, start, opts.PathMode)),
		p.severity(d.Severity).Sprint(d.Severity),
		p.check.Sprint(d.Check),
		d.Message,
	)
	writeContext(w, f, d.Primary, start, end, opts, p)

	if opts.ShowNotes {
		for _, n := range d.Notes {
			nf, ok := fs.Lookup(n.Span.File)
			if !ok {
				fmt.Fprintf(w, "  %s %s\n", p.note.Sprint("note:"), n.Msg)
				continue
			}
			at, _ := fs.Resolve(n.Span)
			fmt.Fprintf(w, "  %s %s: %s\n", p.note.Sprint("note:"), position(nf, fs, at, opts.PathMode), n.Msg)
		}
	}
	if opts.ShowFixes {
		for i := range d.Fixes {
			writeFix(w, i+1, &d.Fixes[i], fs, opts, p)
		}
	}
	if opts.ShowLinks && d.Link != "" {
		fmt.Fprintf(w, "  see: %s\n", d.Link)
	}
}

func position(f *source.File, fs *source.FileSet, at source.LineCol, mode PathMode) string {
	return fmt.Sprintf("%s:%d:%d", f.FormatPath(mode.format(), fs.BaseDir()), at.Line, at.Col)
}

// writeContext prints the lines around the primary span. Only the first line
// of the span is underlined.
func writeContext(w io.Writer, f *source.File, span source.Span, start, end source.LineCol, opts PrettyOpts, p palette) {
	if start.Line == 0 {
		return
	}
	ctx := uint32(max(opts.Context, 0)) // #nosec G115 -- non-negative int8
	first := start.Line - min(ctx, start.Line-1)
	last := max(end.Line, start.Line) + ctx
	if limit := uint32(len(f.LineIdx)) + 1; last > limit { // #nosec G115
		last = limit
	}
	gutter := len(strconv.FormatUint(uint64(last), 10))

	for ln := first; ln <= last; ln++ {
		text := f.GetLine(ln)
		if ln > end.Line && text == "" && ln == last {
			break
		}
		shown := text
		if opts.Width > 0 && runewidth.StringWidth(shown) > opts.Width {
			shown = runewidth.Truncate(shown, opts.Width, "…")
		}
		fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", gutter, ln), shown)
		if ln != start.Line {
			continue
		}
		col := int(start.Col) - 1
		col = min(max(col, 0), len(text))
		stop := len(text)
		if end.Line == start.Line {
			stop = min(max(int(end.Col)-1, col), len(text))
		}
		fmt.Fprintf(w, "%s %s%s\n",
			p.gutter.Sprintf("%*s |", gutter, ""),
			padding(text[:col]),
			p.caret.Sprint(underline(text[col:stop], span.Empty())),
		)
	}
}

// padding keeps tabs so the caret lines up with the source line as the
// terminal renders it.
func padding(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		if r == '\t' {
			b.WriteByte('\t')
			continue
		}
		b.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return b.String()
}

func underline(text string, empty bool) string {
	n := runewidth.StringWidth(text)
	if empty || n <= 1 {
		return "^"
	}
	return "^" + strings.Repeat("~", n-1)
}

func writeFix(w io.Writer, n int, fx *diag.Fix, fs *source.FileSet, opts PrettyOpts, p palette) {
	title := fx.Title
	if title == "" {
		title = "apply suggested change"
	}
	meta := []string{fx.Applicability.String()}
	if fx.IsPreferred {
		meta = append(meta, "preferred")
	}
	if fx.ID != "" {
		meta = append(meta, "id="+fx.ID)
	}
	fmt.Fprintf(w, "  %s %s [%s]\n", p.fix.Sprintf("fix #%d:", n), title, strings.Join(meta, ", "))

	for _, rep := range fx.Replacements {
		f, ok := fs.Lookup(rep.Span.File)
		if !ok {
			continue
		}
		at, _ := fs.Resolve(rep.Span)
		fmt.Fprintf(w, "    %s apply=%s\n", position(f, fs, at, opts.PathMode), strconv.Quote(rep.NewText))
		if !opts.ShowPreview {
			continue
		}
		preview, err := buildFixEditPreview(fs, rep)
		if err != nil {
			continue
		}
		fmt.Fprintln(w, "    preview:")
		for _, line := range preview.before {
			fmt.Fprintf(w, "      %s\n", p.removed.Sprint("- "+line))
		}
		for _, line := range preview.after {
			fmt.Fprintf(w, "      %s\n", p.added.Sprint("+ "+line))
		}
	}
	for _, imp := range fx.ImportsToAdd {
		fmt.Fprintf(w, "    import %s\n", quoteImport(imp))
	}
	for _, imp := range fx.ImportsToRemove {
		fmt.Fprintf(w, "    drop import %s\n", strconv.Quote(imp))
	}
}

// quoteImport renders "name path" specs the way they appear in source.
func quoteImport(spec string) string {
	if name, path, ok := strings.Cut(spec, " "); ok {
		return name + " " + strconv.Quote(path)
	}
	return strconv.Quote(spec)
}
