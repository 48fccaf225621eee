package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"bugcheck/internal/diag"
	"bugcheck/internal/diagfmt"
	"bugcheck/internal/driver"
	"bugcheck/internal/fix"
	"bugcheck/internal/version"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] [file.go|directory|-]",
		Short: "Run the checks and report their diagnostics",
		Long: `Run every enabled check over a Go file, a directory tree or standard input
and report the diagnostics. The exit status is 1 when an error is reported.
With --patch-checks and --patch-location the fixes of the named checks are
applied after reporting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheck,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|json|sarif|short)")
	cmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	cmd.Flags().Bool("suggest", false, "include fix suggestions in output")
	cmd.Flags().Bool("preview", false, "show before/after lines of suggested fixes")
	cmd.Flags().Bool("links", false, "show documentation links of checks")
	cmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	cmd.Flags().Int("context", 0, "source lines shown around each diagnostic")
	cmd.Flags().Int("width", 0, "truncate source lines to this many columns (0=off)")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	switch format {
	case "pretty", "json", "sarif", "short":
	default:
		return fmt.Errorf("unknown format %q (expected pretty|json|sarif|short)", format)
	}

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	target := "."
	if len(args) == 1 {
		target = args[0]
	}

	res, err := s.analyzeWithUI(cmd, target)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	out := cmd.OutOrStdout()
	reportLoadErrors(cmd.ErrOrStderr(), res)
	if err := writeReport(cmd, out, res, format); err != nil {
		return err
	}

	if s.overrides.Patch.Refactor() {
		applied, err := driver.Refactor(res, s.overrides.Patch)
		if err != nil {
			return fmt.Errorf("patch: %w", err)
		}
		if !s.quiet {
			if err := handleApplyResult(cmd.ErrOrStderr(), applied); err != nil {
				return err
			}
		}
	}

	if s.timings {
		printTimings(cmd.ErrOrStderr(), res)
	}
	if res.HasErrors() {
		return &exitError{code: 1}
	}
	return nil
}

// collect gathers the diagnostics of a run into one sorted bag.
func collect(res *driver.Result) *diag.Bag {
	bag := diag.NewBag(0)
	for _, d := range res.Diagnostics() {
		bag.Add(d)
	}
	bag.Sort()
	return bag
}

func reportLoadErrors(w io.Writer, res *driver.Result) {
	for _, u := range res.Units {
		if u.Err != nil && (u.Bag == nil || u.Bag.Len() == 0) {
			fmt.Fprintf(w, "%s: %v\n", u.Path, u.Err)
		}
	}
}

func writeReport(cmd *cobra.Command, out io.Writer, res *driver.Result, format string) error {
	flags := cmd.Flags()
	withNotes, err := flags.GetBool("with-notes")
	if err != nil {
		return err
	}
	suggest, err := flags.GetBool("suggest")
	if err != nil {
		return err
	}
	preview, err := flags.GetBool("preview")
	if err != nil {
		return err
	}
	links, err := flags.GetBool("links")
	if err != nil {
		return err
	}
	fullPath, err := flags.GetBool("fullpath")
	if err != nil {
		return err
	}
	context, err := flags.GetInt("context")
	if err != nil {
		return err
	}
	width, err := flags.GetInt("width")
	if err != nil {
		return err
	}

	pathMode := diagfmt.PathModeAuto
	if fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	bag := collect(res)

	switch format {
	case "json":
		return diagfmt.JSON(out, bag, res.Files, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			IncludeNotes:     withNotes,
			IncludeFixes:     suggest,
			IncludePreviews:  preview,
		})
	case "sarif":
		return diagfmt.Sarif(out, bag, res.Files, diagfmt.SarifRunMeta{
			ToolName:       "bugcheck",
			ToolVersion:    version.Version,
			InvocationArgs: cmd.Flags().Args(),
		})
	case "short":
		return diagfmt.Short(out, bag, res.Files, withNotes)
	}

	color, err := useColor(cmd)
	if err != nil {
		return err
	}
	diagfmt.Pretty(out, bag, res.Files, diagfmt.PrettyOpts{
		Color:       color,
		Context:     int8(min(max(context, 0), 20)), // #nosec G115 -- clamped
		PathMode:    pathMode,
		Width:       width,
		ShowNotes:   withNotes,
		ShowFixes:   suggest,
		ShowPreview: preview,
		ShowLinks:   links,
	})
	return nil
}

// handleApplyResult prints what a fix run changed.
func handleApplyResult(w io.Writer, res *fix.ApplyResult) error {
	if res == nil {
		return nil
	}
	if len(res.Applied) > 0 {
		if _, err := fmt.Fprintf(w, "Applied %d fix(es):\n", len(res.Applied)); err != nil {
			return err
		}
		for _, item := range res.Applied {
			location := item.PrimaryPath
			if location == "" {
				location = "(unknown location)"
			}
			title := item.Title
			if title == "" {
				title = item.Check
			}
			if _, err := fmt.Fprintf(w, "  %s [%s] at %s (%d edits, %s)\n",
				title, item.ID, location, item.EditCount, item.Applicability); err != nil {
				return err
			}
		}
	}
	if len(res.FileChanges) > 0 {
		if _, err := fmt.Fprintln(w, "Updated files:"); err != nil {
			return err
		}
		for _, change := range res.FileChanges {
			dest := change.Path
			if change.Written != "" && change.Written != change.Path {
				dest = change.Path + " -> " + change.Written
			}
			if _, err := fmt.Fprintf(w, "  %s (%d edits)\n", dest, change.EditCount); err != nil {
				return err
			}
		}
	}
	if len(res.Skipped) > 0 {
		if _, err := fmt.Fprintln(w, "Skipped fixes:"); err != nil {
			return err
		}
		for _, skip := range res.Skipped {
			id := skip.ID
			if id == "" {
				id = "(unnamed)"
			}
			var err error
			if skip.Title != "" {
				_, err = fmt.Fprintf(w, "  %s [%s]: %s\n", skip.Title, id, skip.Reason)
			} else {
				_, err = fmt.Fprintf(w, "  [%s]: %s\n", id, skip.Reason)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
