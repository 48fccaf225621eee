package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bugcheck/internal/driver"
	"bugcheck/internal/fix"
)

func newFixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix [flags] [file.go|directory]",
		Short: "Apply suggested fixes to a file or directory",
		Long:  "Run the checks, then apply the fixes they suggest according to the chosen strategy.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFix,
	}
	cmd.Flags().Bool("all", false, "apply one always-safe fix per diagnostic")
	cmd.Flags().Bool("once", false, "apply the first available fix (default)")
	cmd.Flags().String("id", "", "apply the fix with this identifier")
	cmd.Flags().Int("alternative", -1, "apply the n-th alternative (0-based) of every diagnostic")
	cmd.Flags().StringArray("only", nil, "restrict fixes to these checks (repeatable)")
	cmd.Flags().Bool("dry-run", false, "compute the changes without writing files")
	cmd.Flags().Bool("diff", false, "print a unified diff of the changes (implies --dry-run)")
	cmd.Flags().String("out-dir", "", "write changed files below this directory instead of in place")
	return cmd
}

func runFix(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	opts, err := readFixOptions(cmd)
	if err != nil {
		return err
	}
	showDiff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}

	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	if opts.Mode == fix.ApplyModeID {
		// ids are only unique within one file
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return fmt.Errorf("fix: --id can only be used with a single file")
		}
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
	opts.ImportOrder = s.overrides.Patch.ImportOrder

	res, err := s.analyzeWithUI(cmd, target)
	if err != nil {
		return fmt.Errorf("fix: %w", err)
	}
	reportLoadErrors(cmd.ErrOrStderr(), res)

	applied, err := driver.Fix(res, opts)
	if err != nil {
		return fmt.Errorf("fix: %w", err)
	}
	out := cmd.OutOrStdout()
	if showDiff {
		if err := printDiffs(out, applied); err != nil {
			return err
		}
	} else if !s.quiet {
		if err := handleApplyResult(out, applied); err != nil {
			return err
		}
		if len(applied.Applied) == 0 {
			fmt.Fprintln(out, "no applicable fixes found")
		}
	}
	if s.timings {
		printTimings(cmd.ErrOrStderr(), res)
	}
	return nil
}

// readFixOptions validates the strategy flags. At most one of --all,
// --once, --id and --alternative may be given.
func readFixOptions(cmd *cobra.Command) (fix.ApplyOptions, error) {
	flags := cmd.Flags()
	applyAll, err := flags.GetBool("all")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	applyOnce, err := flags.GetBool("once")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	targetID, err := flags.GetString("id")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	alternative, err := flags.GetInt("alternative")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	only, err := flags.GetStringArray("only")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	showDiff, err := flags.GetBool("diff")
	if err != nil {
		return fix.ApplyOptions{}, err
	}
	outDir, err := flags.GetString("out-dir")
	if err != nil {
		return fix.ApplyOptions{}, err
	}

	chosen := 0
	for _, set := range []bool{applyAll, applyOnce, targetID != "", alternative >= 0} {
		if set {
			chosen++
		}
	}
	if chosen > 1 {
		return fix.ApplyOptions{}, errors.New("--all, --once, --id and --alternative are mutually exclusive")
	}
	if outDir != "" && (dryRun || showDiff) {
		return fix.ApplyOptions{}, errors.New("--out-dir cannot be combined with --dry-run or --diff")
	}

	opts := fix.ApplyOptions{
		Mode:   fix.ApplyModeOnce,
		Checks: only,
		DryRun: dryRun || showDiff,
		OutDir: outDir,
	}
	switch {
	case targetID != "":
		opts.Mode = fix.ApplyModeID
		opts.TargetID = targetID
	case applyAll:
		opts.Mode = fix.ApplyModeAll
	case alternative >= 0:
		opts.Mode = fix.ApplyModeChoose
		opts.Chooser = fix.ChooseNth(alternative)
	}
	return opts, nil
}

func printDiffs(w io.Writer, res *fix.ApplyResult) error {
	for _, change := range res.FileChanges {
		d, err := fix.UnifiedDiff(change.Path, change.Before, change.After)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, d); err != nil {
			return err
		}
	}
	return nil
}
