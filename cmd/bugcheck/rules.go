package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bugcheck/internal/driver"
	"bugcheck/internal/fix"
	"bugcheck/internal/refaster"
	"bugcheck/internal/scanner"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Compile and try out template rules",
	}

	compile := &cobra.Command{
		Use:   "compile -o out" + refaster.BundleExt + " <rules.go>...",
		Short: "Validate rule files and pack them into a bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRulesCompile,
	}
	compile.Flags().StringP("output", "o", "rules"+refaster.BundleExt, "bundle to write")

	test := &cobra.Command{
		Use:   "test <rules.go|bundle> <input.go>",
		Short: "Apply the rules to an input file and show the result",
		Long: `Apply the first fix of every rule match in the input file without writing
it, and print the diff. With --expect the rewritten text must equal the
given file; the exit status is 1 otherwise.`,
		Args: cobra.ExactArgs(2),
		RunE: runRulesTest,
	}
	test.Flags().String("expect", "", "file holding the expected output")

	cmd.AddCommand(compile, test)
	return cmd
}

func runRulesCompile(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	b, err := refaster.CompileFiles(args...)
	if err != nil {
		return err
	}
	if err := b.WriteFile(out); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %d rule(s) from %d file(s) into %s\n", len(b.RuleList), len(b.Files), out)
	}
	return nil
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	expectPath, err := cmd.Flags().GetString("expect")
	if err != nil {
		return err
	}
	rules, err := refaster.LoadRules(args[0])
	if err != nil {
		return err
	}
	cs, err := refaster.Checks(rules)
	if err != nil {
		return err
	}
	sup, err := scanner.FromChecks(cs...)
	if err != nil {
		return err
	}

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := driver.AnalyzeFile(cmd.Context(), args[1], driver.Options{Supplier: sup})
	if err != nil {
		return err
	}
	applied, err := driver.Fix(res, fix.ApplyOptions{
		Mode:    fix.ApplyModeChoose,
		Chooser: fix.ChooseNth(0),
		DryRun:  true,
	})
	if err != nil {
		return err
	}
	if err := printDiffs(cmd.OutOrStdout(), applied); err != nil {
		return err
	}

	if expectPath == "" {
		return nil
	}
	want, err := os.ReadFile(expectPath)
	if err != nil {
		return err
	}
	got, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	if len(applied.FileChanges) > 0 {
		got = applied.FileChanges[0].After
	}
	if !bytes.Equal(got, want) {
		d, err := fix.UnifiedDiff(expectPath, want, got)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "output differs from %s:\n%s", expectPath, d)
		return &exitError{code: 1}
	}
	return nil
}
