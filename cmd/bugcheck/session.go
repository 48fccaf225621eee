package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"bugcheck/internal/checks"
	"bugcheck/internal/config"
	"bugcheck/internal/driver"
	"bugcheck/internal/scanner"
	"bugcheck/internal/trace"
)

// overrideSwitches are the boolean override flags, in the order they are
// handed to the option parser.
var overrideSwitches = []string{
	"ignore-unknown-checks",
	"disable-warnings-in-generated-code",
	"disable-all-checks",
	"all-disabled-checks-as-warnings",
	"all-errors-as-warnings",
}

func addOverrideFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringArray("check", nil, "severity override NAME[:OFF|WARN|ERROR|DEFAULT] (repeatable)")
	pf.StringArray("opt", nil, "check flag KEY=VALUE (repeatable)")
	pf.StringArray("rules", nil, "comma-separated template rule files or bundles")
	pf.StringArray("patch-checks", nil, "checks whose fixes are applied; refaster:FILE selects rules")
	pf.String("patch-location", "", "IN_PLACE or a directory receiving patched copies")
	pf.String("patch-import-order", "", "import grouping used when fixes add imports (stdlib-first|alphabetical)")
	pf.Bool("ignore-unknown-checks", false, "skip overrides naming unknown checks")
	pf.Bool("disable-warnings-in-generated-code", false, "drop warnings in generated files")
	pf.Bool("disable-all-checks", false, "disable every check that may be disabled")
	pf.Bool("all-disabled-checks-as-warnings", false, "enable disabled checks as warnings")
	pf.Bool("all-errors-as-warnings", false, "demote disableable errors to warnings")
}

// overrideArgs renders the override flags in the argument form the option
// parser reads: switches first, then per-check overrides, so an explicit
// override wins over a switch.
func overrideArgs(cmd *cobra.Command) ([]string, error) {
	pf := cmd.Root().PersistentFlags()
	var args []string
	for _, name := range overrideSwitches {
		on, err := pf.GetBool(name)
		if err != nil {
			return nil, err
		}
		if on {
			args = append(args, "--"+name)
		}
	}
	for _, name := range []string{"check", "opt", "rules", "patch-checks"} {
		values, err := pf.GetStringArray(name)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			args = append(args, "--"+name+"="+v)
		}
	}
	for _, name := range []string{"patch-location", "patch-import-order"} {
		v, err := pf.GetString(name)
		if err != nil {
			return nil, err
		}
		if v != "" {
			args = append(args, "--"+name+"="+v)
		}
	}
	return args, nil
}

// session carries what every analysing command needs: the configuration,
// the parsed overrides and the driver options derived from both.
type session struct {
	cfg       *config.Config
	overrides *scanner.Options
	opts      driver.Options
	quiet     bool
	timings   bool
}

func newSession(cmd *cobra.Command) (*session, error) {
	pf := cmd.Root().PersistentFlags()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	cli, err := overrideArgs(cmd)
	if err != nil {
		return nil, err
	}
	o, rest, err := scanner.ProcessArgs(append(cfg.Args(), cli...))
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unrecognized option %q", rest[0])
	}
	sup, err := checks.Defaults().ApplyOverrides(o)
	if err != nil {
		return nil, err
	}

	typesFlag := cfg.Analysis.Types
	if pf.Changed("types") || typesFlag == "" {
		if typesFlag, err = pf.GetString("types"); err != nil {
			return nil, err
		}
	}
	types, err := driver.ParseTypeMode(typesFlag)
	if err != nil {
		return nil, err
	}

	jobs := cfg.Analysis.Jobs
	if pf.Changed("jobs") {
		if jobs, err = pf.GetInt("jobs"); err != nil {
			return nil, err
		}
	}
	maxDiagnostics, err := pf.GetInt("max-diagnostics")
	if err != nil {
		return nil, err
	}
	if !pf.Changed("max-diagnostics") && cfg.Analysis.MaxDiagnostics > 0 {
		maxDiagnostics = cfg.Analysis.MaxDiagnostics
	}
	excludes, err := pf.GetStringArray("exclude")
	if err != nil {
		return nil, err
	}
	quiet, err := pf.GetBool("quiet")
	if err != nil {
		return nil, err
	}
	timings, err := pf.GetBool("timings")
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:       cfg,
		overrides: o,
		quiet:     quiet,
		timings:   timings,
		opts: driver.Options{
			Supplier:              sup,
			Rules:                 ruleFiles(o),
			Jobs:                  jobs,
			MaxDiagnostics:        maxDiagnostics,
			Types:                 types,
			Excludes:              append(cfg.Excludes(), excludes...),
			SkipGeneratedWarnings: o.DisableWarningsInGeneratedCode,
			Tracer:                trace.FromContext(cmd.Context()),
		},
	}

	noCache, err := pf.GetBool("no-cache")
	if err != nil {
		return nil, err
	}
	if !noCache && types == driver.TypesNone {
		cache, err := driver.OpenResultCache("bugcheck")
		if err != nil {
			s.warnf(cmd.ErrOrStderr(), "result cache disabled: %v", err)
		} else {
			s.opts.Cache = cache
		}
	}
	return s, nil
}

// ruleFiles lists the rule files to load as checks: those named by --rules
// and those whose fixes a patch applies.
func ruleFiles(o *scanner.Options) []string {
	files := slices.Clone(o.Rules)
	for _, path := range o.Patch.Rules {
		if !slices.Contains(files, path) {
			files = append(files, path)
		}
	}
	return files
}

// loadConfig reads --config, or the nearest configuration file above the
// working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, _, err := config.Discover(wd)
	return cfg, err
}

func (s *session) warnf(w io.Writer, format string, args ...any) {
	if s.quiet {
		return
	}
	fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

// analyze runs the checks over target: a file, a directory, or "-" for
// standard input. With package type information a directory is loaded as
// the pattern ./... below it.
func (s *session) analyze(ctx context.Context, target string, opts driver.Options) (*driver.Result, error) {
	if target == "-" {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return driver.AnalyzeSource(ctx, "<stdin>", src, opts)
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if opts.Types == driver.TypesPackages {
		if !info.IsDir() {
			return nil, fmt.Errorf("%s: --types=packages needs a directory", target)
		}
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, err
		}
		return driver.AnalyzePackages(ctx, abs, []string{"./..."}, opts)
	}
	if info.IsDir() {
		return driver.AnalyzeDir(ctx, target, opts)
	}
	return driver.AnalyzeFile(ctx, target, opts)
}

// analyzeWithUI runs analyze, behind the progress UI when mode allows it.
func (s *session) analyzeWithUI(cmd *cobra.Command, target string) (*driver.Result, error) {
	modeFlag, err := cmd.Root().PersistentFlags().GetString("ui")
	if err != nil {
		return nil, err
	}
	mode, err := readUIMode(modeFlag)
	if err != nil {
		return nil, err
	}
	if !wantsProgressUI(mode, currentUIRun(target, s.quiet)) {
		return s.analyze(cmd.Context(), target, s.opts)
	}
	return runWithUI(cmd, "bugcheck "+target, s.opts, func(opts driver.Options) (*driver.Result, error) {
		return s.analyze(cmd.Context(), target, opts)
	})
}
