// Package driver runs the checks over files, directories and packages and
// applies the resulting fixes.
package driver

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"bugcheck/internal/checks"
	"bugcheck/internal/diag"
	"bugcheck/internal/observ"
	"bugcheck/internal/refaster"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/trace"
)

// TypeMode selects where type information comes from.
type TypeMode uint8

const (
	// TypesNone parses each file on its own. Checks that need types stay quiet.
	TypesNone TypeMode = iota
	// TypesPackages loads and type-checks whole packages with go/packages.
	TypesPackages
)

func (m TypeMode) String() string {
	switch m {
	case TypesNone:
		return "none"
	case TypesPackages:
		return "packages"
	}
	return "unknown"
}

// ParseTypeMode accepts "none" and "packages".
func ParseTypeMode(s string) (TypeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypesNone, nil
	case "packages":
		return TypesPackages, nil
	}
	return TypesNone, fmt.Errorf("unknown type mode %q (expected none|packages)", s)
}

// Options configures one analysis run.
type Options struct {
	// Supplier provides the checks; nil means the built-in defaults.
	Supplier *scanner.Supplier
	// Rules are template rule files (.go or compiled bundles) added as checks.
	Rules          []string
	Jobs           int
	MaxDiagnostics int
	Types          TypeMode
	// Excludes are doublestar patterns matched against slash-separated paths
	// relative to the analysed directory.
	Excludes              []string
	SkipGeneratedWarnings bool
	Tracer                trace.Tracer
	Progress              ProgressSink
	// Cache stores results of untyped runs keyed by file content.
	Cache *ResultCache
}

func (o *Options) jobs(n int) int {
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	return max(1, min(jobs, n))
}

func (o *Options) tracer() trace.Tracer {
	if o.Tracer == nil {
		return trace.Nop
	}
	return o.Tracer
}

// EffectiveSupplier combines the configured checks with the rule files.
func (o *Options) EffectiveSupplier() (*scanner.Supplier, error) {
	s := o.Supplier
	if s == nil {
		s = checks.Defaults()
	}
	if len(o.Rules) == 0 {
		return s, nil
	}
	var all []*refaster.Rule
	for _, path := range o.Rules {
		rules, err := refaster.LoadRules(path)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	cs, err := refaster.Checks(all)
	if err != nil {
		return nil, err
	}
	rs, err := scanner.FromChecks(cs...)
	if err != nil {
		return nil, err
	}
	return s.Plus(rs), nil
}

// UnitResult is the outcome for one file.
type UnitResult struct {
	Path   string
	FileID source.FileID
	Bag    *diag.Bag
	Stats  scanner.ScanStats
	// Err is set when the file could not be loaded or parsed.
	Err    error
	Cached bool
}

// Result aggregates one run.
type Result struct {
	Files    *source.FileSet
	Units    []UnitResult
	Timer    *observ.Timer
	// Progress receives fix stage events when the result is later fixed.
	Progress ProgressSink
}

// Diagnostics returns every diagnostic of the run in file and offset order.
func (r *Result) Diagnostics() []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, u := range r.Units {
		if u.Bag == nil {
			continue
		}
		out = append(out, u.Bag.Items()...)
	}
	slices.SortStableFunc(out, func(a, b *diag.Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Primary.File, b.Primary.File),
			cmp.Compare(a.Primary.Start, b.Primary.Start),
		)
	})
	return out
}

// HasErrors reports whether any unit failed or produced an error diagnostic.
func (r *Result) HasErrors() bool {
	for _, u := range r.Units {
		if u.Err != nil || u.Bag != nil && u.Bag.HasErrors() {
			return true
		}
	}
	return false
}

// Stats sums the scan statistics of all units.
func (r *Result) Stats() scanner.ScanStats {
	var s scanner.ScanStats
	for _, u := range r.Units {
		s.Nodes += u.Stats.Nodes
		s.Invocations += u.Stats.Invocations
		s.Matches += u.Stats.Matches
		s.Suppressed += u.Stats.Suppressed
		s.Failures += u.Stats.Failures
		s.Dropped += u.Stats.Dropped
	}
	return s
}
