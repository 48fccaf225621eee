package driver

import (
	"context"
	"errors"
	"fmt"
	goscanner "go/scanner"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"bugcheck/internal/diag"
	"bugcheck/internal/observ"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/trace"
	"bugcheck/internal/tree"
)

// SyntaxCheck is the check name of diagnostics for files that do not parse.
const SyntaxCheck = "SyntaxError"

// pending is a file waiting to be scanned.
type pending struct {
	path  string
	id    source.FileID
	unit  func() (*tree.Unit, error)
	typed bool
}

// AnalyzeFile checks a single file without type information.
func AnalyzeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	return analyzePaths(ctx, filepath.Dir(path), []string{path}, opts)
}

// AnalyzeDir checks every Go file below dir without type information.
// Hidden directories, vendor and testdata are skipped.
func AnalyzeDir(ctx context.Context, dir string, opts Options) (*Result, error) {
	paths, err := listGoFiles(dir, opts.Excludes)
	if err != nil {
		return nil, err
	}
	return analyzePaths(ctx, dir, paths, opts)
}

// AnalyzeSource checks in-memory content, such as standard input.
func AnalyzeSource(ctx context.Context, name string, src []byte, opts Options) (*Result, error) {
	files := source.NewFileSet()
	id := files.AddVirtual(name, src)
	work := []pending{{
		path: name,
		id:   id,
		unit: func() (*tree.Unit, error) { return tree.Parse(files, id) },
	}}
	return analyzeWith(ctx, files, work, observ.NewTimer(), opts)
}

func analyzePaths(ctx context.Context, base string, paths []string, opts Options) (*Result, error) {
	timer := observ.NewTimer()
	idx := timer.Begin("load")
	files := source.NewFileSetWithBase(base)
	work := make([]pending, 0, len(paths))
	var failed []UnitResult
	for _, path := range paths {
		id, err := files.Load(path)
		if err != nil {
			failed = append(failed, UnitResult{Path: path, Err: err, Bag: diag.NewBag(opts.MaxDiagnostics)})
			emit(opts.Progress, path, StageLoad, StatusError, err, 0)
			continue
		}
		work = append(work, pending{
			path: path,
			id:   id,
			unit: func() (*tree.Unit, error) { return tree.Parse(files, id) },
		})
	}
	timer.End(idx, fmt.Sprintf("%d files", len(paths)))

	res, err := analyzeWith(ctx, files, work, timer, opts)
	if err != nil {
		return nil, err
	}
	res.Units = append(failed, res.Units...)
	return res, nil
}

// AnalyzePackages loads the packages matching patterns with full type
// information and checks their files.
func AnalyzePackages(ctx context.Context, dir string, patterns []string, opts Options) (*Result, error) {
	if err := validateExcludes(opts.Excludes); err != nil {
		return nil, err
	}
	tr := opts.tracer()
	timer := observ.NewTimer()
	idx := timer.Begin("load")
	span := trace.Begin(tr, trace.ScopePass, "load", trace.Parent(ctx))
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		span.End(err.Error())
		return nil, fmt.Errorf("load packages: %w", err)
	}

	files := source.NewFileSetWithBase(dir)
	var (
		work   []pending
		failed []UnitResult
	)
	seen := make(map[string]bool)
	for _, p := range pkgs {
		for _, e := range p.Errors {
			trace.Error(tr, trace.ScopePass, "load:"+p.PkgPath, e.Error(), nil)
		}
		for i, f := range p.Syntax {
			if i >= len(p.CompiledGoFiles) {
				break
			}
			path := p.CompiledGoFiles[i]
			if seen[path] || !strings.HasSuffix(path, ".go") || isExcluded(opts.Excludes, dir, path) {
				continue
			}
			seen[path] = true
			id, err := files.Load(path)
			if err != nil {
				failed = append(failed, UnitResult{Path: path, Err: err, Bag: diag.NewBag(opts.MaxDiagnostics)})
				continue
			}
			pkg, info, fset := p.Types, p.TypesInfo, p.Fset
			work = append(work, pending{
				path:  path,
				id:    id,
				unit:  func() (*tree.Unit, error) { return tree.NewUnit(files, id, fset, f, pkg, info) },
				typed: true,
			})
		}
	}
	span.WithExtra("packages", fmt.Sprint(len(pkgs))).End(fmt.Sprintf("%d files", len(work)))
	timer.End(idx, fmt.Sprintf("%d packages", len(pkgs)))

	res, err := analyzeWith(ctx, files, work, timer, opts)
	if err != nil {
		return nil, err
	}
	res.Units = append(failed, res.Units...)
	return res, nil
}

// analyzeWith scans the pending files in parallel. Each unit gets its own
// bag; the supplier and its checks are shared read-only.
func analyzeWith(ctx context.Context, files *source.FileSet, work []pending, timer *observ.Timer, opts Options) (*Result, error) {
	sup, err := opts.EffectiveSupplier()
	if err != nil {
		return nil, err
	}
	tr := opts.tracer()
	sc := sup.Scanner(
		scanner.WithTracer(tr),
		scanner.SkipWarningsInGeneratedCode(opts.SkipGeneratedWarnings),
	)
	var fingerprint [32]byte
	if opts.Cache != nil {
		if fingerprint, err = Fingerprint(sup, opts.Rules); err != nil {
			return nil, err
		}
	}

	idx := timer.Begin("scan")
	span := trace.Begin(tr, trace.ScopePass, "scan", trace.Parent(ctx))
	ctx = trace.WithParent(ctx, span)

	for _, w := range work {
		emit(opts.Progress, w.path, StageScan, StatusQueued, nil, 0)
	}
	results := make([]UnitResult, len(work))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs(len(work)))
	for i, w := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scanOne(gctx, sc, files, w, fingerprint, opts)
			if r := results[i]; errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
				return r.Err
			}
			return nil
		})
	}
	err = g.Wait()
	span.WithExtra("files", fmt.Sprint(len(work))).End("")
	timer.End(idx, fmt.Sprintf("%d files", len(work)))
	if err != nil {
		return nil, err
	}
	return &Result{Files: files, Units: results, Timer: timer, Progress: opts.Progress}, nil
}

func scanOne(ctx context.Context, sc *scanner.Scanner, files *source.FileSet, w pending, fingerprint [32]byte, opts Options) UnitResult {
	started := time.Now()
	res := UnitResult{Path: w.path, FileID: w.id, Bag: diag.NewBag(opts.MaxDiagnostics)}
	emit(opts.Progress, w.path, StageScan, StatusWorking, nil, 0)

	file := files.Get(w.id)
	cacheable := opts.Cache != nil && !w.typed
	var key [32]byte
	if cacheable {
		key = opts.Cache.Key(fingerprint, file)
		if ok, err := opts.Cache.Load(key, w.id, &res); err == nil && ok {
			emit(opts.Progress, w.path, StageScan, StatusDone, nil, time.Since(started))
			return res
		} else if err != nil {
			trace.Error(opts.tracer(), trace.ScopeUnit, "cache", err.Error(), nil)
		}
	}

	unit, err := w.unit()
	if err != nil {
		res.Err = err
		for _, d := range syntaxDiagnostics(file, err) {
			res.Bag.Add(d)
		}
		emit(opts.Progress, w.path, StageScan, StatusError, err, time.Since(started))
		return res
	}
	res.Stats, err = sc.Scan(ctx, unit, diag.BagReporter{Bag: res.Bag})
	if err != nil {
		res.Err = err
		emit(opts.Progress, w.path, StageScan, StatusError, err, time.Since(started))
		return res
	}
	if cacheable {
		if err := opts.Cache.Store(key, &res); err != nil {
			trace.Error(opts.tracer(), trace.ScopeUnit, "cache", err.Error(), nil)
		}
	}
	emit(opts.Progress, w.path, StageScan, StatusDone, nil, time.Since(started))
	return res
}

// syntaxDiagnostics turns parser errors into diagnostics at their offsets.
func syntaxDiagnostics(file *source.File, err error) []*diag.Diagnostic {
	var list goscanner.ErrorList
	if !errors.As(err, &list) {
		return []*diag.Diagnostic{diag.New(SyntaxCheck, diag.SevError, source.Span{File: file.ID}, err.Error())}
	}
	out := make([]*diag.Diagnostic, 0, len(list))
	for _, e := range list {
		off, err := safecast.Conv[uint32](e.Pos.Offset)
		if err != nil || int(off) > len(file.Content) {
			off = 0
		}
		out = append(out, diag.New(SyntaxCheck, diag.SevError, source.Span{File: file.ID, Start: off, End: off}, e.Msg))
	}
	return out
}

func validateExcludes(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

func isExcluded(patterns []string, base, path string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// listGoFiles returns the sorted Go files below dir.
func listGoFiles(dir string, excludes []string) ([]string, error) {
	if err := validateExcludes(excludes); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata" ||
				isExcluded(excludes, dir, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") && !isExcluded(excludes, dir, path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}
