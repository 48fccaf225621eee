package scanner

import (
	"context"
	"fmt"
	"go/ast"
	"runtime/debug"
	"strings"

	"golang.org/x/tools/go/ast/inspector"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/suppress"
	"bugcheck/internal/trace"
	"bugcheck/internal/tree"
)

// entry is one (check, kind) handler in the dispatch table.
type entry struct {
	idx  int // index into Scanner.checks
	name string
	info check.Info
	fn   check.MatchFunc
	sev  diag.Severity
}

// Scanner dispatches the nodes of a unit to the enabled checks. The dispatch
// table is built once; a Scanner holds no per-unit state and may scan many
// units concurrently.
type Scanner struct {
	table         [tree.NumKinds][]*entry
	checks        []*check.Check
	severities    []diag.Severity
	flags         map[string]string
	tracer        trace.Tracer
	skipGenerated bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithTracer routes match failures and per-unit spans to t.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scanner) {
		if t != nil {
			s.tracer = t
		}
	}
}

// SkipWarningsInGeneratedCode drops non-error findings in generated files.
func SkipWarningsInGeneratedCode(skip bool) Option {
	return func(s *Scanner) { s.skipGenerated = skip }
}

// Scanner builds the dispatch table for the enabled checks.
func (s *Supplier) Scanner(opts ...Option) *Scanner {
	sc := &Scanner{
		flags:  s.flags.Map(),
		tracer: trace.Nop,
	}
	for _, opt := range opts {
		opt(sc)
	}
	for _, c := range s.EnabledChecks() {
		sev, ok := s.severities[c.Name()]
		if !ok {
			sev = c.Info().Severity
		}
		idx := len(sc.checks)
		sc.checks = append(sc.checks, c)
		sc.severities = append(sc.severities, sev)
		info := c.Info()
		for _, k := range c.Kinds() {
			sc.table[k] = append(sc.table[k], &entry{
				idx:  idx,
				name: c.Name(),
				info: info,
				fn:   c.Matcher(k),
				sev:  sev,
			})
		}
	}
	return sc
}

// Checks lists the checks the scanner runs.
func (sc *Scanner) Checks() []*check.Check {
	return append([]*check.Check(nil), sc.checks...)
}

// ScanStats counts what happened during one Scan.
type ScanStats struct {
	Nodes       int
	Invocations int
	Matches     int
	Suppressed  int
	Failures    int
	Dropped     int // warnings discarded in generated code
}

// MatchError describes a check that failed or panicked on one node.
type MatchError struct {
	Check string
	Kind  tree.Kind
	Err   error
	Stack string // set for panics
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("%s failed on %s: %v", e.Check, e.Kind, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }

// Scan walks u in pre-order and reports every finding to r in document
// order. A check that fails on a node is reported as an internal error
// diagnostic and the walk goes on. Cancellation is observed between
// top-level declarations; the returned error is then ctx.Err().
func (sc *Scanner) Scan(ctx context.Context, u *tree.Unit, r diag.Reporter) (ScanStats, error) {
	var stats ScanStats
	if len(sc.checks) == 0 {
		return stats, nil
	}

	span := trace.Begin(sc.tracer, trace.ScopeUnit, "scan", trace.Parent(ctx))
	defer func() {
		span.WithExtra("nodes", fmt.Sprint(stats.Nodes)).
			WithExtra("matches", fmt.Sprint(stats.Matches)).
			End(u.Name())
	}()

	res := suppress.NewResolver(u)
	states := make([]*check.State, len(sc.checks))
	for i, c := range sc.checks {
		states[i] = check.NewState(u, c, sc.severities[i], sc.flags, res)
	}
	generated := sc.skipGenerated && u.IsGenerated()

	var (
		frames    []*suppress.Set // directives per stack level
		active    int             // non-nil frames
		cancelled error
	)
	suppressed := func(info *check.Info) bool {
		if active == 0 || info.Suppress == check.Unsuppressible {
			return false
		}
		for _, set := range frames {
			if set.Suppresses(*info) {
				return true
			}
		}
		return false
	}

	insp := inspector.New([]*ast.File{u.File})
	insp.WithStack(nil, func(n ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			if frames[len(frames)-1] != nil {
				active--
			}
			frames = frames[:len(frames)-1]
			return true
		}
		if cancelled != nil {
			return false
		}
		if len(stack) == 2 {
			if err := ctx.Err(); err != nil {
				cancelled = err
				return false
			}
		}

		set := res.Directives(n)
		frames = append(frames, set)
		if set != nil {
			active++
		}

		stats.Nodes++
		k := tree.KindOf(n)
		for _, e := range sc.table[k] {
			if suppressed(&e.info) {
				stats.Suppressed++
				continue
			}
			st := states[e.idx]
			st.SetPath(tree.Path(stack))
			stats.Invocations++
			d := sc.dispatch(u, e, k, st, n)
			if d == nil {
				continue
			}
			if d.Internal {
				stats.Failures++
			} else {
				stats.Matches++
				if generated && d.Severity < diag.SevError {
					stats.Dropped++
					continue
				}
			}
			r.Report(d)
		}
		return true
	})

	return stats, cancelled
}

// dispatch runs one handler and turns its result into a diagnostic, or nil.
func (sc *Scanner) dispatch(u *tree.Unit, e *entry, k tree.Kind, st *check.State, n ast.Node) *diag.Diagnostic {
	res := invoke(e, k, st, n)
	switch {
	case res.IsMatch():
		d := res.Diagnostic()
		d.Check = e.name
		d.Severity = e.sev
		return d
	case res.IsFailed():
		return sc.failure(u, e, k, n, res.Err())
	}
	return nil
}

func invoke(e *entry, k tree.Kind, st *check.State, n ast.Node) (res check.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = check.Failed(&MatchError{
				Check: e.name,
				Kind:  k,
				Err:   fmt.Errorf("panic: %v", p),
				Stack: string(debug.Stack()),
			})
		}
	}()
	return e.fn(st, n)
}

func (sc *Scanner) failure(u *tree.Unit, e *entry, k tree.Kind, n ast.Node, err error) *diag.Diagnostic {
	me, ok := err.(*MatchError)
	if !ok {
		me = &MatchError{Check: e.name, Kind: k, Err: err}
	}
	sp, spErr := u.Span(n)
	if spErr != nil {
		sp = source.Span{File: u.FileID}
	}

	extra := map[string]string{
		"file": u.Name(),
		"kind": k.String(),
	}
	if me.Stack != "" {
		extra["stack"] = firstFrames(me.Stack, 12)
	}
	trace.Error(sc.tracer, trace.ScopeNode, "check:"+e.name, me.Error(), extra)

	d := diag.New(e.name, diag.SevError, sp, fmt.Sprintf("internal error: %v", me))
	d.Internal = true
	return d
}

func firstFrames(stack string, lines int) string {
	parts := strings.SplitN(stack, "\n", lines+1)
	if len(parts) > lines {
		parts = parts[:lines]
	}
	return strings.Join(parts, "\n")
}
