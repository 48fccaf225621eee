package fix

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

// ApplyMode determines selection strategy for fixes.
type ApplyMode uint8

const (
	// ApplyModeOnce applies the first fix, preferring always-safe ones.
	ApplyModeOnce ApplyMode = iota
	// ApplyModeAll applies one always-safe fix per diagnostic.
	ApplyModeAll
	// ApplyModeID applies the fix with ApplyOptions.TargetID.
	ApplyModeID
	// ApplyModeChoose lets ApplyOptions.Chooser pick one alternative per diagnostic.
	ApplyModeChoose
)

// FixChooser picks one of the alternatives of a diagnostic; a negative
// result skips the diagnostic.
type FixChooser func(fixes []diag.Fix) int

// ChooseNth returns a chooser taking the n-th (0-based) alternative.
func ChooseNth(n int) FixChooser {
	return func(fixes []diag.Fix) int {
		if n < len(fixes) {
			return n
		}
		return -1
	}
}

// ApplyOptions configures how fixes are selected and where results go.
type ApplyOptions struct {
	Mode     ApplyMode
	TargetID string
	Chooser  FixChooser
	// Checks restricts candidates to diagnostics of these checks when non-empty.
	Checks      []string
	ImportOrder ImportOrder
	// DryRun computes the new text without writing anything.
	DryRun bool
	// OutDir writes edited files below this directory instead of in place.
	OutDir string
}

// AppliedFix records a successfully applied fix.
type AppliedFix struct {
	ID            string
	Title         string
	Check         string
	Message       string
	Applicability diag.Applicability
	PrimaryPath   string
	EditCount     int
}

// SkippedFix captures a skipped or failed fix with a reason.
type SkippedFix struct {
	ID     string
	Title  string
	Reason string
}

// FileChange summarises modifications performed on a file.
type FileChange struct {
	Path      string
	EditCount int
	Before    []byte
	After     []byte
	Imports   ImportDelta
	// Written is the path the result was stored at, empty on dry runs.
	Written string
}

// ApplyResult aggregates applied fixes, skipped ones, and file changes.
type ApplyResult struct {
	Applied     []AppliedFix
	Skipped     []SkippedFix
	FileChanges []FileChange
}

type candidate struct {
	diag  *diag.Diagnostic
	fix   diag.Fix
	alt   int
	order int
}

// Apply collects fixes from diagnostics, selects a subset according to opts,
// and applies them file by file. Diagnostics must all be collected before
// calling: offsets refer to the unedited files in fs.
func Apply(fs *source.FileSet, diagnostics []*diag.Diagnostic, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{}
	if fs == nil {
		return result, fmt.Errorf("fix: FileSet is nil")
	}

	candidates, buildSkips := gatherCandidates(fs, diagnostics, opts)
	result.Skipped = append(result.Skipped, buildSkips...)
	if len(candidates) == 0 {
		return result, ErrNoFixes
	}

	sortCandidates(candidates)

	selected, selectionSkips := selectCandidates(candidates, opts)
	result.Skipped = append(result.Skipped, selectionSkips...)
	if len(selected) == 0 {
		return result, ErrNoFixes
	}

	applied, skipped, changes, err := applyCandidates(fs, selected, opts)
	result.Applied = append(result.Applied, applied...)
	result.Skipped = append(result.Skipped, skipped...)
	result.FileChanges = append(result.FileChanges, changes...)
	if err != nil {
		return result, err
	}
	if len(result.Applied) == 0 {
		return result, ErrNoFixes
	}
	return result, nil
}

// gatherCandidates flattens the fix alternatives of every diagnostic. Fixes
// without an ID get one derived from the check name, the primary span and
// the alternative index. Each candidate carries a monotonically increasing
// order so later stable sorting stays deterministic.
func gatherCandidates(fs *source.FileSet, diagnostics []*diag.Diagnostic, opts ApplyOptions) ([]candidate, []SkippedFix) {
	var (
		cands []candidate
		skips []SkippedFix
	)
	order := 0
	seenIDs := make(map[string]struct{})
	for _, d := range diagnostics {
		if d == nil || len(d.Fixes) == 0 {
			continue
		}
		if len(opts.Checks) > 0 && !slices.Contains(opts.Checks, d.Check) {
			continue
		}
		file, ok := fs.Lookup(d.Primary.File)
		if !ok {
			skips = append(skips, SkippedFix{Title: d.Message, Reason: "unknown file"})
			continue
		}
		for idx, f := range d.Fixes {
			if f.ID == "" {
				f.ID = fmt.Sprintf("%s-%d-%d-%d", d.Check, d.Primary.File, d.Primary.Start, idx)
			}
			if f.IsEmpty() {
				skips = append(skips, SkippedFix{ID: f.ID, Title: f.Title, Reason: "fix has no edits"})
				continue
			}
			if _, dup := seenIDs[f.ID]; dup {
				skips = append(skips, SkippedFix{ID: f.ID, Title: f.Title, Reason: "duplicate fix id"})
				continue
			}
			seenIDs[f.ID] = struct{}{}
			if file.Flags&source.FileVirtual != 0 && !opts.DryRun {
				skips = append(skips, SkippedFix{ID: f.ID, Title: f.Title, Reason: "target file is virtual"})
				continue
			}
			cands = append(cands, candidate{diag: d, fix: f, alt: idx, order: order})
			order++
		}
	}
	return cands, skips
}

// sortCandidates orders by file, span start, span end, insertion order, check
// name, preference, ID and title.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].diag, candidates[j].diag
		if di.Primary.File != dj.Primary.File {
			return di.Primary.File < dj.Primary.File
		}
		if di.Primary.Start != dj.Primary.Start {
			return di.Primary.Start < dj.Primary.Start
		}
		if di.Primary.End != dj.Primary.End {
			return di.Primary.End < dj.Primary.End
		}
		if candidates[i].order != candidates[j].order {
			return candidates[i].order < candidates[j].order
		}
		if di.Check != dj.Check {
			return di.Check < dj.Check
		}
		if candidates[i].fix.IsPreferred != candidates[j].fix.IsPreferred {
			return candidates[i].fix.IsPreferred
		}
		if candidates[i].fix.ID != candidates[j].fix.ID {
			return candidates[i].fix.ID < candidates[j].fix.ID
		}
		return candidates[i].fix.Title < candidates[j].fix.Title
	})
}

func selectCandidates(candidates []candidate, opts ApplyOptions) ([]candidate, []SkippedFix) {
	switch opts.Mode {
	case ApplyModeID:
		for _, cand := range candidates {
			if cand.fix.ID == opts.TargetID {
				return []candidate{cand}, nil
			}
		}
		return nil, []SkippedFix{{ID: opts.TargetID, Reason: "fix id not found"}}

	case ApplyModeAll:
		var (
			selected []candidate
			skipped  []SkippedFix
		)
		taken := make(map[*diag.Diagnostic]bool)
		for _, cand := range candidates {
			switch {
			case taken[cand.diag]:
				skipped = append(skipped, SkippedFix{ID: cand.fix.ID, Title: cand.fix.Title, Reason: "another alternative was chosen"})
			case cand.fix.Applicability == diag.FixApplicabilityAlwaysSafe:
				taken[cand.diag] = true
				selected = append(selected, cand)
			default:
				skipped = append(skipped, SkippedFix{
					ID:     cand.fix.ID,
					Title:  cand.fix.Title,
					Reason: fmt.Sprintf("applicability is %s", cand.fix.Applicability),
				})
			}
		}
		return selected, skipped

	case ApplyModeChoose:
		chooser := opts.Chooser
		if chooser == nil {
			chooser = ChooseNth(0)
		}
		var selected []candidate
		seen := make(map[*diag.Diagnostic]bool)
		for _, cand := range candidates {
			if seen[cand.diag] {
				continue
			}
			seen[cand.diag] = true
			idx := chooser(cand.diag.Fixes)
			if idx < 0 {
				continue
			}
			for _, c := range candidates {
				if c.diag == cand.diag && c.alt == idx {
					selected = append(selected, c)
					break
				}
			}
		}
		return selected, nil

	case ApplyModeOnce:
		var fallback *candidate
		for i := range candidates {
			if candidates[i].fix.Applicability == diag.FixApplicabilityAlwaysSafe {
				return []candidate{candidates[i]}, nil
			}
			if fallback == nil {
				fallback = &candidates[i]
			}
		}
		if fallback != nil {
			return []candidate{*fallback}, nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func applyCandidates(fs *source.FileSet, selected []candidate, opts ApplyOptions) ([]AppliedFix, []SkippedFix, []FileChange, error) {
	sets := make(map[source.FileID]*Replacements)
	accepted := make(map[source.FileID][]diag.Fix)
	editCount := make(map[source.FileID]int)

	var (
		applied []AppliedFix
		skipped []SkippedFix
	)
	baseDir := fs.BaseDir()

	for _, cand := range selected {
		fileID := cand.diag.Primary.File
		set := sets[fileID]
		if set == nil {
			set = &Replacements{}
			sets[fileID] = set
		}
		if first, second, clash := set.conflictsWith(cand.fix); clash {
			skipped = append(skipped, SkippedFix{
				ID:    cand.fix.ID,
				Title: cand.fix.Title,
				Reason: fmt.Sprintf("conflicts with previously applied edits in %s: %s vs %s",
					fs.Get(fileID).FormatPath("auto", baseDir), describe(second), describe(first)),
			})
			continue
		}
		for _, rep := range cand.fix.Replacements {
			_, _ = set.add(rep, len(accepted[fileID])+1)
		}
		accepted[fileID] = append(accepted[fileID], cand.fix)
		editCount[fileID] += len(cand.fix.Replacements)
		applied = append(applied, AppliedFix{
			ID:            cand.fix.ID,
			Title:         cand.fix.Title,
			Check:         cand.diag.Check,
			Message:       cand.diag.Message,
			Applicability: cand.fix.Applicability,
			PrimaryPath:   fs.Get(fileID).FormatPath("auto", baseDir),
			EditCount:     len(cand.fix.Replacements),
		})
	}

	fileIDs := make([]source.FileID, 0, len(accepted))
	for id := range accepted {
		fileIDs = append(fileIDs, id)
	}
	slices.Sort(fileIDs)

	changes := make([]FileChange, 0, len(fileIDs))
	for _, id := range fileIDs {
		file := fs.Get(id)
		res, err := ApplyToSource(file.Path, file.Content, accepted[id], opts.ImportOrder)
		if err != nil {
			return applied, skipped, changes, fmt.Errorf("%s: %w", file.Path, err)
		}
		change := FileChange{
			Path:      file.FormatPath("relative", baseDir),
			EditCount: editCount[id],
			Before:    file.Content,
			After:     res.Text,
			Imports:   res.Imports,
		}
		if !opts.DryRun {
			written, err := writeResult(file, change.Path, res.Text, opts.OutDir)
			if err != nil {
				return applied, skipped, changes, err
			}
			change.Written = written
		}
		changes = append(changes, change)
	}
	return applied, skipped, changes, nil
}

// conflictsWith reports the first replacement of f that collides with the set.
func (r *Replacements) conflictsWith(f diag.Fix) (existing, incoming diag.Replacement, clash bool) {
	for _, rep := range f.Replacements {
		if prev, ok := r.tree.Get(keyOf(rep.Span)); ok {
			if rep.Span.Empty() || prev.rep.NewText == rep.NewText {
				continue
			}
			return prev.rep, rep, true
		}
		if e := r.conflicting(rep.Span); e != nil {
			return e.rep, rep, true
		}
	}
	return diag.Replacement{}, diag.Replacement{}, false
}

func writeResult(file *source.File, relPath string, text []byte, outDir string) (string, error) {
	target := file.Path
	if outDir != "" {
		rel := relPath
		if filepath.IsAbs(rel) {
			rel = filepath.Base(rel)
		}
		target = filepath.Join(outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
		}
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(file.Path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(target, text, mode); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
