package driver

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"bugcheck/internal/fix"
	"bugcheck/internal/refaster"
	"bugcheck/internal/scanner"
)

// Refactor applies the first fix of every diagnostic produced by the patch
// checks and rules. It runs after the whole result is collected, so all
// offsets still refer to the files as they were scanned.
func Refactor(res *Result, patch scanner.PatchOptions) (*fix.ApplyResult, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !patch.Refactor() {
		return &fix.ApplyResult{}, nil
	}
	names, err := patchChecks(patch)
	if err != nil {
		return nil, err
	}
	opts := fix.ApplyOptions{
		Mode:        fix.ApplyModeChoose,
		Chooser:     fix.ChooseNth(0),
		Checks:      names,
		ImportOrder: patch.ImportOrder,
	}
	if !patch.InPlace {
		opts.OutDir = patch.BaseDir
	}
	return Fix(res, opts)
}

// Fix applies fixes from the diagnostics of res as opts select. A run with
// nothing to fix is not an error.
func Fix(res *Result, opts fix.ApplyOptions) (*fix.ApplyResult, error) {
	idx := -1
	if res.Timer != nil {
		idx = res.Timer.Begin("fix")
	}
	started := time.Now()
	emit(res.Progress, "", StageFix, StatusWorking, nil, 0)
	out, err := fix.Apply(res.Files, res.Diagnostics(), opts)
	if res.Timer != nil {
		res.Timer.End(idx, fmt.Sprintf("%d applied", len(out.Applied)))
	}
	if errors.Is(err, fix.ErrNoFixes) {
		err = nil
	}
	for _, fc := range out.FileChanges {
		emit(res.Progress, fc.Path, StageFix, StatusDone, nil, 0)
	}
	status := StatusDone
	if err != nil {
		status = StatusError
	}
	emit(res.Progress, "", StageFix, status, err, time.Since(started))
	return out, err
}

// patchChecks names the checks whose fixes a patch applies: the listed
// checks plus every rule defined in the listed rule files.
func patchChecks(patch scanner.PatchOptions) ([]string, error) {
	names := slices.Clone(patch.Checks)
	for _, path := range patch.Rules {
		rules, err := refaster.LoadRules(path)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			names = append(names, r.Name)
		}
	}
	return names, nil
}
