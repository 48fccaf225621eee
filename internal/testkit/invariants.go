package testkit

import (
	"fmt"
	"go/ast"

	"fortio.org/safecast"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
	"bugcheck/internal/tree"
)

// CheckSpanInvariants verifies the offset mapping of a unit:
// 1) every node span lies within the file content
// 2) every node span is enclosed by its parent's span
// Comments are skipped since doc comments sit before the node they document.
func CheckSpanInvariants(u *tree.Unit) error {
	if u == nil {
		return fmt.Errorf("nil unit")
	}
	size, err := safecast.Conv[uint32](len(u.Source().Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	var (
		stack    []source.Span
		firstErr error
	)
	ast.Inspect(u.File, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		if n == nil {
			stack = stack[:len(stack)-1]
			return true
		}
		switch n.(type) {
		case *ast.Comment, *ast.CommentGroup:
			return false
		}
		if !n.Pos().IsValid() {
			// keep the parent's span so pops stay balanced
			stack = append(stack, stack[len(stack)-1])
			return true
		}
		sp, err := u.Span(n)
		if err != nil {
			firstErr = fmt.Errorf("%T: %w", n, err)
			return false
		}
		if sp.File != u.FileID {
			firstErr = fmt.Errorf("%T span file mismatch: got=%d want=%d", n, sp.File, u.FileID)
			return false
		}
		if sp.Start > sp.End || sp.End > size {
			firstErr = fmt.Errorf("%T span %v outside content of %d bytes", n, sp, size)
			return false
		}
		if len(stack) > 0 {
			if parent := stack[len(stack)-1]; !parent.Encloses(sp) {
				firstErr = fmt.Errorf("%T span %v escapes parent span %v", n, sp, parent)
				return false
			}
		}
		stack = append(stack, sp)
		return true
	})
	return firstErr
}

// CheckDiagnosticInvariants verifies that every span a diagnostic carries
// resolves in fs and that fix replacements are ordered back to front
// without overlapping.
func CheckDiagnosticInvariants(fs *source.FileSet, d *diag.Diagnostic) error {
	if err := spanInBounds(fs, d.Primary); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	for i, n := range d.Notes {
		if err := spanInBounds(fs, n.Span); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
	}
	for i, fx := range d.Fixes {
		for j, rep := range fx.Replacements {
			if err := spanInBounds(fs, rep.Span); err != nil {
				return fmt.Errorf("fix %d replacement %d: %w", i, j, err)
			}
			if j == 0 {
				continue
			}
			prev := fx.Replacements[j-1].Span
			if prev.File == rep.Span.File && rep.Span.End > prev.Start {
				return fmt.Errorf("fix %d replacements %v and %v are out of order or overlap", i, prev, rep.Span)
			}
		}
	}
	return nil
}

func spanInBounds(fs *source.FileSet, sp source.Span) error {
	f, ok := fs.Lookup(sp.File)
	if !ok {
		return fmt.Errorf("unknown file %d", sp.File)
	}
	size, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if sp.Start > sp.End || sp.End > size {
		return fmt.Errorf("span %v outside content of %d bytes", sp, size)
	}
	return nil
}
