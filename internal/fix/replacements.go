package fix

import (
	"fmt"
	"iter"
	"math"

	"github.com/tidwall/btree"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

// Replacements is an ordered set of non-overlapping replacements over one
// file. Two spans conflict when they share a byte, or when an insertion sits
// strictly inside a replaced range; insertions on a range boundary are fine.
// Insertions at the same offset are concatenated in registration order and
// an identical replacement added twice is kept once.
//
// A zero value is ready to use.
type Replacements struct {
	tree btree.Map[uint64, *entry]
}

type entry struct {
	rep   diag.Replacement
	owner int
}

func keyOf(sp source.Span) uint64 {
	return uint64(sp.Start)<<32 | uint64(sp.End)
}

// Add inserts rep; it returns an *OverlapError on conflict.
func (r *Replacements) Add(rep diag.Replacement) error {
	_, err := r.add(rep, 0)
	return err
}

// add returns the owner of the conflicting entry along with the error.
func (r *Replacements) add(rep diag.Replacement, owner int) (int, error) {
	k := keyOf(rep.Span)
	if prev, ok := r.tree.Get(k); ok {
		switch {
		case rep.Span.Empty():
			prev.rep.NewText += rep.NewText
			return 0, nil
		case prev.rep.NewText == rep.NewText:
			return 0, nil
		default:
			return prev.owner, &OverlapError{First: prev.rep, Second: rep}
		}
	}
	if conflict := r.conflicting(rep.Span); conflict != nil {
		return conflict.owner, &OverlapError{First: conflict.rep, Second: rep}
	}
	r.tree.Set(k, &entry{rep: rep, owner: owner})
	return 0, nil
}

func (r *Replacements) conflicting(sp source.Span) *entry {
	var limit uint32
	if sp.Empty() {
		if sp.Start == 0 {
			return nil
		}
		limit = sp.Start - 1
	} else {
		limit = sp.End - 1
	}
	var found *entry
	r.tree.Descend(uint64(limit)<<32|math.MaxUint32, func(_ uint64, e *entry) bool {
		if e.rep.Span.Overlaps(sp) {
			found = e
			return false
		}
		// non-empty entries are disjoint and sorted, so nothing before one
		// that ends at or before sp.Start can reach into sp
		return e.rep.Span.Empty() || e.rep.Span.End > sp.Start
	})
	return found
}

// Len returns the number of distinct spans.
func (r *Replacements) Len() int {
	return r.tree.Len()
}

// Descending returns the replacements by descending start, suitable for
// back-to-front application. For equal starts the longer range comes first.
func (r *Replacements) Descending() []diag.Replacement {
	out := make([]diag.Replacement, 0, r.tree.Len())
	r.tree.Reverse(func(_ uint64, e *entry) bool {
		out = append(out, e.rep)
		return true
	})
	return out
}

// Ascending iterates the replacements in document order.
func (r *Replacements) Ascending() iter.Seq[diag.Replacement] {
	return func(yield func(diag.Replacement) bool) {
		r.tree.Scan(func(_ uint64, e *entry) bool {
			return yield(e.rep)
		})
	}
}

// Apply rewrites src back to front. Offsets are relative to src.
func (r *Replacements) Apply(src []byte) ([]byte, error) {
	out := src
	copied := false
	for _, rep := range r.Descending() {
		if int(rep.Span.End) > len(out) || rep.Span.Start > rep.Span.End {
			return nil, fmt.Errorf("replacement %s is out of range (len %d)", describe(rep), len(out))
		}
		if !copied {
			out = append([]byte(nil), src...)
			copied = true
		}
		tail := append([]byte(nil), out[rep.Span.End:]...)
		out = append(append(out[:rep.Span.Start], rep.NewText...), tail...)
	}
	return out, nil
}
