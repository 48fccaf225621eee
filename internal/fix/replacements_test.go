package fix

import (
	"errors"
	"testing"

	"bugcheck/internal/diag"
	"bugcheck/internal/source"
)

func rep(start, end uint32, text string) diag.Replacement {
	return diag.Replacement{Span: source.Span{Start: start, End: end}, NewText: text}
}

func TestReplacementsOverlap(t *testing.T) {
	tests := []struct {
		name    string
		first   diag.Replacement
		second  diag.Replacement
		overlap bool
	}{
		{"disjoint", rep(0, 3, "a"), rep(5, 8, "b"), false},
		{"adjacent", rep(0, 3, "a"), rep(3, 8, "b"), false},
		{"shared byte", rep(0, 4, "a"), rep(3, 8, "b"), true},
		{"nested", rep(0, 10, "a"), rep(3, 4, "b"), true},
		{"same span different text", rep(2, 4, "a"), rep(2, 4, "b"), true},
		{"same span same text", rep(2, 4, "a"), rep(2, 4, "a"), false},
		{"insertion at start", rep(2, 4, "a"), rep(2, 2, "b"), false},
		{"insertion at end", rep(2, 4, "a"), rep(4, 4, "b"), false},
		{"insertion inside", rep(2, 6, "a"), rep(4, 4, "b"), true},
		{"insertion before non-empty at 0", rep(0, 0, "a"), rep(0, 3, "b"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set Replacements
			if err := set.Add(tt.first); err != nil {
				t.Fatalf("first Add: %v", err)
			}
			err := set.Add(tt.second)
			var oe *OverlapError
			if got := errors.As(err, &oe); got != tt.overlap {
				t.Fatalf("overlap = %v (err %v), want %v", got, err, tt.overlap)
			}
		})
	}
}

func TestReplacementsDescendingAndApply(t *testing.T) {
	var set Replacements
	for _, r := range []diag.Replacement{
		rep(4, 7, "XYZ"),
		rep(0, 0, "<"),
		rep(0, 0, "<<"),
		rep(10, 10, ">"),
		rep(4, 4, "["),
	} {
		if err := set.Add(r); err != nil {
			t.Fatalf("Add(%v): %v", r, err)
		}
	}

	desc := set.Descending()
	for i := 1; i < len(desc); i++ {
		if desc[i].Span.Start > desc[i-1].Span.Start {
			t.Fatalf("not descending: %v", desc)
		}
	}
	if set.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (insertions coalesced)", set.Len())
	}

	got, err := set.Apply([]byte("0123456789"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := "<<<0123[XYZ789>"; string(got) != want {
		t.Fatalf("Apply = %q, want %q", got, want)
	}
}

func TestReplacementsApplyOutOfRange(t *testing.T) {
	var set Replacements
	_ = set.Add(rep(2, 20, ""))
	if _, err := set.Apply([]byte("short")); err == nil {
		t.Fatalf("expected out of range error")
	}
}
