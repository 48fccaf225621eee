package source

import (
	"testing"
)

func TestSpan_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{Start: 0, End: 5}, Span{Start: 5, End: 9}, false},
		{"shared byte", Span{Start: 0, End: 6}, Span{Start: 5, End: 9}, true},
		{"nested", Span{Start: 0, End: 10}, Span{Start: 3, End: 4}, true},
		{"insertion at start", Span{Start: 3, End: 3}, Span{Start: 3, End: 8}, false},
		{"insertion at end", Span{Start: 8, End: 8}, Span{Start: 3, End: 8}, false},
		{"insertion inside", Span{Start: 5, End: 5}, Span{Start: 3, End: 8}, true},
		{"two insertions", Span{Start: 5, End: 5}, Span{Start: 5, End: 5}, false},
		{"different files", Span{File: 1, Start: 0, End: 6}, Span{Start: 0, End: 6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("%v.Overlaps(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("overlap is not symmetric for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestSpan_Cover(t *testing.T) {
	got := Span{Start: 4, End: 6}.Cover(Span{Start: 1, End: 5})
	if got != (Span{Start: 1, End: 6}) {
		t.Fatalf("Cover = %v", got)
	}
	other := Span{File: 2, Start: 0, End: 100}
	if got := (Span{Start: 4, End: 6}).Cover(other); got != (Span{Start: 4, End: 6}) {
		t.Fatalf("Cover across files changed span: %v", got)
	}
}

func TestSpan_ContainsAndEncloses(t *testing.T) {
	s := Span{Start: 2, End: 5}
	if !s.Contains(2) || !s.Contains(4) || s.Contains(5) {
		t.Fatalf("Contains is not half-open for %v", s)
	}
	if !s.Encloses(Span{Start: 2, End: 5}) || s.Encloses(Span{Start: 1, End: 3}) {
		t.Fatalf("Encloses mismatch for %v", s)
	}
	if s.Len() != 3 || s.Empty() {
		t.Fatalf("unexpected Len/Empty for %v", s)
	}
}
