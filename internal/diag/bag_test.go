package diag

import (
	"testing"

	"bugcheck/internal/source"
)

func TestBagLimitAndSort(t *testing.T) {
	b := NewBag(3)
	b.Add(New("B", SevWarning, source.Span{Start: 10, End: 12}, "b"))
	b.Add(New("A", SevError, source.Span{Start: 10, End: 12}, "a"))
	b.Add(New("C", SevInfo, source.Span{Start: 1, End: 2}, "c"))
	if b.Add(New("D", SevInfo, source.Span{}, "d")) {
		t.Fatalf("bag accepted diagnostic past its limit")
	}

	b.Sort()
	var got []string
	for _, d := range b.Items() {
		got = append(got, d.Check)
	}
	want := []string{"C", "A", "B"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if !b.HasErrors() || !b.HasWarnings() {
		t.Fatalf("expected errors and warnings")
	}
}

func TestBagDedupAndFilter(t *testing.T) {
	b := NewBag(0)
	for range 3 {
		b.Add(New("X", SevError, source.Span{Start: 1, End: 2}, "same"))
	}
	b.Add(New("X", SevWarning, source.Span{Start: 5, End: 6}, "other"))
	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("Dedup left %d items", b.Len())
	}
	b.Filter(func(d *Diagnostic) bool { return d.Severity == SevWarning })
	if b.Len() != 1 || b.HasErrors() {
		t.Fatalf("Filter left %d items", b.Len())
	}
}

func TestDedupReporterAndBuilder(t *testing.T) {
	bag := NewBag(0)
	r := NewDedupReporter(BagReporter{Bag: bag})
	for range 2 {
		NewReportBuilder(r, "EmptyIf", SevWarning, source.Span{Start: 3, End: 9}, "empty if").
			WithNote(source.Span{Start: 3, End: 5}, "condition").
			WithFix(Fix{Title: "remove", Replacements: []Replacement{{Span: source.Span{Start: 3, End: 9}}}}).
			Emit()
	}
	if bag.Len() != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", bag.Len())
	}
	d := bag.Items()[0]
	if len(d.Notes) != 1 || len(d.Fixes) != 1 || d.Fixes[0].IsEmpty() {
		t.Fatalf("builder lost details: %+v", d)
	}
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"warn": SevWarning, "ERROR": SevError, " info ": SevInfo} {
		got, err := ParseSeverity(in)
		if err != nil || got != want {
			t.Fatalf("ParseSeverity(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Fatalf("expected error")
	}
}
