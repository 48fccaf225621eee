package observ

import (
	"strings"
	"sync"
	"testing"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	load := tm.Begin("load")
	tm.End(load, "3 files")
	done := tm.Track("scan")
	done("")
	tm.End(42, "ignored")

	rep := tm.Report()
	if len(rep.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(rep.Phases))
	}
	if rep.Phases[0].Name != "load" || rep.Phases[0].Note != "3 files" {
		t.Fatalf("first phase = %+v", rep.Phases[0])
	}
	if rep.Phases[1].Name != "scan" {
		t.Fatalf("second phase = %+v", rep.Phases[1])
	}
	sum := tm.Summary()
	for _, want := range []string{"timings:", "load", "// 3 files", "scan", "total"} {
		if !strings.Contains(sum, want) {
			t.Fatalf("summary misses %q:\n%s", want, sum)
		}
	}
}

func TestTimerEmpty(t *testing.T) {
	if rep := NewTimer().Report(); rep.Phases != nil || rep.TotalMS != 0 {
		t.Fatalf("empty report = %+v", rep)
	}
}

func TestTimerConcurrent(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Track("unit")("")
		}()
	}
	wg.Wait()
	if n := len(tm.Report().Phases); n != 16 {
		t.Fatalf("phases = %d, want 16", n)
	}
}
