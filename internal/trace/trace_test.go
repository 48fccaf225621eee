package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeUnit, false},
		{LevelDetail, ScopeUnit, true},
		{LevelDetail, ScopeNode, false},
		{LevelDebug, ScopeNode, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Fatalf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestStreamTracerKeepsErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelError, FormatText)

	span := Begin(tr, ScopePass, "scan", 0)
	span.End("")
	Error(tr, ScopeNode, "check:SelfAssignment", "boom", map[string]string{"kind": "AssignStmt"})

	out := buf.String()
	if strings.Contains(out, "scan") {
		t.Fatalf("pass span leaked at error level:\n%s", out)
	}
	if !strings.Contains(out, "! check:SelfAssignment (boom) {kind=AssignStmt}") {
		t.Fatalf("missing error event:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(r, ScopeNode, name, "")
	}
	got := r.Snapshot()
	if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestNDJSON(t *testing.T) {
	ev := &Event{Seq: 7, Kind: KindPoint, Scope: ScopeUnit, Name: "unit:a.go"}
	line := string(FormatEvent(ev, FormatNDJSON))
	if !strings.HasSuffix(line, "\n") || !strings.Contains(line, `"name":"unit:a.go"`) || !strings.Contains(line, `"scope":"unit"`) {
		t.Fatalf("unexpected ndjson: %q", line)
	}
}

func TestContextDefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatal("expected Nop tracer")
	}
	r := NewRingTracer(4, LevelPhase)
	ctx := WithTracer(context.Background(), r)
	if FromContext(ctx) != Tracer(r) {
		t.Fatal("tracer not propagated")
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("New(off) = %v, %v", tr, err)
	}
}

func TestParentFollowsEnabledSpans(t *testing.T) {
	r := NewRingTracer(8, LevelPhase)
	pass := Begin(r, ScopePass, "scan", 0)
	ctx := WithParent(context.Background(), pass)
	if Parent(ctx) != pass.ID() || pass.ID() == 0 {
		t.Fatalf("Parent = %d, want %d", Parent(ctx), pass.ID())
	}

	unit := Begin(r, ScopeUnit, "scan", Parent(ctx))
	if WithParent(ctx, unit) != ctx {
		t.Fatal("a filtered span must not replace the parent")
	}
	if Parent(context.Background()) != 0 {
		t.Fatal("root context has a parent")
	}
}

func TestHeartbeatDetail(t *testing.T) {
	if got := heartbeatDetail(3, 0); got != "#3 stalled" {
		t.Fatalf("got %q", got)
	}
	if got := heartbeatDetail(1, 12); got != "#1 12 spans" {
		t.Fatalf("got %q", got)
	}
}

func TestHeartbeatStops(t *testing.T) {
	r := NewRingTracer(64, LevelPhase)
	stop := StartHeartbeat(context.Background(), r, time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for len(r.Snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	stop()
	stop()
	got := r.Snapshot()
	if len(got) == 0 || got[0].Kind != KindHeartbeat {
		t.Fatalf("no heartbeat recorded: %+v", got)
	}
	if n := len(r.Snapshot()); n != len(got) {
		t.Fatalf("heartbeats after stop: %d -> %d", len(got), n)
	}

	if stop := StartHeartbeat(context.Background(), Nop, time.Millisecond); stop == nil {
		t.Fatal("disabled heartbeat must still return a stop function")
	}
}
