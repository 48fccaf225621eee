package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bugcheck/internal/scanner"
)

const sample = `
[checks]
SelfAssignment = "OFF"
EmptyIf = "ERROR"

[options]
disable-warnings-in-generated-code = true

[flags]
"MisusedDateLayout:MinRuns" = "1"

[patch]
checks = ["SizeGreaterThanOrEqualsZero", "refaster:rules/strings.go"]
location = "out"

[rules]
files = ["rules/strings.go"]

[files]
exclude = ["gen/**"]

[analysis]
types = "packages"
jobs = 4
`

func write(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	write(t, root, sample)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, ok, err := Discover(nested)
	if err != nil || !ok {
		t.Fatalf("Discover: %v, %v", ok, err)
	}
	if cfg.Root != root || cfg.Analysis.Jobs != 4 || cfg.Analysis.Types != "packages" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"gen/**"}, cfg.Excludes()); diff != "" {
		t.Fatalf("excludes (-want +got):\n%s", diff)
	}
}

func TestDiscoverWithoutFile(t *testing.T) {
	cfg, ok, err := Discover(t.TempDir())
	if err != nil || ok || cfg == nil || len(cfg.Args()) != 0 {
		t.Fatalf("got %+v, %v, %v", cfg, ok, err)
	}
}

func TestArgs(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(write(t, root, sample))
	if err != nil {
		t.Fatal(err)
	}
	rules := filepath.Join(root, "rules", "strings.go")
	want := []string{
		"--disable-warnings-in-generated-code",
		"--check=EmptyIf:ERROR",
		"--check=SelfAssignment:OFF",
		"--opt=MisusedDateLayout:MinRuns=1",
		"--rules=" + rules,
		"--patch-checks=refaster:" + rules,
		"--patch-checks=SizeGreaterThanOrEqualsZero",
		"--patch-location=" + filepath.Join(root, "out"),
	}
	if diff := cmp.Diff(want, cfg.Args()); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}

	o, rest, err := scanner.ProcessArgs(cfg.Args())
	if err != nil {
		t.Fatalf("ProcessArgs: %v", err)
	}
	if len(rest) != 0 || o.Severities["EmptyIf"] != scanner.OverrideError || !o.DisableWarningsInGeneratedCode {
		t.Fatalf("options = %+v, rest %v", o, rest)
	}
	if o.Patch.BaseDir != filepath.Join(root, "out") || len(o.Patch.Rules) != 1 {
		t.Fatalf("patch = %+v", o.Patch)
	}
}

func TestCommandLineWinsOverFile(t *testing.T) {
	cfg, err := Load(write(t, t.TempDir(), "[checks]\nEmptyIf = \"ERROR\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	o, _, err := scanner.ProcessArgs(append(cfg.Args(), "--check=EmptyIf:OFF"))
	if err != nil {
		t.Fatal(err)
	}
	if o.Severities["EmptyIf"] != scanner.OverrideOff {
		t.Fatalf("EmptyIf = %v", o.Severities["EmptyIf"])
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "syntax", text: "[checks\n", want: "failed to parse TOML"},
		{name: "unknown key", text: "[checks]\nX = \"OFF\"\n[option]\nquiet = true\n", want: "unknown keys"},
		{name: "negative jobs", text: "[analysis]\njobs = -1\n", want: "jobs must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, t.TempDir(), tt.text))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
